// Package header extracts exportable declarations from C-style header files
// made of #define lines.
//
// A define whose value is a register token (vb, vn, vq, vd, va followed by a
// number) becomes a located global variable. A numeric define whose comment
// starts with a bracketed numeric IEC type tag becomes a global constant of
// that type. Every other define is ignored.
package header

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/conneroisu/plctool/internal/errors"
	"github.com/conneroisu/plctool/internal/lexer"
	"github.com/conneroisu/plctool/internal/logging"
	"github.com/conneroisu/plctool/internal/plc"
)

// Group names of the exported declarations.
const (
	VariablesGroup = "Header_Variables"
	ConstantsGroup = "Header_Constants"
)

var numericTypes = map[string]struct{}{
	"SINT": {}, "INT": {}, "DINT": {}, "LINT": {},
	"USINT": {}, "UINT": {}, "UDINT": {}, "ULINT": {},
	"BYTE": {}, "WORD": {}, "DWORD": {}, "LWORD": {},
	"REAL": {}, "LREAL": {},
}

// IsNumericType reports whether name is a numeric IEC type.
func IsNumericType(name string) bool {
	_, ok := numericTypes[name]
	return ok
}

// Options controls parsing.
type Options struct {
	// FilePath is used in messages and, when LibraryName is empty, to name
	// the library after its base name.
	FilePath    string
	LibraryName string
	Strict      bool
	Issues      *errors.IssueCollector
	Logger      logging.Logger
}

// Define is one collected #define line.
type Define struct {
	Label   string
	Value   string
	Predecl string
	Comment string
	Line    int
}

// Parse reads header source and returns the exported library.
func Parse(src string, opts Options) (*plc.Library, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errors.NewParseError(errors.CodeEmptyInput, "empty input").
			WithLocation(opts.FilePath, 0, 0)
	}

	p := &parser{
		lx:  lexer.New(src),
		rep: errors.Reporter{Source: opts.FilePath, Strict: opts.Strict, Issues: opts.Issues},
	}
	defines, err := p.defines()
	if err != nil {
		return nil, err
	}

	lib := plc.NewLibrary(libraryName(opts))
	lib.Descr = "Declarations exported from " + filepath.Base(opts.FilePath)
	lib.Version = plc.DefaultGroupVersion
	lib.OpenGroup(plc.SetVariables, VariablesGroup)

	exported := 0
	for _, def := range defines {
		ok, err := export(lib, def)
		if err != nil {
			return nil, errors.EnhanceError(err, "header", opts.FilePath, def.Line)
		}
		if ok {
			exported++
		}
	}

	if exported == 0 {
		if err := p.rep.Notify(0, "No exportable defines found in %s", opts.FilePath); err != nil {
			return nil, err
		}
	}

	logging.OrNop(opts.Logger).Debug(context.Background(), "Parsed header",
		"file", opts.FilePath,
		"defines", len(defines),
		"exported", exported,
	)
	return lib, nil
}

func libraryName(opts Options) string {
	if opts.LibraryName != "" {
		return opts.LibraryName
	}
	base := filepath.Base(opts.FilePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func export(lib *plc.Library, def Define) (bool, error) {
	if reg, ok := ParseRegister(def.Value); ok {
		addr := reg.Address()
		return true, lib.AddVariable(VariablesGroup, plc.Variable{
			Name:    def.Label,
			Type:    reg.Type(),
			Descr:   def.Comment,
			Address: &addr,
		})
	}
	if IsNumericType(def.Predecl) && isNumber(def.Value) {
		return true, lib.AddConstant(ConstantsGroup, plc.Variable{
			Name:  def.Label,
			Type:  plc.Type{Name: def.Predecl},
			Value: def.Value,
			Descr: def.Comment,
		})
	}
	return false, nil
}

func isNumber(s string) bool {
	if _, err := strconv.ParseInt(s, 0, 64); err == nil {
		return true
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

type parser struct {
	lx  *lexer.Lexer
	rep errors.Reporter
}

func (p *parser) defines() ([]Define, error) {
	var out []Define
	for !p.lx.EOF() {
		p.lx.SkipBlanks()
		switch {
		case p.lx.EatLineEnd():
		case p.lx.EatString("//"):
			p.lx.SkipLine()
		case p.lx.HasPrefix("/*"):
			line := p.lx.Line()
			p.lx.Advance(2)
			if !p.lx.SkipPast("*/") {
				return nil, p.rep.Fatal(line, errors.CodeParse, "Unclosed block comment")
			}
		case p.lx.EatKeyword("#define"):
			def, err := p.define()
			if err != nil {
				return nil, err
			}
			out = append(out, def)
		default:
			line := p.lx.Line()
			if err := p.rep.Notify(line, "Unexpected content: %s", p.lx.RestOfLine()); err != nil {
				return nil, err
			}
			p.lx.EatLineEnd()
		}
	}
	return out, nil
}

func (p *parser) define() (Define, error) {
	def := Define{Line: p.lx.Line()}

	p.lx.SkipBlanks()
	def.Label = p.lx.Identifier()
	if def.Label == "" {
		return def, p.rep.Fatal(def.Line, errors.CodeParse, "Empty define label")
	}

	p.lx.SkipBlanks()
	def.Value = p.lx.Token()
	if def.Value == "" {
		return def, p.rep.Fatal(def.Line, errors.CodeParse, "Empty define value of %s", def.Label)
	}

	p.lx.SkipBlanks()
	if p.lx.EatString("//") {
		p.lx.SkipBlanks()
		comment := p.lx.RestOfLine()
		if strings.HasPrefix(comment, "[") {
			if end := strings.IndexByte(comment, ']'); end >= 0 {
				def.Predecl = strings.TrimSpace(comment[1:end])
				comment = comment[end+1:]
			} else if err := p.rep.Notify(def.Line, "Unclosed initial '[' in the comment of define %s", def.Label); err != nil {
				return def, err
			}
		}
		cleaned, replaced := plc.CleanText(strings.TrimSpace(comment))
		if replaced {
			if err := p.rep.Notify(def.Line, "Replaced reserved characters (%s) in the comment of define %s", plc.ReservedTextChars, def.Label); err != nil {
				return def, err
			}
		}
		def.Comment = cleaned
	}

	if !p.lx.EatLineEnd() {
		if err := p.rep.Notify(def.Line, "Unexpected content after define %s: %s", def.Label, p.lx.RestOfLine()); err != nil {
			return def, err
		}
		p.lx.EatLineEnd()
	}
	return def, nil
}
