// Package pll reads and writes PLC library source: IEC 61131-3 structured
// text declarations with the { DE:"..." }, { CODE:xx } and { G:"..." }
// directives used by the target IDE.
package pll

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

// Options controls parsing.
type Options struct {
	FilePath string
	// LibraryName overrides the name found in the heading comment.
	LibraryName string
	Strict      bool
	Issues      *errors.IssueCollector
	Logger      logging.Logger
}

// Parse reads PLC library source into a validated Library. The first fatal
// problem aborts parsing and no partial model is returned.
func Parse(src string, opts Options) (*plc.Library, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errors.NewParseError(errors.CodeEmptyInput, "empty input").
			WithLocation(opts.FilePath, 0, 0)
	}

	p := &parser{
		lx:  lexer.New(src),
		rep: errors.Reporter{Source: opts.FilePath, Strict: opts.Strict, Issues: opts.Issues},
		lib: plc.NewLibrary(""),
	}
	if err := p.parse(); err != nil {
		return nil, err
	}

	switch {
	case opts.LibraryName != "":
		p.lib.Name = opts.LibraryName
	case p.lib.Name == "" && opts.FilePath != "":
		base := filepath.Base(opts.FilePath)
		p.lib.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if err := p.lib.Validate(); err != nil {
		return nil, errors.EnhanceError(err, "pll", opts.FilePath, 0)
	}

	logging.OrNop(opts.Logger).Debug(context.Background(), "Parsed library source",
		"file", opts.FilePath,
		"summary", p.lib.Summary(),
	)
	return p.lib, nil
}

type parser struct {
	lx  *lexer.Lexer
	rep errors.Reporter
	lib *plc.Library
}

func (p *parser) fatal(format string, args ...interface{}) error {
	return p.rep.Fatal(p.lx.Line(), errors.CodeParse, format, args...)
}

func (p *parser) notify(format string, args ...interface{}) error {
	return p.rep.Notify(p.lx.Line(), format, args...)
}

// located attaches the current line to model errors such as duplicates.
func (p *parser) located(err error) error {
	return errors.EnhanceError(err, "pll", p.rep.Source, p.lx.Line())
}

func (p *parser) parse() error {
	if err := p.heading(); err != nil {
		return err
	}

	for !p.lx.EOF() {
		p.lx.SkipBlanks()
		if p.lx.EatLineEnd() {
			continue
		}
		if handled, err := p.comment(); handled || err != nil {
			if err != nil {
				return err
			}
			continue
		}

		var err error
		switch {
		case p.lx.EatKeyword("PROGRAM"):
			err = p.pou(plc.KindProgram)
		case p.lx.EatKeyword("FUNCTION_BLOCK"):
			err = p.pou(plc.KindFunctionBlock)
		case p.lx.EatKeyword("FUNCTION"):
			err = p.pou(plc.KindFunction)
		case p.lx.EatKeyword("MACRO"):
			err = p.macro()
		case p.lx.EatKeyword("TYPE"):
			err = p.types()
		case p.lx.EatKeyword("VAR_GLOBAL"):
			err = p.globals()
		default:
			err = p.notify("Unexpected content: %s", p.lx.RestOfLine())
			p.lx.EatLineEnd()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// comment skips a (* ... *) comment at the cursor.
func (p *parser) comment() (bool, error) {
	line := p.lx.Line()
	present, closed := p.lx.SkipComment()
	if present && !closed {
		return true, p.rep.Fatal(line, errors.CodeParse, "Unclosed comment")
	}
	return present, nil
}

// heading reads the key: value lines of the comments that precede any
// declaration.
func (p *parser) heading() error {
	for {
		p.lx.SkipBlanks()
		if p.lx.EOF() {
			return nil
		}
		if p.lx.EatLineEnd() {
			continue
		}
		if !p.lx.HasPrefix("(*") {
			return nil
		}
		start := p.lx.Save()
		if _, err := p.comment(); err != nil {
			return err
		}
		text := p.lx.Slice(start)
		p.headingFields(strings.TrimSuffix(strings.TrimPrefix(text, "(*"), "*)"))
	}
}

func (p *parser) headingFields(text string) {
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "name":
			p.lib.Name = value
		case "descr":
			p.lib.Descr = value
		case "version":
			p.lib.Version = value
		case "author":
			p.lib.Author = value
		case "date", "":
		default:
			if n, err := strconv.Atoi(value); err == nil {
				if p.lib.DeclaredCounts == nil {
					p.lib.DeclaredCounts = make(map[string]int)
				}
				p.lib.DeclaredCounts[key] = n
			}
		}
	}
}

// directive reads { KEY : "value" } or { KEY : value } at the cursor.
func (p *parser) directive() (key, value string, err error) {
	p.lx.Eat('{')
	p.lx.SkipBlanks()
	key = p.lx.Identifier()
	if key == "" {
		return "", "", p.fatal("Missing directive key")
	}
	p.lx.SkipBlanks()
	if !p.lx.Eat(':') {
		return "", "", p.fatal("Missing ':' in directive %s", key)
	}
	p.lx.SkipBlanks()
	if p.lx.Eat('"') {
		var found bool
		value, found = p.lx.Until("\"<>")
		if !found {
			return "", "", p.fatal("Unclosed value of directive %s", key)
		}
		if !p.lx.Eat('"') {
			return "", "", p.fatal("Invalid character '%c' in directive %s", p.lx.Peek(), key)
		}
	} else {
		value = p.lx.Identifier()
	}
	p.lx.SkipBlanks()
	if !p.lx.Eat('}') {
		return "", "", p.fatal("Unclosed directive %s", key)
	}
	return key, value, nil
}

// trailingDescr reads an optional { DE:"..." } and the end of the line.
// A trailing comment is allowed.
func (p *parser) trailingDescr(owner string) (string, error) {
	var descr string
	p.lx.SkipBlanks()
	if p.lx.Peek() == '{' {
		key, value, err := p.directive()
		if err != nil {
			return "", err
		}
		if key == "DE" {
			descr = value
		} else if err := p.notify("Unexpected directive %s after %s", key, owner); err != nil {
			return "", err
		}
	}
	p.lx.SkipBlanks()
	if _, err := p.comment(); err != nil {
		return "", err
	}
	if !p.lx.EatLineEnd() {
		return "", p.fatal("Unexpected content after %s: %s", owner, p.lx.RestOfLine())
	}
	return descr, nil
}

func (p *parser) address() (*plc.Address, error) {
	if !p.lx.Eat('%') {
		return nil, p.fatal("Invalid address")
	}
	zone := p.lx.Peek()
	if !lexer.IsIdentStart(zone) {
		return nil, p.fatal("Invalid address zone")
	}
	p.lx.Advance(1)
	typeVar := p.lx.Peek()
	if !lexer.IsIdentStart(typeVar) {
		return nil, p.fatal("Invalid address type")
	}
	p.lx.Advance(1)
	index, ok := p.lx.Integer()
	if !ok || index < 0 || index > 0xFFFF {
		return nil, p.fatal("Invalid address index")
	}
	if !p.lx.Eat('.') {
		return nil, p.fatal("Missing address subindex")
	}
	sub, ok := p.lx.Integer()
	if !ok || sub < 0 || sub > 0xFFFF {
		return nil, p.fatal("Invalid address subindex")
	}
	return &plc.Address{Zone: zone, TypeVar: typeVar, Index: uint16(index), SubIndex: uint16(sub)}, nil
}

func (p *parser) typeRef() (plc.Type, error) {
	var t plc.Type
	if p.lx.EatKeyword("ARRAY") {
		p.lx.SkipBlanks()
		if !p.lx.Eat('[') {
			return t, p.fatal("Missing '[' after ARRAY")
		}
		for {
			p.lx.SkipBlanks()
			first, ok1 := p.lx.Integer()
			p.lx.SkipBlanks()
			dots := p.lx.EatString("..")
			p.lx.SkipBlanks()
			last, ok2 := p.lx.Integer()
			if !ok1 || !dots || !ok2 {
				return t, p.fatal("Invalid array range")
			}
			t.Dims = append(t.Dims, plc.Range{First: int(first), Last: int(last)})
			p.lx.SkipBlanks()
			if p.lx.Eat(',') {
				continue
			}
			if p.lx.Eat(']') {
				break
			}
			return t, p.fatal("Unclosed array range")
		}
		p.lx.SkipBlanks()
		if !p.lx.EatKeyword("OF") {
			return t, p.fatal("Missing OF after array range")
		}
		p.lx.SkipBlanks()
	}

	t.Name = p.lx.Identifier()
	if t.Name == "" {
		return t, p.fatal("Missing type")
	}
	p.lx.SkipBlanks()
	if p.lx.Eat('[') {
		p.lx.SkipBlanks()
		n, ok := p.lx.Integer()
		p.lx.SkipBlanks()
		if !ok || !p.lx.Eat(']') {
			return t, p.fatal("Invalid length of %s", t.Name)
		}
		if n <= 1 {
			return t, p.fatal("Invalid length %d of %s", n, t.Name)
		}
		t.Length = int(n)
	}
	return t, nil
}

// variable reads one declaration line:
// Name [AT %ZT1.2] : [ARRAY[..] OF] TYPE[[len]] [:= value]; [{ DE:"..." }]
func (p *parser) variable() (plc.Variable, error) {
	var v plc.Variable
	v.Name = p.lx.Identifier()
	if v.Name == "" {
		return v, p.fatal("Invalid variable name: %s", p.lx.PeekRestOfLine())
	}
	p.lx.SkipBlanks()
	if p.lx.Peek() == ',' {
		return v, p.fatal("Multiple names not supported in declaration of %s", v.Name)
	}
	if p.lx.EatKeyword("AT") {
		p.lx.SkipBlanks()
		addr, err := p.address()
		if err != nil {
			return v, err
		}
		v.Address = addr
		p.lx.SkipBlanks()
	}
	if !p.lx.Eat(':') {
		return v, p.fatal("Missing ':' after %s", v.Name)
	}
	p.lx.SkipBlanks()

	var err error
	if v.Type, err = p.typeRef(); err != nil {
		return v, err
	}
	p.lx.SkipBlanks()

	if p.lx.EatString(":=") {
		p.lx.SkipBlanks()
		if p.lx.Peek() == '[' {
			return v, p.fatal("Array initialization not supported for %s", v.Name)
		}
		value, found := p.lx.Until(";")
		if !found {
			return v, p.fatal("Missing ';' after value of %s", v.Name)
		}
		if strings.ContainsAny(value, ":=<>\"") {
			return v, p.fatal("Invalid value of %s: %s", v.Name, value)
		}
		v.Value = strings.TrimSpace(value)
		if v.Value == "" {
			return v, p.fatal("Empty value of %s", v.Name)
		}
	}
	if !p.lx.Eat(';') {
		return v, p.fatal("Missing ';' after %s", v.Name)
	}

	v.Descr, err = p.trailingDescr(v.Name)
	return v, err
}

// varBlock reads declarations until END_VAR. onDirective handles a
// directive line; nil means directives are unexpected.
func (p *parser) varBlock(block string, needValue bool, add func(plc.Variable) error, onDirective func(key, value string) error) error {
	if !p.lx.EatLineEnd() {
		if err := p.notify("Unexpected content after %s: %s", block, p.lx.RestOfLine()); err != nil {
			return err
		}
		p.lx.EatLineEnd()
	}
	for {
		if p.lx.EOF() {
			return p.fatal("Missing END_VAR of %s", block)
		}
		p.lx.SkipBlanks()
		if p.lx.EatLineEnd() {
			continue
		}
		if handled, err := p.comment(); handled || err != nil {
			if err != nil {
				return err
			}
			continue
		}
		if p.lx.EatKeyword("END_VAR") {
			if !p.lx.EatLineEnd() {
				if err := p.notify("Unexpected content after END_VAR: %s", p.lx.RestOfLine()); err != nil {
					return err
				}
				p.lx.EatLineEnd()
			}
			return nil
		}
		if p.lx.Peek() == '{' {
			key, value, err := p.directive()
			if err != nil {
				return err
			}
			if onDirective != nil {
				err = onDirective(key, value)
			} else {
				err = p.notify("Unexpected directive %s in %s", key, block)
			}
			if err != nil {
				return err
			}
			if !p.lx.EatLineEnd() {
				return p.fatal("Unexpected content after directive %s: %s", key, p.lx.RestOfLine())
			}
			continue
		}

		v, err := p.variable()
		if err != nil {
			return err
		}
		if needValue && v.Value == "" {
			return p.fatal("Constant %s has no value", v.Name)
		}
		if err := add(v); err != nil {
			return p.located(err)
		}
	}
}

func (p *parser) globals() error {
	p.lx.SkipBlanks()
	set, block := plc.SetVariables, "VAR_GLOBAL"
	switch {
	case p.lx.EatKeyword("CONSTANT"):
		set, block = plc.SetConstants, "VAR_GLOBAL CONSTANT"
	case p.lx.PeekKeyword("RETAIN"):
		return p.fatal("VAR_GLOBAL RETAIN is not supported")
	case !p.lx.AtLineEnd():
		return p.fatal("Unexpected content after VAR_GLOBAL: %s", p.lx.RestOfLine())
	}

	add := func(v plc.Variable) error { return p.lib.AddGlobal(set, v) }
	group := func(key, value string) error {
		if key != "G" {
			return p.notify("Unexpected directive %s in %s", key, block)
		}
		if strings.ContainsAny(value, " \t") {
			if err := p.notify("Spaces in group name %q", value); err != nil {
				return err
			}
		}
		p.lib.OpenGroup(set, value)
		return nil
	}
	return p.varBlock(block, set == plc.SetConstants, add, group)
}

func (p *parser) pou(kind plc.Kind) error {
	pou := plc.POU{Kind: kind}
	tag := pou.Tag()

	p.lx.SkipBlanks()
	pou.Name = p.lx.Identifier()
	if pou.Name == "" {
		return p.fatal("Missing name of %s", tag)
	}
	p.lx.SkipBlanks()
	if p.lx.Eat(':') {
		if kind != plc.KindFunction {
			return p.fatal("Return type not allowed in %s %s", tag, pou.Name)
		}
		p.lx.SkipBlanks()
		pou.ReturnType = p.lx.Identifier()
		if pou.ReturnType == "" {
			return p.fatal("Missing return type of %s", pou.Name)
		}
	} else if kind == plc.KindFunction {
		return p.fatal("Missing return type of %s", pou.Name)
	}
	if !p.lx.EatLineEnd() {
		if err := p.notify("Unexpected content after %s %s: %s", tag, pou.Name, p.lx.RestOfLine()); err != nil {
			return err
		}
		p.lx.EatLineEnd()
	}

	haveDescr := false
	for {
		if p.lx.EOF() {
			return p.fatal("Missing CODE directive in %s", pou.Name)
		}
		p.lx.SkipBlanks()
		if p.lx.EatLineEnd() {
			continue
		}
		if handled, err := p.comment(); handled || err != nil {
			if err != nil {
				return err
			}
			continue
		}

		if p.lx.Peek() == '{' {
			key, value, err := p.directive()
			if err != nil {
				return err
			}
			switch key {
			case "CODE":
				pou.CodeType = value
				body, err := p.body("END_" + tag)
				if err != nil {
					return err
				}
				pou.Body = body
				return p.located(p.lib.AddPOU(pou))
			case "DE":
				if haveDescr {
					if err := p.notify("Multiple descriptions of %s", pou.Name); err != nil {
						return err
					}
				}
				pou.Descr, haveDescr = value, true
			default:
				if err := p.notify("Unexpected directive %s in %s", key, pou.Name); err != nil {
					return err
				}
			}
			continue
		}

		role, block, ok := p.roleBlock()
		if ok {
			add := func(v plc.Variable) error { return pou.AddVariable(role, v) }
			if err := p.varBlock(block, role == plc.RoleLocalConst, add, nil); err != nil {
				return err
			}
			continue
		}
		if p.lx.PeekKeyword("END_" + tag) {
			return p.fatal("Truncated %s %s", tag, pou.Name)
		}
		if err := p.notify("Unexpected content in %s: %s", pou.Name, p.lx.RestOfLine()); err != nil {
			return err
		}
		p.lx.EatLineEnd()
	}
}

func (p *parser) roleBlock() (plc.Role, string, bool) {
	switch {
	case p.lx.EatKeyword("VAR_INPUT"):
		return plc.RoleInput, "VAR_INPUT", true
	case p.lx.EatKeyword("VAR_OUTPUT"):
		return plc.RoleOutput, "VAR_OUTPUT", true
	case p.lx.EatKeyword("VAR_IN_OUT"):
		return plc.RoleInOut, "VAR_IN_OUT", true
	case p.lx.EatKeyword("VAR_EXTERNAL"):
		return plc.RoleExternal, "VAR_EXTERNAL", true
	case p.lx.EatKeyword("VAR"):
		p.lx.SkipBlanks()
		if p.lx.EatKeyword("CONSTANT") {
			return plc.RoleLocalConst, "VAR CONSTANT", true
		}
		return plc.RoleLocal, "VAR", true
	}
	return 0, "", false
}

// body returns the text after a CODE directive up to the line that starts
// with endTag, and consumes that tag.
func (p *parser) body(endTag string) (string, error) {
	rest := p.lx.Rest()
	i := 0
	for {
		nl := strings.IndexByte(rest[i:], '\n')
		if nl < 0 {
			return "", p.fatal("Missing %s", endTag)
		}
		lineStart := i + nl + 1
		j := lineStart
		for j < len(rest) && (rest[j] == ' ' || rest[j] == '\t') {
			j++
		}
		if strings.HasPrefix(rest[j:], endTag) &&
			(j+len(endTag) == len(rest) || !lexer.IsIdentChar(rest[j+len(endTag)])) {
			body := rest[:lineStart]
			p.lx.Advance(j + len(endTag))
			if !p.lx.EatLineEnd() {
				if err := p.notify("Unexpected content after %s: %s", endTag, p.lx.RestOfLine()); err != nil {
					return "", err
				}
				p.lx.EatLineEnd()
			}
			return body, nil
		}
		i = lineStart
	}
}

func (p *parser) macro() error {
	var m plc.Macro
	p.lx.SkipBlanks()
	m.Name = p.lx.Identifier()
	if m.Name == "" {
		return p.fatal("Missing name of MACRO")
	}
	if !p.lx.EatLineEnd() {
		if err := p.notify("Unexpected content after MACRO %s: %s", m.Name, p.lx.RestOfLine()); err != nil {
			return err
		}
		p.lx.EatLineEnd()
	}

	haveDescr := false
	for {
		if p.lx.EOF() {
			return p.fatal("Missing CODE directive in macro %s", m.Name)
		}
		p.lx.SkipBlanks()
		if p.lx.EatLineEnd() {
			continue
		}
		if handled, err := p.comment(); handled || err != nil {
			if err != nil {
				return err
			}
			continue
		}
		switch {
		case p.lx.Peek() == '{':
			key, value, err := p.directive()
			if err != nil {
				return err
			}
			switch key {
			case "CODE":
				m.CodeType = value
				body, err := p.body("END_MACRO")
				if err != nil {
					return err
				}
				m.Body = body
				return p.located(p.lib.AddMacro(m))
			case "DE":
				if haveDescr {
					if err := p.notify("Multiple descriptions of macro %s", m.Name); err != nil {
						return err
					}
				}
				m.Descr, haveDescr = value, true
			default:
				if err := p.notify("Unexpected directive %s in macro %s", key, m.Name); err != nil {
					return err
				}
			}
		case p.lx.EatKeyword("PAR_MACRO"):
			if err := p.macroParams(&m); err != nil {
				return err
			}
		case p.lx.PeekKeyword("END_MACRO"):
			return p.fatal("Truncated macro %s", m.Name)
		default:
			if err := p.notify("Unexpected content in macro %s: %s", m.Name, p.lx.RestOfLine()); err != nil {
				return err
			}
			p.lx.EatLineEnd()
		}
	}
}

func (p *parser) macroParams(m *plc.Macro) error {
	p.lx.EatLineEnd()
	for {
		if p.lx.EOF() {
			return p.fatal("Missing END_PAR in macro %s", m.Name)
		}
		p.lx.SkipBlanks()
		if p.lx.EatLineEnd() {
			continue
		}
		if handled, err := p.comment(); handled || err != nil {
			if err != nil {
				return err
			}
			continue
		}
		if p.lx.EatKeyword("END_PAR") {
			p.lx.EatLineEnd()
			return nil
		}
		name := p.lx.Identifier()
		if name == "" {
			return p.fatal("Invalid parameter of macro %s: %s", m.Name, p.lx.PeekRestOfLine())
		}
		p.lx.SkipBlanks()
		if !p.lx.Eat(';') {
			return p.fatal("Missing ';' after parameter %s", name)
		}
		descr, err := p.trailingDescr(name)
		if err != nil {
			return err
		}
		if err := m.AddParameter(plc.Parameter{Name: name, Descr: descr}); err != nil {
			return p.located(err)
		}
	}
}

func (p *parser) types() error {
	if !p.lx.EatLineEnd() {
		if err := p.notify("Unexpected content after TYPE: %s", p.lx.RestOfLine()); err != nil {
			return err
		}
		p.lx.EatLineEnd()
	}
	for {
		if p.lx.EOF() {
			return p.fatal("Missing END_TYPE")
		}
		p.lx.SkipBlanks()
		if p.lx.EatLineEnd() {
			continue
		}
		if handled, err := p.comment(); handled || err != nil {
			if err != nil {
				return err
			}
			continue
		}
		if p.lx.EatKeyword("END_TYPE") {
			p.lx.EatLineEnd()
			return nil
		}

		name := p.lx.Identifier()
		if name == "" {
			return p.fatal("Invalid type name: %s", p.lx.PeekRestOfLine())
		}
		p.lx.SkipBlanks()
		if !p.lx.Eat(':') {
			return p.fatal("Missing ':' after type %s", name)
		}
		p.lx.SkipBlanks()

		var err error
		switch {
		case p.lx.EatKeyword("STRUCT"):
			err = p.structType(name)
		case p.lx.Eat('('):
			err = p.enumType(name)
		default:
			mark := p.lx.Save()
			_, _ = p.lx.Until(";({")
			isSubrange := p.lx.Peek() == '('
			p.lx.Restore(mark)
			if isSubrange {
				err = p.subrangeType(name)
			} else {
				err = p.typedefType(name)
			}
		}
		if err != nil {
			return err
		}
	}
}

func (p *parser) structType(name string) error {
	s := plc.Struct{Name: name}
	var err error
	if s.Descr, err = p.trailingDescr(name); err != nil {
		return err
	}
	for {
		if p.lx.EOF() {
			return p.fatal("Missing END_STRUCT of %s", name)
		}
		p.lx.SkipBlanks()
		if p.lx.EatLineEnd() {
			continue
		}
		if handled, err := p.comment(); handled || err != nil {
			if err != nil {
				return err
			}
			continue
		}
		if p.lx.EatKeyword("END_STRUCT") {
			p.lx.SkipBlanks()
			if !p.lx.Eat(';') {
				if err := p.notify("Missing ';' after END_STRUCT of %s", name); err != nil {
					return err
				}
			}
			p.lx.EatLineEnd()
			return p.located(p.lib.AddStruct(s))
		}
		v, err := p.variable()
		if err != nil {
			return err
		}
		if v.HasAddress() {
			return p.fatal("Struct member %s cannot have an address", v.Name)
		}
		if err := s.AddMember(v); err != nil {
			return p.located(err)
		}
	}
}

func (p *parser) enumType(name string) error {
	e := plc.Enum{Name: name}
	p.lx.SkipBlanks()
	if p.lx.Peek() == '{' {
		key, value, err := p.directive()
		if err != nil {
			return err
		}
		if key == "DE" {
			e.Descr = value
		}
	}
	p.lx.EatLineEnd()

	for {
		if p.lx.EOF() {
			return p.fatal("Unclosed enum %s", name)
		}
		p.lx.SkipBlanks()
		if p.lx.EatLineEnd() {
			continue
		}
		if handled, err := p.comment(); handled || err != nil {
			if err != nil {
				return err
			}
			continue
		}
		if p.lx.Eat(')') {
			p.lx.SkipBlanks()
			if !p.lx.Eat(';') {
				return p.fatal("Missing ';' after enum %s", name)
			}
			p.lx.EatLineEnd()
			return p.located(p.lib.AddEnum(e))
		}
		if p.lx.Peek() == '{' {
			key, value, err := p.directive()
			if err != nil {
				return err
			}
			switch {
			case key == "DE" && len(e.Elements) == 0 && e.Descr == "":
				e.Descr = value
			default:
				if err := p.notify("Unexpected directive %s in enum %s", key, name); err != nil {
					return err
				}
			}
			p.lx.EatLineEnd()
			continue
		}

		el := plc.Element{Name: p.lx.Identifier()}
		if el.Name == "" {
			return p.fatal("Invalid element of enum %s: %s", name, p.lx.PeekRestOfLine())
		}
		p.lx.SkipBlanks()
		if !p.lx.EatString(":=") {
			return p.fatal("Missing value of enum element %s", el.Name)
		}
		p.lx.SkipBlanks()
		n, ok := p.lx.Integer()
		if !ok {
			return p.fatal("Invalid value of enum element %s", el.Name)
		}
		el.Value = strconv.FormatInt(n, 10)
		p.lx.SkipBlanks()
		p.lx.Eat(',')
		var err error
		if el.Descr, err = p.trailingDescr(el.Name); err != nil {
			return err
		}
		if err := e.AddElement(el); err != nil {
			return p.located(err)
		}
	}
}

func (p *parser) subrangeType(name string) error {
	s := plc.Subrange{Name: name, Type: p.lx.Identifier()}
	if s.Type == "" {
		return p.fatal("Missing type of subrange %s", name)
	}
	p.lx.SkipBlanks()
	if !p.lx.Eat('(') {
		return p.fatal("Missing range of subrange %s", name)
	}
	p.lx.SkipBlanks()
	lo, ok1 := p.lx.Integer()
	p.lx.SkipBlanks()
	dots := p.lx.EatString("..")
	p.lx.SkipBlanks()
	hi, ok2 := p.lx.Integer()
	p.lx.SkipBlanks()
	if !ok1 || !dots || !ok2 || !p.lx.Eat(')') {
		return p.fatal("Invalid range of subrange %s", name)
	}
	p.lx.SkipBlanks()
	if !p.lx.Eat(';') {
		return p.fatal("Missing ';' after subrange %s", name)
	}
	s.Min, s.Max = lo, hi
	var err error
	if s.Descr, err = p.trailingDescr(name); err != nil {
		return err
	}
	return p.located(p.lib.AddSubrange(s))
}

func (p *parser) typedefType(name string) error {
	t := plc.Typedef{Name: name}
	var err error
	if t.Type, err = p.typeRef(); err != nil {
		return err
	}
	p.lx.SkipBlanks()
	if !p.lx.Eat(';') {
		return p.fatal("Missing ';' after typedef %s", name)
	}
	if t.Descr, err = p.trailingDescr(name); err != nil {
		return err
	}
	return p.located(p.lib.AddTypedef(t))
}
