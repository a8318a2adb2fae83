// Package plclib renders a Library as the XML library descriptor read by
// the target IDE.
package plclib

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/plctool/internal/errors"
	"github.com/conneroisu/plctool/internal/plc"
)

// TimestampLayout is the layout of the date attribute of the author comment.
const TimestampLayout = "2006-01-02 15:04:05"

// SchemaVersion is the major.minor version of the descriptor schema.
type SchemaVersion struct {
	Major uint16
	Minor uint16
}

// DefaultSchemaVersion is written when no version is configured.
var DefaultSchemaVersion = SchemaVersion{Major: 2, Minor: 8}

// String returns "major.minor".
func (v SchemaVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseSchemaVersion parses "major.minor".
func ParseSchemaVersion(s string) (SchemaVersion, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return SchemaVersion{}, errors.NewConfigError(errors.CodeConfig,
			fmt.Sprintf("%q is not a valid version: missing '.' after major version", s))
	}
	majv, err := strconv.ParseUint(major, 10, 16)
	if err != nil {
		return SchemaVersion{}, errors.NewConfigError(errors.CodeConfig,
			fmt.Sprintf("%q is not a valid version: invalid major version", s))
	}
	minv, err := strconv.ParseUint(minor, 10, 16)
	if err != nil {
		return SchemaVersion{}, errors.NewConfigError(errors.CodeConfig,
			fmt.Sprintf("%q is not a valid version: invalid minor version", s))
	}
	return SchemaVersion{Major: uint16(majv), Minor: uint16(minv)}, nil
}

// IDCounter hands out the workspace ids of one written descriptor.
type IDCounter struct {
	next uint64
}

// NewIDCounter starts counting at seed.
func NewIDCounter(seed uint64) *IDCounter {
	return &IDCounter{next: seed}
}

// Next returns the current id and advances.
func (c *IDCounter) Next() uint64 {
	id := c.next
	c.next++
	return id
}

// Peek returns the id Next would return.
func (c *IDCounter) Peek() uint64 { return c.next }

// SeedFor derives a stable id seed from a library name: the sum of each
// byte weighted by its distance from the end.
func SeedFor(name string) uint64 {
	var val uint64
	for i := 0; i < len(name); i++ {
		val += uint64(len(name)-i) * uint64(name[i])
	}
	return val
}

// Options controls the generated descriptor.
type Options struct {
	// Indent is the indentation unit; one tab when empty.
	Indent        string
	SchemaVersion SchemaVersion
	NoTimestamp   bool
	Now           func() time.Time
	Author        string
	// IDSeed is the first workspace id; derived from the library name
	// when zero.
	IDSeed uint64
}

// IndentSpaces returns an indent unit of n spaces, or a tab when n is zero.
func IndentSpaces(n int) string {
	if n <= 0 {
		return "\t"
	}
	return strings.Repeat(" ", n)
}

type writer struct {
	b    strings.Builder
	unit string
	ids  *IDCounter
}

func (w *writer) ind(level int) string {
	return strings.Repeat(w.unit, level)
}

func (w *writer) line(level int, s string) {
	w.b.WriteString(w.ind(level))
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
	"'", "&apos;",
)

func esc(s string) string { return escaper.Replace(s) }

// cdata wraps s in a CDATA section, splitting any "]]>" it contains.
func cdata(s string) string {
	return "<![CDATA[" + strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>") + "]]>"
}

// Write renders lib and returns the next unused workspace id. Nothing is
// written when the library cannot be represented.
func Write(out io.Writer, lib *plc.Library, opts Options) (uint64, error) {
	w := &writer{unit: opts.Indent}
	if w.unit == "" {
		w.unit = "\t"
	}
	seed := opts.IDSeed
	if seed == 0 {
		seed = SeedFor(lib.Name)
	}
	w.ids = NewIDCounter(seed)

	schema := opts.SchemaVersion
	if schema == (SchemaVersion{}) {
		schema = DefaultSchemaVersion
	}

	if err := w.library(lib, schema, opts); err != nil {
		return 0, err
	}
	if _, err := io.WriteString(out, w.b.String()); err != nil {
		return 0, errors.WrapIO(err, "failed to write library descriptor")
	}
	return w.ids.Peek(), nil
}

func (w *writer) library(lib *plc.Library, schema SchemaVersion, opts Options) error {
	w.line(0, `<?xml version="1.0" encoding="UTF-8" standalone="no"?>`)
	w.line(0, `<plcLibrary schemaVersion="`+schema.String()+`">`)
	w.line(1, `<lib version="`+esc(lib.Version)+`" name="`+esc(lib.Name)+`" fullXml="true">`)

	author := opts.Author
	if author == "" {
		author = lib.Author
	}
	comment := `<!-- author="` + esc(author) + `"`
	if !opts.NoTimestamp {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		comment += ` date="` + now().Format(TimestampLayout) + `"`
	}
	w.line(2, comment+" -->")
	w.line(2, "<descr>"+esc(lib.Descr)+"</descr>")
	w.line(2, "<!--")
	for _, c := range lib.Counts() {
		w.line(3, c.Key+": "+strconv.Itoa(c.Value))
	}
	w.line(2, "-->")

	w.workspace(lib)

	sets := []struct {
		tag    string
		varTag string
		groups []plc.Group
	}{
		{"globalVars", "var", lib.Variables},
		{"retainVars", "var", lib.RetainVars},
		{"constantVars", "const", lib.Constants},
	}
	for _, set := range sets {
		if err := w.globals(set.tag, set.varTag, set.groups); err != nil {
			return err
		}
	}

	if lib.HasNamedGroup(plc.SetConstants) || lib.HasNamedGroup(plc.SetRetain) || lib.HasNamedGroup(plc.SetVariables) {
		w.line(2, "<iecVarsDeclaration>")
		for _, groups := range [][]plc.Group{lib.Constants, lib.RetainVars, lib.Variables} {
			for _, g := range groups {
				if g.Name == "" || len(g.Variables) == 0 {
					continue
				}
				w.line(3, `<group name="`+esc(g.Name)+`">`)
				w.line(4, `<iecDeclaration active="FALSE"/>`)
				w.line(3, "</group>")
			}
		}
		w.line(2, "</iecVarsDeclaration>")
	}

	sections := []struct {
		tag   string
		decls []plc.Declaration
	}{
		{"functions", declsOf(lib.Functions)},
		{"functionBlocks", declsOf(lib.FunctionBlocks)},
		{"programs", declsOf(lib.Programs)},
		{"macros", declsOf(lib.Macros)},
		{"structs", declsOf(lib.Structs)},
		{"typedefs", declsOf(lib.Typedefs)},
		{"enums", declsOf(lib.Enums)},
		{"subranges", declsOf(lib.Subranges)},
	}
	for _, sect := range sections {
		if err := w.section(sect.tag, sect.decls); err != nil {
			return err
		}
	}
	w.line(2, "<interfaces/>")

	w.line(1, "</lib>")
	w.line(0, "</plcLibrary>")
	return nil
}

func (w *writer) section(tag string, decls []plc.Declaration) error {
	if len(decls) == 0 {
		w.line(2, "<"+tag+"/>")
		return nil
	}
	w.line(2, "<"+tag+">")
	for _, d := range decls {
		if err := w.decl(d); err != nil {
			return err
		}
	}
	w.line(2, "</"+tag+">")
	return nil
}

func declsOf[T plc.Declaration](list []T) []plc.Declaration {
	out := make([]plc.Declaration, len(list))
	for i, d := range list {
		out[i] = d
	}
	return out
}

// decl renders one element of a declaration section.
func (w *writer) decl(d plc.Declaration) error {
	switch v := d.(type) {
	case plc.POU:
		return w.pou(v)
	case plc.Macro:
		w.macro(v)
	case plc.Struct:
		return w.structType(v)
	case plc.Typedef:
		return w.typedef(v)
	case plc.Enum:
		w.enum(v)
	case plc.Subrange:
		w.subrange(v)
	default:
		return errors.NewInternalError(errors.CodeUnsupportedInput,
			fmt.Sprintf("plclib cannot write %s %q", d.DeclKind(), d.DeclName()), nil)
	}
	return nil
}

func (w *writer) member(tag, name string) {
	w.line(4, "<"+tag+` name="`+esc(name)+`" id="`+strconv.FormatUint(w.ids.Next(), 10)+`"/>`)
}

func (w *writer) workspace(lib *plc.Library) {
	w.line(2, "<libWorkspace>")
	w.line(3, `<folder name="`+esc(lib.Name)+`" id="`+strconv.FormatUint(w.ids.Next(), 10)+`">`)
	for _, groups := range [][]plc.Group{lib.Constants, lib.RetainVars, lib.Variables} {
		for _, g := range groups {
			if g.Name != "" && len(g.Variables) > 0 {
				w.member("GlobalVars", g.Name)
			}
		}
	}
	for _, pous := range [][]plc.POU{lib.FunctionBlocks, lib.Functions, lib.Programs} {
		for _, p := range pous {
			w.member("Pou", p.Name)
		}
	}
	for _, m := range lib.Macros {
		w.member("Definition", m.Name)
	}
	for _, s := range lib.Structs {
		w.member("Definition", s.Name)
	}
	for _, t := range lib.Typedefs {
		w.member("Definition", t.Name)
	}
	for _, e := range lib.Enums {
		w.member("Definition", e.Name)
	}
	for _, s := range lib.Subranges {
		w.member("Definition", s.Name)
	}
	w.line(3, "</folder>")
	w.line(2, "</libWorkspace>")
}

func (w *writer) globals(tag, varTag string, groups []plc.Group) error {
	empty := true
	for _, g := range groups {
		if len(g.Variables) > 0 {
			empty = false
		}
	}
	if empty {
		w.line(2, "<"+tag+"/>")
		return nil
	}
	w.line(2, "<"+tag+">")
	for _, g := range groups {
		if len(g.Variables) == 0 {
			continue
		}
		version := g.Version
		if version == "" {
			version = plc.DefaultGroupVersion
		}
		exclude := "FALSE"
		if g.ExcludeFromBuild {
			exclude = "TRUE"
		}
		w.line(3, `<group name="`+esc(g.Name)+`" excludeFromBuild="`+exclude+
			`" excludeFromBuildIfNotDef="`+esc(g.ExcludeIfNotDef)+`" version="`+esc(version)+`">`)
		for _, v := range g.Variables {
			if err := w.variable(v, varTag, 4); err != nil {
				return err
			}
		}
		w.line(3, "</group>")
	}
	w.line(2, "</"+tag+">")
	return nil
}

// typeAttrs renders the type, length and dimN attributes.
func typeAttrs(owner string, t plc.Type) (string, error) {
	s := ` type="` + esc(t.Name) + `"`
	if t.HasLength() {
		s += ` length="` + strconv.Itoa(t.Length) + `"`
	}
	for i, d := range t.Dims {
		if d.First != 0 {
			return "", errors.NewValidationError(errors.CodeUnsupportedArray,
				fmt.Sprintf("plclib doesn't support arrays with a not null start index in %s", owner))
		}
		s += fmt.Sprintf(` dim%d="%d"`, i, d.Size())
	}
	return s, nil
}

func (w *writer) variable(v plc.Variable, tag string, level int) error {
	attrs, err := typeAttrs("variable "+v.Name, v.Type)
	if err != nil {
		return err
	}
	open := "<" + tag + ` name="` + esc(v.Name) + `"` + attrs
	if v.Descr == "" && v.Value == "" && v.Address == nil {
		w.line(level, open+"/>")
		return nil
	}
	w.line(level, open+">")
	if v.Descr != "" {
		w.line(level+1, "<descr>"+esc(v.Descr)+"</descr>")
	}
	if v.Value != "" {
		w.line(level+1, "<initValue>"+esc(v.Value)+"</initValue>")
	}
	if a := v.Address; a != nil {
		w.line(level+1, fmt.Sprintf(`<address type="%c" typeVar="%c" index="%d" subIndex="%d"/>`,
			a.Zone, a.TypeVar, a.Index, a.SubIndex))
	}
	w.line(level, "</"+tag+">")
	return nil
}

var roleTags = map[plc.Role]string{
	plc.RoleInOut:      "inoutVars",
	plc.RoleInput:      "inputVars",
	plc.RoleOutput:     "outputVars",
	plc.RoleExternal:   "externalVars",
	plc.RoleLocal:      "localVars",
	plc.RoleLocalConst: "localConsts",
}

var pouTags = map[plc.Kind]string{
	plc.KindFunction:      "function",
	plc.KindFunctionBlock: "functionBlock",
	plc.KindProgram:       "program",
}

func (w *writer) pou(pou plc.POU) error {
	tag, ok := pouTags[pou.Kind]
	if !ok {
		return errors.NewInternalError(errors.CodeUnsupportedInput,
			fmt.Sprintf("plclib cannot write %s %q as a POU", pou.Kind, pou.Name), nil)
	}
	w.line(3, "<"+tag+` name="`+esc(pou.Name)+
		`" version="1.0.0" creationDate="0" lastModifiedDate="0" excludeFromBuild="FALSE" excludeFromBuildIfNotDef="">`)
	if pou.Descr != "" {
		w.line(4, "<descr>"+esc(pou.Descr)+"</descr>")
	}
	if pou.ReturnType != "" {
		w.line(4, "<returnValue>"+esc(pou.ReturnType)+"</returnValue>")
	}

	if !pou.HasVars() {
		w.line(4, "<vars/>")
	} else {
		w.line(4, "<vars>")
		for _, role := range plc.Roles {
			vars := pou.Vars(role)
			if len(vars) == 0 {
				continue
			}
			varTag := "var"
			if role == plc.RoleLocalConst {
				varTag = "const"
			}
			w.line(5, "<"+roleTags[role]+">")
			for _, v := range vars {
				if err := w.variable(v, varTag, 6); err != nil {
					return err
				}
			}
			w.line(5, "</"+roleTags[role]+">")
		}
		w.line(4, "</vars>")
	}

	w.line(4, `<iecDeclaration active="FALSE"/>`)
	if pou.Kind == plc.KindFunctionBlock {
		w.line(4, "<interfaces/>")
		w.line(4, "<methods/>")
	}
	w.sourceCode(pou.CodeType, pou.Body)
	w.line(3, "</"+tag+">")
	return nil
}

func (w *writer) sourceCode(codeType, body string) {
	w.line(4, `<sourceCode type="`+esc(codeType)+`">`)
	w.line(5, cdata(body))
	w.line(4, "</sourceCode>")
}

func (w *writer) macro(m plc.Macro) {
	w.line(3, `<macro name="`+esc(m.Name)+`">`)
	if m.Descr != "" {
		w.line(4, "<descr>"+esc(m.Descr)+"</descr>")
	}
	w.sourceCode(m.CodeType, m.Body)
	if len(m.Params) == 0 {
		w.line(4, "<parameters/>")
	} else {
		w.line(4, "<parameters>")
		for _, par := range m.Params {
			w.line(5, `<parameter name="`+esc(par.Name)+`">`)
			w.line(6, "<descr>"+esc(par.Descr)+"</descr>")
			w.line(5, "</parameter>")
		}
		w.line(4, "</parameters>")
	}
	w.line(3, "</macro>")
}

func (w *writer) structType(s plc.Struct) error {
	w.line(3, `<struct name="`+esc(s.Name)+`" version="1.0.0">`)
	w.line(4, "<descr>"+esc(s.Descr)+"</descr>")
	if len(s.Members) == 0 {
		w.line(4, "<vars/>")
	} else {
		w.line(4, "<vars>")
		for _, m := range s.Members {
			attrs, err := typeAttrs("member "+m.Name+" of struct "+s.Name, m.Type)
			if err != nil {
				return err
			}
			w.line(5, `<var name="`+esc(m.Name)+`"`+attrs+">")
			w.line(6, "<descr>"+esc(m.Descr)+"</descr>")
			if m.Value != "" {
				w.line(6, "<initValue>"+esc(m.Value)+"</initValue>")
			}
			w.line(5, "</var>")
		}
		w.line(4, "</vars>")
	}
	w.line(4, `<iecDeclaration active="FALSE"/>`)
	w.line(3, "</struct>")
	return nil
}

func (w *writer) typedef(t plc.Typedef) error {
	attrs, err := typeAttrs("typedef "+t.Name, t.Type)
	if err != nil {
		return err
	}
	w.line(3, `<typedef name="`+esc(t.Name)+`"`+attrs+">")
	w.line(4, `<iecDeclaration active="FALSE"/>`)
	w.line(4, "<descr>"+esc(t.Descr)+"</descr>")
	w.line(3, "</typedef>")
	return nil
}

func (w *writer) enum(e plc.Enum) {
	w.line(3, `<enum name="`+esc(e.Name)+`" version="1.0.0">`)
	w.line(4, "<descr>"+esc(e.Descr)+"</descr>")
	w.line(4, "<elements>")
	for _, el := range e.Elements {
		w.line(5, `<element name="`+esc(el.Name)+`">`)
		w.line(6, "<descr>"+esc(el.Descr)+"</descr>")
		w.line(6, "<value>"+esc(el.Value)+"</value>")
		w.line(5, "</element>")
	}
	w.line(4, "</elements>")
	w.line(4, `<iecDeclaration active="FALSE"/>`)
	w.line(3, "</enum>")
}

func (w *writer) subrange(s plc.Subrange) {
	w.line(3, `<subrange name="`+esc(s.Name)+`" version="1.0.0" type="`+esc(s.Type)+`">`)
	w.line(4, "<descr>"+esc(s.Descr)+"</descr>")
	w.line(4, "<minValue>"+strconv.FormatInt(s.Min, 10)+"</minValue>")
	w.line(4, "<maxValue>"+strconv.FormatInt(s.Max, 10)+"</maxValue>")
	w.line(4, `<iecDeclaration active="FALSE"/>`)
	w.line(3, "</subrange>")
}
