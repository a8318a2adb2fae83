package pll

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/plctool/internal/errors"
	"github.com/conneroisu/plctool/internal/plc"
)

// TimestampLayout is the layout of the date line in the heading.
const TimestampLayout = "2006-01-02 15:04:05"

const (
	sectionSpacer = "\n\n\n"
	blockSpacer   = "\n\n"
)

// WriteOptions controls the generated source.
type WriteOptions struct {
	// NoTimestamp omits the date line, making output reproducible.
	NoTimestamp bool
	// Now supplies the date; time.Now when nil.
	Now func() time.Time
	// Author overrides the library author in the heading.
	Author string
}

// Write renders lib as PLC library source. The output depends only on the
// model and the options. A description or group name holding one of
// plc.ReservedTextChars is rejected, since it could not be read back.
func Write(w io.Writer, lib *plc.Library, opts WriteOptions) error {
	if err := checkText(lib); err != nil {
		return err
	}
	var b strings.Builder
	writeHeading(&b, lib, opts)

	if lib.CountVariables(plc.SetVariables) > 0 || lib.CountVariables(plc.SetRetain) > 0 {
		b.WriteString(sectionSpacer)
		banner(&b, "GLOBAL VARIABLES", 5)
		b.WriteString(blockSpacer)
		b.WriteString("\tVAR_GLOBAL\n")
		writeGroups(&b, lib.Variables)
		writeGroups(&b, lib.RetainVars)
		b.WriteString("\tEND_VAR\n")
	}

	if lib.CountVariables(plc.SetConstants) > 0 {
		b.WriteString(sectionSpacer)
		banner(&b, "GLOBAL CONSTANTS", 5)
		b.WriteString(blockSpacer)
		b.WriteString("\tVAR_GLOBAL CONSTANT\n")
		writeGroups(&b, lib.Constants)
		b.WriteString("\tEND_VAR\n")
	}

	pouSections := []struct {
		title string
		pous  []plc.POU
	}{
		{"FUNCTIONS", lib.Functions},
		{"FUNCTION BLOCKS", lib.FunctionBlocks},
		{"PROGRAMS", lib.Programs},
	}
	for _, sect := range pouSections {
		if len(sect.pous) == 0 {
			continue
		}
		b.WriteString(sectionSpacer)
		banner(&b, sect.title, 5)
		for _, pou := range sect.pous {
			b.WriteString(blockSpacer)
			writeDecl(&b, pou)
		}
	}

	typeSections := []struct {
		title string
		decls []plc.Declaration
	}{
		{"ENUMS", declsOf(lib.Enums)},
		{"TYPEDEFS", declsOf(lib.Typedefs)},
		{"STRUCTS", declsOf(lib.Structs)},
		{"SUBRANGES", declsOf(lib.Subranges)},
	}
	for _, sect := range typeSections {
		if len(sect.decls) == 0 {
			continue
		}
		b.WriteString(sectionSpacer)
		banner(&b, sect.title, 5)
		b.WriteString(blockSpacer)
		b.WriteString("TYPE\n\n")
		for _, d := range sect.decls {
			writeDecl(&b, d)
		}
		b.WriteString("\nEND_TYPE\n")
	}

	if len(lib.Macros) > 0 {
		b.WriteString(sectionSpacer)
		banner(&b, "MACROS", 6)
		b.WriteString("\n")
		for _, m := range lib.Macros {
			b.WriteString(blockSpacer)
			writeDecl(&b, m)
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return errors.WrapIO(err, "failed to write library source")
	}
	return nil
}

// checkText finds the first quoted directive value that cannot be written.
func checkText(lib *plc.Library) error {
	type text struct{ owner, value string }
	var texts []text
	vars := func(owner string, list []plc.Variable) {
		for _, v := range list {
			texts = append(texts, text{owner + v.Name, v.Descr})
		}
	}
	for _, groups := range [][]plc.Group{lib.Variables, lib.RetainVars, lib.Constants} {
		for _, g := range groups {
			texts = append(texts, text{"group " + g.Name, g.Name})
			vars("variable ", g.Variables)
		}
	}
	for _, pous := range [][]plc.POU{lib.Functions, lib.FunctionBlocks, lib.Programs} {
		for i := range pous {
			pou := &pous[i]
			texts = append(texts, text{pou.Kind.String() + " " + pou.Name, pou.Descr})
			for _, role := range plc.Roles {
				vars("member of "+pou.Name+" ", pou.Vars(role))
			}
		}
	}
	for _, m := range lib.Macros {
		texts = append(texts, text{"macro " + m.Name, m.Descr})
		for _, par := range m.Params {
			texts = append(texts, text{"parameter " + par.Name + " of " + m.Name, par.Descr})
		}
	}
	for _, s := range lib.Structs {
		texts = append(texts, text{"struct " + s.Name, s.Descr})
		vars("member of "+s.Name+" ", s.Members)
	}
	for _, e := range lib.Enums {
		texts = append(texts, text{"enum " + e.Name, e.Descr})
		for _, el := range e.Elements {
			texts = append(texts, text{"element " + el.Name + " of " + e.Name, el.Descr})
		}
	}
	for _, t := range lib.Typedefs {
		texts = append(texts, text{"typedef " + t.Name, t.Descr})
	}
	for _, s := range lib.Subranges {
		texts = append(texts, text{"subrange " + s.Name, s.Descr})
	}

	for _, t := range texts {
		if strings.ContainsAny(t.value, plc.ReservedTextChars) {
			return errors.NewValidationError(errors.CodeReservedText,
				fmt.Sprintf("text of %s contains one of %s: %s", t.owner, plc.ReservedTextChars, t.value))
		}
	}
	return nil
}

func declsOf[T plc.Declaration](list []T) []plc.Declaration {
	out := make([]plc.Declaration, len(list))
	for i, d := range list {
		out[i] = d
	}
	return out
}

// writeDecl renders one declaration as it appears inside its section.
func writeDecl(b *strings.Builder, d plc.Declaration) {
	switch v := d.(type) {
	case plc.Variable:
		writeVariable(b, v)
	case plc.POU:
		writePOU(b, v)
	case plc.Macro:
		writeMacro(b, v)
	case plc.Enum:
		writeEnum(b, v)
	case plc.Typedef:
		writeTypedef(b, v)
	case plc.Struct:
		writeStruct(b, v)
	case plc.Subrange:
		writeSubrange(b, v)
	default:
		panic("pll: unhandled declaration " + d.DeclKind().String())
	}
}

func writeHeading(b *strings.Builder, lib *plc.Library, opts WriteOptions) {
	author := lib.Author
	if opts.Author != "" {
		author = opts.Author
	}
	b.WriteString("(*\n")
	b.WriteString("\tname: " + lib.Name + "\n")
	b.WriteString("\tdescr: " + lib.Descr + "\n")
	b.WriteString("\tversion: " + lib.Version + "\n")
	b.WriteString("\tauthor: " + author + "\n")
	if !opts.NoTimestamp {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		b.WriteString("\tdate: " + now().Format(TimestampLayout) + "\n\n")
	}
	for _, c := range lib.Counts() {
		b.WriteString("\t" + c.Key + ": " + strconv.Itoa(c.Value) + "\n")
	}
	b.WriteString("*)\n")
}

// banner writes a star box around title with margin spaces on each side.
func banner(b *strings.Builder, title string, margin int) {
	inner := len(title) + 2*margin
	stars := "\t(" + strings.Repeat("*", inner+2) + ")\n"
	blank := "\t(*" + strings.Repeat(" ", inner) + "*)\n"
	pad := strings.Repeat(" ", margin)
	b.WriteString(stars)
	b.WriteString(blank)
	b.WriteString("\t(*" + pad + title + pad + "*)\n")
	b.WriteString(blank)
	b.WriteString(stars)
}

func descr(text string) string {
	if text == "" {
		return ""
	}
	return " { DE:\"" + text + "\" }"
}

func writeGroups(b *strings.Builder, groups []plc.Group) {
	for _, g := range groups {
		if g.Name != "" {
			b.WriteString("\t{G:\"" + g.Name + "\"}\n")
		}
		for _, v := range g.Variables {
			writeDecl(b, v)
		}
	}
}

func writeVariable(b *strings.Builder, v plc.Variable) {
	writeMember(b, "\t", v)
}

func writeMember(b *strings.Builder, indent string, v plc.Variable) {
	b.WriteString(indent + v.Name)
	if v.Address != nil {
		b.WriteString(" AT " + v.Address.String())
	}
	b.WriteString(" : " + v.Type.String())
	if v.Value != "" {
		b.WriteString(" := " + v.Value)
	}
	b.WriteString(";" + descr(v.Descr) + "\n")
}

var blockNames = map[plc.Role]string{
	plc.RoleInOut:      "VAR_IN_OUT",
	plc.RoleInput:      "VAR_INPUT",
	plc.RoleOutput:     "VAR_OUTPUT",
	plc.RoleExternal:   "VAR_EXTERNAL",
	plc.RoleLocal:      "VAR",
	plc.RoleLocalConst: "VAR CONSTANT",
}

func writePOU(b *strings.Builder, pou plc.POU) {
	tag := pou.Tag()
	b.WriteString("\n" + tag + " " + pou.Name)
	if pou.ReturnType != "" {
		b.WriteString(" : " + pou.ReturnType)
	}
	b.WriteString("\n")

	if pou.Descr != "" {
		b.WriteString("\n{ DE:\"" + pou.Descr + "\" }\n")
	}

	for _, role := range plc.Roles {
		vars := pou.Vars(role)
		if len(vars) == 0 {
			continue
		}
		b.WriteString("\n\t" + blockNames[role] + "\n")
		for _, v := range vars {
			writeVariable(b, v)
		}
		b.WriteString("\tEND_VAR\n")
	}

	writeBody(b, pou.CodeType, pou.Body, "END_"+tag)
}

func writeBody(b *strings.Builder, codeType, body, endTag string) {
	b.WriteString("\n\t{ CODE:" + codeType + " }" + body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(endTag + "\n\n")
}

func writeMacro(b *strings.Builder, m plc.Macro) {
	b.WriteString("\nMACRO " + m.Name + "\n")
	if m.Descr != "" {
		b.WriteString("{ DE:\"" + m.Descr + "\" }\n")
	}
	if len(m.Params) > 0 {
		b.WriteString("\n\tPAR_MACRO\n")
		for _, par := range m.Params {
			b.WriteString("\t" + par.Name + ";" + descr(par.Descr) + "\n")
		}
		b.WriteString("\tEND_PAR\n")
	}
	writeBody(b, m.CodeType, m.Body, "END_MACRO")
}

func writeEnum(b *strings.Builder, e plc.Enum) {
	b.WriteString("\n\t" + e.Name + ": (\n")
	if e.Descr != "" {
		b.WriteString("\t\t{ DE:\"" + e.Descr + "\" }\n")
	}
	for i, el := range e.Elements {
		b.WriteString("\t\t" + el.Name + " := " + el.Value)
		if i < len(e.Elements)-1 {
			b.WriteString(",")
		}
		b.WriteString(descr(el.Descr) + "\n")
	}
	b.WriteString("\t);\n")
}

func writeTypedef(b *strings.Builder, t plc.Typedef) {
	b.WriteString("\t" + t.Name + " : " + t.Type.String() + ";" + descr(t.Descr) + "\n")
}

func writeStruct(b *strings.Builder, s plc.Struct) {
	b.WriteString("\t" + s.Name + " : STRUCT" + descr(s.Descr) + "\n")
	for _, m := range s.Members {
		writeMember(b, "\t\t", m)
	}
	b.WriteString("\tEND_STRUCT;\n\n")
}

func writeSubrange(b *strings.Builder, s plc.Subrange) {
	b.WriteString("\t" + s.Name + " : " + s.Type +
		" (" + strconv.FormatInt(s.Min, 10) + ".." + strconv.FormatInt(s.Max, 10) + ");" +
		descr(s.Descr) + "\n")
}
