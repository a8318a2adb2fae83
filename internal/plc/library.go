package plc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conneroisu/plctool/internal/errors"
)

// GlobalSet selects one of the three kinds of global groups.
type GlobalSet int

const (
	SetVariables GlobalSet = iota
	SetRetain
	SetConstants
)

type scope int

const (
	scopeGlobal scope = iota
	scopePOU
	scopeType
	scopeMacro
)

var scopeNames = map[scope]string{
	scopeGlobal: "global",
	scopePOU:    "POU",
	scopeType:   "data type",
	scopeMacro:  "macro",
}

// Library is the declaration model of one PLC library.
type Library struct {
	Name    string
	Version string
	Descr   string
	Author  string

	// DeclaredCounts holds the per-kind counts read from a heading
	// comment. They are advisory and never checked.
	DeclaredCounts map[string]int

	Variables  []Group
	RetainVars []Group
	Constants  []Group

	Functions      []POU
	FunctionBlocks []POU
	Programs       []POU
	Macros         []Macro
	Structs        []Struct
	Typedefs       []Typedef
	Enums          []Enum
	Subranges      []Subrange

	names   map[scope]map[string]struct{}
	indexed int
}

// NewLibrary returns an empty library.
func NewLibrary(name string) *Library {
	return &Library{Name: name}
}

// index returns the names per scope. It is rebuilt whenever the exported
// lists hold a different number of declarations than it covers.
func (l *Library) index() map[scope]map[string]struct{} {
	if l.names == nil || l.indexed != l.declCount() {
		l.names, _ = l.buildIndex()
	}
	return l.names
}

// buildIndex collects every declared name and returns the first collision.
func (l *Library) buildIndex() (map[scope]map[string]struct{}, error) {
	names := map[scope]map[string]struct{}{
		scopeGlobal: {}, scopePOU: {}, scopeType: {}, scopeMacro: {},
	}
	var dup error
	add := func(s scope, kind, name string) {
		if _, taken := names[s][name]; taken && dup == nil {
			dup = duplicate(scopeNames[s]+" "+kind, name)
		}
		names[s][name] = struct{}{}
	}
	for _, groups := range [][]Group{l.Variables, l.RetainVars, l.Constants} {
		for _, g := range groups {
			for _, v := range g.Variables {
				add(scopeGlobal, "variable", v.Name)
			}
		}
	}
	for _, pous := range [][]POU{l.Functions, l.FunctionBlocks, l.Programs} {
		for _, p := range pous {
			add(scopePOU, p.Kind.String(), p.Name)
		}
	}
	for _, m := range l.Macros {
		add(scopeMacro, "macro", m.Name)
	}
	for _, d := range l.DataTypes() {
		add(scopeType, d.DeclKind().String(), d.DeclName())
	}
	l.indexed = l.declCount()
	return names, dup
}

func (l *Library) declCount() int {
	n := l.CountVariables(SetVariables) + l.CountVariables(SetRetain) + l.CountVariables(SetConstants)
	return n + len(l.Functions) + len(l.FunctionBlocks) + len(l.Programs) + len(l.Macros) +
		len(l.Structs) + len(l.Typedefs) + len(l.Enums) + len(l.Subranges)
}

func (l *Library) claim(s scope, kind, name string) error {
	if name == "" {
		return invalid("empty %s name", kind)
	}
	names := l.index()[s]
	if _, taken := names[name]; taken {
		return duplicate(scopeNames[s]+" "+kind, name)
	}
	names[name] = struct{}{}
	l.indexed++
	return nil
}

func (l *Library) groups(set GlobalSet) *[]Group {
	switch set {
	case SetRetain:
		return &l.RetainVars
	case SetConstants:
		return &l.Constants
	default:
		return &l.Variables
	}
}

// Groups returns the groups of a global set.
func (l *Library) Groups(set GlobalSet) []Group {
	return *l.groups(set)
}

// OpenGroup appends a new, empty group to set; subsequent AddGlobal calls
// fill it.
func (l *Library) OpenGroup(set GlobalSet, name string) {
	groups := l.groups(set)
	*groups = append(*groups, NewGroup(name))
}

// AddGlobal appends v to the last group of set, opening an unnamed group
// when the set has none.
func (l *Library) AddGlobal(set GlobalSet, v Variable) error {
	if err := v.validate(); err != nil {
		return err
	}
	if set == SetConstants && v.Value == "" {
		return invalid("global constant %q has no value", v.Name)
	}
	if err := l.claim(scopeGlobal, "variable", v.Name); err != nil {
		return err
	}
	v.Constant = set == SetConstants
	groups := l.groups(set)
	if len(*groups) == 0 {
		*groups = append(*groups, NewGroup(""))
	}
	last := &(*groups)[len(*groups)-1]
	last.Variables = append(last.Variables, v)
	return nil
}

// AddToGroup appends v to the named group of set, creating the group at the
// end when it does not exist yet.
func (l *Library) AddToGroup(set GlobalSet, group string, v Variable) error {
	groups := l.groups(set)
	for i := range *groups {
		if (*groups)[i].Name == group {
			if err := l.claimGlobal(set, v); err != nil {
				return err
			}
			v.Constant = set == SetConstants
			(*groups)[i].Variables = append((*groups)[i].Variables, v)
			return nil
		}
	}
	if err := l.claimGlobal(set, v); err != nil {
		return err
	}
	v.Constant = set == SetConstants
	g := NewGroup(group)
	g.Variables = append(g.Variables, v)
	*groups = append(*groups, g)
	return nil
}

// AddVariable adds a global variable to the named group.
func (l *Library) AddVariable(group string, v Variable) error {
	return l.AddToGroup(SetVariables, group, v)
}

// AddConstant adds a global constant to the named group.
func (l *Library) AddConstant(group string, v Variable) error {
	return l.AddToGroup(SetConstants, group, v)
}

// AddRetainVariable adds a retain variable to the named group.
func (l *Library) AddRetainVariable(group string, v Variable) error {
	return l.AddToGroup(SetRetain, group, v)
}

func (l *Library) claimGlobal(set GlobalSet, v Variable) error {
	if err := v.validate(); err != nil {
		return err
	}
	if set == SetConstants && v.Value == "" {
		return invalid("global constant %q has no value", v.Name)
	}
	return l.claim(scopeGlobal, "variable", v.Name)
}

// AddPOU appends a function, function block or program according to its
// Kind.
func (l *Library) AddPOU(p POU) error {
	var list *[]POU
	switch p.Kind {
	case KindFunction:
		list = &l.Functions
	case KindFunctionBlock:
		list = &l.FunctionBlocks
	case KindProgram:
		list = &l.Programs
	default:
		return invalid("%q is a %s, not a POU", p.Name, p.Kind)
	}
	if err := l.claim(scopePOU, p.Kind.String(), p.Name); err != nil {
		return err
	}
	*list = append(*list, p)
	return nil
}

// AddMacro appends a macro.
func (l *Library) AddMacro(m Macro) error {
	if err := l.claim(scopeMacro, "macro", m.Name); err != nil {
		return err
	}
	l.Macros = append(l.Macros, m)
	return nil
}

// AddStruct appends a struct.
func (l *Library) AddStruct(s Struct) error {
	if err := l.claim(scopeType, "struct", s.Name); err != nil {
		return err
	}
	l.Structs = append(l.Structs, s)
	return nil
}

// AddTypedef appends a typedef.
func (l *Library) AddTypedef(t Typedef) error {
	if err := t.Type.validate(t.Name); err != nil {
		return err
	}
	if err := l.claim(scopeType, "typedef", t.Name); err != nil {
		return err
	}
	l.Typedefs = append(l.Typedefs, t)
	return nil
}

// AddEnum appends an enum.
func (l *Library) AddEnum(e Enum) error {
	if err := l.claim(scopeType, "enum", e.Name); err != nil {
		return err
	}
	l.Enums = append(l.Enums, e)
	return nil
}

// AddSubrange appends a subrange.
func (l *Library) AddSubrange(s Subrange) error {
	if s.Type == "" {
		return invalid("empty type of subrange %q", s.Name)
	}
	if s.Min > s.Max {
		return invalid("invalid range %d..%d of subrange %q", s.Min, s.Max, s.Name)
	}
	if err := l.claim(scopeType, "subrange", s.Name); err != nil {
		return err
	}
	l.Subranges = append(l.Subranges, s)
	return nil
}

// Add dispatches d to the matching Add method.
func (l *Library) Add(d Declaration) error {
	switch v := d.(type) {
	case Variable:
		if v.Constant {
			return l.AddGlobal(SetConstants, v)
		}
		return l.AddGlobal(SetVariables, v)
	case POU:
		return l.AddPOU(v)
	case Macro:
		return l.AddMacro(v)
	case Struct:
		return l.AddStruct(v)
	case Typedef:
		return l.AddTypedef(v)
	case Enum:
		return l.AddEnum(v)
	case Subrange:
		return l.AddSubrange(v)
	default:
		return invalid("unsupported declaration %T", d)
	}
}

// DataTypes returns the user data types in writer order.
func (l *Library) DataTypes() []Declaration {
	out := make([]Declaration, 0, len(l.Enums)+len(l.Typedefs)+len(l.Structs)+len(l.Subranges))
	for _, d := range l.Enums {
		out = append(out, d)
	}
	for _, d := range l.Typedefs {
		out = append(out, d)
	}
	for _, d := range l.Structs {
		out = append(out, d)
	}
	for _, d := range l.Subranges {
		out = append(out, d)
	}
	return out
}

// CountVariables returns the number of declarations across the groups of set.
func (l *Library) CountVariables(set GlobalSet) int {
	n := 0
	for _, g := range l.Groups(set) {
		n += len(g.Variables)
	}
	return n
}

// HasNamedGroup reports whether set has a named, non-empty group.
func (l *Library) HasNamedGroup(set GlobalSet) bool {
	for _, g := range l.Groups(set) {
		if g.Name != "" && len(g.Variables) > 0 {
			return true
		}
	}
	return false
}

// Count is one line of a content summary.
type Count struct {
	Key   string
	Value int
}

// Counts returns the non-zero per-kind counts in the order written to
// heading comments.
func (l *Library) Counts() []Count {
	all := []Count{
		{"global-variables", l.CountVariables(SetVariables)},
		{"global-constants", l.CountVariables(SetConstants)},
		{"global-retain-vars", l.CountVariables(SetRetain)},
		{"functions", len(l.Functions)},
		{"function blocks", len(l.FunctionBlocks)},
		{"programs", len(l.Programs)},
		{"macros", len(l.Macros)},
		{"structs", len(l.Structs)},
		{"typedefs", len(l.Typedefs)},
		{"enums", len(l.Enums)},
		{"subranges", len(l.Subranges)},
	}
	out := all[:0]
	for _, c := range all {
		if c.Value > 0 {
			out = append(out, c)
		}
	}
	return out
}

// IsEmpty reports a library without any declaration.
func (l *Library) IsEmpty() bool {
	return len(l.Counts()) == 0
}

// Summary is a one-line description used in logs.
func (l *Library) Summary() string {
	counts := l.Counts()
	if len(counts) == 0 {
		return fmt.Sprintf("library %q, empty", l.Name)
	}
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%d %s", c.Value, c.Key))
	}
	return fmt.Sprintf("library %q, %s", l.Name, strings.Join(parts, ", "))
}

// Validate checks the coherence rules that single Add calls cannot see,
// including name collisions among declarations appended to the lists
// directly.
func (l *Library) Validate() error {
	names, err := l.buildIndex()
	if err != nil {
		return err
	}
	l.names = names
	for _, g := range l.Constants {
		for _, v := range g.Variables {
			if v.Value == "" {
				return incoherent("global constant %q has no value", v.Name)
			}
		}
	}
	for i := range l.Functions {
		f := &l.Functions[i]
		switch {
		case f.ReturnType == "":
			return incoherent("function %q has no return type", f.Name)
		case len(f.Outputs) > 0:
			return incoherent("function %q cannot have output variables", f.Name)
		case len(f.InOuts) > 0:
			return incoherent("function %q cannot have in-out variables", f.Name)
		case len(f.Externals) > 0:
			return incoherent("function %q cannot have external variables", f.Name)
		}
	}
	for i := range l.Programs {
		p := &l.Programs[i]
		switch {
		case p.ReturnType != "":
			return incoherent("program %q cannot have a return type", p.Name)
		case len(p.Inputs) > 0:
			return incoherent("program %q cannot have input variables", p.Name)
		case len(p.Outputs) > 0:
			return incoherent("program %q cannot have output variables", p.Name)
		case len(p.InOuts) > 0:
			return incoherent("program %q cannot have in-out variables", p.Name)
		case len(p.Externals) > 0:
			return incoherent("program %q cannot have external variables", p.Name)
		}
	}
	return nil
}

// Sort orders groups, their variables and every declaration list by name.
func (l *Library) Sort() {
	for _, groups := range []*[]Group{&l.Variables, &l.RetainVars, &l.Constants} {
		sort.SliceStable(*groups, func(i, j int) bool { return (*groups)[i].Name < (*groups)[j].Name })
		for k := range *groups {
			vars := (*groups)[k].Variables
			sort.SliceStable(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
		}
	}
	for _, pous := range []*[]POU{&l.Functions, &l.FunctionBlocks, &l.Programs} {
		list := *pous
		sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	}
	sort.SliceStable(l.Macros, func(i, j int) bool { return l.Macros[i].Name < l.Macros[j].Name })
	sort.SliceStable(l.Structs, func(i, j int) bool { return l.Structs[i].Name < l.Structs[j].Name })
	sort.SliceStable(l.Typedefs, func(i, j int) bool { return l.Typedefs[i].Name < l.Typedefs[j].Name })
	sort.SliceStable(l.Enums, func(i, j int) bool { return l.Enums[i].Name < l.Enums[j].Name })
	sort.SliceStable(l.Subranges, func(i, j int) bool { return l.Subranges[i].Name < l.Subranges[j].Name })
}

func duplicate(scope, name string) error {
	return errors.NewDuplicateError(scope, name)
}

func invalid(format string, args ...interface{}) error {
	return errors.NewValidationError(errors.CodeParse, fmt.Sprintf(format, args...))
}

func incoherent(format string, args ...interface{}) error {
	return errors.NewValidationError(errors.CodeIncoherent, fmt.Sprintf(format, args...))
}
