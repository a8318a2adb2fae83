// Package plc holds the in-memory declaration model shared by the parsers
// and writers: a Library of global variable groups, program organization
// units, macros and user data types.
//
// Names are case-sensitive and unique within their scope; every Add method
// rejects a collision with a DUPLICATE_SYMBOL error. Insertion order is
// preserved and is observable in generated output.
package plc

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates the declaration variants.
type Kind int

const (
	KindVariable Kind = iota
	KindConstant
	KindFunction
	KindFunctionBlock
	KindProgram
	KindMacro
	KindStruct
	KindTypedef
	KindEnum
	KindSubrange
)

// String returns the kind as written in reports.
func (k Kind) String() string {
	switch k {
	case KindVariable:
		return "variable"
	case KindConstant:
		return "constant"
	case KindFunction:
		return "function"
	case KindFunctionBlock:
		return "function_block"
	case KindProgram:
		return "program"
	case KindMacro:
		return "macro"
	case KindStruct:
		return "struct"
	case KindTypedef:
		return "typedef"
	case KindEnum:
		return "enum"
	case KindSubrange:
		return "subrange"
	default:
		return "unknown"
	}
}

// Declaration is implemented only by the types of this package.
type Declaration interface {
	DeclName() string
	DeclKind() Kind
	declaration()
}

// Address is a located memory address such as %MB300.6000.
type Address struct {
	Zone     byte
	TypeVar  byte
	Index    uint16
	SubIndex uint16
}

// String renders the address without the AT keyword.
func (a Address) String() string {
	return fmt.Sprintf("%%%c%c%d.%d", a.Zone, a.TypeVar, a.Index, a.SubIndex)
}

// Range is one array dimension, both bounds inclusive.
type Range struct {
	First int
	Last  int
}

// Size is the number of elements in the dimension.
func (r Range) Size() int {
	return r.Last - r.First + 1
}

// Type is a data type reference with optional string length and array
// dimensions.
type Type struct {
	Name   string
	Length int
	Dims   []Range
}

// HasLength reports a sized type such as STRING[ 80 ].
func (t Type) HasLength() bool { return t.Length > 0 }

// IsArray reports whether the type has array dimensions.
func (t Type) IsArray() bool { return len(t.Dims) > 0 }

// String renders the type the way it is declared in PLC source.
func (t Type) String() string {
	var sb strings.Builder
	if t.IsArray() {
		sb.WriteString("ARRAY[ ")
		for i, d := range t.Dims {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Itoa(d.First))
			sb.WriteString("..")
			sb.WriteString(strconv.Itoa(d.Last))
		}
		sb.WriteString(" ] OF ")
	}
	sb.WriteString(t.Name)
	if t.HasLength() {
		sb.WriteString("[ ")
		sb.WriteString(strconv.Itoa(t.Length))
		sb.WriteString(" ]")
	}
	return sb.String()
}

func (t Type) validate(owner string) error {
	if t.Name == "" {
		return invalid("empty type name in %q", owner)
	}
	if t.Length != 0 && t.Length <= 1 {
		return invalid("invalid length %d of %q", t.Length, owner)
	}
	for _, d := range t.Dims {
		if d.First < 0 || d.Last <= d.First {
			return invalid("invalid array range %d..%d of %q", d.First, d.Last, owner)
		}
	}
	return nil
}

// Variable is a variable or constant declaration.
type Variable struct {
	Name     string
	Type     Type
	Value    string
	Descr    string
	Address  *Address
	Constant bool
}

func (v Variable) DeclName() string { return v.Name }

func (v Variable) DeclKind() Kind {
	if v.Constant {
		return KindConstant
	}
	return KindVariable
}

func (Variable) declaration() {}

// HasAddress reports a located variable.
func (v Variable) HasAddress() bool { return v.Address != nil }

func (v Variable) validate() error {
	if v.Name == "" {
		return invalid("empty variable name")
	}
	return v.Type.validate(v.Name)
}

// DefaultGroupVersion is the version tag of groups created by the parsers.
const DefaultGroupVersion = "1.0.0"

// Group is a named, ordered collection of global variables or constants.
// The unnamed group collects declarations that precede any group tag.
type Group struct {
	Name             string
	Version          string
	ExcludeFromBuild bool
	ExcludeIfNotDef  string
	Variables        []Variable
}

// NewGroup returns an empty group with the default version tag.
func NewGroup(name string) Group {
	return Group{Name: name, Version: DefaultGroupVersion}
}

// ReservedTextChars cannot appear in a description or group name, which
// are written as quoted directive values.
const ReservedTextChars = "\"<>"

var textReplacer = strings.NewReplacer(`"`, "'", "<", "(", ">", ")")

// CleanText replaces the reserved characters of s with look-alikes and
// reports whether any was found.
func CleanText(s string) (string, bool) {
	if !strings.ContainsAny(s, ReservedTextChars) {
		return s, false
	}
	return textReplacer.Replace(s), true
}
