//go:build property

package pll

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/conneroisu/plctool/internal/errors"
	"github.com/conneroisu/plctool/internal/plc"
	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type varSpec struct {
	Name      string
	TypeIdx   int
	Length    int
	ArrayLast int
	HasAddr   bool
	Index     uint16
	Sub       uint16
	Descr     string
	Value     int64
}

var typeNames = []string{"BOOL", "INT", "DINT", "LREAL", "STRING"}

// genText yields printable ASCII, reserved directive characters included.
func genText() gopter.Gen {
	return gen.SliceOf(gen.RuneRange(' ', '~')).Map(func(r []rune) string {
		return string(r)
	})
}

func genVarSpec() gopter.Gen {
	return gen.Struct(reflect.TypeOf(varSpec{}), map[string]gopter.Gen{
		"Name":      gen.Identifier(),
		"TypeIdx":   gen.IntRange(0, len(typeNames)-1),
		"Length":    gen.IntRange(2, 255),
		"ArrayLast": gen.IntRange(0, 20),
		"HasAddr":   gen.Bool(),
		"Index":     gen.UInt16(),
		"Sub":       gen.UInt16(),
		"Descr":     genText(),
		"Value":     gen.Int64Range(-100000, 100000),
	})
}

func (s varSpec) descr() string {
	clean, _ := plc.CleanText(s.Descr)
	return clean
}

func (s varSpec) variable(i int, constant bool) plc.Variable {
	v := plc.Variable{
		Name:  fmt.Sprintf("%s_%d", s.Name, i),
		Type:  plc.Type{Name: typeNames[s.TypeIdx]},
		Descr: s.descr(),
	}
	if v.Type.Name == "STRING" {
		v.Type.Length = s.Length
	}
	if constant {
		v.Value = fmt.Sprint(s.Value)
		return v
	}
	if s.ArrayLast > 0 {
		v.Type.Dims = []plc.Range{{First: 0, Last: s.ArrayLast}}
	}
	if s.HasAddr {
		v.Address = &plc.Address{Zone: 'M', TypeVar: 'D', Index: s.Index, SubIndex: s.Sub}
	}
	return v
}

func buildLibrary(vars, consts []varSpec, descr string) (*plc.Library, error) {
	lib := plc.NewLibrary("generated")
	lib.Descr = descr
	lib.Version = "1.0.0"

	for i, s := range vars {
		if i > 0 && i%3 == 0 {
			lib.OpenGroup(plc.SetVariables, fmt.Sprintf("Grp%d", i/3))
		}
		if err := lib.AddGlobal(plc.SetVariables, s.variable(i, false)); err != nil {
			return nil, err
		}
	}
	for i, s := range consts {
		if err := lib.AddConstant("Limits", s.variable(len(vars)+i, true)); err != nil {
			return nil, err
		}
	}

	fb := plc.POU{Kind: plc.KindFunctionBlock, Name: "Block", Descr: descr, CodeType: "ST", Body: "\n" + descr + "\n"}
	for i, s := range vars {
		role := plc.Roles[i%len(plc.Roles)]
		v := s.variable(i, role == plc.RoleLocalConst)
		v.Address = nil
		if err := fb.AddVariable(role, v); err != nil {
			return nil, err
		}
	}
	if err := lib.AddPOU(fb); err != nil {
		return nil, err
	}

	enum := plc.Enum{Name: "Choice", Descr: descr}
	for i, s := range consts {
		if err := enum.AddElement(plc.Element{Name: fmt.Sprintf("E%d", i), Value: fmt.Sprint(s.Value), Descr: s.descr()}); err != nil {
			return nil, err
		}
	}
	if err := lib.AddEnum(enum); err != nil {
		return nil, err
	}

	st := plc.Struct{Name: "Record", Descr: descr}
	for i, s := range consts {
		if err := st.AddMember(s.variable(i, true)); err != nil {
			return nil, err
		}
	}
	if err := lib.AddStruct(st); err != nil {
		return nil, err
	}
	return lib, nil
}

func TestRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("parse(write(lib)) equals lib", prop.ForAll(
		func(vars, consts []varSpec, descr string) bool {
			lib, err := buildLibrary(vars, consts, descr)
			if err != nil {
				return false
			}
			var buf bytes.Buffer
			if err := Write(&buf, lib, WriteOptions{NoTimestamp: true}); err != nil {
				return false
			}
			again, err := Parse(buf.String(), Options{})
			if err != nil {
				t.Log(err)
				return false
			}
			if diff := cmp.Diff(lib, again, modelOptions); diff != "" {
				t.Log(diff)
				return false
			}
			return true
		},
		gen.SliceOf(genVarSpec()),
		gen.SliceOf(genVarSpec()),
		gen.AlphaString(),
	))

	properties.Property("reserved characters are never written", prop.ForAll(
		func(text string) bool {
			lib := plc.NewLibrary("generated")
			if err := lib.AddGlobal(plc.SetVariables, plc.Variable{Name: "v", Type: plc.Type{Name: "INT"}, Descr: text}); err != nil {
				return false
			}
			var buf bytes.Buffer
			err := Write(&buf, lib, WriteOptions{NoTimestamp: true})
			if !strings.ContainsAny(text, plc.ReservedTextChars) {
				return err == nil
			}
			return errors.HasCode(err, errors.CodeReservedText) && buf.Len() == 0
		},
		genText(),
	))

	properties.TestingRun(t)
}
