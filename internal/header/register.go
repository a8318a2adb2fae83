package header

import (
	"strconv"

	"github.com/conneroisu/plctool/internal/plc"
)

// RegisterKind identifies the register bank named by the second letter of a
// register token.
type RegisterKind byte

const (
	RegBool   RegisterKind = 'b'
	RegInt    RegisterKind = 'n'
	RegDint   RegisterKind = 'q'
	RegDouble RegisterKind = 'd'
	RegString RegisterKind = 'a'
)

// MaxRegister is the highest register number.
const MaxRegister = 9999

// StringRegisterLength is the declared length of string registers.
const StringRegisterLength = 80

type bank struct {
	iecType string
	typeVar byte
	index   uint16
	length  int
}

var banks = map[RegisterKind]bank{
	RegBool:   {"BOOL", 'B', 300, 0},
	RegInt:    {"INT", 'W', 400, 0},
	RegDint:   {"DINT", 'D', 500, 0},
	RegDouble: {"LREAL", 'L', 600, 0},
	RegString: {"STRING", 'B', 700, StringRegisterLength},
}

// Register is a parsed register token such as vq32.
type Register struct {
	Kind   RegisterKind
	Number uint16
}

// ParseRegister recognizes "v<b|n|q|d|a><0..9999>", case-insensitive.
func ParseRegister(s string) (Register, bool) {
	if len(s) < 3 || (s[0] != 'v' && s[0] != 'V') {
		return Register{}, false
	}
	kind := RegisterKind(lower(s[1]))
	if _, ok := banks[kind]; !ok {
		return Register{}, false
	}
	for i := 2; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Register{}, false
		}
	}
	n, err := strconv.Atoi(s[2:])
	if err != nil || n > MaxRegister {
		return Register{}, false
	}
	return Register{Kind: kind, Number: uint16(n)}, true
}

// Type returns the IEC type of the register bank.
func (r Register) Type() plc.Type {
	b := banks[r.Kind]
	return plc.Type{Name: b.iecType, Length: b.length}
}

// Address returns the located address of the register.
func (r Register) Address() plc.Address {
	b := banks[r.Kind]
	return plc.Address{Zone: 'M', TypeVar: b.typeVar, Index: b.index, SubIndex: r.Number}
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
