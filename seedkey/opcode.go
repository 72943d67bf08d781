package seedkey

import (
	"fmt"
	"math/bits"
)

// Opcode identifies one of the primitive 16-bit transforms making up an
// algorithm record.
type Opcode byte

// These are the defined opcodes. The HL and LH suffixes record which operand
// byte supplies the high half of the 16-bit immediate; the orderings are not
// consistent between similarly named operations and tables depend on that.
const (
	ByteSwap    Opcode = 0x05
	AddHL       Opcode = 0x14
	Complement  Opcode = 0x2a
	AndLH       Opcode = 0x37
	RotateLeft  Opcode = 0x4c
	OrHL        Opcode = 0x52
	RotateRight Opcode = 0x6b
	AddLH       Opcode = 0x75
	SwapAdd     Opcode = 0x7e
	SubHL       Opcode = 0x98
	SubLH       Opcode = 0xf8
)

// An opcode of zero ends the record early, which is how unused trailing
// operation slots are padded.
const terminator Opcode = 0x00

//nolint:gochecknoglobals
var opcodeNames = map[Opcode]string{
	ByteSwap:    "ByteSwap",
	AddHL:       "AddHL",
	Complement:  "Complement",
	AndLH:       "AndLH",
	RotateLeft:  "RotateLeft",
	OrHL:        "OrHL",
	RotateRight: "RotateRight",
	AddLH:       "AddLH",
	SwapAdd:     "SwapAdd",
	SubHL:       "SubHL",
	SubLH:       "SubLH",
}

func (o Opcode) String() string {
	if s, ok := opcodeNames[o]; ok {
		return s
	}

	return fmt.Sprintf("Opcode(%#02x)", byte(o))
}

// Valid returns whether o is one of the defined opcodes.
func (o Opcode) Valid() bool {
	_, ok := opcodeNames[o]

	return ok
}

func immediate(high, low byte) uint16 {
	return uint16(high)<<8 | uint16(low)
}

// apply runs the transform on the accumulator v. All arithmetic wraps at 16
// bits. The second return value is false if o is not a defined opcode, in
// which case v is returned unchanged.
func (o Opcode) apply(v uint16, hh, ll byte) (uint16, bool) {
	switch o {
	case ByteSwap:
		return bits.ReverseBytes16(v), true
	case AddHL:
		return v + immediate(hh, ll), true
	case Complement:
		v = ^v
		if hh < ll {
			v++
		}

		return v, true
	case AndLH:
		return v & immediate(ll, hh), true
	case RotateLeft:
		return bits.RotateLeft16(v, int(hh&0x0f)), true
	case OrHL:
		return v | immediate(ll, hh), true
	case RotateRight:
		return bits.RotateLeft16(v, -int(ll&0x0f)), true
	case AddLH:
		return v + immediate(ll, hh), true
	case SwapAdd:
		if hh >= ll {
			return bits.ReverseBytes16(v) + immediate(hh, ll), true
		}

		return bits.ReverseBytes16(v) + immediate(ll, hh), true
	case SubHL:
		return v - immediate(hh, ll), true
	case SubLH:
		return v - immediate(ll, hh), true
	}

	return v, false
}
