package vm

import (
	"fmt"
	"math"

	"github.com/chazu/ymsl/types"
)

// ---------------------------------------------------------------------------
// Code words and runtime values
// ---------------------------------------------------------------------------

// Word is the storage unit of a code stream. Opcodes occupy one word,
// Int immediates one word, Float and ObjPtr immediates two.
type Word uint32

// ObjPtr is an opaque handle into the VM object table. NullPtr is the
// null handle.
type ObjPtr uint64

// NullPtr is the null object handle.
const NullPtr ObjPtr = 0

// Value is one untagged stack or heap slot. The instruction that reads a
// slot decides which arm it holds; nothing in the slot records it.
type Value uint64

// IntValue wraps a 32-bit integer.
func IntValue(i int32) Value { return Value(uint32(i)) }

// FloatValue wraps a float.
func FloatValue(f float64) Value { return Value(math.Float64bits(f)) }

// ObjValue wraps an object handle.
func ObjValue(p ObjPtr) Value { return Value(p) }

// BoolValue wraps a boolean as the Int 0 or 1.
func BoolValue(b bool) Value {
	if b {
		return 1
	}
	return 0
}

// Int reads the slot as an integer.
func (v Value) Int() int32 { return int32(uint32(v)) }

// Float reads the slot as a float.
func (v Value) Float() float64 { return math.Float64frombits(uint64(v)) }

// Obj reads the slot as an object handle.
func (v Value) Obj() ObjPtr { return ObjPtr(v) }

// Bool reads the slot as a boolean (nonzero Int).
func (v Value) Bool() bool { return v.Int() != 0 }

// ---------------------------------------------------------------------------
// Value kinds
// ---------------------------------------------------------------------------

// Kind is the machine representation an instruction operates on. Every
// typed opcode family exists once per Kind.
type Kind uint8

const (
	KindNone Kind = iota
	KindInt
	KindFloat
	KindObj
)

// String returns the mnemonic fragment for the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindInt:
		return "INT"
	case KindFloat:
		return "FLOAT"
	case KindObj:
		return "OBJ"
	}
	return fmt.Sprintf("KIND_%d", uint8(k))
}

// Words returns how many code words an immediate of this kind occupies.
func (k Kind) Words() int {
	switch k {
	case KindInt:
		return 1
	case KindFloat, KindObj:
		return 2
	}
	return 0
}

// KindOf maps a language type onto its machine representation. Booleans,
// enums and function values travel as Int; strings and containers as
// object handles.
func KindOf(t *types.Type) Kind {
	switch t.Kind() {
	case types.Boolean, types.Int, types.Enum, types.Function:
		return KindInt
	case types.Float:
		return KindFloat
	case types.String, types.Array, types.Set, types.Map:
		return KindObj
	}
	return KindNone
}
