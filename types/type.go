// Package types implements the YMSL type system: a small set of primitive
// kinds, parameterized containers, function signatures and nominal enums.
//
// Types are created only through a Table, which hash-conses every
// structural type so that two requests for the same shape return the same
// *Type. Identity comparison (==) is therefore type equality, except for
// enums, which are nominal: each EnumOf call yields a distinct type.
package types

import (
	"fmt"
	"strings"
)

// Kind classifies a Type.
type Kind uint8

const (
	Void Kind = iota
	Boolean
	Int
	Float
	String
	Array
	Set
	Map
	Enum
	Function
)

var kindNames = [...]string{
	Void:     "void",
	Boolean:  "boolean",
	Int:      "int",
	Float:    "float",
	String:   "string",
	Array:    "array",
	Set:      "set",
	Map:      "map",
	Enum:     "enum",
	Function: "function",
}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsPrimitive reports whether the kind carries no component types.
func (k Kind) IsPrimitive() bool {
	return k <= String
}

// EnumConst is one named constant of an enum type.
type EnumConst struct {
	Name  string
	Value int
}

// Type is an immutable YMSL type. Construct through a Table.
type Type struct {
	id     int
	kind   Kind
	name   string
	elem   *Type
	key    *Type
	output *Type
	inputs []*Type
	consts []EnumConst
}

// ID returns the process-unique identifier assigned at registration.
func (t *Type) ID() int { return t.id }

// Kind returns the type's kind.
func (t *Type) Kind() Kind { return t.kind }

// Name returns the enum name; empty for every other kind.
func (t *Type) Name() string { return t.name }

// Elem returns the element type of an array, set or map.
func (t *Type) Elem() *Type { return t.elem }

// Key returns the key type of a map.
func (t *Type) Key() *Type { return t.key }

// Output returns the result type of a function type.
func (t *Type) Output() *Type { return t.output }

// Inputs returns the parameter types of a function type. The returned slice
// must not be modified.
func (t *Type) Inputs() []*Type { return t.inputs }

// NumInputs returns the number of function parameters.
func (t *Type) NumInputs() int { return len(t.inputs) }

// Input returns the i-th parameter type.
func (t *Type) Input(i int) *Type { return t.inputs[i] }

// EnumConsts returns the constants of an enum type in declaration order.
func (t *Type) EnumConsts() []EnumConst { return t.consts }

// EnumIndex returns the position of the named constant, or -1.
func (t *Type) EnumIndex(name string) int {
	for i, c := range t.consts {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// EnumValue returns the value of the named constant.
func (t *Type) EnumValue(name string) (int, bool) {
	if i := t.EnumIndex(name); i >= 0 {
		return t.consts[i].Value, true
	}
	return 0, false
}

// IsNumeric reports whether the type takes part in arithmetic.
func (t *Type) IsNumeric() bool {
	return t.kind == Int || t.kind == Float
}

// String renders the type in source syntax.
func (t *Type) String() string {
	switch t.kind {
	case Array:
		return "array<" + t.elem.String() + ">"
	case Set:
		return "set<" + t.elem.String() + ">"
	case Map:
		return "map<" + t.key.String() + ", " + t.elem.String() + ">"
	case Enum:
		return "enum " + t.name
	case Function:
		var sb strings.Builder
		sb.WriteString("function(")
		for i, in := range t.inputs {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(in.String())
		}
		sb.WriteString("): ")
		sb.WriteString(t.output.String())
		return sb.String()
	default:
		return t.kind.String()
	}
}
