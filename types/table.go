package types

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// nextID hands out type identifiers. Identifiers are unique across every
// Table in the process so types from different tables never compare equal
// by id.
var nextID atomic.Int64

// Table is the registry of types. It is safe for concurrent use.
type Table struct {
	mu         sync.Mutex
	primitives [String + 1]*Type
	arrays     map[*Type]*Type
	sets       map[*Type]*Type
	maps       map[[2]*Type]*Type
	functions  map[string]*Type
	all        []*Type
}

// NewTable creates a table with the primitive types registered.
func NewTable() *Table {
	tt := &Table{
		arrays:    make(map[*Type]*Type),
		sets:      make(map[*Type]*Type),
		maps:      make(map[[2]*Type]*Type),
		functions: make(map[string]*Type),
	}
	for k := Void; k <= String; k++ {
		tt.primitives[k] = tt.register(&Type{kind: k})
	}
	return tt
}

// register assigns an id and records the type. Caller holds mu or is the
// constructor.
func (tt *Table) register(t *Type) *Type {
	t.id = int(nextID.Add(1))
	tt.all = append(tt.all, t)
	return t
}

// Primitive returns the singleton type for a primitive kind. Requesting a
// composite kind is a logic error.
func (tt *Table) Primitive(k Kind) *Type {
	if !k.IsPrimitive() {
		panic(fmt.Sprintf("types: %s is not a primitive kind", k))
	}
	return tt.primitives[k]
}

func (tt *Table) Void() *Type    { return tt.primitives[Void] }
func (tt *Table) Boolean() *Type { return tt.primitives[Boolean] }
func (tt *Table) Int() *Type     { return tt.primitives[Int] }
func (tt *Table) Float() *Type   { return tt.primitives[Float] }

// StringType returns the string type. The name avoids clashing with
// fmt.Stringer.
func (tt *Table) StringType() *Type { return tt.primitives[String] }

// ArrayOf returns the array type with the given element type.
func (tt *Table) ArrayOf(elem *Type) *Type {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if t, ok := tt.arrays[elem]; ok {
		return t
	}
	t := tt.register(&Type{kind: Array, elem: elem})
	tt.arrays[elem] = t
	return t
}

// SetOf returns the set type with the given element type.
func (tt *Table) SetOf(elem *Type) *Type {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if t, ok := tt.sets[elem]; ok {
		return t
	}
	t := tt.register(&Type{kind: Set, elem: elem})
	tt.sets[elem] = t
	return t
}

// MapOf returns the map type from key to elem.
func (tt *Table) MapOf(key, elem *Type) *Type {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	k := [2]*Type{key, elem}
	if t, ok := tt.maps[k]; ok {
		return t
	}
	t := tt.register(&Type{kind: Map, key: key, elem: elem})
	tt.maps[k] = t
	return t
}

// FunctionOf returns the function type with the given signature.
func (tt *Table) FunctionOf(output *Type, inputs ...*Type) *Type {
	key := signatureKey(output, inputs)

	tt.mu.Lock()
	defer tt.mu.Unlock()
	if t, ok := tt.functions[key]; ok {
		return t
	}
	t := tt.register(&Type{
		kind:   Function,
		output: output,
		inputs: append([]*Type(nil), inputs...),
	})
	tt.functions[key] = t
	return t
}

// signatureKey identifies a signature by the ids of its component types.
func signatureKey(output *Type, inputs []*Type) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(output.id))
	for _, in := range inputs {
		sb.WriteByte(',')
		sb.WriteString(strconv.Itoa(in.id))
	}
	return sb.String()
}

// EnumOf creates a new enum type. Enums are nominal; every call returns a
// fresh type even when the name and constants repeat.
func (tt *Table) EnumOf(name string, consts []EnumConst) *Type {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.register(&Type{
		kind:   Enum,
		name:   name,
		consts: append([]EnumConst(nil), consts...),
	})
}

// Len returns the number of registered types.
func (tt *Table) Len() int {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return len(tt.all)
}

// All returns every registered type in registration order. Component
// types always precede the types built from them.
func (tt *Table) All() []*Type {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return append([]*Type(nil), tt.all...)
}
