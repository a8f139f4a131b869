package vm

import (
	"fmt"

	"github.com/chazu/ymsl/types"
)

// Binding says where a variable lives at run time.
type Binding uint8

const (
	// Global variables live in the VM heap, addressed by absolute index.
	Global Binding = iota
	// Local variables live on the stack at BASE + index.
	Local
)

func (b Binding) String() string {
	if b == Global {
		return "global"
	}
	return "local"
}

// Variable is a named, typed storage slot with a fixed address. Variables
// are created by the compiler's index allocator and never change.
type Variable struct {
	name    string
	typ     *types.Type
	binding Binding
	index   int
}

// NewVariable creates a variable bound to the given slot.
func NewVariable(name string, typ *types.Type, binding Binding, index int) *Variable {
	return &Variable{name: name, typ: typ, binding: binding, index: index}
}

// Name returns the variable name.
func (v *Variable) Name() string { return v.name }

// Type returns the declared type.
func (v *Variable) Type() *types.Type { return v.typ }

// Binding returns where the variable lives.
func (v *Variable) Binding() Binding { return v.binding }

// IsGlobal reports whether the variable lives in the heap.
func (v *Variable) IsGlobal() bool { return v.binding == Global }

// Index returns the heap index (globals) or frame offset (locals).
func (v *Variable) Index() int { return v.index }

// Kind returns the machine kind used to load and store the variable.
func (v *Variable) Kind() Kind { return KindOf(v.typ) }

func (v *Variable) String() string {
	return fmt.Sprintf("%s %s: %s #%d", v.binding, v.name, v.typ, v.index)
}
