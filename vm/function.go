package vm

import (
	"fmt"

	"github.com/chazu/ymsl/types"
)

// BuiltinFunc is a host function callable from bytecode. args aliases the
// caller's stack at BASE and is only valid for the duration of the call.
type BuiltinFunc func(vm *VM, args []Value) Value

// Function is a callable unit in the flat function table: either a host
// builtin or compiled code with a fixed frame layout.
type Function struct {
	name    string
	typ     *types.Type
	index   int
	builtin BuiltinFunc
	code    *Code
	locals  []Kind // frame slot kinds; the first ArgNum are the parameters
}

// NewBuiltin wraps a host function.
func NewBuiltin(name string, typ *types.Type, index int, fn BuiltinFunc) *Function {
	return &Function{name: name, typ: typ, index: index, builtin: fn}
}

// NewCompiled creates a function backed by code. locals lists the kind of
// every frame slot, parameters first.
func NewCompiled(name string, typ *types.Type, index int, code *Code, locals []Kind) *Function {
	if len(locals) < typ.NumInputs() {
		panic(fmt.Sprintf("vm: function %s has %d frame slots for %d parameters",
			name, len(locals), typ.NumInputs()))
	}
	return &Function{
		name:   name,
		typ:    typ,
		index:  index,
		code:   code,
		locals: append([]Kind(nil), locals...),
	}
}

// Name returns the function name.
func (f *Function) Name() string { return f.name }

// Type returns the function's signature type.
func (f *Function) Type() *types.Type { return f.typ }

// Index returns the position in the flat function table.
func (f *Function) Index() int { return f.index }

// ArgNum returns the number of parameters.
func (f *Function) ArgNum() int { return f.typ.NumInputs() }

// IsBuiltin reports whether the function is host code.
func (f *Function) IsBuiltin() bool { return f.builtin != nil }

// Builtin returns the host function, or nil.
func (f *Function) Builtin() BuiltinFunc { return f.builtin }

// Code returns the compiled body, or nil for builtins.
func (f *Function) Code() *Code { return f.code }

// FrameSize returns the number of stack slots a call occupies, parameters
// included.
func (f *Function) FrameSize() int {
	if f.builtin != nil {
		return f.ArgNum()
	}
	return len(f.locals)
}

// LocalKinds returns the kinds of the frame slots.
func (f *Function) LocalKinds() []Kind { return f.locals }

// ReturnKind returns the kind of the returned value.
func (f *Function) ReturnKind() Kind { return KindOf(f.typ.Output()) }

func (f *Function) String() string {
	return fmt.Sprintf("#%d %s %s", f.index, f.name, f.typ)
}
