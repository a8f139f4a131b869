package compiler

import (
	"errors"
	"testing"

	"github.com/chazu/ymsl/types"
	"github.com/chazu/ymsl/vm"
)

func TestScopeShadowing(t *testing.T) {
	tt := types.NewTable()
	outer := NewScope(nil, "")
	inner := NewScope(outer, "f")

	x1 := vm.NewVariable("x", tt.Int(), vm.Global, 0)
	x2 := vm.NewVariable("x", tt.Float(), vm.Local, 0)
	if err := outer.DeclareVariable(x1); err != nil {
		t.Fatalf("DeclareVariable outer: %v", err)
	}
	if err := inner.DeclareVariable(x2); err != nil {
		t.Fatalf("DeclareVariable inner: %v", err)
	}

	if got := inner.Lookup("x").Variable(); got != x2 {
		t.Errorf("inner Lookup(x) = %v, want %v", got, x2)
	}
	if got := outer.Lookup("x").Variable(); got != x1 {
		t.Errorf("outer Lookup(x) = %v, want %v", got, x1)
	}
	if h := inner.LookupLocal("y"); h != nil {
		t.Errorf("LookupLocal(y) = %v, want nil", h)
	}
	if h := inner.Lookup("y"); h != nil {
		t.Errorf("Lookup(y) = %v, want nil", h)
	}
}

func TestScopeDuplicate(t *testing.T) {
	tt := types.NewTable()
	s := NewScope(nil, "")
	if err := s.DeclareVariable(vm.NewVariable("x", tt.Int(), vm.Global, 0)); err != nil {
		t.Fatalf("first declaration: %v", err)
	}
	err := s.DeclareLabel(NewLabel("x"))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("second declaration error = %v, want ErrDuplicate", err)
	}
	if h := s.Lookup("x"); h.Kind() != VariableHandle {
		t.Errorf("Lookup(x).Kind() = %s, want variable", h.Kind())
	}
}

func TestHandleAccessors(t *testing.T) {
	tt := types.NewTable()
	s := NewScope(nil, "")
	l := NewLabel("top")
	_ = s.DeclareLabel(l)
	_ = s.DeclareType("number", tt.Float(), nil)

	h := s.Lookup("top")
	if h.Kind() != LabelHandle || h.Label() != l {
		t.Errorf("label handle = %s %v, want label %v", h.Kind(), h.Label(), l)
	}
	if h.Variable() != nil || h.Function() != nil || h.Type() != nil {
		t.Error("label handle answers for other kinds")
	}
	if got := s.Lookup("number").Type(); got != tt.Float() {
		t.Errorf("type handle = %v, want float", got)
	}
}

func TestLookupPath(t *testing.T) {
	tt := types.NewTable()
	root := NewScope(nil, "")
	lib := NewScope(root, "lib")
	v := vm.NewVariable("counter", tt.Int(), vm.Global, 3)
	_ = lib.DeclareVariable(v)
	_ = root.DeclareScope(lib)

	if got := root.LookupPath("lib", "counter"); got == nil || got.Variable() != v {
		t.Errorf("LookupPath(lib, counter) = %v, want %v", got, v)
	}
	if got := root.LookupPath("lib", "missing"); got != nil {
		t.Errorf("LookupPath(lib, missing) = %v, want nil", got)
	}
	if got := root.LookupPath("lib", "counter", "deeper"); got != nil {
		t.Errorf("LookupPath through a variable = %v, want nil", got)
	}
	if got := root.LookupPath(); got != nil {
		t.Errorf("LookupPath() = %v, want nil", got)
	}
	if lib.FullName() != "lib" {
		t.Errorf("FullName = %q, want lib", lib.FullName())
	}
	if got := NewScope(lib, "inner").FullName(); got != "lib.inner" {
		t.Errorf("FullName = %q, want lib.inner", got)
	}
}
