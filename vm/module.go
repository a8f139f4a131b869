package vm

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Errors returned while linking and loading programs.
var (
	ErrLayoutConflict = errors.New("module layout conflict")
	ErrMalformed      = errors.New("malformed bytecode")
	ErrNotLoaded      = errors.New("no executable loaded")
	ErrNoSuchFunction = errors.New("no such function")
)

// ---------------------------------------------------------------------------
// Module: a compiled unit
// ---------------------------------------------------------------------------

// Module is the output of compiling one program. Its functions, globals
// and string literals occupy contiguous ranges of the whole-program tables
// starting at the recorded bases; imported modules come first.
type Module struct {
	Name    string
	ID      uuid.UUID
	Imports []*Module

	Functions []*Function // index FuncBase+i
	Globals   []*Variable // index GlobalBase+i
	Strings   []string    // handle StringBase+i+1

	FuncBase   int
	GlobalBase int
	StringBase int

	// Init holds the top-level statements; nil when there are none.
	Init *Code
}

// Function returns the exported function with the given name, or nil.
func (m *Module) Function(name string) *Function {
	for _, f := range m.Functions {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// Global returns the exported global with the given name, or nil.
func (m *Module) Global(name string) *Variable {
	for _, v := range m.Globals {
		if v.Name() == name {
			return v
		}
	}
	return nil
}

// Layout is the size of the whole-program tables after a set of modules.
type Layout struct {
	Functions int
	Globals   int
	Strings   int
}

// Flatten returns the modules reachable from roots in dependency order,
// each exactly once, and the table sizes they occupy.
func Flatten(roots ...*Module) ([]*Module, Layout) {
	var (
		order  []*Module
		layout Layout
		seen   = make(map[*Module]bool)
		visit  func(m *Module)
	)
	visit = func(m *Module) {
		if seen[m] {
			return
		}
		seen[m] = true
		for _, imp := range m.Imports {
			visit(imp)
		}
		order = append(order, m)
		layout.Functions += len(m.Functions)
		layout.Globals += len(m.Globals)
		layout.Strings += len(m.Strings)
	}
	for _, m := range roots {
		visit(m)
	}
	return order, layout
}

// ---------------------------------------------------------------------------
// Executable: the linked program
// ---------------------------------------------------------------------------

// Executable is a linked program: one flat function table, the heap
// layout, the string pool and the init code of every module in
// dependency order.
type Executable struct {
	Name        string
	Modules     []*Module
	Functions   []*Function
	GlobalKinds []Kind
	Strings     []string
	Inits       []*Code
}

// GlobalCount returns the number of heap slots the program needs.
func (e *Executable) GlobalCount() int { return len(e.GlobalKinds) }

// Link flattens root and its imports into an executable. Every module must
// have been compiled against the layout its imports produce.
func Link(root *Module) (*Executable, error) {
	order, _ := Flatten(root)
	exe := &Executable{Name: root.Name, Modules: order}

	for _, m := range order {
		if m.FuncBase != len(exe.Functions) || m.GlobalBase != len(exe.GlobalKinds) ||
			m.StringBase != len(exe.Strings) {
			return nil, fmt.Errorf("%w: module %s expects bases %d/%d/%d, linked at %d/%d/%d",
				ErrLayoutConflict, m.Name,
				m.FuncBase, m.GlobalBase, m.StringBase,
				len(exe.Functions), len(exe.GlobalKinds), len(exe.Strings))
		}
		for i, f := range m.Functions {
			if f.Index() != m.FuncBase+i {
				return nil, fmt.Errorf("%w: function %s.%s has index %d, slot is %d",
					ErrLayoutConflict, m.Name, f.Name(), f.Index(), m.FuncBase+i)
			}
			exe.Functions = append(exe.Functions, f)
		}
		for i, v := range m.Globals {
			if !v.IsGlobal() || v.Index() != m.GlobalBase+i {
				return nil, fmt.Errorf("%w: global %s.%s has index %d, slot is %d",
					ErrLayoutConflict, m.Name, v.Name(), v.Index(), m.GlobalBase+i)
			}
			exe.GlobalKinds = append(exe.GlobalKinds, v.Kind())
		}
		exe.Strings = append(exe.Strings, m.Strings...)
		if m.Init != nil {
			exe.Inits = append(exe.Inits, m.Init)
		}
	}
	return exe, nil
}

// Function returns the function with the given name from any linked
// module, searching the root module first.
func (e *Executable) Function(name string) *Function {
	for i := len(e.Modules) - 1; i >= 0; i-- {
		if f := e.Modules[i].Function(name); f != nil {
			return f
		}
	}
	return nil
}
