// Package compiler turns resolved YMSL programs into vm modules. A Program
// assigns every global, local and function its static index as it is
// declared; Compile type-checks the statement stream and emits bytecode.
package compiler

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/ymsl/types"
	"github.com/chazu/ymsl/vm"
)

// ---------------------------------------------------------------------------
// Function: a declared callable
// ---------------------------------------------------------------------------

// Param is a function parameter declaration.
type Param struct {
	Name string
	Type *types.Type
}

// Function is a function declared in a Program: compiled from statements,
// a host builtin, or an export of an imported module.
type Function struct {
	name  string
	typ   *types.Type
	index int
	prog  *Program

	scope   *Scope
	params  []*vm.Variable
	locals  []*vm.Variable // parameters first; never shrinks
	owned   map[*vm.Variable]bool
	body    []Stmt
	builtin vm.BuiltinFunc
	linked  *vm.Function // set for imports
}

func (f *Function) Name() string      { return f.name }
func (f *Function) Type() *types.Type { return f.typ }

// Index returns the slot in the whole-program function table.
func (f *Function) Index() int { return f.index }

// Scope returns the scope holding the parameters; the function body
// declares into it or into blocks nested below it.
func (f *Function) Scope() *Scope { return f.scope }

// Params returns the parameter variables, local indices 0..n-1.
func (f *Function) Params() []*vm.Variable { return f.params }

// Locals returns every local variable in index order, parameters first.
func (f *Function) Locals() []*vm.Variable { return f.locals }

func (f *Function) IsBuiltin() bool  { return f.builtin != nil }
func (f *Function) IsImported() bool { return f.linked != nil }

// Body returns the function's outermost block.
func (f *Function) Body() *Block {
	return &Block{prog: f.prog, fn: f, scope: f.scope, stmts: &f.body}
}

// declareLocal allocates the next frame slot. Slots are never reused, so
// sibling blocks get distinct indices.
func (f *Function) declareLocal(name string, t *types.Type) *vm.Variable {
	v := vm.NewVariable(name, t, vm.Local, len(f.locals))
	f.locals = append(f.locals, v)
	f.owned[v] = true
	return v
}

// ---------------------------------------------------------------------------
// Program: declarations and index allocation for one module
// ---------------------------------------------------------------------------

// Program collects the declarations and statements of one module and
// assigns every global, local and function its index. Compile turns it
// into a vm.Module.
type Program struct {
	name    string
	tt      *types.Table
	imports []*vm.Module
	layout  vm.Layout // sizes of the imported tables; our bases
	scope   *Scope

	globals   []*vm.Variable
	functions []*Function
	strings   []string
	stringIdx map[string]int
	enums     map[*types.Type]*Scope
	init      []Stmt

	errs []error
	log  commonlog.Logger
}

// NewProgram starts a module. Globals, functions and strings are numbered
// after everything the imports bring in. Each direct import is visible as
// a scope named after the module.
func NewProgram(name string, tt *types.Table, imports ...*vm.Module) *Program {
	p := &Program{
		name:      name,
		tt:        tt,
		imports:   imports,
		scope:     NewScope(nil, ""),
		stringIdx: make(map[string]int),
		enums:     make(map[*types.Type]*Scope),
		log:       commonlog.GetLogger("ymsl.compiler"),
	}
	_, p.layout = vm.Flatten(imports...)

	for _, m := range imports {
		ms := NewScope(p.scope, m.Name)
		for _, vf := range m.Functions {
			f := &Function{name: vf.Name(), typ: vf.Type(), index: vf.Index(), linked: vf}
			p.record(ms.DeclareFunction(f))
		}
		for _, v := range m.Globals {
			p.record(ms.DeclareVariable(v))
		}
		p.record(p.scope.DeclareScope(ms))
	}
	return p
}

func (p *Program) Name() string        { return p.name }
func (p *Program) Types() *types.Table { return p.tt }

// Scope returns the global scope.
func (p *Program) Scope() *Scope { return p.scope }

// Top returns the block of top-level statements; variables declared in it
// are globals.
func (p *Program) Top() *Block {
	return &Block{prog: p, scope: p.scope, stmts: &p.init}
}

// Errors returns the errors recorded so far.
func (p *Program) Errors() []error { return p.errs }

// record keeps err for Compile and returns it.
func (p *Program) record(err error) error {
	if err != nil {
		p.errs = append(p.errs, err)
	}
	return err
}

// checkStorable rejects types no variable can hold.
func (p *Program) checkStorable(name string, t *types.Type) error {
	if t.Kind() == types.Void {
		return errorf(p.name, ErrTypeMismatch, "%s declared void", name)
	}
	return checkElements(p.name, t)
}

func checkElements(unit string, t *types.Type) error {
	switch t.Kind() {
	case types.Array, types.Set:
		if t.Elem().Kind() == types.Void {
			return errorf(unit, ErrElementType, "%s", t)
		}
		return checkElements(unit, t.Elem())
	case types.Map:
		if t.Key().Kind() == types.Void || t.Elem().Kind() == types.Void {
			return errorf(unit, ErrElementType, "%s", t)
		}
		if err := checkElements(unit, t.Key()); err != nil {
			return err
		}
		return checkElements(unit, t.Elem())
	}
	return nil
}

// DeclareGlobal allocates the next heap slot.
func (p *Program) DeclareGlobal(scope *Scope, name string, t *types.Type) (*vm.Variable, error) {
	if err := p.checkStorable(name, t); err != nil {
		return nil, p.record(err)
	}
	v := vm.NewVariable(name, t, vm.Global, p.layout.Globals+len(p.globals))
	if err := scope.DeclareVariable(v); err != nil {
		return nil, p.record(err)
	}
	p.globals = append(p.globals, v)
	return v, nil
}

// DeclareFunction declares a compiled function. Its parameters get local
// indices 0..n-1 in a new scope below scope; statements go into Body().
func (p *Program) DeclareFunction(scope *Scope, name string, output *types.Type, params ...Param) (*Function, error) {
	inputs := make([]*types.Type, len(params))
	for i, prm := range params {
		inputs[i] = prm.Type
	}
	f := &Function{
		name:  name,
		typ:   p.tt.FunctionOf(output, inputs...),
		prog:  p,
		scope: NewScope(scope, name),
		owned: make(map[*vm.Variable]bool),
	}
	if output.Kind() != types.Void {
		if err := checkElements(name, output); err != nil {
			return nil, p.record(err)
		}
	}
	for _, prm := range params {
		if err := p.checkStorable(prm.Name, prm.Type); err != nil {
			return nil, p.record(err)
		}
		v := f.declareLocal(prm.Name, prm.Type)
		if err := f.scope.DeclareVariable(v); err != nil {
			return nil, p.record(err)
		}
		f.params = append(f.params, v)
	}
	if err := p.addFunction(scope, f); err != nil {
		return nil, err
	}
	return f, nil
}

// DeclareBuiltin declares a host function.
func (p *Program) DeclareBuiltin(scope *Scope, name string, output *types.Type, inputs []*types.Type, fn vm.BuiltinFunc) (*Function, error) {
	if fn == nil {
		panic(fmt.Sprintf("compiler: builtin %s has no implementation", name))
	}
	f := &Function{
		name:    name,
		typ:     p.tt.FunctionOf(output, inputs...),
		builtin: fn,
	}
	if err := p.addFunction(scope, f); err != nil {
		return nil, err
	}
	return f, nil
}

// addFunction binds f and gives it the next function slot. Declaration
// order is export order is link order.
func (p *Program) addFunction(scope *Scope, f *Function) error {
	if err := scope.DeclareFunction(f); err != nil {
		return p.record(err)
	}
	f.index = p.layout.Functions + len(p.functions)
	p.functions = append(p.functions, f)
	return nil
}

// EnumItem is one member of an enum declaration. A nil Value means one
// more than the previous member (0 for the first).
type EnumItem struct {
	Name  string
	Value Expr
}

// DeclareEnum creates a new enum type, binds it under name and gives it a
// member scope holding one constant per item.
func (p *Program) DeclareEnum(scope *Scope, name string, items ...EnumItem) (*types.Type, error) {
	consts := make([]types.EnumConst, 0, len(items))
	names := make(map[string]bool)
	values := make(map[int]string)
	next := 0
	for _, item := range items {
		if item.Value != nil {
			v, t, err := Eval(p.tt, item.Value)
			if err != nil {
				return nil, p.record(err)
			}
			if t.Kind() != types.Int {
				return nil, p.record(errorf(name, ErrTypeMismatch, "value of %s is %s, want int", item.Name, t))
			}
			next = int(v.Int())
		}
		if names[item.Name] {
			return nil, p.record(errorf(name, ErrDuplicate, "enum constant %s", item.Name))
		}
		if prev, ok := values[next]; ok {
			return nil, p.record(errorf(name, ErrDuplicate, "%s and %s both have value %d", prev, item.Name, next))
		}
		names[item.Name] = true
		values[next] = item.Name
		consts = append(consts, types.EnumConst{Name: item.Name, Value: next})
		next++
	}

	t := p.tt.EnumOf(name, consts)
	members := NewScope(scope, name)
	for _, c := range consts {
		// names are unique, checked above
		_ = members.DeclareConst(&Constant{name: c.Name, typ: t, value: vm.IntValue(int32(c.Value))})
	}
	if err := scope.DeclareType(name, t, members); err != nil {
		return nil, p.record(err)
	}
	p.enums[t] = members
	return t, nil
}

// EnumConst returns the named member of an enum declared in this program.
func (p *Program) EnumConst(t *types.Type, name string) (*Constant, error) {
	members, ok := p.enums[t]
	if !ok {
		return nil, errorf(p.name, ErrUndeclared, "enum %s", t)
	}
	h := members.LookupLocal(name)
	if h == nil {
		return nil, errorf(p.name, ErrEnumConstNotFound, "%s.%s", t.Name(), name)
	}
	return h.Const(), nil
}

// DeclareConst folds e and binds the result under name.
func (p *Program) DeclareConst(scope *Scope, name string, t *types.Type, e Expr) (*Constant, error) {
	switch t.Kind() {
	case types.Boolean, types.Int, types.Float, types.Enum:
	default:
		return nil, p.record(errorf(p.name, ErrTypeMismatch, "constant %s of type %s", name, t))
	}
	v, vt, err := Eval(p.tt, e)
	if err != nil {
		return nil, p.record(err)
	}
	if !assignable(t, vt) {
		return nil, p.record(errorf(p.name, ErrTypeMismatch, "constant %s: %s value for %s", name, vt, t))
	}
	if t.Kind() == types.Float && vt.Kind() == types.Int {
		v = vm.FloatValue(float64(v.Int()))
	}
	c := &Constant{name: name, typ: t, value: v}
	if err := scope.DeclareConst(c); err != nil {
		return nil, p.record(err)
	}
	return c, nil
}

// DeclareType binds an alias for t.
func (p *Program) DeclareType(scope *Scope, name string, t *types.Type) error {
	return p.record(scope.DeclareType(name, t, p.enums[t]))
}

// stringHandle interns s in the module's literal pool.
func (p *Program) stringHandle(s string) vm.ObjPtr {
	i, ok := p.stringIdx[s]
	if !ok {
		i = len(p.strings)
		p.strings = append(p.strings, s)
		p.stringIdx[s] = i
	}
	return vm.ObjPtr(p.layout.Strings + i + 1)
}

// ---------------------------------------------------------------------------
// Compilation
// ---------------------------------------------------------------------------

// Compile generates code for every function and the top-level block. When
// any declaration or unit failed, no module is produced and the error
// joins every failure.
func (p *Program) Compile() (*vm.Module, error) {
	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}

	m := &vm.Module{
		Name:       p.name,
		ID:         uuid.New(),
		Imports:    p.imports,
		Globals:    p.globals,
		FuncBase:   p.layout.Functions,
		GlobalBase: p.layout.Globals,
		StringBase: p.layout.Strings,
	}

	for _, f := range p.functions {
		if f.builtin != nil {
			m.Functions = append(m.Functions, vm.NewBuiltin(f.name, f.typ, f.index, f.builtin))
			continue
		}
		code, err := newCodeGenerator(p, f).Generate(f.body)
		if err != nil {
			p.errs = append(p.errs, err)
			continue
		}
		kinds := make([]vm.Kind, len(f.locals))
		for i, v := range f.locals {
			kinds[i] = v.Kind()
		}
		m.Functions = append(m.Functions, vm.NewCompiled(f.name, f.typ, f.index, code, kinds))
		p.log.Debugf("%s.%s: %d words, frame %d", p.name, f.name, code.Len(), len(kinds))
	}

	if len(p.init) > 0 {
		code, err := newCodeGenerator(p, nil).Generate(p.init)
		if err != nil {
			p.errs = append(p.errs, err)
		} else {
			m.Init = code
		}
	}

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	m.Strings = p.strings
	p.log.Infof("compiled module %s: %d functions, %d globals", p.name, len(m.Functions), len(m.Globals))
	return m, nil
}

func (p *Program) String() string {
	return fmt.Sprintf("program %s (%d functions, %d globals)", p.name, len(p.functions), len(p.globals))
}
