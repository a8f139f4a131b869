package compiler

import (
	"github.com/chazu/ymsl/types"
	"github.com/chazu/ymsl/vm"
)

// ---------------------------------------------------------------------------
// Codegen: statement stream to bytecode
// ---------------------------------------------------------------------------

// codeGenerator type-checks and emits one unit: a function body or the
// top-level block. It stops at the first error.
type codeGenerator struct {
	prog *Program
	fn   *Function // nil for top-level code
	unit string

	b      *vm.Builder
	labels map[*Label]*vm.Label
	order  []*Label // labels in order of first use
	types  map[Expr]*types.Type
}

func newCodeGenerator(p *Program, fn *Function) *codeGenerator {
	unit := p.name
	if fn != nil {
		unit = fn.name
	}
	return &codeGenerator{
		prog:   p,
		fn:     fn,
		unit:   unit,
		b:      vm.NewBuilder(),
		labels: make(map[*Label]*vm.Label),
		types:  make(map[Expr]*types.Type),
	}
}

// Generate emits stmts followed by the unit's epilogue.
func (g *codeGenerator) Generate(stmts []Stmt) (*vm.Code, error) {
	for _, s := range stmts {
		if err := g.stmt(s); err != nil {
			return nil, err
		}
	}
	for _, l := range g.order {
		if !g.labels[l].Placed() {
			return nil, errorf(g.unit, ErrLabelNotPlaced, "%s", l.name)
		}
	}

	if g.fn != nil {
		out := g.fn.typ.Output()
		if out.Kind() == types.Void {
			g.b.Emit(vm.OpReturn, vm.KindNone)
		} else {
			// reaching the end of a value function returns zero
			g.pushZero(vm.KindOf(out))
			g.b.Emit(vm.OpReturn, vm.KindOf(out))
		}
	}
	return g.b.Build(), nil
}

func (g *codeGenerator) label(l *Label) *vm.Label {
	vl, ok := g.labels[l]
	if !ok {
		vl = g.b.NewLabel(l.name)
		g.labels[l] = vl
		g.order = append(g.order, l)
	}
	return vl
}

func (g *codeGenerator) errorf(err error, format string, args ...any) error {
	return errorf(g.unit, err, format, args...)
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// checkVar rejects locals of other functions and locals at top level.
func (g *codeGenerator) checkVar(v *vm.Variable) error {
	if v.IsGlobal() {
		return nil
	}
	if g.fn == nil || !g.fn.owned[v] {
		return g.errorf(ErrUndeclared, "local %s is not in scope", v.Name())
	}
	return nil
}

// typeOf checks e and returns its type. Results are memoized, so a tree is
// checked once however often its subtrees are visited.
func (g *codeGenerator) typeOf(e Expr) (*types.Type, error) {
	if t, ok := g.types[e]; ok {
		return t, nil
	}
	t, err := g.check(e)
	if err != nil {
		return nil, err
	}
	g.types[e] = t
	return t, nil
}

func (g *codeGenerator) check(e Expr) (*types.Type, error) {
	tt := g.prog.tt
	switch e := e.(type) {
	case *IntConst:
		return tt.Int(), nil
	case *FloatConst:
		return tt.Float(), nil
	case *BoolConst:
		return tt.Boolean(), nil
	case *StringConst:
		return tt.StringType(), nil
	case *VarRef:
		if err := g.checkVar(e.Var); err != nil {
			return nil, err
		}
		return e.Var.Type(), nil
	case *ConstRef:
		return e.Const.typ, nil
	case *FuncRef:
		return e.Func.typ, nil

	case *Unary:
		xt, err := g.typeOf(e.X)
		if err != nil {
			return nil, err
		}
		t, ok := unaryType(tt, e.Op, xt)
		if !ok {
			return nil, g.errorf(ErrInvalidOperator, "%s%s", e.Op, xt)
		}
		return t, nil

	case *Binary:
		xt, err := g.typeOf(e.X)
		if err != nil {
			return nil, err
		}
		yt, err := g.typeOf(e.Y)
		if err != nil {
			return nil, err
		}
		t, _, ok := binaryType(tt, e.Op, xt, yt)
		if !ok {
			return nil, g.errorf(ErrInvalidOperator, "%s %s %s", xt, e.Op, yt)
		}
		return t, nil

	case *Ternary:
		if err := g.checkCond(e.Cond); err != nil {
			return nil, err
		}
		at, err := g.typeOf(e.Then)
		if err != nil {
			return nil, err
		}
		bt, err := g.typeOf(e.Else)
		if err != nil {
			return nil, err
		}
		t, ok := unify(tt, at, bt)
		if !ok || t.Kind() == types.Void {
			return nil, g.errorf(ErrTypeMismatch, "branches are %s and %s", at, bt)
		}
		return t, nil

	case *Call:
		ft, err := g.typeOf(e.Callee)
		if err != nil {
			return nil, err
		}
		if ft.Kind() != types.Function {
			return nil, g.errorf(ErrNotFunction, "call of %s", ft)
		}
		if len(e.Args) != ft.NumInputs() {
			return nil, g.errorf(ErrArity, "%s takes %d arguments, got %d", ft, ft.NumInputs(), len(e.Args))
		}
		for i, a := range e.Args {
			at, err := g.typeOf(a)
			if err != nil {
				return nil, err
			}
			if !assignable(ft.Input(i), at) {
				return nil, g.errorf(ErrTypeMismatch, "argument %d is %s, want %s", i+1, at, ft.Input(i))
			}
		}
		return ft.Output(), nil
	}
	return nil, g.errorf(ErrTypeMismatch, "unknown expression %T", e)
}

func (g *codeGenerator) checkCond(e Expr) error {
	t, err := g.typeOf(e)
	if err != nil {
		return err
	}
	if t.Kind() != types.Boolean {
		return g.errorf(ErrTypeMismatch, "condition is %s, want boolean", t)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (g *codeGenerator) stmt(s Stmt) error {
	switch s := s.(type) {
	case *Store:
		return g.store(s.Var, s.Value)

	case *Inplace:
		return g.store(s.Var, &Binary{Op: s.Op, X: &VarRef{Var: s.Var}, Y: s.Value})

	case *IncDec:
		if err := g.checkVar(s.Var); err != nil {
			return err
		}
		k := s.Var.Kind()
		switch s.Var.Type().Kind() {
		case types.Int:
			g.load(s.Var)
			if s.Dec {
				g.b.Emit(vm.OpDec, k)
			} else {
				g.b.Emit(vm.OpInc, k)
			}
		case types.Float:
			g.load(s.Var)
			g.b.Emit(vm.OpPushOne, k)
			if s.Dec {
				g.b.Emit(vm.OpSub, k)
			} else {
				g.b.Emit(vm.OpAdd, k)
			}
		default:
			return g.errorf(ErrInvalidOperator, "++/-- on %s", s.Var.Type())
		}
		g.storeTop(s.Var)
		return nil

	case *ExprStmt:
		if err := g.expr(s.X); err != nil {
			return err
		}
		g.b.Emit(vm.OpPOP, vm.KindNone)
		return nil

	case *Return:
		return g.ret(s.Value)

	case *Jump:
		g.b.EmitJump(vm.OpJump, g.label(s.Target))
		return nil

	case *BranchTrue:
		return g.branch(vm.OpBranchTrue, s.Cond, s.Target)

	case *BranchFalse:
		return g.branch(vm.OpBranchFalse, s.Cond, s.Target)

	case *Place:
		vl := g.label(s.Label)
		if vl.Placed() {
			return g.errorf(ErrDuplicate, "label %s placed twice", s.Label.name)
		}
		g.b.Place(vl)
		return nil

	case *Halt:
		g.b.Emit(vm.OpHalt, vm.KindNone)
		return nil
	}
	return g.errorf(ErrTypeMismatch, "unknown statement %T", s)
}

func (g *codeGenerator) store(v *vm.Variable, e Expr) error {
	if err := g.checkVar(v); err != nil {
		return err
	}
	et, err := g.typeOf(e)
	if err != nil {
		return err
	}
	if !assignable(v.Type(), et) {
		return g.errorf(ErrTypeMismatch, "cannot assign %s to %s %s", et, v.Type(), v.Name())
	}
	if err := g.exprAs(e, v.Type()); err != nil {
		return err
	}
	g.storeTop(v)
	return nil
}

func (g *codeGenerator) ret(e Expr) error {
	if g.fn == nil {
		if e != nil {
			return g.errorf(ErrTypeMismatch, "top-level return with a value")
		}
		g.b.Emit(vm.OpHalt, vm.KindNone)
		return nil
	}
	out := g.fn.typ.Output()
	if out.Kind() == types.Void {
		if e != nil {
			return g.errorf(ErrTypeMismatch, "void function returns a value")
		}
		g.b.Emit(vm.OpReturn, vm.KindNone)
		return nil
	}
	if e == nil {
		return g.errorf(ErrTypeMismatch, "missing return value of type %s", out)
	}
	et, err := g.typeOf(e)
	if err != nil {
		return err
	}
	if !assignable(out, et) {
		return g.errorf(ErrTypeMismatch, "returns %s, want %s", et, out)
	}
	if err := g.exprAs(e, out); err != nil {
		return err
	}
	g.b.Emit(vm.OpReturn, vm.KindOf(out))
	return nil
}

func (g *codeGenerator) branch(op vm.Opcode, cond Expr, target *Label) error {
	if err := g.checkCond(cond); err != nil {
		return err
	}
	if err := g.expr(cond); err != nil {
		return err
	}
	g.b.EmitJump(op, g.label(target))
	return nil
}

func (g *codeGenerator) load(v *vm.Variable) {
	op := vm.OpLoadLocal
	if v.IsGlobal() {
		op = vm.OpLoadGlobal
	}
	g.b.EmitWithIndex(op, v.Kind(), v.Index())
}

func (g *codeGenerator) storeTop(v *vm.Variable) {
	op := vm.OpStoreLocal
	if v.IsGlobal() {
		op = vm.OpStoreGlobal
	}
	g.b.EmitWithIndex(op, v.Kind(), v.Index())
}

func (g *codeGenerator) pushZero(k vm.Kind) {
	if k == vm.KindObj {
		g.b.Emit(vm.OpPushNull, k)
		return
	}
	g.b.Emit(vm.OpPushZero, k)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// exprAs emits e converted to t. t must be assignable from e's type.
func (g *codeGenerator) exprAs(e Expr, t *types.Type) error {
	if err := g.expr(e); err != nil {
		return err
	}
	et := g.types[e]
	if t.Kind() == types.Float && et.Kind() == types.Int {
		g.b.Emit(vm.OpToFloat, vm.KindInt)
	}
	return nil
}

// expr emits code leaving the value of e on the stack.
func (g *codeGenerator) expr(e Expr) error {
	t, err := g.typeOf(e)
	if err != nil {
		return err
	}

	switch e := e.(type) {
	case *IntConst:
		g.b.EmitPushInt(e.Value)
	case *FloatConst:
		g.b.EmitPushFloat(e.Value)
	case *BoolConst:
		if e.Value {
			g.b.EmitPushInt(1)
		} else {
			g.b.EmitPushInt(0)
		}
	case *StringConst:
		g.b.EmitPushObj(g.prog.stringHandle(e.Value))
	case *VarRef:
		g.load(e.Var)
	case *ConstRef:
		g.pushConst(e.Const)
	case *FuncRef:
		g.b.EmitPushInt(int32(e.Func.index))

	case *Unary:
		return g.unary(e)

	case *Binary:
		return g.binary(e)

	case *Ternary:
		if err := g.expr(e.Cond); err != nil {
			return err
		}
		if err := g.exprAs(e.Then, t); err != nil {
			return err
		}
		if err := g.exprAs(e.Else, t); err != nil {
			return err
		}
		g.b.Emit(vm.OpITE, vm.KindOf(t))

	case *Call:
		ft := g.types[e.Callee]
		for i, a := range e.Args {
			if err := g.exprAs(a, ft.Input(i)); err != nil {
				return err
			}
		}
		if f, ok := e.Callee.(*FuncRef); ok {
			g.b.EmitWithIndex(vm.OpCall, vm.KindNone, f.Func.index)
			return nil
		}
		if err := g.expr(e.Callee); err != nil {
			return err
		}
		g.b.Emit(vm.OpCallR, vm.KindNone)
	}
	return nil
}

func (g *codeGenerator) pushConst(c *Constant) {
	switch vm.KindOf(c.typ) {
	case vm.KindFloat:
		g.b.EmitPushFloat(c.value.Float())
	default:
		g.b.EmitPushInt(c.value.Int())
	}
}

func (g *codeGenerator) unary(e *Unary) error {
	if err := g.expr(e.X); err != nil {
		return err
	}
	xt := g.types[e.X]
	k := vm.KindOf(xt)
	switch e.Op {
	case Neg:
		g.b.Emit(vm.OpMinus, k)
	case BitNot:
		g.b.Emit(vm.OpNot, k)
	case LogNot:
		g.b.Emit(vm.OpLogNot, k)
	case ToBool:
		if xt.Kind() != types.Boolean {
			g.b.Emit(vm.OpToBool, k)
		}
	case ToInt:
		if k == vm.KindFloat {
			g.b.Emit(vm.OpToInt, k)
		}
	case ToFloat:
		if k == vm.KindInt {
			g.b.Emit(vm.OpToFloat, k)
		}
	}
	return nil
}

func (g *codeGenerator) binary(e *Binary) error {
	switch e.Op {
	case LogAnd, LogOr:
		return g.shortCircuit(e)
	}
	_, ot, _ := binaryType(g.prog.tt, e.Op, g.types[e.X], g.types[e.Y])
	if err := g.exprAs(e.X, ot); err != nil {
		return err
	}
	if err := g.exprAs(e.Y, ot); err != nil {
		return err
	}
	g.b.Emit(binaryOpcodes[e.Op], vm.KindOf(ot))
	return nil
}

// shortCircuit emits && and || so the right operand runs only when it
// decides the result.
func (g *codeGenerator) shortCircuit(e *Binary) error {
	short := g.b.NewLabel("short")
	end := g.b.NewLabel("end")
	op, shortValue := vm.OpBranchFalse, int32(0)
	if e.Op == LogOr {
		op, shortValue = vm.OpBranchTrue, 1
	}
	if err := g.expr(e.X); err != nil {
		return err
	}
	g.b.EmitJump(op, short)
	if err := g.expr(e.Y); err != nil {
		return err
	}
	g.b.EmitJump(vm.OpJump, end)
	g.b.Place(short)
	g.b.EmitPushInt(shortValue)
	g.b.Place(end)
	return nil
}
