package compiler

import (
	"errors"
	"testing"

	"github.com/chazu/ymsl/types"
	"github.com/chazu/ymsl/vm"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func compile(t *testing.T, p *Program) *vm.Module {
	t.Helper()
	m, err := p.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return m
}

// run links m, loads it into a fresh machine and runs every init block.
func run(t *testing.T, m *vm.Module) *vm.VM {
	t.Helper()
	exe, err := vm.Link(m)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	machine := vm.New(vm.WithHeapSize(64), vm.WithStackSize(4096))
	if err := machine.Load(exe); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := machine.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if machine.SP() != 0 {
		t.Errorf("SP after run = %d, want 0", machine.SP())
	}
	return machine
}

func compileErr(t *testing.T, p *Program, want error) {
	t.Helper()
	m, err := p.Compile()
	if m != nil {
		t.Errorf("Compile returned a module despite errors")
	}
	if !errors.Is(err, want) {
		t.Errorf("Compile error = %v, want %v", err, want)
	}
}

func ref(v *vm.Variable) Expr         { return &VarRef{Var: v} }
func lit(i int32) Expr                { return &IntConst{Value: i} }
func bin(op BinaryOp, x, y Expr) Expr { return &Binary{Op: op, X: x, Y: y} }

func call(f *Function, args ...Expr) Expr {
	return &Call{Callee: &FuncRef{Func: f}, Args: args}
}

func mustGlobal(t *testing.T, b *Block, name string, typ *types.Type) *vm.Variable {
	t.Helper()
	v, err := b.DeclareVar(name, typ)
	if err != nil {
		t.Fatalf("DeclareVar %s: %v", name, err)
	}
	return v
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func TestWhileLoop(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("loop", tt)
	top := p.Top()
	g := mustGlobal(t, top, "g", tt.Int())
	top.Add(&Store{Var: g, Value: lit(1)})
	top.While(bin(Lt, ref(g), lit(5)), func(b *Block) {
		b.Add(&Store{Var: g, Value: bin(Add, ref(g), lit(1))})
	})

	machine := run(t, compile(t, p))
	if got := machine.Global(g.Index()).Int(); got != 5 {
		t.Errorf("g = %d, want 5", got)
	}
}

func TestForBreakContinue(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("for", tt)
	top := p.Top()
	sum := mustGlobal(t, top, "sum", tt.Int())

	i := mustGlobal(t, top, "i", tt.Int())
	top.For(
		func(b *Block) { b.Add(&Store{Var: i, Value: lit(0)}) },
		bin(Lt, ref(i), lit(10)),
		func(b *Block) { b.Add(&IncDec{Var: i}) },
		func(b *Block) {
			b.If(bin(Eq, ref(i), lit(5)), func(b *Block) {
				if err := b.Continue(); err != nil {
					t.Fatal(err)
				}
			}, nil)
			b.If(bin(Eq, ref(i), lit(8)), func(b *Block) {
				if err := b.Break(); err != nil {
					t.Fatal(err)
				}
			}, nil)
			b.Add(&Inplace{Var: sum, Op: Add, Value: ref(i)})
		},
	)

	machine := run(t, compile(t, p))
	if got := machine.Global(sum.Index()).Int(); got != 0+1+2+3+4+6+7 {
		t.Errorf("sum = %d, want 23", got)
	}
}

func TestDoWhileAndIfElse(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("do", tt)
	top := p.Top()
	n := mustGlobal(t, top, "n", tt.Int())
	r := mustGlobal(t, top, "r", tt.Int())

	top.DoWhile(func(b *Block) {
		b.Add(&IncDec{Var: n})
	}, bin(Lt, ref(n), lit(3)))
	top.If(bin(Gt, ref(n), lit(2)),
		func(b *Block) { b.Add(&Store{Var: r, Value: lit(10)}) },
		func(b *Block) { b.Add(&Store{Var: r, Value: lit(20)}) })

	machine := run(t, compile(t, p))
	if got := machine.Global(n.Index()).Int(); got != 3 {
		t.Errorf("n = %d, want 3", got)
	}
	if got := machine.Global(r.Index()).Int(); got != 10 {
		t.Errorf("r = %d, want 10", got)
	}
}

func TestBreakOutsideLoop(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("bad", tt)
	if err := p.Top().Break(); !errors.Is(err, ErrOutsideLoop) {
		t.Errorf("Break error = %v, want ErrOutsideLoop", err)
	}
	compileErr(t, p, ErrOutsideLoop)
}

func TestUnplacedLabel(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("labels", tt)
	top := p.Top()
	l, err := top.DeclareLabel("nowhere")
	if err != nil {
		t.Fatal(err)
	}
	top.Add(&Jump{Target: l})
	compileErr(t, p, ErrLabelNotPlaced)
}

func TestTopLevelReturnHalts(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("halt", tt)
	top := p.Top()
	g := mustGlobal(t, top, "g", tt.Int())
	top.Add(&Store{Var: g, Value: lit(1)}, &Return{}, &Store{Var: g, Value: lit(2)})

	machine := run(t, compile(t, p))
	if !machine.Halted() {
		t.Error("Halted() = false, want true")
	}
	if got := machine.Global(g.Index()).Int(); got != 1 {
		t.Errorf("g = %d, want 1", got)
	}
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func TestFunctionCall(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("calls", tt)
	add3, err := p.DeclareFunction(p.Scope(), "add3", tt.Int(),
		Param{"a", tt.Int()}, Param{"b", tt.Int()}, Param{"c", tt.Int()})
	if err != nil {
		t.Fatal(err)
	}
	a, b, c := add3.Params()[0], add3.Params()[1], add3.Params()[2]
	add3.Body().Add(&Return{Value: bin(Add, bin(Add, ref(a), ref(b)), ref(c))})

	top := p.Top()
	r := mustGlobal(t, top, "r", tt.Int())
	top.Add(&Store{Var: r, Value: call(add3, lit(1), lit(2), lit(3))})

	machine := run(t, compile(t, p))
	if got := machine.Global(r.Index()).Int(); got != 6 {
		t.Errorf("r = %d, want 6", got)
	}
	v, err := machine.CallFunction("add3", vm.IntValue(10), vm.IntValue(20), vm.IntValue(30))
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if v.Int() != 60 {
		t.Errorf("add3(10, 20, 30) = %d, want 60", v.Int())
	}
}

func TestRecursion(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("fact", tt)
	fact, _ := p.DeclareFunction(p.Scope(), "fact", tt.Int(), Param{"n", tt.Int()})
	n := fact.Params()[0]
	body := fact.Body()
	body.If(bin(Le, ref(n), lit(1)), func(b *Block) {
		b.Add(&Return{Value: lit(1)})
	}, nil)
	body.Add(&Return{Value: bin(Mul, ref(n), call(fact, bin(Sub, ref(n), lit(1))))})

	machine := run(t, compile(t, p))
	v, err := machine.CallFunction("fact", vm.IntValue(10))
	if err != nil {
		t.Fatal(err)
	}
	if v.Int() != 3628800 {
		t.Errorf("fact(10) = %d, want 3628800", v.Int())
	}
}

func TestVoidCallStatement(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("void", tt)
	top := p.Top()
	count := mustGlobal(t, top, "count", tt.Int())
	bump, _ := p.DeclareFunction(p.Scope(), "bump", tt.Void())
	bump.Body().Add(&IncDec{Var: count})

	top.Add(&ExprStmt{X: call(bump)}, &ExprStmt{X: call(bump)})

	machine := run(t, compile(t, p))
	if got := machine.Global(count.Index()).Int(); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
}

func TestCallThroughVariable(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("indirect", tt)
	twice, _ := p.DeclareFunction(p.Scope(), "twice", tt.Int(), Param{"x", tt.Int()})
	x := twice.Params()[0]
	twice.Body().Add(&Return{Value: bin(Add, ref(x), ref(x))})

	top := p.Top()
	fv := mustGlobal(t, top, "f", twice.Type())
	r := mustGlobal(t, top, "r", tt.Int())
	top.Add(
		&Store{Var: fv, Value: &FuncRef{Func: twice}},
		&Store{Var: r, Value: &Call{Callee: ref(fv), Args: []Expr{lit(4)}}},
	)

	machine := run(t, compile(t, p))
	if got := machine.Global(r.Index()).Int(); got != 8 {
		t.Errorf("r = %d, want 8", got)
	}
}

func TestBuiltinAndShortCircuit(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("logic", tt)
	touched := 0
	touch, err := p.DeclareBuiltin(p.Scope(), "touch", tt.Boolean(), nil,
		func(_ *vm.VM, _ []vm.Value) vm.Value {
			touched++
			return vm.BoolValue(true)
		})
	if err != nil {
		t.Fatal(err)
	}

	top := p.Top()
	a := mustGlobal(t, top, "a", tt.Boolean())
	b := mustGlobal(t, top, "b", tt.Boolean())
	c := mustGlobal(t, top, "c", tt.Boolean())
	top.Add(
		&Store{Var: a, Value: bin(LogAnd, &BoolConst{false}, call(touch))},
		&Store{Var: b, Value: bin(LogOr, &BoolConst{true}, call(touch))},
		&Store{Var: c, Value: bin(LogAnd, &BoolConst{true}, call(touch))},
	)

	machine := run(t, compile(t, p))
	if touched != 1 {
		t.Errorf("touch called %d times, want 1", touched)
	}
	for _, tc := range []struct {
		v    *vm.Variable
		want bool
	}{{a, false}, {b, true}, {c, true}} {
		if got := machine.Global(tc.v.Index()).Bool(); got != tc.want {
			t.Errorf("%s = %v, want %v", tc.v.Name(), got, tc.want)
		}
	}
}

func TestLocalsOfOtherFunctions(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("scopes", tt)
	f, _ := p.DeclareFunction(p.Scope(), "f", tt.Int(), Param{"x", tt.Int()})
	f.Body().Add(&Return{Value: ref(f.Params()[0])})
	g, _ := p.DeclareFunction(p.Scope(), "g", tt.Int())
	g.Body().Add(&Return{Value: ref(f.Params()[0])})
	compileErr(t, p, ErrUndeclared)
}

// ---------------------------------------------------------------------------
// Types and conversions
// ---------------------------------------------------------------------------

func TestIntToFloatPromotion(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("promote", tt)
	half, _ := p.DeclareFunction(p.Scope(), "half", tt.Float(), Param{"x", tt.Float()})
	half.Body().Add(&Return{Value: bin(Div, ref(half.Params()[0]), lit(2))})

	top := p.Top()
	x := mustGlobal(t, top, "x", tt.Float())
	y := mustGlobal(t, top, "y", tt.Float())
	z := mustGlobal(t, top, "z", tt.Float())
	lt := mustGlobal(t, top, "lt", tt.Boolean())
	top.Add(
		&Store{Var: x, Value: bin(Add, lit(1), &FloatConst{0.5})},
		&Store{Var: y, Value: lit(3)},
		&Store{Var: z, Value: call(half, lit(5))},
		&Store{Var: lt, Value: bin(Lt, lit(1), &FloatConst{1.5})},
	)
	top.Add(&IncDec{Var: y})

	machine := run(t, compile(t, p))
	if got := machine.Global(x.Index()).Float(); got != 1.5 {
		t.Errorf("x = %v, want 1.5", got)
	}
	if got := machine.Global(y.Index()).Float(); got != 4 {
		t.Errorf("y = %v, want 4", got)
	}
	if got := machine.Global(z.Index()).Float(); got != 2.5 {
		t.Errorf("z = %v, want 2.5", got)
	}
	if !machine.Global(lt.Index()).Bool() {
		t.Error("1 < 1.5 = false, want true")
	}
}

func TestTernaryAndConversions(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("conv", tt)
	top := p.Top()
	g := mustGlobal(t, top, "g", tt.Int())
	r := mustGlobal(t, top, "r", tt.Float())
	i := mustGlobal(t, top, "i", tt.Int())
	top.Add(
		&Store{Var: g, Value: lit(3)},
		&Store{Var: r, Value: &Ternary{Cond: bin(Gt, ref(g), lit(2)), Then: lit(10), Else: &FloatConst{0.25}}},
		&Store{Var: i, Value: &Unary{Op: ToInt, X: &FloatConst{-7.9}}},
	)

	machine := run(t, compile(t, p))
	if got := machine.Global(r.Index()).Float(); got != 10 {
		t.Errorf("r = %v, want 10", got)
	}
	if got := machine.Global(i.Index()).Int(); got != -7 {
		t.Errorf("i = %d, want -7", got)
	}
}

func TestTypeErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(p *Program, top *Block)
		want  error
	}{
		{"float into int", func(p *Program, top *Block) {
			x, _ := top.DeclareVar("x", p.Types().Int())
			top.Add(&Store{Var: x, Value: &FloatConst{1.5}})
		}, ErrTypeMismatch},
		{"int plus boolean", func(p *Program, top *Block) {
			x, _ := top.DeclareVar("x", p.Types().Int())
			top.Add(&Store{Var: x, Value: bin(Add, lit(1), &BoolConst{true})})
		}, ErrInvalidOperator},
		{"wrong arity", func(p *Program, top *Block) {
			f, _ := p.DeclareFunction(p.Scope(), "f", p.Types().Void(), Param{"a", p.Types().Int()})
			top.Add(&ExprStmt{X: call(f)})
		}, ErrArity},
		{"call of int", func(p *Program, top *Block) {
			x, _ := top.DeclareVar("x", p.Types().Int())
			top.Add(&ExprStmt{X: &Call{Callee: ref(x)}})
		}, ErrNotFunction},
		{"int condition", func(p *Program, top *Block) {
			top.While(lit(1), func(*Block) {})
		}, ErrTypeMismatch},
		{"void return value", func(p *Program, top *Block) {
			f, _ := p.DeclareFunction(p.Scope(), "f", p.Types().Void())
			f.Body().Add(&Return{Value: lit(1)})
		}, ErrTypeMismatch},
		{"modulo of floats", func(p *Program, top *Block) {
			x, _ := top.DeclareVar("x", p.Types().Float())
			top.Add(&Store{Var: x, Value: bin(Mod, &FloatConst{1}, &FloatConst{2})})
		}, ErrInvalidOperator},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewProgram("errors", types.NewTable())
			tc.build(p, p.Top())
			compileErr(t, p, tc.want)
		})
	}
}

// ---------------------------------------------------------------------------
// Strings, enums and imports
// ---------------------------------------------------------------------------

func TestStringLiterals(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("strings", tt)
	top := p.Top()
	s := mustGlobal(t, top, "s", tt.StringType())
	u := mustGlobal(t, top, "u", tt.StringType())
	same := mustGlobal(t, top, "same", tt.Boolean())
	top.Add(
		&Store{Var: s, Value: &StringConst{"hi"}},
		&Store{Var: u, Value: &StringConst{"hi"}},
		&Store{Var: same, Value: bin(Eq, ref(s), ref(u))},
	)

	m := compile(t, p)
	if len(m.Strings) != 1 {
		t.Errorf("Strings = %q, want one entry", m.Strings)
	}
	machine := run(t, m)
	got, ok := machine.StringObject(machine.Global(s.Index()).Obj())
	if !ok || got != "hi" {
		t.Errorf("s = %q, %v, want hi", got, ok)
	}
	if !machine.Global(same.Index()).Bool() {
		t.Error("equal literals have different handles")
	}
}

func TestEnumConstants(t *testing.T) {
	tt := types.NewTable()
	p := NewProgram("enums", tt)
	dir, err := p.DeclareEnum(p.Scope(), "Dir", EnumItem{Name: "North"}, EnumItem{Name: "South", Value: lit(4)})
	if err != nil {
		t.Fatal(err)
	}
	south := p.Scope().LookupPath("Dir", "South").Const()

	top := p.Top()
	d := mustGlobal(t, top, "d", dir)
	n := mustGlobal(t, top, "n", tt.Int())
	top.Add(
		&Store{Var: d, Value: &ConstRef{Const: south}},
		&Store{Var: n, Value: &Unary{Op: ToInt, X: ref(d)}},
	)

	machine := run(t, compile(t, p))
	if got := machine.Global(n.Index()).Int(); got != 4 {
		t.Errorf("n = %d, want 4", got)
	}
}

func TestImportCompiledModule(t *testing.T) {
	tt := types.NewTable()

	lp := NewProgram("lib", tt)
	ltop := lp.Top()
	counter := mustGlobal(t, ltop, "counter", tt.Int())
	ltop.Add(&Store{Var: counter, Value: lit(10)})
	twice, _ := lp.DeclareFunction(lp.Scope(), "twice", tt.Int(), Param{"x", tt.Int()})
	x := twice.Params()[0]
	twice.Body().Add(&Return{Value: bin(Add, ref(x), ref(x))})
	lib := compile(t, lp)

	ap := NewProgram("app", tt, lib)
	imported := ap.Scope().LookupPath("lib", "twice").Function()
	if imported == nil || !imported.IsImported() || imported.Index() != 0 {
		t.Fatalf("lib.twice = %v, want imported function 0", imported)
	}
	libCounter := ap.Scope().LookupPath("lib", "counter").Variable()

	atop := ap.Top()
	result := mustGlobal(t, atop, "result", tt.Int())
	if result.Index() != 1 {
		t.Errorf("result index = %d, want 1", result.Index())
	}
	atop.Add(&Store{Var: result, Value: bin(Add, call(imported, ref(libCounter)), lit(1))})
	app := compile(t, ap)
	if app.FuncBase != 1 || app.GlobalBase != 1 {
		t.Errorf("bases = %d/%d, want 1/1", app.FuncBase, app.GlobalBase)
	}

	machine := run(t, app)
	if got := machine.Global(result.Index()).Int(); got != 21 {
		t.Errorf("result = %d, want 21", got)
	}
}
