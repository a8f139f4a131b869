package compiler

import (
	"github.com/chazu/ymsl/types"
	"github.com/chazu/ymsl/vm"
)

// ---------------------------------------------------------------------------
// Block: a scope plus a statement stream
// ---------------------------------------------------------------------------

// Block appends statements to a function body or to the top level.
// Nested blocks open a child scope but write to the same stream, so
// structured statements lower to labels and branches as they are added.
type Block struct {
	prog  *Program
	fn    *Function // nil at top level
	scope *Scope
	stmts *[]Stmt
	loop  *loop
}

// loop holds the targets of break and continue for the innermost loop.
type loop struct {
	brk, cont *Label
	outer     *loop
}

// Scope returns the block's scope.
func (b *Block) Scope() *Scope { return b.scope }

// Function returns the enclosing function, or nil at top level.
func (b *Block) Function() *Function { return b.fn }

// Add appends statements.
func (b *Block) Add(stmts ...Stmt) {
	*b.stmts = append(*b.stmts, stmts...)
}

// Nested opens a child scope writing to the same statement stream.
func (b *Block) Nested() *Block {
	nb := *b
	nb.scope = NewScope(b.scope, "")
	return &nb
}

// DeclareVar declares a variable in this block's scope: a local in a
// function body, a global at top level.
func (b *Block) DeclareVar(name string, t *types.Type) (*vm.Variable, error) {
	if b.fn == nil {
		return b.prog.DeclareGlobal(b.scope, name, t)
	}
	if err := b.prog.checkStorable(name, t); err != nil {
		return nil, b.prog.record(err)
	}
	if h := b.scope.LookupLocal(name); h != nil {
		return nil, b.prog.record(errorf(b.fn.name, ErrDuplicate, "%q already declared as a %s", name, h.Kind()))
	}
	v := b.fn.declareLocal(name, t)
	_ = b.scope.DeclareVariable(v)
	return v, nil
}

// DeclareLabel declares a named goto target in this block's scope.
func (b *Block) DeclareLabel(name string) (*Label, error) {
	l := NewLabel(name)
	if err := b.scope.DeclareLabel(l); err != nil {
		return nil, b.prog.record(err)
	}
	return l, nil
}

// ---------------------------------------------------------------------------
// Structured statements
// ---------------------------------------------------------------------------

// If adds if (cond) then else els. els may be nil.
func (b *Block) If(cond Expr, then, els func(*Block)) {
	end := NewLabel("if.end")
	if els == nil {
		b.Add(&BranchFalse{Cond: cond, Target: end})
		then(b.Nested())
		b.Add(&Place{Label: end})
		return
	}
	elseLabel := NewLabel("if.else")
	b.Add(&BranchFalse{Cond: cond, Target: elseLabel})
	then(b.Nested())
	b.Add(&Jump{Target: end}, &Place{Label: elseLabel})
	els(b.Nested())
	b.Add(&Place{Label: end})
}

// While adds while (cond) body.
func (b *Block) While(cond Expr, body func(*Block)) {
	top := NewLabel("while.top")
	end := NewLabel("while.end")
	b.Add(&Place{Label: top}, &BranchFalse{Cond: cond, Target: end})
	body(b.loopBody(end, top))
	b.Add(&Jump{Target: top}, &Place{Label: end})
}

// DoWhile adds do body while (cond).
func (b *Block) DoWhile(body func(*Block), cond Expr) {
	top := NewLabel("do.top")
	cont := NewLabel("do.cond")
	end := NewLabel("do.end")
	b.Add(&Place{Label: top})
	body(b.loopBody(end, cont))
	b.Add(&Place{Label: cont}, &BranchTrue{Cond: cond, Target: top}, &Place{Label: end})
}

// For adds for (init; cond; next) body. init, next and cond may be nil.
// Variables declared by init are scoped to the loop.
func (b *Block) For(init func(*Block), cond Expr, next func(*Block), body func(*Block)) {
	outer := b.Nested()
	if init != nil {
		init(outer)
	}
	top := NewLabel("for.top")
	cont := NewLabel("for.next")
	end := NewLabel("for.end")
	outer.Add(&Place{Label: top})
	if cond != nil {
		outer.Add(&BranchFalse{Cond: cond, Target: end})
	}
	body(outer.loopBody(end, cont))
	outer.Add(&Place{Label: cont})
	if next != nil {
		next(outer)
	}
	outer.Add(&Jump{Target: top}, &Place{Label: end})
}

func (b *Block) loopBody(brk, cont *Label) *Block {
	nb := b.Nested()
	nb.loop = &loop{brk: brk, cont: cont, outer: b.loop}
	return nb
}

// Break jumps past the innermost loop.
func (b *Block) Break() error {
	if b.loop == nil {
		return b.prog.record(errorf(b.unit(), ErrOutsideLoop, "break"))
	}
	b.Add(&Jump{Target: b.loop.brk})
	return nil
}

// Continue jumps to the next iteration of the innermost loop.
func (b *Block) Continue() error {
	if b.loop == nil {
		return b.prog.record(errorf(b.unit(), ErrOutsideLoop, "continue"))
	}
	b.Add(&Jump{Target: b.loop.cont})
	return nil
}

func (b *Block) unit() string {
	if b.fn != nil {
		return b.fn.name
	}
	return b.prog.name
}
