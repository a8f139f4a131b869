package compiler

import (
	"github.com/chazu/ymsl/types"
	"github.com/chazu/ymsl/vm"
)

// ---------------------------------------------------------------------------
// Named entities
// ---------------------------------------------------------------------------

// Label is a jump target in the statement stream. It becomes a code
// address when the unit containing it is generated.
type Label struct {
	name string
}

// NewLabel creates a label. Labels are placed with a Place statement.
func NewLabel(name string) *Label { return &Label{name: name} }

func (l *Label) Name() string { return l.name }

// Constant is a named compile-time value: a const declaration or an enum
// member.
type Constant struct {
	name  string
	typ   *types.Type
	value vm.Value
}

func (c *Constant) Name() string      { return c.name }
func (c *Constant) Type() *types.Type { return c.typ }
func (c *Constant) Value() vm.Value   { return c.value }

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// UnaryOp is a prefix operator or conversion.
type UnaryOp uint8

const (
	Neg UnaryOp = iota
	BitNot
	LogNot
	ToBool
	ToInt
	ToFloat
)

var unaryNames = [...]string{
	Neg:     "-",
	BitNot:  "~",
	LogNot:  "!",
	ToBool:  "boolean()",
	ToInt:   "int()",
	ToFloat: "float()",
}

func (op UnaryOp) String() string { return unaryNames[op] }

// BinaryOp is an infix operator.
type BinaryOp uint8

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Mod
	Shl
	Shr
	BitAnd
	BitOr
	BitXor
	LogAnd
	LogOr
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
)

var binaryNames = [...]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", Mod: "%",
	Shl: "<<", Shr: ">>",
	BitAnd: "&", BitOr: "|", BitXor: "^",
	LogAnd: "&&", LogOr: "||",
	Eq: "==", Ne: "!=", Lt: "<", Le: "<=", Gt: ">", Ge: ">=",
}

func (op BinaryOp) String() string { return binaryNames[op] }

var binaryOpcodes = [...]vm.Opcode{
	Add: vm.OpAdd, Sub: vm.OpSub, Mul: vm.OpMul, Div: vm.OpDiv, Mod: vm.OpMod,
	Shl: vm.OpShl, Shr: vm.OpShr,
	BitAnd: vm.OpAnd, BitOr: vm.OpOr, BitXor: vm.OpXor,
	Eq: vm.OpEQ, Ne: vm.OpNE, Lt: vm.OpLT, Le: vm.OpLE, Gt: vm.OpGT, Ge: vm.OpGE,
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Expr is an expression node. Every expression leaves exactly one value on
// the stack.
type Expr interface {
	exprNode()
}

type (
	IntConst    struct{ Value int32 }
	FloatConst  struct{ Value float64 }
	BoolConst   struct{ Value bool }
	StringConst struct{ Value string }

	// VarRef reads a variable.
	VarRef struct{ Var *vm.Variable }

	// ConstRef reads a named constant.
	ConstRef struct{ Const *Constant }

	// FuncRef evaluates to a function value (its table index).
	FuncRef struct{ Func *Function }

	Unary struct {
		Op UnaryOp
		X  Expr
	}

	Binary struct {
		Op   BinaryOp
		X, Y Expr
	}

	// Ternary evaluates both branches and selects one.
	Ternary struct {
		Cond, Then, Else Expr
	}

	// Call invokes Callee. A FuncRef callee compiles to a direct call;
	// any other function-typed expression to a call through a register.
	Call struct {
		Callee Expr
		Args   []Expr
	}
)

func (*IntConst) exprNode()    {}
func (*FloatConst) exprNode()  {}
func (*BoolConst) exprNode()   {}
func (*StringConst) exprNode() {}
func (*VarRef) exprNode()      {}
func (*ConstRef) exprNode()    {}
func (*FuncRef) exprNode()     {}
func (*Unary) exprNode()       {}
func (*Binary) exprNode()      {}
func (*Ternary) exprNode()     {}
func (*Call) exprNode()        {}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// Stmt is a statement node.
type Stmt interface {
	stmtNode()
}

type (
	// Store assigns Value to Var.
	Store struct {
		Var   *vm.Variable
		Value Expr
	}

	// IncDec is Var++ or Var--.
	IncDec struct {
		Var *vm.Variable
		Dec bool
	}

	// Inplace is Var op= Value.
	Inplace struct {
		Var   *vm.Variable
		Op    BinaryOp
		Value Expr
	}

	// ExprStmt evaluates X and discards the result.
	ExprStmt struct{ X Expr }

	// Return leaves the current function. Value is nil for void functions.
	// At top level a bare return ends the program.
	Return struct{ Value Expr }

	Jump struct{ Target *Label }

	BranchTrue struct {
		Cond   Expr
		Target *Label
	}

	BranchFalse struct {
		Cond   Expr
		Target *Label
	}

	// Place binds Label to the position of the next statement.
	Place struct{ Label *Label }

	Halt struct{}
)

func (*Store) stmtNode()       {}
func (*IncDec) stmtNode()      {}
func (*Inplace) stmtNode()     {}
func (*ExprStmt) stmtNode()    {}
func (*Return) stmtNode()      {}
func (*Jump) stmtNode()        {}
func (*BranchTrue) stmtNode()  {}
func (*BranchFalse) stmtNode() {}
func (*Place) stmtNode()       {}
func (*Halt) stmtNode()        {}
