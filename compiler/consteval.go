package compiler

import (
	"github.com/chazu/ymsl/types"
	"github.com/chazu/ymsl/vm"
)

// Eval folds a constant expression: literals, named constants and the
// operators over them. Anything that needs the machine (variables, calls,
// strings) is ErrNotConstant.
func Eval(tt *types.Table, e Expr) (vm.Value, *types.Type, error) {
	switch e := e.(type) {
	case *IntConst:
		return vm.IntValue(e.Value), tt.Int(), nil
	case *FloatConst:
		return vm.FloatValue(e.Value), tt.Float(), nil
	case *BoolConst:
		return vm.BoolValue(e.Value), tt.Boolean(), nil
	case *ConstRef:
		return e.Const.value, e.Const.typ, nil

	case *Unary:
		x, xt, err := Eval(tt, e.X)
		if err != nil {
			return 0, nil, err
		}
		rt, ok := unaryType(tt, e.Op, xt)
		if !ok {
			return 0, nil, errorf("", ErrInvalidOperator, "%s%s", e.Op, xt)
		}
		return foldUnary(e.Op, x, xt), rt, nil

	case *Binary:
		x, xt, err := Eval(tt, e.X)
		if err != nil {
			return 0, nil, err
		}
		y, yt, err := Eval(tt, e.Y)
		if err != nil {
			return 0, nil, err
		}
		rt, ot, ok := binaryType(tt, e.Op, xt, yt)
		if !ok {
			return 0, nil, errorf("", ErrInvalidOperator, "%s %s %s", xt, e.Op, yt)
		}
		v, err := foldBinary(e.Op, convert(x, xt, ot), convert(y, yt, ot), ot)
		if err != nil {
			return 0, nil, err
		}
		return v, rt, nil

	case *Ternary:
		c, ct, err := Eval(tt, e.Cond)
		if err != nil {
			return 0, nil, err
		}
		if ct.Kind() != types.Boolean {
			return 0, nil, errorf("", ErrTypeMismatch, "condition is %s", ct)
		}
		a, at, err := Eval(tt, e.Then)
		if err != nil {
			return 0, nil, err
		}
		b, bt, err := Eval(tt, e.Else)
		if err != nil {
			return 0, nil, err
		}
		rt, ok := unify(tt, at, bt)
		if !ok {
			return 0, nil, errorf("", ErrTypeMismatch, "branches are %s and %s", at, bt)
		}
		if c.Bool() {
			return convert(a, at, rt), rt, nil
		}
		return convert(b, bt, rt), rt, nil
	}
	return 0, nil, errorf("", ErrNotConstant, "%T", e)
}

// unify returns the common type of the two arms of a conditional.
func unify(tt *types.Table, a, b *types.Type) (*types.Type, bool) {
	switch {
	case a == b:
		return a, true
	case isArith(a) && isArith(b):
		return tt.Float(), true
	}
	return nil, false
}

// convert brings v from type from to type to; only int to float changes
// the representation.
func convert(v vm.Value, from, to *types.Type) vm.Value {
	if to.Kind() == types.Float && from.Kind() == types.Int {
		return vm.FloatValue(float64(v.Int()))
	}
	return v
}

func foldUnary(op UnaryOp, x vm.Value, t *types.Type) vm.Value {
	if t.Kind() == types.Float {
		f := x.Float()
		switch op {
		case Neg:
			return vm.FloatValue(-f)
		case ToBool:
			return vm.BoolValue(f != 0)
		case ToInt:
			return vm.IntValue(int32(f))
		}
		return x
	}
	i := x.Int()
	switch op {
	case Neg:
		return vm.IntValue(-i)
	case BitNot:
		return vm.IntValue(^i)
	case LogNot:
		return vm.BoolValue(i == 0)
	case ToBool:
		return vm.BoolValue(i != 0)
	case ToFloat:
		return vm.FloatValue(float64(i))
	}
	return vm.IntValue(i)
}

func foldBinary(op BinaryOp, x, y vm.Value, t *types.Type) (vm.Value, error) {
	if t.Kind() == types.Float {
		l, r := x.Float(), y.Float()
		switch op {
		case Add:
			return vm.FloatValue(l + r), nil
		case Sub:
			return vm.FloatValue(l - r), nil
		case Mul:
			return vm.FloatValue(l * r), nil
		case Div:
			return vm.FloatValue(l / r), nil
		case Eq:
			return vm.BoolValue(l == r), nil
		case Ne:
			return vm.BoolValue(l != r), nil
		case Lt:
			return vm.BoolValue(l < r), nil
		case Le:
			return vm.BoolValue(l <= r), nil
		case Gt:
			return vm.BoolValue(l > r), nil
		case Ge:
			return vm.BoolValue(l >= r), nil
		}
		return 0, errorf("", ErrInvalidOperator, "float %s", op)
	}

	l, r := x.Int(), y.Int()
	switch op {
	case Add:
		return vm.IntValue(l + r), nil
	case Sub:
		return vm.IntValue(l - r), nil
	case Mul:
		return vm.IntValue(l * r), nil
	case Div, Mod:
		if r == 0 {
			return 0, errorf("", ErrNotConstant, "integer division by zero")
		}
		if op == Div {
			return vm.IntValue(l / r), nil
		}
		return vm.IntValue(l % r), nil
	case Shl:
		return vm.IntValue(l << (uint32(r) & 31)), nil
	case Shr:
		return vm.IntValue(l >> (uint32(r) & 31)), nil
	case BitAnd, LogAnd:
		return vm.IntValue(l & r), nil
	case BitOr, LogOr:
		return vm.IntValue(l | r), nil
	case BitXor:
		return vm.IntValue(l ^ r), nil
	case Eq:
		return vm.BoolValue(l == r), nil
	case Ne:
		return vm.BoolValue(l != r), nil
	case Lt:
		return vm.BoolValue(l < r), nil
	case Le:
		return vm.BoolValue(l <= r), nil
	case Gt:
		return vm.BoolValue(l > r), nil
	case Ge:
		return vm.BoolValue(l >= r), nil
	}
	return 0, errorf("", ErrInvalidOperator, "int %s", op)
}
