package compiler

import (
	"github.com/chazu/ymsl/types"
)

// ---------------------------------------------------------------------------
// Type rules shared by the code generator and the constant evaluator
// ---------------------------------------------------------------------------

// assignable reports whether a src value can be stored where dst is
// expected. The only implicit conversion is int to float.
func assignable(dst, src *types.Type) bool {
	return dst == src || (dst.Kind() == types.Float && src.Kind() == types.Int)
}

// unaryType returns the result type of op applied to x.
func unaryType(tt *types.Table, op UnaryOp, x *types.Type) (*types.Type, bool) {
	switch op {
	case Neg:
		if x.Kind() == types.Int || x.Kind() == types.Float {
			return x, true
		}
	case BitNot:
		if x.Kind() == types.Int {
			return x, true
		}
	case LogNot:
		if x.Kind() == types.Boolean {
			return x, true
		}
	case ToBool:
		switch x.Kind() {
		case types.Boolean, types.Int, types.Float:
			return tt.Boolean(), true
		}
	case ToInt:
		switch x.Kind() {
		case types.Boolean, types.Int, types.Float, types.Enum:
			return tt.Int(), true
		}
	case ToFloat:
		if x.Kind() == types.Int || x.Kind() == types.Float {
			return tt.Float(), true
		}
	}
	return nil, false
}

// binaryType returns the result type of x op y and the type both operands
// are brought to before the operation.
func binaryType(tt *types.Table, op BinaryOp, x, y *types.Type) (result, operand *types.Type, ok bool) {
	numeric := func() *types.Type {
		if !isArith(x) || !isArith(y) {
			return nil
		}
		if x.Kind() == types.Float || y.Kind() == types.Float {
			return tt.Float()
		}
		return tt.Int()
	}

	switch op {
	case Add, Sub, Mul, Div:
		if t := numeric(); t != nil {
			return t, t, true
		}
	case Mod, Shl, Shr:
		if x.Kind() == types.Int && y.Kind() == types.Int {
			return x, x, true
		}
	case BitAnd, BitOr, BitXor:
		if x == y && (x.Kind() == types.Int || x.Kind() == types.Boolean) {
			return x, x, true
		}
	case LogAnd, LogOr:
		if x.Kind() == types.Boolean && y.Kind() == types.Boolean {
			return x, x, true
		}
	case Lt, Le, Gt, Ge:
		if t := numeric(); t != nil {
			return tt.Boolean(), t, true
		}
	case Eq, Ne:
		if t := numeric(); t != nil {
			return tt.Boolean(), t, true
		}
		if x == y && x.Kind() != types.Void {
			return tt.Boolean(), x, true
		}
	}
	return nil, nil, false
}

func isArith(t *types.Type) bool {
	return t.Kind() == types.Int || t.Kind() == types.Float
}
