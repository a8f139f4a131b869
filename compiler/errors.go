package compiler

import (
	"errors"
	"fmt"
)

// Compile errors. Every error reported by this package wraps one of these;
// test with errors.Is.
var (
	ErrDuplicate         = errors.New("duplicate definition")
	ErrUndeclared        = errors.New("undeclared name")
	ErrArity             = errors.New("wrong number of arguments")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrEnumConstNotFound = errors.New("enum constant not found")
	ErrElementType       = errors.New("invalid element type")
	ErrNotConstant       = errors.New("not a constant expression")
	ErrNotFunction       = errors.New("not a function")
	ErrInvalidOperator   = errors.New("invalid operator for type")
	ErrOutsideLoop       = errors.New("break or continue outside a loop")
	ErrLabelNotPlaced    = errors.New("label never placed")
)

// Error is a compile error located in a unit: a function name, or the
// program name for top-level code and declarations.
type Error struct {
	Unit   string
	Err    error
	Detail string
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Unit != "" {
		return e.Unit + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(unit string, err error, format string, args ...any) *Error {
	return &Error{Unit: unit, Err: err, Detail: fmt.Sprintf(format, args...)}
}
