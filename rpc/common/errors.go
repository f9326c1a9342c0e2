package common

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Kinds
// --------------------------------------------------------------------------

// Every error returned by the transport and client packages matches exactly
// one of these kinds with errors.Is. ErrConnect additionally matches
// ErrSystem.
var (
	ErrResolve         = errors.New("can't resolve address")
	ErrTimeout         = errors.New("timeout reached")
	ErrSystem          = errors.New("system error")
	ErrConnect         = fmt.Errorf("%w: connection failed", ErrSystem)
	ErrSync            = errors.New("sync error")
	ErrTooLargeRequest = errors.New("request is too large")
	ErrLogin           = errors.New("login failed")
	ErrUnknown         = errors.New("unknown error")
	ErrInvalidConfig   = errors.New("invalid config")
)

// Error carries the kind of failure, the operation that failed and the
// underlying cause. Both Kind and Err are reachable through errors.Is and
// errors.As.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError creates an Error of the given kind. A nil kind is treated as
// ErrUnknown.
func NewError(kind error, op string, err error) *Error {
	if kind == nil {
		kind = ErrUnknown
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf creates an Error of the given kind with a formatted cause
func Errorf(kind error, op string, format string, args ...interface{}) *Error {
	return NewError(kind, op, fmt.Errorf(format, args...))
}

// IsSystemError reports whether err is a transport level failure that
// leaves the connection unusable
func IsSystemError(err error) bool {
	return errors.Is(err, ErrSystem)
}
