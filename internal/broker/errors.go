package broker

import (
	"errors"
	"fmt"
)

var (
	ErrNotActive         = errors.New("signal is not active")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyClosed     = errors.New("trade already closed")
	ErrInsufficientCash  = errors.New("insufficient cash")
	ErrMaxPositions      = errors.New("max open positions reached")
	ErrUnsupportedAction = errors.New("only long positions are supported")
)

// ExecutionError is returned by broker operations. It unwraps to one of the
// sentinels above or to the underlying failure.
type ExecutionError struct {
	Op  string
	ID  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
