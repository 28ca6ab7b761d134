package runner

import (
	"errors"
	"fmt"
	"time"
)

// StructuralError reports a registration that cannot be attached to the tree.
// It aborts the run instead of failing a single case.
type StructuralError struct {
	Op       string
	Name     string
	ParentID string
	Err      error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s %q: parent %q: %v", e.Op, e.Name, e.ParentID, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// IsStructuralError returns true if err is or wraps a StructuralError
func IsStructuralError(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// TimeoutError is returned for work that did not settle within its time limit
type TimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Name, e.Timeout)
}

// IsTimeoutError returns true if err is or wraps a TimeoutError
func IsTimeoutError(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// PanicError carries a value recovered from a panicking body
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IsPanicError returns true if err is or wraps a PanicError
func IsPanicError(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
