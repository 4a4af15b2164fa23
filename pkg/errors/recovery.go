package errors

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// FromPanic turns a recovered value into a fatal INTERNAL_ERROR. scope names
// the code that panicked, for example a topic or a rating stage.
func FromPanic(scope string, r any) error {
	if r == nil {
		return nil
	}

	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("panic in %s: %v", scope, r)
	}

	return ErrInternal.
		WithCause(cause).
		WithDetail("panic", scope).
		WithDetail("stack_trace", string(debug.Stack())).
		AsFatal()
}

// Guard runs fn and converts a panic inside it with FromPanic.
func Guard(scope string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = FromPanic(scope, r)
		}
	}()
	return fn()
}

// IsPanic reports whether err was produced from a recovered panic.
func IsPanic(err error) bool {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return false
	}
	_, ok := appErr.Details["panic"]
	return ok
}
