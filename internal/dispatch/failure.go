package dispatch

import (
	"errors"
	"fmt"
)

// Failure is the single error value a caller receives when a dispatched
// operation returned an error or panicked.
type Failure struct {
	Op    string
	Err   error
	Panic any
	Stack []byte
}

// Error returns the operation's own message so callers can show it as is.
func (f *Failure) Error() string {
	if f.Panic != nil {
		return fmt.Sprintf("panic: %v", f.Panic)
	}
	if f.Err == nil {
		return "operation " + f.Op + " failed"
	}
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsFailure reports whether err came from a dispatched operation.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}
