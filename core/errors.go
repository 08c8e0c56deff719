package core

import (
	"errors"
	"fmt"
)

var (
	// ErrAborted is returned by a task body that observed IsCancelled and
	// stopped early.
	ErrAborted = errors.New("task aborted")

	// ErrPoolClosed fails tasks submitted to, or discarded by, a closed pool.
	ErrPoolClosed = errors.New("worker pool is closed")
)

const (
	ErrorKindAborted  = "aborted"
	ErrorKindRejected = "rejected"
)

// TaskError describes a contained failure from a task or a worker step.
type TaskError struct {
	// Kind is the dynamic type of the failure, or one of the ErrorKind constants.
	Kind    string
	Message string
	// Trace is the goroutine stack captured at a panic. Returned errors
	// carry no trace.
	Trace string
	Panic bool

	cause error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TaskError) Unwrap() error {
	return e.cause
}

func newTaskError(err error) *TaskError {
	kind := fmt.Sprintf("%T", err)
	switch {
	case errors.Is(err, ErrAborted):
		kind = ErrorKindAborted
	case errors.Is(err, ErrPoolClosed):
		kind = ErrorKindRejected
	}
	return &TaskError{
		Kind:    kind,
		Message: err.Error(),
		cause:   err,
	}
}

func newPanicError(rec any, stack []byte) *TaskError {
	te := &TaskError{
		Kind:    fmt.Sprintf("%T", rec),
		Message: fmt.Sprint(rec),
		Trace:   string(stack),
		Panic:   true,
	}
	if err, ok := rec.(error); ok {
		te.cause = err
	}
	return te
}
