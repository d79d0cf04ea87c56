// internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
)

// ErrorCode classifies why a run ended in the Error state. It is logged next
// to the StructuredError stored in the run state.
type ErrorCode string

const (
	// -- Runtime Errors --
	ErrCodeRuntimeFailure   ErrorCode = "RUNTIME_FAILURE"
	ErrCodeRuntimeReported  ErrorCode = "RUNTIME_REPORTED_ERROR"
	ErrCodeConfigureFailure ErrorCode = "RUNTIME_CONFIGURE_FAILURE"

	// -- Internal System Errors --
	ErrCodeLoopPanic ErrorCode = "LOOP_PANIC"
)

var (
	// ErrRunActive is returned by Start while another run owns the session.
	ErrRunActive = errors.New("a run is already active in this session")
	// ErrNotRunning is returned when an operation needs a run that was never started.
	ErrNotRunning = errors.New("no run has been started")
	// ErrInvalidTransition is returned when the current status forbids the request.
	ErrInvalidTransition = errors.New("invalid run state transition")
	// ErrEmptyInstruction is returned by Start for a blank instruction.
	ErrEmptyInstruction = errors.New("instruction must not be empty")
)

// statusCoder is implemented by errors that carry an HTTP-like status.
type statusCoder interface {
	StatusCode() int
}

type statuser interface {
	Status() int
}

// structuredErrorFrom describes err for the user. The status is taken from
// the error chain when any link exposes one.
func structuredErrorFrom(err error) schemas.StructuredError {
	se := schemas.StructuredError{Message: err.Error()}
	var sc statusCoder
	var st statuser
	switch {
	case errors.As(err, &sc):
		se.Status = sc.StatusCode()
	case errors.As(err, &st):
		se.Status = st.Status()
	}
	return se
}

// panicError describes a recovered panic, including the goroutine stack.
func panicError(r interface{}) schemas.StructuredError {
	return schemas.StructuredError{
		Status:  -1,
		Message: "agent loop panicked: " + panicMessage(r),
		Stack:   string(debug.Stack()),
	}
}

func panicMessage(r interface{}) string {
	switch v := r.(type) {
	case error:
		return v.Error()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
