package domain

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrorKind classifies a per-record fault for failure-tolerant output
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindExecution ErrorKind = "execution_error"
)

var (
	// ErrEmptyPrompt is returned when the prompt is missing or all whitespace
	ErrEmptyPrompt = errors.New("prompt is required and cannot be empty")

	// ErrUnknownOperation is returned for an operation outside query|continue|direct
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrSessionTimeout is the cancellation cause armed by the per-record deadline
	ErrSessionTimeout = errors.New("operation deadline exceeded")
)

// ValidationError is a record-scoped input problem
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError with a stack attached
func NewValidationError(field string, err error) error {
	return errors.WithStack(&ValidationError{Field: field, Err: err})
}

// TimeoutError reports that the per-record deadline fired before completion
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s: %v", e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ExecutionError is any other fault raised by the HTTP call or the session drain
type ExecutionError struct {
	// Phase names the step that failed (e.g. "direct", "session")
	Phase string
	Err   error
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// OperationError aborts a whole execution when failure-tolerant mode is off
type OperationError struct {
	ItemIndex   int
	Message     string
	Description string
	Err         error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("item %d: %s", e.ItemIndex, e.Message)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Classify maps a fault to its output error kind
func Classify(err error) ErrorKind {
	var te *TimeoutError
	if errors.As(err, &te) {
		return KindTimeout
	}
	return KindExecution
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// ErrorDetails renders the stack carried by err, or "" when it has none
func ErrorDetails(err error) string {
	var st stackTracer
	if !errors.As(err, &st) {
		return ""
	}
	return fmt.Sprintf("%+v", err)
}
