package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when an operation needs a handler ID that is not known yet.
	ErrNotInitialized = errors.New("handler ID is not yet initialized")
	// ErrStreamCanceled is returned to every subscriber of a canceled stream.
	ErrStreamCanceled = errors.New("event stream canceled")
)

// InvariantError signals a state the event stream logic must never reach.
type InvariantError struct {
	HandlerID string
	Status    RunStatus
	Reason    string
}

func NewInvariantError(handlerID string, status RunStatus, reason string) *InvariantError {
	return &InvariantError{HandlerID: handlerID, Status: status, Reason: reason}
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation for handler %s (status %s): %s", e.HandlerID, e.Status, e.Reason)
}

// IsInvariantError reports whether err wraps an *InvariantError.
func IsInvariantError(err error) bool {
	var target *InvariantError
	return errors.As(err, &target)
}

// DefaultExecutionError is reported when a failed execution carries no message.
const DefaultExecutionError = "Server Error"

// ExecutionError reports that the remote execution itself failed.
type ExecutionError struct {
	HandlerID string
	Message   string
}

func NewExecutionError(handlerID, message string) *ExecutionError {
	if message == "" {
		message = DefaultExecutionError
	}
	return &ExecutionError{HandlerID: handlerID, Message: message}
}

func (e *ExecutionError) Error() string {
	return e.Message
}
