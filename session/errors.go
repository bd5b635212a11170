package session

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport matches every failure reported by a transport.
	ErrTransport = errors.New("agent transport failed")
	// ErrNoAssistantMessage is returned when strict replies are required and
	// the turn produced no agent-authored message.
	ErrNoAssistantMessage = errors.New("no assistant message observed")
	// ErrThreadRequired is returned when a wait-mode turn has no thread.
	ErrThreadRequired = errors.New("thread id is required")
	// ErrThreadNotFound is returned by transports when a thread id is unknown.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrMissingTransport is returned when a client is built without a transport.
	ErrMissingTransport = errors.New("transport is required")
	// ErrInvalidTurnTransition is returned for a disallowed turn state change.
	ErrInvalidTurnTransition = errors.New("invalid turn state transition")
	// ErrEventInvalid is returned when a turn event fails validation.
	ErrEventInvalid = errors.New("turn event is invalid")
)

// TransportError describes a failed call against the agent service.
type TransportError struct {
	Op  string
	Err error
}

func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrTransport.Error(), e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", ErrTransport.Error(), e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// AsTransportError returns err unchanged when it already is a transport
// failure and wraps it otherwise.
func AsTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransport) {
		return err
	}
	return NewTransportError(op, err)
}
