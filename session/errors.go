package session

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors usable with errors.Is.
var (
	ErrNotConnected     = errors.New("session: not connected")
	ErrAlreadyConnected = errors.New("session: already connected")
	ErrQueueFull        = errors.New("session: send queue is full")
	ErrRecordTooLarge   = errors.New("session: record exceeds maximum size")
	ErrHandlerExists    = errors.New("session: handler already registered for type")
)

// SessionError is the base error type embedded by TransportError and
// TimeoutError. Not every non-sentinel error is one: Connect and delivery
// callbacks can also pass on dialer and transport errors unwrapped.
type SessionError struct {
	Message string
	Code    ConnectionError
	Cause   error
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}

// TransportError indicates a problem at the byte-stream layer.
type TransportError struct {
	SessionError
	Address string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s): %s", e.Address, e.SessionError.Error())
}

// TimeoutError indicates an operation exceeded its deadline.
type TimeoutError struct {
	SessionError
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %v during %s: %s", e.Timeout, e.Operation, e.SessionError.Error())
}

// NewTransportError wraps cause as a TransportError against address.
func NewTransportError(address, message string, cause error) error {
	return &TransportError{
		SessionError: SessionError{Message: message, Code: ErrRefused, Cause: cause},
		Address:      address,
	}
}

// NewTimeoutError wraps cause as a TimeoutError for the named operation.
func NewTimeoutError(operation string, timeout time.Duration, cause error) error {
	return &TimeoutError{
		SessionError: SessionError{Message: "operation timed out", Code: ErrTimeout, Cause: cause},
		Operation:    operation,
		Timeout:      timeout,
	}
}

// IsTimeoutError reports whether err is or wraps a TimeoutError.
func IsTimeoutError(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// IsTransportError reports whether err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
