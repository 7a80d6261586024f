package core

import (
	"errors"
	"fmt"
)

// Error represents a concierge runtime error.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`

	underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.underlying
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrInvalidRequest covers misuse of the API surface, for example
	// starting a session that is already active.
	ErrInvalidRequest ErrorType = "invalid_request_error"
	// ErrSetup covers failures while acquiring session resources:
	// microphone access, audio device contexts, connection refusal.
	ErrSetup ErrorType = "setup_error"
	// ErrTransport covers mid-session failures reported by or on the way
	// to the remote session service.
	ErrTransport ErrorType = "transport_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewSetupError creates a setup error wrapping the underlying cause.
func NewSetupError(message string, underlying error) *Error {
	return &Error{
		Type:       ErrSetup,
		Message:    message,
		underlying: underlying,
	}
}

// NewTransportError creates a transport error wrapping the underlying cause.
func NewTransportError(message string, underlying error) *Error {
	return &Error{
		Type:       ErrTransport,
		Message:    message,
		underlying: underlying,
	}
}

// IsSetup reports whether err is a setup failure.
func IsSetup(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Type == ErrSetup
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Type == ErrTransport
}
