package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "a session is already running",
	}

	expected := "invalid_request_error: a session is already running"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrTransport,
		Message: "websocket write",
		Code:    "write_failed",
	}

	expected := "transport_error: websocket write (code: write_failed)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequestError(t *testing.T) {
	err := NewInvalidRequestError("bad request")
	if err.Type != ErrInvalidRequest {
		t.Errorf("Type = %v, want %v", err.Type, ErrInvalidRequest)
	}
	if err.Message != "bad request" {
		t.Errorf("Message = %q, want %q", err.Message, "bad request")
	}
}

func TestSetupErrorUnwraps(t *testing.T) {
	cause := errors.New("no such device")
	err := NewSetupError("open microphone", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is() did not find the underlying cause")
	}
	if !IsSetup(err) {
		t.Error("IsSetup() = false, want true")
	}
	if IsTransport(err) {
		t.Error("IsTransport() = true, want false")
	}
}

func TestTransportErrorThroughWrapping(t *testing.T) {
	err := fmt.Errorf("dial: %w", NewTransportError("websocket dial failed", errors.New("refused")))
	if !IsTransport(err) {
		t.Error("IsTransport() = false for wrapped transport error")
	}
	if IsSetup(err) {
		t.Error("IsSetup() = true, want false")
	}
}
