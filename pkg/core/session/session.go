// Package session owns the lifecycle of one duplex voice conversation:
// it wires microphone capture, the remote live service, playback
// scheduling, transcription, and tool security into a single controller.
package session

import (
	"context"

	"github.com/harborline/voicedesk/pkg/core/audio"
	"github.com/harborline/voicedesk/pkg/core/security"
)

// State is the controller's lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// DefaultSystemInstruction is the concierge persona sent during setup.
const DefaultSystemInstruction = `You are the voice concierge for Harborline Bank. Be warm, concise, and professional.
Never reveal balances or transactions until verify_identity has succeeded.
When the caller asks about their account, request their 4-digit PIN and call verify_identity.
Use transfer_to_human when the caller asks for a person, and report_fraud immediately if they
report a stolen card or suspicious activity. Speak amounts and dates naturally.`

// Config describes the remote session to open.
type Config struct {
	Model             string
	Voice             string
	SystemInstruction string
	Tools             []security.Declaration

	InputFormat  audio.Format
	OutputFormat audio.Format

	InputTranscription  bool
	OutputTranscription bool
}

// ServerEvent is one decoded message from the remote service. Fields are
// populated per message kind; a single event may carry audio and a
// transcript fragment together.
type ServerEvent struct {
	Audio            []byte
	Interrupted      bool
	InputTranscript  string
	OutputTranscript string
	TurnComplete     bool
	ToolCalls        []security.Call
}

// Callbacks receive the remote session's lifecycle and traffic. All
// callbacks are invoked from the service's read loop; implementations
// must not block.
type Callbacks struct {
	OnOpen  func()
	OnEvent func(ServerEvent)
	OnError func(error)
	OnClose func()
}

// Handle is an open remote session.
type Handle interface {
	// SendAudioFrame streams one PCM frame of caller audio.
	SendAudioFrame(pcm []byte) error
	// SendToolResult returns a structured tool outcome to the model.
	SendToolResult(callID, name string, payload map[string]any) error
	Close() error
}

// Service dials the remote live API.
type Service interface {
	Open(ctx context.Context, cfg Config, cb Callbacks) (Handle, error)
}
