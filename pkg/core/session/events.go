package session

import (
	"github.com/harborline/voicedesk/pkg/core/security"
	"github.com/harborline/voicedesk/pkg/core/transcript"
)

// Event is the closed set of controller notifications delivered on the
// Events channel. The feed is lossy under backpressure; consumers that
// need authoritative state should use the controller accessors.
type Event interface {
	isEvent()
}

// StateChangedEvent reports a lifecycle transition.
type StateChangedEvent struct {
	From State
	To   State
}

func (StateChangedEvent) isEvent() {}

// SecurityLevelEvent reports a clearance change after a tool call.
type SecurityLevelEvent struct {
	Level security.Level
}

func (SecurityLevelEvent) isEvent() {}

// TranscriptEvent carries the entries committed by a completed turn.
type TranscriptEvent struct {
	Entries []transcript.Entry
}

func (TranscriptEvent) isEvent() {}

// NotificationEvent carries an out-of-band operator message.
type NotificationEvent struct {
	Message string
}

func (NotificationEvent) isEvent() {}

// MicLevelEvent reports caller input energy. Emitted even while muted so
// level meters keep moving.
type MicLevelEvent struct {
	RMS float64
}

func (MicLevelEvent) isEvent() {}

// AssistantLevelEvent reports assistant output energy: RMS for the
// meter, peak for clip detection.
type AssistantLevelEvent struct {
	RMS  float64
	Peak float64
}

func (AssistantLevelEvent) isEvent() {}

// ErrorEvent reports a session failure.
type ErrorEvent struct {
	Message string
}

func (ErrorEvent) isEvent() {}
