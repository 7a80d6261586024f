// Package transcript buffers incremental transcription fragments per speaker
// and flushes paired entries at turn boundaries.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Speaker identifies a side of the conversation.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Entry is one committed transcript line. Entries are append-only; the log
// order is conversation order.
type Entry struct {
	Speaker   Speaker
	Text      string
	Timestamp time.Time
}

// Aggregator accumulates fragments by concatenation and keeps the committed
// log. Fragment order within a turn is arrival order.
type Aggregator struct {
	mu        sync.Mutex
	user      strings.Builder
	assistant strings.Builder
	entries   []Entry
	now       func() time.Time
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithNow overrides the timestamp source.
func WithNow(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an empty Aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AppendUser appends an inbound transcription fragment for the user side.
func (a *Aggregator) AppendUser(fragment string) {
	if fragment == "" {
		return
	}
	a.mu.Lock()
	a.user.WriteString(fragment)
	a.mu.Unlock()
}

// AppendAssistant appends an outbound transcription fragment.
func (a *Aggregator) AppendAssistant(fragment string) {
	if fragment == "" {
		return
	}
	a.mu.Lock()
	a.assistant.WriteString(fragment)
	a.mu.Unlock()
}

// Flush commits the accumulated turn. If either side holds text, one user
// entry and one assistant entry are appended (an empty side still gets its
// entry so turns stay strictly paired), both stamped with the flush time.
// Both accumulators are reset regardless. The newly appended entries are
// returned.
func (a *Aggregator) Flush() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()

	user := a.user.String()
	assistant := a.assistant.String()
	a.user.Reset()
	a.assistant.Reset()

	if user == "" && assistant == "" {
		return nil
	}

	at := a.now()
	pair := []Entry{
		{Speaker: SpeakerUser, Text: user, Timestamp: at},
		{Speaker: SpeakerAssistant, Text: assistant, Timestamp: at},
	}
	a.entries = append(a.entries, pair...)
	return pair
}

// Entries returns a copy of the committed log in conversation order.
func (a *Aggregator) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Pending reports the uncommitted fragment text per speaker.
func (a *Aggregator) Pending() (user, assistant string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user.String(), a.assistant.String()
}

// Clear discards both the committed log and any pending fragments.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.Reset()
	a.assistant.Reset()
	a.entries = nil
}
