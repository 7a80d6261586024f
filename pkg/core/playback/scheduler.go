// Package playback schedules decoded assistant audio for gap-free,
// in-order playback against a monotonic output clock, and supports
// immediate full-queue cancellation when the user barges in.
package playback

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/harborline/voicedesk/pkg/core/audio"
)

// Clock reports time elapsed on the output device's timeline.
type Clock interface {
	Now() time.Duration
}

// NewClock returns a monotonic wall-clock starting at zero.
func NewClock() Clock {
	return &monotonicClock{start: time.Now()}
}

type monotonicClock struct {
	start time.Time
}

func (c *monotonicClock) Now() time.Duration {
	return time.Since(c.start)
}

// Sink receives PCM for sequential playback. Write appends audio to the
// device queue; Reset discards everything queued and stops output.
type Sink interface {
	Write(pcm []byte) error
	Reset() error
}

// Buffer records one scheduled audio segment.
type Buffer struct {
	ID       int64
	StartAt  time.Duration
	Duration time.Duration
}

func (b Buffer) endAt() time.Duration {
	return b.StartAt + b.Duration
}

// Config configures a Scheduler.
type Config struct {
	Clock  Clock
	Sink   Sink
	Format audio.Format
	Logger *slog.Logger
}

// Scheduler owns the playback cursor and the set of in-flight buffers.
// All mutable state lives behind one mutex; the event-delivery path and
// the cancellation path never share bare references.
type Scheduler struct {
	clock  Clock
	sink   Sink
	format audio.Format
	logger *slog.Logger

	mu        sync.Mutex
	cursor    time.Duration
	cursorSet bool
	active    map[int64]Buffer
	nextID    int64
}

// NewScheduler creates a Scheduler. Clock defaults to a fresh monotonic
// clock and Format to the 24 kHz playback format.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = NewClock()
	}
	if cfg.Format.SampleRateHz <= 0 {
		cfg.Format = audio.PlaybackFormat()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		clock:  cfg.Clock,
		sink:   cfg.Sink,
		format: cfg.Format,
		logger: cfg.Logger,
		active: make(map[int64]Buffer),
	}
}

// Enqueue schedules one decoded buffer. Its start time is the later of the
// cursor and the current clock reading, so bursts arriving ahead of playback
// stack back-to-back while a late buffer starts immediately.
func (s *Scheduler) Enqueue(pcm []byte) (Buffer, error) {
	if len(pcm) == 0 {
		return Buffer{}, nil
	}

	s.mu.Lock()
	now := s.clock.Now()
	s.pruneLocked(now)

	start := now
	if s.cursorSet && s.cursor > start {
		start = s.cursor
	}
	buf := Buffer{
		ID:       s.nextID,
		StartAt:  start,
		Duration: s.format.DurationOf(len(pcm)),
	}
	s.nextID++
	prevCursor, prevSet := s.cursor, s.cursorSet
	s.active[buf.ID] = buf
	s.cursor = buf.endAt()
	s.cursorSet = true
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.Write(pcm); err != nil {
			s.mu.Lock()
			delete(s.active, buf.ID)
			s.cursor, s.cursorSet = prevCursor, prevSet
			s.mu.Unlock()
			return Buffer{}, err
		}
	}
	return buf, nil
}

// CancelAll stops every in-flight and queued buffer immediately, clears the
// active set, and unsets the cursor so the next buffer starts at current
// clock time. A sink that has already drained may fail to reset; that is
// ignored.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	n := len(s.active)
	s.active = make(map[int64]Buffer)
	s.cursor = 0
	s.cursorSet = false
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.Reset(); err != nil {
			s.logger.Debug("playback reset after cancel failed", "error", err)
		}
	}
	if n > 0 {
		s.logger.Debug("playback cancelled", "buffers", n)
	}
}

// Active returns the buffers still scheduled or playing, ordered by start
// time. Buffers whose playback window has passed are pruned first.
func (s *Scheduler) Active() []Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.clock.Now())

	out := make([]Buffer, 0, len(s.active))
	for _, b := range s.active {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt < out[j].StartAt })
	return out
}

// Buffered returns how much scheduled audio remains ahead of the clock.
func (s *Scheduler) Buffered() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cursorSet {
		return 0
	}
	remaining := s.cursor - s.clock.Now()
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *Scheduler) pruneLocked(now time.Duration) {
	for id, b := range s.active {
		if b.endAt() <= now {
			delete(s.active, id)
		}
	}
}
