package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/harborline/voicedesk/pkg/core"
	"github.com/harborline/voicedesk/pkg/core/audio"
	"github.com/harborline/voicedesk/pkg/core/bank"
	"github.com/harborline/voicedesk/pkg/core/capture"
	"github.com/harborline/voicedesk/pkg/core/playback"
	"github.com/harborline/voicedesk/pkg/core/security"
	"github.com/harborline/voicedesk/pkg/core/transcript"
)

// Deps wires the controller's collaborators. Service, OpenMic and Sink
// are required.
type Deps struct {
	Service Service

	// OpenMic opens the capture device for one session. The controller
	// closes the returned source on teardown.
	OpenMic func(ctx context.Context) (capture.Source, error)

	// Sink receives scheduled assistant audio.
	Sink playback.Sink

	// Clock drives playback scheduling. Defaults to a monotonic clock.
	Clock playback.Clock

	// Security configures the tool dispatcher. Its OnNotification hook
	// is chained into the controller's event feed.
	Security security.Config

	Config        Config
	FrameDuration time.Duration
	Logger        *slog.Logger
}

type itemKind int

const (
	kindEvent itemKind = iota
	kindError
	kindClosed
)

// inboundItem tags remote traffic with the session generation it belongs
// to. Items from a generation that has since been stopped are dropped.
type inboundItem struct {
	gen   uint64
	kind  itemKind
	event ServerEvent
	err   error
}

// Controller runs at most one live session at a time. All remote traffic
// is serialized through a single run goroutine, so event handling never
// races with itself; Start, Stop and the accessors are safe to call from
// any goroutine.
type Controller struct {
	service  Service
	openMic  func(ctx context.Context) (capture.Source, error)
	cfg      Config
	frameDur time.Duration
	logger   *slog.Logger

	scheduler  *playback.Scheduler
	aggregator *transcript.Aggregator
	dispatcher *security.Dispatcher

	events  chan Event
	inbound chan inboundItem
	done    chan struct{}

	closeOnce sync.Once
	muted     atomic.Bool

	mu        sync.Mutex
	state     State
	gen       uint64
	sessionID string
	handle    Handle
	pipeline  *capture.Pipeline
	lastLevel security.Level
}

// NewController builds a controller and starts its run goroutine. Call
// Close when done with it.
func NewController(deps Deps) (*Controller, error) {
	if deps.Service == nil {
		return nil, core.NewInvalidRequestError("session service must not be nil")
	}
	if deps.OpenMic == nil {
		return nil, core.NewInvalidRequestError("microphone opener must not be nil")
	}
	if deps.Sink == nil {
		return nil, core.NewInvalidRequestError("playback sink must not be nil")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	c := &Controller{
		service:  deps.Service,
		openMic:  deps.OpenMic,
		cfg:      deps.Config,
		frameDur: deps.FrameDuration,
		logger:   deps.Logger,
		events:   make(chan Event, 256),
		inbound:  make(chan inboundItem, 128),
		done:     make(chan struct{}),
		state:    StateIdle,
	}
	c.scheduler = playback.NewScheduler(playback.Config{
		Clock:  deps.Clock,
		Sink:   deps.Sink,
		Format: deps.Config.OutputFormat,
		Logger: deps.Logger,
	})
	c.aggregator = transcript.NewAggregator()

	secCfg := deps.Security
	secCfg.Logger = deps.Logger
	userNotify := secCfg.OnNotification
	secCfg.OnNotification = func(n security.Notification) {
		c.emit(NotificationEvent{Message: n.Message})
		if userNotify != nil {
			userNotify(n)
		}
	}
	c.dispatcher = security.NewDispatcher(secCfg)

	go c.run()
	return c, nil
}

// Start opens the microphone and the remote session, then begins
// streaming. It returns once the session is active. Starting while a
// session is connecting or active is an error.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateActive {
		c.mu.Unlock()
		return core.NewInvalidRequestError("a session is already running")
	}
	c.gen++
	gen := c.gen
	c.sessionID = uuid.NewString()
	sid := c.sessionID
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	source, err := c.openMic(ctx)
	if err != nil {
		wrapped := core.NewSetupError("open microphone", err)
		c.failStart(gen, wrapped)
		return wrapped
	}

	pipeline, err := capture.NewPipeline(capture.Config{
		Source:        source,
		Format:        c.cfg.InputFormat,
		FrameDuration: c.frameDur,
		OnLevel:       func(rms float64) { c.emit(MicLevelEvent{RMS: rms}) },
		Logger:        c.logger,
	})
	if err != nil {
		source.Close()
		wrapped := core.NewSetupError("build capture pipeline", err)
		c.failStart(gen, wrapped)
		return wrapped
	}
	pipeline.SetMuted(c.muted.Load())

	cb := Callbacks{
		OnEvent: func(ev ServerEvent) { c.push(inboundItem{gen: gen, kind: kindEvent, event: ev}) },
		OnError: func(err error) { c.push(inboundItem{gen: gen, kind: kindError, err: err}) },
		OnClose: func() { c.push(inboundItem{gen: gen, kind: kindClosed}) },
	}
	handle, err := c.service.Open(ctx, c.cfg, cb)
	if err != nil {
		pipeline.Close()
		c.failStart(gen, err)
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		// Stop won the race while we were dialing.
		c.mu.Unlock()
		handle.Close()
		pipeline.Close()
		return core.NewInvalidRequestError("session stopped during start")
	}
	c.handle = handle
	c.pipeline = pipeline
	c.setStateLocked(StateActive)
	c.mu.Unlock()

	pipeline.Start()
	go c.forward(pipeline, handle)

	c.logger.Info("session active",
		slog.String("session_id", sid), slog.String("model", c.cfg.Model))
	return nil
}

// failStart records a failed start attempt unless Stop already moved the
// generation forward.
func (c *Controller) failStart(gen uint64, err error) {
	c.mu.Lock()
	if c.gen == gen {
		c.setStateLocked(StateError)
	}
	c.mu.Unlock()
	c.logger.Error("session start failed", slog.String("error", err.Error()))
	c.emit(ErrorEvent{Message: err.Error()})
}

// forward drains capture frames into the remote session. A send failure
// ends forwarding; the read side reports the session error.
func (c *Controller) forward(p *capture.Pipeline, h Handle) {
	for frame := range p.Frames() {
		if err := h.SendAudioFrame(frame); err != nil {
			c.logger.Warn("stopping audio forwarding", slog.String("error", err.Error()))
			return
		}
	}
}

func (c *Controller) push(item inboundItem) {
	select {
	case c.inbound <- item:
	case <-c.done:
	}
}

func (c *Controller) run() {
	for {
		select {
		case <-c.done:
			return
		case item := <-c.inbound:
			c.mu.Lock()
			stale := item.gen != c.gen
			c.mu.Unlock()
			if stale {
				continue
			}
			switch item.kind {
			case kindEvent:
				c.handleServerEvent(item.gen, item.event)
			case kindError:
				c.logger.Error("session failed", slog.String("error", item.err.Error()))
				c.emit(ErrorEvent{Message: item.err.Error()})
				c.teardown(StateError)
			case kindClosed:
				c.logger.Info("session closed by remote")
				c.teardown(StateIdle)
			}
		}
	}
}

func (c *Controller) handleServerEvent(gen uint64, ev ServerEvent) {
	// The generation is re-checked and playback mutated under one lock
	// hold so an Enqueue that passed the check cannot land after Stop's
	// CancelAll. Teardown bumps the generation before it cancels.
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	// Interruption cancels queued playback before any new audio in the
	// same event is scheduled.
	if ev.Interrupted {
		c.scheduler.CancelAll()
	}
	if len(ev.Audio) > 0 {
		if _, err := c.scheduler.Enqueue(ev.Audio); err != nil {
			c.logger.Warn("dropping assistant audio", slog.String("error", err.Error()))
		}
	}
	handle := c.handle
	c.mu.Unlock()

	if len(ev.Audio) > 0 {
		c.emit(AssistantLevelEvent{
			RMS:  audio.RMSEnergy(ev.Audio),
			Peak: audio.PeakAmplitude(ev.Audio),
		})
	}
	if ev.InputTranscript != "" {
		c.aggregator.AppendUser(ev.InputTranscript)
	}
	if ev.OutputTranscript != "" {
		c.aggregator.AppendAssistant(ev.OutputTranscript)
	}
	if ev.TurnComplete {
		if entries := c.aggregator.Flush(); len(entries) > 0 {
			c.emit(TranscriptEvent{Entries: entries})
		}
	}
	if len(ev.ToolCalls) > 0 {
		c.handleToolCalls(handle, ev.ToolCalls)
	}
}

func (c *Controller) handleToolCalls(handle Handle, calls []security.Call) {
	for _, call := range calls {
		result := c.dispatcher.Execute(call)
		if handle == nil {
			continue
		}
		// Results go back independently; one slow send must not delay
		// the rest of the batch.
		go func(call security.Call, payload map[string]any) {
			if err := handle.SendToolResult(call.ID, call.Name, payload); err != nil {
				c.logger.Warn("tool result send failed",
					slog.String("tool", call.Name), slog.String("error", err.Error()))
			}
		}(call, result.Payload())
	}

	c.mu.Lock()
	lvl := c.dispatcher.Level()
	changed := lvl != c.lastLevel
	c.lastLevel = lvl
	c.mu.Unlock()
	if changed {
		c.emit(SecurityLevelEvent{Level: lvl})
	}
}

// Stop tears the current session down: the remote handle and microphone
// are closed, queued playback is cancelled, and the security state is
// reset. Safe to call at any time, including repeatedly.
func (c *Controller) Stop() {
	c.teardown(StateIdle)
}

func (c *Controller) teardown(to State) {
	c.mu.Lock()
	c.gen++
	handle, pipeline := c.handle, c.pipeline
	c.handle, c.pipeline = nil, nil
	c.setStateLocked(to)
	levelChanged := c.lastLevel != security.LevelUnauthenticated
	c.lastLevel = security.LevelUnauthenticated
	c.mu.Unlock()

	if handle != nil {
		handle.Close()
	}
	if pipeline != nil {
		pipeline.Close()
	}
	c.scheduler.CancelAll()
	c.dispatcher.Reset()
	if levelChanged {
		c.emit(SecurityLevelEvent{Level: security.LevelUnauthenticated})
	}
	// Commit any fragments from a turn the teardown cut short.
	if entries := c.aggregator.Flush(); len(entries) > 0 {
		c.emit(TranscriptEvent{Entries: entries})
	}
}

// Close stops the session and the run goroutine. The controller cannot
// be reused afterwards.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.Stop()
		close(c.done)
	})
}

// Events yields the controller's notification feed. The feed drops
// events under backpressure rather than stalling audio.
func (c *Controller) Events() <-chan Event {
	return c.events
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Debug("event feed full, dropping event")
	}
}

// setStateLocked transitions the state and emits the change. Callers
// hold c.mu.
func (c *Controller) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.emit(StateChangedEvent{From: from, To: to})
}

// State reports the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SecurityLevel reports the caller's current clearance.
func (c *Controller) SecurityLevel() security.Level {
	return c.dispatcher.Level()
}

// Account returns the cached account snapshot, if one has been served
// this session.
func (c *Controller) Account() (bank.Snapshot, bool) {
	return c.dispatcher.Account()
}

// Transcript returns the committed conversation so far.
func (c *Controller) Transcript() []transcript.Entry {
	return c.aggregator.Entries()
}

// SetMuted toggles the microphone mute flag. The level meter keeps
// reporting while muted.
func (c *Controller) SetMuted(muted bool) {
	c.muted.Store(muted)
	c.mu.Lock()
	p := c.pipeline
	c.mu.Unlock()
	if p != nil {
		p.SetMuted(muted)
	}
}

// Muted reports the mute flag.
func (c *Controller) Muted() bool {
	return c.muted.Load()
}

// Buffered reports how much assistant audio is queued ahead of playback.
func (c *Controller) Buffered() time.Duration {
	return c.scheduler.Buffered()
}
