// Package capture owns the live microphone stream: it segments raw samples
// into fixed-duration frames, encodes them for the wire, and queues them for
// the outbound channel without ever stalling the audio clock.
package capture

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harborline/voicedesk/pkg/core/audio"
)

// Source delivers raw floating-point microphone samples.
type Source interface {
	// ReadSamples fills p with captured samples and returns how many were
	// written. It blocks until at least one sample is available.
	ReadSamples(p []float32) (int, error)

	Close() error
}

// Config configures a Pipeline.
type Config struct {
	Source Source
	Format audio.Format

	// FrameDuration is the capture frame size. Default: 20ms.
	FrameDuration time.Duration

	// QueueSize bounds the outbound frame queue. When the remote session
	// is not draining fast enough, new frames are dropped instead of
	// blocking capture. Default: 64.
	QueueSize int

	// OnLevel, if set, receives the RMS level of every captured frame.
	// It is called regardless of the mute flag: a muted microphone still
	// drives the level indicator.
	OnLevel func(rms float64)

	Logger *slog.Logger
}

// Pipeline reads the microphone in fixed frames and emits encoded PCM on
// Frames(). Muted frames are measured, then dropped before encoding.
type Pipeline struct {
	source   Source
	format   audio.Format
	samples  int
	onLevel  func(float64)
	logger   *slog.Logger

	muted atomic.Bool

	frames chan []byte
	done   chan struct{}

	closeOnce sync.Once
	startOnce sync.Once

	errMu sync.Mutex
	err   error
}

// NewPipeline creates a Pipeline around an open source.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, errors.New("capture source must not be nil")
	}
	if cfg.Format.SampleRateHz <= 0 {
		cfg.Format = audio.CaptureFormat()
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 20 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	samples := cfg.Format.SamplesFor(cfg.FrameDuration)
	if samples <= 0 {
		return nil, errors.New("capture frame duration too small")
	}
	return &Pipeline{
		source:  cfg.Source,
		format:  cfg.Format,
		samples: samples,
		onLevel: cfg.OnLevel,
		logger:  cfg.Logger,
		frames:  make(chan []byte, cfg.QueueSize),
		done:    make(chan struct{}),
	}, nil
}

// Frames yields encoded outbound frames. The channel is closed when the
// source ends or the pipeline is closed.
func (p *Pipeline) Frames() <-chan []byte {
	return p.frames
}

// SetMuted toggles the mute flag. Muted frames are dropped before the
// outbound queue; level reporting is unaffected.
func (p *Pipeline) SetMuted(muted bool) {
	p.muted.Store(muted)
}

// Muted reports the mute flag.
func (p *Pipeline) Muted() bool {
	return p.muted.Load()
}

// Start begins the capture loop. It is safe to call once.
func (p *Pipeline) Start() {
	p.startOnce.Do(func() {
		go p.run()
	})
}

func (p *Pipeline) run() {
	defer close(p.frames)

	frame := make([]float32, p.samples)
	for {
		select {
		case <-p.done:
			return
		default:
		}

		if err := p.readFrame(frame); err != nil {
			if !errors.Is(err, io.EOF) {
				p.setErr(err)
				p.logger.Debug("capture read failed", "error", err)
			}
			return
		}

		if p.onLevel != nil {
			p.onLevel(audio.RMSLevel(frame))
		}
		if p.muted.Load() {
			continue
		}

		select {
		case p.frames <- audio.EncodePCM16(frame):
		default:
			// Outbound queue is full; dropping beats stalling capture.
			p.logger.Debug("outbound frame dropped", "queue", cap(p.frames))
		}
	}
}

func (p *Pipeline) readFrame(frame []float32) error {
	filled := 0
	for filled < len(frame) {
		n, err := p.source.ReadSamples(frame[filled:])
		filled += n
		if err != nil {
			return err
		}
	}
	return nil
}

// Close stops capture and releases the source. Safe to call repeatedly.
func (p *Pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.source.Close()
	})
	return err
}

// Err returns the terminal capture error, if any.
func (p *Pipeline) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

func (p *Pipeline) setErr(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.err == nil {
		p.err = err
	}
}
