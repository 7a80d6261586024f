// Package audiodev binds the capture and playback interfaces to real
// hardware: malgo for the microphone, oto for the speaker.
package audiodev

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/harborline/voicedesk/pkg/core/audio"
	"github.com/harborline/voicedesk/pkg/core/capture"
)

// Devices owns the process-wide audio backends. Open it once; the oto
// context cannot be re-created within a process.
type Devices struct {
	malgoCtx *malgo.AllocatedContext
	otoCtx   *oto.Context
	speaker  *Speaker
	logger   *slog.Logger
}

// Open initializes both backends and waits for the speaker to be ready.
func Open(logger *slog.Logger) (*Devices, error) {
	if logger == nil {
		logger = slog.Default()
	}

	malgoCfg := malgo.ContextConfig{}
	malgoCfg.ThreadPriority = malgo.ThreadPriorityRealtime
	malgoCtx, err := malgo.InitContext(nil, malgoCfg, nil)
	if err != nil {
		return nil, err
	}

	out := audio.PlaybackFormat()
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   out.SampleRateHz,
		ChannelCount: out.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, err
	}
	<-ready

	d := &Devices{
		malgoCtx: malgoCtx,
		otoCtx:   otoCtx,
		logger:   logger,
	}
	d.speaker = newSpeaker(otoCtx, out)
	return d, nil
}

// Speaker returns the playback sink. It stays valid for the lifetime of
// the Devices.
func (d *Devices) Speaker() *Speaker {
	return d.speaker
}

// OpenMicrophone starts a capture device. Matches the session
// controller's mic opener signature.
func (d *Devices) OpenMicrophone(ctx context.Context) (capture.Source, error) {
	in := audio.CaptureFormat()
	m := &Microphone{}
	m.cond = sync.NewCond(&m.mu)

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = uint32(in.Channels)
	deviceCfg.SampleRate = uint32(in.SampleRateHz)
	deviceCfg.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			samples := bytesToFloat32(input)
			m.mu.Lock()
			m.buf = append(m.buf, samples...)
			m.mu.Unlock()
			m.cond.Signal()
		},
	}

	device, err := malgo.InitDevice(d.malgoCtx.Context, deviceCfg, callbacks)
	if err != nil {
		return nil, err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, err
	}
	m.device = device

	d.logger.Info("microphone open",
		slog.Int("sample_rate", in.SampleRateHz), slog.Int("channels", in.Channels))
	return m, nil
}

// Close releases both backends. The speaker is drained and closed first.
func (d *Devices) Close() error {
	d.speaker.close()
	err := d.malgoCtx.Uninit()
	d.malgoCtx.Free()
	return err
}

// Microphone buffers captured samples between the malgo callback and the
// pipeline's reader.
type Microphone struct {
	device *malgo.Device

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []float32
	closed bool
}

// ReadSamples blocks until at least one sample is buffered, then drains
// as much as fits in p.
func (m *Microphone) ReadSamples(p []float32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.buf) == 0 && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return 0, io.EOF
	}
	n := copy(p, m.buf)
	m.buf = m.buf[n:]
	return n, nil
}

// Close stops the device and unblocks any pending read.
func (m *Microphone) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()

	if m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
	}
	return nil
}

func bytesToFloat32(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// Speaker is a pull-based playback sink. The oto player reads from the
// internal buffer; Reset drops whatever has not reached the hardware yet.
type Speaker struct {
	otoCtx *oto.Context
	format audio.Format

	mu      sync.Mutex
	player  *oto.Player
	buf     []byte
	playing bool
	closed  bool
}

func newSpeaker(ctx *oto.Context, format audio.Format) *Speaker {
	return &Speaker{otoCtx: ctx, format: format}
}

// Write queues PCM for playback. The player is created lazily on the
// first write so an idle app holds no audio stream open.
func (s *Speaker) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("speaker is closed")
	}
	s.buf = append(s.buf, pcm...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	return nil
}

// Read implements io.Reader for the oto player. An empty buffer yields
// silence rather than blocking, so the pull side can never be stranded
// across a Reset.
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Reset discards queued audio and tears the player down so stale output
// cannot overlap what is scheduled next. The next Write starts fresh.
func (s *Speaker) Reset() error {
	s.mu.Lock()
	s.buf = s.buf[:0]
	if s.player == nil || !s.playing {
		s.mu.Unlock()
		return nil
	}
	player := s.player
	s.player = nil
	s.playing = false
	s.mu.Unlock()

	// Pause first so the device stops pulling, then drop oto's internal
	// buffer along with the player.
	player.Pause()
	return player.Close()
}

func (s *Speaker) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		_ = player.Close()
	}
}
