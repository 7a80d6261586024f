// Command voicedesk is an interactive terminal client for the Harborline
// voice concierge. It streams microphone audio to a Gemini Live session,
// plays the assistant's replies, and drives the banking tool flow.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/harborline/voicedesk/internal/audiodev"
	"github.com/harborline/voicedesk/pkg/core/security"
	"github.com/harborline/voicedesk/pkg/core/session"
	"github.com/harborline/voicedesk/pkg/remote/gemini"
)

func main() {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "voicedesk:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(cfg config, logger *slog.Logger) error {
	devices, err := audiodev.Open(logger)
	if err != nil {
		return fmt.Errorf("open audio devices: %w", err)
	}
	defer devices.Close()

	svc := &gemini.Service{
		APIKey:   cfg.APIKey,
		Endpoint: cfg.Endpoint,
		Logger:   logger,
	}

	ctl, err := session.NewController(session.Deps{
		Service:  svc,
		OpenMic:  devices.OpenMicrophone,
		Sink:     devices.Speaker(),
		Security: security.Config{PIN: cfg.PIN},
		Config: session.Config{
			Model:               cfg.Model,
			Voice:               cfg.Voice,
			SystemInstruction:   session.DefaultSystemInstruction,
			Tools:               security.Declarations(),
			InputTranscription:  true,
			OutputTranscription: true,
		},
		FrameDuration: cfg.FrameDuration,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer ctl.Close()

	levels := &levelMeter{}
	go printEvents(ctl, levels)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nshutting down")
		ctl.Close()
		devices.Close()
		os.Exit(0)
	}()

	fmt.Println("voicedesk: Harborline voice concierge")
	fmt.Println("commands: /start /stop /mute /status /transcript /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case "/start":
			if err := ctl.Start(context.Background()); err != nil {
				fmt.Println("start failed:", err)
			} else {
				fmt.Println("session started, speak into the microphone")
			}
		case "/stop":
			ctl.Stop()
			fmt.Println("session stopped")
		case "/mute":
			muted := !ctl.Muted()
			ctl.SetMuted(muted)
			if muted {
				fmt.Println("microphone muted")
			} else {
				fmt.Println("microphone live")
			}
		case "/status":
			printStatus(ctl, levels)
		case "/transcript":
			printTranscript(ctl)
		case "/quit":
			ctl.Close()
			return nil
		default:
			fmt.Println("commands: /start /stop /mute /status /transcript /quit")
		}
	}
	return scanner.Err()
}

// levelMeter keeps the latest level readings for the status display.
type levelMeter struct {
	mu            sync.Mutex
	mic           float64
	assistant     float64
	assistantPeak float64
}

func (m *levelMeter) setMic(rms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mic = rms
}

func (m *levelMeter) setAssistant(rms, peak float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assistant = rms
	m.assistantPeak = peak
}

func (m *levelMeter) get() (mic, assistant, peak float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mic, m.assistant, m.assistantPeak
}

func printEvents(ctl *session.Controller, levels *levelMeter) {
	for ev := range ctl.Events() {
		switch e := ev.(type) {
		case session.StateChangedEvent:
			fmt.Printf("\n[session] %s -> %s\n> ", e.From, e.To)
		case session.SecurityLevelEvent:
			fmt.Printf("\n[security] level: %s\n> ", e.Level)
		case session.TranscriptEvent:
			for _, entry := range e.Entries {
				fmt.Printf("\n[%s] %s", entry.Speaker, entry.Text)
			}
			fmt.Print("\n> ")
		case session.NotificationEvent:
			fmt.Printf("\n[notice] %s\n> ", e.Message)
		case session.ErrorEvent:
			fmt.Printf("\n[error] %s\n> ", e.Message)
		case session.MicLevelEvent:
			levels.setMic(e.RMS)
		case session.AssistantLevelEvent:
			levels.setAssistant(e.RMS, e.Peak)
		}
	}
}

func printStatus(ctl *session.Controller, levels *levelMeter) {
	mic, assistant, peak := levels.get()
	fmt.Println("state:     ", ctl.State())
	fmt.Println("security:  ", ctl.SecurityLevel())
	fmt.Println("muted:     ", ctl.Muted())
	fmt.Println("buffered:  ", ctl.Buffered().Round(10_000_000)) // 10ms
	fmt.Println("mic:       ", meterBar(mic))
	fmt.Printf("assistant:  %s peak %.2f\n", meterBar(assistant), peak)
	if snap, ok := ctl.Account(); ok {
		fmt.Printf("account:    %s %s %.2f %s (%s)\n",
			snap.Account.Owner, snap.Account.Number, snap.Account.Balance,
			snap.Account.Currency, snap.Account.Status)
	}
}

// meterBar renders an RMS reading as a coarse bar. RMS of full-scale
// speech is well under 1.0, so the scale is stretched for visibility.
func meterBar(rms float64) string {
	const width = 20
	n := int(math.Round(math.Min(rms*4, 1) * width))
	return "[" + strings.Repeat("#", n) + strings.Repeat(".", width-n) + "]"
}

func printTranscript(ctl *session.Controller) {
	entries := ctl.Transcript()
	if len(entries) == 0 {
		fmt.Println("no transcript yet")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s [%s] %s\n", e.Timestamp.Format("15:04:05"), e.Speaker, e.Text)
	}
}
