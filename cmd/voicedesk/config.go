package main

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type config struct {
	APIKey   string
	Endpoint string

	Model string
	Voice string
	PIN   string

	FrameDuration time.Duration

	LogFormat string // "text" or "json"
	LogLevel  string // "debug", "info", "warn", "error"
}

func loadConfig() (config, error) {
	cfg := config{
		APIKey:        strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		Endpoint:      envOr("VOICEDESK_LIVE_ENDPOINT", ""),
		Model:         envOr("VOICEDESK_MODEL", "gemini-2.0-flash-live-001"),
		Voice:         envOr("VOICEDESK_VOICE", "Aoede"),
		PIN:           envOr("VOICEDESK_PIN", "1234"),
		FrameDuration: envDurationOr("VOICEDESK_FRAME_DURATION", 20*time.Millisecond),
		LogFormat:     envOr("VOICEDESK_LOG_FORMAT", "text"),
		LogLevel:      envOr("VOICEDESK_LOG_LEVEL", "info"),
	}

	if cfg.APIKey == "" {
		return config{}, fmt.Errorf("GEMINI_API_KEY must be set")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return config{}, fmt.Errorf("VOICEDESK_LOG_FORMAT must be one of text|json")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return config{}, fmt.Errorf("VOICEDESK_LOG_LEVEL must be one of debug|info|warn|error")
	}
	if cfg.FrameDuration <= 0 {
		return config{}, fmt.Errorf("VOICEDESK_FRAME_DURATION must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
