// Package gemini implements the session.Service interface on top of the
// Gemini Live websocket API (bidiGenerateContent).
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harborline/voicedesk/pkg/core"
	"github.com/harborline/voicedesk/pkg/core/security"
	"github.com/harborline/voicedesk/pkg/core/session"
	"github.com/harborline/voicedesk/pkg/remote/gemini/protocol"
)

const (
	// DefaultEndpoint is the public bidi websocket endpoint.
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultConnectTimeout = 15 * time.Second

	inputAudioMIMEType = "audio/pcm;rate=16000"
)

// Service dials Gemini Live sessions. The zero value is not usable: an
// APIKey is required.
type Service struct {
	APIKey string

	// Endpoint overrides the default websocket endpoint, mainly for tests.
	Endpoint string

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// ConnectTimeout bounds dial plus setup handshake. Default: 15s.
	ConnectTimeout time.Duration

	Logger *slog.Logger
}

// Open dials the live endpoint, performs the setup handshake, and starts
// the read loop. The returned handle is ready for audio as soon as Open
// returns.
func (s *Service) Open(ctx context.Context, cfg session.Config, cb session.Callbacks) (session.Handle, error) {
	if s == nil || strings.TrimSpace(s.APIKey) == "" {
		return nil, core.NewInvalidRequestError("gemini api key must not be empty")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, core.NewInvalidRequestError("model must not be empty")
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := s.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	wsURL := endpoint + "?key=" + url.QueryEscape(s.APIKey)

	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, core.NewTransportError(fmt.Sprintf("websocket dial failed (status %d)", resp.StatusCode), err)
		}
		return nil, core.NewTransportError("websocket dial failed", err)
	}

	setup := buildSetup(cfg)
	if err := conn.WriteJSON(setup); err != nil {
		_ = conn.Close()
		return nil, core.NewSetupError("send setup", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, core.NewSetupError("read setup ack", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var first protocol.ServerMessage
	if err := json.Unmarshal(payload, &first); err != nil {
		_ = conn.Close()
		return nil, core.NewSetupError("decode setup ack", err)
	}
	if first.SetupComplete == nil {
		_ = conn.Close()
		return nil, core.NewSetupError(fmt.Sprintf("unexpected first frame: %s", payload), nil)
	}

	h := &liveHandle{
		conn:   conn,
		cb:     cb,
		logger: logger,
		done:   make(chan struct{}),
	}
	if cb.OnOpen != nil {
		cb.OnOpen()
	}
	go h.readLoop()

	logger.Info("live session open", slog.String("model", cfg.Model))
	return h, nil
}

// buildSetup maps the session config onto the wire setup frame.
func buildSetup(cfg session.Config) protocol.ClientMessage {
	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	setup := &protocol.Setup{
		Model: model,
		GenerationConfig: &protocol.GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	if cfg.Voice != "" {
		setup.GenerationConfig.SpeechConfig = &protocol.SpeechConfig{
			VoiceConfig: &protocol.VoiceConfig{
				PrebuiltVoiceConfig: &protocol.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &protocol.Content{
			Parts: []protocol.Part{{Text: cfg.SystemInstruction}},
		}
	}
	if len(cfg.Tools) > 0 {
		decls := make([]protocol.FunctionDeclaration, 0, len(cfg.Tools))
		for _, d := range cfg.Tools {
			decls = append(decls, protocol.FunctionDeclaration{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  convertSchema(d.Parameters),
			})
		}
		setup.Tools = []protocol.Tool{{FunctionDeclarations: decls}}
	}
	if cfg.InputTranscription {
		setup.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		setup.OutputAudioTranscription = &struct{}{}
	}
	return protocol.ClientMessage{Setup: setup}
}

func convertSchema(s *security.Schema) *protocol.Schema {
	if s == nil {
		return nil
	}
	out := &protocol.Schema{
		Type:        protocol.NormalizeSchemaType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]protocol.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = *convertSchema(&prop)
		}
	}
	return out
}

// liveHandle is one open websocket session.
type liveHandle struct {
	conn   *websocket.Conn
	cb     session.Callbacks
	logger *slog.Logger

	done chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// SendAudioFrame streams one PCM frame as a realtime media chunk.
func (h *liveHandle) SendAudioFrame(pcm []byte) error {
	return h.sendJSON(protocol.ClientMessage{
		RealtimeInput: &protocol.RealtimeInput{
			MediaChunks: []protocol.Blob{{
				MIMEType: inputAudioMIMEType,
				Data:     base64.StdEncoding.EncodeToString(pcm),
			}},
		},
	})
}

// SendToolResult returns one function response to the model.
func (h *liveHandle) SendToolResult(callID, name string, payload map[string]any) error {
	return h.sendJSON(protocol.ClientMessage{
		ToolResponse: &protocol.ToolResponse{
			FunctionResponses: []protocol.FunctionResponse{{
				ID:       callID,
				Name:     name,
				Response: payload,
			}},
		},
	})
}

func (h *liveHandle) sendJSON(v any) error {
	if h.closed.Load() {
		return core.NewInvalidRequestError("live session is closed")
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if err := h.conn.WriteJSON(v); err != nil {
		return core.NewTransportError("websocket write", err)
	}
	return nil
}

// Close shuts the websocket down. The read loop reports OnClose rather
// than OnError for a close we initiated.
func (h *liveHandle) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.writeMu.Lock()
		_ = h.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		h.writeMu.Unlock()
		_ = h.conn.Close()
	})
	return nil
}

func (h *liveHandle) readLoop() {
	defer close(h.done)
	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			if h.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				if h.cb.OnClose != nil {
					h.cb.OnClose()
				}
			} else if h.cb.OnError != nil {
				h.cb.OnError(core.NewTransportError("live session read", err))
			}
			return
		}

		var msg protocol.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("skipping undecodable server frame", slog.String("error", err.Error()))
			continue
		}
		if msg.GoAway != nil {
			h.logger.Warn("server requested disconnect", slog.String("time_left", msg.GoAway.TimeLeft))
			continue
		}
		ev, ok := translateServerMessage(&msg, h.logger)
		if ok && h.cb.OnEvent != nil {
			h.cb.OnEvent(ev)
		}
	}
}

// translateServerMessage flattens a wire message into a session event.
// The second return is false when the message carries nothing the
// controller acts on.
func translateServerMessage(msg *protocol.ServerMessage, logger *slog.Logger) (session.ServerEvent, bool) {
	var ev session.ServerEvent
	ok := false

	if sc := msg.ServerContent; sc != nil {
		ok = true
		ev.TurnComplete = sc.TurnComplete
		ev.Interrupted = sc.Interrupted
		if sc.InputTranscription != nil {
			ev.InputTranscript = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			ev.OutputTranscript = sc.OutputTranscription.Text
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData == nil || part.InlineData.Data == "" {
					continue
				}
				pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					logger.Warn("skipping undecodable audio part", slog.String("error", err.Error()))
					continue
				}
				ev.Audio = append(ev.Audio, pcm...)
			}
		}
	}

	if tc := msg.ToolCall; tc != nil && len(tc.FunctionCalls) > 0 {
		ok = true
		ev.ToolCalls = make([]security.Call, 0, len(tc.FunctionCalls))
		for _, fc := range tc.FunctionCalls {
			ev.ToolCalls = append(ev.ToolCalls, security.Call{
				ID:   fc.ID,
				Name: fc.Name,
				Args: fc.Args,
			})
		}
	}

	return ev, ok
}
