package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harborline/voicedesk/pkg/core/security"
	"github.com/harborline/voicedesk/pkg/core/session"
	"github.com/harborline/voicedesk/pkg/remote/gemini/protocol"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeLive is a scripted live endpoint. It completes the setup handshake
// and hands the connection to the test via conns.
type fakeLive struct {
	upgrader websocket.Upgrader
	setups   chan protocol.ClientMessage
	conns    chan *websocket.Conn
}

func newFakeLive() *fakeLive {
	return &fakeLive{
		setups: make(chan protocol.ClientMessage, 1),
		conns:  make(chan *websocket.Conn, 1),
	}
}

func (f *fakeLive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	var setup protocol.ClientMessage
	if err := conn.ReadJSON(&setup); err != nil {
		conn.Close()
		return
	}
	f.setups <- setup
	if err := conn.WriteJSON(protocol.ServerMessage{SetupComplete: &protocol.SetupComplete{}}); err != nil {
		conn.Close()
		return
	}
	f.conns <- conn
}

func startFakeLive(t *testing.T) (*fakeLive, *Service) {
	t.Helper()
	fake := newFakeLive()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, &Service{
		APIKey:   "test-key",
		Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http"),
		Logger:   testLogger,
	}
}

func TestOpenPerformsSetupHandshake(t *testing.T) {
	fake, svc := startFakeLive(t)

	opened := make(chan struct{}, 1)
	h, err := svc.Open(context.Background(), session.Config{
		Model:               "gemini-2.0-flash-live-001",
		Voice:               "Aoede",
		SystemInstruction:   "Be brief.",
		Tools:               security.Declarations(),
		InputTranscription:  true,
		OutputTranscription: true,
	}, session.Callbacks{OnOpen: func() { opened <- struct{}{} }})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("OnOpen never fired")
	}

	setup := (<-fake.setups).Setup
	if setup == nil {
		t.Fatal("no setup frame sent")
	}
	if setup.Model != "models/gemini-2.0-flash-live-001" {
		t.Fatalf("model got=%q", setup.Model)
	}
	if setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Aoede" {
		t.Fatal("voice not threaded into setup")
	}
	if setup.InputAudioTranscription == nil || setup.OutputAudioTranscription == nil {
		t.Fatal("transcription sections missing")
	}
	if len(setup.Tools) != 1 || len(setup.Tools[0].FunctionDeclarations) != len(security.Declarations()) {
		t.Fatalf("tools got=%+v", setup.Tools)
	}
	for _, d := range setup.Tools[0].FunctionDeclarations {
		if d.Parameters != nil && d.Parameters.Type != "OBJECT" {
			t.Fatalf("schema type not normalized: %q", d.Parameters.Type)
		}
	}
}

func TestOpenRejectsMissingKey(t *testing.T) {
	svc := &Service{Logger: testLogger}
	if _, err := svc.Open(context.Background(), session.Config{Model: "m"}, session.Callbacks{}); err == nil {
		t.Fatal("Open succeeded without an api key")
	}
}

func TestServerEventsAreTranslated(t *testing.T) {
	fake, svc := startFakeLive(t)

	events := make(chan session.ServerEvent, 8)
	h, err := svc.Open(context.Background(), session.Config{Model: "m"}, session.Callbacks{
		OnEvent: func(ev session.ServerEvent) { events <- ev },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()
	<-fake.setups
	conn := <-fake.conns

	pcm := []byte{1, 2, 3, 4}
	err = conn.WriteJSON(protocol.ServerMessage{ServerContent: &protocol.ServerContent{
		ModelTurn: &protocol.Content{Parts: []protocol.Part{{
			InlineData: &protocol.Blob{MIMEType: "audio/pcm;rate=24000", Data: base64.StdEncoding.EncodeToString(pcm)},
		}}},
		OutputTranscription: &protocol.Transcription{Text: "hi"},
	}})
	if err != nil {
		t.Fatalf("write server frame: %v", err)
	}

	select {
	case ev := <-events:
		if string(ev.Audio) != string(pcm) {
			t.Fatalf("audio got=%v, want %v", ev.Audio, pcm)
		}
		if ev.OutputTranscript != "hi" {
			t.Fatalf("transcript got=%q", ev.OutputTranscript)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	err = conn.WriteJSON(protocol.ServerMessage{ToolCall: &protocol.ToolCall{
		FunctionCalls: []protocol.FunctionCall{{ID: "c1", Name: "verify_identity", Args: map[string]any{"pin": "1234"}}},
	}})
	if err != nil {
		t.Fatalf("write tool call: %v", err)
	}
	select {
	case ev := <-events:
		if len(ev.ToolCalls) != 1 || ev.ToolCalls[0].ID != "c1" {
			t.Fatalf("tool calls got=%+v", ev.ToolCalls)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tool call delivered")
	}
}

func TestSendAudioFrameAndToolResult(t *testing.T) {
	fake, svc := startFakeLive(t)

	h, err := svc.Open(context.Background(), session.Config{Model: "m"}, session.Callbacks{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()
	<-fake.setups
	conn := <-fake.conns

	pcm := []byte{9, 9, 9, 9}
	if err := h.SendAudioFrame(pcm); err != nil {
		t.Fatalf("SendAudioFrame: %v", err)
	}
	var frame protocol.ClientMessage
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.RealtimeInput == nil || len(frame.RealtimeInput.MediaChunks) != 1 {
		t.Fatalf("frame got=%+v", frame)
	}
	chunk := frame.RealtimeInput.MediaChunks[0]
	if chunk.MIMEType != "audio/pcm;rate=16000" {
		t.Fatalf("mime got=%q", chunk.MIMEType)
	}
	if got, _ := base64.StdEncoding.DecodeString(chunk.Data); string(got) != string(pcm) {
		t.Fatalf("audio got=%v, want %v", got, pcm)
	}

	if err := h.SendToolResult("c1", "verify_identity", map[string]any{"status": "SUCCESS"}); err != nil {
		t.Fatalf("SendToolResult: %v", err)
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read tool response: %v", err)
	}
	if frame.ToolResponse == nil || len(frame.ToolResponse.FunctionResponses) != 1 {
		t.Fatalf("tool response got=%+v", frame)
	}
	fr := frame.ToolResponse.FunctionResponses[0]
	if fr.ID != "c1" || fr.Name != "verify_identity" || fr.Response["status"] != "SUCCESS" {
		t.Fatalf("function response got=%+v", fr)
	}
}

func TestClientCloseReportsOnClose(t *testing.T) {
	fake, svc := startFakeLive(t)

	closed := make(chan struct{}, 1)
	h, err := svc.Open(context.Background(), session.Config{Model: "m"}, session.Callbacks{
		OnClose: func() { closed <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	<-fake.setups
	<-fake.conns

	h.Close()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose never fired")
	}

	if err := h.SendAudioFrame([]byte{0}); err == nil {
		t.Fatal("send on closed session succeeded")
	}
}

func TestServerDropReportsOnError(t *testing.T) {
	fake, svc := startFakeLive(t)

	errs := make(chan error, 1)
	h, err := svc.Open(context.Background(), session.Config{Model: "m"}, session.Callbacks{
		OnError: func(err error) { errs <- err },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()
	<-fake.setups
	conn := <-fake.conns

	// Abrupt TCP close, no close frame.
	conn.UnderlyingConn().Close()
	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("nil error reported")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnError never fired")
	}
}

func TestTranslateSkipsEmptyMessages(t *testing.T) {
	var msg protocol.ServerMessage
	if err := json.Unmarshal([]byte(`{"usageMetadata":{"totalTokenCount":10}}`), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := translateServerMessage(&msg, testLogger); ok {
		t.Fatal("empty message produced an event")
	}
}
