package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeServerContentWithAudioAndTranscript(t *testing.T) {
	raw := `{
		"serverContent": {
			"modelTurn": {
				"parts": [{"inlineData": {"mimeType": "audio/pcm;rate=24000", "data": "AAAA"}}]
			},
			"outputTranscription": {"text": "Hello"},
			"turnComplete": true
		}
	}`
	var msg ServerMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	sc := msg.ServerContent
	if sc == nil {
		t.Fatal("serverContent missing")
	}
	if !sc.TurnComplete {
		t.Fatal("turnComplete not decoded")
	}
	if sc.OutputTranscription == nil || sc.OutputTranscription.Text != "Hello" {
		t.Fatalf("outputTranscription got=%+v", sc.OutputTranscription)
	}
	if len(sc.ModelTurn.Parts) != 1 || sc.ModelTurn.Parts[0].InlineData == nil {
		t.Fatalf("modelTurn parts got=%+v", sc.ModelTurn)
	}
	if got := sc.ModelTurn.Parts[0].InlineData.MIMEType; got != "audio/pcm;rate=24000" {
		t.Fatalf("mimeType got=%q", got)
	}
}

func TestDecodeToolCall(t *testing.T) {
	raw := `{"toolCall": {"functionCalls": [
		{"id": "call-1", "name": "verify_identity", "args": {"pin": "1234"}},
		{"id": "call-2", "name": "get_account_summary"}
	]}}`
	var msg ServerMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	calls := msg.ToolCall.FunctionCalls
	if len(calls) != 2 {
		t.Fatalf("calls got=%d, want 2", len(calls))
	}
	if calls[0].Args["pin"] != "1234" {
		t.Fatalf("args got=%v", calls[0].Args)
	}
	if calls[1].Args != nil {
		t.Fatalf("second call args got=%v, want nil", calls[1].Args)
	}
}

func TestSetupOmitsEmptySections(t *testing.T) {
	msg := ClientMessage{Setup: &Setup{Model: "models/gemini-2.0-flash-live-001"}}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"setup":{"model":"models/gemini-2.0-flash-live-001"}}`
	if string(data) != want {
		t.Fatalf("got=%s, want %s", data, want)
	}
}

func TestNormalizeSchemaType(t *testing.T) {
	if got := NormalizeSchemaType("object"); got != "OBJECT" {
		t.Fatalf("got=%q, want OBJECT", got)
	}
	if got := NormalizeSchemaType("STRING"); got != "STRING" {
		t.Fatalf("got=%q, want STRING", got)
	}
}
