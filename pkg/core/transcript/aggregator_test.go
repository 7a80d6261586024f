package transcript

import (
	"testing"
	"time"
)

func fixedNow() func() time.Time {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestFlushPairsEntries(t *testing.T) {
	a := NewAggregator(WithNow(fixedNow()))
	a.AppendUser("what's ")
	a.AppendUser("my balance?")
	a.AppendAssistant("Let me check ")
	a.AppendAssistant("that for you.")

	pair := a.Flush()
	if len(pair) != 2 {
		t.Fatalf("flushed %d entries, want 2", len(pair))
	}
	if pair[0].Speaker != SpeakerUser || pair[0].Text != "what's my balance?" {
		t.Fatalf("user entry = %+v", pair[0])
	}
	if pair[1].Speaker != SpeakerAssistant || pair[1].Text != "Let me check that for you." {
		t.Fatalf("assistant entry = %+v", pair[1])
	}
	if !pair[0].Timestamp.Equal(pair[1].Timestamp) {
		t.Fatal("paired entries should share the flush timestamp")
	}

	user, assistant := a.Pending()
	if user != "" || assistant != "" {
		t.Fatalf("accumulators not reset: %q / %q", user, assistant)
	}
}

func TestFlushWithOneEmptySideStillPairs(t *testing.T) {
	a := NewAggregator(WithNow(fixedNow()))
	a.AppendAssistant("Hello! How can I help?")

	pair := a.Flush()
	if len(pair) != 2 {
		t.Fatalf("flushed %d entries, want 2", len(pair))
	}
	if pair[0].Speaker != SpeakerUser || pair[0].Text != "" {
		t.Fatalf("user entry = %+v, want empty user side", pair[0])
	}
	if pair[1].Text != "Hello! How can I help?" {
		t.Fatalf("assistant entry = %+v", pair[1])
	}
}

func TestFlushWithNothingPendingAppendsNothing(t *testing.T) {
	a := NewAggregator(WithNow(fixedNow()))
	if pair := a.Flush(); pair != nil {
		t.Fatalf("empty flush returned %+v", pair)
	}
	if got := len(a.Entries()); got != 0 {
		t.Fatalf("log has %d entries, want 0", got)
	}
}

func TestEntriesKeepConversationOrder(t *testing.T) {
	a := NewAggregator(WithNow(fixedNow()))

	a.AppendUser("hello")
	a.AppendAssistant("hi there")
	a.Flush()

	a.AppendUser("thanks")
	a.AppendAssistant("anytime")
	a.Flush()

	entries := a.Entries()
	wantTexts := []string{"hello", "hi there", "thanks", "anytime"}
	if len(entries) != len(wantTexts) {
		t.Fatalf("log has %d entries, want %d", len(entries), len(wantTexts))
	}
	for i, want := range wantTexts {
		if entries[i].Text != want {
			t.Fatalf("entry %d = %q, want %q", i, entries[i].Text, want)
		}
	}

	// Entries() hands out a copy, not the backing slice.
	entries[0].Text = "mutated"
	if a.Entries()[0].Text != "hello" {
		t.Fatal("Entries() exposed internal state")
	}
}

func TestClear(t *testing.T) {
	a := NewAggregator()
	a.AppendUser("pending")
	a.AppendAssistant("reply")
	a.Flush()
	a.AppendUser("more")

	a.Clear()
	if got := len(a.Entries()); got != 0 {
		t.Fatalf("log has %d entries after Clear, want 0", got)
	}
	user, assistant := a.Pending()
	if user != "" || assistant != "" {
		t.Fatalf("pending not cleared: %q / %q", user, assistant)
	}
}
