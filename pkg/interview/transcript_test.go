package interview

import (
	"testing"
	"time"

	"github.com/teslashibe/go-interviewer/pkg/protocol"
)

func TestTranscriptSameKeyMerges(t *testing.T) {
	tr := NewTranscript(nil)

	deltas := []string{"Tell me ", "about ", "React hooks."}
	for _, d := range deltas {
		tr.AppendAssistant(d, "resp_1:item_1")
	}

	entries := tr.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Text != "Tell me about React hooks." {
		t.Errorf("text = %q", entries[0].Text)
	}
	if entries[0].Final {
		t.Error("entry should still be open")
	}
}

func TestTranscriptKeyChangeStartsNewTurn(t *testing.T) {
	tr := NewTranscript(nil)

	tr.AppendAssistant("First question.", "r1:a")
	if !tr.AppendAssistant("Second", "r2:b") {
		t.Fatal("key change should create an entry")
	}
	tr.AppendAssistant(" question.", "r2:b")

	entries := tr.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if !entries[0].Final {
		t.Error("previous turn should be final")
	}
	if entries[1].Text != "Second question." {
		t.Errorf("new turn leaked text: %q", entries[1].Text)
	}
	if got := tr.Question(); got != "First question." {
		t.Errorf("Question() = %q", got)
	}
}

func TestTranscriptDeltaWithoutOpenBoundary(t *testing.T) {
	tr := NewTranscript(nil)
	if !tr.AppendAssistant("Hello", "") {
		t.Fatal("first delta should create an entry")
	}
	if tr.Len() != 1 {
		t.Fatalf("Len() = %d", tr.Len())
	}
}

func TestTranscriptAssistantFinalizesOpenUser(t *testing.T) {
	tr := NewTranscript(nil)
	tr.AppendUser("I think", "item_u1")
	tr.AppendAssistant("Thanks.", "r1:a")

	entries := tr.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Role != protocol.RoleUser || !entries[0].Final {
		t.Errorf("user entry = %+v, want final", entries[0])
	}
	if entries[1].Role != protocol.RoleAssistant {
		t.Errorf("second entry role = %s", entries[1].Role)
	}
}

func TestTranscriptUserMerge(t *testing.T) {
	tests := []struct {
		name    string
		keys    []string
		entries int
	}{
		{"same key", []string{"u1", "u1"}, 1},
		{"missing key", []string{"u1", ""}, 1},
		{"key learned later", []string{"", "u1"}, 1},
		{"different key", []string{"u1", "u2"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTranscript(nil)
			for _, k := range tt.keys {
				tr.AppendUser("word ", k)
			}
			if tr.Len() != tt.entries {
				t.Errorf("Len() = %d, want %d", tr.Len(), tt.entries)
			}
		})
	}
}

func TestTranscriptCompleteUserReplaces(t *testing.T) {
	tr := NewTranscript(nil)
	tr.AppendUser("use effect is", "u1")
	tr.AppendUser(" for side", "u1")

	if tr.Live() == "" {
		t.Fatal("live buffer should hold deltas")
	}
	if tr.CompleteUser("useEffect is for side effects.", "u1") {
		t.Error("completion of an existing entry should not create one")
	}

	entries := tr.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Text != "useEffect is for side effects." || !entries[0].Final {
		t.Errorf("entry = %+v", entries[0])
	}
	if tr.Live() != "" {
		t.Errorf("live = %q, want empty", tr.Live())
	}
}

func TestTranscriptCompleteUserWithoutDeltas(t *testing.T) {
	tr := NewTranscript(nil)
	if !tr.CompleteUser("A join combines rows.", "u9") {
		t.Fatal("completion without deltas should append")
	}
	if tr.CompleteUser("   ", "") {
		t.Error("blank completion should be ignored")
	}
	if tr.Len() != 1 {
		t.Errorf("Len() = %d", tr.Len())
	}
}

func TestTranscriptCloseIsIdempotent(t *testing.T) {
	tr := NewTranscript(nil)
	if tr.Close(protocol.RoleAssistant) {
		t.Error("closing with no entry should be a no-op")
	}
	tr.AppendAssistant("Question one?", "r1:a")
	if !tr.Close(protocol.RoleAssistant) {
		t.Error("first close should finalize")
	}
	if tr.Close(protocol.RoleAssistant) {
		t.Error("second close should be a no-op")
	}
	if tr.Question() != "Question one?" {
		t.Errorf("Question() = %q", tr.Question())
	}
}

func TestTranscriptNewEpoch(t *testing.T) {
	tr := NewTranscript(nil)
	tr.AppendAssistant("Before reconnect", "r1:a")
	tr.AppendUser("partial", "u1")
	tr.NewEpoch()

	tr.AppendAssistant(" after", "r1:a")
	tr.AppendUser(" more", "u1")

	entries := tr.Entries()
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4: %+v", len(entries), entries)
	}
	if entries[0].Text != "Before reconnect" {
		t.Errorf("stale turn merged: %q", entries[0].Text)
	}
	if tr.Live() != " more" {
		t.Errorf("live = %q", tr.Live())
	}
}

func TestTranscriptHold(t *testing.T) {
	tr := NewTranscript(nil)
	tr.Hold("hello ")
	tr.Hold("there")
	if tr.Live() != "hello there" || tr.Len() != 0 {
		t.Errorf("live = %q, len = %d", tr.Live(), tr.Len())
	}
	tr.HoldComplete("Hello there.")
	if tr.Live() != "Hello there." {
		t.Errorf("live = %q", tr.Live())
	}
	tr.ClearLive()
	if tr.Live() != "" {
		t.Error("ClearLive left text")
	}
}

func TestTranscriptNarrationRetract(t *testing.T) {
	now := time.Unix(1000, 0)
	f := NewNarrationFilter(4*time.Second, func() time.Time { return now })
	tr := NewTranscript(f)

	f.Begin()
	tr.AppendAssistant("Okay, I'll note your ", "r1:a")
	tr.AppendAssistant("score now.", "r1:a")
	tr.AppendAssistant(" More text.", "r1:a")
	if tr.Len() != 0 {
		t.Fatalf("narration kept: %+v", tr.Entries())
	}

	f.End()
	now = now.Add(5 * time.Second)
	tr.AppendAssistant("Next question: what is a score?", "r2:a")
	if tr.Len() != 1 {
		t.Errorf("turn outside the window was filtered")
	}
}

func TestTranscriptReset(t *testing.T) {
	tr := NewTranscript(nil)
	tr.AppendAssistant("Hi", "r1:a")
	tr.Close(protocol.RoleAssistant)
	tr.Hold("x")
	tr.Reset()
	if tr.Len() != 0 || tr.Live() != "" || tr.Question() != "" {
		t.Error("Reset left state behind")
	}
}
