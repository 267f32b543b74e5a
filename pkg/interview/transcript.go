package interview

import (
	"strings"

	"github.com/teslashibe/go-interviewer/pkg/protocol"
)

// Entry is one turn fragment of the transcript.
type Entry struct {
	Role    protocol.Role `json:"role"`
	Text    string        `json:"text"`
	Final   bool          `json:"final"`
	TurnKey string        `json:"turnKey,omitempty"`
}

// Transcript merges streamed deltas into discrete turns.
//
// A delta is merged into the last entry only when the role matches, the
// entry is still open and the turn keys agree. At most one entry per role is
// open at a time. Transcript is not safe for concurrent use; the session
// actor owns it.
type Transcript struct {
	entries  []Entry
	live     string
	question string
	filter   *NarrationFilter
}

// NewTranscript creates an empty transcript. filter may be nil.
func NewTranscript(filter *NarrationFilter) *Transcript {
	return &Transcript{filter: filter}
}

// AppendAssistant merges an assistant delta. It reports whether a new entry
// was created.
func (t *Transcript) AppendAssistant(text, key string) bool {
	if text == "" {
		return false
	}
	if t.filter != nil {
		if suppress, retract := t.filter.Check(key, text); suppress {
			if retract {
				t.retract(key)
			}
			return false
		}
	}

	if e := t.lastEntry(); e != nil && e.Role == protocol.RoleAssistant && !e.Final && e.TurnKey == key {
		e.Text += text
		return false
	}

	t.closeOpen(protocol.RoleAssistant)
	t.closeOpen(protocol.RoleUser)
	t.entries = append(t.entries, Entry{Role: protocol.RoleAssistant, Text: text, TurnKey: key})
	return true
}

// AppendUser merges a user delta into the transcript and the live buffer.
// It reports whether a new entry was created.
func (t *Transcript) AppendUser(text, key string) bool {
	if text == "" {
		return false
	}
	t.live += text

	if e := t.lastEntry(); e != nil && e.Role == protocol.RoleUser && !e.Final && compatible(e.TurnKey, key) {
		e.Text += text
		if e.TurnKey == "" {
			e.TurnKey = key
		}
		return false
	}

	t.closeOpen(protocol.RoleUser)
	t.entries = append(t.entries, Entry{Role: protocol.RoleUser, Text: text, TurnKey: key})
	return true
}

// CompleteUser applies a completed user transcription. The text replaces the
// accumulated deltas of the matching entry and closes it; without a matching
// entry a final one is appended. It reports whether a new entry was created.
func (t *Transcript) CompleteUser(text, key string) bool {
	t.live = ""

	i := -1
	if key != "" {
		i = t.find(func(e *Entry) bool { return e.Role == protocol.RoleUser && e.TurnKey == key })
	}
	if i < 0 {
		i = t.find(func(e *Entry) bool { return e.Role == protocol.RoleUser && !e.Final })
	}
	if i >= 0 {
		if strings.TrimSpace(text) != "" {
			t.entries[i].Text = text
		}
		t.finalize(i)
		return false
	}

	if strings.TrimSpace(text) == "" {
		return false
	}
	t.closeOpen(protocol.RoleUser)
	t.entries = append(t.entries, Entry{Role: protocol.RoleUser, Text: text, Final: true, TurnKey: key})
	return true
}

// Hold records user speech in the live buffer only.
func (t *Transcript) Hold(text string) {
	t.live += text
}

// HoldComplete replaces the live buffer with a completed utterance.
func (t *Transcript) HoldComplete(text string) {
	t.live = text
}

// Close marks the most recent open entry of role final. Closing when no
// entry is open is a no-op.
func (t *Transcript) Close(role protocol.Role) bool {
	if role == protocol.RoleAssistant && t.filter != nil {
		t.filter.EndTurn()
	}
	return t.closeOpen(role)
}

// NewEpoch finalizes every open entry so no delta from a new connection can
// merge into a turn from the previous one.
func (t *Transcript) NewEpoch() {
	for i := range t.entries {
		if !t.entries[i].Final {
			t.finalize(i)
		}
	}
	t.live = ""
	if t.filter != nil {
		t.filter.Forget()
	}
}

// ClearLive empties the live user speech buffer.
func (t *Transcript) ClearLive() {
	t.live = ""
}

// Reset empties the transcript.
func (t *Transcript) Reset() {
	t.entries = nil
	t.live = ""
	t.question = ""
	if t.filter != nil {
		t.filter.Reset()
	}
}

// Entries returns a copy of the entries.
func (t *Transcript) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	return len(t.entries)
}

// Live returns user speech heard but not yet committed.
func (t *Transcript) Live() string {
	return t.live
}

// Question returns the text of the most recently finalized assistant turn.
func (t *Transcript) Question() string {
	return t.question
}

func (t *Transcript) lastEntry() *Entry {
	if len(t.entries) == 0 {
		return nil
	}
	return &t.entries[len(t.entries)-1]
}

func (t *Transcript) find(match func(*Entry) bool) int {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if match(&t.entries[i]) {
			return i
		}
	}
	return -1
}

func (t *Transcript) closeOpen(role protocol.Role) bool {
	i := t.find(func(e *Entry) bool { return e.Role == role && !e.Final })
	if i < 0 {
		return false
	}
	t.finalize(i)
	return true
}

func (t *Transcript) finalize(i int) {
	e := &t.entries[i]
	e.Final = true
	if e.Role == protocol.RoleAssistant && strings.TrimSpace(e.Text) != "" {
		t.question = e.Text
	}
}

// retract drops the open assistant entry for key.
func (t *Transcript) retract(key string) {
	i := t.find(func(e *Entry) bool {
		return e.Role == protocol.RoleAssistant && !e.Final && e.TurnKey == key
	})
	if i >= 0 {
		t.entries = append(t.entries[:i], t.entries[i+1:]...)
	}
}

// compatible reports whether two user turn keys may belong to the same
// utterance. User speech often arrives without an item id.
func compatible(a, b string) bool {
	return a == b || a == "" || b == ""
}
