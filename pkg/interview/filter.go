package interview

import (
	"strings"
	"time"
)

// DefaultNarrationKeywords mark an assistant turn as evaluation narration.
var DefaultNarrationKeywords = []string{
	"i'm going to evaluate",
	"score",
	"feedback",
}

// NarrationFilter is an advisory content filter that hides assistant turns
// restating evaluation internals. It only acts while an evaluation is
// pending or within a grace window after one resolves, and it matches plain
// keywords, so model output can slip past it.
type NarrationFilter struct {
	keywords []string
	grace    time.Duration
	now      func() time.Time

	pending int
	until   time.Time
	seen    map[string]string
	blocked map[string]bool
}

// NewNarrationFilter creates a filter. An empty keyword list uses
// DefaultNarrationKeywords; a nil clock uses time.Now.
func NewNarrationFilter(grace time.Duration, now func() time.Time, keywords ...string) *NarrationFilter {
	if now == nil {
		now = time.Now
	}
	if len(keywords) == 0 {
		keywords = DefaultNarrationKeywords
	}
	lower := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = normalize(k); k != "" {
			lower = append(lower, k)
		}
	}
	return &NarrationFilter{
		keywords: lower,
		grace:    grace,
		now:      now,
		seen:     make(map[string]string),
		blocked:  make(map[string]bool),
	}
}

// Begin marks an evaluation as pending.
func (f *NarrationFilter) Begin() {
	f.pending++
}

// End marks an evaluation as resolved and opens the grace window.
func (f *NarrationFilter) End() {
	if f.pending > 0 {
		f.pending--
	}
	f.until = f.now().Add(f.grace)
}

// Armed reports whether turns are currently checked.
func (f *NarrationFilter) Armed() bool {
	return f.pending > 0 || f.now().Before(f.until)
}

// Check inspects one assistant delta. suppress is true when the delta should
// not reach the transcript; retract is true when the turn was flagged by
// this delta and text already merged for it should be removed.
//
// Deltas without a turn key share one slot, which is released by EndTurn or
// by the first keyed delta.
func (f *NarrationFilter) Check(key, delta string) (suppress, retract bool) {
	if key != "" {
		f.EndTurn()
	}
	if f.blocked[key] {
		return true, false
	}
	if !f.Armed() {
		delete(f.seen, key)
		return false, false
	}

	text := f.seen[key] + delta
	lower := normalize(text)
	for _, k := range f.keywords {
		if strings.Contains(lower, k) {
			delete(f.seen, key)
			f.blocked[key] = true
			return true, true
		}
	}
	f.seen[key] = text
	return false, false
}

// EndTurn releases the slot shared by deltas without a turn key.
func (f *NarrationFilter) EndTurn() {
	delete(f.blocked, "")
	delete(f.seen, "")
}

// Forget drops per-turn tracking but keeps the pending state.
func (f *NarrationFilter) Forget() {
	f.seen = make(map[string]string)
	f.blocked = make(map[string]bool)
}

// Reset clears all state.
func (f *NarrationFilter) Reset() {
	f.Forget()
	f.pending = 0
	f.until = time.Time{}
}

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "’", "'"))
}
