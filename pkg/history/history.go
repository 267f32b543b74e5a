// Package history keeps a local archive of finished interviews.
//
// Each finished interview's summary, transcript included, is appended and
// the archive is trimmed to the newest Limit entries. A History without a
// Store lives in memory only.
package history

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/teslashibe/go-interviewer/pkg/interview"
)

// DefaultLimit is the number of interviews kept when none is configured.
const DefaultLimit = 50

// History is the archive of finished interviews, oldest first.
type History struct {
	store Store
	limit int

	mu      sync.RWMutex
	entries []interview.Summary
}

type archive struct {
	Interviews []interview.Summary `json:"interviews"`
}

// New creates a History persisted to store, loading what it already holds.
// store may be nil; limit <= 0 selects DefaultLimit.
func New(store Store, limit int) (*History, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	h := &History{store: store, limit: limit}
	if err := h.load(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *History) load() error {
	if h.store == nil {
		return nil
	}
	data, err := h.store.Load()
	if err != nil || data == nil {
		return err
	}
	var a archive
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("history: decode archive: %w", err)
	}
	h.entries = trim(a.Interviews, h.limit)
	return nil
}

// Add archives sum and saves the archive.
func (h *History) Add(sum interview.Summary) error {
	h.mu.Lock()
	h.entries = trim(append(h.entries, sum), h.limit)
	data, err := json.MarshalIndent(archive{Interviews: h.entries}, "", "  ")
	h.mu.Unlock()

	if err != nil || h.store == nil {
		return err
	}
	return h.store.Save(data)
}

// Recent returns up to n archived interviews, newest first. n <= 0 returns
// all of them.
func (h *History) Recent(n int) []interview.Summary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]interview.Summary, 0, n)
	for i := len(h.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.entries[i])
	}
	return out
}

// Len returns the number of archived interviews.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Close releases the store.
func (h *History) Close() error {
	if h.store == nil {
		return nil
	}
	return h.store.Close()
}

func trim(entries []interview.Summary, limit int) []interview.Summary {
	if len(entries) <= limit {
		return entries
	}
	return append([]interview.Summary(nil), entries[len(entries)-limit:]...)
}
