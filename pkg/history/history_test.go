package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-interviewer/pkg/interview"
)

func summary(id string) interview.Summary {
	return interview.Summary{
		SessionID:         id,
		Skills:            []string{"Go"},
		Reason:            interview.ReasonCompleted,
		QuestionsAnswered: 2,
		TargetQuestions:   2,
		StartedAt:         time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		EndedAt:           time.Date(2026, 3, 10, 9, 12, 0, 0, time.UTC),
	}
}

func TestHistoryPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.json")

	h, err := New(NewFileStore(path), 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"s1", "s2"} {
		if err := h.Add(summary(id)); err != nil {
			t.Fatal(err)
		}
	}

	reopened, err := New(NewFileStore(path), 10)
	if err != nil {
		t.Fatal(err)
	}
	recent := reopened.Recent(0)
	if len(recent) != 2 || recent[0].SessionID != "s2" || recent[1].SessionID != "s1" {
		t.Fatalf("recent = %+v", recent)
	}
	if !recent[0].EndedAt.Equal(summary("s2").EndedAt) {
		t.Errorf("EndedAt = %v", recent[0].EndedAt)
	}
}

func TestHistoryLimit(t *testing.T) {
	h, err := New(nil, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := h.Add(summary(fmt.Sprintf("s%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}
	recent := h.Recent(2)
	if len(recent) != 2 || recent[0].SessionID != "s4" || recent[1].SessionID != "s3" {
		t.Errorf("recent = %+v", recent)
	}
}

func TestHistoryMissingFile(t *testing.T) {
	h, err := New(NewFileStore(filepath.Join(t.TempDir(), "none.json")), 0)
	if err != nil {
		t.Fatal(err)
	}
	if h.Len() != 0 {
		t.Errorf("Len() = %d", h.Len())
	}
}

func TestHistoryCorruptArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(NewFileStore(path), 0); err == nil {
		t.Fatal("expected decode error")
	}
}

type failingStore struct{ err error }

func (s failingStore) Save([]byte) error     { return s.err }
func (s failingStore) Load() ([]byte, error) { return nil, nil }
func (s failingStore) Close() error          { return nil }

func TestHistorySaveError(t *testing.T) {
	boom := errors.New("disk full")
	h, err := New(failingStore{err: boom}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Add(summary("s1")); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if h.Len() != 1 {
		t.Error("entry should be kept in memory")
	}
}
