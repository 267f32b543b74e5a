package guided

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-interviewer/pkg/interview"
	"github.com/teslashibe/go-interviewer/pkg/protocol"
)

// answerCapture turns one transcription connection into one answer.
type answerCapture struct {
	tr     Transport
	model  string
	logger *slog.Logger

	mu         sync.Mutex
	transcript *interview.Transcript
	configured bool
	speaking   bool
	completed  int
	err        error

	changed chan struct{}
}

func newAnswerCapture(tr Transport, model string, logger *slog.Logger) *answerCapture {
	c := &answerCapture{
		tr:         tr,
		model:      model,
		logger:     logger,
		transcript: interview.NewTranscript(nil),
		changed:    make(chan struct{}, 1),
	}
	tr.OnMessage(c.handleMessage)
	tr.OnError(c.fail)
	return c
}

func (c *answerCapture) handleMessage(data []byte) {
	ev, err := protocol.Parse(data)
	if err != nil {
		c.logger.Warn("malformed transcription message", "error", err)
		return
	}

	var configure bool
	c.mu.Lock()
	switch e := ev.(type) {
	case protocol.SessionReady:
		configure = !c.configured
		c.configured = true
	case protocol.UserTextDelta:
		c.transcript.AppendUser(e.Text, e.ItemID)
	case protocol.UserTranscriptCompleted:
		c.transcript.CompleteUser(e.Text, e.ItemID)
		c.completed++
		c.speaking = false
	case protocol.TurnBoundary:
		if e.Role == protocol.RoleUser && e.Kind == protocol.BoundarySpeech {
			c.speaking = e.Phase == protocol.PhaseOpen
		}
	case protocol.ErrorReported:
		if c.err == nil {
			c.err = fmt.Errorf("guided: transcription error: %s", e.Message)
		}
	default:
		c.mu.Unlock()
		c.logger.Debug("ignored transcription message", "type", ev.WireType())
		return
	}
	c.mu.Unlock()

	if configure {
		c.tr.Send(protocol.NewTranscriptionSessionUpdate(protocol.DefaultTranscriptionConfig(c.model)))
	}
	c.notify()
}

func (c *answerCapture) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.notify()
}

func (c *answerCapture) notify() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// wait returns the answer once the candidate has been quiet for pause after
// at least one transcribed utterance, or when limit elapses.
func (c *answerCapture) wait(ctx context.Context, pause, limit time.Duration) (string, error) {
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	var quiet <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			c.logger.Info("answer time limit reached")
			return c.text(), nil
		case <-quiet:
			return c.text(), nil
		case <-c.changed:
			c.mu.Lock()
			err, speaking, completed := c.err, c.speaking, c.completed
			c.mu.Unlock()
			if err != nil {
				return "", err
			}
			if speaking || completed == 0 {
				quiet = nil
			} else {
				quiet = time.After(pause)
			}
		}
	}
}

func (c *answerCapture) text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var parts []string
	for _, e := range c.transcript.Entries() {
		if e.Role == protocol.RoleUser {
			if s := strings.TrimSpace(e.Text); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " ")
}
