package guided

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-interviewer/pkg/protocol"
	"github.com/teslashibe/go-interviewer/pkg/rtc"
)

// fakePlayback answers every spoken response with the scripted messages.
type fakePlayback struct {
	script []step

	mu          sync.Mutex
	onMessage   func([]byte)
	onOpen      func()
	onDisc      func(string)
	sent        []any
	connects    int
	disconnects int
	live        bool
}

func (f *fakePlayback) Connect(ctx context.Context, credential string, media rtc.Media) error {
	f.mu.Lock()
	f.connects++
	f.live = true
	open := f.onOpen
	f.mu.Unlock()
	go open()
	return nil
}

func (f *fakePlayback) Send(msg any) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	fn, script := f.onMessage, f.script
	f.mu.Unlock()
	go func() {
		for _, s := range script {
			time.Sleep(s.delay)
			fn([]byte(s.msg))
		}
	}()
}

func (f *fakePlayback) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	was := f.live
	f.live = false
	fn := f.onDisc
	f.mu.Unlock()
	if was {
		fn("closed by client")
	}
}

func (f *fakePlayback) OnMessage(fn func([]byte)) {
	f.mu.Lock()
	f.onMessage = fn
	f.mu.Unlock()
}

func (f *fakePlayback) OnDataChannelOpen(fn func()) {
	f.mu.Lock()
	f.onOpen = fn
	f.mu.Unlock()
}

func (f *fakePlayback) OnDisconnected(fn func(string)) {
	f.mu.Lock()
	f.onDisc = fn
	f.mu.Unlock()
}

func (f *fakePlayback) drop() {
	f.mu.Lock()
	f.live = false
	fn := f.onDisc
	f.mu.Unlock()
	fn("ICE failed")
}

func (f *fakePlayback) counts() (connects, disconnects int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.disconnects
}

func (f *fakePlayback) lastSent() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

var spokenScript = []step{
	{msg: `{"type":"response.created","response":{"id":"r1"}}`},
	{msg: `{"type":"output_audio_buffer.started","response_id":"r1"}`},
	{msg: `{"type":"response.done","response":{"id":"r1","status":"completed"}}`},
	{delay: 30 * time.Millisecond, msg: `{"type":"output_audio_buffer.stopped","response_id":"r1"}`},
}

func newTestSpeaker(f *fakePlayback) (*RealtimeSpeaker, *atomic.Int32) {
	var credentials atomic.Int32
	cred := func(context.Context) (string, error) {
		credentials.Add(1)
		return "ek_speech", nil
	}
	return NewRealtimeSpeaker(f, cred, quietLogger()), &credentials
}

func TestRealtimeSpeakerWaitsForPlayback(t *testing.T) {
	f := &fakePlayback{script: spokenScript}
	s, credentials := newTestSpeaker(f)
	defer s.Close()

	var started, ended atomic.Int32
	s.OnStart(func() { started.Add(1) })
	s.OnEnd(func() { ended.Add(1) })

	begin := time.Now()
	if err := s.Speak(context.Background(), "What is a channel?"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if time.Since(begin) < 30*time.Millisecond {
		t.Error("Speak returned before the audio stopped")
	}

	msg, ok := f.lastSent().(*protocol.ResponseCreate)
	if !ok || msg.Response == nil || !strings.HasSuffix(msg.Response.Instructions, "What is a channel?") {
		t.Fatalf("sent = %+v", f.lastSent())
	}
	if started.Load() != 1 || ended.Load() != 1 {
		t.Errorf("hooks: started %d ended %d", started.Load(), ended.Load())
	}

	if err := s.Speak(context.Background(), "Next one."); err != nil {
		t.Fatalf("second Speak: %v", err)
	}
	if connects, _ := f.counts(); connects != 1 || credentials.Load() != 1 {
		t.Errorf("connects = %d credentials = %d, want one connection", connects, credentials.Load())
	}
}

func TestRealtimeSpeakerRemoteError(t *testing.T) {
	f := &fakePlayback{script: []step{{msg: `{"type":"error","error":{"message":"rate limited"}}`}}}
	s, _ := newTestSpeaker(f)
	defer s.Close()

	err := s.Speak(context.Background(), "Hello")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("Speak = %v, want remote error", err)
	}
}

func TestRealtimeSpeakerReconnects(t *testing.T) {
	f := &fakePlayback{}
	s, credentials := newTestSpeaker(f)
	defer s.Close()

	done := make(chan error, 1)
	go func() { done <- s.Speak(context.Background(), "Hello") }()
	waitFor(t, "spoken request", func() bool { return f.lastSent() != nil })
	f.drop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSpeechLost) {
			t.Fatalf("Speak = %v, want ErrSpeechLost", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Speak did not return after the connection dropped")
	}

	f.mu.Lock()
	f.script = spokenScript
	f.mu.Unlock()
	if err := s.Speak(context.Background(), "Again"); err != nil {
		t.Fatalf("Speak after drop: %v", err)
	}
	if connects, _ := f.counts(); connects != 2 || credentials.Load() != 2 {
		t.Errorf("connects = %d credentials = %d, want 2", connects, credentials.Load())
	}
}

func TestRealtimeSpeakerCancel(t *testing.T) {
	f := &fakePlayback{}
	s, _ := newTestSpeaker(f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Speak(ctx, "A long question") }()
	waitFor(t, "spoken request", func() bool { return f.lastSent() != nil })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Speak = %v, want context.Canceled", err)
	}
	if _, disconnects := f.counts(); disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", disconnects)
	}

	_ = s.Close()
	if err := s.Speak(context.Background(), "x"); !errors.Is(err, ErrSpeakerClosed) {
		t.Errorf("Speak after Close = %v", err)
	}
}
