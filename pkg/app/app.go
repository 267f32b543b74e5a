// Package app wires the interviewer components for the command line
// binaries: backend client, realtime transports, local audio, the interview
// session, the guided flow and the control API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pion/webrtc/v3"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-interviewer/internal/config"
	"github.com/teslashibe/go-interviewer/internal/httpc"
	"github.com/teslashibe/go-interviewer/pkg/audio"
	"github.com/teslashibe/go-interviewer/pkg/backend"
	"github.com/teslashibe/go-interviewer/pkg/guided"
	"github.com/teslashibe/go-interviewer/pkg/history"
	"github.com/teslashibe/go-interviewer/pkg/interview"
	"github.com/teslashibe/go-interviewer/pkg/observe"
	"github.com/teslashibe/go-interviewer/pkg/rtc"
	"github.com/teslashibe/go-interviewer/pkg/tts"
	"github.com/teslashibe/go-interviewer/pkg/web"
)

// logSpeakerPace approximates speaking time when no TTS key is configured.
const logSpeakerPace = 250 * time.Millisecond

// App owns the interviewer components and their lifecycle.
type App struct {
	config *config.Config
	logger *slog.Logger

	client  *backend.Client
	metrics *observe.Metrics
	session *interview.Session
	server  *web.Server
	history *history.History

	shutdownTelemetry func(context.Context) error
}

// New creates an App. Call Init before Run or Guided.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := backend.New(cfg.Backend.URL,
		backend.WithToken(cfg.Backend.Token),
		backend.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return &App{
		config:  cfg,
		logger:  logger.With("component", "app"),
		client:  client,
		metrics: observe.DefaultMetrics(),
	}, nil
}

// Backend returns the backend client.
func (a *App) Backend() *backend.Client {
	return a.client
}

// Authenticate logs in with the configured credentials unless a token was
// configured.
func (a *App) Authenticate(ctx context.Context) error {
	if a.client.Token() != "" {
		return nil
	}
	if a.config.Backend.Email == "" {
		a.logger.Warn("no backend credentials configured; requests will be anonymous")
		return nil
	}
	if _, err := a.client.Login(ctx, a.config.Backend.Email, a.config.Backend.Password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	a.logger.Info("logged in", "email", a.config.Backend.Email)
	return nil
}

// Init sets up telemetry, authenticates and builds the interview session
// and control API.
func (a *App) Init(ctx context.Context) error {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "interviewer"})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.shutdownTelemetry = shutdown

	if err := a.Authenticate(ctx); err != nil {
		return err
	}

	ic := a.config.Interview
	a.session, err = interview.New(interview.Dependencies{
		Backend:    a.client,
		Transports: a.realtimeTransport,
		Media:      a.openMicrophone,
	},
		interview.WithQuestionsPerSkill(ic.QuestionsPerSkill),
		interview.WithAutoStopDelay(ic.AutoStopDelay),
		interview.WithNarrationFilter(ic.NarrationGrace, ic.NarrationKeywords...),
		interview.WithCompleteTimeout(ic.CompleteTimeout),
		interview.WithVoice(a.config.Realtime.Voice),
		interview.WithTranscriptionModel(a.config.Realtime.TranscriptionModel),
		interview.WithMetrics(a.metrics),
		interview.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("interview session: %w", err)
	}
	a.history, err = history.New(history.NewFileStore(a.historyPath()), a.config.History.Limit)
	if err != nil {
		return err
	}
	a.session.OnFinished(a.archive)

	a.server = web.NewServer(a.session, a.client, web.Config{
		Addr:    a.config.Server.Listen,
		Metrics: a.metrics,
		History: a.history,
		Logger:  a.logger,
	})
	return nil
}

func (a *App) historyPath() string {
	if a.config.History.Path != "" {
		return a.config.History.Path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".interviewer", "history.json")
}

// Run serves the control API until ctx is done, then aborts any running
// interview.
func (a *App) Run(ctx context.Context) error {
	if a.server == nil {
		return errors.New("app: Run called before Init")
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		abortCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.session.Abort(abortCtx); err != nil && !errors.Is(err, interview.ErrClosed) {
			a.logger.Warn("abort on shutdown failed", "error", err)
		}
		return nil
	})
	return g.Wait()
}

// Guided runs one question-by-question interview on interviewID.
func (a *App) Guided(ctx context.Context, interviewID string) (*guided.Result, error) {
	speaker, err := a.newSpeaker()
	if err != nil {
		return nil, err
	}
	if c, ok := speaker.(interface{ Close() error }); ok {
		defer c.Close()
	}
	flow, err := guided.New(guided.Dependencies{
		Backend: a.client,
		Speaker: speaker,
		Transports: func() (guided.Transport, error) {
			return a.newTransport(rtc.FlavorCapture)
		},
		Media: a.openMicrophone,
	},
		guided.WithAnswerTiming(a.config.Guided.AnswerPause, a.config.Guided.MaxAnswer),
		guided.WithTranscriptionModel(a.config.Realtime.TranscriptionModel),
		guided.WithHooks(
			func(q guided.Question) {
				a.logger.Info("question", "index", q.Index, "total", q.Total, "skill", q.Skill)
			},
			func(q guided.Question, answer string) {
				a.logger.Info("answer submitted", "index", q.Index, "chars", len(answer))
			},
		),
		guided.WithMetrics(a.metrics),
		guided.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	return flow.Run(ctx, interviewID)
}

// Shutdown closes the session and flushes telemetry.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.session != nil {
		errs = append(errs, a.session.Close())
	}
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if a.shutdownTelemetry != nil {
		errs = append(errs, a.shutdownTelemetry(ctx))
	}
	return errors.Join(errs...)
}

func (a *App) newTransport(flavor rtc.Flavor) (*rtc.Transport, error) {
	rc := a.config.Realtime
	return rtc.New(
		rtc.WithFlavor(flavor),
		rtc.WithSignalingURL(rc.URL),
		rtc.WithModel(rc.Model),
		rtc.WithSTUNServers(rc.STUNServers...),
		rtc.WithReconnect(rc.ReconnectAttempts, rc.ReconnectBackoff),
		rtc.WithHTTPClient(httpc.NewClient(httpc.DefaultTimeout)),
		rtc.WithLogger(a.logger),
	)
}

func (a *App) realtimeTransport() (interview.Transport, error) {
	tr, err := a.newTransport(rtc.FlavorDuplex)
	if err != nil {
		return nil, err
	}
	tr.OnRemoteTrack(a.play)
	return tr, nil
}

// play decodes the agent's voice into the playback device until the track
// ends.
func (a *App) play(track *webrtc.TrackRemote) {
	sink, err := audio.NewSink(a.config.Playback, a.logger)
	if err != nil {
		a.logger.Error("open playback device", "error", err)
		return
	}
	pb, err := audio.NewPlayback(sink, a.logger)
	if err != nil {
		a.logger.Error("create playback", "error", err)
		return
	}
	go func() {
		defer sink.Stop()
		if err := pb.Play(context.Background(), track); err != nil {
			a.logger.Warn("playback stopped", "error", err)
		}
	}()
}

func (a *App) openMicrophone(ctx context.Context) (rtc.Media, error) {
	src, err := audio.NewSource(a.config.Audio, a.logger)
	if err != nil {
		return nil, err
	}
	capture, err := audio.NewCapture(src, a.logger)
	if err != nil {
		return nil, err
	}
	if err := capture.Start(ctx); err != nil {
		_ = capture.Close()
		return nil, err
	}
	return capture, nil
}

func (a *App) newSpeaker() (audio.Speaker, error) {
	if a.config.TTS.Realtime {
		tr, err := a.newTransport(rtc.FlavorPlayback)
		if err != nil {
			return nil, err
		}
		tr.OnRemoteTrack(a.play)
		return guided.NewRealtimeSpeaker(tr, a.realtimeCredential, a.logger), nil
	}
	if a.config.TTS.APIKey == "" {
		a.logger.Info("no TTS key configured; questions will be logged")
		return audio.NewLogSpeaker(a.logger, logSpeakerPace), nil
	}
	provider, err := a.ttsProvider()
	if err != nil {
		return nil, err
	}
	sink, err := audio.NewSink(a.config.Playback, a.logger)
	if err != nil {
		_ = provider.Close()
		return nil, err
	}
	return tts.NewSpeaker(provider, sink, a.logger), nil
}

// realtimeCredential opens a backend realtime session and returns its
// ephemeral key.
func (a *App) realtimeCredential(ctx context.Context) (string, error) {
	sess, err := a.client.CreateRealtimeSession(ctx)
	if err != nil {
		return "", err
	}
	return a.client.RealtimeToken(ctx, sess.ID)
}

// ttsProvider chains the configured model with its fallback model.
func (a *App) ttsProvider() (*tts.Chain, error) {
	tc := a.config.TTS
	models := []string{tc.Model}
	if tc.FallbackModel != "" && tc.FallbackModel != tc.Model {
		models = append(models, tc.FallbackModel)
	}

	providers := make([]tts.Provider, 0, len(models))
	for _, model := range models {
		p, err := tts.NewOpenAI(
			tts.WithAPIKey(tc.APIKey),
			tts.WithModel(model),
			tts.WithVoice(tc.Voice),
			tts.WithSpeed(tc.Speed),
			tts.WithLogger(a.logger),
		)
		if err != nil {
			for _, opened := range providers {
				_ = opened.Close()
			}
			return nil, err
		}
		providers = append(providers, p)
	}
	return tts.NewChain(a.logger, providers...)
}

// archive logs and stores a finished interview.
func (a *App) archive(sum interview.Summary) {
	a.logger.Info("interview finished",
		"session_id", sum.SessionID,
		"reason", sum.Reason,
		"answered", sum.QuestionsAnswered,
		"target", sum.TargetQuestions,
		"entries", len(sum.Transcript),
		"duration", sum.EndedAt.Sub(sum.StartedAt).Round(time.Second),
	)
	if err := a.history.Add(sum); err != nil {
		a.logger.Warn("archive interview failed", "session_id", sum.SessionID, "error", err)
	}
}
