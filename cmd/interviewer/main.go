// Interviewer - realtime voice interview controller
// Serves the local control API by default; -guided runs one
// question-by-question interview from the terminal instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-interviewer/internal/config"
	"github.com/teslashibe/go-interviewer/internal/log"
	"github.com/teslashibe/go-interviewer/pkg/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "YAML configuration file")
	envFile := flag.String("env", ".env", "dotenv file loaded before the environment is read")
	listen := flag.String("listen", "", "control API address (overrides config)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error")
	logFormat := flag.String("log-format", "", "text or json")
	audioDevice := flag.String("audio-device", "", "PCM capture file or FIFO, - for stdin")
	playbackDevice := flag.String("playback-device", "", "PCM playback file or FIFO, - for stdout")
	guidedID := flag.String("guided", "", "run a guided interview for this interview ID and exit")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "interviewer: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "interviewer: %v\n", err)
		return 1
	}
	applyFlags(cfg, *listen, *logLevel, *logFormat, *audioDevice, *playbackDevice)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "interviewer: %v\n", err)
		return 1
	}

	logger := log.Init(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		return 1
	}
	if err := a.Init(ctx); err != nil {
		logger.Error("initialization failed", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	if *guidedID != "" {
		res, err := a.Guided(ctx, *guidedID)
		if err != nil {
			logger.Error("guided interview failed", "error", err)
			return 1
		}
		printResult(res)
		return 0
	}

	logger.Info("interviewer ready", "listen", cfg.Server.Listen, "backend", cfg.Backend.URL)
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run error", "error", err)
		return 1
	}
	return 0
}

// applyFlags overlays non-empty command line values on cfg.
func applyFlags(cfg *config.Config, listen, level, format, device, playback string) {
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if level != "" {
		cfg.Log.Level = level
	}
	if format != "" {
		cfg.Log.Format = format
	}
	if device != "" {
		cfg.Audio.Device = device
	}
	if playback != "" {
		cfg.Playback.Device = playback
	}
}
