// Evalreport prints evaluation statistics for past realtime interviews.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/teslashibe/go-interviewer/internal/config"
	"github.com/teslashibe/go-interviewer/internal/log"
	"github.com/teslashibe/go-interviewer/pkg/app"
	"github.com/teslashibe/go-interviewer/pkg/evaluation"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	envFile := flag.String("env", ".env", "dotenv file loaded before the environment is read")
	asJSON := flag.Bool("json", false, "print the summary as JSON")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "evalreport: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "evalreport: %v\n", err)
		os.Exit(1)
	}
	logger := log.InitWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}
	if err := a.Authenticate(ctx); err != nil {
		logger.Error("authentication failed", "error", err)
		os.Exit(1)
	}
	sessions, err := a.Backend().ListRealtimeSessions(ctx)
	if err != nil {
		logger.Error("list sessions failed", "error", err)
		os.Exit(1)
	}

	sum := evaluation.Summarize(sessions, time.Now())
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			os.Exit(1)
		}
		return
	}
	printSummary(os.Stdout, sum)
}

func printSummary(out io.Writer, sum evaluation.Summary) {
	fmt.Fprintf(out, "Sessions:           %d\n", sum.TotalSessions)
	fmt.Fprintf(out, "Evaluations:        %d (%d in the last week)\n", sum.TotalEvaluations, sum.RecentEvaluations)
	fmt.Fprintf(out, "Average score:      %.1f\n", sum.AverageScore)
	fmt.Fprintf(out, "Excellent (>= %d):   %d\n", evaluation.ExcellentThreshold, sum.Excellent)
	fmt.Fprintf(out, "Good (>= %d):        %d\n", evaluation.GoodThreshold, sum.Good)
	fmt.Fprintf(out, "Needs improvement:  %d\n", sum.NeedsImprovement)

	if len(sum.Sessions) == 0 {
		return
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tCREATED\tEVALUATIONS\tAVERAGE")
	for _, s := range sum.Sessions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.1f\n", s.ID, s.CreatedAt.Format("2006-01-02 15:04"), s.EvaluationCount, s.AverageScore)
	}
	_ = w.Flush()
}
