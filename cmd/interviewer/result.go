package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/teslashibe/go-interviewer/pkg/guided"
)

func printResult(res *guided.Result) {
	fmt.Printf("\nSession %s finished in %s\n\n", res.SessionID, res.Duration.Round(time.Second))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSKILL\tQUESTION\tANSWER")
	for _, a := range res.Answers {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", a.Question.Index, a.Question.Skill, clip(a.Question.Text, 50), clip(a.Text, 60))
	}
	_ = w.Flush()

	if len(res.Evaluations) == 0 {
		return
	}
	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tFEEDBACK")
	for _, e := range res.Evaluations {
		fmt.Fprintf(w, "%.1f\t%s\n", e.Score, clip(e.Feedback, 90))
	}
	_ = w.Flush()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
