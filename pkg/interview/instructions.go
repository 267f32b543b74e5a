package interview

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-interviewer/pkg/evaluation"
)

// Instructions builds the interviewer prompt for skills.
func Instructions(skills []string, questionsPerSkill int) string {
	total := len(skills) * questionsPerSkill

	var b strings.Builder
	fmt.Fprintf(&b, "You are a technical interviewer conducting a practice interview on %s.\n", strings.Join(skills, ", "))
	fmt.Fprintf(&b, "Ask exactly %d questions in total, %d per skill, one at a time, in this order of topics: %s.\n",
		total, questionsPerSkill, strings.Join(skills, ", "))
	b.WriteString("- Wait for the candidate to answer before asking the next question.\n")
	fmt.Fprintf(&b, "- After each answer, call the '%s' tool with the question, the answer, a score from %d to %d and feedback.\n",
		evaluation.ToolEvaluateAnswer, evaluation.MinScore, evaluation.MaxScore)
	b.WriteString("- Do not read the score or feedback aloud; move on to the next question once the tool call completes.\n")
	b.WriteString("- If an answer is off-topic, ask once for clarification, then evaluate what was said.\n")
	b.WriteString("- You may rephrase a question if asked, but never answer it yourself.\n")
	fmt.Fprintf(&b, "- After the last evaluation, thank the candidate briefly and call the '%s' tool.\n",
		evaluation.ToolCompleteInterview)
	b.WriteString("- Be conversational and concise.")
	return b.String()
}

// normalizeSkills trims skills and drops empty and repeated entries.
func normalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]bool, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
