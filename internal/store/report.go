package store

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rahul/stepwise/internal/session"
)

// ToolStats counts calls of one tool across all plan versions.
type ToolStats struct {
	Calls     int `json:"calls"`
	Successes int `json:"successes"`
}

// SuccessRate is the fraction of calls that succeeded, or 0 when never called.
func (t ToolStats) SuccessRate() float64 {
	if t.Calls == 0 {
		return 0
	}
	return float64(t.Successes) / float64(t.Calls)
}

// Report summarizes a session for display.
type Report struct {
	SessionID     string               `json:"session_id"`
	Query         string               `json:"original_query"`
	Status        session.Status       `json:"status"`
	PlanVersions  int                  `json:"plan_versions"`
	FinalPlan     []string             `json:"final_plan"`
	FinalSteps    []*session.Step      `json:"final_steps"`
	FinalAnswer   string               `json:"final_answer"`
	Summary       string               `json:"solution_summary"`
	Interventions int                  `json:"interventions"`
	ToolUsage     map[string]ToolStats `json:"tool_usage"`
}

func BuildReport(s *session.Session) Report {
	r := Report{
		SessionID:    s.ID,
		Query:        s.OriginalQuery,
		Status:       s.Status,
		PlanVersions: len(s.PlanVersions),
		FinalAnswer:  finalAnswer(s),
		Summary:      s.SolutionSummary(),
		ToolUsage:    make(map[string]ToolStats),
	}
	if latest := s.LatestVersion(); latest != nil {
		r.FinalPlan = latest.PlanText
		r.FinalSteps = latest.Steps
	}

	for _, step := range s.Steps() {
		r.Interventions += len(step.HumanInterventions)
		if step.Type != session.StepCode || step.ExecutionResult == nil {
			continue
		}
		stats := r.ToolUsage[step.ToolName()]
		stats.Calls++
		if step.ExecutionResult.Status == "success" {
			stats.Successes++
		}
		r.ToolUsage[step.ToolName()] = stats
	}
	return r
}

// Render writes a human readable report.
func (r Report) Render(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Session:  %s\n", r.SessionID)
	fmt.Fprintf(&sb, "Query:    %s\n", r.Query)
	fmt.Fprintf(&sb, "Status:   %s (%d plan versions, %d interventions)\n", r.Status, r.PlanVersions, r.Interventions)

	sb.WriteString("\nFinal plan:\n")
	for _, line := range r.FinalPlan {
		fmt.Fprintf(&sb, "  %s\n", line)
	}

	sb.WriteString("\nFinal steps:\n")
	for _, step := range r.FinalSteps {
		fmt.Fprintf(&sb, "  [%d] %s %s (%s, attempts %d)\n", step.Index, step.Type, step.Description, step.Status, step.Attempts)
		if hi, ok := step.LastIntervention(); ok && !hi.WasSuccessful && hi.ErrorMessage != "" {
			fmt.Fprintf(&sb, "      %s failed: %s\n", hi.Kind, hi.ErrorMessage)
		}
	}

	if len(r.ToolUsage) > 0 {
		sb.WriteString("\nTool usage:\n")
		names := make([]string, 0, len(r.ToolUsage))
		for name := range r.ToolUsage {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			t := r.ToolUsage[name]
			fmt.Fprintf(&sb, "  %-12s %d calls, %.0f%% success\n", name, t.Calls, t.SuccessRate()*100)
		}
	}

	if r.FinalAnswer != "" {
		fmt.Fprintf(&sb, "\nFinal answer:\n  %s\n", r.FinalAnswer)
	}
	if r.Summary != "" {
		fmt.Fprintf(&sb, "\nSummary:\n  %s\n", r.Summary)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
