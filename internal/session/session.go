// Package session holds the durable record of one task execution: the perception history,
// every plan revision with its steps, and the final state.
//
// Plan history is append-only. A replan always adds a new PlanVersion; older versions are never
// rewritten, so the full history stays available for audit.
package session

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the coarse state of a session.
type Status string

const (
	StatusRunning               Status = "running"
	StatusFinished              Status = "finished"
	StatusAborted               Status = "aborted"
	StatusPlanExhausted         Status = "plan_exhausted"
	StatusAwaitingClarification Status = "awaiting_clarification"
	StatusFailed                Status = "failed"
)

// Terminal reports whether no further step will run without an explicit resume.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// PlanVersion is one planning revision.
type PlanVersion struct {
	PlanText []string `json:"plan_text"`
	Steps    []*Step  `json:"steps"`
}

// FinalState is set once a session is finalized.
type FinalState struct {
	GoalAchieved    bool    `json:"goal_achieved"`
	FinalAnswer     string  `json:"final_answer"`
	Confidence      float64 `json:"confidence"`
	ReasoningNote   string  `json:"reasoning_note"`
	SolutionSummary string  `json:"solution_summary"`
}

// Session is one task execution. It is owned by a single controller run and is not safe for
// concurrent mutation.
type Session struct {
	ID                string               `json:"session_id"`
	OriginalQuery     string               `json:"original_query"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
	Status            Status               `json:"status"`
	PerceptionHistory []PerceptionSnapshot `json:"perception_history"`
	PlanVersions      []*PlanVersion       `json:"plan_versions"`
	FinalState        *FinalState          `json:"final_state"`
	Error             string               `json:"error,omitempty"`
}

// ErrNotLatest is returned when a step is appended to a frozen plan version.
var ErrNotLatest = errors.New("plan version is frozen")

// New creates a running session for query.
func New(query string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:            uuid.New().String(),
		OriginalQuery: query,
		CreatedAt:     now,
		UpdatedAt:     now,
		Status:        StatusRunning,
	}
}

// ShortID is the first segment of the session id, for display.
func (s *Session) ShortID() string {
	id, _, _ := strings.Cut(s.ID, "-")
	return id
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}

// AddPerception appends a snapshot to the perception history.
func (s *Session) AddPerception(p PerceptionSnapshot) {
	s.PerceptionHistory = append(s.PerceptionHistory, p)
	s.touch()
}

// AddPlanVersion appends a new plan revision and returns its first step, which becomes the
// caller's active step. It returns nil when steps is empty.
func (s *Session) AddPlanVersion(planText []string, steps []*Step) *Step {
	text := make([]string, len(planText))
	copy(text, planText)
	v := &PlanVersion{PlanText: text, Steps: append([]*Step(nil), steps...)}
	s.PlanVersions = append(s.PlanVersions, v)
	s.touch()
	if len(v.Steps) == 0 {
		return nil
	}
	return v.Steps[0]
}

// AppendStep adds an executed step to the latest version. version must be the latest index.
// The agent controller does not call it: every version it creates already holds its single
// step. It is kept for callers that build multi-step versions by hand.
func (s *Session) AppendStep(version int, step *Step) error {
	if version != len(s.PlanVersions)-1 {
		return ErrNotLatest
	}
	v := s.PlanVersions[version]
	v.Steps = append(v.Steps, step)
	s.touch()
	return nil
}

// LatestVersion returns the newest plan version, or nil.
func (s *Session) LatestVersion() *PlanVersion {
	if len(s.PlanVersions) == 0 {
		return nil
	}
	return s.PlanVersions[len(s.PlanVersions)-1]
}

// CurrentPlan returns the plan text of the latest version.
func (s *Session) CurrentPlan() []string {
	v := s.LatestVersion()
	if v == nil {
		return nil
	}
	return v.PlanText
}

// CompletedSteps returns the completed steps of a version in their original order.
func (s *Session) CompletedSteps(version int) []*Step {
	if version < 0 || version >= len(s.PlanVersions) {
		return nil
	}
	var out []*Step
	for _, st := range s.PlanVersions[version].Steps {
		if st.Status == StatusCompleted {
			out = append(out, st)
		}
	}
	return out
}

// CompletedHistory returns the completed steps of every version, oldest first. Synthesized
// conclusions are left out.
func (s *Session) CompletedHistory() []*Step {
	var out []*Step
	for _, st := range s.Steps() {
		if st.Status == StatusCompleted && st.Index >= 0 {
			out = append(out, st)
		}
	}
	return out
}

// Steps returns every step across all versions, oldest first.
func (s *Session) Steps() []*Step {
	var out []*Step
	for _, v := range s.PlanVersions {
		out = append(out, v.Steps...)
	}
	return out
}

// MarkComplete finalizes the session from a perception. An empty finalAnswer falls back to the
// perception's solution summary.
func (s *Session) MarkComplete(p PerceptionSnapshot, finalAnswer string) {
	if finalAnswer == "" {
		finalAnswer = p.SolutionSummary
	}
	s.FinalState = &FinalState{
		GoalAchieved:    p.OriginalGoalAchieved,
		FinalAnswer:     finalAnswer,
		Confidence:      float64(p.Confidence),
		ReasoningNote:   p.Reasoning,
		SolutionSummary: p.SolutionSummary,
	}
	s.Status = StatusFinished
	s.touch()
}

// Abort finalizes the session as not achieved with an explanatory summary.
func (s *Session) Abort(summary string) {
	s.FinalState = &FinalState{
		GoalAchieved:    false,
		FinalAnswer:     summary,
		ReasoningNote:   summary,
		SolutionSummary: summary,
	}
	s.Status = StatusAborted
	s.touch()
}

// Exhaust records that the plan ran out of steps while the last step succeeded locally.
func (s *Session) Exhaust(p PerceptionSnapshot) {
	s.FinalState = &FinalState{
		GoalAchieved:    false,
		FinalAnswer:     p.SolutionSummary,
		Confidence:      float64(p.Confidence),
		ReasoningNote:   "Plan completed without confirming the original goal. " + p.Reasoning,
		SolutionSummary: p.SolutionSummary,
	}
	s.Status = StatusPlanExhausted
	s.touch()
}

// AwaitClarification leaves the session open for a later resume.
func (s *Session) AwaitClarification() {
	s.Status = StatusAwaitingClarification
	s.touch()
}

// Fail records a fatal error.
func (s *Session) Fail(err error) {
	s.Status = StatusFailed
	if err != nil {
		s.Error = err.Error()
	}
	s.touch()
}

// Resume reopens a session awaiting clarification.
func (s *Session) Resume() {
	s.Status = StatusRunning
	s.touch()
}

// SolutionSummary returns the final summary, or "" while unfinished.
func (s *Session) SolutionSummary() string {
	if s.FinalState == nil {
		return ""
	}
	return s.FinalState.SolutionSummary
}

// Snapshot serializes the full session.
func (s *Session) Snapshot() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Load decodes a snapshot produced by Snapshot.
func Load(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
