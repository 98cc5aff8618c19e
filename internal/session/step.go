package session

import (
	"time"
)

// StepType tells the runner how a step is carried out.
type StepType string

const (
	StepCode     StepType = "CODE"
	StepConclude StepType = "CONCLUDE"
	StepNop      StepType = "NOP"
)

// Valid reports whether t is one of the known step types.
func (t StepType) Valid() bool {
	switch t {
	case StepCode, StepConclude, StepNop:
		return true
	}
	return false
}

// StepStatus is the lifecycle status of a step.
type StepStatus string

const (
	StatusPending             StepStatus = "pending"
	StatusCompleted           StepStatus = "completed"
	StatusClarificationNeeded StepStatus = "clarification_needed"
)

// SyntheticIndex marks steps that were generated by a budget guard rather than by the planner.
const SyntheticIndex = -1

// ToolCode is the action a CODE step asks the executor to run.
type ToolCode struct {
	ToolName      string         `json:"tool_name"`
	ToolArguments map[string]any `json:"tool_arguments"`
}

// Result sources.
const (
	SourceExecutor          = "executor"
	SourceHumanIntervention = "human_intervention"
	SourceConclusion        = "conclusion"
)

// ExecutionResult is the payload recorded after a step ran.
type ExecutionResult struct {
	Status string `json:"status"` // success, error
	Result string `json:"result"`
	Source string `json:"source,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HumanIntervention records one escalation to an operator. It is never modified after creation.
type HumanIntervention struct {
	Kind               string         `json:"kind"`
	Timestamp          time.Time      `json:"timestamp"`
	StepIndex          int            `json:"step_index"`
	ToolName           string         `json:"tool_name"`
	ToolArguments      map[string]any `json:"tool_arguments"`
	ErrorMessage       string         `json:"error_message"`
	HumanInput         string         `json:"human_input"`
	AttemptNumber      int            `json:"attempt_number"`
	LifelinesRemaining int            `json:"lifelines_remaining"`
	WasSuccessful      bool           `json:"was_successful"`
	NextStepDecision   *string        `json:"next_step_decision"`
}

// Step is one unit of work inside a plan version.
type Step struct {
	Index              int                 `json:"index"`
	Description        string              `json:"description"`
	Type               StepType            `json:"type"`
	Code               *ToolCode           `json:"code,omitempty"`
	Conclusion         string              `json:"conclusion,omitempty"`
	Status             StepStatus          `json:"status"`
	ExecutionResult    *ExecutionResult    `json:"execution_result,omitempty"`
	Perception         *PerceptionSnapshot `json:"perception,omitempty"`
	Attempts           int                 `json:"attempts"`
	WasReplanned       bool                `json:"was_replanned"`
	ParentIndex        *int                `json:"parent_index"`
	HumanInterventions []HumanIntervention `json:"human_interventions"`
}

// NewConclusion builds a synthetic CONCLUDE step carrying a budget message.
func NewConclusion(message string, attempts int) *Step {
	return &Step{
		Index:       SyntheticIndex,
		Description: message,
		Type:        StepConclude,
		Conclusion:  message,
		Status:      StatusPending,
		Attempts:    attempts,
	}
}

// AddIntervention appends an intervention record to the step.
func (s *Step) AddIntervention(hi HumanIntervention) {
	s.HumanInterventions = append(s.HumanInterventions, hi)
}

// LastIntervention returns the most recent intervention, if any.
func (s *Step) LastIntervention() (HumanIntervention, bool) {
	if len(s.HumanInterventions) == 0 {
		return HumanIntervention{}, false
	}
	return s.HumanInterventions[len(s.HumanInterventions)-1], true
}

// ToolName returns the tool a CODE step invokes, or "".
func (s *Step) ToolName() string {
	if s.Code == nil {
		return ""
	}
	return s.Code.ToolName
}

// ToolArguments returns the tool arguments of a CODE step, or nil.
func (s *Step) ToolArguments() map[string]any {
	if s.Code == nil {
		return nil
	}
	return s.Code.ToolArguments
}
