package agent

import (
	"context"
	"time"

	"github.com/rahul/stepwise/internal/intervention"
	"github.com/rahul/stepwise/internal/session"
)

// Snapshot types passed to the perceiver.
const (
	SnapshotUserQuery  = "user_query"
	SnapshotStepResult = "step_result"
)

// Mode selects which planning prompt the decider uses.
type Mode string

const (
	ModeInitial    Mode = "initial"
	ModeMidSession Mode = "mid_session"
)

// MemoryEntry is one item of short-term memory handed to the perceiver.
type MemoryEntry struct {
	Query             string `json:"query"`
	ResultRequirement string `json:"result_requirement"`
	SolutionSummary   string `json:"solution_summary"`
}

type PerceptionInput struct {
	RunID        string        `json:"run_id"`
	SnapshotType string        `json:"snapshot_type"`
	RawInput     string        `json:"raw_input"`
	Memory       []MemoryEntry `json:"memory"`
	CurrentPlan  []string      `json:"current_plan"`
	Timestamp    time.Time     `json:"timestamp"`
}

type DecisionRequest struct {
	SessionID          string                      `json:"-"`
	Mode               Mode                        `json:"decision_mode"`
	Strategy           string                      `json:"agent_strategy"`
	OriginalQuery      string                      `json:"original_query"`
	Perception         *session.PerceptionSnapshot `json:"perception,omitempty"`
	CurrentPlanVersion int                         `json:"current_plan_version"`
	CurrentPlan        []string                    `json:"current_plan,omitempty"`
	CompletedSteps     []*session.Step             `json:"completed_steps,omitempty"`
	CurrentStep        *session.Step               `json:"current_step,omitempty"`
	HumanGuidance      string                      `json:"human_guidance,omitempty"`
}

// Perceiver judges progress toward the query.
type Perceiver interface {
	Perceive(ctx context.Context, in PerceptionInput) (session.PerceptionSnapshot, error)
}

// Decider produces the next step of a plan.
type Decider interface {
	Decide(ctx context.Context, req DecisionRequest) (DecisionOutput, error)
}

// Executor runs a tool call. A returned error means the call itself failed. ctx carries the
// session id, see session.IDFromContext.
type Executor interface {
	Execute(ctx context.Context, code session.ToolCode) (session.ExecutionResult, error)
}

// SessionReleaser is implemented by executors that hold resources for a session between
// calls. Release is called once a Run or Resume call returns.
type SessionReleaser interface {
	Release(sessionID string)
}

// Sink persists full session snapshots keyed by session id.
type Sink interface {
	Upsert(ctx context.Context, s *session.Session) error
}

// MemorySearcher finds earlier sessions relevant to a query.
type MemorySearcher interface {
	Search(ctx context.Context, query string, limit int) ([]MemoryEntry, error)
}

// FaultInjector may fail a tool call before it reaches the executor.
type FaultInjector interface {
	Inject(tool string) error
}

// Broker escalates to a human operator.
type Broker interface {
	RequestInput(ctx context.Context, req intervention.Request) (*session.HumanIntervention, error)
}

type nopSink struct{}

func (nopSink) Upsert(context.Context, *session.Session) error { return nil }
