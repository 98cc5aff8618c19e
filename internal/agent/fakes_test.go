package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rahul/stepwise/internal/intervention"
	"github.com/rahul/stepwise/internal/session"
	"github.com/stretchr/testify/require"
)

type fakePerceiver struct {
	mu     sync.Mutex
	fn     func(in PerceptionInput) (session.PerceptionSnapshot, error)
	inputs []PerceptionInput
}

func (f *fakePerceiver) Perceive(_ context.Context, in PerceptionInput) (session.PerceptionSnapshot, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	return f.fn(in)
}

func (f *fakePerceiver) calls() []PerceptionInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PerceptionInput(nil), f.inputs...)
}

type fakeDecider struct {
	mu       sync.Mutex
	fn       func(req DecisionRequest) (DecisionOutput, error)
	requests []DecisionRequest
}

func (f *fakeDecider) Decide(_ context.Context, req DecisionRequest) (DecisionOutput, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.fn(req)
}

type fakeExecutor struct {
	mu    sync.Mutex
	fn    func(code session.ToolCode) (session.ExecutionResult, error)
	count int
}

func (f *fakeExecutor) Execute(_ context.Context, code session.ToolCode) (session.ExecutionResult, error) {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
	return f.fn(code)
}

type fakeBroker struct {
	mu       sync.Mutex
	fn       func(req intervention.Request) (*session.HumanIntervention, error)
	requests []intervention.Request
}

func (f *fakeBroker) RequestInput(_ context.Context, req intervention.Request) (*session.HumanIntervention, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.fn(req)
}

type recordingSink struct {
	mu        sync.Mutex
	snapshots []*session.Session
	err       error
}

func (s *recordingSink) Upsert(_ context.Context, sess *session.Session) error {
	data, err := sess.Snapshot()
	if err != nil {
		return err
	}
	copied, err := session.Load(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, copied)
	return s.err
}

type operatorFunc func(ctx context.Context, prompt string) (string, error)

func (f operatorFunc) Ask(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func verdict(original, local bool, summary string) session.PerceptionSnapshot {
	return session.PerceptionSnapshot{
		OriginalGoalAchieved: original,
		LocalGoalAchieved:    local,
		Confidence:           0.9,
		Reasoning:            "because",
		SolutionSummary:      summary,
	}
}

func codeDecision(index int, plan ...string) DecisionOutput {
	return DecisionOutput{
		PlanText:    plan,
		StepIndex:   index,
		Description: fmt.Sprintf("step %d", index),
		Type:        session.StepCode,
		Code:        &session.ToolCode{ToolName: "search", ToolArguments: map[string]any{"q": "weather"}},
	}
}

func concludeDecision(index int, answer string, plan ...string) DecisionOutput {
	return DecisionOutput{
		PlanText:    plan,
		StepIndex:   index,
		Description: "answer the user",
		Type:        session.StepConclude,
		Conclusion:  answer,
	}
}

// byType answers user_query and step_result perceptions separately.
func byType(query, step session.PerceptionSnapshot) func(PerceptionInput) (session.PerceptionSnapshot, error) {
	return func(in PerceptionInput) (session.PerceptionSnapshot, error) {
		if in.SnapshotType == SnapshotUserQuery {
			return query, nil
		}
		return step, nil
	}
}

func succeed(result string) func(session.ToolCode) (session.ExecutionResult, error) {
	return func(session.ToolCode) (session.ExecutionResult, error) {
		return session.ExecutionResult{Status: "success", Result: result}, nil
	}
}

func mustController(t *testing.T, deps Deps, opts Options) *Controller {
	t.Helper()
	c, err := New(deps, opts)
	require.NoError(t, err)
	return c
}
