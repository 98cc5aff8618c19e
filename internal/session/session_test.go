package session

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPlanVersion_ReturnsFirstStep(t *testing.T) {
	s := New("what is 4 + 4?")
	first := &Step{Index: 0, Description: "add", Type: StepCode, Status: StatusPending}
	second := &Step{Index: 1, Description: "answer", Type: StepConclude, Status: StatusPending}

	active := s.AddPlanVersion([]string{"Step 0: add", "Step 1: answer"}, []*Step{first, second})

	require.Same(t, first, active)
	require.Len(t, s.PlanVersions, 1)
	assert.Equal(t, []string{"Step 0: add", "Step 1: answer"}, s.CurrentPlan())
	assert.Nil(t, s.AddPlanVersion([]string{"empty"}, nil))
}

func TestAddPlanVersion_CopiesPlanText(t *testing.T) {
	s := New("q")
	text := []string{"Step 0: a"}
	s.AddPlanVersion(text, nil)
	text[0] = "mutated"

	assert.Equal(t, "Step 0: a", s.PlanVersions[0].PlanText[0])
}

func TestPlanHistoryIsAppendOnly(t *testing.T) {
	s := New("q")
	s.AddPlanVersion([]string{"v1"}, []*Step{{Index: 0}})
	before := make([][]string, 0)
	for _, v := range s.PlanVersions {
		before = append(before, append([]string(nil), v.PlanText...))
	}

	s.AddPlanVersion([]string{"v2"}, []*Step{{Index: 0, WasReplanned: true}})
	s.AddPlanVersion([]string{"v3a", "v3b"}, []*Step{{Index: 1}})

	var after [][]string
	for _, v := range s.PlanVersions {
		after = append(after, v.PlanText)
	}
	require.Greater(t, len(after), len(before))
	if diff := cmp.Diff(before, after[:len(before)]); diff != "" {
		t.Fatalf("plan history is not a prefix (-before +after):\n%s", diff)
	}
}

func TestAppendStep_OnlyLatestVersion(t *testing.T) {
	s := New("q")
	s.AddPlanVersion([]string{"v1"}, []*Step{{Index: 0}})
	s.AddPlanVersion([]string{"v2"}, []*Step{{Index: 0}})

	require.ErrorIs(t, s.AppendStep(0, &Step{Index: 1}), ErrNotLatest)
	require.NoError(t, s.AppendStep(1, &Step{Index: 1}))
	assert.Len(t, s.PlanVersions[0].Steps, 1)
	assert.Len(t, s.PlanVersions[1].Steps, 2)
}

func TestCompletedSteps(t *testing.T) {
	s := New("q")
	a := &Step{Index: 0, Status: StatusCompleted}
	b := &Step{Index: 1, Status: StatusPending}
	c := &Step{Index: 2, Status: StatusCompleted}
	s.AddPlanVersion([]string{"a", "b", "c"}, []*Step{a, b, c})

	assert.Equal(t, []*Step{a, c}, s.CompletedSteps(0))
	assert.Nil(t, s.CompletedSteps(1))
	assert.Nil(t, s.CompletedSteps(-1))
}

func TestCompletedHistory_SpansVersions(t *testing.T) {
	s := New("q")
	first := &Step{Index: 0, Status: StatusCompleted}
	second := &Step{Index: 1, Status: StatusCompleted}
	failed := &Step{Index: 2, Status: StatusPending}
	conclusion := NewConclusion("out of budget", 2)
	conclusion.Status = StatusCompleted

	s.AddPlanVersion([]string{"a", "b", "c"}, []*Step{first})
	s.AddPlanVersion([]string{"a", "b", "c"}, []*Step{second})
	s.AddPlanVersion([]string{"a", "b", "c"}, []*Step{failed})
	s.AddPlanVersion([]string{"out of budget"}, []*Step{conclusion})

	assert.Equal(t, []*Step{first, second}, s.CompletedHistory())
	assert.Len(t, s.CompletedSteps(1), 1)
}

func TestMarkComplete_FallsBackToSummary(t *testing.T) {
	s := New("q")
	s.MarkComplete(PerceptionSnapshot{
		OriginalGoalAchieved: true,
		LocalGoalAchieved:    true,
		Confidence:           0.9,
		Reasoning:            "done",
		SolutionSummary:      "8",
	}, "")

	require.NotNil(t, s.FinalState)
	assert.Equal(t, StatusFinished, s.Status)
	assert.True(t, s.FinalState.GoalAchieved)
	assert.Equal(t, "8", s.FinalState.FinalAnswer)
	assert.InDelta(t, 0.9, s.FinalState.Confidence, 1e-9)
}

func TestAbortAndExhaust(t *testing.T) {
	s := New("q")
	s.Abort("Maximum retries reached")
	assert.Equal(t, StatusAborted, s.Status)
	assert.False(t, s.FinalState.GoalAchieved)
	assert.Equal(t, "Maximum retries reached", s.SolutionSummary())

	s = New("q")
	s.Exhaust(PerceptionSnapshot{LocalGoalAchieved: true, SolutionSummary: "partial"})
	assert.Equal(t, StatusPlanExhausted, s.Status)
	assert.False(t, s.FinalState.GoalAchieved)
	assert.Equal(t, "partial", s.SolutionSummary())
}

func TestSnapshotRoundTripKeepsHistory(t *testing.T) {
	s := New("q")
	parent := 0
	s.AddPlanVersion([]string{"a"}, []*Step{{
		Index:        0,
		Type:         StepCode,
		Code:         &ToolCode{ToolName: "search", ToolArguments: map[string]any{"query": "go"}},
		Status:       StatusCompleted,
		WasReplanned: true,
		ParentIndex:  &parent,
		Attempts:     2,
	}})

	data, err := s.Snapshot()
	require.NoError(t, err)
	loaded, err := Load(data)
	require.NoError(t, err)

	assert.Equal(t, s.ID, loaded.ID)
	require.Len(t, loaded.PlanVersions, 1)
	step := loaded.PlanVersions[0].Steps[0]
	assert.Equal(t, "search", step.ToolName())
	assert.Equal(t, 2, step.Attempts)
	require.NotNil(t, step.ParentIndex)
	assert.Equal(t, 0, *step.ParentIndex)
}

func TestShortID(t *testing.T) {
	s := &Session{ID: "abcd1234-ef56-7890"}
	assert.Equal(t, "abcd1234", s.ShortID())
}

func TestNewConclusion(t *testing.T) {
	st := NewConclusion("Maximum steps reached", 2)
	assert.Equal(t, SyntheticIndex, st.Index)
	assert.Equal(t, StepConclude, st.Type)
	assert.Equal(t, "Maximum steps reached", st.Conclusion)
	assert.Equal(t, 2, st.Attempts)
}
