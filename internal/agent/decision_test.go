package agent

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rahul/stepwise/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision_FlattensNextStep(t *testing.T) {
	out, err := ParseDecision([]byte(`{
		"plan_text": ["Search the web", "Summarize"],
		"next_step": {
			"step_index": 0,
			"description": "Search the web",
			"type": "CODE",
			"code": {"tool_name": "search", "tool_arguments": {"query": "go 1.25 release"}}
		}
	}`))
	require.NoError(t, err)

	want := DecisionOutput{
		PlanText:    []string{"Search the web", "Summarize"},
		StepIndex:   0,
		Description: "Search the web",
		Type:        session.StepCode,
		Code:        &session.ToolCode{ToolName: "search", ToolArguments: map[string]any{"query": "go 1.25 release"}},
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("ParseDecision mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDecision_TopLevelWins(t *testing.T) {
	out, err := ParseDecision([]byte(`{
		"plan_text": ["Answer"],
		"description": "top",
		"type": "CONCLUDE",
		"conclusion": "42",
		"next_step": {"description": "nested"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "top", out.Description)
}

func TestParseDecision_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"not json", `plan: yes`, "invalid decision"},
		{"empty plan", `{"plan_text": [], "type": "NOP"}`, "plan_text is empty"},
		{"unknown type", `{"plan_text": ["a"], "type": "DANCE"}`, `unknown step type "DANCE"`},
		{"code without tool", `{"plan_text": ["a"], "type": "CODE"}`, "CODE step without code.tool_name"},
		{"conclude without text", `{"plan_text": ["a"], "type": "CONCLUDE"}`, "CONCLUDE step without conclusion"},
		{"nop with code", `{"plan_text": ["a"], "type": "NOP", "code": {"tool_name": "x"}}`, "NOP step must not carry code"},
		{"code with conclusion", `{"plan_text": ["a"], "type": "CODE", "code": {"tool_name": "x"}, "conclusion": "done"}`, "CODE step must not carry a conclusion"},
		{"bad next_step", `{"plan_text": ["a"], "next_step": "soon"}`, "next_step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDecision([]byte(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDecisionOutput_NewStepCopiesArguments(t *testing.T) {
	d := codeDecision(2, "a", "b", "c")
	st := d.NewStep()
	st.Code.ToolArguments["q"] = "changed"

	assert.Equal(t, "weather", d.Code.ToolArguments["q"])
	assert.Equal(t, 2, st.Index)
	assert.Equal(t, session.StatusPending, st.Status)
}

func TestFailureMemory_EvictsOldest(t *testing.T) {
	m := newFailureMemory(3)
	for _, q := range []string{"a", "b", "c", "d"} {
		m.add(failureEntry(q, "failed "+q))
	}

	got := m.list()
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Query)
	assert.Equal(t, "d", got[2].Query)

	got[0].Query = "mutated"
	assert.Equal(t, "b", m.list()[0].Query)
}

func TestFailureEntry_TruncatesSummary(t *testing.T) {
	long := make([]byte, 0, 400)
	for len(long) < 299 {
		long = append(long, 'x')
	}
	s := string(long) + "é" + "tail"

	e := failureEntry("step", s)
	assert.LessOrEqual(t, len(e.SolutionSummary), failureSummaryLimit)
	assert.Equal(t, string(long), e.SolutionSummary, "a split rune is dropped")
	assert.Equal(t, "Tool failed", e.ResultRequirement)
}

func TestParseDecision_EmptyCodeString(t *testing.T) {
	out, err := ParseDecision([]byte(`{"plan_text": ["Answer"], "type": "CONCLUDE", "code": "", "conclusion": "done"}`))
	require.NoError(t, err)
	assert.Nil(t, out.Code)
	assert.Equal(t, "done", out.Conclusion)
}
