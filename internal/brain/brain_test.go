package brain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rahul/stepwise/internal/agent"
	"github.com/rahul/stepwise/internal/session"
	"github.com/rahul/stepwise/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// mockModel is a function-field llms.Model.
type mockModel struct {
	reply   string
	err     error
	prompts []string
}

func (m *mockModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *mockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
		err   error
	}{
		{"fenced", "Sure!\n```json\n{\"a\": 1}\n```\nbye", `{"a": 1}`, nil},
		{"bare", `Here: {"a": {"b": 2}} done`, `{"a": {"b": 2}}`, nil},
		{"empty fence falls back", "```json\n```\n{\"x\": true}", `{"x": true}`, nil},
		{"none", "no json here", "", ErrNoJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.reply)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPerceiver_Perceive(t *testing.T) {
	model := &mockModel{reply: "```json\n" + `{
		"original_goal_achieved": false,
		"local_goal_achieved": true,
		"confidence": "0.85",
		"reasoning": "the page was fetched",
		"solution_summary": "fetched the page"
	}` + "\n```"}
	p := NewPerceiver(model, NewPromptManager(""), nil)

	snap, err := p.Perceive(context.Background(), agent.PerceptionInput{
		RunID:        "run-1",
		SnapshotType: agent.SnapshotStepResult,
		RawInput:     "<html>hello</html>",
		Memory:       []agent.MemoryEntry{{Query: "fetch", ResultRequirement: "Tool failed", SolutionSummary: "timeout"}},
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, snap.LocalGoalAchieved)
	assert.InDelta(t, 0.85, float64(snap.Confidence), 1e-9)

	require.Len(t, model.prompts, 1)
	prompt := model.prompts[0]
	assert.Contains(t, prompt, "# Perception")
	assert.Contains(t, prompt, `"memory_1"`)
	assert.Contains(t, prompt, `"snapshot_type": "step_result"`)
	assert.Contains(t, prompt, "Initial query mode, plan not created")
	assert.Contains(t, prompt, "2026-03-01T12:00:00Z")
}

func TestPerceiver_Errors(t *testing.T) {
	in := agent.PerceptionInput{SnapshotType: agent.SnapshotUserQuery, RawInput: "q"}

	_, err := NewPerceiver(&mockModel{err: errors.New("quota")}, NewPromptManager(""), nil).Perceive(context.Background(), in)
	assert.ErrorContains(t, err, "quota")

	_, err = NewPerceiver(&mockModel{reply: "I am not sure"}, NewPromptManager(""), nil).Perceive(context.Background(), in)
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = NewPerceiver(&mockModel{reply: `{"local_goal_achieved": true}`}, NewPromptManager(""), nil).Perceive(context.Background(), in)
	assert.ErrorContains(t, err, "missing")
}

func TestDecider_Decide(t *testing.T) {
	model := &mockModel{reply: "```json\n" + `{
		"plan_text": ["Step 0: search", "Step 1: answer"],
		"next_step": {
			"step_index": 0,
			"description": "search the web",
			"type": "CODE",
			"code": {"tool_name": "search", "tool_arguments": {"query": "stepwise"}}
		}
	}` + "\n```"}
	d := NewDecider(model, NewPromptManager(""), "- search: Search the web", nil)

	out, err := d.Decide(context.Background(), agent.DecisionRequest{
		SessionID:     "s-1",
		Mode:          agent.ModeMidSession,
		Strategy:      "exploratory",
		OriginalQuery: "what is stepwise",
		HumanGuidance: "use the docs",
		CurrentStep:   &session.Step{Index: 0, Description: "old", Type: session.StepNop},
	})
	require.NoError(t, err)
	assert.Equal(t, session.StepCode, out.Type)
	assert.Equal(t, "search", out.Code.ToolName)

	prompt := model.prompts[0]
	assert.Contains(t, prompt, "### The ONLY Available Tools")
	assert.Contains(t, prompt, "- search: Search the web")
	assert.Contains(t, prompt, `"decision_mode": "mid_session"`)
	assert.Contains(t, prompt, `"human_guidance": "use the docs"`)
	assert.NotContains(t, prompt, "s-1", "session id stays out of the prompt")
}

func TestDecider_RejectsInvalidVerdict(t *testing.T) {
	d := NewDecider(&mockModel{reply: `{"plan_text": ["a"], "type": "CODE"}`}, NewPromptManager(""), "", nil)
	_, err := d.Decide(context.Background(), agent.DecisionRequest{Mode: agent.ModeInitial})
	assert.ErrorContains(t, err, "invalid decision")
}

func TestPromptManager_OverridesAndPreamble(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"identity.md":     "Identity Content",
		"soul.md":         "Soul Content",
		"capabilities.md": "Capabilities Content",
		"user.md":         "User Content",
		"extra.md":        "Extra Content",
		"decision.md":     "Custom decision",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	pm := NewPromptManager(dir)

	decision, err := pm.Decision()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(decision, "Custom decision"))

	order := []string{"Identity Content", "Soul Content", "Capabilities Content", "User Content", "Extra Content", "Custom decision"}
	for i := 1; i < len(order); i++ {
		assert.Less(t, strings.Index(decision, order[i-1]), strings.Index(decision, order[i]),
			"%q should come before %q", order[i-1], order[i])
	}

	perception, err := pm.Perception()
	require.NoError(t, err)
	assert.Contains(t, perception, "# Perception", "built-in template when no override exists")
	assert.NotContains(t, perception, "Custom decision")
}

func TestPromptManager_MissingDirectoryUsesDefaults(t *testing.T) {
	pm := NewPromptManager(filepath.Join(t.TempDir(), "missing"))
	decision, err := pm.Decision()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(decision, "# Decision"))
}

func TestNewModel(t *testing.T) {
	_, err := NewModel("", config.ProviderConfig{})
	assert.ErrorContains(t, err, "no enabled provider")

	_, err = NewModel("gemini", config.ProviderConfig{})
	assert.ErrorContains(t, err, "not supported")

	m, err := NewModel("openrouter", config.ProviderConfig{APIKey: "sk-test", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.NotNil(t, m)
}
