package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePerception(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    PerceptionSnapshot
		wantErr string
	}{
		{
			name:  "complete verdict",
			input: `{"original_goal_achieved": true, "local_goal_achieved": true, "confidence": 0.95, "reasoning": "r", "solution_summary": "s"}`,
			want:  PerceptionSnapshot{OriginalGoalAchieved: true, LocalGoalAchieved: true, Confidence: 0.95, Reasoning: "r", SolutionSummary: "s"},
		},
		{
			name:  "string confidence",
			input: `{"original_goal_achieved": false, "local_goal_achieved": true, "confidence": "0.5", "reasoning": "", "solution_summary": "", "entities": []}`,
			want:  PerceptionSnapshot{LocalGoalAchieved: true, Confidence: 0.5},
		},
		{
			name:    "missing keys",
			input:   `{"original_goal_achieved": false, "confidence": 1}`,
			wantErr: "missing local_goal_achieved, reasoning, solution_summary",
		},
		{
			name:    "null counts as missing",
			input:   `{"original_goal_achieved": null, "local_goal_achieved": true, "confidence": 1, "reasoning": "", "solution_summary": ""}`,
			wantErr: "missing original_goal_achieved",
		},
		{
			name:    "bad confidence",
			input:   `{"original_goal_achieved": false, "local_goal_achieved": true, "confidence": "high", "reasoning": "", "solution_summary": ""}`,
			wantErr: "confidence must be a number",
		},
		{
			name:    "not json",
			input:   `nope`,
			wantErr: "invalid perception verdict",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePerception([]byte(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
