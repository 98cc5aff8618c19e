package governance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine, err := NewPolicyEngine([]string{"shell"}, []string{`rm\s+-rf`, `mkfs`})
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name   string
		req    Request
		effect Effect
		reason string
	}{
		{"allowed by default", Request{Tool: "search", Arguments: map[string]any{"query": "weather"}}, EffectAllow, "default"},
		{"denied tool", Request{Tool: "shell"}, EffectDeny, "'shell' is restricted"},
		{"denied argument", Request{Tool: "filesystem", Arguments: map[string]any{"command": "rm  -rf /"}}, EffectDeny, `rm\s+-rf`},
		{"nested argument", Request{Tool: "browser", Arguments: map[string]any{"opts": map[string]any{"cmd": "mkfs.ext4"}}}, EffectDeny, "mkfs"},
		{"no arguments", Request{Tool: "recall"}, EffectAllow, "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Evaluate(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.effect, res.Effect)
			assert.Contains(t, res.Reason, tt.reason)
		})
	}
}

func TestNewPolicyEngine_InvalidPattern(t *testing.T) {
	_, err := NewPolicyEngine(nil, []string{"ok", "(unclosed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(unclosed")
}
