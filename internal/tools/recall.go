package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/stepwise/internal/agent"
)

// RecallTool searches earlier sessions for solutions to similar queries.
type RecallTool struct {
	Memory agent.MemorySearcher
	Limit  int
}

func NewRecallTool(memory agent.MemorySearcher, limit int) *RecallTool {
	if limit <= 0 {
		limit = 3
	}
	return &RecallTool{Memory: memory, Limit: limit}
}

func (r *RecallTool) Name() string {
	return "recall"
}

func (r *RecallTool) Description() string {
	return "Look up how earlier sessions answered similar queries. Arguments: query."
}

func (r *RecallTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The natural language query to search for",
			},
		},
		"required": []string{"query"},
	}
}

func (r *RecallTool) Execute(ctx context.Context, args Arguments) (string, error) {
	if err := args.Require("query"); err != nil {
		return "", err
	}
	entries, err := r.Memory.Search(ctx, args.String("query"), r.Limit)
	if err != nil {
		return "", fmt.Errorf("recall failed: %w", err)
	}
	if len(entries) == 0 {
		return "", Failf("no earlier session matches %q", args.String("query"))
	}

	var sb strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d. Query: %s\n   Answer: %s\n", i+1, e.Query, e.SolutionSummary)
	}
	return strings.TrimSuffix(sb.String(), "\n"), nil
}
