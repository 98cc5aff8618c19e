package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// caller matches langchaingo's tools.Tool call surface.
type caller interface {
	Call(ctx context.Context, input string) (string, error)
}

type SearchTool struct {
	client caller
}

func NewSearchTool(maxResults int) (*SearchTool, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &SearchTool{client: ddg}, nil
}

func (s *SearchTool) Name() string {
	return "search"
}

func (s *SearchTool) Description() string {
	return "Search the web using DuckDuckGo for real-time information. Arguments: query."
}

func (s *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query to look up",
			},
		},
		"required": []string{"query"},
	}
}

func (s *SearchTool) Execute(ctx context.Context, args Arguments) (string, error) {
	if err := args.Require("query"); err != nil {
		return "", err
	}
	res, err := s.client.Call(ctx, args.String("query"))
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	if strings.TrimSpace(res) == "" {
		return "", Failf("no results for %q", args.String("query"))
	}
	return res, nil
}
