package brain

import (
	"fmt"

	"github.com/rahul/stepwise/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// NewModel builds the langchaingo model for a configured provider.
func NewModel(name string, p config.ProviderConfig) (llms.Model, error) {
	switch name {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		baseURL := p.BaseURL
		if baseURL == "" && name == "openrouter" {
			baseURL = openRouterBaseURL
		}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", name, err)
		}
		return llm, nil
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(p.Model)}
		if p.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(p.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return llm, nil
	case "":
		return nil, fmt.Errorf("no enabled provider found in config")
	}
	return nil, fmt.Errorf("provider %s is not supported", name)
}
