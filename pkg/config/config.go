package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rahul/stepwise/internal/faults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App               AppConfig                 `json:"app" yaml:"app"`
	Agent             AgentConfig               `json:"agent" yaml:"agent"`
	HumanIntervention InterventionConfig        `json:"human_intervention" yaml:"human_intervention"`
	ToolSimulation    ToolSimulationConfig      `json:"tool_simulation" yaml:"tool_simulation"`
	Gateways          map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers         map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Memory            MemoryConfig              `json:"memory" yaml:"memory"`
	Logging           LoggingConfig             `json:"logging" yaml:"logging"`
	Policy            PolicyConfig              `json:"policy" yaml:"policy"`
}

type AppConfig struct {
	Name      string `json:"name" yaml:"name"`
	Workspace string `json:"workspace" yaml:"workspace"`
	Prompts   string `json:"prompts" yaml:"prompts"`
}

type AgentConfig struct {
	Strategy            string `json:"strategy" yaml:"strategy"`
	MaxSteps            int    `json:"max_steps" yaml:"max_steps"`
	MaxLifelinesPerStep int    `json:"max_lifelines_per_step" yaml:"max_lifelines_per_step"`
	FailureMemorySize   int    `json:"failure_memory_size" yaml:"failure_memory_size"`
}

// Intervention channels.
const (
	ChannelTerminal = "terminal"
	ChannelTelegram = "telegram"
	ChannelDiscord  = "discord"
)

type InterventionConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Channel string `json:"channel" yaml:"channel"`
}

type ToolSimulationConfig struct {
	Enabled      bool                 `json:"enabled" yaml:"enabled"`
	Seed         uint64               `json:"seed,omitempty" yaml:"seed,omitempty"`
	FailureTypes []faults.FailureType `json:"failure_types" yaml:"failure_types"`
}

type GatewayConfig struct {
	Token     string `json:"token" yaml:"token"`
	ChatID    string `json:"chat_id,omitempty" yaml:"chat_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty" yaml:"channel_id,omitempty"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// Memory types.
const (
	MemorySQLite = "sqlite"
	MemoryFile   = "file"
)

type MemoryConfig struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path" yaml:"path"`
}

type LoggingConfig struct {
	Level          string `json:"level" yaml:"level"`
	LLMLogPath     string `json:"llm_log_path" yaml:"llm_log_path"`
	LLMLogMaxBytes int64  `json:"llm_log_max_bytes" yaml:"llm_log_max_bytes"`
}

type PolicyConfig struct {
	DeniedTools     []string `json:"denied_tools" yaml:"denied_tools"`
	DeniedArguments []string `json:"denied_arguments" yaml:"denied_arguments"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:      "stepwise",
			Workspace: "./workspace",
			Prompts:   "./prompts",
		},
		Agent: AgentConfig{
			Strategy:            "exploratory",
			MaxSteps:            12,
			MaxLifelinesPerStep: 3,
			FailureMemorySize:   3,
		},
		HumanIntervention: InterventionConfig{Enabled: false, Channel: ChannelTerminal},
		Memory:            MemoryConfig{Type: MemorySQLite, Path: "./stepwise.db"},
		Logging: LoggingConfig{
			Level:          "info",
			LLMLogPath:     filepath.Join("logs", "llm.jsonl"),
			LLMLogMaxBytes: 10 * 1024 * 1024,
		},
		Policy: PolicyConfig{
			DeniedArguments: []string{`rm\s+-rf`, `mkfs`, `shutdown`, `reboot`},
		},
	}
}

// LoadConfig reads a YAML (.yaml/.yml) or JSON file over the defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills missing provider keys from <NAME>_API_KEY.
func (c *Config) applyEnv() {
	for name, p := range c.Providers {
		if p.APIKey != "" {
			continue
		}
		if key := os.Getenv(strings.ToUpper(name) + "_API_KEY"); key != "" {
			p.APIKey = key
			c.Providers[name] = p
		}
	}
}

// Validate checks the budgets and the enumerated options.
func (c *Config) Validate() error {
	var errs []error
	if c.Agent.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("agent.max_steps must be at least 1, got %d", c.Agent.MaxSteps))
	}
	if c.Agent.MaxLifelinesPerStep < 1 {
		errs = append(errs, fmt.Errorf("agent.max_lifelines_per_step must be at least 1, got %d", c.Agent.MaxLifelinesPerStep))
	}
	if c.Agent.FailureMemorySize < 1 {
		errs = append(errs, fmt.Errorf("agent.failure_memory_size must be at least 1, got %d", c.Agent.FailureMemorySize))
	}
	for _, ft := range c.ToolSimulation.FailureTypes {
		if ft.Probability < 0 {
			errs = append(errs, fmt.Errorf("tool_simulation failure type %q has negative probability", ft.Type))
		}
	}
	switch c.HumanIntervention.Channel {
	case ChannelTerminal, ChannelTelegram, ChannelDiscord:
	default:
		errs = append(errs, fmt.Errorf("unknown human_intervention.channel %q", c.HumanIntervention.Channel))
	}
	switch c.Memory.Type {
	case MemorySQLite, MemoryFile:
	default:
		errs = append(errs, fmt.Errorf("unknown memory.type %q", c.Memory.Type))
	}
	return errors.Join(errs...)
}

// GetDefaultProvider returns the enabled provider with the smallest name, so the choice is stable.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	var best string
	for name, p := range c.Providers {
		if p.Enabled && (best == "" || name < best) {
			best = name
		}
	}
	if best == "" {
		return "", ProviderConfig{}
	}
	return best, c.Providers[best]
}

// GetGateway returns the named gateway config if enabled.
func (c *Config) GetGateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled {
		return g, true
	}
	return GatewayConfig{}, false
}
