// Package brain implements the perception and decision collaborators on top of a langchaingo
// model. Both render a prompt template followed by a fenced JSON payload and expect a fenced
// JSON verdict back.
package brain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rahul/stepwise/internal/agent"
	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/session"
	"github.com/tmc/langchaingo/llms"
)

// ErrNoJSON is returned when a model reply carries no JSON object.
var ErrNoJSON = errors.New("model reply contains no JSON object")

// ExtractJSON returns the body of the first ```json fence, or the outermost {...} span.
func ExtractJSON(reply string) (string, error) {
	if _, rest, ok := strings.Cut(reply, "```json"); ok {
		body, _, _ := strings.Cut(rest, "```")
		if body = strings.TrimSpace(body); body != "" {
			return body, nil
		}
	}
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	return reply[start : end+1], nil
}

func render(template string, payload any) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s\n\n```json\n%s\n```", template, data), nil
}

// Perceiver asks the model whether the goal, or the current step, has been achieved.
type Perceiver struct {
	Model   llms.Model
	Prompts *PromptManager
	Logger  *observability.Logger
}

func NewPerceiver(model llms.Model, prompts *PromptManager, logger *observability.Logger) *Perceiver {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Perceiver{Model: model, Prompts: prompts, Logger: logger}
}

type perceptionPayload struct {
	RunID         string                       `json:"run_id"`
	SnapshotType  string                       `json:"snapshot_type"`
	RawInput      string                       `json:"raw_input"`
	MemoryExcerpt map[string]agent.MemoryEntry `json:"memory_excerpt"`
	CurrentPlan   any                          `json:"current_plan"`
	Timestamp     string                       `json:"timestamp"`
}

func (p *Perceiver) Perceive(ctx context.Context, in agent.PerceptionInput) (session.PerceptionSnapshot, error) {
	tmpl, err := p.Prompts.Perception()
	if err != nil {
		return session.PerceptionSnapshot{}, err
	}

	payload := perceptionPayload{
		RunID:         in.RunID,
		SnapshotType:  in.SnapshotType,
		RawInput:      in.RawInput,
		MemoryExcerpt: make(map[string]agent.MemoryEntry, len(in.Memory)),
		Timestamp:     in.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	}
	for i, m := range in.Memory {
		payload.MemoryExcerpt[fmt.Sprintf("memory_%d", i+1)] = m
	}
	if len(in.CurrentPlan) > 0 {
		payload.CurrentPlan = in.CurrentPlan
	} else {
		payload.CurrentPlan = "Initial query mode, plan not created"
	}

	prompt, err := render(tmpl, payload)
	if err != nil {
		return session.PerceptionSnapshot{}, err
	}
	reply, err := llms.GenerateFromSinglePrompt(ctx, p.Model, prompt, llms.WithTemperature(0))
	p.Logger.LogLLM(in.RunID, "perception", prompt, reply)
	if err != nil {
		return session.PerceptionSnapshot{}, fmt.Errorf("perception model call failed: %w", err)
	}

	body, err := ExtractJSON(reply)
	if err != nil {
		return session.PerceptionSnapshot{}, err
	}
	return session.ParsePerception([]byte(body))
}

// Decider asks the model for the next step of the plan.
type Decider struct {
	Model   llms.Model
	Prompts *PromptManager
	// Tools lists the available tools, one "name: description" per line.
	Tools  string
	Logger *observability.Logger
}

func NewDecider(model llms.Model, prompts *PromptManager, tools string, logger *observability.Logger) *Decider {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Decider{Model: model, Prompts: prompts, Tools: tools, Logger: logger}
}

func (d *Decider) Decide(ctx context.Context, req agent.DecisionRequest) (agent.DecisionOutput, error) {
	tmpl, err := d.Prompts.Decision()
	if err != nil {
		return agent.DecisionOutput{}, err
	}
	if d.Tools != "" {
		tmpl += "\n\n### The ONLY Available Tools\n\n" + d.Tools
	}

	prompt, err := render(tmpl, req)
	if err != nil {
		return agent.DecisionOutput{}, err
	}
	reply, err := llms.GenerateFromSinglePrompt(ctx, d.Model, prompt, llms.WithTemperature(0))
	d.Logger.LogLLM(req.SessionID, "decision", prompt, reply)
	if err != nil {
		return agent.DecisionOutput{}, fmt.Errorf("decision model call failed: %w", err)
	}

	body, err := ExtractJSON(reply)
	if err != nil {
		return agent.DecisionOutput{}, err
	}
	return agent.ParseDecision([]byte(body))
}
