// Package governance decides whether a tool call may run.
package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a tool call to be evaluated.
type Request struct {
	SessionID string
	Tool      string
	Arguments map[string]any
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates tool calls against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies listed tools and any call whose encoded arguments match a
// restricted pattern. It is safe for concurrent use.
type DefaultPolicyEngine struct {
	mu          sync.RWMutex
	deniedTools map[string]bool
	deniedRegex []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{deniedTools: make(map[string]bool)}
}

// NewPolicyEngine builds an engine from tool names and argument patterns.
func NewPolicyEngine(deniedTools, deniedArguments []string) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, name := range deniedTools {
		e.DenyTool(name)
	}
	var errs []error
	for _, pattern := range deniedArguments {
		if err := e.DenyArguments(pattern); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deniedTools[name] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid argument pattern %q: %w", pattern, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deniedRegex = append(e.deniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.deniedTools[req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Tool '%s' is restricted by system policy", req.Tool),
		}, nil
	}

	if len(e.deniedRegex) > 0 && len(req.Arguments) > 0 {
		encoded, err := json.Marshal(req.Arguments)
		if err != nil {
			return Result{}, fmt.Errorf("failed to encode arguments: %w", err)
		}
		for _, re := range e.deniedRegex {
			if re.Match(encoded) {
				return Result{
					Effect: EffectDeny,
					Reason: fmt.Sprintf("Arguments match restricted pattern: %s", re.String()),
				}, nil
			}
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
