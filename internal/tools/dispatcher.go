package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/rahul/stepwise/internal/governance"
	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/session"
)

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrDenied      = errors.New("tool call denied by policy")
)

// Dispatcher runs tool calls from the registry after a policy check.
type Dispatcher struct {
	Registry *Registry
	Policy   governance.PolicyEngine
	Logger   *observability.Logger
}

func NewDispatcher(registry *Registry, policy governance.PolicyEngine, logger *observability.Logger) *Dispatcher {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Dispatcher{Registry: registry, Policy: policy, Logger: logger}
}

// Execute runs code. Unknown tools, denied calls and tool errors fail the call; a *Failure
// returned by the tool becomes an error result.
func (d *Dispatcher) Execute(ctx context.Context, code session.ToolCode) (session.ExecutionResult, error) {
	tool := d.Registry.Get(code.ToolName)
	if tool == nil {
		return session.ExecutionResult{}, fmt.Errorf("%w: %s", ErrUnknownTool, code.ToolName)
	}

	if d.Policy != nil {
		res, err := d.Policy.Evaluate(ctx, governance.Request{Tool: code.ToolName, Arguments: code.ToolArguments})
		if err != nil {
			return session.ExecutionResult{}, fmt.Errorf("policy check failed: %w", err)
		}
		d.Logger.LogPolicyCheck(code.ToolName, string(res.Effect), res.Reason)
		if res.Effect == governance.EffectDeny {
			return session.ExecutionResult{}, fmt.Errorf("%w: %s", ErrDenied, res.Reason)
		}
	}

	out, err := tool.Execute(ctx, Arguments(code.ToolArguments))
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			return session.ExecutionResult{
				Status: "error",
				Source: session.SourceExecutor,
				Error:  f.Message,
			}, nil
		}
		return session.ExecutionResult{}, err
	}
	return session.ExecutionResult{
		Status: "success",
		Result: out,
		Source: session.SourceExecutor,
	}, nil
}

// Release frees whatever the registered tools hold for sessionID.
func (d *Dispatcher) Release(sessionID string) {
	for _, name := range d.Registry.Names() {
		if rel, ok := d.Registry.Get(name).(interface{ Release(string) }); ok {
			rel.Release(sessionID)
		}
	}
}
