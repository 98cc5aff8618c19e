// Package intervention asks a human operator for input when the agent cannot make progress on
// its own: a tool failed, the last retry is about to be spent, or a step needs clarification.
package intervention

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/session"
)

// Kind is the reason for an escalation.
type Kind string

const (
	KindToolError     Kind = "tool_error"
	KindPlanning      Kind = "planning"
	KindClarification Kind = "clarification"
)

// Operator delivers a prompt to a human and returns their answer.
type Operator interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// Request describes one escalation.
type Request struct {
	SessionID    string
	Step         *session.Step
	ToolName     string
	ToolArgs     map[string]any
	ErrorMessage string
	PlanText     []string
}

// Classify derives the escalation kind from the request.
func Classify(req Request) Kind {
	switch {
	case req.Step != nil && req.Step.Type == session.StepNop:
		return KindClarification
	case req.ToolName != "":
		return KindToolError
	default:
		return KindPlanning
	}
}

// Broker serializes human-input requests. At most one request is outstanding at a time.
type Broker struct {
	op           Operator
	maxLifelines int
	logger       *observability.Logger
	now          func() time.Time

	mu sync.Mutex
}

// NewBroker returns a broker that asks op.
func NewBroker(op Operator, maxLifelines int, logger *observability.Logger) *Broker {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Broker{
		op:           op,
		maxLifelines: maxLifelines,
		logger:       logger,
		now:          time.Now,
	}
}

// RequestInput blocks until the operator supplies non-empty text or the request fails.
// Failures are always *InterventionError.
func (b *Broker) RequestInput(ctx context.Context, req Request) (*session.HumanIntervention, error) {
	if req.Step == nil {
		return nil, &InterventionError{Kind: ErrorGeneral, Message: "request has no step"}
	}
	if !b.mu.TryLock() {
		return nil, &InterventionError{Kind: ErrorGeneral, Message: "broker is not re-entrant", Err: ErrBusy}
	}
	defer b.mu.Unlock()

	kind := Classify(req)
	prompt := b.Prompt(kind, req)
	b.logger.LogIntervention(req.SessionID, req.Step.Index, "human intervention required", map[string]any{
		"kind":  kind,
		"tool":  req.ToolName,
		"error": req.ErrorMessage,
	})

	for {
		if err := ctx.Err(); err != nil {
			return nil, classify(err)
		}
		answer, err := b.op.Ask(ctx, prompt)
		if err != nil {
			ie := classify(err)
			b.logger.LogIntervention(req.SessionID, req.Step.Index, "human intervention failed", map[string]any{
				"kind":  ie.Kind,
				"error": ie.Error(),
			})
			return nil, ie
		}
		if strings.TrimSpace(answer) == "" {
			continue
		}

		return &session.HumanIntervention{
			Kind:               string(kind),
			Timestamp:          b.now().UTC(),
			StepIndex:          req.Step.Index,
			ToolName:           req.ToolName,
			ToolArguments:      req.ToolArgs,
			ErrorMessage:       req.ErrorMessage,
			HumanInput:         answer,
			AttemptNumber:      req.Step.Attempts + 1,
			LifelinesRemaining: b.lifelinesRemaining(req.Step),
			WasSuccessful:      true,
		}, nil
	}
}

func (b *Broker) lifelinesRemaining(step *session.Step) int {
	return b.maxLifelines - step.Attempts
}

// Prompt renders the operator prompt for kind.
func (b *Broker) Prompt(kind Kind, req Request) string {
	var sb strings.Builder
	step := req.Step

	switch kind {
	case KindToolError:
		sb.WriteString("Tool Execution Failed - Human Intervention Required\n")
		fmt.Fprintf(&sb, "Step %d: %s\n", step.Index, step.Description)
		fmt.Fprintf(&sb, "Tool: %s\n", req.ToolName)
		fmt.Fprintf(&sb, "Arguments: %s\n", formatArgs(req.ToolArgs))
		fmt.Fprintf(&sb, "Error: %s\n", req.ErrorMessage)
	case KindPlanning:
		sb.WriteString("Replanning - Last Attempt Guidance Requested\n")
		fmt.Fprintf(&sb, "Step %d: %s\n", step.Index, step.Description)
		if len(req.PlanText) > 0 {
			sb.WriteString("Current plan:\n")
			for _, line := range req.PlanText {
				fmt.Fprintf(&sb, "  %s\n", line)
			}
		}
		if req.ErrorMessage != "" {
			fmt.Fprintf(&sb, "Problem: %s\n", req.ErrorMessage)
		}
	case KindClarification:
		sb.WriteString("Clarification Needed\n")
		fmt.Fprintf(&sb, "Step %d: %s\n", step.Index, step.Description)
		if len(req.PlanText) > 0 {
			fmt.Fprintf(&sb, "Plan context: %s\n", strings.Join(req.PlanText, " | "))
		}
		if req.ErrorMessage != "" {
			fmt.Fprintf(&sb, "Question: %s\n", req.ErrorMessage)
		}
	}

	fmt.Fprintf(&sb, "Attempt: %d of %d\n", step.Attempts+1, b.maxLifelines)
	fmt.Fprintf(&sb, "Lifelines remaining: %d\n", b.lifelinesRemaining(step))

	switch kind {
	case KindToolError:
		sb.WriteString("Please provide the expected output:")
	case KindPlanning:
		sb.WriteString("Please describe how the agent should proceed:")
	case KindClarification:
		sb.WriteString("Please clarify:")
	}
	return sb.String()
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
