package agent

import (
	"context"
	"fmt"

	"github.com/rahul/stepwise/internal/intervention"
	"github.com/rahul/stepwise/internal/session"
)

// evaluate applies the perception attached to step: finish, advance to the next planned step,
// or replan.
func (r *run) evaluate(ctx context.Context, step *session.Step) (*session.Step, error) {
	p := step.Perception
	if p == nil {
		return r.replan(ctx, step, false)
	}

	switch {
	case p.OriginalGoalAchieved:
		r.sess.MarkComplete(*p, "")
		r.persist(ctx)
		return nil, nil

	case p.LocalGoalAchieved:
		if step.Index+1 >= len(r.sess.CurrentPlan()) {
			r.c.log.LogStep(r.sess.ID, step.Index, "plan exhausted without reaching the goal", nil)
			r.sess.Exhaust(*p)
			r.persist(ctx)
			return nil, nil
		}
		version := len(r.sess.PlanVersions) - 1
		out, err := r.decide(ctx, DecisionRequest{
			Mode:               ModeMidSession,
			Strategy:           r.c.opts.Strategy,
			OriginalQuery:      r.sess.OriginalQuery,
			Perception:         p,
			CurrentPlanVersion: version,
			CurrentPlan:        r.sess.CurrentPlan(),
			CompletedSteps:     r.sess.CompletedHistory(),
			CurrentStep:        step,
		})
		if err != nil {
			return nil, err
		}
		return r.addVersion(ctx, out.PlanText, out.NewStep()), nil
	}

	return r.replan(ctx, step, false)
}

// replan asks for a replacement of step. charged reports that the runner has already counted
// the failed attempt.
func (r *run) replan(ctx context.Context, step *session.Step, charged bool) (*session.Step, error) {
	limit := r.c.opts.MaxLifelines
	if step.Attempts >= limit {
		r.abortWith(ctx, step, retriesMessage(step, limit))
		return nil, nil
	}
	if !charged {
		step.Attempts++
	}

	var guidance string
	if step.Attempts >= limit-1 && r.c.opts.InterventionEnabled {
		hi, err := r.c.deps.Broker.RequestInput(ctx, intervention.Request{
			SessionID:    r.sess.ID,
			Step:         step,
			ErrorMessage: replanReason(step),
			PlanText:     r.sess.CurrentPlan(),
		})
		if err != nil {
			r.c.log.LogIntervention(r.sess.ID, step.Index, "planning guidance unavailable", map[string]any{
				"error": err.Error(),
			})
		} else {
			step.AddIntervention(*hi)
			guidance = hi.HumanInput
		}
	}

	r.c.log.LogStep(r.sess.ID, step.Index, "replanning", map[string]any{
		"attempts": step.Attempts,
		"guided":   guidance != "",
	})
	r.persist(ctx)

	version := len(r.sess.PlanVersions) - 1
	out, err := r.decide(ctx, DecisionRequest{
		Mode:               ModeMidSession,
		Strategy:           r.c.opts.Strategy,
		OriginalQuery:      r.sess.OriginalQuery,
		Perception:         step.Perception,
		CurrentPlanVersion: version,
		CurrentPlan:        r.sess.CurrentPlan(),
		CompletedSteps:     r.sess.CompletedHistory(),
		CurrentStep:        step,
		HumanGuidance:      guidance,
	})
	if err != nil {
		return nil, err
	}
	return r.addVersion(ctx, out.PlanText, childOf(out.NewStep(), step)), nil
}

// continueAfterClarification plans the step that follows an answered NOP step.
func (r *run) continueAfterClarification(ctx context.Context, step *session.Step, guidance string) (*session.Step, error) {
	version := len(r.sess.PlanVersions) - 1
	out, err := r.decide(ctx, DecisionRequest{
		Mode:               ModeMidSession,
		Strategy:           r.c.opts.Strategy,
		OriginalQuery:      r.sess.OriginalQuery,
		CurrentPlanVersion: version,
		CurrentPlan:        r.sess.CurrentPlan(),
		CompletedSteps:     r.sess.CompletedHistory(),
		CurrentStep:        step,
		HumanGuidance:      guidance,
	})
	if err != nil {
		return nil, err
	}
	return r.addVersion(ctx, out.PlanText, childOf(out.NewStep(), step)), nil
}

func childOf(next, parent *session.Step) *session.Step {
	idx := parent.Index
	next.WasReplanned = true
	next.ParentIndex = &idx
	next.Attempts = parent.Attempts
	return next
}

func replanReason(step *session.Step) string {
	switch {
	case step.Perception != nil && step.Perception.Reasoning != "":
		return step.Perception.Reasoning
	case step.ExecutionResult != nil && step.ExecutionResult.Error != "":
		return step.ExecutionResult.Error
	}
	return fmt.Sprintf("step %d did not achieve its goal", step.Index)
}
