package agent

import (
	"context"
	"fmt"

	"github.com/rahul/stepwise/internal/intervention"
	"github.com/rahul/stepwise/internal/session"
)

// Disposition tells the controller what to do with a step the runner has finished with.
type Disposition int

const (
	// DispositionEvaluate hands the step and its perception to the evaluator.
	DispositionEvaluate Disposition = iota
	// DispositionReplan replans the step directly. The failed attempt has already been charged.
	DispositionReplan
	// DispositionStop ends the step chain.
	DispositionStop
)

func (d Disposition) String() string {
	switch d {
	case DispositionEvaluate:
		return "evaluate"
	case DispositionReplan:
		return "replan"
	case DispositionStop:
		return "stop"
	}
	return fmt.Sprintf("disposition(%d)", int(d))
}

// guard stops the session before a step runs when a budget is spent. It reports whether the
// session was aborted.
func (r *run) guard(ctx context.Context, step *session.Step) bool {
	switch {
	case r.executed >= r.c.opts.MaxSteps:
		r.abortWith(ctx, step, fmt.Sprintf(
			"Maximum steps reached: %d of %d steps executed before step %d (%s).",
			r.executed, r.c.opts.MaxSteps, step.Index, step.Description))
		return true
	case step.Attempts >= r.c.opts.MaxLifelines:
		r.abortWith(ctx, step, retriesMessage(step, r.c.opts.MaxLifelines))
		return true
	}
	return false
}

func retriesMessage(step *session.Step, limit int) string {
	return fmt.Sprintf("Maximum retries reached: step %d (%s) used %d of %d attempts.",
		step.Index, step.Description, step.Attempts, limit)
}

// abortWith appends a synthesized conclusion as a new plan version and aborts the session.
func (r *run) abortWith(ctx context.Context, step *session.Step, message string) {
	conclusion := session.NewConclusion(message, step.Attempts)
	conclusion.Status = session.StatusCompleted
	conclusion.ExecutionResult = &session.ExecutionResult{
		Status: "success",
		Result: message,
		Source: session.SourceConclusion,
	}
	r.addVersion(ctx, []string{message}, conclusion)
	r.c.log.LogStep(r.sess.ID, step.Index, "budget exhausted", map[string]any{"message": message})
	r.sess.Abort(message)
	r.persist(ctx)
}

func (r *run) runStep(ctx context.Context, step *session.Step) (Disposition, error) {
	r.c.log.LogStep(r.sess.ID, step.Index, "executing step", map[string]any{
		"type":        step.Type,
		"description": step.Description,
		"attempts":    step.Attempts,
	})
	switch step.Type {
	case session.StepCode:
		return r.runCode(ctx, step)
	case session.StepConclude:
		return r.runConclude(ctx, step)
	case session.StepNop:
		return r.runNop(ctx, step)
	}
	return DispositionStop, fmt.Errorf("step %d has unknown type %q", step.Index, step.Type)
}

func (r *run) invoke(ctx context.Context, step *session.Step, code session.ToolCode) (session.ExecutionResult, error) {
	if r.c.deps.Faults != nil {
		if err := r.c.deps.Faults.Inject(code.ToolName); err != nil {
			r.c.log.LogFault(r.sess.ID, step.Index, err)
			return session.ExecutionResult{}, err
		}
	}
	return r.c.deps.Executor.Execute(ctx, code)
}

func (r *run) runCode(ctx context.Context, step *session.Step) (Disposition, error) {
	code := *step.Code
	r.c.log.LogToolCall(r.sess.ID, step.Index, code.ToolName, code.ToolArguments)

	res, err := r.invoke(ctx, step, code)
	if err != nil {
		r.c.log.LogToolResult(r.sess.ID, step.Index, code.ToolName, nil, err)
		if !r.c.opts.InterventionEnabled {
			return DispositionStop, &ToolExecutionError{Tool: code.ToolName, Err: err}
		}

		hi, ierr := r.c.deps.Broker.RequestInput(ctx, intervention.Request{
			SessionID:    r.sess.ID,
			Step:         step,
			ToolName:     code.ToolName,
			ToolArgs:     code.ToolArguments,
			ErrorMessage: err.Error(),
			PlanText:     r.sess.CurrentPlan(),
		})
		if ierr != nil {
			step.Attempts++
			step.ExecutionResult = &session.ExecutionResult{
				Status: "error",
				Source: session.SourceExecutor,
				Error:  err.Error(),
			}
			r.failures.add(failureEntry(step.Description, err.Error()))
			r.c.log.LogIntervention(r.sess.ID, step.Index, "intervention unavailable", map[string]any{
				"error":    ierr.Error(),
				"attempts": step.Attempts,
			})
			r.persist(ctx)
			if step.Attempts < r.c.opts.MaxLifelines {
				return DispositionReplan, nil
			}
			return DispositionStop, &ToolExecutionError{Tool: code.ToolName, Err: err}
		}

		step.AddIntervention(*hi)
		res = session.ExecutionResult{
			Status: "success",
			Result: hi.HumanInput,
			Source: session.SourceHumanIntervention,
		}
	} else {
		if res.Source == "" {
			res.Source = session.SourceExecutor
		}
		r.c.log.LogToolResult(r.sess.ID, step.Index, code.ToolName, res, nil)
	}

	step.ExecutionResult = &res
	step.Status = session.StatusCompleted
	r.persist(ctx)

	raw := resultText(res)
	p, err := r.perceive(ctx, SnapshotStepResult, raw, r.failures.list())
	if err != nil {
		return DispositionStop, err
	}
	step.Perception = &p
	r.sess.AddPerception(p)
	if !p.LocalGoalAchieved {
		r.failures.add(failureEntry(step.Description, raw))
	}
	r.persist(ctx)
	return DispositionEvaluate, nil
}

// resultText is what the perceiver sees of a tool result.
func resultText(res session.ExecutionResult) string {
	switch {
	case res.Result != "":
		return res.Result
	case res.Error != "":
		return res.Error
	default:
		return "Tool Failed"
	}
}

func (r *run) runConclude(ctx context.Context, step *session.Step) (Disposition, error) {
	step.ExecutionResult = &session.ExecutionResult{
		Status: "success",
		Result: step.Conclusion,
		Source: session.SourceConclusion,
	}
	step.Status = session.StatusCompleted

	p, err := r.perceive(ctx, SnapshotStepResult, step.Conclusion, r.failures.list())
	if err != nil {
		return DispositionStop, err
	}
	step.Perception = &p
	r.sess.AddPerception(p)
	r.sess.MarkComplete(p, step.Conclusion)
	r.persist(ctx)
	return DispositionStop, nil
}

func (r *run) runNop(ctx context.Context, step *session.Step) (Disposition, error) {
	step.Status = session.StatusClarificationNeeded

	if r.c.opts.InterventionEnabled {
		hi, err := r.c.deps.Broker.RequestInput(ctx, intervention.Request{
			SessionID:    r.sess.ID,
			Step:         step,
			ErrorMessage: step.Description,
			PlanText:     r.sess.CurrentPlan(),
		})
		if err != nil {
			step.AddIntervention(session.HumanIntervention{
				Kind:               string(intervention.KindClarification),
				Timestamp:          r.c.now().UTC(),
				StepIndex:          step.Index,
				ErrorMessage:       err.Error(),
				AttemptNumber:      step.Attempts + 1,
				LifelinesRemaining: r.c.opts.MaxLifelines - step.Attempts,
				WasSuccessful:      false,
			})
			r.c.log.LogIntervention(r.sess.ID, step.Index, "clarification unavailable", map[string]any{
				"error": err.Error(),
			})
		} else {
			step.AddIntervention(*hi)
		}
	}

	r.sess.AwaitClarification()
	r.persist(ctx)
	return DispositionStop, nil
}
