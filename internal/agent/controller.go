// Package agent drives a query to completion: perceive, plan one step, run it, judge the
// result, and either continue, replan, escalate to a human, or stop on a budget.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/rahul/stepwise/internal/agent"

// Deps are the collaborators of a Controller. Perceiver, Decider and Executor are required;
// Broker is required when intervention is enabled.
type Deps struct {
	Perceiver Perceiver
	Decider   Decider
	Executor  Executor
	Sink      Sink
	Memory    MemorySearcher
	Faults    FaultInjector
	Broker    Broker
	Logger    *observability.Logger
	Tracer    trace.Tracer
}

type Options struct {
	Strategy            string
	MaxSteps            int
	MaxLifelines        int
	InterventionEnabled bool
	FailureMemorySize   int
	// MemoryLimit caps how many earlier sessions are recalled before the first perception.
	MemoryLimit int
}

// Controller runs sessions. It keeps no per-session state, so one Controller may run many
// sessions concurrently as long as its collaborators are safe for concurrent use.
type Controller struct {
	deps   Deps
	opts   Options
	log    *observability.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func New(deps Deps, opts Options) (*Controller, error) {
	var errs []error
	if deps.Perceiver == nil {
		errs = append(errs, errors.New("perceiver is required"))
	}
	if deps.Decider == nil {
		errs = append(errs, errors.New("decider is required"))
	}
	if deps.Executor == nil {
		errs = append(errs, errors.New("executor is required"))
	}
	if opts.InterventionEnabled && deps.Broker == nil {
		errs = append(errs, errors.New("broker is required when intervention is enabled"))
	}
	if opts.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("max steps must be at least 1, got %d", opts.MaxSteps))
	}
	if opts.MaxLifelines < 1 {
		errs = append(errs, fmt.Errorf("max lifelines must be at least 1, got %d", opts.MaxLifelines))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if deps.Sink == nil {
		deps.Sink = nopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if opts.FailureMemorySize < 1 {
		opts.FailureMemorySize = 3
	}
	if opts.MemoryLimit < 1 {
		opts.MemoryLimit = 3
	}
	if opts.Strategy == "" {
		opts.Strategy = "exploratory"
	}

	return &Controller{
		deps:   deps,
		opts:   opts,
		log:    deps.Logger,
		tracer: deps.Tracer,
		now:    time.Now,
	}, nil
}

// Run starts a new session for query and drives it until it reaches a terminal or resumable
// state. The session is returned even when err is non-nil.
func (c *Controller) Run(ctx context.Context, query string) (*session.Session, error) {
	sess := session.New(query)
	ctx, span := c.tracer.Start(ctx, "agent.Run", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
	))
	defer span.End()
	ctx = session.NewContext(ctx, sess.ID)

	r := c.newRun(sess)
	c.log.LogSession(sess.ID, "session started", map[string]any{"query": query})
	r.persist(ctx)

	err := r.start(ctx)
	return sess, r.finish(ctx, span, err)
}

// Resume continues a session left awaiting clarification. An empty guidance falls back to the
// operator's answer recorded on the clarification step; a failed escalation recorded there
// does not count as an answer.
func (c *Controller) Resume(ctx context.Context, sess *session.Session, guidance string) (*session.Session, error) {
	if sess == nil || sess.Status != session.StatusAwaitingClarification {
		return sess, ErrNotResumable
	}
	v := sess.LatestVersion()
	if v == nil || len(v.Steps) == 0 {
		return sess, ErrNotResumable
	}
	step := v.Steps[len(v.Steps)-1]

	if guidance == "" {
		if hi, ok := step.LastIntervention(); ok && hi.WasSuccessful {
			guidance = hi.HumanInput
		}
	} else {
		step.AddIntervention(session.HumanIntervention{
			Kind:               "clarification",
			Timestamp:          c.now().UTC(),
			StepIndex:          step.Index,
			HumanInput:         guidance,
			AttemptNumber:      step.Attempts + 1,
			LifelinesRemaining: c.opts.MaxLifelines - step.Attempts,
			WasSuccessful:      true,
		})
	}
	if guidance == "" {
		return sess, ErrNoGuidance
	}

	ctx, span := c.tracer.Start(ctx, "agent.Resume", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
	))
	defer span.End()
	ctx = session.NewContext(ctx, sess.ID)

	sess.Resume()
	r := c.newRun(sess)
	r.executed = executedSteps(sess)
	c.log.LogSession(sess.ID, "session resumed", map[string]any{"guidance": guidance})
	r.persist(ctx)

	next, err := r.continueAfterClarification(ctx, step, guidance)
	if err == nil {
		err = r.loop(ctx, next)
	}
	return sess, r.finish(ctx, span, err)
}

// executedSteps counts the steps of a loaded session that actually ran.
func executedSteps(sess *session.Session) int {
	n := 0
	for _, st := range sess.Steps() {
		if st.Index == session.SyntheticIndex {
			continue
		}
		if st.Status != session.StatusPending || st.ExecutionResult != nil {
			n++
		}
	}
	return n
}

// run holds the counters of one Run or Resume call.
type run struct {
	c        *Controller
	sess     *session.Session
	executed int
	failures *failureMemory
	recalled []MemoryEntry
}

func (c *Controller) newRun(sess *session.Session) *run {
	return &run{
		c:        c,
		sess:     sess,
		failures: newFailureMemory(c.opts.FailureMemorySize),
	}
}

func (r *run) start(ctx context.Context) error {
	query := r.sess.OriginalQuery
	if r.c.deps.Memory != nil {
		entries, err := r.c.deps.Memory.Search(ctx, query, r.c.opts.MemoryLimit)
		if err != nil {
			r.c.log.LogSession(r.sess.ID, "memory search failed", map[string]any{"error": err.Error()})
		}
		r.recalled = entries
	}

	p, err := r.perceive(ctx, SnapshotUserQuery, query, r.recalled)
	if err != nil {
		return err
	}
	r.sess.AddPerception(p)
	r.persist(ctx)

	if p.OriginalGoalAchieved {
		r.sess.MarkComplete(p, "")
		r.persist(ctx)
		return nil
	}

	out, err := r.decide(ctx, DecisionRequest{
		Mode:          ModeInitial,
		Strategy:      r.c.opts.Strategy,
		OriginalQuery: query,
		Perception:    &p,
	})
	if err != nil {
		return err
	}
	step := r.addVersion(ctx, out.PlanText, out.NewStep())
	return r.loop(ctx, step)
}

func (r *run) loop(ctx context.Context, step *session.Step) error {
	for step != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := r.advance(ctx, step)
		if err != nil {
			return err
		}
		step = next
	}
	return nil
}

// advance runs one step and evaluates it, returning the next active step or nil.
func (r *run) advance(ctx context.Context, step *session.Step) (*session.Step, error) {
	ctx, span := r.c.tracer.Start(ctx, "agent.Step", trace.WithAttributes(
		attribute.String("session.id", r.sess.ID),
		attribute.Int("step.index", step.Index),
		attribute.String("step.type", string(step.Type)),
		attribute.Int("step.attempts", step.Attempts),
	))
	defer span.End()

	if r.guard(ctx, step) {
		span.SetAttributes(attribute.Bool("step.budget_exhausted", true))
		return nil, nil
	}

	disp, err := r.runStep(ctx, step)
	r.executed++
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var next *session.Step
	switch disp {
	case DispositionEvaluate:
		next, err = r.evaluate(ctx, step)
	case DispositionReplan:
		next, err = r.replan(ctx, step, true)
	case DispositionStop:
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return next, nil
}

// finish releases the executor's per-session resources and records a fatal error on the
// session and the span.
func (r *run) finish(ctx context.Context, span trace.Span, err error) error {
	if rel, ok := r.c.deps.Executor.(SessionReleaser); ok {
		rel.Release(r.sess.ID)
	}
	span.SetAttributes(
		attribute.String("session.status", string(r.sess.Status)),
		attribute.Int("session.executed_steps", r.executed),
	)
	if err == nil {
		r.c.log.LogSession(r.sess.ID, "session ended", map[string]any{
			"status":         r.sess.Status,
			"executed_steps": r.executed,
		})
		return nil
	}

	r.sess.Fail(err)
	r.persist(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.c.log.LogSession(r.sess.ID, "session failed", map[string]any{"error": err.Error()})
	return fmt.Errorf("session %s: %w", r.sess.ShortID(), err)
}

// persist writes the session snapshot. Failures are logged and never interrupt the run.
func (r *run) persist(ctx context.Context) {
	if err := r.c.deps.Sink.Upsert(context.WithoutCancel(ctx), r.sess); err != nil {
		r.c.log.LogPersistence(r.sess.ID, err)
	}
}

func (r *run) addVersion(ctx context.Context, planText []string, step *session.Step) *session.Step {
	active := r.sess.AddPlanVersion(planText, []*session.Step{step})
	r.c.log.LogPlan(r.sess.ID, len(r.sess.PlanVersions)-1, planText)
	r.persist(ctx)
	return active
}

func (r *run) perceive(ctx context.Context, snapshotType, raw string, memory []MemoryEntry) (session.PerceptionSnapshot, error) {
	p, err := r.c.deps.Perceiver.Perceive(ctx, PerceptionInput{
		RunID:        r.sess.ID,
		SnapshotType: snapshotType,
		RawInput:     raw,
		Memory:       memory,
		CurrentPlan:  r.sess.CurrentPlan(),
		Timestamp:    r.c.now().UTC(),
	})
	if err != nil {
		return session.PerceptionSnapshot{}, fmt.Errorf("perception (%s): %w", snapshotType, err)
	}
	r.c.log.LogPerception(r.sess.ID, snapshotType, p)
	return p, nil
}

func (r *run) decide(ctx context.Context, req DecisionRequest) (DecisionOutput, error) {
	req.SessionID = r.sess.ID
	out, err := r.c.deps.Decider.Decide(ctx, req)
	if err != nil {
		return DecisionOutput{}, fmt.Errorf("decision (%s): %w", req.Mode, err)
	}
	if err := out.Validate(); err != nil {
		return DecisionOutput{}, fmt.Errorf("decision (%s): %w", req.Mode, err)
	}
	r.c.log.LogDecision(r.sess.ID, string(req.Mode), out)
	return out, nil
}
