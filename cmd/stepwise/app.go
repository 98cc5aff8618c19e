package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rahul/stepwise/internal/agent"
	"github.com/rahul/stepwise/internal/brain"
	"github.com/rahul/stepwise/internal/faults"
	"github.com/rahul/stepwise/internal/gateway"
	"github.com/rahul/stepwise/internal/governance"
	"github.com/rahul/stepwise/internal/intervention"
	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/session"
	"github.com/rahul/stepwise/internal/store"
	"github.com/rahul/stepwise/internal/tools"
	"github.com/rahul/stepwise/pkg/config"
	"go.uber.org/zap"
)

// app is a fully wired controller plus the resources it owns.
type app struct {
	controller *agent.Controller
	store      store.Store
	tracker    *observability.Tracker
	logger     *observability.Logger

	closers []func() error
}

// appOptions control how the app talks to the operator.
type appOptions struct {
	intervention bool
	in           *intervention.LineReader
	out          io.Writer
}

func (c *cli) openStore() (store.Store, error) {
	return store.Open(c.cfg.Memory, c.logger)
}

func (c *cli) buildApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg := c.cfg
	a := &app{tracker: observability.NewTracker(), logger: c.logger}

	st, err := c.openStore()
	if err != nil {
		return nil, fmt.Errorf("open memory: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	registry, browser, err := buildRegistry(cfg, st)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() error { browser.Close(); return nil })

	policy, err := governance.NewPolicyEngine(cfg.Policy.DeniedTools, cfg.Policy.DeniedArguments)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("policy: %w", err)
	}

	name, provider := cfg.GetDefaultProvider()
	model, err := brain.NewModel(name, provider)
	if err != nil {
		a.Close()
		return nil, err
	}
	prompts := brain.NewPromptManager(cfg.App.Prompts)

	injector := faults.New(nil)
	if cfg.ToolSimulation.Seed != 0 {
		injector = faults.NewSeeded(cfg.ToolSimulation.Seed)
	}
	injector.Configure(cfg.ToolSimulation.Enabled, cfg.ToolSimulation.FailureTypes)

	deps := agent.Deps{
		Perceiver: brain.NewPerceiver(model, prompts, c.logger),
		Decider:   brain.NewDecider(model, prompts, registry.Catalog(), c.logger),
		Executor:  tools.NewDispatcher(registry, policy, c.logger),
		Sink:      &trackingSink{Sink: st, tracker: a.tracker},
		Memory:    st,
		Faults:    injector,
		Logger:    c.logger,
	}

	enabled := opts.intervention && cfg.HumanIntervention.Enabled
	if enabled {
		op, stop, err := c.operator(ctx, opts)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, stop)
		deps.Broker = intervention.NewBroker(op, cfg.Agent.MaxLifelinesPerStep, c.logger)
	}

	a.controller, err = agent.New(deps, agent.Options{
		Strategy:            cfg.Agent.Strategy,
		MaxSteps:            cfg.Agent.MaxSteps,
		MaxLifelines:        cfg.Agent.MaxLifelinesPerStep,
		InterventionEnabled: enabled,
		FailureMemorySize:   cfg.Agent.FailureMemorySize,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func buildRegistry(cfg *config.Config, memory agent.MemorySearcher) (*tools.Registry, *tools.BrowserTool, error) {
	registry := tools.NewRegistry()

	search, err := tools.NewSearchTool(10)
	if err != nil {
		return nil, nil, fmt.Errorf("search tool: %w", err)
	}
	registry.Register(search)

	fsTool, err := tools.NewFilesystemTool(cfg.App.Workspace)
	if err != nil {
		return nil, nil, err
	}
	registry.Register(fsTool)
	registry.Register(tools.NewScraperTool())
	registry.Register(tools.NewShellTool(fsTool.Root, 0))
	registry.Register(tools.NewRecallTool(memory, 3))

	browser := tools.NewBrowserTool(true, filepath.Join(fsTool.Root, "screenshots"))
	registry.Register(browser)
	return registry, browser, nil
}

// operator returns the configured intervention channel and a function that stops it.
func (c *cli) operator(ctx context.Context, opts appOptions) (intervention.Operator, func() error, error) {
	var m gateway.Messenger
	var err error
	switch channel := c.cfg.HumanIntervention.Channel; channel {
	case config.ChannelTerminal:
		in := opts.in
		if in == nil {
			return nil, nil, errors.New("terminal intervention needs an interactive input")
		}
		return intervention.NewTerminalOperator(in, opts.out), func() error { return nil }, nil
	case config.ChannelTelegram:
		g, ok := c.cfg.GetGateway(channel)
		if !ok {
			return nil, nil, fmt.Errorf("gateway %q is not enabled", channel)
		}
		m, err = gateway.NewTelegram(g.Token, g.ChatID, c.logger)
	case config.ChannelDiscord:
		g, ok := c.cfg.GetGateway(channel)
		if !ok {
			return nil, nil, fmt.Errorf("gateway %q is not enabled", channel)
		}
		m, err = gateway.NewDiscord(g.Token, g.ChannelID, c.logger)
	default:
		return nil, nil, fmt.Errorf("unknown intervention channel %q", channel)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := m.Start(ctx); err != nil {
		return nil, nil, err
	}
	return gateway.NewOperator(m), m.Stop, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Zap().Warn("shutdown", zap.Error(err))
		}
	}
	a.closers = nil
}

// trackingSink reports every persisted snapshot to the tracker.
type trackingSink struct {
	agent.Sink
	tracker *observability.Tracker
}

func (t *trackingSink) Upsert(ctx context.Context, s *session.Session) error {
	if s.Status.Terminal() {
		t.tracker.Finish(s.ID)
	} else {
		t.tracker.Update(s.ID, s.OriginalQuery, string(s.Status), len(s.Steps()))
	}
	return t.Sink.Upsert(ctx, s)
}
