package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dusk-indust/ordercopilot/internal/a2a"
	"github.com/dusk-indust/ordercopilot/internal/llm"
	"github.com/dusk-indust/ordercopilot/internal/longrun"
	"github.com/dusk-indust/ordercopilot/internal/metrics"
	"github.com/dusk-indust/ordercopilot/internal/orchestrator"
	"github.com/dusk-indust/ordercopilot/internal/tools"
)

// services is everything a serving process shares.
type services struct {
	deps     orchestrator.Deps
	metrics  *metrics.Collector
	registry *prometheus.Registry
}

// newServices builds the tracker, models and clients for cfg and starts the
// tracker janitor. The tracker is closed when ctx is done.
func (a *app) newServices(ctx context.Context) (*services, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	tracker := longrun.New(
		longrun.WithDelay(a.cfg.Tracker.Delay),
		longrun.WithTTL(a.cfg.Tracker.TTL),
		longrun.WithWork(tools.AssessRisk),
		longrun.WithObserver(collector),
		longrun.WithLogger(a.logger),
	)
	go tracker.RunJanitor(ctx, a.cfg.Tracker.SweepInterval)
	go func() {
		<-ctx.Done()
		tracker.Close()
	}()

	models, err := orchestrator.NewModels(a.cfg.LLM,
		orchestrator.WithModelLogger(a.logger),
		orchestrator.WithModelObserver(collector),
	)
	switch {
	case errors.Is(err, llm.ErrNoAPIKey):
		a.logger.Warn("no model API key configured, agents run the keyword fallback")
		models = nil
	case err != nil:
		return nil, fmt.Errorf("models: %w", err)
	}

	return &services{
		deps: orchestrator.Deps{
			Config:       a.cfg,
			Models:       models,
			Tracker:      tracker,
			Client:       a2a.NewHTTPClient(),
			Notifier:     tools.LogNotifier{Logger: a.logger, Counter: collector},
			ToolObserver: collector,
			Logger:       a.logger,
		},
		metrics:  collector,
		registry: reg,
	}, nil
}
