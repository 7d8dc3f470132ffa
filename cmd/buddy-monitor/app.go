package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"buddy-monitor/internal/aws"
	"buddy-monitor/internal/config"
	"buddy-monitor/internal/errpattern"
	"buddy-monitor/internal/healing"
	"buddy-monitor/internal/health"
	"buddy-monitor/internal/metrics"
	"buddy-monitor/internal/server"
	"buddy-monitor/internal/storage"
	"buddy-monitor/internal/telemetry"
	"buddy-monitor/pkg/logger"
)

// app holds the wired components of a running monitor
type app struct {
	cfg    *config.Config
	logger *logger.Logger

	store    *metrics.Store
	tracker  *errpattern.Tracker
	trigger  *healing.Trigger
	monitor  *health.Monitor
	registry *prometheus.Registry
	server   *server.Server

	closers []func() error
}

// newApp wires every component from cfg. Nothing is started.
func newApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   log.WithComponent("main"),
		store:    metrics.NewStore(cfg.Samples.MaxSamples, cfg.Samples.TrimTo),
		registry: prometheus.NewRegistry(),
	}

	tracker, err := errpattern.NewTracker(cfg.ErrorPatterns, log)
	if err != nil {
		return nil, err
	}
	a.tracker = tracker
	log.OnError(tracker.Listener())

	a.trigger = healing.NewTrigger(log)
	a.monitor = health.NewMonitor(cfg.Service.Name, version, a.trigger.Hook(), log)

	if err := healing.RegisterDefaultRepairs(a.trigger, cfg, healing.Dependencies{
		Store:  a.store,
		Uptime: a.monitor.Uptime,
	}); err != nil {
		return nil, err
	}

	deps := health.Dependencies{Store: a.store}

	if cfg.Checks.AWSCredentials.Enabled {
		provider := aws.NewClientProvider(cfg.Checks.AWSCredentials, log)
		a.closers = append(a.closers, provider.Close)
		deps.AWS = provider
	}

	if cfg.Checks.ObjectStorage.Enabled {
		client, err := storage.NewClient(cfg.Checks.ObjectStorage)
		if err != nil {
			return nil, err
		}
		deps.Buckets = client
	}

	if err := health.RegisterDefaultChecks(a.monitor, cfg, deps); err != nil {
		return nil, err
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		telemetry.NewPrometheusMetrics(telemetry.Sources{
			Health:   a.monitor,
			Repairs:  a.trigger,
			Patterns: a.tracker,
			Samples:  a.store,
		}),
	)

	if cfg.Server.Enabled {
		srv, err := server.New(cfg.Server, server.Dependencies{
			Monitor:  a.monitor,
			Trigger:  a.trigger,
			Tracker:  a.tracker,
			Store:    a.store,
			Gatherer: a.registry,
		}, log)
		if err != nil {
			return nil, err
		}
		a.server = srv
	}

	return a, nil
}

// start begins polling and serving
func (a *app) start(ctx context.Context) error {
	if err := a.monitor.Start(ctx); err != nil {
		return err
	}

	// Polling waits a full interval before the first run; prime the cache
	// so probes answer right away
	go func() {
		_ = a.tracker.Guard("status-prime", func() { a.monitor.GetStatus(ctx) })
	}()

	if a.server != nil {
		if err := a.server.Start(); err != nil {
			_ = a.monitor.Stop(ctx)
			return err
		}
	}

	a.logger.Info("Application startup complete",
		logger.Strings("checks", a.monitor.CheckNames()),
		logger.Strings("repairs", a.trigger.Names()))
	return nil
}

// stop shuts every component down and returns all failures together
func (a *app) stop(ctx context.Context) error {
	var errs error

	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			a.logger.Error("Failed to stop HTTP server", logger.Err(err))
			errs = multierr.Append(errs, err)
		}
	}

	if err := a.monitor.Stop(ctx); err != nil {
		a.logger.Error("Failed to stop health monitor", logger.Err(err))
		errs = multierr.Append(errs, err)
	}

	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Error("Failed to close client", logger.Err(err))
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
