package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/harlanreed/phasetracker/internal/config"
	"github.com/harlanreed/phasetracker/internal/log"
	"github.com/harlanreed/phasetracker/internal/metrics"
	"github.com/harlanreed/phasetracker/internal/tracing"
	"github.com/harlanreed/phasetracker/pkg/artifact"
	"github.com/harlanreed/phasetracker/pkg/handler"
	"github.com/harlanreed/phasetracker/pkg/lock"
	"github.com/harlanreed/phasetracker/pkg/runner"
	"github.com/harlanreed/phasetracker/pkg/store"
)

// app bundles the wired components every subcommand needs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	writer  *artifact.Writer
	locks   *lock.Manager
	metrics *metrics.Collector
	tracer  *tracing.Provider
	runner  *runner.Runner
}

// newApp resolves configuration and opens the store, ready for a
// subcommand to drive a run or read back its state.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.dbPath != "" {
		cfg.DBPath = flags.dbPath
	}
	if flags.artifactBase != "" {
		cfg.ArtifactBase = flags.artifactBase
	}

	logger := log.New(log.FromEnv())

	st, err := store.Open(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}

	writer := artifact.New(cfg.ArtifactBase)

	locks := lock.New(lock.Config{
		Store:  st,
		TTL:    time.Duration(cfg.DefaultLockTTLMs) * time.Millisecond,
		Logger: logger,
	})

	collector := metrics.New()

	tracer, err := tracing.NewStdout(cfg.TraceStdout)
	if err != nil {
		return nil, err
	}

	registry := handler.NewRegistry()

	r := runner.New(runner.Config{
		Store:    st,
		Writer:   writer,
		Locks:    locks,
		Registry: registry,
		Logger:   logger,
		Metrics:  collector,
		Tracer:   tracer,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		writer:  writer,
		locks:   locks,
		metrics: collector,
		tracer:  tracer,
		runner:  r,
	}, nil
}

func (a *app) Close(ctx context.Context) {
	if a.tracer != nil {
		_ = a.tracer.Shutdown(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
