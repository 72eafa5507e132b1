package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/kode4food/timebox"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kode4food/braid"
	"github.com/kode4food/braid/internal/archive"
	"github.com/kode4food/braid/internal/client"
	"github.com/kode4food/braid/internal/config"
	"github.com/kode4food/braid/internal/demo"
	"github.com/kode4food/braid/internal/dispatch"
	"github.com/kode4food/braid/internal/engine"
	"github.com/kode4food/braid/internal/history"
	"github.com/kode4food/braid/internal/metrics"
	"github.com/kode4food/braid/pkg/log"
)

// app holds the components shared by the serve and run commands
type app struct {
	cfg      *config.Config
	store    history.Store
	hub      *history.Hub
	registry *prometheus.Registry
	archive  *archive.BlobArchive
	engine   *engine.Engine
	client   *client.Client
	closers  []func() error
}

var (
	ErrCreateTimebox    = errors.New("failed to create timebox")
	ErrCreateStore      = errors.New("failed to create history store")
	ErrOpenArchive      = errors.New("failed to open archive")
	ErrRegisterWorkUnit = errors.New("failed to register work unit")
)

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		hub:      history.NewHub(),
		registry: prometheus.NewRegistry(),
	}
	a.setupLogging()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.initialize(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) initialize(ctx context.Context) error {
	if err := a.openStore(ctx); err != nil {
		return err
	}
	if err := a.openArchive(ctx); err != nil {
		return err
	}

	orchs := engine.NewRegistry()
	units := dispatch.NewRegistry()
	if err := demo.Register(orchs, units); err != nil {
		return err
	}
	if err := a.registerScripts(units); err != nil {
		return err
	}

	deps := engine.Dependencies{
		Store:          a.store,
		Hub:            a.hub,
		Orchestrations: orchs,
		WorkUnits:      units,
		Metrics:        metrics.New(a.registry),
		Logger:         slog.Default(),
	}
	if a.archive != nil {
		deps.Archive = a.archive
	}
	eng, err := engine.New(a.cfg, deps)
	if err != nil {
		return err
	}
	a.engine = eng
	a.client = client.New(eng.Store(), orchs)
	return nil
}

func (a *app) setupLogging() {
	level := log.ParseLevel(a.cfg.LogLevel)
	logger := log.NewWithLevel(braid.Name, os.Getenv("ENV"), braid.Version,
		level,
	)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Configuration loaded",
		slog.String("log_level", a.cfg.LogLevel),
		slog.String("history_backend", a.cfg.HistoryBackend),
		slog.String("history_redis_addr", a.cfg.HistoryStore.Addr),
		slog.Int("history_redis_db", a.cfg.HistoryStore.DB),
		slog.String("api_host", a.cfg.APIHost),
		slog.Int("api_port", a.cfg.APIPort))
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.HistoryBackend {
	case config.BackendMemory:
		a.store = history.NewMemoryStore()

	case config.BackendRedis:
		sc := a.cfg.HistoryStore
		store, err := history.NewRedisStore(ctx, history.RedisConfig{
			Addr:     sc.Addr,
			Password: sc.Password,
			DB:       sc.DB,
			Prefix:   sc.Prefix,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCreateStore, err)
		}
		a.store = store
		a.closers = append(a.closers, store.Close)

	default:
		tb, err := timebox.NewTimebox(timebox.Config{
			MaxRetries: timebox.DefaultMaxRetries,
			CacheSize:  a.cfg.CacheSize,
			Workers:    true,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCreateTimebox, err)
		}
		a.closers = append(a.closers, tb.Close)

		store, err := tb.NewStore(a.cfg.HistoryStore)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCreateStore, err)
		}
		a.store = history.NewTimeboxStore(store)
	}
	return nil
}

func (a *app) openArchive(ctx context.Context) error {
	if a.cfg.ArchiveURL == "" {
		return nil
	}
	arch, err := archive.NewBlobArchive(ctx, a.cfg.ArchiveURL, "instances/")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpenArchive, err)
	}
	a.archive = arch
	a.closers = append(a.closers, arch.Close)
	return nil
}

func (a *app) registerScripts(units *dispatch.Registry) error {
	for _, su := range a.cfg.WorkUnits {
		unit, err := dispatch.NewLuaUnit(su.Script)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrRegisterWorkUnit, su.Name, err)
		}
		if err := units.Register(su.Name, unit); err != nil {
			return fmt.Errorf("%w: %w", ErrRegisterWorkUnit, err)
		}
		slog.Info("Scripted work unit registered",
			log.WorkUnit(su.Name))
	}
	return nil
}

// close stops the engine and releases stores in reverse order of opening
func (a *app) close() {
	if a.engine != nil {
		if err := a.engine.Stop(); err != nil {
			slog.Error("Engine shutdown failed",
				log.Error(err))
		}
	}
	a.hub.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Error("Close failed",
				log.Error(err))
		}
	}
}
