package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/codetime/internal/bridge"
	"github.com/ashureev/codetime/internal/config"
	"github.com/ashureev/codetime/internal/identity"
	"github.com/ashureev/codetime/internal/offline"
	"github.com/ashureev/codetime/internal/session"
	"github.com/ashureev/codetime/internal/store"
	"github.com/ashureev/codetime/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg      *config.Config
	repo     store.Repository
	client   *transport.Client
	prober   transport.Prober
	batch    *offline.Batch
	hub      *bridge.Hub
	session  *session.Manager
	registry *prometheus.Registry
	logger   *slog.Logger

	closers []func()
}

func newApp(ctx context.Context, level *slog.LevelVar) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	level.Set(cfg.LogLevel)
	logger := slog.Default()

	existed := store.SessionFileExists(cfg.SessionFile)
	repo, err := store.NewSQLite(cfg.SessionFile)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	a := &app{cfg: cfg, repo: repo, logger: logger}
	a.closers = append(a.closers, func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Error("Failed to close repository", "error", closeErr)
		}
	})

	if err := repo.Ping(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("session store health check: %w", err)
	}

	a.client = transport.New(cfg.APIEndpoint, transport.Options{
		Timeout:  cfg.RequestTimeout,
		PluginID: cfg.PluginID,
		Version:  cfg.Version,
		Logger:   logger,
	})

	if cfg.HealthGRPCAddr != "" {
		probe, err := transport.NewGRPCProbe(transport.DefaultGRPCProbeConfig(cfg.HealthGRPCAddr), logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create gRPC health probe: %w", err)
		}
		a.prober = probe
		a.closers = append(a.closers, probe.Close)
		logger.Info("Using gRPC health probe", "address", cfg.HealthGRPCAddr)
	} else {
		a.prober = transport.NewHTTPProbe(a.client, logger)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.batch = offline.New(cfg.OfflineDataFile)
	a.hub = bridge.NewHub(logger)

	a.session = session.NewManager(session.Options{
		Repo:               repo,
		Transport:          a.client,
		Prober:             a.prober,
		Offline:            a.batch,
		Machine:            identity.Detect(),
		SessionFile:        cfg.SessionFile,
		SessionFileCreated: !existed,
		PluginID:           cfg.PluginID,
		Version:            cfg.Version,
		Context:            a.hub,
		Music:              a.hub,
		OnSessionRefresh:   a.hub.RequestRefresh,
		Registerer:         a.registry,
		Logger:             logger,
	})

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
