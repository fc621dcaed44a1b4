package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/codetime/internal/api"
	"github.com/ashureev/codetime/internal/bridge"
	"github.com/ashureev/codetime/internal/domain"
	"github.com/ashureev/codetime/internal/middleware"
	"github.com/ashureev/codetime/internal/onboard"
	"github.com/ashureev/codetime/internal/session"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(level *slog.LevelVar) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent: control API, onboarding, heartbeats and offline uploads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, level)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.serve(ctx)
		},
	}
}

func (a *app) router(ctx context.Context) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(a.cfg.AllowedOrigins))

	api.NewHealthHandler(a.repo, a.prober).RegisterHealth(r)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	base := api.NewHandler(a.session, a.batch, a.logger)
	api.NewSessionHandler(ctx, base).RegisterRoutes(r)

	r.Get("/ws", bridge.NewHandler(a.hub, a.cfg.AllowedOrigins, a.logger).ServeHTTP)
	return r
}

func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.router(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Control API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control API: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("Shutting down gracefully...")
		a.hub.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown control API: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ob := onboard.New(onboard.Options{
			Session:     a.session,
			Window:      a.hub,
			Prompter:    a.hub,
			SessionFile: a.cfg.SessionFile,
			Logger:      a.logger,
		})

		err := ob.Onboard(ctx, func(ctx context.Context, created bool) {
			a.logger.Info("Session ready", "created", created)
			a.session.SendHeartbeat(ctx, domain.ReasonActivate)
			a.session.GetUserStatus(ctx)
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("onboarding: %w", err)
		}

		return a.session.Run(ctx, session.Intervals{
			Heartbeat:    a.cfg.Intervals.Heartbeat,
			OfflineFlush: a.cfg.Intervals.OfflineFlush,
		})
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("Agent stopped successfully")
	return nil
}
