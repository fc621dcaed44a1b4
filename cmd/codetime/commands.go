package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/codetime/internal/domain"
	"github.com/ashureev/codetime/internal/onboard"
	"github.com/ashureev/codetime/internal/store"
	"github.com/spf13/cobra"
)

// runWithApp builds the shared dependencies for a one-shot command.
func runWithApp(level *slog.LevelVar, fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), level)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

type statusOutput struct {
	LoggedIn     bool      `json:"loggedIn"`
	ServerOnline bool      `json:"serverOnline"`
	Name         string    `json:"name,omitempty"`
	UserID       int64     `json:"userId,omitempty"`
	IssuedAt     time.Time `json:"issuedAt,omitzero"`
	ExpiresAt    time.Time `json:"expiresAt,omitzero"`
}

func newStatusCmd(level *slog.LevelVar) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Reconcile the session with the API and print the login state",
		Args:  cobra.NoArgs,
		RunE: runWithApp(level, func(cmd *cobra.Command, _ []string, a *app) error {
			ctx := cmd.Context()
			status := a.session.GetUserStatus(ctx)
			out := statusOutput{
				LoggedIn:     status.LoggedIn,
				ServerOnline: a.session.ServerIsAvailable(ctx),
			}
			if name, err := a.repo.GetItem(ctx, store.ItemName); err == nil {
				out.Name = name
			}
			if jwt := a.session.Token(ctx); jwt != "" {
				claims, err := domain.InspectToken(jwt)
				if err != nil {
					a.logger.Warn("Cached token is unreadable", "error", err)
				} else {
					out.UserID = claims.UserID
					out.IssuedAt = claims.IssuedAt
					out.ExpiresAt = claims.ExpiresAt
				}
			}
			return printJSON(cmd, out)
		}),
	}
}

func newHeartbeatCmd(level *slog.LevelVar) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat [reason]",
		Short: "Send a heartbeat",
		Args:  cobra.MaximumNArgs(1),
		RunE: runWithApp(level, func(cmd *cobra.Command, args []string, a *app) error {
			reason := domain.ReasonManual
			if len(args) == 1 {
				reason = args[0]
			}
			a.session.SendHeartbeat(cmd.Context(), reason)
			return nil
		}),
	}
}

func newFlushCmd(level *slog.LevelVar) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Upload the offline batch now",
		Args:  cobra.NoArgs,
		RunE: runWithApp(level, func(cmd *cobra.Command, _ []string, a *app) error {
			sent := a.session.SendOfflineData(cmd.Context())
			return printJSON(cmd, map[string]int{"sent": sent})
		}),
	}
}

func newPrefsCmd(level *slog.LevelVar) *cobra.Command {
	prefs := &cobra.Command{
		Use:   "prefs",
		Short: "Manage preference sync",
	}
	prefs.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Push local preferences when the server copy differs",
		Args:  cobra.NoArgs,
		RunE: runWithApp(level, func(cmd *cobra.Command, _ []string, a *app) error {
			a.session.UpdatePreferences(cmd.Context())
			return nil
		}),
	})
	return prefs
}

func newOnboardCmd(level *slog.LevelVar) *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Make sure a session exists, creating an anonymous user if needed",
		Args:  cobra.NoArgs,
		RunE: runWithApp(level, func(cmd *cobra.Command, _ []string, a *app) error {
			ob := onboard.New(onboard.Options{
				Session:     a.session,
				SessionFile: a.cfg.SessionFile,
				Logger:      a.logger,
			})
			return ob.Onboard(cmd.Context(), func(_ context.Context, created bool) {
				_ = printJSON(cmd, map[string]bool{"created": created})
			})
		}),
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
