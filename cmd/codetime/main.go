// Code Time agent: keeps an editor's Code Time session in sync with the API.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.0.0-dev"

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	if err := newRootCmd(level).ExecuteContext(context.Background()); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd(level *slog.LevelVar) *cobra.Command {
	root := &cobra.Command{
		Use:           "codetime",
		Short:         "Code Time editor agent",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(level),
		newStatusCmd(level),
		newHeartbeatCmd(level),
		newFlushCmd(level),
		newPrefsCmd(level),
		newOnboardCmd(level),
	)
	return root
}
