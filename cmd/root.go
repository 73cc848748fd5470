// Package cmd holds the docchat command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/koopa0/docchat/internal/app"
	"github.com/koopa0/docchat/internal/config"
	"github.com/koopa0/docchat/internal/log"
)

var debugLogging bool

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Chat with your documents",
	Long: `docchat ingests files and web pages into a local knowledge base and
answers questions about them, with citations back to the sources.

Run 'docchat serve' to expose the HTTP API, or use 'ingest' and 'ask'
directly from the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "enable debug logging")
}

func newLogger() log.Logger {
	level := slog.LevelInfo
	if debugLogging {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}

// setupApp loads configuration and builds the application container. The
// returned cleanup must run before exit.
func setupApp(ctx context.Context) (*app.App, func(), error) {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown error", "error", err)
		}
	}
	return a, cleanup, nil
}
