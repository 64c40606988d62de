package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmcdole/shelf/internal/cli"
	"github.com/mmcdole/shelf/internal/config"
	"github.com/mmcdole/shelf/internal/log"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting shelf", "version", Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.NewApp(cfg, cli.Options{Err: os.Stderr}, logger)
	defer app.Close()

	if err := cli.NewRootCmd(app, Version).ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "error", err)
		return err
	}
	return nil
}
