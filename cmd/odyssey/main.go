package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
)

var rootCmd = &cobra.Command{
	Use:   "odyssey",
	Short: "Odyssey ledger: double-entry accounting with perpetual inventory",
	Long: `Odyssey ledger runs the multi-tenant journal, inventory, procurement
and stores API. Without a subcommand it starts the HTTP server.

Configuration is read from the environment (and a .env file when present).
See internal/app/config.go for the full list of variables.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "odyssey: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and assembles the container.
func bootstrap(ctx context.Context) (*app.Container, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	return c, nil
}
