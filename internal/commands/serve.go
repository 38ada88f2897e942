package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/autometric/autometric/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Autometric HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	ctx := context.Background()
	logger := slog.Default()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	var webhookSecret string
	if cfg.GitHub != nil {
		webhookSecret = cfg.GitHub.WebhookSecret
	}
	if webhookSecret == "" {
		logger.Warn("no webhook secret configured, all webhook deliveries will be rejected")
	}

	srv := server.New(cfg.Server.Addr, cfg.Server.APIKey, cfg.Server.MaxRequestBody, server.Deps{
		Store:         deps.store,
		Webhooks:      deps.webhooks,
		WebhookSecret: webhookSecret,
		Resolver:      deps.resolver,
		Validator:     deps.validator,
		Integrator:    deps.integrator,
		Worker:        deps.worker,
		Logger:        logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	}
}
