// Package commands implements the autometric CLI commands.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/autometric/autometric/internal/alert"
	"github.com/autometric/autometric/internal/analyzer"
	"github.com/autometric/autometric/internal/cache"
	"github.com/autometric/autometric/internal/config"
	"github.com/autometric/autometric/internal/githost"
	"github.com/autometric/autometric/internal/inference"
	"github.com/autometric/autometric/internal/ingest"
	"github.com/autometric/autometric/internal/pr"
	"github.com/autometric/autometric/internal/schema"
	"github.com/autometric/autometric/internal/secrets"
	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/internal/store/dynamo"
	"github.com/autometric/autometric/internal/store/postgres"
	"github.com/autometric/autometric/internal/webhook"
	"github.com/autometric/autometric/pkg/types"
)

// loadConfig reads autometric.yaml from the working directory and resolves
// any Secrets Manager references.
func loadConfig(ctx context.Context) (*types.ProjectConfig, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if secrets.NeedsResolution(cfg) {
		resolver, err := secrets.NewResolver(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating secrets resolver: %w", err)
		}
		if err := resolver.Apply(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// openStore connects to the configured durable store.
func openStore(ctx context.Context, cfg *types.ProjectConfig) (store.Store, error) {
	switch cfg.Store {
	case "postgres":
		st, err := postgres.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to Postgres: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrating Postgres: %w", err)
		}
		return st, nil
	case "dynamodb":
		st, err := dynamo.New(cfg.DynamoDB)
		if err != nil {
			return nil, fmt.Errorf("connecting to DynamoDB: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// appDeps bundles the collaborators built from config. close releases the
// store and cache connections.
type appDeps struct {
	cfg        *types.ProjectConfig
	store      store.Store
	cache      *cache.Cache
	resolver   *schema.Resolver
	webhooks   *webhook.Router
	validator  *ingest.Validator
	integrator *pr.Integrator
	worker     *analyzer.Worker
	dispatcher *alert.Dispatcher
	logger     *slog.Logger
}

func (d *appDeps) close() {
	if d.cache != nil {
		_ = d.cache.Close()
	}
	if d.store != nil {
		d.store.Close()
	}
}

// buildDeps wires the full application from config. Components without
// config (inference, github) are left nil-capable: the worker falls back
// deterministically and approve reports a clear error.
func buildDeps(ctx context.Context, cfg *types.ProjectConfig, logger *slog.Logger) (*appDeps, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	deps := &appDeps{cfg: cfg, store: st, logger: logger}

	if cfg.Cache != nil {
		c, err := cache.New(ctx, cfg.Cache)
		if err != nil {
			deps.close()
			return nil, fmt.Errorf("connecting to cache: %w", err)
		}
		deps.cache = c
	}

	deps.resolver = schema.NewResolver(st, deps.cache, logger)
	deps.webhooks = webhook.NewRouter(st, logger)
	deps.validator = ingest.NewValidator(st, deps.resolver, logger)

	dispatcher, err := alert.NewDispatcher(cfg.Alerts, logger)
	if err != nil {
		deps.close()
		return nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}
	deps.dispatcher = dispatcher

	var host githost.Client
	if cfg.GitHub != nil {
		opts := []githost.GitHubOption{}
		if cfg.GitHub.APIBase != "" {
			opts = append(opts, githost.WithAPIBase(cfg.GitHub.APIBase))
		}
		host = githost.NewGitHub(cfg.GitHub.Token, logger, opts...)
	}

	if host != nil {
		deps.integrator = pr.NewIntegrator(deps.resolver, host, logger)

		var inferencer inference.Inferencer
		if cfg.Inference != nil {
			inferencer = inference.NewClient(*cfg.Inference, logger)
		} else {
			inferencer = unavailableInferencer{}
		}
		workerOpts := []analyzer.Option{analyzer.WithNotifier(dispatcher)}
		if cfg.Inference != nil && cfg.Inference.MaxCostFiles > 0 {
			workerOpts = append(workerOpts, analyzer.WithMaxCostFiles(cfg.Inference.MaxCostFiles))
		}
		deps.worker = analyzer.NewWorker(st, host, inferencer, logger, workerOpts...)
	}

	return deps, nil
}

// unavailableInferencer stands in when no inference service is configured.
// The worker substitutes the deterministic fallback schema on its error.
type unavailableInferencer struct{}

func (unavailableInferencer) InferSchema(context.Context, *inference.Request) (*inference.Result, error) {
	return nil, fmt.Errorf("no inference service configured")
}
