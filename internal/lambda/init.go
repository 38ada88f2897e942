// Package lambda wires the analyzer worker for AWS Lambda invocations.
package lambda

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/autometric/autometric/internal/alert"
	"github.com/autometric/autometric/internal/analyzer"
	"github.com/autometric/autometric/internal/githost"
	"github.com/autometric/autometric/internal/inference"
	"github.com/autometric/autometric/internal/secrets"
	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/internal/store/dynamo"
	"github.com/autometric/autometric/pkg/types"
)

// Deps holds shared dependencies for Lambda handlers.
type Deps struct {
	Store  store.Store
	Worker *analyzer.Worker
	Logger *slog.Logger
}

// Init creates shared dependencies from environment variables.
// Reads: TABLE_NAME, AWS_REGION, GITHUB_TOKEN or GITHUB_TOKEN_SECRET_ARN,
// INFERENCE_URL, INFERENCE_API_KEY, SNS_TOPIC_ARN.
func Init(ctx context.Context) (*Deps, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	tableName := os.Getenv("TABLE_NAME")
	region := os.Getenv("AWS_REGION")
	if tableName == "" {
		return nil, fmt.Errorf("TABLE_NAME environment variable required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS_REGION environment variable required")
	}

	st, err := dynamo.New(&types.DynamoDBConfig{
		TableName: tableName,
		Region:    region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating DynamoDB store: %w", err)
	}

	token := os.Getenv("GITHUB_TOKEN")
	if arn := os.Getenv("GITHUB_TOKEN_SECRET_ARN"); arn != "" {
		cfg := &types.ProjectConfig{GitHub: &types.GitHubConfig{TokenSecretARN: arn}}
		resolver, err := secrets.NewResolver(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating secrets resolver: %w", err)
		}
		if err := resolver.Apply(ctx, cfg); err != nil {
			return nil, err
		}
		token = cfg.GitHub.Token
	}
	if token == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN or GITHUB_TOKEN_SECRET_ARN required")
	}
	host := githost.NewGitHub(token, logger)

	var inferencer inference.Inferencer
	if url := os.Getenv("INFERENCE_URL"); url != "" {
		inferencer = inference.NewClient(types.InferenceConfig{
			URL:     url,
			APIKey:  os.Getenv("INFERENCE_API_KEY"),
			Model:   os.Getenv("INFERENCE_MODEL"),
			Timeout: envInt("INFERENCE_TIMEOUT", 60),
		}, logger)
	} else {
		inferencer = fallbackOnly{}
	}

	opts := []analyzer.Option{}
	if topicARN := os.Getenv("SNS_TOPIC_ARN"); topicARN != "" {
		snsSink, err := alert.NewSNSSink(topicARN)
		if err != nil {
			return nil, fmt.Errorf("creating SNS sink: %w", err)
		}
		dispatcher, err := alert.NewDispatcher(nil, logger)
		if err != nil {
			return nil, fmt.Errorf("creating alert dispatcher: %w", err)
		}
		dispatcher.AddSink(snsSink)
		opts = append(opts, analyzer.WithNotifier(dispatcher))
	}
	if n := envInt("MAX_COST_FILES", 0); n > 0 {
		opts = append(opts, analyzer.WithMaxCostFiles(n))
	}

	return &Deps{
		Store:  st,
		Worker: analyzer.NewWorker(st, host, inferencer, logger, opts...),
		Logger: logger,
	}, nil
}

// fallbackOnly makes the worker substitute the deterministic fallback when
// no inference service is configured.
type fallbackOnly struct{}

func (fallbackOnly) InferSchema(context.Context, *inference.Request) (*inference.Result, error) {
	return nil, fmt.Errorf("no inference service configured")
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return fallback
}
