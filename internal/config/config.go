// Package config handles loading and validation of autometric.yaml project
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/autometric/autometric/pkg/types"
)

// FileName is the project configuration file looked up in the config dir.
const FileName = "autometric.yaml"

// Environment variables that override inline secret values. Secrets Manager
// ARNs in the config still take precedence over both.
const (
	envGitHubToken     = "AUTOMETRIC_GITHUB_TOKEN"
	envWebhookSecret   = "AUTOMETRIC_WEBHOOK_SECRET"
	envInferenceAPIKey = "AUTOMETRIC_INFERENCE_API_KEY"
	envServerAPIKey    = "AUTOMETRIC_API_KEY"
)

// Load reads and parses autometric.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *types.ProjectConfig) {
	if v := os.Getenv(envGitHubToken); v != "" {
		if cfg.GitHub == nil {
			cfg.GitHub = &types.GitHubConfig{}
		}
		cfg.GitHub.Token = v
	}
	if v := os.Getenv(envWebhookSecret); v != "" {
		if cfg.GitHub == nil {
			cfg.GitHub = &types.GitHubConfig{}
		}
		cfg.GitHub.WebhookSecret = v
	}
	if v := os.Getenv(envInferenceAPIKey); v != "" && cfg.Inference != nil {
		cfg.Inference.APIKey = v
	}
	if v := os.Getenv(envServerAPIKey); v != "" {
		if cfg.Server == nil {
			cfg.Server = &types.ServerConfig{}
		}
		cfg.Server.APIKey = v
	}
}

func applyDefaults(cfg *types.ProjectConfig) {
	if cfg.Server == nil {
		cfg.Server = &types.ServerConfig{}
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
}

func validate(cfg *types.ProjectConfig) error {
	switch cfg.Store {
	case "":
		return fmt.Errorf("store is required")
	case "postgres":
		if cfg.Postgres == nil || cfg.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required when store is postgres")
		}
	case "dynamodb":
		if cfg.DynamoDB == nil || cfg.DynamoDB.TableName == "" {
			return fmt.Errorf("dynamodb.tableName is required when store is dynamodb")
		}
	default:
		return fmt.Errorf("unknown store %q", cfg.Store)
	}

	if cfg.Cache != nil && cfg.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when cache is configured")
	}
	if cfg.Inference != nil && cfg.Inference.URL == "" {
		return fmt.Errorf("inference.url is required when inference is configured")
	}
	for i, a := range cfg.Alerts {
		switch a.Type {
		case types.AlertConsole:
		case types.AlertWebhook:
			if a.URL == "" {
				return fmt.Errorf("alerts[%d]: webhook URL required", i)
			}
		case types.AlertFile:
			if a.Path == "" {
				return fmt.Errorf("alerts[%d]: file path required", i)
			}
		case types.AlertSNS:
			if a.TopicARN == "" {
				return fmt.Errorf("alerts[%d]: SNS topic ARN required", i)
			}
		default:
			return fmt.Errorf("alerts[%d]: unknown alert type %q", i, a.Type)
		}
	}
	return nil
}
