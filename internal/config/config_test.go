package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autometric/autometric/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

const validYAML = `
store: postgres
postgres:
  dsn: postgres://localhost:5432/autometric
server:
  addr: ":9090"
  apiKey: file-key
github:
  token: ghp_test
  webhookSecret: whsec_test
inference:
  url: https://inference.example.com/v1/infer
  model: analytics-v2
  timeout: 30
alerts:
  - type: console
  - type: file
    path: /tmp/alerts.log
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, "postgres://localhost:5432/autometric", cfg.Postgres.DSN)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "ghp_test", cfg.GitHub.Token)
	assert.Equal(t, "analytics-v2", cfg.Inference.Model)
	assert.Equal(t, 30, cfg.Inference.Timeout)
	require.Len(t, cfg.Alerts, 2)
	assert.Equal(t, types.AlertConsole, cfg.Alerts[0].Type)
	assert.Equal(t, "/tmp/alerts.log", cfg.Alerts[1].Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "store: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoadDefaultAddr(t *testing.T) {
	cfg, err := Load(writeConfig(t, "store: postgres\npostgres:\n  dsn: postgres://x\n"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AUTOMETRIC_GITHUB_TOKEN", "ghp_env")
	t.Setenv("AUTOMETRIC_WEBHOOK_SECRET", "whsec_env")
	t.Setenv("AUTOMETRIC_INFERENCE_API_KEY", "ik_env")
	t.Setenv("AUTOMETRIC_API_KEY", "ak_env")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "ghp_env", cfg.GitHub.Token)
	assert.Equal(t, "whsec_env", cfg.GitHub.WebhookSecret)
	assert.Equal(t, "ik_env", cfg.Inference.APIKey)
	assert.Equal(t, "ak_env", cfg.Server.APIKey)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing store", "server:\n  addr: \":8080\"\n", "store is required"},
		{"unknown store", "store: mysql\n", `unknown store "mysql"`},
		{"postgres without dsn", "store: postgres\n", "postgres.dsn is required"},
		{"dynamodb without table", "store: dynamodb\ndynamodb:\n  region: us-east-1\n", "dynamodb.tableName is required"},
		{"cache without addr", "store: postgres\npostgres:\n  dsn: x\ncache:\n  db: 1\n", "cache.addr is required"},
		{"inference without url", "store: postgres\npostgres:\n  dsn: x\ninference:\n  model: m\n", "inference.url is required"},
		{"webhook alert without url", "store: postgres\npostgres:\n  dsn: x\nalerts:\n  - type: webhook\n", "webhook URL required"},
		{"file alert without path", "store: postgres\npostgres:\n  dsn: x\nalerts:\n  - type: file\n", "file path required"},
		{"sns alert without topic", "store: postgres\npostgres:\n  dsn: x\nalerts:\n  - type: sns\n", "SNS topic ARN required"},
		{"unknown alert type", "store: postgres\npostgres:\n  dsn: x\nalerts:\n  - type: pager\n", "unknown alert type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadDynamoDB(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
store: dynamodb
dynamodb:
  tableName: autometric
  region: us-east-1
  endpoint: http://localhost:8000
`))
	require.NoError(t, err)
	assert.Equal(t, "autometric", cfg.DynamoDB.TableName)
	assert.Equal(t, "us-east-1", cfg.DynamoDB.Region)
}
