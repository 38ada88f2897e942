package types

// ProjectConfig represents the top-level autometric.yaml configuration.
type ProjectConfig struct {
	Store     string           `yaml:"store"` // "postgres" or "dynamodb"
	Postgres  *PostgresConfig  `yaml:"postgres,omitempty"`
	DynamoDB  *DynamoDBConfig  `yaml:"dynamodb,omitempty"`
	Cache     *CacheConfig     `yaml:"cache,omitempty"`
	Server    *ServerConfig    `yaml:"server,omitempty"`
	GitHub    *GitHubConfig    `yaml:"github,omitempty"`
	Inference *InferenceConfig `yaml:"inference,omitempty"`
	Alerts    []AlertConfig    `yaml:"alerts,omitempty"`
}

// PostgresConfig holds Postgres connection settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// DynamoDBConfig holds DynamoDB connection and table settings.
type DynamoDBConfig struct {
	TableName   string `yaml:"tableName" json:"tableName"`
	Region      string `yaml:"region" json:"region"`
	Endpoint    string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	CreateTable bool   `yaml:"createTable,omitempty" json:"createTable,omitempty"`
}

// CacheConfig holds optional Redis settings for caching resolved schemas and
// route graphs on the ingest path.
type CacheConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
	TTL       string `yaml:"ttl,omitempty"` // e.g. "30s"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	APIKey         string `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
	MaxRequestBody int64  `yaml:"maxRequestBody,omitempty" json:"maxRequestBody,omitempty"`
}

// GitHubConfig holds hosting API credentials and the webhook secret.
// The *SecretARN fields, when set, are resolved through Secrets Manager at
// startup and take precedence over the inline values.
type GitHubConfig struct {
	APIBase          string `yaml:"apiBase,omitempty"`
	Token            string `yaml:"token,omitempty"`
	TokenSecretARN   string `yaml:"tokenSecretArn,omitempty"`
	WebhookSecret    string `yaml:"webhookSecret,omitempty"`
	WebhookSecretARN string `yaml:"webhookSecretArn,omitempty"`
}

// InferenceConfig holds settings for the external schema-inference service.
type InferenceConfig struct {
	URL          string `yaml:"url"`
	APIKey       string `yaml:"apiKey,omitempty"`
	APIKeyARN    string `yaml:"apiKeySecretArn,omitempty"`
	Model        string `yaml:"model,omitempty"`
	Timeout      int    `yaml:"timeout,omitempty"` // seconds
	MaxCostFiles int    `yaml:"maxCostFiles,omitempty"`
}

// AlertConfig defines an alert sink configuration.
type AlertConfig struct {
	Type     AlertType `yaml:"type" json:"type"`
	URL      string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path     string    `yaml:"path,omitempty" json:"path,omitempty"`
	TopicARN string    `yaml:"topicArn,omitempty" json:"topicArn,omitempty"`
}
