// Package secrets resolves Secrets Manager ARNs referenced by the project
// configuration into inline values at startup.
package secrets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/autometric/autometric/pkg/types"
)

// SecretsAPI is the subset of the Secrets Manager client used by Resolver.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, input *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver fetches secret values for ARN-referenced config fields.
type Resolver struct {
	client SecretsAPI
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithClient sets a custom Secrets Manager client (useful for testing).
func WithClient(c SecretsAPI) ResolverOption {
	return func(r *Resolver) { r.client = c }
}

// NewResolver creates a Resolver using the default AWS credential chain.
func NewResolver(ctx context.Context, opts ...ResolverOption) (*Resolver, error) {
	r := &Resolver{}
	for _, o := range opts {
		o(r)
	}
	if r.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		r.client = secretsmanager.NewFromConfig(cfg)
	}
	return r, nil
}

// Apply resolves every configured secret ARN and writes the fetched value
// into the corresponding inline field. ARN-sourced values take precedence
// over inline and environment values.
func (r *Resolver) Apply(ctx context.Context, cfg *types.ProjectConfig) error {
	if cfg.GitHub != nil {
		if cfg.GitHub.TokenSecretARN != "" {
			v, err := r.fetch(ctx, cfg.GitHub.TokenSecretARN)
			if err != nil {
				return fmt.Errorf("resolving github token: %w", err)
			}
			cfg.GitHub.Token = v
		}
		if cfg.GitHub.WebhookSecretARN != "" {
			v, err := r.fetch(ctx, cfg.GitHub.WebhookSecretARN)
			if err != nil {
				return fmt.Errorf("resolving webhook secret: %w", err)
			}
			cfg.GitHub.WebhookSecret = v
		}
	}
	if cfg.Inference != nil && cfg.Inference.APIKeyARN != "" {
		v, err := r.fetch(ctx, cfg.Inference.APIKeyARN)
		if err != nil {
			return fmt.Errorf("resolving inference api key: %w", err)
		}
		cfg.Inference.APIKey = v
	}
	return nil
}

// NeedsResolution reports whether any config field references a secret ARN.
// Callers skip building an AWS client entirely when it returns false.
func NeedsResolution(cfg *types.ProjectConfig) bool {
	if cfg.GitHub != nil && (cfg.GitHub.TokenSecretARN != "" || cfg.GitHub.WebhookSecretARN != "") {
		return true
	}
	return cfg.Inference != nil && cfg.Inference.APIKeyARN != ""
}

func (r *Resolver) fetch(ctx context.Context, arn string) (string, error) {
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(arn),
	})
	if err != nil {
		return "", err
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", fmt.Errorf("secret %s has no string value", arn)
	}
	return *out.SecretString, nil
}
