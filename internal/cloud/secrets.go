package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dwh-etl/internal/logging"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsAPI is the subset of the Secrets Manager client used by SecretResolver.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, input *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretResolver looks up the cluster password.
type SecretResolver struct {
	client SecretsAPI
}

// SecretResolverOption configures a SecretResolver.
type SecretResolverOption func(*SecretResolver)

// WithSecretsClient sets a custom Secrets Manager client (useful for testing).
func WithSecretsClient(c SecretsAPI) SecretResolverOption {
	return func(r *SecretResolver) { r.client = c }
}

// NewSecretResolver returns a resolver using cfg unless a client is supplied.
func NewSecretResolver(cfg aws.Config, opts ...SecretResolverOption) *SecretResolver {
	r := &SecretResolver{}
	for _, o := range opts {
		o(r)
	}
	if r.client == nil {
		r.client = secretsmanager.NewFromConfig(cfg)
	}
	return r
}

// Password returns the password stored in secret id. The secret is either
// the bare password or a JSON object with a "password" key, the layout
// Secrets Manager uses for Redshift credentials.
func (r *SecretResolver) Password(ctx context.Context, id string) (string, error) {
	logging.Logf(logging.Debug, "Resolving cluster password from secret %q", id)
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("secret %q: %w", id, ErrNotFound)
		}
		return "", fmt.Errorf("reading secret %q: %w", id, err)
	}
	value := aws.ToString(out.SecretString)
	if value == "" {
		return "", fmt.Errorf("secret %q has no string value", id)
	}
	// Only a JSON object carries a password field; anything else is the password.
	if trimmed := strings.TrimSpace(value); !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return value, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(value), &fields); err != nil {
		return "", fmt.Errorf("secret %q: invalid JSON: %w", id, err)
	}
	pw, ok := fields["password"].(string)
	if !ok || strings.TrimSpace(pw) == "" {
		return "", fmt.Errorf("secret %q: JSON value has no string \"password\" key", id)
	}
	return pw, nil
}
