package config

import "context"

// SecretProvider resolves secret values by path. SSMProvider serves
// deployed environments; EnvVarProvider serves local development and tests.
type SecretProvider interface {
	// GetParametersBatch returns path -> plaintext for every key it could
	// resolve. Implementations batch requests internally.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
