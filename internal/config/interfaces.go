package config

import "context"

// SecretProvider resolves secret references to plaintext values. The loader
// uses it for variables published as NAME_FILE (container secrets mounted as
// files) so that NAME itself never has to appear in the environment.
type SecretProvider interface {
	// GetParametersBatch resolves every reference in keys and returns a map of
	// reference -> plaintext value. References that cannot be found are
	// omitted from the map rather than reported as errors.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
