package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
)

// FileSecretProvider implements SecretProvider by reading each reference as
// a file path. Trailing newlines are trimmed, matching how secrets are
// usually written by orchestrators.
type FileSecretProvider struct {
	readFile func(name string) ([]byte, error)
}

// NewFileSecretProvider creates a provider backed by the local filesystem.
func NewFileSecretProvider() *FileSecretProvider {
	return &FileSecretProvider{readFile: os.ReadFile}
}

// GetParametersBatch reads every path in keys. Missing files are omitted from
// the result; any other read error aborts the batch.
func (p *FileSecretProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := p.readFile(key)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		result[key] = strings.TrimRight(string(data), "\r\n")
	}
	return result, nil
}
