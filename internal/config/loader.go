// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Resolve NAME_FILE variables through the SecretProvider and inject the
//     values as NAME, unless NAME is already set.
//  4. Use envconfig to process struct tags and populate the Config struct.
//  5. Apply derived defaults (SMTP_FROM falls back to SMTP_USER).
//  6. Populate BuildInfo from linker-injected variables.
//  7. Validate the struct using go-playground/validator.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is the diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// secretFileSuffix marks variables whose value is the path of a file holding
// the real value, e.g. SMTP_PASSWORD_FILE=/run/secrets/smtp_password.
const secretFileSuffix = "_FILE"

type envLookup func(key string) (string, bool)

type envSet func(key, value string) error

type environ func() []string

// loaderDeps holds the injectable dependencies for the loader, enabling
// testing without mutating global state.
type loaderDeps struct {
	lookupEnv envLookup
	setEnv    envSet
	environ   environ
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig loads and validates the reminder job configuration. provider
// resolves *_FILE references; nil selects a FileSecretProvider.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv.Load does NOT override existing environment variables.
	_ = godotenv.Load()

	if provider == nil {
		provider = NewFileSecretProvider()
	}
	if err := resolveSecretFiles(provider, deps); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.normalize()
	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			if missing := missingFields(verrs); len(missing) > 0 {
				return nil, &ConfigError{
					Type:    ErrMissingEnv,
					Message: "required configuration missing: " + strings.Join(missing, ", "),
					Err:     err,
				}
			}
		}
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

// normalize applies defaults that depend on other fields.
func (c *Config) normalize() {
	c.App.BaseURL = strings.TrimRight(c.App.BaseURL, "/")
	if strings.TrimSpace(c.SMTP.From) == "" {
		c.SMTP.From = c.SMTP.User
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
}

func missingFields(verrs validator.ValidationErrors) []string {
	var out []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			out = append(out, fe.Namespace())
		}
	}
	return out
}

// resolveSecretFiles scans the environment for NAME_FILE variables, reads
// the referenced values via the provider and sets NAME. A NAME that is
// already set wins over its _FILE counterpart.
func resolveSecretFiles(provider SecretProvider, deps loaderDeps) error {
	// Several variables may name the same file; it is read once.
	refToTargets := make(map[string][]string)
	var refs []string

	for _, entry := range deps.environ() {
		eq := strings.IndexByte(entry, '=')
		if eq < 0 {
			continue
		}
		key := entry[:eq]
		if !strings.HasSuffix(key, secretFileSuffix) {
			continue
		}
		target := strings.TrimSuffix(key, secretFileSuffix)
		if target == "" {
			continue
		}
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		ref := entry[eq+1:]
		if ref == "" {
			continue
		}
		if _, seen := refToTargets[ref]; !seen {
			refs = append(refs, ref)
		}
		refToTargets[ref] = append(refToTargets[ref], target)
	}

	if len(refs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, refs)
	if err != nil {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("failed to resolve %d secret files", len(refs)),
			Err:     err,
		}
	}

	var missing []string
	for _, ref := range refs {
		targets := refToTargets[ref]
		value, ok := resolved[ref]
		if !ok {
			missing = append(missing, targets...)
			continue
		}
		for _, target := range targets {
			if err := deps.setEnv(target, value); err != nil {
				return &ConfigError{
					Type:    ErrSecretResolution,
					Message: fmt.Sprintf("failed to set resolved value for %s", target),
					Err:     err,
				}
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("secret files not found for: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
