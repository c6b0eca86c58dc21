// Package config defines the configuration of the Lysje reminder job.
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Secret files (*_FILE) (Lowest)
//
// Any missing required value or invalid format fails the load, and the
// entrypoints exit before touching the database or the mail server.
package config

import (
	"time"

	"lysje/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the reminder job.
// Sub-components receive only the config subset they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	App           AppConfig
	Database      DatabaseConfig
	SMTP          SMTPConfig
	Reminder      ReminderConfig
	Server        ServerConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// AppConfig holds the public identity of the application used in emails.
type AppConfig struct {
	Name string `envconfig:"APP_NAME" default:"Lysje" validate:"required"`
	// BaseURL is the public web app URL (no trailing slash), used for links.
	BaseURL string `envconfig:"APP_BASE_URL" validate:"required,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"4" validate:"min=1"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"0" validate:"min=0"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"5s"`
}

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct {
	Host     string       `envconfig:"SMTP_HOST" default:"smtp.gmail.com" validate:"required,hostname|ip"`
	Port     int          `envconfig:"SMTP_PORT" default:"587" validate:"min=1,max=65535"`
	User     string       `envconfig:"SMTP_USER" validate:"required"`
	Password SecretString `envconfig:"SMTP_PASSWORD" validate:"required"`
	// From defaults to User when unset (see Normalize).
	From    string        `envconfig:"SMTP_FROM"`
	ReplyTo string        `envconfig:"SMTP_REPLY_TO" validate:"omitempty,email"`
	Timeout time.Duration `envconfig:"SMTP_TIMEOUT" default:"15s"`
	// InsecureSkipVerify disables certificate verification. Only for local
	// relays with self-signed certificates.
	InsecureSkipVerify bool   `envconfig:"SMTP_INSECURE_SKIP_VERIFY" default:"false"`
	BreakerFailures    uint32 `envconfig:"SMTP_BREAKER_FAILURES" default:"5" validate:"min=1"`
	// RateLimit caps messages per second; 0 disables throttling.
	RateLimit float64 `envconfig:"SMTP_RATE_LIMIT" default:"0" validate:"min=0"`
}

// ImplicitTLS reports whether the connection must start with TLS rather
// than upgrade via STARTTLS.
func (c SMTPConfig) ImplicitTLS() bool {
	return c.Port == 465
}

// ReminderConfig tunes the dispatch run.
type ReminderConfig struct {
	// TestMode bypasses the time/day eligibility check.
	TestMode    bool `envconfig:"REMINDER_TEST_MODE" default:"false"`
	Concurrency int  `envconfig:"REMINDER_CONCURRENCY" default:"1" validate:"min=1,max=32"`
	// Schedule is the cron expression used by the long-running worker.
	Schedule string `envconfig:"REMINDER_SCHEDULE" default:"0 * * * *" validate:"required"`
	// JobHistory records each run in the job_history table
	// (migrations/0001_job_history.sql).
	JobHistory bool `envconfig:"REMINDER_JOB_HISTORY" default:"false"`
}

// ServerConfig holds the health endpoint settings of the long-running worker.
type ServerConfig struct {
	HealthPort string `envconfig:"HEALTH_PORT" default:"8081"`
}

// AWSConfig holds regional configuration for the metrics client.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Lysje"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSecretResolution indicates a *_FILE secret could not be read.
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
