// Package app wires configuration into the reminder job's components. It is
// shared by the one-shot CLI, the long-running worker and the Lambda handler.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"lysje/internal/config"
	"lysje/internal/db"
	"lysje/internal/notifications/core"
	"lysje/internal/notifications/email"
	"lysje/internal/scheduler"
)

// App holds the long-lived dependencies of the reminder job.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Metrics core.ReminderMetrics

	dialer     email.Dialer
	recipients scheduler.RecipientSource
	history    scheduler.JobHistorian
	renderer   *email.Renderer
}

// New connects to the database and builds the mail, rendering and metrics
// components. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Info("database connection established", "max_conns", cfg.Database.MaxConns)

	renderer, err := email.NewRenderer(email.RendererConfig{
		AppName: cfg.App.Name,
		BaseURL: cfg.App.BaseURL,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	metrics, err := newMetrics(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &App{
		Config:     cfg,
		Logger:     logger,
		Pool:       pool,
		Metrics:    metrics,
		dialer:     NewDialer(cfg.SMTP),
		recipients: db.NewRecipientRepository(pool),
		history:    newHistory(cfg.Reminder, pool),
		renderer:   renderer,
	}, nil
}

// newHistory returns the run log, or nil when it is not enabled.
func newHistory(cfg config.ReminderConfig, conn db.DBTX) scheduler.JobHistorian {
	if !cfg.JobHistory {
		return nil
	}
	return db.NewJobHistoryRepository(conn)
}

// Close releases the database pool.
func (a *App) Close() {
	a.Pool.Close()
}

// NewDialer maps SMTP configuration onto the mail transport dialer.
func NewDialer(cfg config.SMTPConfig) *email.SMTPDialer {
	return email.NewSMTPDialer(email.SMTPConfig{
		Host:               cfg.Host,
		Port:               cfg.Port,
		Username:           cfg.User,
		Password:           cfg.Password,
		ImplicitTLS:        cfg.ImplicitTLS(),
		Timeout:            cfg.Timeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}

	timeout := cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

func newMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (core.ReminderMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return core.NoopReminderMetrics{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	logger.Info("cloudwatch metrics enabled", "namespace", cfg.Observability.MetricNamespace)
	return core.NewCloudWatchReminderMetrics(client, cfg.Observability.MetricNamespace, logger), nil
}

// RunOptions override configuration for a single run.
type RunOptions struct {
	// TestMode overrides REMINDER_TEST_MODE when set.
	TestMode *bool
}

// Job builds the dispatcher and job for one run. Each run gets its own
// dispatcher so options and circuit breaker state never leak between runs.
func (a *App) Job(opts RunOptions) *scheduler.ReminderJob {
	return newJob(a.Config, a.dialer, a.recipients, a.history, a.renderer, a.Metrics, a.Logger, opts)
}

func newJob(
	cfg *config.Config,
	dialer email.Dialer,
	recipients scheduler.RecipientSource,
	history scheduler.JobHistorian,
	renderer scheduler.DigestRenderer,
	metrics core.ReminderMetrics,
	logger *slog.Logger,
	opts RunOptions,
) *scheduler.ReminderJob {
	testMode := cfg.Reminder.TestMode
	if opts.TestMode != nil {
		testMode = *opts.TestMode
	}
	dispatcher := scheduler.NewReminderDispatcher(dialer, recipients, renderer, scheduler.DispatcherConfig{
		TestMode:    testMode,
		Concurrency: cfg.Reminder.Concurrency,
		Sender: email.SenderConfig{
			From:            cfg.SMTP.From,
			ReplyTo:         cfg.SMTP.ReplyTo,
			BreakerFailures: cfg.SMTP.BreakerFailures,
			RateLimit:       cfg.SMTP.RateLimit,
		},
	}, logger)
	return scheduler.NewReminderJob(dispatcher, history, metrics, logger)
}

// Execute runs one dispatch at now with the given options.
func (a *App) Execute(ctx context.Context, now time.Time, opts RunOptions) (scheduler.RunSummary, error) {
	return a.Job(opts).Execute(ctx, now)
}
