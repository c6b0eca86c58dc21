// Package main runs the reminder dispatch job.
//
// By default it performs one run and exits, which suits an hourly crontab
// entry (0 * * * *). With --serve it stays up, triggers runs from
// REMINDER_SCHEDULE and serves GET /health and GET /status on HEALTH_PORT.
//
// Usage:
//
//	reminder-job
//	reminder-job --test-mode
//	reminder-job --reference-time=2026-02-03T14:00:00Z
//	reminder-job --serve
//
// The process exits with status 1 only when a run is aborted (mail server
// unreachable, recipients not loadable) or on configuration errors. Failed
// individual sends are logged and counted but do not change the exit code.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // user zones must resolve on images without /usr/share/zoneinfo

	"github.com/robfig/cron/v3"

	"lysje/internal/app"
	"lysje/internal/config"
	"lysje/internal/core"
)

type options struct {
	referenceTime *time.Time
	testMode      *bool
	serve         bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("reminder-job", flag.ContinueOnError)
	fs.SetOutput(stderr)
	refTime := fs.String("reference-time", "", "Override the reference time (RFC3339, e.g. 2026-02-03T14:00:00Z)")
	testMode := fs.Bool("test-mode", false, "Ignore notification time and days")
	serve := fs.Bool("serve", false, "Run continuously on REMINDER_SCHEDULE and serve health endpoints")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	var opts options
	opts.serve = *serve
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "test-mode" {
			v := *testMode
			opts.testMode = &v
		}
	})
	if *refTime != "" {
		if opts.serve {
			return options{}, errors.New("--reference-time cannot be combined with --serve")
		}
		t, err := time.Parse(time.RFC3339, *refTime)
		if err != nil {
			return options{}, fmt.Errorf("invalid --reference-time %q: expected RFC3339: %w", *refTime, err)
		}
		t = t.UTC()
		opts.referenceTime = &t
	}
	return opts, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	logger := app.NewLogger(os.Stdout, cfg)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize reminder job", "error", err)
		return 1
	}
	defer a.Close()

	runOpts := app.RunOptions{TestMode: opts.testMode}

	if opts.serve {
		if err := serve(ctx, a, runOpts); err != nil {
			logger.Error("reminder worker stopped with error", "error", err)
			return 1
		}
		return 0
	}

	now := time.Now().UTC()
	if opts.referenceTime != nil {
		now = *opts.referenceTime
	}
	if _, err := a.Execute(ctx, now, runOpts); err != nil {
		return 1
	}
	return 0
}

// serve triggers runs from the cron schedule until ctx is cancelled. A run
// still in progress when the next trigger fires makes that trigger skip.
func serve(ctx context.Context, a *app.App, runOpts app.RunOptions) error {
	logger := a.Logger
	tracker := &app.RunTracker{}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{logger}),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
	)
	_, err := c.AddFunc(a.Config.Reminder.Schedule, func() {
		started := time.Now().UTC()
		summary, runErr := a.Execute(ctx, started, runOpts)
		tracker.Record(started, started, summary, runErr)
	})
	if err != nil {
		return fmt.Errorf("invalid REMINDER_SCHEDULE %q: %w", a.Config.Reminder.Schedule, err)
	}

	srv, err := core.NewServer(logger, core.NewPingProbe("database", a.Pool), tracker)
	if err != nil {
		return err
	}
	srv.Status = tracker

	c.Start()
	logger.Info("reminder worker started", "schedule", a.Config.Reminder.Schedule)

	serveErr := srv.ListenAndServe(ctx, ":"+a.Config.Server.HealthPort)

	// Wait for an in-flight run before the pool is closed.
	<-c.Stop().Done()
	logger.Info("reminder worker stopped")
	return serveErr
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
