// Package main is the Lambda entrypoint of the reminder job, invoked hourly by
// an EventBridge schedule. The event time is the reference time of the run;
// an optional JSON detail (scheduler.ReminderPayload) overrides it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
	_ "time/tzdata" // user zones must resolve on images without /usr/share/zoneinfo

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"lysje/internal/app"
	"lysje/internal/config"
	"lysje/internal/scheduler"
	"lysje/internal/types"
)

// Executor runs one dispatch. Satisfied by *app.App.
type Executor interface {
	Execute(ctx context.Context, now time.Time, opts app.RunOptions) (scheduler.RunSummary, error)
}

// Handler holds the dependencies initialized during cold start.
type Handler struct {
	App    Executor
	Logger *slog.Logger
	// Now is used when the event carries no time.
	Now func() time.Time
}

// Handle runs one dispatch for a scheduled event. It returns an error only
// for aborted runs, so that the invocation is reported as failed.
func (h *Handler) Handle(ctx context.Context, event events.CloudWatchEvent) (scheduler.RunSummary, error) {
	now := event.Time.UTC()
	if event.Time.IsZero() {
		now = h.Now().UTC()
	}

	var payload scheduler.ReminderPayload
	if len(event.Detail) > 0 && string(event.Detail) != "null" {
		if err := json.Unmarshal(event.Detail, &payload); err != nil {
			return scheduler.RunSummary{}, fmt.Errorf("invalid event detail: %w", err)
		}
	}
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	if event.ID != "" {
		ctx = types.WithRunID(ctx, event.ID)
	}
	h.Logger.InfoContext(ctx, "reminder lambda invoked",
		"event_id", event.ID,
		"reference_time", now.Format(time.RFC3339),
	)

	return h.App.Execute(ctx, now, app.RunOptions{TestMode: payload.TestMode})
}

func main() {
	cfg, err := config.LoadConfig(nil)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(os.Stdout, cfg)
	slog.SetDefault(logger)

	logger.Info("Reminder Lambda initializing (cold start)")

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize reminder job", "error", err)
		os.Exit(1)
	}

	handler := &Handler{App: a, Logger: logger, Now: time.Now}
	lambda.Start(handler.Handle)
}
