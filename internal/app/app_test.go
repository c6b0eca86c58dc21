package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lysje/internal/config"
	"lysje/internal/db"
	"lysje/internal/notifications/core"
	"lysje/internal/notifications/email"
	"lysje/internal/scheduler"
	"lysje/internal/types"
)

type captureTransport struct {
	sent []email.Message
}

func (c *captureTransport) Send(_ context.Context, msg email.Message) (email.SendResult, error) {
	c.sent = append(c.sent, msg)
	return email.SendResult{Accepted: []string{msg.To}}, nil
}

func (c *captureTransport) Close() error { return nil }

type staticDialer struct{ t *captureTransport }

func (d staticDialer) Dial(context.Context) (email.Transport, error) { return d.t, nil }

type staticRecipients []types.User

func (s staticRecipients) ListRecipients(context.Context) ([]types.User, error) { return s, nil }

func strPtr(s string) *string { return &s }

func testConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		LogLevel:    "debug",
		App:         config.AppConfig{Name: "Lysje", BaseURL: "https://app.lysje.test"},
		SMTP: config.SMTPConfig{
			Host:            "smtp.lysje.test",
			Port:            465,
			User:            "bot@lysje.test",
			From:            "bot@lysje.test",
			ReplyTo:         "help@lysje.test",
			Timeout:         time.Second,
			BreakerFailures: 3,
		},
		Reminder: config.ReminderConfig{Concurrency: 1},
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.LogLevel = "warn"
	cfg.Build.Version = "1.2.3"
	logger := NewLogger(&buf, cfg)

	logger.Info("hidden")
	logger.Warn("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "local", line["env"])
	assert.Equal(t, "1.2.3", line["version"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestNewDialer_MapsConfig(t *testing.T) {
	// Only checks construction; dialing needs a server.
	d := NewDialer(testConfig().SMTP)
	assert.NotNil(t, d)
}

func TestNewHistory(t *testing.T) {
	assert.Nil(t, newHistory(config.ReminderConfig{}, nil), "history is opt-in")

	h := newHistory(config.ReminderConfig{JobHistory: true}, nil)
	assert.IsType(t, &db.JobHistoryRepository{}, h)
}

func TestNewJob_TestModeOverride(t *testing.T) {
	cfg := testConfig()
	renderer, err := email.NewRenderer(email.RendererConfig{AppName: cfg.App.Name, BaseURL: cfg.App.BaseURL})
	require.NoError(t, err)

	// Preferences never match the reference time, so only test mode sends.
	users := staticRecipients{{
		ID:    "u1",
		Name:  "Ada",
		Email: "ada@lysje.test",
		Preferences: types.NotificationPreferences{
			Time: strPtr("03:00"), Days: strPtr("0,1,2,3,4,5,6"), Timezone: strPtr("UTC"),
		},
		Lists: []types.TodoList{{ID: "l1", Name: "Work", Items: []types.ListItem{{ID: "i1", Title: "Report"}}}},
	}}
	now := time.Date(2026, 2, 3, 14, 0, 0, 0, time.UTC)

	tr := &captureTransport{}
	job := newJob(cfg, staticDialer{tr}, users, nil, renderer, core.NoopReminderMetrics{}, nil, RunOptions{})
	summary, err := job.Execute(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SkippedWrongTime)
	assert.Empty(t, tr.sent)

	on := true
	job = newJob(cfg, staticDialer{tr}, users, nil, renderer, core.NoopReminderMetrics{}, nil, RunOptions{TestMode: &on})
	summary, err = job.Execute(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "bot@lysje.test", tr.sent[0].From)
	assert.Equal(t, "help@lysje.test", tr.sent[0].ReplyTo)
	assert.Equal(t, summary.RunID, tr.sent[0].Headers[scheduler.RunIDHeader])
}

func TestRunTracker(t *testing.T) {
	var tr RunTracker
	_, ok := tr.LastRun()
	assert.False(t, ok)
	assert.NoError(t, tr.Check(context.Background()))
	assert.Equal(t, "last_run", tr.Name())

	now := time.Date(2026, 2, 3, 14, 0, 0, 0, time.UTC)
	tr.Record(now, now, scheduler.RunSummary{Sent: 2}, nil)
	snap, ok := tr.LastRun()
	require.True(t, ok)
	assert.Equal(t, 2, snap.(LastRun).Summary.Sent)
	assert.NoError(t, tr.Check(context.Background()))

	tr.Record(now, now, scheduler.RunSummary{}, errors.New("smtp down"))
	assert.EqualError(t, tr.Check(context.Background()), "last run failed: smtp down")
}
