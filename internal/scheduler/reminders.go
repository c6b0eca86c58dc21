package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lysje/internal/notifications/email"
	"lysje/internal/types"
)

// RunIDHeader carries the dispatch run ID on every outgoing message.
const RunIDHeader = "X-Lysje-Run-ID"

// RecipientSource loads every user with their lists and open items.
type RecipientSource interface {
	ListRecipients(ctx context.Context) ([]types.User, error)
}

// DigestRenderer produces the email for one user.
type DigestRenderer interface {
	Render(userName string, lists []types.ListDigest, now time.Time, loc *time.Location) (*email.RenderedEmail, error)
}

// DispatcherConfig configures a ReminderDispatcher.
type DispatcherConfig struct {
	// TestMode bypasses the day and time check. Configuration and open-item
	// checks still apply.
	TestMode bool
	// Concurrency is the number of users processed in parallel. Values below
	// 2 process users sequentially.
	Concurrency int
	Sender      email.SenderConfig
}

// ReminderDispatcher runs one dispatch batch over all users.
type ReminderDispatcher struct {
	dialer     email.Dialer
	recipients RecipientSource
	renderer   DigestRenderer
	cfg        DispatcherConfig
	logger     *slog.Logger
}

// NewReminderDispatcher creates a dispatcher.
func NewReminderDispatcher(dialer email.Dialer, recipients RecipientSource, renderer DigestRenderer, cfg DispatcherConfig, logger *slog.Logger) *ReminderDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderDispatcher{
		dialer:     dialer,
		recipients: recipients,
		renderer:   renderer,
		cfg:        cfg,
		logger:     logger,
	}
}

// runCounters is the concurrency-safe form of RunSummary.
type runCounters struct {
	users, sent, failed, pending                  atomic.Int64
	unconfigured, wrongTime, invalid, noOpenItems atomic.Int64
}

func (c *runCounters) summary(runID string) RunSummary {
	return RunSummary{
		RunID:               runID,
		Users:               int(c.users.Load()),
		Sent:                int(c.sent.Load()),
		Failed:              int(c.failed.Load()),
		Pending:             int(c.pending.Load()),
		SkippedUnconfigured: int(c.unconfigured.Load()),
		SkippedWrongTime:    int(c.wrongTime.Load()),
		SkippedInvalid:      int(c.invalid.Load()),
		SkippedNoOpenItems:  int(c.noOpenItems.Load()),
	}
}

// Run executes one dispatch batch at the reference time now. The run ID is
// taken from ctx when present (see types.WithRunID) and generated otherwise.
//
// A transport that cannot be opened or recipients that cannot be loaded abort
// the run with an error and nothing is sent. Per-user failures never abort the
// run; they are counted in the returned summary.
func (d *ReminderDispatcher) Run(ctx context.Context, now time.Time) (RunSummary, error) {
	runID := types.GetRunID(ctx)
	if runID == "" {
		runID = uuid.New().String()
		ctx = types.WithRunID(ctx, runID)
	}
	logger := d.logger.With("run_id", runID)

	logger.InfoContext(ctx, "starting reminder dispatch",
		"reference_time", now.UTC().Format(time.RFC3339),
		"test_mode", d.cfg.TestMode,
	)

	transport, err := d.dialer.Dial(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "could not open mail transport", "error", err)
		return RunSummary{RunID: runID}, fmt.Errorf("reminder dispatch: %w", err)
	}
	defer func() {
		if cerr := transport.Close(); cerr != nil {
			logger.WarnContext(ctx, "failed to close mail transport", "error", cerr)
		}
	}()

	users, err := d.recipients.ListRecipients(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load recipients", "error", err)
		return RunSummary{RunID: runID}, fmt.Errorf("reminder dispatch: load recipients: %w", err)
	}

	headers := map[string]string{RunIDHeader: runID}
	for k, v := range d.cfg.Sender.Headers {
		headers[k] = v
	}
	senderCfg := d.cfg.Sender
	senderCfg.Headers = headers
	sender := email.NewDigestSender(senderCfg, logger)

	var counters runCounters
	counters.users.Store(int64(len(users)))

	process := func(u *types.User) {
		d.processUser(ctx, logger, transport, sender, u, now, &counters)
	}

	if d.cfg.Concurrency > 1 {
		var g errgroup.Group
		g.SetLimit(d.cfg.Concurrency)
		for i := range users {
			u := &users[i]
			g.Go(func() error {
				process(u)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range users {
			process(&users[i])
		}
	}

	summary := counters.summary(runID)
	logger.InfoContext(ctx, "reminder dispatch complete",
		"users", summary.Users,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"pending", summary.Pending,
		"skipped_unconfigured", summary.SkippedUnconfigured,
		"skipped_wrong_time", summary.SkippedWrongTime,
		"skipped_invalid", summary.SkippedInvalid,
		"skipped_no_open_items", summary.SkippedNoOpenItems,
	)
	return summary, nil
}

func (d *ReminderDispatcher) processUser(
	ctx context.Context,
	logger *slog.Logger,
	transport email.Transport,
	sender *email.DigestSender,
	u *types.User,
	now time.Time,
	c *runCounters,
) {
	logger = logger.With("user_id", u.ID)

	sched, err := ParseSchedule(u.Preferences)
	switch {
	case errors.Is(err, ErrNotConfigured):
		logger.DebugContext(ctx, "skipping user without notification preferences")
		c.unconfigured.Add(1)
		return
	case err != nil:
		logger.WarnContext(ctx, "skipping user with invalid notification preferences", "error", err)
		c.invalid.Add(1)
		return
	}

	if !d.cfg.TestMode && !sched.ShouldNotify(now) {
		local := now.In(sched.Location)
		logger.DebugContext(ctx, "skipping user, not notification time",
			"local_time", local.Format("Mon 15:04"),
			"timezone", sched.Location.String(),
			"notification_time", strings.TrimSpace(types.StringValue(u.Preferences.Time)),
			"notification_days", sched.Days.Weekdays(),
		)
		c.wrongTime.Add(1)
		return
	}

	lists := u.OpenLists()
	if len(lists) == 0 {
		logger.DebugContext(ctx, "skipping user without open items")
		c.noOpenItems.Add(1)
		return
	}

	rendered, err := d.renderer.Render(u.Name, lists, now, sched.Location)
	if err != nil {
		logger.ErrorContext(ctx, "failed to render reminder email", "error", err)
		c.failed.Add(1)
		return
	}

	switch sender.Deliver(ctx, transport, u.Email, rendered) {
	case email.OutcomeSent:
		c.sent.Add(1)
	case email.OutcomePending:
		c.pending.Add(1)
	default:
		c.failed.Add(1)
	}
}
