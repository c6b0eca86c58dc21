package email

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport returns queued results in order and records every message.
type fakeTransport struct {
	mu      sync.Mutex
	results []fakeResult
	sent    []Message
	closed  bool
}

type fakeResult struct {
	res SendResult
	err error
}

func (f *fakeTransport) Send(_ context.Context, msg Message) (SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return SendResult{Accepted: []string{msg.To}}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.res, r.err
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

var testRendered = &RenderedEmail{Subject: DefaultSubject, BodyHTML: "<p>x</p>", BodyText: "x"}

func TestDigestSender_Deliver_Outcomes(t *testing.T) {
	tests := []struct {
		name   string
		result fakeResult
		want   Outcome
	}{
		{"accepted", fakeResult{res: SendResult{Accepted: []string{"a@x.test"}}}, OutcomeSent},
		{"transport error", fakeResult{err: errors.New("connection reset")}, OutcomeFailed},
		{"rejected", fakeResult{res: SendResult{Rejected: []string{"a@x.test"}}}, OutcomeFailed},
		{"pending", fakeResult{res: SendResult{Pending: []string{"a@x.test"}}}, OutcomePending},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := &fakeTransport{results: []fakeResult{tc.result}}
			s := NewDigestSender(SenderConfig{From: "bot@lysje.test"}, nil)

			got := s.Deliver(context.Background(), tr, "a@x.test", testRendered)
			assert.Equal(t, tc.want, got)
			require.Len(t, tr.sent, 1)
		})
	}
}

func TestDigestSender_Deliver_BuildsMessage(t *testing.T) {
	tr := &fakeTransport{}
	s := NewDigestSender(SenderConfig{
		From:    "bot@lysje.test",
		ReplyTo: "help@lysje.test",
		Headers: map[string]string{"X-Lysje-Run-ID": "run-9"},
	}, nil)

	got := s.Deliver(context.Background(), tr, "ada@example.com", testRendered)
	require.Equal(t, OutcomeSent, got)
	require.Len(t, tr.sent, 1)

	msg := tr.sent[0]
	assert.Equal(t, "bot@lysje.test", msg.From)
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, "help@lysje.test", msg.ReplyTo)
	assert.Equal(t, DefaultSubject, msg.Subject)
	assert.Equal(t, "<p>x</p>", msg.HTML)
	assert.Equal(t, "x", msg.Text)
	assert.Equal(t, "run-9", msg.Headers["X-Lysje-Run-ID"])
}

func TestDigestSender_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	boom := fakeResult{err: errors.New("timeout")}
	tr := &fakeTransport{results: []fakeResult{boom, boom}}
	s := NewDigestSender(SenderConfig{From: "bot@lysje.test", BreakerFailures: 2}, nil)
	ctx := context.Background()

	assert.Equal(t, OutcomeFailed, s.Deliver(ctx, tr, "a@x.test", testRendered))
	assert.Equal(t, OutcomeFailed, s.Deliver(ctx, tr, "b@x.test", testRendered))
	// Breaker is open: the transport is not touched again.
	assert.Equal(t, OutcomeFailed, s.Deliver(ctx, tr, "c@x.test", testRendered))
	assert.Len(t, tr.sent, 2)
}

func TestDigestSender_RejectionDoesNotTripBreaker(t *testing.T) {
	rejected := fakeResult{res: SendResult{Rejected: []string{"x"}}}
	tr := &fakeTransport{results: []fakeResult{rejected, rejected, rejected}}
	s := NewDigestSender(SenderConfig{From: "bot@lysje.test", BreakerFailures: 2}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.Deliver(ctx, tr, "a@x.test", testRendered)
	}
	assert.Equal(t, OutcomeSent, s.Deliver(ctx, tr, "ok@x.test", testRendered))
	assert.Len(t, tr.sent, 4)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "sent", OutcomeSent.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
	assert.Equal(t, "pending", OutcomePending.String())
}

func TestDigestSender_RateLimit(t *testing.T) {
	tr := &fakeTransport{}
	s := NewDigestSender(SenderConfig{From: "bot@lysje.test", RateLimit: 20}, nil)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.Equal(t, OutcomeSent, s.Deliver(ctx, tr, "a@x.test", testRendered))
	}
	// Burst of one: the second and third sends wait 50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestDigestSender_RateLimitCancelled(t *testing.T) {
	tr := &fakeTransport{}
	s := NewDigestSender(SenderConfig{From: "bot@lysje.test", RateLimit: 0.001}, nil)

	require.Equal(t, OutcomeSent, s.Deliver(context.Background(), tr, "a@x.test", testRendered))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, OutcomeFailed, s.Deliver(ctx, tr, "b@x.test", testRendered))
	assert.Len(t, tr.sent, 1)
}

type ctxKey struct{}

// ctxTransport records the context each send was given.
type ctxTransport struct {
	got context.Context
}

func (c *ctxTransport) Send(ctx context.Context, msg Message) (SendResult, error) {
	c.got = ctx
	return SendResult{Accepted: []string{msg.To}}, nil
}

func (c *ctxTransport) Close() error { return nil }

func TestDigestSender_SendsWithRunContext(t *testing.T) {
	s := NewDigestSender(SenderConfig{From: "reminders@lysje.test"}, nil)
	tr := &ctxTransport{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "run-1")

	out := s.Deliver(ctx, tr, "ada@example.com", testRendered)
	require.Equal(t, OutcomeSent, out)

	require.NotNil(t, tr.got)
	assert.Equal(t, "run-1", tr.got.Value(ctxKey{}))
	_, hasDeadline := tr.got.Deadline()
	assert.False(t, hasDeadline, "the SMTP connection deadline bounds each send")
}
