package email

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Outcome is the per-recipient result of a delivery attempt.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeSent
	// OutcomePending means the server deferred the message with a temporary
	// error. It is neither counted as sent nor as failed.
	OutcomePending
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomePending:
		return "pending"
	default:
		return "failed"
	}
}

// SenderConfig configures a DigestSender.
type SenderConfig struct {
	From    string
	ReplyTo string
	// Headers are added to every message.
	Headers map[string]string
	// BreakerFailures is the number of consecutive transport errors after
	// which remaining sends fail fast.
	BreakerFailures uint32
	// RateLimit caps sends per second across the run. Zero means unlimited.
	RateLimit float64
}

// DigestSender delivers rendered digests over a Transport. Each recipient
// gets exactly one attempt; there is no retry. A sender is meant to serve a
// single dispatch run: once its breaker opens it stays open.
type DigestSender struct {
	cfg     SenderConfig
	breaker *gobreaker.CircuitBreaker[SendResult]
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewDigestSender creates a sender. A nil logger falls back to slog.Default.
func NewDigestSender(cfg SenderConfig, logger *slog.Logger) *DigestSender {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	threshold := cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker[SendResult](gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     24 * time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("smtp circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &DigestSender{cfg: cfg, breaker: cb, limiter: limiter, logger: logger}
}

// Deliver sends rendered to the recipient and classifies the result. It never
// returns an error: every failure is logged and reported as OutcomeFailed.
func (s *DigestSender) Deliver(ctx context.Context, transport Transport, to string, rendered *RenderedEmail) Outcome {
	msg := Message{
		From:    s.cfg.From,
		To:      to,
		ReplyTo: s.cfg.ReplyTo,
		Subject: rendered.Subject,
		HTML:    rendered.BodyHTML,
		Text:    rendered.BodyText,
		Headers: s.cfg.Headers,
	}

	dest := RedactEmail(to)
	if err := s.limiter.Wait(ctx); err != nil {
		s.logger.ErrorContext(ctx, "email not sent, run cancelled while throttled", "dest", dest, "error", err)
		return OutcomeFailed
	}

	res, err := s.breaker.Execute(func() (SendResult, error) {
		return transport.Send(ctx, msg)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		s.logger.ErrorContext(ctx, "email not sent, mail server circuit open", "dest", dest)
		return OutcomeFailed
	case err != nil:
		s.logger.ErrorContext(ctx, "failed to send email", "dest", dest, "error", err)
		return OutcomeFailed
	case len(res.Rejected) > 0:
		s.logger.ErrorContext(ctx, "mail server rejected recipient", "dest", dest, "rejected", RedactEmails(res.Rejected))
		return OutcomeFailed
	case len(res.Pending) > 0:
		s.logger.WarnContext(ctx, "email delivery pending", "dest", dest, "pending", RedactEmails(res.Pending))
		return OutcomePending
	default:
		s.logger.InfoContext(ctx, "email sent", "dest", dest)
		return OutcomeSent
	}
}
