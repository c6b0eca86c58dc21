package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/go-mail"
	"github.com/wneessen/go-mail/smtp"

	"lysje/internal/types"
)

// Message is one outgoing email.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
	Headers map[string]string
}

// SendResult reports what the server did with each recipient.
type SendResult struct {
	Accepted []string
	Rejected []string
	// Pending holds recipients that got a temporary (4xx) failure; delivery
	// is neither confirmed nor refused.
	Pending []string
}

// Transport is an open, authenticated connection to a mail server.
type Transport interface {
	// Send submits msg. Recipient-level outcomes are reported in SendResult;
	// an error means the submission itself failed.
	Send(ctx context.Context, msg Message) (SendResult, error)
	Close() error
}

// Dialer opens a Transport. A successful Dial means the server accepted the
// connection, TLS and credentials.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// SMTPConfig holds the connection settings used by SMTPDialer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password types.SecretString
	// ImplicitTLS starts TLS on connect (port 465); otherwise STARTTLS is
	// used when the server offers it.
	ImplicitTLS bool
	// Timeout bounds the dial and every later message exchange on the
	// connection.
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// SMTPDialer dials SMTP servers using go-mail.
type SMTPDialer struct {
	cfg SMTPConfig
}

// NewSMTPDialer creates a dialer for cfg.
func NewSMTPDialer(cfg SMTPConfig) *SMTPDialer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPDialer{cfg: cfg}
}

func (d *SMTPDialer) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(d.cfg.Port),
		mail.WithSMTPAuthCustom(&negotiatedAuth{
			username: d.cfg.Username,
			password: d.cfg.Password.Unmask(),
			host:     d.cfg.Host,
		}),
		mail.WithTimeout(d.cfg.Timeout),
		mail.WithTLSConfig(&tls.Config{
			ServerName:         d.cfg.Host,
			InsecureSkipVerify: d.cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed relays
			MinVersion:         tls.VersionTLS12,
		}),
	}
	if d.cfg.ImplicitTLS {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	return opts
}

// negotiatedAuth picks PLAIN or LOGIN from the mechanisms the server
// advertises after EHLO, preferring PLAIN. Both refuse to send credentials
// over an unencrypted connection to anything but localhost.
type negotiatedAuth struct {
	username string
	password string
	host     string
	mech     smtp.Auth
}

func (a *negotiatedAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	switch {
	case offers(server.Auth, "PLAIN"):
		a.mech = smtp.PlainAuth("", a.username, a.password, a.host, false)
	case offers(server.Auth, "LOGIN"):
		a.mech = smtp.LoginAuth(a.username, a.password, a.host, false)
	default:
		return "", nil, fmt.Errorf("server offers no supported SMTP AUTH mechanism (have %v, want PLAIN or LOGIN)", server.Auth)
	}
	return a.mech.Start(server)
}

func (a *negotiatedAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	return a.mech.Next(fromServer, more)
}

func offers(mechs []string, want string) bool {
	for _, m := range mechs {
		if strings.EqualFold(m, want) {
			return true
		}
	}
	return false
}

// Dial connects and authenticates. Any failure is reported as
// ErrTransportUnavailable.
func (d *SMTPDialer) Dial(ctx context.Context) (Transport, error) {
	client, err := mail.NewClient(d.cfg.Host, d.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable,
			types.NewAppError(types.ErrCodeUpstreamEmailProvider, "invalid SMTP client configuration", err))
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	if err := client.DialWithContext(dialCtx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable,
			types.NewAppError(types.ErrCodeUpstreamEmailProvider, fmt.Sprintf("failed to connect to %s:%d", d.cfg.Host, d.cfg.Port), err))
	}
	return &smtpTransport{client: client}, nil
}

// smtpTransport serializes sends on the single SMTP connection.
type smtpTransport struct {
	mu     sync.Mutex
	client *mail.Client
}

func (t *smtpTransport) Send(ctx context.Context, msg Message) (SendResult, error) {
	m, err := buildMessage(msg)
	if err != nil {
		// The address never reached the server; treat it as refused.
		return SendResult{Rejected: []string{msg.To}}, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}
	if err := t.client.Send(m); err != nil {
		return classifySendError(msg.To, err)
	}
	return SendResult{Accepted: []string{msg.To}}, nil
}

func (t *smtpTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}

// buildMessage converts msg into a multipart/alternative go-mail message with
// the plain-text part first.
func buildMessage(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidEmail, "invalid from address", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidEmail, "invalid recipient address", err)
	}
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidEmail, "invalid reply-to address", err)
		}
	}
	m.Subject(msg.Subject)
	m.SetMessageID()
	m.SetDate()
	for k, v := range msg.Headers {
		m.SetGenHeader(mail.Header(k), v)
	}
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}

// temporaryError is implemented by go-mail send errors.
type temporaryError interface {
	IsTemp() bool
}

// classifySendError maps a send failure for to onto a SendResult. Temporary
// failures become Pending, permanent RCPT TO refusals become Rejected, and
// anything else is returned as an error.
func classifySendError(to string, err error) (SendResult, error) {
	var te temporaryError
	if errors.As(err, &te) && te.IsTemp() {
		return SendResult{Pending: []string{to}}, nil
	}
	var se *mail.SendError
	if errors.As(err, &se) && se.Reason == mail.ErrSMTPRcptTo {
		return SendResult{Rejected: []string{to}}, nil
	}
	return SendResult{}, types.NewAppError(types.ErrCodeUpstreamEmailProvider, "smtp send failed", err)
}
