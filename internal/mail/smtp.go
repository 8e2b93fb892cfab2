// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package mail

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"

	"github.com/wordapp/wordapp/internal/auth"
)

// TLS policies accepted in SMTPConfig.TLS.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      string
	Timeout  time.Duration
}

// Sender delivers composed messages. *gomail.Client implements it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPMailer implements auth.Mailer over SMTP.
type SMTPMailer struct {
	sender      Sender
	from        string
	links       Links
	resetExpiry time.Duration
	logger      *slog.Logger
}

var _ auth.Mailer = (*SMTPMailer)(nil)

// NewSMTPClient creates a go-mail client for cfg.
func NewSMTPClient(cfg SMTPConfig) (*gomail.Client, error) {
	policy, err := tlsPolicy(cfg.TLS)
	if err != nil {
		return nil, err
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(policy),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("host", cfg.Host).With("port", cfg.Port).Wrap(err)
	}
	return client, nil
}

func tlsPolicy(name string) (gomail.TLSPolicy, error) {
	switch name {
	case "", TLSOpportunistic:
		return gomail.TLSOpportunistic, nil
	case TLSMandatory:
		return gomail.TLSMandatory, nil
	case TLSNone:
		return gomail.NoTLS, nil
	default:
		return gomail.NoTLS, oops.Code("MAIL_CONFIG_INVALID").With("tls", name).Errorf("unknown TLS policy %q", name)
	}
}

// NewSMTPMailer creates a mailer that sends through sender as from.
func NewSMTPMailer(sender Sender, from string, links Links, resetExpiry time.Duration, logger *slog.Logger) (*SMTPMailer, error) {
	if sender == nil {
		return nil, oops.Errorf("sender is required")
	}
	if from == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("from address is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SMTPMailer{
		sender:      sender,
		from:        from,
		links:       links,
		resetExpiry: resetExpiry,
		logger:      logger,
	}, nil
}

// SendActivation mails the activation link.
func (m *SMTPMailer) SendActivation(ctx context.Context, user *auth.User, token string) error {
	msg, err := RenderActivation(m.links, user, token)
	if err != nil {
		return err
	}
	return m.send(ctx, "activation", msg)
}

// SendPasswordReset mails the password reset link.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, user *auth.User, token string) error {
	msg, err := RenderPasswordReset(m.links, user, token, m.resetExpiry)
	if err != nil {
		return err
	}
	return m.send(ctx, "password_reset", msg)
}

func (m *SMTPMailer) send(ctx context.Context, kind string, msg Message) error {
	composed, err := m.compose(msg)
	if err != nil {
		return oops.Code("MAIL_COMPOSE_FAILED").With("kind", kind).Wrap(err)
	}
	if err := m.sender.DialAndSendWithContext(ctx, composed); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("kind", kind).Wrap(err)
	}
	m.logger.DebugContext(ctx, "mail sent", "kind", kind)
	return nil
}

// compose builds a UTF-8 message with 8bit transfer encoding.
func (m *SMTPMailer) compose(msg Message) (*gomail.Msg, error) {
	out := gomail.NewMsg(
		gomail.WithCharset(gomail.CharsetUTF8),
		gomail.WithEncoding(gomail.NoEncoding),
	)
	if err := out.From(m.from); err != nil {
		return nil, oops.With("operation", "set from").Wrap(err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, oops.With("operation", "set recipient").Wrap(err)
	}
	out.Subject(msg.Subject)
	out.SetDate()
	out.SetMessageID()
	out.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return out, nil
}
