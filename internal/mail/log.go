// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package mail

import (
	"context"
	"log/slog"
	"time"

	"github.com/wordapp/wordapp/internal/auth"
)

// LogMailer writes messages to a logger instead of sending them. It is the
// development mailer: the links appear in the server log.
type LogMailer struct {
	links       Links
	resetExpiry time.Duration
	logger      *slog.Logger
}

var _ auth.Mailer = (*LogMailer)(nil)

// NewLogMailer creates a LogMailer. A nil logger uses slog.Default.
func NewLogMailer(links Links, resetExpiry time.Duration, logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{links: links, resetExpiry: resetExpiry, logger: logger}
}

// SendActivation logs the activation link.
func (m *LogMailer) SendActivation(ctx context.Context, user *auth.User, token string) error {
	msg, err := RenderActivation(m.links, user, token)
	if err != nil {
		return err
	}
	m.log(ctx, "activation", msg, m.links.Activation(token, user.Email))
	return nil
}

// SendPasswordReset logs the reset link.
func (m *LogMailer) SendPasswordReset(ctx context.Context, user *auth.User, token string) error {
	msg, err := RenderPasswordReset(m.links, user, token, m.resetExpiry)
	if err != nil {
		return err
	}
	m.log(ctx, "password_reset", msg, m.links.PasswordReset(token, user.Email))
	return nil
}

func (m *LogMailer) log(ctx context.Context, kind string, msg Message, link string) {
	m.logger.InfoContext(ctx, "mail not sent, logging instead",
		"kind", kind,
		"to", msg.To,
		"subject", msg.Subject,
		"link", link)
}
