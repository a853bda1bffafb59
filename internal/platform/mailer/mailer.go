// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

/*
Package mailer defines the outbound email collaborator boundary.

Actual delivery (SMTP, SES, transactional provider) lives outside this
service. This package carries the contract plus a structured-log
implementation used in development and as the default wiring until the
delivery worker is attached.
*/
package mailer

import (
	"context"
	"log/slog"
)

// Mailer dispatches lifecycle emails to account holders.
type Mailer interface {
	// SendPasswordReset delivers a reset link containing the opaque secret.
	SendPasswordReset(ctx context.Context, email, secret string) error

	// SendEmailVerification delivers a verification link containing the opaque secret.
	SendEmailVerification(ctx context.Context, email, secret string) error
}

// LogMailer writes mail events to the structured log instead of delivering.
//
// # Security
//
// The secret itself is never logged — only the recipient and the kind of
// message. Operators confirm dispatch without being able to replay tokens.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer constructs a [LogMailer].
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendPasswordReset implements [Mailer].
func (m *LogMailer) SendPasswordReset(ctx context.Context, email, secret string) error {
	m.logger.InfoContext(ctx, "mail_dispatch",
		slog.String("template", "password_reset"),
		slog.String("to", email),
	)
	return nil
}

// SendEmailVerification implements [Mailer].
func (m *LogMailer) SendEmailVerification(ctx context.Context, email, secret string) error {
	m.logger.InfoContext(ctx, "mail_dispatch",
		slog.String("template", "email_verification"),
		slog.String("to", email),
	)
	return nil
}
