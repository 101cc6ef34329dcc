// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package auth

import (
	"context"
	"log/slog"
)

// Notifier delivers one-time tokens to account holders.
type Notifier interface {
	// SendVerification delivers an email-verification token.
	SendVerification(ctx context.Context, account *Account, token string) error

	// SendPasswordReset delivers a password-reset token.
	SendPasswordReset(ctx context.Context, account *Account, token string) error
}

// LogNotifier writes tokens to the log at debug level. For development only.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

// SendVerification logs the verification token.
func (n *LogNotifier) SendVerification(ctx context.Context, account *Account, token string) error {
	n.logger.DebugContext(ctx, "verification token issued",
		"account_id", account.ID.String(),
		"email", account.Email,
		"token", token,
	)
	return nil
}

// SendPasswordReset logs the reset token.
func (n *LogNotifier) SendPasswordReset(ctx context.Context, account *Account, token string) error {
	n.logger.DebugContext(ctx, "password reset token issued",
		"account_id", account.ID.String(),
		"email", account.Email,
		"token", token,
	)
	return nil
}
