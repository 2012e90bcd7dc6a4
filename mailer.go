package authcore

import (
	"context"
	"log/slog"

	"github.com/giantswarm/authcore/internal/util"
)

// Mailer delivers confirmation and password-reset tokens to users.
// Email delivery is an external concern; the service only hands over
// the address and the single-purpose token.
type Mailer interface {
	// SendConfirmation delivers an email confirmation token.
	SendConfirmation(ctx context.Context, email, token string) error

	// SendPasswordReset delivers a password reset token.
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogMailer logs outbound mail instead of delivering it. Useful for
// development and tests.
type LogMailer struct {
	Logger *slog.Logger
}

var _ Mailer = (*LogMailer)(nil)

func (m *LogMailer) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// SendConfirmation logs the confirmation request.
func (m *LogMailer) SendConfirmation(ctx context.Context, email, token string) error {
	m.logger().Info("Confirmation email requested",
		"email", email,
		"token", util.SafeTruncate(token, 8))
	return nil
}

// SendPasswordReset logs the reset request.
func (m *LogMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	m.logger().Info("Password reset email requested",
		"email", email,
		"token", util.SafeTruncate(token, 8))
	return nil
}
