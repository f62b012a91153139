// Package notify delivers owner-facing email. The default implementation
// only logs that a send happened; a real provider slots in behind Mailer.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type Mailer interface {
	SendOTPEmail(ctx context.Context, to, code, otp string) error
}

// LogMailer records deliveries without a provider, for development and
// staging. The OTP itself is never logged.
type LogMailer struct {
	From   string
	Logger *zap.Logger
}

func (m *LogMailer) SendOTPEmail(_ context.Context, to, code, otp string) error {
	if to == "" {
		return fmt.Errorf("empty recipient")
	}
	m.Logger.Info("otp email sent",
		zap.String("from", m.From),
		zap.String("to", maskRecipient(to)),
		zap.String("code", code),
		zap.Int("otp_len", len(otp)))
	return nil
}

func maskRecipient(to string) string {
	for i, r := range to {
		if r == '@' && i > 0 {
			return to[:1] + "***" + to[i:]
		}
	}
	return "***"
}
