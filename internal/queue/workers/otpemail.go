package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/tablecode/tablecode/internal/notify"
	"github.com/tablecode/tablecode/internal/queue"
)

type OTPEmailWorker struct {
	mailer notify.Mailer
	logger *zap.Logger
}

func NewOTPEmailWorker(mailer notify.Mailer, logger *zap.Logger) *OTPEmailWorker {
	return &OTPEmailWorker{mailer: mailer, logger: logger}
}

func (w *OTPEmailWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.OTPEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := w.mailer.SendOTPEmail(ctx, payload.Email, payload.Code, payload.OTP); err != nil {
		return fmt.Errorf("send otp email: %w", err)
	}

	w.logger.Info("otp email delivered", zap.String("code", payload.Code))
	return nil
}
