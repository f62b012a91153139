package workers

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/tablecode/tablecode/internal/lifecycle"
)

// PurgeWorker runs the scheduled retention sweep over soft-deleted
// tenants.
type PurgeWorker struct {
	lifecycle *lifecycle.Service
	logger    *zap.Logger
}

func NewPurgeWorker(svc *lifecycle.Service, logger *zap.Logger) *PurgeWorker {
	return &PurgeWorker{lifecycle: svc, logger: logger}
}

func (w *PurgeWorker) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	purged, err := w.lifecycle.PurgeDue(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("purge sweep completed", zap.Int("purged", purged))
	return nil
}
