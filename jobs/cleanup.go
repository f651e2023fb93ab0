package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/summitsafety/academy/internal/jobs"
	"github.com/summitsafety/academy/internal/shared"
)

// IdempotencyCleaner prunes applied payment references once they age past the
// retention window. Processors stop redelivering long before that.
type IdempotencyCleaner struct {
	store     *shared.IdempotencyStore
	retention time.Duration
	logger    *slog.Logger
}

// NewIdempotencyCleaner constructs the cleanup handler.
func NewIdempotencyCleaner(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger) *IdempotencyCleaner {
	return &IdempotencyCleaner{store: store, retention: retention, logger: logger}
}

// HandleCleanup processes TaskTypeIdempotencyCleanup tasks.
func (c *IdempotencyCleaner) HandleCleanup(ctx context.Context, t *asynq.Task) error {
	tracker := jobmetrics.NewMetrics(nil).Track(TaskTypeIdempotencyCleanup)
	if err := tracker.End(c.store.Cleanup(ctx, c.retention)); err != nil {
		c.logger.Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	c.logger.Info("idempotency cleanup done", slog.Duration("retention", c.retention))
	return nil
}
