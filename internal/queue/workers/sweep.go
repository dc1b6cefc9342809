package workers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/kiffhq/kiff/internal/indexcache"
)

// SweepWorker expires stale cache entries on a schedule. Lazy checks
// on read cover the window between sweeps.
type SweepWorker struct {
	cache  *indexcache.Service
	logger *slog.Logger
}

func NewSweepWorker(cache *indexcache.Service, logger *slog.Logger) *SweepWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepWorker{cache: cache, logger: logger}
}

func (w *SweepWorker) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	n, err := w.cache.ExpireStale(ctx)
	if err != nil {
		return fmt.Errorf("expire stale entries: %w", err)
	}
	w.logger.Info("cache sweep complete", "expired", n)
	return nil
}
