package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/kiffhq/kiff/internal/indexcache"
	"github.com/kiffhq/kiff/internal/queue"
)

// IndexingWorker runs pre-indexing jobs off the request path.
type IndexingWorker struct {
	cache  *indexcache.Service
	logger *slog.Logger
}

func NewIndexingWorker(cache *indexcache.Service, logger *slog.Logger) *IndexingWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexingWorker{cache: cache, logger: logger}
}

func (w *IndexingWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.IndexAPIPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	w.logger.Info("indexing api", "api", payload.APIName, "force", payload.Force)

	ok, entry, err := w.cache.AdminPreIndexAPI(ctx, payload.APIName, payload.Force)
	if err != nil {
		if errors.Is(err, indexcache.ErrNotFound) {
			// Unknown API will never succeed; do not retry.
			w.logger.Error("api not in catalog, dropping task", "api", payload.APIName)
			return nil
		}
		return fmt.Errorf("index %s: %w", payload.APIName, err)
	}

	if !ok && entry != nil && entry.Status == indexcache.StatusIndexing {
		w.logger.Info("indexing already in flight", "api", payload.APIName)
		return nil
	}

	w.logger.Info("indexing finished",
		"api", payload.APIName,
		"status", entry.Status,
		"urls", entry.TotalURLsIndexed,
		"cost_usd", entry.OriginalIndexingCost,
	)
	return nil
}
