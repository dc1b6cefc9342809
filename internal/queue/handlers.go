package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// HandlersRegistry wraps an asynq mux and logs every task's outcome and
// duration, so indexing runs are traceable without per-worker logging.
type HandlersRegistry struct {
	mux    *asynq.ServeMux
	logger *slog.Logger
}

func NewHandlersRegistry(logger *slog.Logger) *HandlersRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &HandlersRegistry{
		mux:    asynq.NewServeMux(),
		logger: logger,
	}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, r.logged(taskType, handler))
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

func (r *HandlersRegistry) logged(taskType string, handler asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		start := time.Now()
		err := handler.ProcessTask(ctx, task)
		if err != nil {
			r.logger.Error("task failed",
				"type", taskType, "duration", time.Since(start), "error", err)
			return err
		}
		r.logger.Info("task done", "type", taskType, "duration", time.Since(start))
		return nil
	})
}
