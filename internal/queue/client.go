package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kiffhq/kiff/internal/config"
)

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueIndexAPI schedules a background indexing run. The task ID is
// derived from the API name so a run already queued for the same API
// is not queued twice.
func (c *Client) EnqueueIndexAPI(payload IndexAPIPayload) error {
	return c.enqueue(TypeIndexAPI, payload,
		asynq.TaskID(TypeIndexAPI+":"+payload.APIName),
		asynq.MaxRetry(2),
		asynq.Timeout(2*time.Hour),
	)
}

func (c *Client) enqueue(taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.Enqueue(task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
