package discovery

import (
	"context"

	"github.com/kiffhq/kiff/internal/llm"
)

// Discoverer enumerates candidate documentation URLs for a base URL.
// The returned usage covers any LLM calls the strategy made, so the
// pipeline can fold discovery cost into the run's token accounting.
type Discoverer interface {
	Discover(ctx context.Context, baseURL string) ([]string, llm.Usage, error)
}
