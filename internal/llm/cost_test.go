package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCost(t *testing.T) {
	// gpt-4o: $0.005/1K input, $0.015/1K output.
	assert.InDelta(t, 0.005+0.015, CalculateCost("gpt-4o", 1000, 1000), 1e-9)
	assert.InDelta(t, 0.0025, CalculateCost("gpt-4o", 500, 0), 1e-9)
}

func TestCalculateCostUnknownModel(t *testing.T) {
	assert.Zero(t, CalculateCost("some-future-model", 1000, 1000))
}

func TestEmbeddingCost(t *testing.T) {
	// text-embedding-3-small: $0.00002/1K tokens, no output charge.
	assert.InDelta(t, 0.0001, EmbeddingCost("text-embedding-3-small", 5000), 1e-9)
}
