package embedding

import (
	"context"
	"fmt"

	"github.com/kiffhq/kiff/internal/llm"
)

// Service batches embedding calls through the LLM gateway and reports
// the provider-billed usage alongside the vectors, so callers can
// account indexing cost from authoritative numbers.
type Service struct {
	gateway llm.Gateway
	model   string
}

func NewService(gw llm.Gateway, model string) *Service {
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &Service{gateway: gw, model: model}
}

func (s *Service) Model() string { return s.model }

// Embed returns one vector per input text plus the summed usage across
// all batches.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, llm.Usage, error) {
	var usage llm.Usage
	if len(texts) == 0 {
		return nil, usage, nil
	}

	// Batch in groups of 100 for API limits
	const batchSize = 100
	var allEmbeddings [][]float32

	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		resp, err := s.gateway.Embed(ctx, llm.EmbeddingRequest{
			Model: s.model,
			Input: batch,
		})
		if err != nil {
			return nil, usage, fmt.Errorf("embed batch %d: %w", i/batchSize, err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, usage, fmt.Errorf("embed batch %d: got %d vectors for %d inputs", i/batchSize, len(resp.Embeddings), len(batch))
		}

		allEmbeddings = append(allEmbeddings, resp.Embeddings...)
		usage.Add(resp.Usage)
	}

	return allEmbeddings, usage, nil
}

// EmbedSingle embeds one text, typically a search query.
func (s *Service) EmbedSingle(ctx context.Context, text string) ([]float32, llm.Usage, error) {
	embeddings, usage, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, usage, err
	}
	if len(embeddings) == 0 {
		return nil, usage, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], usage, nil
}
