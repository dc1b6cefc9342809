package vectorstore

import (
	"context"

	"github.com/google/uuid"
)

// Chunk is one embedded unit of knowledge belonging to a domain
// collection.
type Chunk struct {
	ID           uuid.UUID
	Domain       string
	SourceURL    string
	ChunkType    string
	ChunkIndex   int
	Content      string
	Embedding    []float32
	QualityScore float64
	TokenCount   int
	Metadata     map[string]interface{}
}

// SearchOptions scopes a search to one domain. Metadata entries, when
// set, must all be present in a chunk's metadata for it to match; this
// is how tenant- or session-scoped subsets are carved out of a shared
// collection.
type SearchOptions struct {
	Domain   string
	TopK     int
	MinScore float64
	Metadata map[string]interface{}
}

type SearchResult struct {
	ChunkID      uuid.UUID              `json:"chunk_id"`
	Domain       string                 `json:"domain"`
	SourceURL    string                 `json:"source_url"`
	ChunkType    string                 `json:"chunk_type"`
	Content      string                 `json:"content"`
	Score        float64                `json:"score"`
	QualityScore float64                `json:"quality_score"`
	ChunkIndex   int                    `json:"chunk_index"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// VectorStore is the boundary contract to the vector database. Each
// domain owns a disjoint collection; concurrent writers to different
// domains must not interfere.
type VectorStore interface {
	EnsureCollection(ctx context.Context, domain string) error
	HasCollection(ctx context.Context, domain string) (bool, error)
	Upsert(ctx context.Context, chunks []Chunk) error
	SimilaritySearch(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error)
	HybridSearch(ctx context.Context, query string, queryVec []float32, opts SearchOptions) ([]SearchResult, error)
	DeleteCollection(ctx context.Context, domain string) error
}
