package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Stage identifies one phase of an ingestion run. Stages always execute
// in the order of stageOrder; a progress subscriber sees exactly one
// snapshot per stage.
type Stage string

const (
	StageURLPrioritization   Stage = "url_prioritization"
	StageContentAnalysis     Stage = "content_analysis"
	StageChunking            Stage = "chunking"
	StageQualityVerification Stage = "quality_verification"
	StageVectorization       Stage = "vectorization"
	StageIndexing            Stage = "indexing"
)

var stageOrder = []Stage{
	StageURLPrioritization,
	StageContentAnalysis,
	StageChunking,
	StageQualityVerification,
	StageVectorization,
	StageIndexing,
}

// StageOrder returns the fixed stage sequence of a run.
func StageOrder() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

type RunStatus string

const (
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusError      RunStatus = "error"
)

// Terminal reports whether a run in this status will never change again.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// DomainConfig is the identity and scope of one ingestion job. It is
// immutable once a run starts.
type DomainConfig struct {
	Name               string   `json:"name"`
	DisplayName        string   `json:"display_name"`
	Description        string   `json:"description"`
	Sources            []string `json:"sources"`
	Priority           int      `json:"priority"`
	ExtractionStrategy string   `json:"extraction_strategy"`
	Keywords           []string `json:"keywords"`
}

// RAGMetrics is the progress record for one run. The engine mutates its
// own copy and emits immutable snapshots; once Status is terminal no
// further snapshot follows.
type RAGMetrics struct {
	PipelineID            uuid.UUID `json:"pipeline_id"`
	Domain                string    `json:"domain"`
	Stage                 Stage     `json:"stage"`
	Status                RunStatus `json:"status"`
	StartTime             time.Time `json:"start_time"`
	EndTime               time.Time `json:"end_time,omitempty"`
	URLsProcessed         int       `json:"urls_processed"`
	ChunksCreated         int       `json:"chunks_created"`
	TokensUsed            int       `json:"tokens_used"`
	CostUSD               float64   `json:"cost_usd"`
	QualityScore          float64   `json:"quality_score"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
	ErrorMessage          string    `json:"error_message,omitempty"`
}

// ProcessedChunk is one unit of vectorized knowledge owned by a domain
// collection.
type ProcessedChunk struct {
	Content      string                 `json:"content"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	QualityScore float64                `json:"quality_score"`
	ChunkType    string                 `json:"chunk_type"`
	SourceURL    string                 `json:"source_url"`
	Domain       string                 `json:"domain"`
	Embedding    []float32              `json:"-"`
}
