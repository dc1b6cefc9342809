package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiffhq/kiff/internal/config"
	"github.com/kiffhq/kiff/internal/discovery"
	"github.com/kiffhq/kiff/internal/embedding"
	"github.com/kiffhq/kiff/internal/llm"
	"github.com/kiffhq/kiff/internal/vectorstore"
	"github.com/kiffhq/kiff/pkg/chunker"
	"github.com/kiffhq/kiff/pkg/tokenizer"
)

// StandardEngineName is the registry key of the default implementation.
const StandardEngineName = "standard"

// StandardEngine is the sequential six-stage ingestion engine. Multiple
// domains may be processed concurrently; each run owns its own metrics
// and only shares the vector store, which isolates writes per domain
// collection.
type StandardEngine struct {
	store    vectorstore.VectorStore
	embedder *embedding.Service
	disc     discovery.Discoverer
	fallback discovery.Discoverer
	fetcher  *contentFetcher
	cfg      config.PipelineConfig
	progress func(RAGMetrics)

	mu    sync.RWMutex
	runs  map[uuid.UUID]RAGMetrics
	ready bool
}

type Option func(*StandardEngine)

// WithProgress installs a callback invoked with every emitted snapshot,
// in addition to the returned stream.
func WithProgress(fn func(RAGMetrics)) Option {
	return func(e *StandardEngine) { e.progress = fn }
}

// WithFallbackDiscoverer sets the strategy used when primary discovery
// finds nothing (typically search-based discovery).
func WithFallbackDiscoverer(d discovery.Discoverer) Option {
	return func(e *StandardEngine) { e.fallback = d }
}

func NewStandardEngine(store vectorstore.VectorStore, embedder *embedding.Service, disc discovery.Discoverer, cfg config.PipelineConfig, opts ...Option) *StandardEngine {
	e := &StandardEngine{
		store:    store,
		embedder: embedder,
		disc:     disc,
		fetcher:  newContentFetcher(cfg.FetchTimeout, cfg.FetchConcurrency),
		cfg:      cfg,
		runs:     make(map[uuid.UUID]RAGMetrics),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *StandardEngine) Initialize(ctx context.Context) error {
	if e.store == nil || e.embedder == nil {
		return errors.New("engine requires a vector store and an embedder")
	}
	e.mu.Lock()
	e.ready = true
	e.mu.Unlock()
	return nil
}

// ProcessDomain starts a run and returns its metrics stream. The stream
// yields one snapshot per completed stage and always terminates with a
// terminal-status snapshot, including on cancellation.
func (e *StandardEngine) ProcessDomain(ctx context.Context, cfg DomainConfig) (<-chan RAGMetrics, error) {
	if cfg.Name == "" {
		return nil, errors.New("domain config requires a name")
	}

	e.mu.RLock()
	ready := e.ready
	e.mu.RUnlock()
	if !ready {
		return nil, errors.New("engine not initialized")
	}

	m := RAGMetrics{
		PipelineID: uuid.New(),
		Domain:     cfg.Name,
		Status:     StatusProcessing,
		StartTime:  time.Now(),
	}
	e.storeSnapshot(m)

	ch := make(chan RAGMetrics, len(stageOrder)+1)
	go e.run(ctx, cfg, m, ch)
	return ch, nil
}

func (e *StandardEngine) run(ctx context.Context, cfg DomainConfig, m RAGMetrics, ch chan<- RAGMetrics) {
	defer close(ch)

	emit := func() {
		m.ProcessingTimeSeconds = time.Since(m.StartTime).Seconds()
		e.storeSnapshot(m)
		if e.progress != nil {
			e.progress(m)
		}
		ch <- m
	}

	fail := func(stage Stage, err error) {
		if ctx.Err() != nil {
			err = fmt.Errorf("run cancelled: %w", ctx.Err())
		}
		m.Stage = stage
		m.Status = StatusError
		m.ErrorMessage = err.Error()
		m.EndTime = time.Now()
		slog.Error("pipeline run failed", "pipeline_id", m.PipelineID, "domain", m.Domain, "stage", stage, "error", err)
		emit()
	}

	// URL_PRIORITIZATION
	urls, usage := e.discoverURLs(ctx, cfg)
	m.TokensUsed += usage.TotalTokens
	m.CostUSD += usage.CostUSD
	if len(urls) == 0 {
		fail(StageURLPrioritization, errors.New("no candidate documentation URLs discovered"))
		return
	}
	urls = prioritizeURLs(urls, cfg)
	if len(urls) > e.cfg.MaxURLs && e.cfg.MaxURLs > 0 {
		urls = urls[:e.cfg.MaxURLs]
	}
	m.Stage = StageURLPrioritization
	m.URLsProcessed = len(urls)
	emit()

	// CONTENT_ANALYSIS
	pages, failed, err := e.fetcher.fetchAll(ctx, urls)
	if err != nil {
		fail(StageContentAnalysis, err)
		return
	}
	if len(pages) == 0 {
		fail(StageContentAnalysis, fmt.Errorf("all %d URLs failed to fetch", len(urls)))
		return
	}
	if failed > 0 {
		slog.Warn("some URLs skipped during content analysis",
			"pipeline_id", m.PipelineID, "domain", m.Domain, "failed", failed)
	}
	m.Stage = StageContentAnalysis
	m.URLsProcessed = len(pages)
	emit()

	// CHUNKING
	chunks := e.chunkPages(cfg, pages)
	if len(chunks) == 0 {
		fail(StageChunking, errors.New("no chunks generated from fetched content"))
		return
	}
	m.Stage = StageChunking
	m.ChunksCreated = len(chunks)
	emit()

	// QUALITY_VERIFICATION
	kept := chunks[:0]
	var qualitySum float64
	for _, c := range chunks {
		if c.QualityScore >= e.cfg.QualityThreshold {
			kept = append(kept, c)
			qualitySum += c.QualityScore
		}
	}
	chunks = kept
	if len(chunks) == 0 {
		fail(StageQualityVerification, errors.New("no chunks passed quality verification"))
		return
	}
	m.Stage = StageQualityVerification
	m.QualityScore = qualitySum / float64(len(chunks))
	emit()

	// VECTORIZATION
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, embedUsage, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		fail(StageVectorization, fmt.Errorf("vectorize chunks: %w", err))
		return
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	m.Stage = StageVectorization
	m.TokensUsed += embedUsage.TotalTokens
	m.CostUSD += embedUsage.CostUSD
	emit()

	// INDEXING
	if err := e.index(ctx, cfg.Name, chunks); err != nil {
		fail(StageIndexing, err)
		return
	}
	m.Stage = StageIndexing
	m.Status = StatusCompleted
	m.EndTime = time.Now()
	slog.Info("pipeline run completed",
		"pipeline_id", m.PipelineID, "domain", m.Domain,
		"urls", m.URLsProcessed, "chunks", len(chunks),
		"tokens", m.TokensUsed, "cost_usd", m.CostUSD)
	emit()
}

// discoverURLs merges explicitly configured sources with discovered
// pages. A discovery failure for one source degrades, it never aborts.
func (e *StandardEngine) discoverURLs(ctx context.Context, cfg DomainConfig) ([]string, llm.Usage) {
	var usage llm.Usage
	seen := make(map[string]bool)
	var urls []string

	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}

	for _, src := range cfg.Sources {
		add(src)
	}

	discovered := false
	for _, src := range cfg.Sources {
		found, u, err := e.disc.Discover(ctx, src)
		usage.Add(u)
		if err != nil {
			slog.Warn("primary discovery failed for source", "domain", cfg.Name, "source", src, "error", err)
			continue
		}
		if len(found) > 0 {
			discovered = true
		}
		for _, f := range found {
			add(f)
		}
	}

	if !discovered && e.fallback != nil {
		for _, src := range cfg.Sources {
			found, u, err := e.fallback.Discover(ctx, src)
			usage.Add(u)
			if err != nil {
				slog.Warn("fallback discovery failed for source", "domain", cfg.Name, "source", src, "error", err)
				continue
			}
			for _, f := range found {
				add(f)
			}
		}
	}

	return urls, usage
}

func (e *StandardEngine) chunkPages(cfg DomainConfig, pages []pageContent) []ProcessedChunk {
	opts := chunker.Options{
		ChunkSize:    e.cfg.ChunkSize,
		ChunkOverlap: e.cfg.ChunkOverlap,
		Strategy:     cfg.ExtractionStrategy,
	}

	var out []ProcessedChunk
	for _, page := range pages {
		for _, tc := range chunker.Split(page.Text, opts) {
			out = append(out, ProcessedChunk{
				Content:      tc.Content,
				QualityScore: scoreChunkQuality(tc.Content, cfg.Keywords),
				ChunkType:    classifyChunkType(tc.Content),
				SourceURL:    page.URL,
				Domain:       cfg.Name,
				Metadata: map[string]interface{}{
					"format":      page.Format,
					"chunk_index": tc.Index,
				},
			})
		}
	}
	return out
}

func (e *StandardEngine) index(ctx context.Context, domain string, chunks []ProcessedChunk) error {
	if err := e.store.EnsureCollection(ctx, domain); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	rows := make([]vectorstore.Chunk, len(chunks))
	for i, c := range chunks {
		rows[i] = vectorstore.Chunk{
			ID:           uuid.New(),
			Domain:       domain,
			SourceURL:    c.SourceURL,
			ChunkType:    c.ChunkType,
			ChunkIndex:   i,
			Content:      c.Content,
			Embedding:    c.Embedding,
			QualityScore: c.QualityScore,
			TokenCount:   tokenizer.CountTokens(c.Content),
			Metadata:     c.Metadata,
		}
	}

	if err := e.store.Upsert(ctx, rows); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	return nil
}

// SearchKnowledge queries the domain collection. A domain with no
// collection yields an empty result, not an error.
func (e *StandardEngine) SearchKnowledge(ctx context.Context, domain, query string, limit int) ([]ProcessedChunk, error) {
	if limit <= 0 {
		limit = 10
	}

	exists, err := e.store.HasCollection(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		return []ProcessedChunk{}, nil
	}

	queryVec, _, err := e.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := e.store.SimilaritySearch(ctx, queryVec, vectorstore.SearchOptions{
		Domain: domain,
		TopK:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	chunks := make([]ProcessedChunk, len(results))
	for i, r := range results {
		chunks[i] = ProcessedChunk{
			Content:      r.Content,
			Metadata:     r.Metadata,
			QualityScore: r.QualityScore,
			ChunkType:    r.ChunkType,
			SourceURL:    r.SourceURL,
			Domain:       r.Domain,
		}
	}
	return chunks, nil
}

func (e *StandardEngine) Metrics(pipelineID uuid.UUID) (RAGMetrics, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.runs[pipelineID]
	return m, ok
}

func (e *StandardEngine) HealthCheck(ctx context.Context) error {
	e.mu.RLock()
	ready := e.ready
	e.mu.RUnlock()
	if !ready {
		return errors.New("engine not initialized")
	}
	if _, err := e.store.HasCollection(ctx, "healthcheck"); err != nil {
		return fmt.Errorf("vector store unreachable: %w", err)
	}
	return nil
}

// Cleanup removes a domain's collection and forgets finished runs for it.
func (e *StandardEngine) Cleanup(ctx context.Context, domain string) error {
	if err := e.store.DeleteCollection(ctx, domain); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}

	e.mu.Lock()
	for id, m := range e.runs {
		if m.Domain == domain && m.Status.Terminal() {
			delete(e.runs, id)
		}
	}
	e.mu.Unlock()
	return nil
}

func (e *StandardEngine) storeSnapshot(m RAGMetrics) {
	e.mu.Lock()
	e.runs[m.PipelineID] = m
	e.mu.Unlock()
}
