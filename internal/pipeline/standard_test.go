package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiffhq/kiff/internal/config"
	"github.com/kiffhq/kiff/internal/discovery"
	"github.com/kiffhq/kiff/internal/embedding"
	"github.com/kiffhq/kiff/internal/llm"
	"github.com/kiffhq/kiff/internal/vectorstore"
)

// fakeGateway returns deterministic vectors and usage so runs are
// reproducible without providers.
type fakeGateway struct{}

func (f *fakeGateway) Chat(_ context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: ""}, nil
}

func (f *fakeGateway) Embed(_ context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	vecs := make([][]float32, len(req.Input))
	for i := range vecs {
		vecs[i] = []float32{0.1, 0.2, 0.3}
	}
	return &llm.EmbeddingResponse{
		Embeddings: vecs,
		Usage: llm.Usage{
			InputTokens: 10 * len(req.Input),
			TotalTokens: 10 * len(req.Input),
			CostUSD:     0.001 * float64(len(req.Input)),
		},
	}, nil
}

func (f *fakeGateway) Provider(string) (llm.Provider, error) {
	return nil, errors.New("no providers configured")
}

func (f *fakeGateway) ListModels() []llm.ModelInfo { return nil }

// fakeStore is an in-memory VectorStore.
type fakeStore struct {
	mu          sync.Mutex
	collections map[string]bool
	chunks      map[string][]vectorstore.Chunk
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collections: make(map[string]bool),
		chunks:      make(map[string][]vectorstore.Chunk),
	}
}

func (s *fakeStore) EnsureCollection(_ context.Context, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[domain] = true
	return nil
}

func (s *fakeStore) HasCollection(_ context.Context, domain string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collections[domain], nil
}

func (s *fakeStore) Upsert(_ context.Context, chunks []vectorstore.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.Domain] = append(s.chunks[c.Domain], c)
	}
	return nil
}

func (s *fakeStore) SimilaritySearch(_ context.Context, _ []float32, opts vectorstore.SearchOptions) ([]vectorstore.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []vectorstore.SearchResult
	for _, c := range s.chunks[opts.Domain] {
		out = append(out, vectorstore.SearchResult{
			ChunkID:      c.ID,
			Domain:       c.Domain,
			SourceURL:    c.SourceURL,
			ChunkType:    c.ChunkType,
			Content:      c.Content,
			ChunkIndex:   c.ChunkIndex,
			QualityScore: c.QualityScore,
			Score:        0.9,
		})
		if len(out) >= opts.TopK {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) HybridSearch(ctx context.Context, _ string, queryVec []float32, opts vectorstore.SearchOptions) ([]vectorstore.SearchResult, error) {
	return s.SimilaritySearch(ctx, queryVec, opts)
}

func (s *fakeStore) DeleteCollection(_ context.Context, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, domain)
	delete(s.chunks, domain)
	return nil
}

// staticDiscoverer returns a fixed URL set.
type staticDiscoverer struct {
	urls []string
	err  error
}

func (d *staticDiscoverer) Discover(_ context.Context, _ string) ([]string, llm.Usage, error) {
	if d.err != nil {
		return nil, llm.Usage{}, d.err
	}
	return d.urls, llm.Usage{TotalTokens: 5, CostUSD: 0.0001}, nil
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		ChunkSize:        500,
		ChunkOverlap:     50,
		QualityThreshold: 0.5,
		MaxURLs:          10,
		FetchTimeout:     5 * time.Second,
		FetchConcurrency: 2,
	}
}

func docsServer(t *testing.T) *httptest.Server {
	t.Helper()

	page := func(topic string) string {
		body := strings.Repeat(
			fmt.Sprintf("The payments API %s accepts charge objects over HTTPS and returns JSON. ", topic), 6) +
			"See https://docs.example.com/payments for the full reference."
		return "<html><body><nav>skip me</nav><p>" + body + "</p></body></html>"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page("overview"))
	})
	mux.HandleFunc("/docs/api", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page("endpoint reference"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestEngine(t *testing.T, store vectorstore.VectorStore, disc discovery.Discoverer) *StandardEngine {
	t.Helper()

	engine := NewStandardEngine(store, embedding.NewService(&fakeGateway{}, ""), disc, testPipelineConfig())
	require.NoError(t, engine.Initialize(context.Background()))
	return engine
}

func collectSnapshots(t *testing.T, ch <-chan RAGMetrics) []RAGMetrics {
	t.Helper()

	var snapshots []RAGMetrics
	for m := range ch {
		snapshots = append(snapshots, m)
	}
	require.NotEmpty(t, snapshots)
	return snapshots
}

func TestProcessDomainEmitsStagesInOrder(t *testing.T) {
	srv := docsServer(t)
	store := newFakeStore()
	engine := newTestEngine(t, store, &staticDiscoverer{urls: []string{srv.URL + "/docs/api"}})

	ch, err := engine.ProcessDomain(context.Background(), DomainConfig{
		Name:     "stripe",
		Sources:  []string{srv.URL + "/docs"},
		Keywords: []string{"payments"},
	})
	require.NoError(t, err)

	snapshots := collectSnapshots(t, ch)
	require.Len(t, snapshots, len(StageOrder()))

	for i, stage := range StageOrder() {
		assert.Equal(t, stage, snapshots[i].Stage)
	}

	// Elapsed time never goes backwards across snapshots.
	for i := 1; i < len(snapshots); i++ {
		assert.GreaterOrEqual(t, snapshots[i].ProcessingTimeSeconds, snapshots[i-1].ProcessingTimeSeconds)
	}

	final := snapshots[len(snapshots)-1]
	assert.Equal(t, StatusCompleted, final.Status)
	assert.True(t, final.Status.Terminal())
	assert.Equal(t, 2, final.URLsProcessed)
	assert.Greater(t, final.ChunksCreated, 0)
	assert.Greater(t, final.TokensUsed, 0)
	assert.Greater(t, final.CostUSD, 0.0)
	assert.False(t, final.EndTime.IsZero())

	// Only the terminal snapshot carries a terminal status.
	for _, m := range snapshots[:len(snapshots)-1] {
		assert.Equal(t, StatusProcessing, m.Status)
	}

	// The indexed chunks landed in the store.
	has, err := store.HasCollection(context.Background(), "stripe")
	require.NoError(t, err)
	assert.True(t, has)

	// Metrics reports the final snapshot.
	m, ok := engine.Metrics(final.PipelineID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, m.Status)
}

func TestProcessDomainNoURLsFailsFirstStage(t *testing.T) {
	engine := newTestEngine(t, newFakeStore(), &staticDiscoverer{})

	ch, err := engine.ProcessDomain(context.Background(), DomainConfig{Name: "empty"})
	require.NoError(t, err)

	snapshots := collectSnapshots(t, ch)
	require.Len(t, snapshots, 1)
	assert.Equal(t, StageURLPrioritization, snapshots[0].Stage)
	assert.Equal(t, StatusError, snapshots[0].Status)
	assert.NotEmpty(t, snapshots[0].ErrorMessage)
}

func TestProcessDomainCancellation(t *testing.T) {
	srv := docsServer(t)
	engine := newTestEngine(t, newFakeStore(), &staticDiscoverer{urls: []string{srv.URL + "/docs"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch, err := engine.ProcessDomain(ctx, DomainConfig{
		Name:    "cancelled",
		Sources: []string{srv.URL + "/docs"},
	})
	require.NoError(t, err)

	snapshots := collectSnapshots(t, ch)
	final := snapshots[len(snapshots)-1]
	assert.Equal(t, StatusError, final.Status)
	assert.Contains(t, final.ErrorMessage, "run cancelled")
}

func TestProcessDomainQualityGate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/nav", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>Home About</p></body></html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	engine := newTestEngine(t, newFakeStore(), &staticDiscoverer{})

	ch, err := engine.ProcessDomain(context.Background(), DomainConfig{
		Name:    "thin",
		Sources: []string{srv.URL + "/nav"},
	})
	require.NoError(t, err)

	snapshots := collectSnapshots(t, ch)
	final := snapshots[len(snapshots)-1]
	assert.Equal(t, StatusError, final.Status)
	assert.Equal(t, StageQualityVerification, final.Stage)
}

func TestProcessDomainRequiresInitialize(t *testing.T) {
	engine := NewStandardEngine(newFakeStore(), embedding.NewService(&fakeGateway{}, ""), &staticDiscoverer{}, testPipelineConfig())

	_, err := engine.ProcessDomain(context.Background(), DomainConfig{Name: "x"})
	require.Error(t, err)
}

func TestSearchKnowledgeNoCollection(t *testing.T) {
	engine := newTestEngine(t, newFakeStore(), &staticDiscoverer{})

	chunks, err := engine.SearchKnowledge(context.Background(), "missing", "anything", 5)
	require.NoError(t, err)
	assert.NotNil(t, chunks)
	assert.Empty(t, chunks)
}

func TestSearchKnowledgeReturnsIndexedChunks(t *testing.T) {
	srv := docsServer(t)
	store := newFakeStore()
	engine := newTestEngine(t, store, &staticDiscoverer{urls: []string{srv.URL + "/docs/api"}})

	ch, err := engine.ProcessDomain(context.Background(), DomainConfig{
		Name:     "stripe",
		Sources:  []string{srv.URL + "/docs"},
		Keywords: []string{"payments"},
	})
	require.NoError(t, err)
	collectSnapshots(t, ch)

	chunks, err := engine.SearchKnowledge(context.Background(), "stripe", "how do charges work", 3)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.LessOrEqual(t, len(chunks), 3)
	for _, c := range chunks {
		assert.Equal(t, "stripe", c.Domain)
		assert.NotEmpty(t, c.Content)
	}
}

func TestCleanupForgetsTerminalRuns(t *testing.T) {
	srv := docsServer(t)
	store := newFakeStore()
	engine := newTestEngine(t, store, &staticDiscoverer{})

	ch, err := engine.ProcessDomain(context.Background(), DomainConfig{
		Name:     "stripe",
		Sources:  []string{srv.URL + "/docs"},
		Keywords: []string{"payments"},
	})
	require.NoError(t, err)
	snapshots := collectSnapshots(t, ch)
	final := snapshots[len(snapshots)-1]

	require.NoError(t, engine.Cleanup(context.Background(), "stripe"))

	_, ok := engine.Metrics(final.PipelineID)
	assert.False(t, ok)

	has, err := store.HasCollection(context.Background(), "stripe")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestHealthCheck(t *testing.T) {
	engine := newTestEngine(t, newFakeStore(), &staticDiscoverer{})
	assert.NoError(t, engine.HealthCheck(context.Background()))

	uninitialized := NewStandardEngine(newFakeStore(), embedding.NewService(&fakeGateway{}, ""), &staticDiscoverer{}, testPipelineConfig())
	assert.Error(t, uninitialized.HealthCheck(context.Background()))
}
