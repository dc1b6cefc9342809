package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiffhq/kiff/internal/llm"
)

type scriptedGateway struct {
	content string
}

func (g *scriptedGateway) Chat(_ context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{
		Content: g.content,
		Usage:   llm.Usage{InputTokens: 40, OutputTokens: 60, TotalTokens: 100},
	}, nil
}

func (g *scriptedGateway) Embed(_ context.Context, _ llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	return &llm.EmbeddingResponse{}, nil
}

func (g *scriptedGateway) Provider(string) (llm.Provider, error) {
	return nil, nil
}

func (g *scriptedGateway) ListModels() []llm.ModelInfo {
	return nil
}

func TestSearchDiscoverKeepsReachableDocURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/docs/dead" {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	gw := &scriptedGateway{content: "Here are the pages:\n" +
		"1. " + srv.URL + "/docs/auth\n" +
		"- " + srv.URL + "/docs/dead\n" +
		"* " + srv.URL + "/about\n" +
		"not a url\n"}

	d := NewSearchDiscoverer(gw, 5*time.Second, 50)
	urls, usage, err := d.Discover(context.Background(), srv.URL)
	require.NoError(t, err)

	// Dead links and non-documentation pages are dropped; discovery
	// token usage is surfaced to the caller.
	assert.Equal(t, []string{srv.URL + "/docs/auth"}, urls)
	assert.Equal(t, 100, usage.TotalTokens)
}

func TestParseURLLines(t *testing.T) {
	content := "Sure, here you go:\n" +
		"1. https://example.com/docs\n" +
		"2. https://example.com/api  \n" +
		"- http://example.com/guide\n" +
		"ftp://example.com/nope\n" +
		"\n" +
		"Let me know if you need more."

	assert.Equal(t, []string{
		"https://example.com/docs",
		"https://example.com/api",
		"http://example.com/guide",
	}, parseURLLines(content))
}
