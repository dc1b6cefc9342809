package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kiffhq/kiff/internal/llm"
)

// SearchDiscoverer is the fallback used when no sitemap is reachable:
// it asks an LLM to enumerate likely documentation pages for the site
// and keeps only URLs that respond.
type SearchDiscoverer struct {
	gateway    llm.Gateway
	httpClient *http.Client
	maxURLs    int
}

func NewSearchDiscoverer(gw llm.Gateway, timeout time.Duration, maxURLs int) *SearchDiscoverer {
	if maxURLs <= 0 {
		maxURLs = 50
	}
	return &SearchDiscoverer{
		gateway:    gw,
		httpClient: &http.Client{Timeout: timeout},
		maxURLs:    maxURLs,
	}
}

const searchPrompt = `You are a documentation crawler. Given the base URL of a developer product, list the most likely URLs of its public API documentation pages (overview, authentication, core resources, webhooks, SDKs, tutorials). Output one absolute URL per line with no commentary.`

func (d *SearchDiscoverer) Discover(ctx context.Context, baseURL string) ([]string, llm.Usage, error) {
	resp, err := d.gateway.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: searchPrompt},
			{Role: "user", Content: fmt.Sprintf("Base URL: %s", baseURL)},
		},
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, llm.Usage{}, fmt.Errorf("search discovery: %w", err)
	}

	candidates := parseURLLines(resp.Content)
	candidates = filterDocURLs(candidates)

	var reachable []string
	for _, u := range candidates {
		if len(reachable) >= d.maxURLs {
			break
		}
		if d.isReachable(ctx, u) {
			reachable = append(reachable, u)
		}
	}

	slog.Info("search discovery finished", "base_url", baseURL,
		"candidates", len(candidates), "reachable", len(reachable),
		"tokens", resp.Usage.TotalTokens)
	return reachable, resp.Usage, nil
}

func (d *SearchDiscoverer) isReachable(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, "HEAD", rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 400
}

func parseURLLines(content string) []string {
	var urls []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. ")
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			urls = append(urls, line)
		}
	}
	return urls
}
