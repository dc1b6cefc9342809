package pipeline

import (
	"sort"
	"strings"
)

// prioritizeURLs orders candidate URLs by estimated relevance to the
// domain's keywords and priority. Ties keep discovery order (stable).
func prioritizeURLs(urls []string, cfg DomainConfig) []string {
	type scored struct {
		url   string
		score int
	}

	items := make([]scored, len(urls))
	for i, u := range urls {
		items[i] = scored{url: u, score: relevanceScore(u, cfg)}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})

	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.url
	}
	return out
}

func relevanceScore(rawURL string, cfg DomainConfig) int {
	lower := strings.ToLower(rawURL)
	score := 0

	for _, kw := range cfg.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			score += 10
		}
	}

	// Entry points before deep pages.
	switch {
	case strings.Contains(lower, "getting-started") || strings.Contains(lower, "quickstart"):
		score += 8
	case strings.Contains(lower, "/api") || strings.Contains(lower, "reference"):
		score += 6
	case strings.Contains(lower, "guide") || strings.Contains(lower, "tutorial"):
		score += 4
	}

	// Shallow paths rank above deep ones.
	depth := strings.Count(strings.TrimRight(lower, "/"), "/") - 2
	if depth > 0 {
		score -= depth
	}

	score += cfg.Priority
	return score
}

// scoreChunkQuality assigns a deterministic 0..1 quality score. Short
// navigation fragments score low; substantial prose mentioning the
// domain's keywords scores high.
func scoreChunkQuality(content string, keywords []string) float64 {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < 40 {
		return 0.1
	}

	score := 0.3

	switch {
	case len(trimmed) >= 200:
		score += 0.3
	case len(trimmed) >= 80:
		score += 0.15
	}

	lower := strings.ToLower(trimmed)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			score += 0.2
			break
		}
	}

	// Code samples and endpoint paths are high-signal for API docs.
	if strings.Contains(trimmed, "```") || strings.Contains(lower, "curl ") ||
		strings.Contains(lower, "http://") || strings.Contains(lower, "https://") {
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// classifyChunkType tags a chunk for downstream filtering.
func classifyChunkType(content string) string {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(content, "```") || strings.Contains(lower, "curl "):
		return "code_example"
	case strings.Contains(lower, "endpoint") || strings.Contains(lower, "parameters") ||
		strings.Contains(lower, "request body"):
		return "api_reference"
	default:
		return "prose"
	}
}
