package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrioritizeURLs(t *testing.T) {
	cfg := DomainConfig{Keywords: []string{"payments"}}

	urls := []string{
		"https://docs.example.com/changelog",
		"https://docs.example.com/guide",
		"https://docs.example.com/api",
		"https://docs.example.com/quickstart",
		"https://docs.example.com/payments/overview",
	}

	got := prioritizeURLs(urls, cfg)

	// Keyword match outranks everything, then quickstart, api, guide.
	assert.Equal(t, "https://docs.example.com/payments/overview", got[0])
	assert.Equal(t, "https://docs.example.com/quickstart", got[1])
	assert.Equal(t, "https://docs.example.com/api", got[2])
	assert.Equal(t, "https://docs.example.com/guide", got[3])
	assert.Equal(t, "https://docs.example.com/changelog", got[4])
}

func TestPrioritizeURLsStableOnTies(t *testing.T) {
	urls := []string{
		"https://a.example.com/one",
		"https://a.example.com/two",
		"https://a.example.com/three",
	}

	got := prioritizeURLs(urls, DomainConfig{})
	assert.Equal(t, urls, got)
}

func TestScoreChunkQuality(t *testing.T) {
	t.Run("short fragments score low", func(t *testing.T) {
		assert.Equal(t, 0.1, scoreChunkQuality("Home | About | Contact", nil))
	})

	t.Run("substantial keyword prose scores high", func(t *testing.T) {
		content := strings.Repeat("The payments API accepts charge objects over HTTPS. ", 5) +
			"See https://docs.example.com/payments for details."
		score := scoreChunkQuality(content, []string{"payments"})
		assert.GreaterOrEqual(t, score, 0.8)
		assert.LessOrEqual(t, score, 1.0)
	})

	t.Run("medium prose without keywords lands mid-range", func(t *testing.T) {
		content := "This section explains how the client library retries failed requests."
		score := scoreChunkQuality(content, []string{"payments"})
		assert.InDelta(t, 0.3, score, 1e-9)
	})
}

func TestClassifyChunkType(t *testing.T) {
	assert.Equal(t, "code_example", classifyChunkType("```go\nclient.Do(req)\n```"))
	assert.Equal(t, "code_example", classifyChunkType("Run curl https://api.example.com/v1/charges"))
	assert.Equal(t, "api_reference", classifyChunkType("The endpoint accepts the following parameters in the request body"))
	assert.Equal(t, "prose", classifyChunkType("Welcome to the documentation. This guide walks through setup."))
}
