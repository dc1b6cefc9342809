package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Neutralize anything the host environment may carry.
	for _, key := range []string{
		"SERVER_PORT", "SERVER_HOST", "REDIS_ADDR",
		"PIPELINE_CHUNK_SIZE", "PIPELINE_CHUNK_OVERLAP", "PIPELINE_QUALITY_THRESHOLD",
		"CATALOG_PATH", "PRICING_EXPECTED_TENANTS", "PRICING_FLOOR_USD",
		"ACCESS_TTL", "CACHE_TTL", "LLM_EMBEDDING_MODEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 1000, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 200, cfg.Pipeline.ChunkOverlap)
	assert.InDelta(t, 0.5, cfg.Pipeline.QualityThreshold, 1e-9)
	assert.Equal(t, "catalog.json", cfg.Pipeline.CatalogPath)
	assert.Equal(t, 20, cfg.Pricing.ExpectedTenants)
	assert.InDelta(t, 0.01, cfg.Pricing.PriceFloorUSD, 1e-9)
	assert.Equal(t, 30*24*time.Hour, cfg.Pricing.AccessTTL)
	assert.Equal(t, 90*24*time.Hour, cfg.Pricing.CacheTTL)
	assert.Equal(t, "text-embedding-3-small", cfg.LLM.EmbeddingModel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("PRICING_EXPECTED_TENANTS", "8")
	t.Setenv("CACHE_TTL", "720h")
	t.Setenv("NOTIFY_CALLBACK_URLS", "https://a.example/hook, https://b.example/hook,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Pricing.ExpectedTenants)
	assert.Equal(t, 720*time.Hour, cfg.Pricing.CacheTTL)
	assert.Equal(t, []string{"https://a.example/hook", "https://b.example/hook"}, cfg.Notify.CallbackURLs)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateMissingRequired(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "ACCESS_TOKEN_SECRET")
}

func TestValidateExpectedTenants(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{URL: "postgres://localhost/kiff"},
		Pricing:  PricingConfig{TokenSecret: "s", ExpectedTenants: 0},
	}
	assert.Error(t, cfg.Validate())

	cfg.Pricing.ExpectedTenants = 20
	assert.NoError(t, cfg.Validate())
}
