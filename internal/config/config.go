package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Pricing  PricingConfig
	Notify   NotifyConfig
	Auth     AuthConfig
}

type AuthConfig struct {
	// AdminKey gates the operator endpoints (pre-indexing, tenant
	// overview). Admin routes refuse all requests when unset.
	AdminKey string
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	OllamaURL        string
	DefaultProvider  string
	DefaultModel     string
	EmbeddingModel   string
	FallbackProvider string
	MaxRetries       int
}

// PipelineConfig tunes the ingestion pipeline. Chunk sizing and the
// quality threshold are policy, not constants baked into stage code.
type PipelineConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	QualityThreshold float64
	MaxURLs          int
	FetchTimeout     time.Duration
	FetchConcurrency int
	CatalogPath      string
}

// PricingConfig is the cost-amortization policy for the indexing cache.
// FractionalCost = OriginalCost / ExpectedTenants, floored at PriceFloorUSD.
type PricingConfig struct {
	ExpectedTenants int
	PriceFloorUSD   float64
	AccessTTL       time.Duration
	CacheTTL        time.Duration
	TokenSecret     string
}

type NotifyConfig struct {
	CallbackURLs []string
	Secret       string
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	chunkSize, err := getEnvInt("PIPELINE_CHUNK_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_CHUNK_SIZE: %w", err)
	}

	chunkOverlap, err := getEnvInt("PIPELINE_CHUNK_OVERLAP", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_CHUNK_OVERLAP: %w", err)
	}

	qualityThreshold, err := getEnvFloat("PIPELINE_QUALITY_THRESHOLD", 0.5)
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_QUALITY_THRESHOLD: %w", err)
	}

	maxURLs, err := getEnvInt("PIPELINE_MAX_URLS", 50)
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_MAX_URLS: %w", err)
	}

	fetchTimeout, err := getEnvDuration("PIPELINE_FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_FETCH_TIMEOUT: %w", err)
	}

	fetchConcurrency, err := getEnvInt("PIPELINE_FETCH_CONCURRENCY", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_FETCH_CONCURRENCY: %w", err)
	}

	expectedTenants, err := getEnvInt("PRICING_EXPECTED_TENANTS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid PRICING_EXPECTED_TENANTS: %w", err)
	}

	priceFloor, err := getEnvFloat("PRICING_FLOOR_USD", 0.01)
	if err != nil {
		return nil, fmt.Errorf("invalid PRICING_FLOOR_USD: %w", err)
	}

	accessTTL, err := getEnvDuration("ACCESS_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid ACCESS_TTL: %w", err)
	}

	cacheTTL, err := getEnvDuration("CACHE_TTL", 90*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
			EmbeddingModel:   getEnv("LLM_EMBEDDING_MODEL", "text-embedding-3-small"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       maxRetries,
		},
		Pipeline: PipelineConfig{
			ChunkSize:        chunkSize,
			ChunkOverlap:     chunkOverlap,
			QualityThreshold: qualityThreshold,
			MaxURLs:          maxURLs,
			FetchTimeout:     fetchTimeout,
			FetchConcurrency: fetchConcurrency,
			CatalogPath:      getEnv("CATALOG_PATH", "catalog.json"),
		},
		Pricing: PricingConfig{
			ExpectedTenants: expectedTenants,
			PriceFloorUSD:   priceFloor,
			AccessTTL:       accessTTL,
			CacheTTL:        cacheTTL,
			TokenSecret:     getEnv("ACCESS_TOKEN_SECRET", ""),
		},
		Notify: NotifyConfig{
			CallbackURLs: splitList(getEnv("NOTIFY_CALLBACK_URLS", "")),
			Secret:       getEnv("NOTIFY_SECRET", ""),
		},
		Auth: AuthConfig{
			AdminKey: getEnv("ADMIN_API_KEY", ""),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Pricing.TokenSecret == "" {
		missing = append(missing, "ACCESS_TOKEN_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.Pricing.ExpectedTenants <= 0 {
		return fmt.Errorf("PRICING_EXPECTED_TENANTS must be positive, got %d", c.Pricing.ExpectedTenants)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
