// Package app builds the service graph shared by the API server and
// the worker.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kiffhq/kiff/internal/billing"
	"github.com/kiffhq/kiff/internal/cache"
	"github.com/kiffhq/kiff/internal/config"
	"github.com/kiffhq/kiff/internal/discovery"
	"github.com/kiffhq/kiff/internal/embedding"
	"github.com/kiffhq/kiff/internal/indexcache"
	"github.com/kiffhq/kiff/internal/llm"
	"github.com/kiffhq/kiff/internal/notify"
	"github.com/kiffhq/kiff/internal/pipeline"
	"github.com/kiffhq/kiff/internal/vectorstore"
)

// App holds the wired services.
type App struct {
	Engine   pipeline.Engine
	Registry *pipeline.Registry
	Catalog  indexcache.Catalog
	Cache    *indexcache.Service
	Ledger   *billing.Ledger
	Notifier *notify.Dispatcher
}

// Build wires the full pipeline-to-billing graph on top of the given
// connections.
func Build(ctx context.Context, cfg *config.Config, db *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	gw := llm.NewGateway(cfg.LLM)
	embedder := embedding.NewService(gw, cfg.LLM.EmbeddingModel)
	store := vectorstore.NewPgVectorStore(db)

	sitemaps := discovery.NewSitemapDiscoverer(cfg.Pipeline.FetchTimeout, cfg.Pipeline.MaxURLs)
	search := discovery.NewSearchDiscoverer(gw, cfg.Pipeline.FetchTimeout, cfg.Pipeline.MaxURLs)

	registry := pipeline.NewRegistry()
	err := registry.Register(pipeline.StandardEngineName, func() (pipeline.Engine, error) {
		return pipeline.NewStandardEngine(store, embedder, sitemaps, cfg.Pipeline,
			pipeline.WithFallbackDiscoverer(search),
		), nil
	}, true)
	if err != nil {
		return nil, fmt.Errorf("register engine: %w", err)
	}

	engine, err := registry.Create("")
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	if err := engine.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize engine: %w", err)
	}

	catalog, err := indexcache.LoadCatalogFile(cfg.Pipeline.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	ledger := billing.NewLedger(billing.NewPgStore(db), logger)
	notifier := notify.NewDispatcher(cfg.Notify.CallbackURLs, cfg.Notify.Secret, logger)

	redisCache := cache.NewCache(rdb)
	cacheSvc := indexcache.NewService(
		indexcache.NewPgStore(db),
		engine,
		catalog,
		indexcache.NewTokenIssuer(cfg.Pricing.TokenSecret),
		indexcache.ServiceConfig{
			Pricing: indexcache.Pricing{
				ExpectedTenants: cfg.Pricing.ExpectedTenants,
				FloorUSD:        cfg.Pricing.PriceFloorUSD,
			},
			CacheTTL:  cfg.Pricing.CacheTTL,
			AccessTTL: cfg.Pricing.AccessTTL,
		},
		logger,
		indexcache.WithLocker(redisCache),
		indexcache.WithStatusCache(redisCache),
		indexcache.WithRecorder(ledger),
		indexcache.WithNotifier(notifier),
	)

	return &App{
		Engine:   engine,
		Registry: registry,
		Catalog:  catalog,
		Cache:    cacheSvc,
		Ledger:   ledger,
		Notifier: notifier,
	}, nil
}
