package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kiffhq/kiff/internal/api/handlers"
	"github.com/kiffhq/kiff/internal/api/middleware"
	"github.com/kiffhq/kiff/internal/billing"
	"github.com/kiffhq/kiff/internal/config"
	"github.com/kiffhq/kiff/internal/indexcache"
	"github.com/kiffhq/kiff/internal/pipeline"
	"github.com/kiffhq/kiff/internal/queue"
)

// Deps are the long-lived services the router serves. They are built
// once in main and shared with the worker binary.
type Deps struct {
	Cache   *indexcache.Service
	Catalog indexcache.Catalog
	Ledger  *billing.Ledger
	Engine  pipeline.Engine
	Queue   *queue.Client
}

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
	deps  Deps
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
		deps:  deps,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis, rt.deps.Engine)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	apiH := handlers.NewAPIHandler(rt.deps.Cache)
	billingH := handlers.NewBillingHandler(rt.deps.Ledger)
	adminH := handlers.NewAdminHandler(rt.deps.Cache, rt.deps.Catalog, rt.deps.Ledger, rt.deps.Queue)
	pipelineH := handlers.NewPipelineHandler(rt.deps.Engine)

	r.Route("/api/v1", func(r chi.Router) {
		// Tenant-scoped routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Tenancy)

			r.Route("/apis/{api}", func(r chi.Router) {
				r.Post("/access", apiH.RequestAccess)
				r.Get("/status", apiH.Status)
				r.Post("/search", apiH.Search)
			})

			r.Route("/billing", func(r chi.Router) {
				r.Get("/summary", billingH.Summary)
				r.Get("/history", billingH.History)
			})
		})

		// Operator routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminOnly(rt.cfg.Auth.AdminKey))

			r.Route("/admin", func(r chi.Router) {
				r.Get("/catalog", adminH.Catalog)
				r.Post("/apis/{api}/index", adminH.PreIndex)
				r.Get("/apis/{api}/status", adminH.CacheStatus)
				r.Get("/cache", adminH.ListCacheEntries)
				r.Post("/cache/sweep", adminH.Sweep)
				r.Get("/billing/overview", adminH.BillingOverview)
			})

			r.Route("/pipeline", func(r chi.Router) {
				r.Post("/domains", pipelineH.ProcessDomain)
				r.Get("/runs/{id}", pipelineH.RunMetrics)
			})
		})
	})

	return r
}
