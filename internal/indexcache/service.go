package indexcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kiffhq/kiff/internal/pipeline"
)

const (
	// indexLockTTL bounds how long a crashed worker can hold the
	// per-API indexing lock.
	indexLockTTL = 2 * time.Hour

	// statusCacheTTL keeps status lookups off Postgres for hot APIs.
	statusCacheTTL = 30 * time.Second
)

// Locker provides best-effort distributed mutual exclusion so at most
// one indexing run per API is in flight across workers.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// StatusCache is a read-through cache for entry status lookups.
type StatusCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Recorder records the billing side of an access purchase. The refund
// appends a compensating row when a purchase was billed but the grant
// could not be persisted.
type Recorder interface {
	RecordAccessPurchase(ctx context.Context, tenantID, userID uuid.UUID, apiName string, costUSD float64) error
	RecordAccessRefund(ctx context.Context, tenantID, userID uuid.UUID, apiName string, costUSD float64) error
}

// Notifier publishes indexing lifecycle events to subscribed
// endpoints. Implementations must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, event string, payload interface{})
}

// Notification event names.
const (
	EventIndexingStarted   = "indexing.started"
	EventIndexingCompleted = "indexing.completed"
	EventIndexingFailed    = "indexing.failed"
)

// ServiceConfig are the policy knobs of the cache service.
type ServiceConfig struct {
	Pricing   Pricing
	CacheTTL  time.Duration // how long a cached entry stays servable
	AccessTTL time.Duration // how long one access grant lasts
}

// Service owns the shared-cost indexing cache: it drives entry
// lifecycle, grants access, and gates knowledge reads on valid grants.
type Service struct {
	store   Store
	engine  pipeline.Engine
	catalog Catalog
	tokens  *TokenIssuer
	cfg     ServiceConfig
	logger  *slog.Logger

	locker   Locker
	statuses StatusCache
	recorder Recorder
	notifier Notifier

	now func() time.Time
}

type ServiceOption func(*Service)

func WithLocker(l Locker) ServiceOption {
	return func(s *Service) { s.locker = l }
}

func WithStatusCache(c StatusCache) ServiceOption {
	return func(s *Service) { s.statuses = c }
}

func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the service clock in tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, engine pipeline.Engine, catalog Catalog, tokens *TokenIssuer, cfg ServiceConfig, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:   store,
		engine:  engine,
		catalog: catalog,
		tokens:  tokens,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AdminPreIndexAPI indexes an API's documentation once on behalf of
// all future tenants. It is idempotent: a cached entry short-circuits
// unless force is set, and a run already in flight is returned as-is
// rather than duplicated. ok is true only when the entry is cached and
// servable on return.
func (s *Service) AdminPreIndexAPI(ctx context.Context, apiName string, force bool) (bool, *CacheEntry, error) {
	cfg, err := s.catalog.Lookup(ctx, apiName)
	if err != nil {
		return false, nil, fmt.Errorf("lookup api config: %w", err)
	}

	cacheKey := CacheKey(apiName)
	entry, err := s.loadEntry(ctx, cacheKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, nil, err
	}

	if entry != nil {
		switch entry.Status {
		case StatusCached:
			if !force {
				return true, entry, nil
			}
		case StatusIndexing:
			return false, entry, nil
		}
	}

	if s.locker != nil {
		acquired, err := s.locker.AcquireLock(ctx, "indexlock:"+cacheKey, indexLockTTL)
		switch {
		case err != nil:
			// The lock service being down must not turn into an
			// indexing outage; the status check above still blocks
			// duplicate runs on this node.
			s.logger.Warn("index lock unavailable, proceeding without it", "api", apiName, "error", err)
		case !acquired:
			// Another worker beat us to it; surface its entry.
			if current, err := s.loadEntry(ctx, cacheKey); err == nil {
				return current.Status == StatusCached, current, nil
			}
			return false, nil, fmt.Errorf("indexing already in flight for %s", apiName)
		default:
			defer func() {
				if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), "indexlock:"+cacheKey); err != nil {
					s.logger.Warn("release index lock", "api", apiName, "error", err)
				}
			}()

			// Re-check under the lock: a competing run may have finished
			// between our first read and the acquire.
			if current, err := s.loadEntry(ctx, cacheKey); err == nil {
				if current.Status == StatusIndexing {
					return false, current, nil
				}
				if current.Status == StatusCached && !force {
					return true, current, nil
				}
				entry = current
			}
		}
	}

	now := s.now()
	priorStatus := StatusNotCached
	if entry == nil {
		entry = &CacheEntry{CacheKey: cacheKey, APIName: apiName, CreatedAt: now}
	} else {
		priorStatus = entry.Status
	}
	entry.Status = StatusIndexing
	entry.ErrorMessage = ""
	entry.UpdatedAt = now
	if err := s.saveEntry(ctx, entry); err != nil {
		return false, nil, err
	}
	s.notify(ctx, EventIndexingStarted, entry)

	// A prior run may have left chunks in the domain collection (a
	// failed run can stop partway through upserting). Drop them, or the
	// re-run writes fresh chunk IDs next to the old ones and the
	// collection accumulates duplicates.
	if force || priorStatus == StatusCached || priorStatus == StatusExpired || priorStatus == StatusFailed {
		if err := s.engine.Cleanup(ctx, cfg.Name); err != nil {
			s.logger.Warn("cleanup before reindex", "domain", cfg.Name, "error", err)
		}
	}

	final, runErr := s.runIndexing(ctx, cfg)

	now = s.now()
	entry.UpdatedAt = now
	if runErr != nil {
		entry.Status = StatusFailed
		entry.ErrorMessage = runErr.Error()
		if err := s.saveEntry(context.WithoutCancel(ctx), entry); err != nil {
			s.logger.Error("persist failed entry", "api", apiName, "error", err)
		}
		s.notify(ctx, EventIndexingFailed, entry)
		return false, entry, fmt.Errorf("index %s: %w", apiName, runErr)
	}

	entry.Status = StatusCached
	entry.OriginalIndexingCost = final.CostUSD
	entry.FractionalCost = s.cfg.Pricing.FractionalCost(final.CostUSD)
	entry.TotalURLsIndexed = final.URLsProcessed
	entry.TokensUsed = final.TokensUsed
	entry.ExpiresAt = now.Add(s.cfg.CacheTTL)
	if err := s.saveEntry(ctx, entry); err != nil {
		return false, nil, err
	}
	s.notify(ctx, EventIndexingCompleted, entry)

	s.logger.Info("api indexed",
		"api", apiName,
		"urls", entry.TotalURLsIndexed,
		"tokens", entry.TokensUsed,
		"cost_usd", entry.OriginalIndexingCost,
		"fractional_usd", entry.FractionalCost,
	)
	return true, entry, nil
}

// runIndexing drives a pipeline run to completion and returns the
// terminal metrics snapshot.
func (s *Service) runIndexing(ctx context.Context, cfg pipeline.DomainConfig) (pipeline.RAGMetrics, error) {
	progress, err := s.engine.ProcessDomain(ctx, cfg)
	if err != nil {
		return pipeline.RAGMetrics{}, err
	}

	var final pipeline.RAGMetrics
	for snapshot := range progress {
		final = snapshot
	}

	if final.Status != pipeline.StatusCompleted {
		msg := final.ErrorMessage
		if msg == "" {
			msg = "pipeline did not complete"
		}
		return final, errors.New(msg)
	}
	return final, nil
}

// UserRequestAPIAccess grants a tenant's user fractional-cost access
// to a cached API. The returned message explains a refusal; a refusal
// is not an error.
func (s *Service) UserRequestAPIAccess(ctx context.Context, tenantID, userID uuid.UUID, apiName string) (bool, *UserAPIAccess, string, error) {
	entry, err := s.loadEntry(ctx, CacheKey(apiName))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil, "api not yet indexed; ask an administrator to pre-index it", nil
		}
		return false, nil, "", err
	}

	switch entry.Status {
	case StatusIndexing:
		return false, nil, "indexing in progress; try again shortly", nil
	case StatusFailed:
		return false, nil, "last indexing attempt failed; re-indexing is required", nil
	case StatusExpired:
		return false, nil, "cached knowledge has expired; re-indexing is required", nil
	case StatusCached:
		// fall through to grant
	default:
		return false, nil, "api not yet indexed; ask an administrator to pre-index it", nil
	}

	now := s.now()
	grant := &UserAPIAccess{
		ID:        uuid.New(),
		TenantID:  tenantID,
		UserID:    userID,
		APIName:   apiName,
		CostPaid:  entry.FractionalCost,
		GrantedAt: now,
		ExpiresAt: now.Add(s.cfg.AccessTTL),
	}

	token, err := s.tokens.Mint(grant.ID, tenantID, userID, apiName, grant.ExpiresAt)
	if err != nil {
		return false, nil, "", fmt.Errorf("mint access token: %w", err)
	}
	grant.AccessToken = token

	if s.recorder != nil {
		if err := s.recorder.RecordAccessPurchase(ctx, tenantID, userID, apiName, grant.CostPaid); err != nil {
			// Never hand out unbilled access.
			s.logger.Error("record access purchase", "api", apiName, "tenant", tenantID, "error", err)
			return false, nil, "billing is unavailable; try again shortly", nil
		}
	}

	if err := s.store.InsertAccess(ctx, grant); err != nil {
		// The purchase was already billed; compensate it so the tenant
		// does not pay for a grant that was never minted.
		if s.recorder != nil {
			if rerr := s.recorder.RecordAccessRefund(context.WithoutCancel(ctx), tenantID, userID, apiName, grant.CostPaid); rerr != nil {
				s.logger.Error("refund access purchase", "api", apiName, "tenant", tenantID, "error", rerr)
			}
		}
		return false, nil, "", fmt.Errorf("persist access grant: %w", err)
	}

	s.logger.Info("api access granted",
		"api", apiName,
		"tenant", tenantID,
		"user", userID,
		"cost_usd", grant.CostPaid,
	)
	return true, grant, fmt.Sprintf("access granted until %s", grant.ExpiresAt.Format(time.RFC3339)), nil
}

// KnowledgeBase is a search handle scoped to one API's indexed
// knowledge. It is only obtainable through a validated grant.
type KnowledgeBase struct {
	domain string
	engine pipeline.Engine
}

func (kb *KnowledgeBase) Domain() string { return kb.domain }

func (kb *KnowledgeBase) Search(ctx context.Context, query string, limit int) ([]pipeline.ProcessedChunk, error) {
	return kb.engine.SearchKnowledge(ctx, kb.domain, query, limit)
}

// GetUserAPIKnowledgeBase validates an access token and returns a
// search handle over the API's cached knowledge. Token problems map to
// ErrAccessDenied and missing or stale knowledge to ErrNotIndexed, so
// callers can tell a rejected caller from an unindexed API.
func (s *Service) GetUserAPIKnowledgeBase(ctx context.Context, tenantID, userID uuid.UUID, apiName, accessToken string) (*KnowledgeBase, error) {
	grantID, err := s.tokens.Validate(accessToken, tenantID, userID, apiName)
	if err != nil {
		return nil, err
	}

	grant, err := s.store.GetAccess(ctx, grantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAccessDenied
		}
		return nil, fmt.Errorf("load access grant: %w", err)
	}

	now := s.now()
	if grant.TenantID != tenantID || grant.UserID != userID ||
		normalizeName(grant.APIName) != normalizeName(apiName) ||
		now.After(grant.ExpiresAt) {
		return nil, ErrAccessDenied
	}

	entry, err := s.loadEntry(ctx, CacheKey(apiName))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotIndexed
		}
		return nil, err
	}
	if entry.Status != StatusCached {
		return nil, ErrNotIndexed
	}

	cfg, err := s.catalog.Lookup(ctx, apiName)
	if err != nil {
		return nil, ErrNotIndexed
	}

	return &KnowledgeBase{domain: cfg.Name, engine: s.engine}, nil
}

// cachedStatus is the status cache line. It carries the entry's TTL
// deadline so a cached "cached" never outlives the entry itself.
type cachedStatus struct {
	Status    CacheStatus `json:"status"`
	ExpiresAt time.Time   `json:"expires_at,omitempty"`
}

// GetCacheStatus reports an API's lifecycle state, serving hot lookups
// from the status cache.
func (s *Service) GetCacheStatus(ctx context.Context, apiName string) (CacheStatus, error) {
	cacheKey := CacheKey(apiName)

	if s.statuses != nil {
		var line cachedStatus
		if err := s.statuses.Get(ctx, "cachestatus:"+cacheKey, &line); err == nil {
			stale := line.Status == StatusCached && !line.ExpiresAt.IsZero() && s.now().After(line.ExpiresAt)
			if !stale {
				return line.Status, nil
			}
			// The entry's TTL elapsed after the line was written; fall
			// through so loadEntry applies lazy expiry.
		}
	}

	entry, err := s.loadEntry(ctx, cacheKey)
	status := StatusNotCached
	var expiresAt time.Time
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	} else {
		status = entry.Status
		expiresAt = entry.ExpiresAt
	}

	if s.statuses != nil {
		line := cachedStatus{Status: status, ExpiresAt: expiresAt}
		if err := s.statuses.Set(ctx, "cachestatus:"+cacheKey, line, statusCacheTTL); err != nil {
			s.logger.Warn("cache status set", "api", apiName, "error", err)
		}
	}
	return status, nil
}

// ListEntries returns all cache entries, lazily expiring stale ones.
func (s *Service) ListEntries(ctx context.Context) ([]*CacheEntry, error) {
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for _, entry := range entries {
		if entry.Expired(now) {
			entry.Status = StatusExpired
			entry.UpdatedAt = now
			if err := s.saveEntry(ctx, entry); err != nil {
				s.logger.Warn("persist lazy expiry", "api", entry.APIName, "error", err)
			}
		}
	}
	return entries, nil
}

// ExpireStale flips every cached entry past its TTL to expired. Run
// periodically by the sweep job; lazy checks on read cover the window
// between sweeps.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	n, err := s.store.ExpireEntries(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired stale cache entries", "count", n)
	}
	return n, nil
}

// loadEntry reads an entry and applies lazy TTL expiry before anyone
// acts on a stale cached status.
func (s *Service) loadEntry(ctx context.Context, cacheKey string) (*CacheEntry, error) {
	entry, err := s.store.GetEntry(ctx, cacheKey)
	if err != nil {
		return nil, err
	}

	if entry.Expired(s.now()) {
		entry.Status = StatusExpired
		entry.UpdatedAt = s.now()
		if err := s.saveEntry(ctx, entry); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// saveEntry persists an entry and invalidates its status cache line.
func (s *Service) saveEntry(ctx context.Context, entry *CacheEntry) error {
	if err := s.store.UpsertEntry(ctx, entry); err != nil {
		return err
	}
	if s.statuses != nil {
		if err := s.statuses.Delete(ctx, "cachestatus:"+entry.CacheKey); err != nil {
			s.logger.Warn("invalidate status cache", "api", entry.APIName, "error", err)
		}
	}
	return nil
}

func (s *Service) notify(ctx context.Context, event string, entry *CacheEntry) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, event, entry)
}
