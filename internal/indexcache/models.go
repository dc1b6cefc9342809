package indexcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CacheStatus is the lifecycle state of one externally-indexed API.
//
//	not_cached -> indexing -> cached | failed
//	cached -> expired (TTL) -> indexing (force reindex)
type CacheStatus string

const (
	StatusNotCached CacheStatus = "not_cached"
	StatusIndexing  CacheStatus = "indexing"
	StatusCached    CacheStatus = "cached"
	StatusFailed    CacheStatus = "failed"
	StatusExpired   CacheStatus = "expired"
)

// CacheEntry records one indexing run for an API, shared across all
// tenants that buy fractional access to it.
type CacheEntry struct {
	CacheKey             string      `json:"cache_key"`
	APIName              string      `json:"api_name"`
	Status               CacheStatus `json:"status"`
	OriginalIndexingCost float64     `json:"original_indexing_cost"`
	FractionalCost       float64     `json:"fractional_cost"`
	TotalURLsIndexed     int         `json:"total_urls_indexed"`
	TokensUsed           int         `json:"tokens_used"`
	ErrorMessage         string      `json:"error_message,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
	ExpiresAt            time.Time   `json:"expires_at"`
}

// Expired reports whether a cached entry's TTL has elapsed. Entries in
// other states never report expired here; they have their own states.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.Status == StatusCached && !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// UserAPIAccess is a time-boxed per-tenant grant against a cached
// entry.
type UserAPIAccess struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	UserID      uuid.UUID `json:"user_id"`
	APIName     string    `json:"api_name"`
	AccessToken string    `json:"access_token"`
	CostPaid    float64   `json:"cost_paid"`
	GrantedAt   time.Time `json:"granted_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// CacheKey derives the stable cache key for an API name. Re-indexing
// the same API always lands on the same key.
func CacheKey(apiName string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(apiName))))
	return "api_" + hex.EncodeToString(sum[:8])
}
