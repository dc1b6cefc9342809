package indexcache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by stores for missing entries or grants.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied is returned when a presented access token fails
	// validation: wrong scope, expired, or tampered. Callers must be
	// able to distinguish this from ErrNotIndexed.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotIndexed is returned when knowledge is requested for an API
	// with no valid cached entry.
	ErrNotIndexed = errors.New("api not indexed")
)

// Store is the durable home of cache entries and access grants.
type Store interface {
	GetEntry(ctx context.Context, cacheKey string) (*CacheEntry, error)
	UpsertEntry(ctx context.Context, entry *CacheEntry) error
	ListEntries(ctx context.Context) ([]*CacheEntry, error)
	InsertAccess(ctx context.Context, grant *UserAPIAccess) error
	GetAccess(ctx context.Context, id uuid.UUID) (*UserAPIAccess, error)
	// ExpireEntries flips cached entries whose TTL elapsed before now
	// to expired, returning how many changed.
	ExpireEntries(ctx context.Context, now time.Time) (int, error)
}
