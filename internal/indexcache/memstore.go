package indexcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps entries and grants in process memory. Used by
// tests and by single-node setups that do not need durability.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
	grants  map[uuid.UUID]*UserAPIAccess

	// FailAccessInserts makes the next n InsertAccess calls fail, for
	// exercising the compensation path.
	FailAccessInserts int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*CacheEntry),
		grants:  make(map[uuid.UUID]*UserAPIAccess),
	}
}

func (s *MemoryStore) GetEntry(_ context.Context, cacheKey string) (*CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[cacheKey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

func (s *MemoryStore) UpsertEntry(_ context.Context, entry *CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.entries[entry.CacheKey] = &cp
	return nil
}

func (s *MemoryStore) ListEntries(_ context.Context) ([]*CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*CacheEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		cp := *entry
		entries = append(entries, &cp)
	}
	return entries, nil
}

func (s *MemoryStore) InsertAccess(_ context.Context, grant *UserAPIAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAccessInserts > 0 {
		s.FailAccessInserts--
		return errors.New("insert access failed")
	}

	cp := *grant
	s.grants[grant.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAccess(_ context.Context, id uuid.UUID) (*UserAPIAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.grants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *grant
	return &cp, nil
}

func (s *MemoryStore) ExpireEntries(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for _, entry := range s.entries {
		if entry.Expired(now) {
			entry.Status = StatusExpired
			entry.UpdatedAt = now
			expired++
		}
	}
	return expired, nil
}
