package indexcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore persists cache entries and access grants in Postgres.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) GetEntry(ctx context.Context, cacheKey string) (*CacheEntry, error) {
	query := `
		SELECT cache_key, api_name, status, original_indexing_cost, fractional_cost,
		       total_urls_indexed, tokens_used, COALESCE(error_message, ''),
		       created_at, updated_at, COALESCE(expires_at, '0001-01-01'::timestamptz)
		FROM cache_entries
		WHERE cache_key = $1
	`

	var entry CacheEntry
	err := s.pool.QueryRow(ctx, query, cacheKey).Scan(
		&entry.CacheKey, &entry.APIName, &entry.Status,
		&entry.OriginalIndexingCost, &entry.FractionalCost,
		&entry.TotalURLsIndexed, &entry.TokensUsed, &entry.ErrorMessage,
		&entry.CreatedAt, &entry.UpdatedAt, &entry.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}

	return &entry, nil
}

func (s *PgStore) UpsertEntry(ctx context.Context, entry *CacheEntry) error {
	query := `
		INSERT INTO cache_entries (cache_key, api_name, status, original_indexing_cost,
		                           fractional_cost, total_urls_indexed, tokens_used,
		                           error_message, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, NULLIF($11, '0001-01-01'::timestamptz))
		ON CONFLICT (cache_key) DO UPDATE SET
			status = EXCLUDED.status,
			original_indexing_cost = EXCLUDED.original_indexing_cost,
			fractional_cost = EXCLUDED.fractional_cost,
			total_urls_indexed = EXCLUDED.total_urls_indexed,
			tokens_used = EXCLUDED.tokens_used,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at
	`

	_, err := s.pool.Exec(ctx, query,
		entry.CacheKey, entry.APIName, entry.Status,
		entry.OriginalIndexingCost, entry.FractionalCost,
		entry.TotalURLsIndexed, entry.TokensUsed, entry.ErrorMessage,
		entry.CreatedAt, entry.UpdatedAt, entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}

	return nil
}

func (s *PgStore) ListEntries(ctx context.Context) ([]*CacheEntry, error) {
	query := `
		SELECT cache_key, api_name, status, original_indexing_cost, fractional_cost,
		       total_urls_indexed, tokens_used, COALESCE(error_message, ''),
		       created_at, updated_at, COALESCE(expires_at, '0001-01-01'::timestamptz)
		FROM cache_entries
		ORDER BY updated_at DESC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []*CacheEntry
	for rows.Next() {
		var entry CacheEntry
		if err := rows.Scan(
			&entry.CacheKey, &entry.APIName, &entry.Status,
			&entry.OriginalIndexingCost, &entry.FractionalCost,
			&entry.TotalURLsIndexed, &entry.TokensUsed, &entry.ErrorMessage,
			&entry.CreatedAt, &entry.UpdatedAt, &entry.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

func (s *PgStore) InsertAccess(ctx context.Context, grant *UserAPIAccess) error {
	query := `
		INSERT INTO user_api_access (id, tenant_id, user_id, api_name, access_token,
		                             cost_paid, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		grant.ID, grant.TenantID, grant.UserID, grant.APIName,
		grant.AccessToken, grant.CostPaid, grant.GrantedAt, grant.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert access grant: %w", err)
	}

	return nil
}

func (s *PgStore) GetAccess(ctx context.Context, id uuid.UUID) (*UserAPIAccess, error) {
	query := `
		SELECT id, tenant_id, user_id, api_name, access_token, cost_paid,
		       granted_at, expires_at
		FROM user_api_access
		WHERE id = $1
	`

	var grant UserAPIAccess
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&grant.ID, &grant.TenantID, &grant.UserID, &grant.APIName,
		&grant.AccessToken, &grant.CostPaid, &grant.GrantedAt, &grant.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get access grant: %w", err)
	}

	return &grant, nil
}

func (s *PgStore) ExpireEntries(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE cache_entries
		SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at IS NOT NULL AND expires_at < $2
	`

	tag, err := s.pool.Exec(ctx, query, StatusExpired, now, StatusCached)
	if err != nil {
		return 0, fmt.Errorf("expire cache entries: %w", err)
	}

	return int(tag.RowsAffected()), nil
}
