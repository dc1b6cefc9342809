package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore persists the ledger in Postgres.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) EnsureCycle(ctx context.Context, tenantID, userID uuid.UUID, periodStart, periodEnd time.Time) (*BillingCycle, error) {
	// The conflict target makes concurrent ensures for the same key
	// converge on a single row.
	query := `
		INSERT INTO billing_cycles (id, tenant_id, user_id, period_start, period_end, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, user_id, period_start) DO UPDATE SET tenant_id = EXCLUDED.tenant_id
		RETURNING id, tenant_id, user_id, period_start, period_end, status, created_at
	`

	var cycle BillingCycle
	err := s.pool.QueryRow(ctx, query,
		uuid.New(), tenantID, userID, periodStart, periodEnd, CycleOpen, time.Now().UTC(),
	).Scan(
		&cycle.ID, &cycle.TenantID, &cycle.UserID, &cycle.PeriodStart, &cycle.PeriodEnd,
		&cycle.Status, &cycle.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure billing cycle: %w", err)
	}

	return &cycle, nil
}

func (s *PgStore) InsertConsumption(ctx context.Context, row *TokenConsumption) error {
	query := `
		INSERT INTO token_consumption (id, tenant_id, user_id, session_id, cycle_id,
		                               provider, model, operation_type, operation_id,
		                               input_tokens, output_tokens,
		                               cached_tokens, reasoning_tokens, audio_tokens,
		                               cache_write_tokens, cache_read_tokens,
		                               cost_usd, extra_data, created_at)
		VALUES ($1, $2, $3, NULLIF($4, '00000000-0000-0000-0000-000000000000'::uuid),
		        $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := s.pool.Exec(ctx, query,
		row.ID, row.TenantID, row.UserID, row.SessionID, row.CycleID,
		row.Provider, row.Model, row.OperationType, row.OperationID,
		row.Usage.InputTokens, row.Usage.OutputTokens,
		row.Usage.CachedTokens, row.Usage.ReasoningTokens, row.Usage.AudioTokens,
		row.Usage.CacheWriteTokens, row.Usage.CacheReadTokens,
		row.CostUSD, row.ExtraData, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert token consumption: %w", err)
	}

	return nil
}

func (s *PgStore) RecomputeSummary(ctx context.Context, cycleID uuid.UUID) (*CycleSummary, error) {
	summary := &CycleSummary{CycleID: cycleID, UpdatedAt: time.Now().UTC()}

	cycleQuery := `
		SELECT tenant_id, user_id, period_start, period_end
		FROM billing_cycles
		WHERE id = $1
	`
	err := s.pool.QueryRow(ctx, cycleQuery, cycleID).Scan(
		&summary.TenantID, &summary.UserID, &summary.PeriodStart, &summary.PeriodEnd,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load billing cycle: %w", err)
	}

	aggQuery := `
		SELECT operation_type, provider,
		       COUNT(*),
		       COALESCE(SUM(input_tokens + output_tokens + cache_write_tokens + cache_read_tokens), 0),
		       COALESCE(SUM(cost_usd), 0)
		FROM token_consumption
		WHERE cycle_id = $1
		GROUP BY operation_type, provider
		ORDER BY operation_type, provider
	`
	rows, err := s.pool.Query(ctx, aggQuery, cycleID)
	if err != nil {
		return nil, fmt.Errorf("aggregate consumption: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var op OperationTotals
		if err := rows.Scan(&op.OperationType, &op.Provider, &op.Operations, &op.Tokens, &op.CostUSD); err != nil {
			return nil, fmt.Errorf("scan operation totals: %w", err)
		}
		summary.ByOperation = append(summary.ByOperation, op)
		summary.Operations += op.Operations
		summary.TotalTokens += op.Tokens
		summary.TotalCostUSD += op.CostUSD
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate consumption: %w", err)
	}

	byOperation, err := json.Marshal(summary.ByOperation)
	if err != nil {
		return nil, fmt.Errorf("marshal operation totals: %w", err)
	}

	upsertQuery := `
		INSERT INTO token_consumption_summaries (cycle_id, tenant_id, user_id, operations,
		                                         total_tokens, total_cost_usd, by_operation, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (cycle_id) DO UPDATE SET
			operations = EXCLUDED.operations,
			total_tokens = EXCLUDED.total_tokens,
			total_cost_usd = EXCLUDED.total_cost_usd,
			by_operation = EXCLUDED.by_operation,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.pool.Exec(ctx, upsertQuery,
		summary.CycleID, summary.TenantID, summary.UserID, summary.Operations,
		summary.TotalTokens, summary.TotalCostUSD, byOperation, summary.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("persist cycle summary: %w", err)
	}

	return summary, nil
}

func (s *PgStore) GetSummary(ctx context.Context, cycleID uuid.UUID) (*CycleSummary, error) {
	query := `
		SELECT s.cycle_id, s.tenant_id, s.user_id, c.period_start, c.period_end,
		       s.operations, s.total_tokens, s.total_cost_usd, s.by_operation, s.updated_at
		FROM token_consumption_summaries s
		JOIN billing_cycles c ON c.id = s.cycle_id
		WHERE s.cycle_id = $1
	`

	var summary CycleSummary
	var byOperation []byte
	err := s.pool.QueryRow(ctx, query, cycleID).Scan(
		&summary.CycleID, &summary.TenantID, &summary.UserID,
		&summary.PeriodStart, &summary.PeriodEnd,
		&summary.Operations, &summary.TotalTokens, &summary.TotalCostUSD,
		&byOperation, &summary.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cycle summary: %w", err)
	}

	if len(byOperation) > 0 {
		if err := json.Unmarshal(byOperation, &summary.ByOperation); err != nil {
			return nil, fmt.Errorf("unmarshal operation totals: %w", err)
		}
	}

	return &summary, nil
}

func (s *PgStore) ListConsumption(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*TokenConsumption, error) {
	query := `
		SELECT id, tenant_id, user_id,
		       COALESCE(session_id, '00000000-0000-0000-0000-000000000000'::uuid),
		       cycle_id, provider, model, operation_type, operation_id,
		       input_tokens, output_tokens, cached_tokens, reasoning_tokens,
		       audio_tokens, cache_write_tokens, cache_read_tokens,
		       cost_usd, extra_data, created_at
		FROM token_consumption
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.pool.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list token consumption: %w", err)
	}
	defer rows.Close()

	var out []*TokenConsumption
	for rows.Next() {
		var row TokenConsumption
		if err := rows.Scan(
			&row.ID, &row.TenantID, &row.UserID, &row.SessionID, &row.CycleID,
			&row.Provider, &row.Model, &row.OperationType, &row.OperationID,
			&row.Usage.InputTokens, &row.Usage.OutputTokens,
			&row.Usage.CachedTokens, &row.Usage.ReasoningTokens,
			&row.Usage.AudioTokens, &row.Usage.CacheWriteTokens,
			&row.Usage.CacheReadTokens,
			&row.CostUSD, &row.ExtraData, &row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan token consumption: %w", err)
		}
		out = append(out, &row)
	}

	return out, rows.Err()
}

func (s *PgStore) UserOverview(ctx context.Context, tenantID uuid.UUID, periodStart, periodEnd time.Time) ([]*UserOverview, error) {
	query := `
		SELECT t.user_id,
		       COUNT(*),
		       COALESCE(SUM(t.input_tokens + t.output_tokens + t.cache_write_tokens + t.cache_read_tokens), 0),
		       COALESCE(SUM(t.cost_usd), 0)
		FROM token_consumption t
		JOIN billing_cycles c ON c.id = t.cycle_id
		WHERE t.tenant_id = $1 AND c.period_start >= $2 AND c.period_start < $3
		GROUP BY t.user_id
		ORDER BY 3 DESC
	`

	rows, err := s.pool.Query(ctx, query, tenantID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("tenant consumption overview: %w", err)
	}
	defer rows.Close()

	var out []*UserOverview
	for rows.Next() {
		var row UserOverview
		if err := rows.Scan(&row.UserID, &row.Operations, &row.TotalTokens, &row.TotalCostUSD); err != nil {
			return nil, fmt.Errorf("scan user overview: %w", err)
		}
		out = append(out, &row)
	}

	return out, rows.Err()
}
