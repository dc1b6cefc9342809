package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RecordParams describe one billable operation. Token counts must come
// from the provider's usage report.
type RecordParams struct {
	TenantID      uuid.UUID
	UserID        uuid.UUID
	SessionID     uuid.UUID
	Provider      string
	Model         string
	OperationType string
	OperationID   string
	Usage         TokenUsage
	CostUSD       float64
	ExtraData     map[string]interface{}
}

// Ledger is the write and read surface of the billing subsystem. Rows
// are appended, summaries are derived; nothing is ever mutated in
// place.
type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewLedger(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the ledger clock in tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// RecordTokenConsumption appends one row to the user's current
// monthly cycle, creating the cycle if this is its first event. A
// failed insert is retried once before the error propagates; the cycle
// summary is then recomputed from the rows.
func (l *Ledger) RecordTokenConsumption(ctx context.Context, p RecordParams) (*TokenConsumption, error) {
	now := l.now().UTC()
	periodStart, periodEnd := monthBounds(now)

	cycle, err := l.store.EnsureCycle(ctx, p.TenantID, p.UserID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("ensure billing cycle: %w", err)
	}

	row := &TokenConsumption{
		ID:            uuid.New(),
		TenantID:      p.TenantID,
		UserID:        p.UserID,
		SessionID:     p.SessionID,
		CycleID:       cycle.ID,
		Provider:      p.Provider,
		Model:         p.Model,
		OperationType: p.OperationType,
		OperationID:   p.OperationID,
		Usage:         p.Usage,
		CostUSD:       p.CostUSD,
		ExtraData:     p.ExtraData,
		CreatedAt:     now,
	}

	if err := l.store.InsertConsumption(ctx, row); err != nil {
		l.logger.Warn("consumption insert failed, retrying once",
			"tenant", p.TenantID, "operation", p.OperationType, "error", err)
		if err := l.store.InsertConsumption(ctx, row); err != nil {
			return nil, fmt.Errorf("insert token consumption: %w", err)
		}
	}

	if _, err := l.store.RecomputeSummary(ctx, cycle.ID); err != nil {
		// The rows are the source of truth; the summary can be rebuilt
		// on the next write or read.
		l.logger.Warn("summary recompute failed", "cycle", cycle.ID, "error", err)
	}

	return row, nil
}

// RecordAccessPurchase appends the billing event for a fractional
// knowledge-access grant.
func (l *Ledger) RecordAccessPurchase(ctx context.Context, tenantID, userID uuid.UUID, apiName string, costUSD float64) error {
	_, err := l.RecordTokenConsumption(ctx, RecordParams{
		TenantID:      tenantID,
		UserID:        userID,
		Provider:      "kiff",
		OperationType: "api_access",
		OperationID:   apiName,
		CostUSD:       costUSD,
		ExtraData:     map[string]interface{}{"api_name": apiName},
	})
	return err
}

// RecordAccessRefund appends the compensating row for an access
// purchase whose grant was never minted. Rows are append-only, so the
// correction is a new negative-cost row rather than an update.
func (l *Ledger) RecordAccessRefund(ctx context.Context, tenantID, userID uuid.UUID, apiName string, costUSD float64) error {
	_, err := l.RecordTokenConsumption(ctx, RecordParams{
		TenantID:      tenantID,
		UserID:        userID,
		Provider:      "kiff",
		OperationType: "api_access_refund",
		OperationID:   apiName,
		CostUSD:       -costUSD,
		ExtraData:     map[string]interface{}{"api_name": apiName},
	})
	return err
}

// GetCurrentCycleSummary returns the user's rollup for the calendar
// month in progress, recomputing it if no summary row exists yet.
func (l *Ledger) GetCurrentCycleSummary(ctx context.Context, tenantID, userID uuid.UUID) (*CycleSummary, error) {
	periodStart, periodEnd := monthBounds(l.now())

	cycle, err := l.store.EnsureCycle(ctx, tenantID, userID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("ensure billing cycle: %w", err)
	}

	summary, err := l.store.GetSummary(ctx, cycle.ID)
	if err == nil {
		return summary, nil
	}
	return l.store.RecomputeSummary(ctx, cycle.ID)
}

// GetConsumptionHistory returns a tenant's ledger rows, most recent
// first.
func (l *Ledger) GetConsumptionHistory(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*TokenConsumption, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.ListConsumption(ctx, tenantID, limit, offset)
}

// GetTenantConsumptionOverview aggregates the current month across a
// tenant's users, biggest consumer first.
func (l *Ledger) GetTenantConsumptionOverview(ctx context.Context, tenantID uuid.UUID) ([]*UserOverview, error) {
	periodStart, periodEnd := monthBounds(l.now())
	return l.store.UserOverview(ctx, tenantID, periodStart, periodEnd)
}
