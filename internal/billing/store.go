package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for missing cycles or summaries.
var ErrNotFound = errors.New("not found")

// Store persists the billing ledger.
type Store interface {
	// EnsureCycle returns the user's cycle for the given period,
	// creating it if absent. Concurrent calls for the same key must
	// converge on one cycle.
	EnsureCycle(ctx context.Context, tenantID, userID uuid.UUID, periodStart, periodEnd time.Time) (*BillingCycle, error)
	InsertConsumption(ctx context.Context, row *TokenConsumption) error
	// RecomputeSummary re-aggregates a cycle's rows and persists the
	// result.
	RecomputeSummary(ctx context.Context, cycleID uuid.UUID) (*CycleSummary, error)
	GetSummary(ctx context.Context, cycleID uuid.UUID) (*CycleSummary, error)
	// ListConsumption returns a tenant's rows, most recent first.
	ListConsumption(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*TokenConsumption, error)
	// UserOverview aggregates one tenant's consumption per user within
	// a period, highest token total first.
	UserOverview(ctx context.Context, tenantID uuid.UUID, periodStart, periodEnd time.Time) ([]*UserOverview, error)
}
