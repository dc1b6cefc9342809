package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLedger() (*Ledger, *MemoryStore, *testClock) {
	store := NewMemoryStore()
	clock := &testClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	ledger := NewLedger(store, nil).WithClock(clock.Now)
	return ledger, store, clock
}

func TestRecordTokenConsumptionAggregates(t *testing.T) {
	ledger, _, _ := newTestLedger()
	ctx := context.Background()
	tenantID, userID := uuid.New(), uuid.New()

	_, err := ledger.RecordTokenConsumption(ctx, RecordParams{
		TenantID: tenantID, UserID: userID,
		Provider: "openai", Model: "gpt-4o-mini", OperationType: "chat",
		Usage:   TokenUsage{InputTokens: 1000, OutputTokens: 500, CachedTokens: 200},
		CostUSD: 0.12,
	})
	require.NoError(t, err)

	_, err = ledger.RecordTokenConsumption(ctx, RecordParams{
		TenantID: tenantID, UserID: userID,
		Provider: "openai", Model: "text-embedding-3-small", OperationType: "embedding",
		Usage:   TokenUsage{InputTokens: 3000},
		CostUSD: 0.02,
	})
	require.NoError(t, err)

	require.NoError(t, ledger.RecordAccessPurchase(ctx, tenantID, userID, "stripe", 0.03))

	summary, err := ledger.GetCurrentCycleSummary(ctx, tenantID, userID)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Operations)
	assert.Equal(t, int64(4500), summary.TotalTokens)
	assert.InDelta(t, 0.17, summary.TotalCostUSD, 1e-9)
	require.Len(t, summary.ByOperation, 3)

	// Per (operation, provider) rollups, sorted by operation type.
	assert.Equal(t, "api_access", summary.ByOperation[0].OperationType)
	assert.Equal(t, "kiff", summary.ByOperation[0].Provider)
	assert.InDelta(t, 0.03, summary.ByOperation[0].CostUSD, 1e-9)
	assert.Equal(t, "chat", summary.ByOperation[1].OperationType)
	assert.Equal(t, int64(1500), summary.ByOperation[1].Tokens)
	assert.Equal(t, "embedding", summary.ByOperation[2].OperationType)
	assert.Equal(t, "openai", summary.ByOperation[2].Provider)
	assert.Equal(t, int64(3000), summary.ByOperation[2].Tokens)
}

func TestBillingCycleIsIdempotentPerUserMonth(t *testing.T) {
	ledger, store, clock := newTestLedger()
	ctx := context.Background()
	tenantID, userID := uuid.New(), uuid.New()

	row1, err := ledger.RecordTokenConsumption(ctx, RecordParams{
		TenantID: tenantID, UserID: userID, OperationType: "chat",
		Usage: TokenUsage{InputTokens: 10},
	})
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)

	row2, err := ledger.RecordTokenConsumption(ctx, RecordParams{
		TenantID: tenantID, UserID: userID, OperationType: "chat",
		Usage: TokenUsage{InputTokens: 20},
	})
	require.NoError(t, err)

	assert.Equal(t, row1.CycleID, row2.CycleID, "same month lands in the same cycle")

	// A different user in the same tenant gets their own cycle.
	row3, err := ledger.RecordTokenConsumption(ctx, RecordParams{
		TenantID: tenantID, UserID: uuid.New(), OperationType: "chat",
		Usage: TokenUsage{InputTokens: 30},
	})
	require.NoError(t, err)
	assert.NotEqual(t, row1.CycleID, row3.CycleID)

	// A new month opens a new cycle.
	clock.Advance(31 * 24 * time.Hour)
	row4, err := ledger.RecordTokenConsumption(ctx, RecordParams{
		TenantID: tenantID, UserID: userID, OperationType: "chat",
		Usage: TokenUsage{InputTokens: 40},
	})
	require.NoError(t, err)
	assert.NotEqual(t, row1.CycleID, row4.CycleID)

	// Concurrent ensures converge on one cycle row.
	start, end := monthBounds(clock.Now())
	c1, err := store.EnsureCycle(ctx, tenantID, userID, start, end)
	require.NoError(t, err)
	c2, err := store.EnsureCycle(ctx, tenantID, userID, start, end)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
}

func TestRecordAccessRefundCompensatesPurchase(t *testing.T) {
	ledger, _, _ := newTestLedger()
	ctx := context.Background()
	tenantID, userID := uuid.New(), uuid.New()

	require.NoError(t, ledger.RecordAccessPurchase(ctx, tenantID, userID, "stripe", 0.03))
	require.NoError(t, ledger.RecordAccessRefund(ctx, tenantID, userID, "stripe", 0.03))

	summary, err := ledger.GetCurrentCycleSummary(ctx, tenantID, userID)
	require.NoError(t, err)

	// Both rows stay on the ledger; the costs cancel out.
	assert.Equal(t, 2, summary.Operations)
	assert.InDelta(t, 0.0, summary.TotalCostUSD, 1e-9)
	require.Len(t, summary.ByOperation, 2)
	assert.Equal(t, "api_access", summary.ByOperation[0].OperationType)
	assert.InDelta(t, 0.03, summary.ByOperation[0].CostUSD, 1e-9)
	assert.Equal(t, "api_access_refund", summary.ByOperation[1].OperationType)
	assert.InDelta(t, -0.03, summary.ByOperation[1].CostUSD, 1e-9)
}

func TestRecordTokenConsumptionRetriesOnce(t *testing.T) {
	ledger, store, _ := newTestLedger()
	ctx := context.Background()

	store.FailInserts = 1
	row, err := ledger.RecordTokenConsumption(ctx, RecordParams{
		TenantID: uuid.New(), UserID: uuid.New(), OperationType: "chat",
		Usage: TokenUsage{InputTokens: 10},
	})
	require.NoError(t, err, "a single failure is absorbed by the retry")
	require.NotNil(t, row)

	store.FailInserts = 2
	_, err = ledger.RecordTokenConsumption(ctx, RecordParams{
		TenantID: uuid.New(), UserID: uuid.New(), OperationType: "chat",
		Usage: TokenUsage{InputTokens: 10},
	})
	require.Error(t, err, "a second consecutive failure propagates")
}

func TestConsumptionHistoryRecentFirst(t *testing.T) {
	ledger, _, clock := newTestLedger()
	ctx := context.Background()
	tenantID, userID := uuid.New(), uuid.New()

	for _, model := range []string{"first", "second", "third"} {
		_, err := ledger.RecordTokenConsumption(ctx, RecordParams{
			TenantID: tenantID, UserID: userID, Model: model, OperationType: "chat",
			Usage: TokenUsage{InputTokens: 1},
		})
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	rows, err := ledger.GetConsumptionHistory(ctx, tenantID, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "third", rows[0].Model)
	assert.Equal(t, "second", rows[1].Model)
	assert.Equal(t, "first", rows[2].Model)

	// Pagination.
	rows, err = ledger.GetConsumptionHistory(ctx, tenantID, 1, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "second", rows[0].Model)
}

func TestTenantOverviewOrderedByTokens(t *testing.T) {
	ledger, _, _ := newTestLedger()
	ctx := context.Background()

	tenantID := uuid.New()
	small, big := uuid.New(), uuid.New()

	_, err := ledger.RecordTokenConsumption(ctx, RecordParams{
		TenantID: tenantID, UserID: small, OperationType: "chat",
		Usage: TokenUsage{InputTokens: 100},
	})
	require.NoError(t, err)

	_, err = ledger.RecordTokenConsumption(ctx, RecordParams{
		TenantID: tenantID, UserID: big, OperationType: "chat",
		Usage: TokenUsage{InputTokens: 9000},
	})
	require.NoError(t, err)

	// Another tenant's rows never leak into the overview.
	_, err = ledger.RecordTokenConsumption(ctx, RecordParams{
		TenantID: uuid.New(), UserID: uuid.New(), OperationType: "chat",
		Usage: TokenUsage{InputTokens: 50000},
	})
	require.NoError(t, err)

	overview, err := ledger.GetTenantConsumptionOverview(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, overview, 2)
	assert.Equal(t, big, overview[0].UserID)
	assert.Equal(t, int64(9000), overview[0].TotalTokens)
	assert.Equal(t, small, overview[1].UserID)
}

func TestMonthBounds(t *testing.T) {
	start, end := monthBounds(time.Date(2025, 3, 17, 8, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestTokenUsageTotal(t *testing.T) {
	u := TokenUsage{
		InputTokens: 100, OutputTokens: 50,
		CachedTokens: 30, ReasoningTokens: 20,
		CacheWriteTokens: 10, CacheReadTokens: 5,
	}
	// Cached and reasoning tokens are sub-counts of input/output;
	// cache write/read are separate line items.
	assert.Equal(t, 165, u.Total())
}
