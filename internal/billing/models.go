package billing

import (
	"time"

	"github.com/google/uuid"
)

// TokenUsage breaks one operation's token consumption into the
// sub-counts providers report. All counts come from provider usage
// reports, never from local estimates.
type TokenUsage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CachedTokens     int `json:"cached_tokens"`
	ReasoningTokens  int `json:"reasoning_tokens"`
	AudioTokens      int `json:"audio_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens"`
}

// Total is the billable token count. Cached, reasoning and audio
// tokens are already included in the input/output counts providers
// report; cache write/read counts are separate line items.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheWriteTokens + u.CacheReadTokens
}

// TokenConsumption is one append-only ledger row. Rows are never
// updated or deleted; corrections append compensating rows.
type TokenConsumption struct {
	ID            uuid.UUID              `json:"id"`
	TenantID      uuid.UUID              `json:"tenant_id"`
	UserID        uuid.UUID              `json:"user_id"`
	SessionID     uuid.UUID              `json:"session_id,omitempty"`
	CycleID       uuid.UUID              `json:"cycle_id"`
	Provider      string                 `json:"provider"`
	Model         string                 `json:"model"`
	OperationType string                 `json:"operation_type"`
	OperationID   string                 `json:"operation_id,omitempty"`
	Usage         TokenUsage             `json:"usage"`
	CostUSD       float64                `json:"cost_usd"`
	ExtraData     map[string]interface{} `json:"extra_data,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

type CycleStatus string

const (
	CycleOpen   CycleStatus = "open"
	CycleClosed CycleStatus = "closed"
)

// BillingCycle is one user's calendar-month billing period (UTC)
// within a tenant. At most one cycle exists per (tenant, user, period).
type BillingCycle struct {
	ID          uuid.UUID   `json:"id"`
	TenantID    uuid.UUID   `json:"tenant_id"`
	UserID      uuid.UUID   `json:"user_id"`
	PeriodStart time.Time   `json:"period_start"`
	PeriodEnd   time.Time   `json:"period_end"`
	Status      CycleStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}

// OperationTotals aggregates one (operation type, provider) pair
// within a cycle.
type OperationTotals struct {
	OperationType string  `json:"operation_type"`
	Provider      string  `json:"provider"`
	Operations    int     `json:"operations"`
	Tokens        int64   `json:"tokens"`
	CostUSD       float64 `json:"cost_usd"`
}

// CycleSummary is the derived rollup of a cycle. It is always
// recomputed from the consumption rows, never incremented in place, so
// it can be rebuilt after any failure.
type CycleSummary struct {
	CycleID      uuid.UUID         `json:"cycle_id"`
	TenantID     uuid.UUID         `json:"tenant_id"`
	UserID       uuid.UUID         `json:"user_id"`
	PeriodStart  time.Time         `json:"period_start"`
	PeriodEnd    time.Time         `json:"period_end"`
	Operations   int               `json:"operations"`
	TotalTokens  int64             `json:"total_tokens"`
	TotalCostUSD float64           `json:"total_cost_usd"`
	ByOperation  []OperationTotals `json:"by_operation"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// UserOverview is one user's standing in a tenant's consumption
// report.
type UserOverview struct {
	UserID       uuid.UUID `json:"user_id"`
	Operations   int       `json:"operations"`
	TotalTokens  int64     `json:"total_tokens"`
	TotalCostUSD float64   `json:"total_cost_usd"`
}

// monthBounds returns the UTC calendar-month period containing t.
func monthBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
