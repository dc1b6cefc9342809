package billing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errInsertFailed = errors.New("simulated insert failure")

// MemoryStore keeps the ledger in process memory for tests and
// single-node setups.
type MemoryStore struct {
	mu        sync.RWMutex
	cycles    map[uuid.UUID]*BillingCycle
	rows      []*TokenConsumption
	summaries map[uuid.UUID]*CycleSummary

	// FailInserts makes the next n InsertConsumption calls fail, for
	// exercising retry behavior.
	FailInserts int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cycles:    make(map[uuid.UUID]*BillingCycle),
		summaries: make(map[uuid.UUID]*CycleSummary),
	}
}

func (s *MemoryStore) EnsureCycle(_ context.Context, tenantID, userID uuid.UUID, periodStart, periodEnd time.Time) (*BillingCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cycle := range s.cycles {
		if cycle.TenantID == tenantID && cycle.UserID == userID && cycle.PeriodStart.Equal(periodStart) {
			cp := *cycle
			return &cp, nil
		}
	}

	cycle := &BillingCycle{
		ID:          uuid.New(),
		TenantID:    tenantID,
		UserID:      userID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Status:      CycleOpen,
		CreatedAt:   time.Now().UTC(),
	}
	s.cycles[cycle.ID] = cycle
	cp := *cycle
	return &cp, nil
}

func (s *MemoryStore) InsertConsumption(_ context.Context, row *TokenConsumption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailInserts > 0 {
		s.FailInserts--
		return errInsertFailed
	}

	cp := *row
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *MemoryStore) RecomputeSummary(_ context.Context, cycleID uuid.UUID) (*CycleSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cycle, ok := s.cycles[cycleID]
	if !ok {
		return nil, ErrNotFound
	}

	summary := &CycleSummary{
		CycleID:     cycleID,
		TenantID:    cycle.TenantID,
		UserID:      cycle.UserID,
		PeriodStart: cycle.PeriodStart,
		PeriodEnd:   cycle.PeriodEnd,
		UpdatedAt:   time.Now().UTC(),
	}

	byOp := make(map[string]*OperationTotals)
	for _, row := range s.rows {
		if row.CycleID != cycleID {
			continue
		}
		key := row.OperationType + "\x00" + row.Provider
		op, ok := byOp[key]
		if !ok {
			op = &OperationTotals{OperationType: row.OperationType, Provider: row.Provider}
			byOp[key] = op
		}
		op.Operations++
		op.Tokens += int64(row.Usage.Total())
		op.CostUSD += row.CostUSD

		summary.Operations++
		summary.TotalTokens += int64(row.Usage.Total())
		summary.TotalCostUSD += row.CostUSD
	}

	ops := make([]string, 0, len(byOp))
	for op := range byOp {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		summary.ByOperation = append(summary.ByOperation, *byOp[op])
	}

	s.summaries[cycleID] = summary
	cp := *summary
	return &cp, nil
}

func (s *MemoryStore) GetSummary(_ context.Context, cycleID uuid.UUID) (*CycleSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[cycleID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *summary
	return &cp, nil
}

func (s *MemoryStore) ListConsumption(_ context.Context, tenantID uuid.UUID, limit, offset int) ([]*TokenConsumption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*TokenConsumption
	for _, row := range s.rows {
		if row.TenantID == tenantID {
			cp := *row
			rows = append(rows, &cp)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})

	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *MemoryStore) UserOverview(_ context.Context, tenantID uuid.UUID, periodStart, periodEnd time.Time) ([]*UserOverview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byUser := make(map[uuid.UUID]*UserOverview)
	for _, row := range s.rows {
		if row.TenantID != tenantID {
			continue
		}
		cycle, ok := s.cycles[row.CycleID]
		if !ok || cycle.PeriodStart.Before(periodStart) || !cycle.PeriodStart.Before(periodEnd) {
			continue
		}
		u, ok := byUser[row.UserID]
		if !ok {
			u = &UserOverview{UserID: row.UserID}
			byUser[row.UserID] = u
		}
		u.Operations++
		u.TotalTokens += int64(row.Usage.Total())
		u.TotalCostUSD += row.CostUSD
	}

	out := make([]*UserOverview, 0, len(byUser))
	for _, u := range byUser {
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalTokens > out[j].TotalTokens
	})
	return out, nil
}
