package indexcache

import "math"

// Pricing amortizes one indexing run's cost across the tenants
// expected to share it.
type Pricing struct {
	// ExpectedTenants divides the original cost. Values below 1 are
	// treated as 1.
	ExpectedTenants int
	// FloorUSD is the minimum price charged per grant.
	FloorUSD float64
}

// FractionalCost computes the per-tenant share of an indexing run.
// The result is rounded to cents, never below the floor, and never
// above the original cost (a single tenant never pays more than the
// run actually cost).
func (p Pricing) FractionalCost(originalUSD float64) float64 {
	divisor := p.ExpectedTenants
	if divisor < 1 {
		divisor = 1
	}

	share := originalUSD / float64(divisor)
	share = math.Round(share*100) / 100

	if share < p.FloorUSD {
		share = p.FloorUSD
	}
	if originalUSD > 0 && share > originalUSD {
		share = originalUSD
	}
	return share
}
