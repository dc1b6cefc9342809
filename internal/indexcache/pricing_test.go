package indexcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFractionalCost(t *testing.T) {
	p := Pricing{ExpectedTenants: 20, FloorUSD: 0.01}

	tests := []struct {
		name     string
		original float64
		want     float64
	}{
		{"even split", 0.60, 0.03},
		{"rounds to cents", 0.25, 0.01},
		{"floor applies when share rounds to zero", 0.05, 0.01},
		{"cheap run never costs more than it cost", 0.005, 0.005},
		{"large run", 40.00, 2.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, p.FractionalCost(tt.original), 1e-9)
		})
	}
}

func TestFractionalCostInvariant(t *testing.T) {
	p := Pricing{ExpectedTenants: 20, FloorUSD: 0.01}

	for _, original := range []float64{0.01, 0.02, 0.19, 0.60, 1.37, 12.50, 99.99} {
		share := p.FractionalCost(original)
		assert.Greater(t, share, 0.0, "original %f", original)
		assert.LessOrEqual(t, share, original, "original %f", original)
	}
}

func TestFractionalCostDegenerateDivisor(t *testing.T) {
	p := Pricing{ExpectedTenants: 0, FloorUSD: 0.01}
	assert.InDelta(t, 0.60, p.FractionalCost(0.60), 1e-9)
}
