package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHolderAcceleration(t *testing.T) {
	cases := []struct {
		name                 string
		hT, hT10, hT20       float64
		wantClampedToBounds  bool
	}{
		{"accelerating growth", 140, 100, 80, false},
		{"extreme swing clips to bound", 10, 1000, 0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v := HolderAcceleration(c.hT, c.hT10, c.hT20)
			assert.True(t, finite(v))
			assert.GreaterOrEqual(t, v, -10.0)
			assert.LessOrEqual(t, v, 10.0)
		})
	}
}

func TestSellPressure(t *testing.T) {
	assert.InDelta(t, 8.0/49.0, SellPressure(40, 8), 1e-9)
	assert.Equal(t, 0.0, SellPressure(0, 0))
}

func TestDipRecoveryFlatWindowIsNeutral(t *testing.T) {
	assert.Equal(t, 0.5, DipRecovery(10, 10, 10))
}

func TestDipRecoveryNormalRange(t *testing.T) {
	assert.InDelta(t, 0.5, DipRecovery(15, 20, 10), 1e-9)
}

func TestVolumeIntensity(t *testing.T) {
	assert.InDelta(t, 5000.0/5001.0, VolumeIntensity(5000, 5000), 1e-6)
}

func TestVolumeHHIEmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, VolumeHHI(nil))
}

func TestVolumeHHIConcentrated(t *testing.T) {
	// One buyer holds 100% of volume -> HHI = 1 (maximally concentrated).
	assert.InDelta(t, 1.0, VolumeHHI([]float64{100}), 1e-9)
}

func TestVolumeQualityBounds(t *testing.T) {
	v := VolumeQuality(2.0, 40, 8, 30)
	assert.True(t, finite(v))
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 1.0)
}

func TestMomentumNeverExceedsUnitRange(t *testing.T) {
	v := Momentum(10, 10, 10)
	assert.False(t, math.IsNaN(v))
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 1.0)
}

func TestTrendQualityShortSeriesIsNeutral(t *testing.T) {
	assert.Equal(t, 0.0, TrendQuality([]float64{1}, []float64{1}, []float64{1}))
}
