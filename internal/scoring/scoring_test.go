package scoring

import (
	"testing"

	"github.com/nyxsignal/oracle/internal/features"
	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestZscoreRobustConstantSeriesIsZero(t *testing.T) {
	z := zscoreRobust([]float64{5, 5, 5, 5})
	for _, v := range z {
		assert.Equal(t, 0.0, v)
	}
}

func TestZscoreRobustFallsBackToStdWhenMADZero(t *testing.T) {
	// Median/MAD of {1,1,1,1,100} has MAD=0 (4 of 5 values equal the median);
	// std fallback should produce a finite, non-zero outlier score.
	z := zscoreRobust([]float64{1, 1, 1, 1, 100})
	assert.NotEqual(t, 0.0, z[4])
	for _, v := range z {
		assert.False(t, isNaNOrInf(v))
	}
}

func isNaNOrInf(v float64) bool {
	return v != v || v > 1e300 || v < -1e300
}

func TestDetectRegimeDegenOnHighVolume(t *testing.T) {
	rows := []Row{
		{Token: "a", Features: features.Vector{Volume5m: 200_000}},
		{Token: "b", Features: features.Vector{Volume5m: 400_000}},
	}
	regime := DetectRegime(rows, 0)
	assert.Equal(t, models.RegimeDegen, regime)
}

func TestDetectRegimeStableOnLowVolume(t *testing.T) {
	rows := []Row{
		{Token: "a", Features: features.Vector{Volume5m: 100}},
		{Token: "b", Features: features.Vector{Volume5m: 150}},
		{Token: "c", Features: features.Vector{Volume5m: 120}},
	}
	regime := DetectRegime(rows, 1000)
	assert.Equal(t, models.RegimeStable, regime)
}

func TestComputeInstabilityRanksExtremeRowHighest(t *testing.T) {
	rows := []Row{
		{Token: "quiet1", Features: features.Vector{StealthAccumulation: 1, HolderAcceleration: 0.1}},
		{Token: "quiet2", Features: features.Vector{StealthAccumulation: 1.1, HolderAcceleration: 0.2}},
		{Token: "spike", Features: features.Vector{StealthAccumulation: 50, HolderAcceleration: 9, VolumeIntensity: 5}},
	}
	scored, _ := ComputeInstability(rows, DefaultWeights(), 0)
	var spikeIdx int
	for i, s := range scored {
		if s.Token == "spike" {
			spikeIdx = i
		}
	}
	for i, s := range scored {
		if i == spikeIdx {
			continue
		}
		assert.Greater(t, scored[spikeIdx].Instability, s.Instability)
	}
}

func TestSignalThresholdHasAbsoluteFloor(t *testing.T) {
	th := SignalThreshold([]float64{-5, -4, -3, -2, -1}, 0.95)
	assert.GreaterOrEqual(t, th, minThresholdFloor)
}

func TestSignalThresholdSmallBatchUsesFloor(t *testing.T) {
	th := SignalThreshold([]float64{10, 20}, 0.95)
	assert.Equal(t, minThresholdFloor, th)
}
