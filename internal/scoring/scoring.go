// Package scoring implements the cross-sectional Scoring Engine (§4.5):
// robust z-scores, the weighted Instability Index, regime detection, and the
// dynamic signal threshold. It owns no state — every call is a pure
// function of the batch passed in (§3 Ownership).
package scoring

import (
	"math"
	"sort"

	"github.com/nyxsignal/oracle/internal/features"
	"github.com/nyxsignal/oracle/pkg/models"
	"gonum.org/v1/gonum/stat"
)

const epsilon = 1e-9

// Weights are the Instability Index component weights (§4.5, configurable
// via WEIGHT_* env keys).
type Weights struct {
	StealthAccumulation float64
	HolderAcceleration  float64
	VolatilityShift     float64
	SWR                 float64
	VolumeIntensity     float64
	SellPressure        float64
}

// DefaultWeights mirrors early_detector/config.py's WEIGHT_* defaults.
func DefaultWeights() Weights {
	return Weights{
		StealthAccumulation: 2.0,
		HolderAcceleration:  1.5,
		VolatilityShift:     1.5,
		SWR:                 2.0,
		VolumeIntensity:     2.0,
		SellPressure:        2.0,
	}
}

// Row is one token's input to a cycle's cross-sectional scoring pass: its
// feature vector plus the SWR contributed by the Smart Wallet Engine and the
// previous cycle's instability for the Δ-instability computation.
type Row struct {
	Token            string
	Features         features.Vector
	SWR              float64
	PrevInstability  float64
	HasPrevInstability bool
}

// Scored is a Row augmented with the computed Instability Index.
type Scored struct {
	Row
	Instability      float64
	DeltaInstability float64
}

// zscoreRobust computes the median/MAD (scale 1.4826) robust z-score for xs.
// Falls back to std if MAD≈0; falls back to an all-zero series if std≈0 too
// (§4.5 step 1, §9 "Robust z-score ... fallback to std; fallback to zero").
func zscoreRobust(xs []float64) []float64 {
	n := len(xs)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	med := median(xs)

	deviations := make([]float64, n)
	for i, x := range xs {
		deviations[i] = math.Abs(x - med)
	}
	mad := median(deviations)

	if mad < 1e-7 {
		_, std := stat.MeanStdDev(xs, nil)
		if std < 1e-9 {
			return out // already all zero
		}
		for i, x := range xs {
			out[i] = (x - med) / (std + epsilon)
		}
		return out
	}

	scale := 1.4826 * mad
	for i, x := range xs {
		out[i] = (x - med) / (scale + epsilon)
	}
	return out
}

func median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// DetectRegime classifies the batch as STABLE or DEGEN (§4.5 step 3): DEGEN
// if total volume_5m exceeds 2x the historical average, or the robust
// z-score mean of volume_5m exceeds 1.5, or total volume_5m exceeds $500k.
func DetectRegime(rows []Row, avgVolHistory float64) models.MarketRegime {
	if len(rows) == 0 {
		return models.RegimeStable
	}

	vols := make([]float64, len(rows))
	var total float64
	for i, r := range rows {
		vols[i] = r.Features.Volume5m
		total += r.Features.Volume5m
	}

	if avgVolHistory > 0 && total > avgVolHistory*2.0 {
		return models.RegimeDegen
	}

	z := zscoreRobust(vols)
	volZMean := stat.Mean(z, nil)
	if volZMean > 1.5 || total > 500_000 {
		return models.RegimeDegen
	}
	return models.RegimeStable
}

// ComputeInstability runs the full per-batch Instability Index computation
// (§4.5 steps 1-6): robust standardization, regime-adjusted weighted sum,
// velocity baseline boost, data-presence epsilon, and Δ-instability.
func ComputeInstability(rows []Row, w Weights, avgVolHistory float64) ([]Scored, models.MarketRegime) {
	regime := DetectRegime(rows, avgVolHistory)

	if regime == models.RegimeDegen {
		w.SWR *= 1.5
		w.VolumeIntensity *= 1.8
		w.StealthAccumulation *= 1.2
		w.HolderAcceleration *= 0.8
	}

	n := len(rows)
	sa := make([]float64, n)
	holderAcc := make([]float64, n)
	volShift := make([]float64, n)
	swr := make([]float64, n)
	volIntensity := make([]float64, n)
	sellPressure := make([]float64, n)
	for i, r := range rows {
		sa[i] = r.Features.StealthAccumulation
		holderAcc[i] = r.Features.HolderAcceleration
		volShift[i] = r.Features.VolatilityShift
		swr[i] = r.SWR
		volIntensity[i] = r.Features.VolumeIntensity
		sellPressure[i] = r.Features.SellPressure
	}

	zSA := zscoreRobust(sa)
	zHolder := zscoreRobust(holderAcc)
	zVS := zscoreRobust(volShift)
	zSWR := zscoreRobust(swr)
	zVI := zscoreRobust(volIntensity)
	zSell := zscoreRobust(sellPressure)

	out := make([]Scored, n)
	for i, r := range rows {
		instability := w.StealthAccumulation*zSA[i] +
			w.HolderAcceleration*zHolder[i] +
			w.VolatilityShift*zVS[i] +
			w.SWR*zSWR[i] +
			w.VolumeIntensity*zVI[i] -
			w.SellPressure*zSell[i]

		// Velocity baseline boost (§4.5 step 4): absolute bonus for extreme
		// turnover that a robust z-score would otherwise flatten in a small
		// batch.
		if r.Features.VolumeIntensity > 0.5 {
			instability += math.Log1p(r.Features.VolumeIntensity) * (w.VolumeIntensity * 1.5)
		}

		// Data-presence epsilon (§4.5 step 5): keep informed tokens ranked
		// above all-zero tokens in a degenerate batch.
		if r.Features.StealthAccumulation > 0 || r.Features.HolderAcceleration > 0 || r.Features.VolumeIntensity > 0 {
			instability += 0.0001
		}

		delta := 0.0
		if r.HasPrevInstability {
			delta = instability - r.PrevInstability
		}

		out[i] = Scored{Row: r, Instability: instability, DeltaInstability: delta}
	}

	return out, regime
}

const (
	minThresholdFloor = 4.0
	minBatchSize       = 3
)

// SignalThreshold computes the dynamic trigger threshold (§4.5 step 7,
// P2): max(percentile(instabilities, p), absoluteFloor); for batches smaller
// than minBatchSize the floor is used directly.
func SignalThreshold(instabilities []float64, percentile float64) float64 {
	if len(instabilities) == 0 {
		return 99.0
	}
	if len(instabilities) < minBatchSize {
		return minThresholdFloor
	}

	sorted := append([]float64(nil), instabilities...)
	sort.Float64s(sorted)
	threshold := stat.Quantile(percentile, stat.LinInterp, sorted, nil)
	if threshold < minThresholdFloor {
		return minThresholdFloor
	}
	return threshold
}
