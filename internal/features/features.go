// Package features computes the per-token feature vector (§4.3). Every
// function here is pure and total: no I/O, no panics, every output finite.
// Division always uses a positive epsilon; degenerate inputs are replaced
// with the neutral value documented per feature rather than NaN/Inf.
package features

import "math"

// epsilon guards every division against a zero denominator (§9 Design Notes).
const epsilon = 1e-9

// Vector is the feature vector produced for one token at one point in the
// cycle, consumed by the Scoring Engine (§4.5).
type Vector struct {
	TokenAddress string

	StealthAccumulation float64 // "sa"
	HolderAcceleration  float64 // "holder_acc"
	VolatilityShift     float64 // "vol_shift"
	SellPressure        float64 // "sell_pressure"
	LiquidityAccel      float64
	VolumeHHI           float64
	DipRecovery         float64
	VolumeIntensity     float64 // "vol_intensity", turnover
	Momentum            float64
	TrendQuality        float64
	VolumeQuality       float64

	Volume5m float64 // carried through for regime detection in the Scoring Engine
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func safeDiv(num, den float64) float64 {
	return num / (den + epsilon)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// HolderAcceleration computes (Δ1 - Δ2) / (H_t + 1), clipped to [-10, 10],
// where Δ1 = H_t - H_{t-10} and Δ2 = H_{t-10} - H_{t-20}.
func HolderAcceleration(hT, hT10, hT20 float64) float64 {
	d1 := hT - hT10
	d2 := hT10 - hT20
	v := safeDiv(d1-d2, hT+1)
	if !finite(v) {
		return 0
	}
	return clamp(v, -10, 10)
}

// StealthAccumulation computes unique_buyers * (1 - sells/buys) * stability,
// where stability = clamp(1 - std(price)/mean(price), 0, 1).
func StealthAccumulation(uniqueBuyers float64, buys, sells int, priceWindow []float64) float64 {
	sellRatio := safeDiv(float64(sells), float64(buys))
	if buys == 0 {
		sellRatio = 1 // no buys at all: neutral/no accumulation signal
	}
	mean, std := meanStd(priceWindow)
	stability := clamp(1-safeDiv(std, mean), 0, 1)
	v := uniqueBuyers * (1 - sellRatio) * stability
	if !finite(v) {
		return 0
	}
	return v
}

// VolatilityShift computes std(price_5m) / std(price_20m).
func VolatilityShift(price5m, price20m []float64) float64 {
	_, std5 := meanStd(price5m)
	_, std20 := meanStd(price20m)
	v := safeDiv(std5, std20)
	if !finite(v) {
		return 0
	}
	return v
}

// SellPressure computes sells_5m / (buys_5m + sells_5m + 1).
func SellPressure(buys5m, sells5m int) float64 {
	v := float64(sells5m) / (float64(buys5m) + float64(sells5m) + 1)
	if !finite(v) {
		return 0
	}
	return v
}

// LiquidityAcceleration is the finite second difference of liquidity,
// normalised by the current value.
func LiquidityAcceleration(liqT, liqT1, liqT2, liqNow float64) float64 {
	secondDiff := (liqT - liqT1) - (liqT1 - liqT2)
	v := safeDiv(secondDiff, liqNow)
	if !finite(v) {
		return 0
	}
	return v
}

// VolumeHHI computes the Herfindahl-Hirschman Index over per-buyer volume
// shares; 0 if the distribution is unknown.
func VolumeHHI(perBuyerVolume []float64) float64 {
	if len(perBuyerVolume) == 0 {
		return 0
	}
	var total float64
	for _, v := range perBuyerVolume {
		total += v
	}
	if total <= 0 {
		return 0
	}
	var hhi float64
	for _, v := range perBuyerVolume {
		share := v / total
		hhi += share * share
	}
	if !finite(hhi) {
		return 0
	}
	return hhi
}

// DipRecovery computes (current - low) / (high - low) over the price window;
// 0.5 (flat/neutral) if the window has zero range.
func DipRecovery(current, high, low float64) float64 {
	rng := high - low
	if rng <= epsilon {
		return 0.5
	}
	v := (current - low) / rng
	if !finite(v) {
		return 0.5
	}
	return v
}

// VolumeIntensity (turnover) computes volume_5m / (liquidity + 1).
func VolumeIntensity(volume5m, liquidity float64) float64 {
	v := volume5m / (liquidity + 1)
	if !finite(v) {
		return 0
	}
	return v
}

// Momentum blends price drift, turnover, and the second derivative of price
// into a score normalised to [0,1].
func Momentum(priceDrift, turnover, priceSecondDeriv float64) float64 {
	driftTerm := clamp((priceDrift+1)/2, 0, 1)
	turnoverTerm := clamp(turnover, 0, 1)
	accelTerm := clamp((priceSecondDeriv+1)/2, 0, 1)
	v := 0.5*driftTerm + 0.3*turnoverTerm + 0.2*accelTerm
	if !finite(v) {
		return 0
	}
	return clamp(v, 0, 1)
}

// TrendQuality combines higher-high/higher-low count, up-move ratio, and
// move/volatility efficiency into a score in [0,1].
func TrendQuality(highs, lows, closes []float64) float64 {
	if len(highs) < 2 || len(lows) < 2 || len(closes) < 2 {
		return 0
	}
	hhCount := 0
	for i := 1; i < len(highs); i++ {
		if highs[i] > highs[i-1] && lows[i] > lows[i-1] {
			hhCount++
		}
	}
	hhRatio := float64(hhCount) / float64(len(highs)-1)

	upMoves := 0
	for i := 1; i < len(closes); i++ {
		if closes[i] > closes[i-1] {
			upMoves++
		}
	}
	upRatio := float64(upMoves) / float64(len(closes)-1)

	netMove := closes[len(closes)-1] - closes[0]
	_, vol := meanStd(closes)
	efficiency := clamp(safeDiv(math.Abs(netMove), vol*float64(len(closes))), 0, 1)

	v := (hhRatio + upRatio + efficiency) / 3
	if !finite(v) {
		return 0
	}
	return clamp(v, 0, 1)
}

// VolumeQuality composes a piecewise turnover score, a buy/sell balance
// score, and a participation score.
func VolumeQuality(turnover float64, buys5m, sells5m, uniqueBuyers int) float64 {
	var turnoverScore float64
	switch {
	case turnover <= 0:
		turnoverScore = 0
	case turnover < 0.1:
		turnoverScore = turnover / 0.1 * 0.5
	case turnover < 1.0:
		turnoverScore = 0.5 + (turnover-0.1)/0.9*0.5
	default:
		turnoverScore = 1.0
	}

	total := buys5m + sells5m
	var balanceScore float64
	if total > 0 {
		balanceScore = 1 - math.Abs(float64(buys5m-sells5m))/float64(total)
	}

	participationScore := clamp(float64(uniqueBuyers)/50.0, 0, 1)

	v := turnoverScore * balanceScore * participationScore
	if !finite(v) {
		return 0
	}
	return clamp(v, 0, 1)
}

// meanStd returns the sample mean and population standard deviation of xs:
// both 0 for an empty slice, and the element itself with std 0 for a
// single-element slice.
func meanStd(xs []float64) (mean, std float64) {
	n := len(xs)
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(n)
	if n == 1 {
		return mean, 0
	}
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	std = math.Sqrt(sq / float64(n))
	return mean, std
}
