// Package gate implements the Signal Gate Cascade (§4.6): trigger, safety
// filters, dedup, Bayesian confidence, fractional-Kelly sizing, the quality
// gate, and exit-level computation. Grounded on early_detector/signals.py,
// optimization.py, and exits.py.
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/nyxsignal/oracle/pkg/optional"
)

// Config holds the cascade's tunable thresholds (§4.6, §8 env keys).
type Config struct {
	LiquidityMin       float64
	Top10MaxRatio      float64
	HoldersMin         int
	MicrocapThreshold  float64
	KellyMicrocapMax   float64
	DedupWindowMinutes int

	BayesianPrior float64
	KellyFraction float64
	AvgWin        float64
	AvgLoss       float64

	StopLossRatio     float64
	TakeProfit1Ratio  float64
	CandleScoreFloor  float64
	EarlyTokenMinutes float64
}

// DefaultConfig mirrors early_detector/config.py's defaults.
func DefaultConfig() Config {
	return Config{
		LiquidityMin:       1500,
		Top10MaxRatio:      0.50,
		HoldersMin:         50,
		MicrocapThreshold:  20_000,
		KellyMicrocapMax:   0.10,
		DedupWindowMinutes: 60,

		BayesianPrior: 0.35,
		KellyFraction: 0.25,
		AvgWin:        0.40,
		AvgLoss:       0.15,

		StopLossRatio:     0.15,
		TakeProfit1Ratio:  0.40,
		CandleScoreFloor:  0.4,
		EarlyTokenMinutes: 15,
	}
}

// Input is one scored token row entering the cascade.
type Input struct {
	TokenAddress string

	Instability      float64
	Threshold        float64
	DeltaInstability float64
	VolShift         float64
	VolIntensity     float64
	Buys5m           int

	Liquidity          float64
	LiquidityIsVirtual bool
	MarketCap          float64
	EntryPrice         float64

	MintAuthority   optional.Value[string]
	FreezeAuthority optional.Value[string]
	IsBondingCurve  bool
	Top10Ratio      optional.Value[float64]
	Holders         optional.Value[int]

	InsiderProbability optional.Value[float64]
	CreatorRisk        optional.Value[float64]
	PriceChange5m      float64

	Regime models.MarketRegime
	SWR    float64

	TokenAgeMinutes float64
	Candles         []Candle

	AISummary string
}

// Dedup reports whether a signal already exists for a token within the
// cascade's dedup window (§4.6c). Backed by storage.Store.HasRecentSignal.
type Dedup func(ctx context.Context, tokenAddr string, windowMinutes int) (bool, error)

// Decision is the terminal outcome of one token's pass through the cascade.
type Decision struct {
	Pass   bool
	Reason string
	Signal models.Signal
}

func reject(reason string) Decision {
	return Decision{Pass: false, Reason: reason}
}

// Evaluate runs the full cascade in strict order (§4.6): any negative
// decision is terminal for the cycle.
func Evaluate(ctx context.Context, in Input, cfg Config, dedup Dedup) (Decision, error) {
	if d := trigger(in, cfg); !d.Pass {
		return d, nil
	}
	if d := safety(in, cfg); !d.Pass {
		return d, nil
	}

	seen, err := dedup(ctx, in.TokenAddress, cfg.DedupWindowMinutes)
	if err != nil {
		return Decision{}, fmt.Errorf("gate: dedup check for %s: %w", in.TokenAddress, err)
	}
	if seen {
		return reject("dedup: recent signal already exists"), nil
	}

	posterior := bayesianConfidence(in, cfg)
	size := kellySize(posterior, in, cfg)
	if size <= 0.01 {
		return reject("kelly size below minimum"), nil
	}

	if d := qualityGate(in, posterior, cfg); !d.Pass {
		return d, nil
	}

	sl := in.EntryPrice * (1 - cfg.StopLossRatio)
	tp1 := in.EntryPrice * (1 + cfg.TakeProfit1Ratio)

	sig := models.Signal{
		TokenAddress:       in.TokenAddress,
		ObservedAt:         time.Now(),
		InstabilityIndex:   in.Instability,
		EntryPrice:         in.EntryPrice,
		Liquidity:          in.Liquidity,
		MarketCap:          in.MarketCap,
		BayesianConfidence: posterior,
		KellySize:          size,
		InsiderProbability: in.InsiderProbability.OrElse(0),
		CreatorRisk:        in.CreatorRisk.OrElse(0),
		StopLoss:           sl,
		TakeProfit1:        tp1,
		AISummary:          in.AISummary,
	}
	return Decision{Pass: true, Signal: sig}, nil
}

func trigger(in Input, cfg Config) Decision {
	if in.Instability < in.Threshold {
		return reject("trigger: instability below threshold")
	}
	if in.DeltaInstability < -2.5 && in.Instability < 2*in.Threshold && in.DeltaInstability < -15 {
		return reject("trigger: collapsing token")
	}
	if in.VolShift >= 12 && in.Instability < 1.8*in.Threshold {
		return reject("trigger: volatility expansion without matching strength")
	}

	momentumFastTrack := in.VolIntensity > 5 && in.Buys5m > 50

	if in.Liquidity < cfg.LiquidityMin {
		microLiquidityException := in.VolIntensity > 3 && in.Instability > in.Threshold
		if !microLiquidityException {
			return reject("trigger: liquidity below minimum")
		}
	}
	if in.MarketCap < 2000 {
		return reject("trigger: marketcap dust")
	}

	if momentumFastTrack {
		return Decision{Pass: true}
	}

	result, ok := EvaluateCandlePattern(in.Candles)
	if !ok {
		// Fail-open: too little history to judge, don't penalise (§4.7).
		if in.TokenAgeMinutes < 15 {
			return Decision{Pass: true}
		}
		return Decision{Pass: true}
	}
	if result.Score >= cfg.CandleScoreFloor {
		return Decision{Pass: true}
	}
	if in.TokenAgeMinutes < 15 {
		return Decision{Pass: true}
	}
	return reject("trigger: candle-pattern check failed")
}

func safety(in Input, cfg Config) Decision {
	if _, known := in.MintAuthority.Get(); known {
		return reject("safety: mint authority non-null")
	}
	if _, known := in.FreezeAuthority.Get(); known {
		return reject("safety: freeze authority non-null")
	}

	top10, top10Known := in.Top10Ratio.Get()
	if !in.IsBondingCurve {
		if top10Known && top10 > cfg.Top10MaxRatio {
			return reject("safety: top10 concentration too high")
		}
		if !top10Known {
			if in.MarketCap > 50_000 {
				return reject("safety: top10 unknown for non-microcap token")
			}
			// Unknown and microcap: proceed with reduced confidence (§4.6b).
		}
	}

	if holders, known := in.Holders.Get(); known {
		if holders < cfg.HoldersMin && in.MarketCap > 30_000 {
			return reject("safety: holder count below minimum")
		}
	}

	if psi, known := in.InsiderProbability.Get(); known && psi > 0.60 {
		return reject("safety: verified insider probability too high")
	}
	if risk, known := in.CreatorRisk.Get(); known && risk > 0.55 {
		return reject("safety: verified creator risk too high")
	}

	if in.PriceChange5m >= 5.0 {
		return reject("safety: already pumped")
	}

	return Decision{Pass: true}
}

func bayesianConfidence(in Input, cfg Config) float64 {
	prior := clamp(cfg.BayesianPrior, 0.01, 0.99)
	odds := prior / (1 - prior)

	if in.Regime == models.RegimeDegen {
		odds *= 1.1
	}

	if risk, known := in.CreatorRisk.Get(); known {
		switch {
		case risk < 0.15:
			odds *= 1.3
		case risk > 0.5:
			odds *= 0.6
		}
	} else {
		odds *= 0.85
	}

	if psi, known := in.InsiderProbability.Get(); known {
		switch {
		case psi < 0.10:
			odds *= 1.3
		case psi > 0.5:
			odds *= 0.6
		}
	} else {
		odds *= 0.85
	}

	if in.Threshold > 0 && in.Instability/in.Threshold > 1.5 {
		odds *= 1.25
	}

	switch {
	case in.DeltaInstability > 20:
		odds *= 1.2
	case in.DeltaInstability < -10:
		odds *= 0.8
	}

	if in.SWR > 0 {
		odds *= 1.5
	}

	if in.LiquidityIsVirtual {
		odds *= 0.8
	}

	if top10, known := in.Top10Ratio.Get(); known {
		switch {
		case top10 > 0.80:
			odds *= 0.70
		case top10 > 0.60:
			odds *= 0.85
		}
	}

	posterior := odds / (1 + odds)
	return clamp(posterior, 0.01, 0.99)
}

func kellySize(posterior float64, in Input, cfg Config) float64 {
	p := posterior
	q := 1 - p
	size := cfg.KellyFraction * (p*cfg.AvgWin - q*cfg.AvgLoss) / cfg.AvgLoss
	size = clamp(size, 0, 1)

	if in.MarketCap < cfg.MicrocapThreshold && size > cfg.KellyMicrocapMax {
		size = cfg.KellyMicrocapMax
	}

	if psi, known := in.InsiderProbability.Get(); known && psi >= 0.4 && psi <= 0.6 {
		size /= 2
	}

	return size
}

func qualityGate(in Input, posterior float64, cfg Config) Decision {
	if in.MarketCap < 2000 {
		return reject("quality: marketcap below floor")
	}
	minLiquidity := 200.0
	if in.LiquidityIsVirtual {
		minLiquidity = 300.0
	}
	if in.Liquidity < minLiquidity {
		return reject("quality: liquidity below floor")
	}

	if in.TokenAgeMinutes < cfg.EarlyTokenMinutes {
		result, ok := EvaluateCandlePattern(in.Candles)
		if ok && result.Score*100 < 40 {
			return reject("quality: degen score too low for young token")
		}
	}

	if in.SWR <= 0 {
		if psi, known := in.InsiderProbability.Get(); !known || psi < 0.3 {
			if posterior < 0.50 {
				return reject("quality: posterior below floor for low-evidence token")
			}
		}
	}

	return Decision{Pass: true}
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
