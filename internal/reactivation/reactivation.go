// Package reactivation implements the dormant-token rescan: a secondary
// scheduler task (§4.8 supplement) that periodically re-probes tokens that
// were actively tracked and then went quiet, looking for smart-wallet
// re-entry as evidence the token is waking back up. Adapted from the
// teacher's internal/reactivation.System, ported off its token/wallet-engine
// dependencies onto this repo's Store/Collector/ChainRPC collaborators.
package reactivation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nyxsignal/oracle/internal/chainrpc"
	"github.com/nyxsignal/oracle/internal/collector"
	"github.com/nyxsignal/oracle/internal/storage"
	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/nyxsignal/oracle/pkg/utils/logger"
)

// Config tunes the rescan cadence and the dormancy/reactivation thresholds.
type Config struct {
	RescanInterval time.Duration

	// LookbackMinutes bounds how far back a token must have been observed to
	// still count as a rescan candidate at all.
	LookbackMinutes int
	// QuietMinutes is the window that must be empty of fresh metrics for a
	// previously-tracked token to count as dormant.
	QuietMinutes int

	ScoreThreshold float64

	SmartWalletMinROI     float64
	SmartWalletMinTrades   int
	SmartWalletMinWinRate float64
}

// DefaultConfig mirrors the teacher's System defaults (15-minute scan
// interval), extended with this domain's dormancy/smart-wallet thresholds.
func DefaultConfig() Config {
	return Config{
		RescanInterval:        15 * time.Minute,
		LookbackMinutes:       30 * 24 * 60,
		QuietMinutes:          6 * 60,
		ScoreThreshold:        60,
		SmartWalletMinROI:     1.3,
		SmartWalletMinTrades:  2,
		SmartWalletMinWinRate: 0.35,
	}
}

// Candidate is one dormant token whose fresh probe shows reactivation signs.
type Candidate struct {
	TokenAddress     string
	Score            float64
	VolumeRatio      float64
	PriceChange      float64
	HolderGrowth     float64
	ReturningWallets []string
	DetectedAt       time.Time
}

// Task owns the rescan loop. It holds no state of its own between scans —
// dormancy is derived fresh from Store on every tick.
type Task struct {
	cfg       Config
	store     storage.Store
	collector *collector.Collector
	chain     chainrpc.ChainRPC
	log       *logger.Logger

	onCandidate func(Candidate)
}

// New builds a Task over its collaborators. onCandidate is called for every
// token that crosses ScoreThreshold; a nil onCandidate just logs.
func New(cfg Config, store storage.Store, coll *collector.Collector, chain chainrpc.ChainRPC, log *logger.Logger, onCandidate func(Candidate)) *Task {
	return &Task{cfg: cfg, store: store, collector: coll, chain: chain, log: log, onCandidate: onCandidate}
}

// Run drives the rescan loop until ctx is cancelled.
func (t *Task) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Scan(ctx); err != nil {
				t.log.Error("reactivation: scan failed", err, nil)
			}
		}
	}
}

// Scan runs one rescan pass over every token observed within LookbackMinutes
// (§4.8 supplement): tokens with no metric in the last QuietMinutes are
// dormant and get re-probed for reactivation signs.
func (t *Task) Scan(ctx context.Context) error {
	tracked, err := t.store.TokensObservedSince(ctx, t.cfg.LookbackMinutes)
	if err != nil {
		return fmt.Errorf("reactivation: list tracked tokens: %w", err)
	}

	for _, addr := range tracked {
		recent, err := t.store.RecentMetrics(ctx, addr, t.cfg.QuietMinutes)
		if err != nil {
			t.log.Warning("reactivation: recent metrics failed", map[string]interface{}{"token": addr, "error": err.Error()})
			continue
		}
		if len(recent) > 0 {
			continue // still actively collected this cycle window, not dormant
		}

		cand, ok, err := t.evaluate(ctx, addr)
		if err != nil {
			t.log.Warning("reactivation: evaluate failed", map[string]interface{}{"token": addr, "error": err.Error()})
			continue
		}
		if !ok {
			continue
		}

		t.log.Info("reactivation: candidate detected", map[string]interface{}{
			"token": cand.TokenAddress, "score": cand.Score, "returning_wallets": len(cand.ReturningWallets),
		})
		if t.onCandidate != nil {
			t.onCandidate(cand)
		}
	}
	return nil
}

// evaluate re-probes one dormant token and scores its reactivation evidence
// (teacher's ScanDormantTokens/calculateReactivationScore, generalized off
// the token-lifecycle/Memory-of-Trust model onto Store+Collector+ChainRPC).
func (t *Task) evaluate(ctx context.Context, addr string) (Candidate, bool, error) {
	history, err := t.store.RecentMetrics(ctx, addr, t.cfg.LookbackMinutes)
	if err != nil {
		return Candidate{}, false, fmt.Errorf("history: %w", err)
	}
	var previous *models.TokenMetric
	if len(history) > 0 {
		previous = &history[0] // newest-first: last metric before the token went quiet
	}

	fresh, err := t.collector.Collect(ctx, addr)
	if err != nil {
		return Candidate{}, false, fmt.Errorf("collect: %w", err)
	}

	volumeRatio, priceChange, holderGrowth := metricChanges(fresh, previous)

	buyers, err := t.chain.RecentBuyers(ctx, addr, 50)
	if err != nil {
		buyers = nil
	}
	returning := t.detectSmartReturns(ctx, buyers)

	score := reactivationScore(volumeRatio, priceChange, holderGrowth, len(returning))
	if score < t.cfg.ScoreThreshold {
		return Candidate{}, false, nil
	}
	return Candidate{
		TokenAddress:     addr,
		Score:            score,
		VolumeRatio:      volumeRatio,
		PriceChange:      priceChange,
		HolderGrowth:     holderGrowth,
		ReturningWallets: returning,
		DetectedAt:       time.Now(),
	}, true, nil
}

// metricChanges compares a fresh probe against the last metric observed
// before the token went dormant (teacher's calculateMetricChanges).
func metricChanges(fresh models.TokenMetric, previous *models.TokenMetric) (volumeRatio, priceChange, holderGrowth float64) {
	if previous == nil {
		return 0, 0, 0
	}
	switch {
	case fresh.Volume1h > 0 && previous.Volume1h > 0:
		volumeRatio = fresh.Volume1h / previous.Volume1h
	case fresh.Volume1h > 0:
		volumeRatio = 10.0 // previous volume was zero; treat as a sharp spike
	default:
		volumeRatio = 0
	}

	if fresh.Price > 0 && previous.Price > 0 {
		priceChange = (fresh.Price - previous.Price) / previous.Price
	}

	freshHolders, freshOK := fresh.Holders.Get()
	prevHolders, prevOK := previous.Holders.Get()
	if freshOK && prevOK && prevHolders > 0 {
		holderGrowth = float64(freshHolders-prevHolders) / float64(prevHolders)
	}
	return volumeRatio, priceChange, holderGrowth
}

// detectSmartReturns reports the known smart wallets among a token's fresh
// buyer list (teacher's detectSmartWalletReturns, simplified: the Store
// already carries each wallet's clustering/smart-wallet history, so a
// returning smart wallet is just a fresh buyer whose stored profile already
// clears the smart-wallet predicate).
func (t *Task) detectSmartReturns(ctx context.Context, buyers []chainrpc.RecentBuyer) []string {
	if len(buyers) == 0 {
		return nil
	}
	addrs := make([]string, len(buyers))
	for i, b := range buyers {
		addrs[i] = b.Wallet
	}

	profiles, err := t.store.GetWallets(ctx, addrs)
	if err != nil {
		return nil
	}

	var returning []string
	for _, p := range profiles {
		if p.IsSmartWallet(t.cfg.SmartWalletMinROI, t.cfg.SmartWalletMinTrades, t.cfg.SmartWalletMinWinRate) {
			returning = append(returning, p.Address)
		}
	}
	return returning
}

// reactivationScore blends metric-change momentum with smart-wallet return
// evidence into a single 0-100 score (teacher's calculateReactivationScore).
func reactivationScore(volumeRatio, priceChange, holderGrowth float64, returningWallets int) float64 {
	volumeFactor := math.Min(1.0, volumeRatio/5.0)    // 5x volume is max signal
	priceFactor := math.Min(1.0, math.Max(0, priceChange)/0.3) // +30% is max signal
	holdersFactor := math.Min(1.0, math.Max(0, holderGrowth)/0.1) // +10% holder growth is max signal

	base := (volumeFactor*0.5 + priceFactor*0.3 + holdersFactor*0.2) * 100

	returnFactor := math.Min(1.0, float64(returningWallets)/5.0) // 5+ returning wallets is max bonus
	bonus := returnFactor * 30                                   // up to 30 bonus points

	return math.Max(0, math.Min(100, base+bonus))
}
