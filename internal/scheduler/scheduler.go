// Package scheduler implements the per-cycle orchestration loop (§4.8): drain
// the ingest queue, collect fresh metrics with bounded concurrency, run the
// cross-sectional Scoring Engine, evaluate the Gate Cascade per candidate row,
// persist surviving signals, and periodically refresh wallet state.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nyxsignal/oracle/internal/chainrpc"
	"github.com/nyxsignal/oracle/internal/collector"
	"github.com/nyxsignal/oracle/internal/creatorprofile"
	"github.com/nyxsignal/oracle/internal/features"
	"github.com/nyxsignal/oracle/internal/gate"
	"github.com/nyxsignal/oracle/internal/ingest"
	"github.com/nyxsignal/oracle/internal/notifier"
	"github.com/nyxsignal/oracle/internal/scoring"
	"github.com/nyxsignal/oracle/internal/smartwallet"
	"github.com/nyxsignal/oracle/internal/storage"
	"github.com/nyxsignal/oracle/internal/storage/cache"
	"github.com/nyxsignal/oracle/internal/stream"
	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/nyxsignal/oracle/pkg/optional"
	"github.com/nyxsignal/oracle/pkg/utils/logger"
)

// Config holds the Scheduler's own tunables (§4.8, §8 env keys).
type Config struct {
	ScanInterval       time.Duration
	CycleDeadline      time.Duration
	CollectConcurrency int
	HistoryWindowMinutes int

	SignalPercentile       float64
	WalletRefreshEveryNCyc int

	SmartWalletMinROI     float64
	SmartWalletMinTrades  int
	SmartWalletMinWinRate float64

	ScoringWeights scoring.Weights
	GateConfig     gate.Config
}

// DefaultConfig mirrors early_detector/config.py's scheduler-level defaults.
func DefaultConfig() Config {
	return Config{
		ScanInterval:           30 * time.Second,
		CycleDeadline:          25 * time.Second,
		CollectConcurrency:     8,
		HistoryWindowMinutes:   60,
		SignalPercentile:       0.70,
		WalletRefreshEveryNCyc: 10,
		SmartWalletMinROI:      1.3,
		SmartWalletMinTrades:   2,
		SmartWalletMinWinRate:  0.35,
		ScoringWeights:         scoring.DefaultWeights(),
		GateConfig:             gate.DefaultConfig(),
	}
}

// Scheduler owns one cycle's worth of orchestration state. It holds no
// cross-cycle state of its own beyond the cycle counter — all durable state
// lives in Store (§3 Ownership).
type Scheduler struct {
	cfg Config

	store       storage.Store
	collector   *collector.Collector
	chain       chainrpc.ChainRPC
	notify      notifier.Notifier
	ingestor    *ingest.Ingestor
	drift       *ingest.SubscriptionDrift
	streamSrc   stream.Source
	walletCache *cache.Client // optional; nil disables cross-cycle smart-wallet TTL caching
	log         *logger.Logger

	onSignal func(models.Signal) // best-effort durable mirror, e.g. pipeline.PublishSignal

	cycle int
}

// New builds a Scheduler over its collaborators.
func New(cfg Config, store storage.Store, coll *collector.Collector, chain chainrpc.ChainRPC, notify notifier.Notifier, ingestor *ingest.Ingestor, drift *ingest.SubscriptionDrift, streamSrc stream.Source, walletCache *cache.Client, log *logger.Logger, onSignal func(models.Signal)) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		store:       store,
		collector:   coll,
		chain:       chain,
		notify:      notify,
		ingestor:    ingestor,
		drift:       drift,
		streamSrc:   streamSrc,
		walletCache: walletCache,
		log:         log,
		onSignal:    onSignal,
	}
}

// Run drives the cycle loop until ctx is cancelled (§4.8).
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleDeadline)
			if err := s.RunCycle(cycleCtx); err != nil {
				s.log.Error("scheduler: cycle failed", err, nil)
			}
			cancel()
		}
	}
}

// candidateRow bundles one token's collected metric with the scoring.Row
// built from it, carried through to gate assembly after scoring.
type candidateRow struct {
	metric models.TokenMetric
	row    scoring.Row
	buyers []chainrpc.RecentBuyer
}

// RunCycle executes exactly one scan cycle (§4.8 steps 1-6).
func (s *Scheduler) RunCycle(ctx context.Context) error {
	s.cycle++

	mints := s.ingestor.Drain()
	s.ingestor.PruneDedupSet()
	if len(mints) == 0 {
		return nil
	}

	rows := s.collectBatch(ctx, mints)
	if len(rows) == 0 {
		return nil
	}

	scoringRows := make([]scoring.Row, len(rows))
	for i, r := range rows {
		scoringRows[i] = r.row
	}

	var totalVolHistory float64
	if n := len(scoringRows); n > 0 {
		for _, r := range scoringRows {
			totalVolHistory += r.Features.Volume5m
		}
		totalVolHistory /= float64(n) // crude running average proxy; see DESIGN.md
	}

	scored, regime := scoring.ComputeInstability(scoringRows, s.cfg.ScoringWeights, totalVolHistory)

	instabilities := make([]float64, len(scored))
	for i, sc := range scored {
		instabilities[i] = sc.Instability
	}
	threshold := scoring.SignalThreshold(instabilities, s.cfg.SignalPercentile)

	if err := s.store.LogRegime(ctx, models.RegimeObservation{
		Bucket:          time.Now(),
		Label:           regime,
		BatchTotalVol5m: totalVolHistory * float64(len(scoringRows)),
	}); err != nil {
		s.log.Warning("scheduler: log regime failed", map[string]interface{}{"error": err.Error()})
	}

	for i, sc := range scored {
		if sc.Instability < threshold {
			continue
		}
		if err := s.evaluateCandidate(ctx, rows[i], sc, threshold, regime); err != nil {
			s.log.Warning("scheduler: candidate evaluation failed", map[string]interface{}{"token": sc.Token, "error": err.Error()})
		}
	}

	if s.cycle%s.cfg.WalletRefreshEveryNCyc == 0 {
		s.refreshWallets(ctx, rows)
	}

	return nil
}

// collectBatch fans out Collector.Collect over mints with bounded
// concurrency (§4.8 step 2) and persists every successfully-collected metric.
func (s *Scheduler) collectBatch(ctx context.Context, mints []string) []candidateRow {
	sem := make(chan struct{}, s.cfg.CollectConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var out []candidateRow

	for _, mint := range mints {
		mint := mint
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			metric, err := s.collector.Collect(ctx, mint)
			if err != nil {
				s.log.Warning("scheduler: collect failed", map[string]interface{}{"token": mint, "error": err.Error()})
				return
			}

			if _, err := s.store.UpsertToken(ctx, mint, storage.TokenPatch{}); err != nil {
				s.log.Warning("scheduler: upsert token failed", map[string]interface{}{"token": mint, "error": err.Error()})
			}
			if err := s.store.InsertMetric(ctx, metric); err != nil {
				s.log.Warning("scheduler: insert metric failed", map[string]interface{}{"token": mint, "error": err.Error()})
				return
			}

			history, err := s.store.RecentMetrics(ctx, mint, s.cfg.HistoryWindowMinutes)
			if err != nil {
				s.log.Warning("scheduler: recent metrics failed", map[string]interface{}{"token": mint, "error": err.Error()})
				history = []models.TokenMetric{metric}
			}

			buyers, _ := s.chain.RecentBuyers(ctx, mint, 50)

			vec := buildFeatureVector(mint, metric, history)
			row := scoring.Row{
				Token:    mint,
				Features: vec,
			}
			if len(history) > 1 {
				row.PrevInstability = history[1].InstabilityIndex
				row.HasPrevInstability = true
			}

			mu.Lock()
			out = append(out, candidateRow{metric: metric, row: row, buyers: buyers})
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].row.Token < out[j].row.Token })
	return out
}

// buildFeatureVector derives the feature set for one token from its metric
// history (newest-first, per Store.RecentMetrics's contract). Degenerate/
// short histories fall back to each feature function's own neutral value.
func buildFeatureVector(mint string, latest models.TokenMetric, history []models.TokenMetric) features.Vector {
	priceWindow := make([]float64, 0, len(history))
	for _, h := range history {
		priceWindow = append(priceWindow, h.Price)
	}

	sa := features.StealthAccumulation(float64(latest.SmartWalletActivity), latest.Buys5m, latest.Sells5m, priceWindow)

	var holderAcc float64
	if hNow, ok := latest.Holders.Get(); ok && len(history) >= 3 {
		idx10 := min(2, len(history)-1)
		idx20 := min(4, len(history)-1)
		h10, ok10 := history[idx10].Holders.Get()
		h20, ok20 := history[idx20].Holders.Get()
		if ok10 && ok20 && idx10 != idx20 {
			holderAcc = features.HolderAcceleration(float64(hNow), float64(h10), float64(h20))
		}
	}

	price5m := priceWindow
	if len(priceWindow) > 5 {
		price5m = priceWindow[:5]
	}
	volShift := features.VolatilityShift(price5m, priceWindow)

	sellPressure := features.SellPressure(latest.Buys5m, latest.Sells5m)
	volIntensity := features.VolumeIntensity(latest.Volume5m, latest.Liquidity)

	return features.Vector{
		TokenAddress:        mint,
		StealthAccumulation: sa,
		HolderAcceleration:  holderAcc,
		VolatilityShift:     volShift,
		SellPressure:        sellPressure,
		VolumeIntensity:     volIntensity,
		Volume5m:            latest.Volume5m,
	}
}

// evaluateCandidate assembles a gate.Input for one scored row, enriching it
// with creator risk, insider probability, and mint authority state, then runs
// the cascade and persists/notifies on a pass (§4.6, §4.8 step 3).
func (s *Scheduler) evaluateCandidate(ctx context.Context, cand candidateRow, sc scoring.Scored, threshold float64, regime models.MarketRegime) error {
	mint := sc.Token

	mintAuth, freezeAuth, err := s.collector.MintAuthorities(ctx, mint)
	if err != nil {
		mintAuth, freezeAuth = optional.Unknown[string](), optional.Unknown[string]()
	}

	buyerAddrs := make([]string, 0, len(cand.buyers))
	buyTimes := make([]time.Time, 0, len(cand.buyers))
	for _, b := range cand.buyers {
		buyerAddrs = append(buyerAddrs, b.Wallet)
		buyTimes = append(buyTimes, b.FirstTradeAt)
	}

	profiles, _ := s.store.GetWallets(ctx, buyerAddrs)
	profileByAddr := make(map[string]models.WalletProfile, len(profiles))
	for _, p := range profiles {
		profileByAddr[p.Address] = p
	}

	swr := smartwallet.ComputeSWR(buyerAddrs, profileByAddr)
	coordinated := smartwallet.DetectCoordinatedEntry(buyTimes, 2)

	var insiderProb optional.Value[float64]
	if len(cand.buyers) > 0 {
		// Early-buy attribution requires a per-buyer launch-relative
		// timestamp the current RecentBuyer shape doesn't carry; treated as
		// 0 (not early) absent that signal, same as an unverified batch.
		// Coordinated entry is a proxy for shared funding (smart_wallets.py
		// compute_insider_score), so it feeds funding_overlap=0.5 straight
		// into the sigmoid rather than clamping the output afterwards.
		fundingOverlap := 0.0
		if coordinated {
			fundingOverlap = 0.5
		}
		buyRatio := 0.0
		if total := cand.metric.Buys5m + cand.metric.Sells5m; total > 0 {
			buyRatio = float64(cand.metric.Buys5m) / float64(total)
		}
		p := smartwallet.ComputeInsiderProbability(smartwallet.InsiderFeatures{
			EarlyBuyRatio:   0,
			FundingLinked:   fundingOverlap,
			BuyRatio:        buyRatio,
			HolderDeltaNorm: sc.Row.Features.HolderAcceleration / 10,
		})
		insiderProb = optional.Known(p)
	}

	var creatorRisk optional.Value[float64]
	if token, ok, err := s.store.GetCreatorProfile(ctx, mint); err == nil && ok {
		creatorRisk = optional.Known(creatorprofile.Risk(token.RugRatio, token.TotalLaunched))
	}

	tokenAge := time.Since(cand.metric.ObservedAt).Minutes()
	if at, ok := cand.metric.PairCreatedAt.Get(); ok {
		tokenAge = time.Since(at).Minutes()
	}

	in := gate.Input{
		TokenAddress:       mint,
		Instability:        sc.Instability,
		Threshold:          threshold,
		DeltaInstability:   sc.DeltaInstability,
		VolShift:           sc.Row.Features.VolatilityShift,
		VolIntensity:       sc.Row.Features.VolumeIntensity,
		Buys5m:             cand.metric.Buys5m,
		Liquidity:          cand.metric.Liquidity,
		LiquidityIsVirtual: cand.metric.LiquidityIsVirtual,
		MarketCap:          cand.metric.MarketCap,
		EntryPrice:         cand.metric.Price,
		MintAuthority:      mintAuth,
		FreezeAuthority:    freezeAuth,
		IsBondingCurve:     models.IsBondingCurveAddress(mint),
		Top10Ratio:         cand.metric.Top10Ratio,
		Holders:            cand.metric.Holders,
		InsiderProbability: insiderProb,
		CreatorRisk:        creatorRisk,
		Regime:             regime,
		SWR:                swr,
		TokenAgeMinutes:    tokenAge,
	}

	decision, err := gate.Evaluate(ctx, in, s.cfg.GateConfig, s.makeDedup())
	if err != nil {
		return err
	}
	if !decision.Pass {
		return nil
	}

	decision.Signal.ID = uuid.NewString()
	if err := s.store.InsertSignal(ctx, decision.Signal); err != nil {
		return err
	}

	if s.notify != nil {
		s.notify.SendSignalAlert(ctx, decision.Signal)
	}
	if s.onSignal != nil {
		s.onSignal(decision.Signal)
	}
	return nil
}

func (s *Scheduler) makeDedup() gate.Dedup {
	return func(ctx context.Context, tokenAddr string, windowMinutes int) (bool, error) {
		return s.store.HasRecentSignal(ctx, tokenAddr, windowMinutes)
	}
}

// refreshWallets recomputes clustering over every buyer observed this cycle,
// reconciles the StreamSource's account-trade subscriptions against the
// resulting smart-wallet set (§4.8 step 4, §2 item 4), and, when a wallet
// cache is configured, mirrors the per-token smart-wallet set and active
// buyer count into Redis with a TTL spanning until the next refresh so a
// between-cycle reader (e.g. the API) doesn't hit the store for state that's
// only recomputed every WalletRefreshEveryNCyc cycles.
func (s *Scheduler) refreshWallets(ctx context.Context, rows []candidateRow) {
	seen := make(map[string]struct{})
	var addrs []string
	for _, r := range rows {
		for _, b := range r.buyers {
			if _, ok := seen[b.Wallet]; !ok {
				seen[b.Wallet] = struct{}{}
				addrs = append(addrs, b.Wallet)
			}
		}
	}
	if len(addrs) == 0 {
		return
	}

	profiles, err := s.store.GetWallets(ctx, addrs)
	if err != nil {
		s.log.Warning("scheduler: wallet refresh: get wallets failed", map[string]interface{}{"error": err.Error()})
		return
	}

	stats := make([]smartwallet.WalletStats, 0, len(profiles))
	for _, p := range profiles {
		stats = append(stats, smartwallet.WalletStats{Address: p.Address, AvgROI: p.AvgROI, TotalTrades: p.TotalTrades, WinRate: p.WinRate})
	}
	clusters := smartwallet.ClusterWallets(stats)
	smart := smartwallet.DetectSmartWallets(stats, s.cfg.SmartWalletMinROI, s.cfg.SmartWalletMinTrades, s.cfg.SmartWalletMinWinRate)

	for _, st := range smart {
		cluster := clusters[st.Address]
		if err := s.store.UpsertWallet(ctx, st.Address, storage.WalletPatch{
			AvgROI:      st.AvgROI,
			TotalTrades: st.TotalTrades,
			WinRate:     st.WinRate,
			Cluster:     cluster,
		}); err != nil {
			s.log.Warning("scheduler: wallet upsert failed", map[string]interface{}{"wallet": st.Address, "error": err.Error()})
		}
	}

	wanted := make([]string, 0, len(smart))
	for _, st := range smart {
		wanted = append(wanted, st.Address)
	}
	if toAdd := s.drift.Reconcile(wanted); len(toAdd) > 0 && s.streamSrc != nil {
		if err := s.streamSrc.SubscribeAccountTrade(toAdd); err != nil {
			s.log.Warning("scheduler: subscribe account trade failed", map[string]interface{}{"error": err.Error()})
		}
	}

	s.cacheWalletRefresh(rows, profiles, smart)
}

// cacheWalletRefresh mirrors this refresh's per-token smart-wallet set and
// active buyer count into the wallet cache, if one is configured.
func (s *Scheduler) cacheWalletRefresh(rows []candidateRow, profiles []models.WalletProfile, smart []smartwallet.WalletStats) {
	if s.walletCache == nil {
		return
	}
	ttl := s.cfg.ScanInterval * time.Duration(s.cfg.WalletRefreshEveryNCyc)

	profileByAddr := make(map[string]models.WalletProfile, len(profiles))
	for _, p := range profiles {
		profileByAddr[p.Address] = p
	}
	isSmart := make(map[string]struct{}, len(smart))
	for _, st := range smart {
		isSmart[st.Address] = struct{}{}
	}

	for _, r := range rows {
		var tokenSmart []models.WalletProfile
		for _, b := range r.buyers {
			if _, ok := isSmart[b.Wallet]; !ok {
				continue
			}
			if p, ok := profileByAddr[b.Wallet]; ok {
				tokenSmart = append(tokenSmart, p)
			}
		}
		if err := s.walletCache.CacheSmartWallets(r.metric.TokenAddress, tokenSmart, ttl); err != nil {
			s.log.Warning("scheduler: cache smart wallets failed", map[string]interface{}{"token": r.metric.TokenAddress, "error": err.Error()})
		}
		if err := s.walletCache.CacheActiveWalletsCount(r.metric.TokenAddress, len(r.buyers), ttl); err != nil {
			s.log.Warning("scheduler: cache active wallet count failed", map[string]interface{}{"token": r.metric.TokenAddress, "error": err.Error()})
		}
	}
}
