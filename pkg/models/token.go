package models

import (
	"strings"
	"time"

	"github.com/nyxsignal/oracle/pkg/optional"
)

// Token represents a mint and its slowly-changing metadata (§3).
type Token struct {
	Address         string                 `json:"address"`
	Name            string                 `json:"name"`
	Symbol          string                 `json:"symbol"`
	Narrative       string                 `json:"narrative,omitempty"`
	FirstSeen       time.Time              `json:"first_seen"`
	CreatorAddress  optional.Value[string] `json:"-"`
	MintAuthority   optional.Value[string] `json:"-"`
	FreezeAuthority optional.Value[string] `json:"-"`
	IsBondingCurve  bool                   `json:"is_bonding_curve"`
}

// bondingCurveSuffix is the pump.fun mint-address suffix that identifies a
// bonding-curve token (§3, §4.2).
const bondingCurveSuffix = "pump"

// IsBondingCurveAddress reports whether a mint address belongs to the
// bonding-curve family, recognised purely by suffix.
func IsBondingCurveAddress(mint string) bool {
	return strings.HasSuffix(mint, bondingCurveSuffix)
}

// TokenMetric is a single append-only observation of a token's market state.
type TokenMetric struct {
	TokenAddress string    `json:"token_address"`
	ObservedAt   time.Time `json:"observed_at"`

	Price     float64 `json:"price"`
	MarketCap float64 `json:"marketcap"`

	Liquidity          float64 `json:"liquidity"`
	LiquidityIsVirtual bool    `json:"liquidity_is_virtual"`

	Holders optional.Value[int] `json:"-"`

	Volume5m float64 `json:"volume_5m"`
	Volume1h float64 `json:"volume_1h"`
	Buys5m   int     `json:"buys_5m"`
	Sells5m  int     `json:"sells_5m"`

	// Top10Ratio is a fraction in [0,1]; unverified for bonding-curve tokens
	// defaults to Known(1.0) per §3 but is never treated as real evidence of
	// concentration downstream.
	Top10Ratio optional.Value[float64] `json:"-"`

	SmartWalletActivity int `json:"smart_wallet_activity"`

	InstabilityIndex float64 `json:"instability_index"`
	DeltaInstability float64 `json:"delta_instability"`

	InsiderProbability optional.Value[float64] `json:"-"`
	CreatorRisk         optional.Value[float64] `json:"-"`

	BondingComplete bool `json:"bonding_complete"`

	PairCreatedAt optional.Value[time.Time] `json:"-"`
	HasTwitter    bool                      `json:"has_twitter"`
}

// WalletCluster labels a WalletProfile's behavioural group (§3, §4.4).
type WalletCluster string

const (
	ClusterRetail          WalletCluster = "retail"
	ClusterSniper          WalletCluster = "sniper"
	ClusterInsider         WalletCluster = "insider"
	ClusterNew             WalletCluster = "new"
	ClusterHighVolumeNoise WalletCluster = "high-volume-noise"
	ClusterUnknown         WalletCluster = "unknown"
)

// WalletProfile is the upserted per-wallet behavioural summary.
type WalletProfile struct {
	Address      string        `json:"address"`
	AvgROI       float64       `json:"avg_roi"`
	TotalTrades  int           `json:"total_trades"`
	WinRate      float64       `json:"win_rate"`
	Cluster      WalletCluster `json:"cluster"`
	LastActiveAt time.Time     `json:"last_active_at"`
	Verified     bool          `json:"verified"`
}

// IsSmartWallet reports whether a profile meets the smart-wallet predicate
// (§4.4): avg_roi > roiMin AND total_trades >= tradesMin AND win_rate > winRateMin.
func (w WalletProfile) IsSmartWallet(roiMin float64, tradesMin int, winRateMin float64) bool {
	return w.AvgROI > roiMin && w.TotalTrades >= tradesMin && w.WinRate > winRateMin
}

// CreatorProfile tracks a token creator's track record.
type CreatorProfile struct {
	Address        string    `json:"address"`
	RugRatio       float64   `json:"rug_ratio"`
	AvgLifespanHrs float64   `json:"avg_lifespan_hours"`
	TotalLaunched  int       `json:"total_launched"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MarketRegime is the derived per-cycle label (§4.5).
type MarketRegime string

const (
	RegimeStable MarketRegime = "STABLE"
	RegimeDegen  MarketRegime = "DEGEN"
)

// RegimeObservation is an optional per-cycle log row.
type RegimeObservation struct {
	Bucket          time.Time    `json:"bucket"`
	Label           MarketRegime `json:"label"`
	BatchTotalVol5m float64      `json:"batch_total_volume_5m"`
}

// Signal is the terminal artifact of a cycle's gate cascade for one token (§3).
type Signal struct {
	ID                 string    `json:"id"`
	TokenAddress        string    `json:"token_address"`
	ObservedAt          time.Time `json:"observed_at"`
	InstabilityIndex    float64   `json:"instability_index"`
	EntryPrice          float64   `json:"entry_price"`
	Liquidity           float64   `json:"liquidity"`
	MarketCap           float64   `json:"marketcap"`
	BayesianConfidence  float64   `json:"bayesian_confidence"`
	KellySize           float64   `json:"kelly_size"`
	InsiderProbability  float64   `json:"insider_probability"`
	CreatorRisk         float64   `json:"creator_risk"`
	StopLoss            float64   `json:"stop_loss"`
	TakeProfit1         float64   `json:"take_profit_1"`
	AISummary           string    `json:"ai_summary,omitempty"`
}
