// Package storage defines the Store collaborator (§6): the only durable
// shared resource in the engine. Writes are idempotent keyed by natural
// keys; readers tolerate eventually-consistent reads within a cycle (§5).
package storage

import (
	"context"
	"time"

	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/nyxsignal/oracle/pkg/optional"
)

// TokenPatch carries the optional fields upsertToken may update.
type TokenPatch struct {
	Name      optional.Value[string]
	Symbol    optional.Value[string]
	Narrative optional.Value[string]
	Creator   optional.Value[string]
}

// InstabilityRow is one row of latestInstabilityAll's cross-sectional read.
type InstabilityRow struct {
	TokenAddress string
	Instability  float64
	Price        float64
	MarketCap    float64
	Liquidity    float64
	Holders      optional.Value[int]
	Top10        optional.Value[float64]
	ObservedAt   time.Time
}

// WalletPatch carries the fields upsertWallet may update.
type WalletPatch struct {
	AvgROI      float64
	TotalTrades int
	WinRate     float64
	Cluster     models.WalletCluster
}

// CreatorPatch carries the optional/delta fields upsertCreatorStats may update.
type CreatorPatch struct {
	RugRatio         optional.Value[float64]
	AvgLifespanHours optional.Value[float64]
	TotalTokensDelta int
}

// Store is the durable persistence collaborator (§6 External Interfaces).
// All operations that mutate natural-keyed rows are idempotent.
type Store interface {
	// UpsertToken inserts or updates a Token by mint address, returning its
	// internal identity (the mint address itself — it is already the
	// natural key, so no surrogate id is introduced).
	UpsertToken(ctx context.Context, addr string, patch TokenPatch) (string, error)

	// InsertMetric appends a TokenMetric observation. Never overwrites.
	InsertMetric(ctx context.Context, m models.TokenMetric) error

	// RecentMetrics returns a token's observations from the last
	// windowMinutes, ordered newest-first.
	RecentMetrics(ctx context.Context, tokenAddr string, windowMinutes int) ([]models.TokenMetric, error)

	// LatestInstabilityAll returns the most recent row per token observed
	// within windowMinutes (DISTINCT ON tokenAddr semantics).
	LatestInstabilityAll(ctx context.Context, windowMinutes int) ([]InstabilityRow, error)

	// TokensObservedSince returns the distinct token addresses with at least
	// one metric observation in the last windowMinutes — the candidate pool
	// the reactivation rescan (§4.8 supplement) checks for having gone quiet.
	TokensObservedSince(ctx context.Context, windowMinutes int) ([]string, error)

	// InsertSignal writes a fully-populated Signal row exactly once.
	InsertSignal(ctx context.Context, s models.Signal) error

	// HasRecentSignal reports whether a Signal exists for tokenAddr within
	// the last `minutes` (the dedup contract, §3, §4.6(c)).
	HasRecentSignal(ctx context.Context, tokenAddr string, minutes int) (bool, error)

	// UpsertWallet inserts or updates a WalletProfile by address.
	UpsertWallet(ctx context.Context, addr string, patch WalletPatch) error

	// GetWallets returns WalletProfiles for the given addresses (missing
	// addresses are simply absent from the result, not an error).
	GetWallets(ctx context.Context, addrs []string) ([]models.WalletProfile, error)

	// UpsertCreatorStats inserts or updates a CreatorProfile by address.
	UpsertCreatorStats(ctx context.Context, addr string, patch CreatorPatch) error

	// GetCreatorProfile returns a creator's profile, or ok=false if never seen.
	GetCreatorProfile(ctx context.Context, addr string) (models.CreatorProfile, bool, error)

	// RecentSignals returns persisted signals from the last windowMinutes,
	// newest-first; used by the API surface (§4.10).
	RecentSignals(ctx context.Context, windowMinutes int) ([]models.Signal, error)

	// LogRegime optionally records a per-cycle regime observation.
	LogRegime(ctx context.Context, r models.RegimeObservation) error

	// RecentRegimes returns the last n regime observations, newest-first.
	RecentRegimes(ctx context.Context, n int) ([]models.RegimeObservation, error)
}
