// Package collector implements the Collector component (§4.2): given a mint
// address, composes MarketDataProvider and ChainRPC calls into a safe-to-
// persist TokenMetric, enriching bonding-curve tokens with a virtual
// liquidity estimate when on-chain liquidity is absent. Grounded on
// early_detector/collector.py's fetch_helius_metrics/fetch_dex_metadata
// composition.
package collector

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nyxsignal/oracle/internal/chainrpc"
	"github.com/nyxsignal/oracle/internal/marketdata"
	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/nyxsignal/oracle/pkg/optional"
)

const (
	pairTimeout     = 8 * time.Second
	priceTimeout    = 5 * time.Second
	holdersTimeout  = 10 * time.Second
	metadataTimeout = 10 * time.Second
	buyersTimeout   = 10 * time.Second

	bondingCurveLiquidityFloor = 100.0 // below this, on-chain liquidity is treated as "absent" (collector.py: curr_liq < 100)
	virtualLiquidityRatio      = 0.20
	virtualLiquidityCap        = 2000.0
)

// Collector composes a TokenMetric snapshot for one mint per cycle.
type Collector struct {
	provider marketdata.Provider
	chain    chainrpc.ChainRPC
}

// New builds a Collector over the given provider/chain adapters.
func New(provider marketdata.Provider, chain chainrpc.ChainRPC) *Collector {
	return &Collector{provider: provider, chain: chain}
}

// Collect builds a TokenMetric for mint (§4.2). The returned error is always
// nil: each failed sub-fetch degrades the snapshot's fidelity rather than
// aborting it, and an invalid mint or a cancelled context likewise yields a
// sparse snapshot rather than an error.
func (c *Collector) Collect(ctx context.Context, mint string) (models.TokenMetric, error) {
	m := models.TokenMetric{
		TokenAddress: mint,
		ObservedAt:   time.Now(),
	}

	isBonding := models.IsBondingCurveAddress(mint)
	m.BondingComplete = false

	pair, pairErr := c.fetchPair(ctx, mint)
	if pairErr == nil && pair != nil {
		m.Price = pair.Price
		m.MarketCap = pair.MarketCap
		m.Liquidity = pair.Liquidity
		m.Volume5m = pair.Volume5m
		m.Volume1h = pair.Volume1h
		m.Buys5m = pair.Buys5m
		m.Sells5m = pair.Sells5m
		m.HasTwitter = pair.HasTwitter
		m.PairCreatedAt = pair.PairCreatedAt
	} else {
		price, ok, err := c.fetchPrice(ctx, mint)
		if err == nil && ok {
			m.Price = price
		}
	}

	if isBonding && m.Liquidity < bondingCurveLiquidityFloor && m.MarketCap > 0 {
		m.Liquidity = math.Min(virtualLiquidityRatio*m.MarketCap, virtualLiquidityCap)
		m.LiquidityIsVirtual = true
	}

	if isBonding {
		// Bonding contract holds supply by construction (§4.2): skip the RPC
		// call and record the conventional 100% concentration.
		m.Top10Ratio = optional.Known(1.0)
	} else {
		if accounts, err := c.fetchLargestAccounts(ctx, mint); err == nil && len(accounts) > 0 {
			var top10, total float64
			for i, acc := range accounts {
				total += acc.Amount
				if i < 10 {
					top10 += acc.Amount
				}
			}
			if total > 0 {
				m.Top10Ratio = optional.Known(math.Min(top10/total, 1.0))
			}
		}
	}

	if buyers, err := c.fetchRecentBuyers(ctx, mint); err == nil {
		m.SmartWalletActivity = len(buyers)
	}

	return m, nil
}

func (c *Collector) fetchPair(ctx context.Context, mint string) (*marketdata.Pair, error) {
	ctx, cancel := context.WithTimeout(ctx, pairTimeout)
	defer cancel()
	return c.provider.FetchPair(ctx, mint)
}

func (c *Collector) fetchPrice(ctx context.Context, mint string) (float64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, priceTimeout)
	defer cancel()
	return c.provider.FetchPrice(ctx, mint)
}

func (c *Collector) fetchLargestAccounts(ctx context.Context, mint string) ([]chainrpc.LargestAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, holdersTimeout)
	defer cancel()
	return c.chain.LargestAccounts(ctx, mint)
}

func (c *Collector) fetchAssetMetadata(ctx context.Context, mint string) (chainrpc.AssetMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	return c.chain.AssetMetadata(ctx, mint)
}

func (c *Collector) fetchRecentBuyers(ctx context.Context, mint string) ([]chainrpc.RecentBuyer, error) {
	ctx, cancel := context.WithTimeout(ctx, buyersTimeout)
	defer cancel()
	return c.chain.RecentBuyers(ctx, mint, 50)
}

// MintAuthorities fetches the mint's current mint/freeze authority state
// with a fresh AssetMetadata call for the safety filter (§4.6b); the Scheduler reads this alongside Collect's
// TokenMetric when assembling a gate.Input.
func (c *Collector) MintAuthorities(ctx context.Context, mint string) (optional.Value[string], optional.Value[string], error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	meta, err := c.chain.AssetMetadata(ctx, mint)
	if err != nil {
		return optional.Unknown[string](), optional.Unknown[string](), fmt.Errorf("collector: assetMetadata(%s): %w", mint, err)
	}
	return meta.MintAuthority, meta.FreezeAuthority, nil
}
