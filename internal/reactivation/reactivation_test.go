package reactivation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxsignal/oracle/internal/chainrpc"
	"github.com/nyxsignal/oracle/internal/collector"
	"github.com/nyxsignal/oracle/internal/marketdata"
	"github.com/nyxsignal/oracle/internal/storage"
	"github.com/nyxsignal/oracle/internal/storage/memstore"
	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/nyxsignal/oracle/pkg/optional"
	"github.com/nyxsignal/oracle/pkg/utils/logger"
)

type fakeProvider struct {
	pairs map[string]*marketdata.Pair
}

func (f *fakeProvider) FetchPair(_ context.Context, mint string) (*marketdata.Pair, error) {
	return f.pairs[mint], nil
}

func (f *fakeProvider) FetchPrice(context.Context, string) (float64, bool, error) {
	return 0, false, nil
}

type fakeChain struct {
	buyers map[string][]chainrpc.RecentBuyer
}

func (f *fakeChain) LargestAccounts(context.Context, string) ([]chainrpc.LargestAccount, error) {
	return nil, nil
}

func (f *fakeChain) AssetMetadata(context.Context, string) (chainrpc.AssetMetadata, error) {
	return chainrpc.AssetMetadata{}, nil
}

func (f *fakeChain) RecentBuyers(_ context.Context, mint string, _ int) ([]chainrpc.RecentBuyer, error) {
	return f.buyers[mint], nil
}

func (f *fakeChain) WalletTxs(context.Context, string, int) ([]chainrpc.WalletTx, error) {
	return nil, nil
}

func TestMetricChangesNoPreviousIsZero(t *testing.T) {
	v, p, h := metricChanges(models.TokenMetric{Volume1h: 100, Price: 1}, nil)
	assert.Zero(t, v)
	assert.Zero(t, p)
	assert.Zero(t, h)
}

func TestMetricChangesComputesRatiosAndDeltas(t *testing.T) {
	previous := &models.TokenMetric{
		Volume1h: 100,
		Price:    1.0,
		Holders:  optional.Known(50),
	}
	fresh := models.TokenMetric{
		Volume1h: 500,
		Price:    1.3,
		Holders:  optional.Known(60),
	}
	v, p, h := metricChanges(fresh, previous)
	assert.InDelta(t, 5.0, v, 1e-9)
	assert.InDelta(t, 0.3, p, 1e-9)
	assert.InDelta(t, 0.2, h, 1e-9)
}

func TestReactivationScoreRewardsReturningWallets(t *testing.T) {
	withoutReturns := reactivationScore(5.0, 0.3, 0.1, 0)
	withReturns := reactivationScore(5.0, 0.3, 0.1, 5)
	assert.Greater(t, withReturns, withoutReturns)
	assert.LessOrEqual(t, withReturns, 100.0)
}

func TestReactivationScoreClampsToZeroFloor(t *testing.T) {
	assert.Equal(t, 0.0, reactivationScore(0, -1, -1, 0))
}

func TestScanSkipsTokensStillActivelyTracked(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	require.NoError(t, store.InsertMetric(ctx, models.TokenMetric{TokenAddress: "mintActive", ObservedAt: time.Now()}))

	coll := collector.New(&fakeProvider{pairs: map[string]*marketdata.Pair{}}, &fakeChain{})
	task := New(DefaultConfig(), store, coll, &fakeChain{}, logger.NewLogger("error"), nil)

	require.NoError(t, task.Scan(ctx))
}

func TestScanReportsCandidateForDormantTokenWithSmartWalletReturn(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	require.NoError(t, store.InsertMetric(ctx, models.TokenMetric{
		TokenAddress: "mintDormant",
		ObservedAt:   time.Now().Add(-10 * time.Hour),
		Volume1h:     100,
		Price:        1.0,
	}))
	require.NoError(t, store.UpsertWallet(ctx, "whale1", storage.WalletPatch{
		AvgROI: 2.0, TotalTrades: 10, WinRate: 0.6, Cluster: models.ClusterInsider,
	}))

	chain := &fakeChain{buyers: map[string][]chainrpc.RecentBuyer{
		"mintDormant": {{Wallet: "whale1", FirstTradeAt: time.Now()}},
	}}
	provider := &fakeProvider{pairs: map[string]*marketdata.Pair{
		"mintDormant": {Price: 1.5, Volume1h: 1000},
	}}
	coll := collector.New(provider, chain)

	cfg := DefaultConfig()
	cfg.ScoreThreshold = 1 // low bar so the synthetic fixture clears it deterministically

	var reported []Candidate
	task := New(cfg, store, coll, chain, logger.NewLogger("error"), func(c Candidate) {
		reported = append(reported, c)
	})

	require.NoError(t, task.Scan(ctx))
	require.Len(t, reported, 1)
	assert.Equal(t, "mintDormant", reported[0].TokenAddress)
	assert.Equal(t, []string{"whale1"}, reported[0].ReturningWallets)
}
