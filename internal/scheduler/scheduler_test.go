package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxsignal/oracle/internal/chainrpc"
	"github.com/nyxsignal/oracle/internal/collector"
	"github.com/nyxsignal/oracle/internal/ingest"
	"github.com/nyxsignal/oracle/internal/marketdata"
	"github.com/nyxsignal/oracle/internal/storage"
	"github.com/nyxsignal/oracle/internal/storage/memstore"
	"github.com/nyxsignal/oracle/internal/stream"
	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/nyxsignal/oracle/pkg/utils/logger"

	"github.com/nyxsignal/oracle/internal/clock"
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

type fakeStream struct {
	subscribedAccounts []string
}

func (f *fakeStream) Run(ctx context.Context, onEvent func(stream.Event)) error { return nil }

func (f *fakeStream) SubscribeTokenTrade(keys []string) error { return nil }

func (f *fakeStream) SubscribeAccountTrade(keys []string) error {
	f.subscribedAccounts = append(f.subscribedAccounts, keys...)
	return nil
}

type recordingNotifier struct {
	signals []models.Signal
}

func (r *recordingNotifier) SendSignalAlert(_ context.Context, sig models.Signal) {
	r.signals = append(r.signals, sig)
}

func newTestScheduler(t *testing.T, provider *fakeProvider, chain *fakeChain, streamSrc *fakeStream, notify *recordingNotifier) (*Scheduler, *ingest.Ingestor, []models.Signal) {
	t.Helper()

	store := memstore.New()
	coll := collector.New(provider, chain)
	drift := ingest.NewSubscriptionDrift()
	ingestor := ingest.New(1000, clock.Real{})
	log := logger.NewLogger("error")

	var mirrored []models.Signal
	onSignal := func(sig models.Signal) {
		mirrored = append(mirrored, sig)
	}

	cfg := DefaultConfig()
	cfg.HistoryWindowMinutes = 60

	s := New(cfg, store, coll, chain, notify, ingestor, drift, streamSrc, nil, log, onSignal)
	return s, ingestor, mirrored
}

func TestRunCycleNoMintsIsNoop(t *testing.T) {
	provider := &fakeProvider{pairs: map[string]*marketdata.Pair{}}
	chain := &fakeChain{buyers: map[string][]chainrpc.RecentBuyer{}}
	streamSrc := &fakeStream{}
	notify := &recordingNotifier{}

	s, _, _ := newTestScheduler(t, provider, chain, streamSrc, notify)

	err := s.RunCycle(context.Background())
	require.NoError(t, err)
}

func TestRunCycleCollectsAndScoresCandidates(t *testing.T) {
	provider := &fakeProvider{
		pairs: map[string]*marketdata.Pair{
			"mintA": {Price: 0.01, MarketCap: 50000, Liquidity: 20000},
			"mintB": {Price: 0.02, MarketCap: 80000, Liquidity: 30000},
		},
	}
	chain := &fakeChain{buyers: map[string][]chainrpc.RecentBuyer{}}
	streamSrc := &fakeStream{}
	notify := &recordingNotifier{}

	s, ingestor, _ := newTestScheduler(t, provider, chain, streamSrc, notify)
	ingestor.HandleEvent(stream.Event{Type: stream.EventCreate, Mint: "mintA"})
	ingestor.HandleEvent(stream.Event{Type: stream.EventCreate, Mint: "mintB"})

	err := s.RunCycle(context.Background())
	require.NoError(t, err)

	regimes, err := s.store.RecentRegimes(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, regimes, 1)

	metricsA, err := s.store.RecentMetrics(context.Background(), "mintA", 60)
	require.NoError(t, err)
	assert.Len(t, metricsA, 1)
	assert.Equal(t, 0.01, metricsA[0].Price)
}

func TestRunCycleDrainsQueueEvenWhenEmptyAfterCollect(t *testing.T) {
	provider := &fakeProvider{pairs: map[string]*marketdata.Pair{}}
	chain := &fakeChain{buyers: map[string][]chainrpc.RecentBuyer{}}
	streamSrc := &fakeStream{}
	notify := &recordingNotifier{}

	s, ingestor, _ := newTestScheduler(t, provider, chain, streamSrc, notify)
	ingestor.HandleEvent(stream.Event{Type: stream.EventCreate, Mint: "mintC"})

	err := s.RunCycle(context.Background())
	require.NoError(t, err)

	// The mint was drained even though no pair data was available, so a
	// second cycle with nothing new enqueued collects nothing further.
	assert.Empty(t, ingestor.Drain())
}

func TestRefreshWalletsReconcilesSmartWalletSubscriptions(t *testing.T) {
	provider := &fakeProvider{
		pairs: map[string]*marketdata.Pair{
			"mintA": {Price: 0.01, MarketCap: 50000, Liquidity: 20000},
		},
	}
	buyers := []chainrpc.RecentBuyer{
		{Wallet: "walletSmart", FirstTradeAt: time.Now()},
		{Wallet: "walletDud", FirstTradeAt: time.Now()},
	}
	chain := &fakeChain{buyers: map[string][]chainrpc.RecentBuyer{"mintA": buyers}}
	streamSrc := &fakeStream{}
	notify := &recordingNotifier{}

	s, ingestor, _ := newTestScheduler(t, provider, chain, streamSrc, notify)

	ctx := context.Background()
	require.NoError(t, s.store.UpsertWallet(ctx, "walletSmart", storage.WalletPatch{
		AvgROI:      2.0,
		TotalTrades: 10,
		WinRate:     0.7,
	}))
	require.NoError(t, s.store.UpsertWallet(ctx, "walletDud", storage.WalletPatch{
		AvgROI:      0.01,
		TotalTrades: 1,
		WinRate:     0.1,
	}))

	ingestor.HandleEvent(stream.Event{Type: stream.EventCreate, Mint: "mintA"})
	s.cycle = s.cfg.WalletRefreshEveryNCyc - 1 // force the refresh branch on this cycle

	require.NoError(t, s.RunCycle(ctx))

	assert.Contains(t, streamSrc.subscribedAccounts, "walletSmart")
	assert.NotContains(t, streamSrc.subscribedAccounts, "walletDud")
}
