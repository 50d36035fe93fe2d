package collector

import (
	"context"
	"testing"

	"github.com/nyxsignal/oracle/internal/chainrpc"
	"github.com/nyxsignal/oracle/internal/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	pair      *marketdata.Pair
	pairErr   error
	price     float64
	priceOK   bool
	priceErr  error
}

func (f *fakeProvider) FetchPair(context.Context, string) (*marketdata.Pair, error) {
	return f.pair, f.pairErr
}

func (f *fakeProvider) FetchPrice(context.Context, string) (float64, bool, error) {
	return f.price, f.priceOK, f.priceErr
}

type fakeChain struct {
	accounts []chainrpc.LargestAccount
	meta     chainrpc.AssetMetadata
	buyers   []chainrpc.RecentBuyer
}

func (f *fakeChain) LargestAccounts(context.Context, string) ([]chainrpc.LargestAccount, error) {
	return f.accounts, nil
}
func (f *fakeChain) AssetMetadata(context.Context, string) (chainrpc.AssetMetadata, error) {
	return f.meta, nil
}
func (f *fakeChain) RecentBuyers(context.Context, string, int) ([]chainrpc.RecentBuyer, error) {
	return f.buyers, nil
}
func (f *fakeChain) WalletTxs(context.Context, string, int) ([]chainrpc.WalletTx, error) {
	return nil, nil
}

func TestCollectUsesPairWhenAvailable(t *testing.T) {
	provider := &fakeProvider{pair: &marketdata.Pair{Price: 1.5, MarketCap: 10000, Liquidity: 5000}}
	chain := &fakeChain{accounts: []chainrpc.LargestAccount{{Amount: 60}, {Amount: 40}}}

	c := New(provider, chain)
	m, err := c.Collect(context.Background(), "somemint")
	require.NoError(t, err)
	assert.Equal(t, 1.5, m.Price)
	assert.Equal(t, 10000.0, m.MarketCap)

	v, known := m.Top10Ratio.Get()
	require.True(t, known)
	// Both listed accounts fall inside the top 10, so they hold the whole
	// enumerated supply.
	assert.InDelta(t, 1.0, v, 1e-9)
}

func TestCollectAppliesVirtualLiquidityForBondingCurve(t *testing.T) {
	provider := &fakeProvider{pair: &marketdata.Pair{Price: 0.001, MarketCap: 5000, Liquidity: 0}}
	chain := &fakeChain{}

	c := New(provider, chain)
	m, err := c.Collect(context.Background(), "somemintpump")
	require.NoError(t, err)
	assert.True(t, m.LiquidityIsVirtual)
	assert.InDelta(t, 1000.0, m.Liquidity, 1e-9) // min(0.2*5000, 2000)

	v, known := m.Top10Ratio.Get()
	require.True(t, known)
	assert.Equal(t, 1.0, v)
}

func TestCollectFallsBackToPriceWhenNoPair(t *testing.T) {
	provider := &fakeProvider{pair: nil, price: 0.5, priceOK: true}
	chain := &fakeChain{}

	c := New(provider, chain)
	m, err := c.Collect(context.Background(), "somemint")
	require.NoError(t, err)
	assert.Equal(t, 0.5, m.Price)
}

func TestCollectNeverFailsOnPartialUpstreamFailure(t *testing.T) {
	provider := &fakeProvider{pairErr: assertError{}, priceErr: assertError{}}
	chain := &fakeChain{}

	c := New(provider, chain)
	m, err := c.Collect(context.Background(), "somemint")
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.Price)
}

type assertError struct{}

func (assertError) Error() string { return "upstream failure" }
