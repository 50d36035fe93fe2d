package smartwallet

import (
	"testing"
	"time"

	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestComputeWalletStatsEmptyHistory(t *testing.T) {
	s := ComputeWalletStats("w1", nil)
	assert.Equal(t, 0, s.TotalTrades)
	assert.Equal(t, 0.0, s.AvgROI)
}

func TestComputeWalletStatsAverages(t *testing.T) {
	trades := []Trade{{ROI: 1.0}, {ROI: -0.5}, {ROI: 2.0}}
	s := ComputeWalletStats("w1", trades)
	assert.InDelta(t, 2.5/3, s.AvgROI, 1e-9)
	assert.Equal(t, 3, s.TotalTrades)
	assert.InDelta(t, 2.0/3, s.WinRate, 1e-9)
}

func TestDetectSmartWalletsFiltersByAllThreeThresholds(t *testing.T) {
	stats := []WalletStats{
		{Address: "good", AvgROI: 2.0, TotalTrades: 20, WinRate: 0.6},
		{Address: "low-roi", AvgROI: 0.1, TotalTrades: 20, WinRate: 0.6},
		{Address: "few-trades", AvgROI: 2.0, TotalTrades: 2, WinRate: 0.6},
	}
	out := DetectSmartWallets(stats, 0.5, 10, 0.5)
	assert.Len(t, out, 1)
	assert.Equal(t, "good", out[0].Address)
}

func TestClusterWalletsFewerThanKIsUnknown(t *testing.T) {
	stats := []WalletStats{{Address: "a"}, {Address: "b"}}
	out := ClusterWallets(stats)
	assert.Equal(t, models.ClusterUnknown, out["a"])
}

func TestClusterWalletsLabelsAscendingROI(t *testing.T) {
	stats := []WalletStats{
		{Address: "retail1", AvgROI: 0.05, WinRate: 0.3},
		{Address: "retail2", AvgROI: 0.08, WinRate: 0.32},
		{Address: "sniper1", AvgROI: 1.0, WinRate: 0.5},
		{Address: "sniper2", AvgROI: 1.1, WinRate: 0.52},
		{Address: "insider1", AvgROI: 8.0, WinRate: 0.9},
		{Address: "insider2", AvgROI: 8.5, WinRate: 0.92},
	}
	out := ClusterWallets(stats)
	assert.Equal(t, models.ClusterRetail, out["retail1"])
	assert.Equal(t, models.ClusterSniper, out["sniper1"])
	assert.Equal(t, models.ClusterInsider, out["insider1"])
}

func TestComputeSWREmptyBuyersIsZero(t *testing.T) {
	assert.Equal(t, 0.0, ComputeSWR(nil, nil))
}

func TestComputeSWRWeightsInsiderHighest(t *testing.T) {
	profiles := map[string]models.WalletProfile{
		"a": {Cluster: models.ClusterInsider, Verified: true},
		"b": {Cluster: models.ClusterRetail, Verified: true},
	}
	v := ComputeSWR([]string{"a", "b"}, profiles)
	assert.InDelta(t, (1.5+0.3)/2, v, 1e-9)
}

func TestDetectCoordinatedEntryRequiresMinCluster(t *testing.T) {
	now := time.Unix(1000, 0)
	times := []time.Time{now, now.Add(5 * time.Second), now.Add(10 * time.Second)}
	assert.True(t, DetectCoordinatedEntry(times, 2))
	assert.True(t, DetectCoordinatedEntry(times, 3))
	assert.False(t, DetectCoordinatedEntry(times, 4))
}

func TestDetectCoordinatedEntryOutsideWindowDoesNotCount(t *testing.T) {
	now := time.Unix(1000, 0)
	times := []time.Time{now, now.Add(40 * time.Second), now.Add(80 * time.Second)}
	assert.False(t, DetectCoordinatedEntry(times, 2))
}

func TestComputeInsiderProbabilityBounded(t *testing.T) {
	p := ComputeInsiderProbability(InsiderFeatures{EarlyBuyRatio: 1, FundingLinked: 1, BuyRatio: 1, HolderDeltaNorm: 1})
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)
	assert.Greater(t, p, 0.9)
}

func TestComputeInsiderProbabilityRisesWithFundingOverlap(t *testing.T) {
	base := InsiderFeatures{EarlyBuyRatio: 0.2, BuyRatio: 0.6, HolderDeltaNorm: 0.1}
	without := ComputeInsiderProbability(base)
	withOverlap := base
	withOverlap.FundingLinked = 0.5
	assert.Greater(t, ComputeInsiderProbability(withOverlap), without)
}
