// Package smartwallet implements the Smart Wallet Engine (§4.4): wallet
// statistics, k-means behavioural clustering, Smart Wallet Rotation (SWR),
// coordinated-entry detection, and the insider-probability sigmoid.
// Grounded on early_detector/smart_wallets.py.
package smartwallet

import (
	"math"
	"sort"
	"time"

	"github.com/nyxsignal/oracle/pkg/models"
	"gonum.org/v1/gonum/stat"
)

// Trade is one historical buy/sell a wallet made in a token, the raw input
// to WalletStats.
type Trade struct {
	WalletAddress string
	TokenAddress  string
	ROI           float64
	ExecutedAt    time.Time
	IsEarlyBuy    bool // executed within the token's first EarlyBuyWindow
}

// WalletStats is the aggregated per-wallet summary computed from trade
// history, the input to clustering and to the smart-wallet predicate.
type WalletStats struct {
	Address     string
	AvgROI      float64
	TotalTrades int
	WinRate     float64
}

// ComputeWalletStats aggregates a wallet's trade history (smart_wallets.py
// compute_wallet_stats): average ROI, trade count, and win rate (fraction of
// trades with ROI > 0).
func ComputeWalletStats(addr string, trades []Trade) WalletStats {
	if len(trades) == 0 {
		return WalletStats{Address: addr}
	}
	var sumROI float64
	wins := 0
	for _, tr := range trades {
		sumROI += tr.ROI
		if tr.ROI > 0 {
			wins++
		}
	}
	return WalletStats{
		Address:     addr,
		AvgROI:      sumROI / float64(len(trades)),
		TotalTrades: len(trades),
		WinRate:     float64(wins) / float64(len(trades)),
	}
}

// DetectSmartWallets filters stats down to those meeting the smart-wallet
// predicate (§4.4): avg_roi > roiMin AND total_trades >= tradesMin AND
// win_rate > winRateMin.
func DetectSmartWallets(stats []WalletStats, roiMin float64, tradesMin int, winRateMin float64) []WalletStats {
	var out []WalletStats
	for _, s := range stats {
		p := models.WalletProfile{AvgROI: s.AvgROI, TotalTrades: s.TotalTrades, WinRate: s.WinRate}
		if p.IsSmartWallet(roiMin, tradesMin, winRateMin) {
			out = append(out, s)
		}
	}
	return out
}

const kmeansClusters = 3
const kmeansIterations = 50

// ClusterWallets runs k-means (k=3) over [avg_roi, win_rate] and labels the
// resulting clusters by ascending centroid avg_roi: lowest → retail, middle →
// sniper, highest → insider (smart_wallets.py cluster_wallets). Falls back to
// ClusterUnknown for all wallets when there are fewer than k wallets to
// cluster.
func ClusterWallets(stats []WalletStats) map[string]models.WalletCluster {
	out := make(map[string]models.WalletCluster, len(stats))
	if len(stats) < kmeansClusters {
		for _, s := range stats {
			out[s.Address] = models.ClusterUnknown
		}
		return out
	}

	points := make([][2]float64, len(stats))
	for i, s := range stats {
		points[i] = [2]float64{s.AvgROI, s.WinRate}
	}

	centroids := seedCentroids(points, kmeansClusters)
	assignments := make([]int, len(points))

	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, p := range points {
			best, bestDist := 0, math.Inf(1)
			for c, centroid := range centroids {
				d := sqDist(p, centroid)
				if d < bestDist {
					bestDist, best = d, c
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		for c := range centroids {
			var roiVals, winVals []float64
			for i, a := range assignments {
				if a == c {
					roiVals = append(roiVals, points[i][0])
					winVals = append(winVals, points[i][1])
				}
			}
			if len(roiVals) > 0 {
				centroids[c] = [2]float64{stat.Mean(roiVals, nil), stat.Mean(winVals, nil)}
			}
		}

		if !changed && iter > 0 {
			break
		}
	}

	// Rank clusters by ascending centroid avg_roi: retail < sniper < insider.
	order := []int{0, 1, 2}
	sort.Slice(order, func(i, j int) bool { return centroids[order[i]][0] < centroids[order[j]][0] })
	labelOf := map[int]models.WalletCluster{
		order[0]: models.ClusterRetail,
		order[1]: models.ClusterSniper,
		order[2]: models.ClusterInsider,
	}

	for i, s := range stats {
		out[s.Address] = labelOf[assignments[i]]
	}
	return out
}

func seedCentroids(points [][2]float64, k int) [][2]float64 {
	sorted := append([][2]float64(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i][0] < sorted[j][0] })
	n := len(sorted)
	centroids := make([][2]float64, k)
	for c := 0; c < k; c++ {
		idx := c * (n - 1) / (k - 1)
		centroids[c] = sorted[idx]
	}
	return centroids
}

func sqDist(a, b [2]float64) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return dx*dx + dy*dy
}

// ComputeSWR computes the Smart Wallet Rotation score (smart_wallets.py
// compute_swr): the fraction of a token's recent unique buyers that are
// known smart wallets, weighted by cluster (insider weighted highest).
func ComputeSWR(recentBuyers []string, profiles map[string]models.WalletProfile) float64 {
	if len(recentBuyers) == 0 {
		return 0
	}
	var weighted float64
	for _, addr := range recentBuyers {
		p, ok := profiles[addr]
		if !ok || !p.Verified {
			continue
		}
		switch p.Cluster {
		case models.ClusterInsider:
			weighted += 1.5
		case models.ClusterSniper:
			weighted += 1.0
		case models.ClusterRetail:
			weighted += 0.3
		}
	}
	v := weighted / float64(len(recentBuyers))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// CoordinatedEntryWindow is the sliding window used by DetectCoordinatedEntry
// (smart_wallets.py detect_coordinated_entry): entries within this many
// seconds of each other count as coordinated.
const CoordinatedEntryWindow = 15 * time.Second

// DetectCoordinatedEntry reports whether at least minCluster of the given
// buy timestamps fall within a CoordinatedEntryWindow-wide sliding window —
// an O(n^2) scan appropriate to the small per-cycle buyer counts involved.
func DetectCoordinatedEntry(buyTimes []time.Time, minCluster int) bool {
	n := len(buyTimes)
	if n < minCluster {
		return false
	}
	sorted := append([]time.Time(nil), buyTimes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	for i := 0; i < n; i++ {
		count := 1
		for j := i + 1; j < n; j++ {
			if sorted[j].Sub(sorted[i]) <= CoordinatedEntryWindow {
				count++
			} else {
				break
			}
		}
		if count >= minCluster {
			return true
		}
	}
	return false
}

// InsiderFeatures is the sigmoid regression input to ComputeInsiderProbability
// (smart_wallets.py compute_p_insider).
type InsiderFeatures struct {
	EarlyBuyRatio       float64 // fraction of early buyers among recent buyers
	FundingLinked       float64 // fraction of buyer wallets funded from a common source
	BuyRatio            float64 // buys / (buys+sells)
	HolderDeltaNorm     float64 // normalised holder acceleration
}

// sigmoid weights (smart_wallets.py compute_p_insider): tuned against
// historical rug-pull labels, not independently re-derivable from the spec.
const (
	weightEarly       = 3.0
	weightFunding     = 4.0
	weightBuyRatio    = 2.5
	weightHolderDelta = 2.0
	sigmoidBias       = 3.5
)

// ComputeInsiderProbability runs the logistic regression over InsiderFeatures
// (smart_wallets.py compute_p_insider): sigmoid(w·x - bias). This is also
// smart_wallets.py's compute_insider_score: that function is a thin
// pass-through over compute_p_insider with no extra clamping of its own, so
// callers feed coordinated-entry evidence in directly via
// InsiderFeatures.FundingLinked (0.5 when coordinated, a proxy for shared
// funding, 0 otherwise) rather than adjusting the output afterwards.
func ComputeInsiderProbability(f InsiderFeatures) float64 {
	z := weightEarly*f.EarlyBuyRatio +
		weightFunding*f.FundingLinked +
		weightBuyRatio*f.BuyRatio +
		weightHolderDelta*f.HolderDeltaNorm -
		sigmoidBias
	return 1.0 / (1.0 + math.Exp(-z))
}
