package gate

import (
	"context"
	"testing"

	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/nyxsignal/oracle/pkg/optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSignalSeen(context.Context, string, int) (bool, error) { return false, nil }

func baselineInput() Input {
	return Input{
		TokenAddress:       "tokenA",
		Instability:        10,
		Threshold:          4,
		DeltaInstability:   1,
		VolShift:           1,
		VolIntensity:       1,
		Buys5m:             10,
		Liquidity:          5000,
		MarketCap:          50_000,
		EntryPrice:         1.0,
		MintAuthority:      optional.Unknown[string](),
		FreezeAuthority:    optional.Unknown[string](),
		Top10Ratio:         optional.Known(0.2),
		Holders:            optional.Known(100),
		InsiderProbability: optional.Known(0.05),
		CreatorRisk:        optional.Known(0.05),
		PriceChange5m:      0.5,
		Regime:             models.RegimeStable,
		SWR:                0.3,
		TokenAgeMinutes:    60,
		Candles: []Candle{
			{Open: 1, High: 1.1, Low: 0.95, Close: 1.05, Volume: 100},
			{Open: 1.05, High: 1.2, Low: 1.0, Close: 1.15, Volume: 150},
			{Open: 1.15, High: 1.3, Low: 1.1, Close: 1.25, Volume: 200},
		},
	}
}

func TestEvaluatePassesBaseline(t *testing.T) {
	d, err := Evaluate(context.Background(), baselineInput(), DefaultConfig(), noSignalSeen)
	require.NoError(t, err)
	assert.True(t, d.Pass, d.Reason)
	assert.Equal(t, "tokenA", d.Signal.TokenAddress)
	assert.InDelta(t, 0.85, d.Signal.StopLoss, 1e-9)
	assert.InDelta(t, 1.40, d.Signal.TakeProfit1, 1e-9)
}

func TestEvaluateRejectsBelowThreshold(t *testing.T) {
	in := baselineInput()
	in.Instability = 1
	d, err := Evaluate(context.Background(), in, DefaultConfig(), noSignalSeen)
	require.NoError(t, err)
	assert.False(t, d.Pass)
	assert.Contains(t, d.Reason, "trigger")
}

func TestEvaluateRejectsCollapsingToken(t *testing.T) {
	in := baselineInput()
	in.Threshold = 10
	in.Instability = 15
	in.DeltaInstability = -20
	d, err := Evaluate(context.Background(), in, DefaultConfig(), noSignalSeen)
	require.NoError(t, err)
	assert.False(t, d.Pass)
}

func TestEvaluateRejectsNonNullMintAuthority(t *testing.T) {
	in := baselineInput()
	in.MintAuthority = optional.Known("someauthority")
	d, err := Evaluate(context.Background(), in, DefaultConfig(), noSignalSeen)
	require.NoError(t, err)
	assert.False(t, d.Pass)
	assert.Contains(t, d.Reason, "mint authority")
}

func TestEvaluateRejectsHighTop10(t *testing.T) {
	in := baselineInput()
	in.Top10Ratio = optional.Known(0.9)
	d, err := Evaluate(context.Background(), in, DefaultConfig(), noSignalSeen)
	require.NoError(t, err)
	assert.False(t, d.Pass)
}

func TestEvaluateBondingCurveBypassesTop10(t *testing.T) {
	in := baselineInput()
	in.IsBondingCurve = true
	in.Top10Ratio = optional.Known(0.9)
	d, err := Evaluate(context.Background(), in, DefaultConfig(), noSignalSeen)
	require.NoError(t, err)
	assert.True(t, d.Pass, d.Reason)
}

func TestEvaluateRejectsOnDedupHit(t *testing.T) {
	seen := func(context.Context, string, int) (bool, error) { return true, nil }
	d, err := Evaluate(context.Background(), baselineInput(), DefaultConfig(), seen)
	require.NoError(t, err)
	assert.False(t, d.Pass)
	assert.Contains(t, d.Reason, "dedup")
}

func TestEvaluateHalvesKellySizeOnModerateInsiderRisk(t *testing.T) {
	cfg := DefaultConfig()

	low := baselineInput()
	low.InsiderProbability = optional.Known(0.01)
	dLow, err := Evaluate(context.Background(), low, cfg, noSignalSeen)
	require.NoError(t, err)
	require.True(t, dLow.Pass)

	moderate := baselineInput()
	moderate.InsiderProbability = optional.Known(0.5)
	dModerate, err := Evaluate(context.Background(), moderate, cfg, noSignalSeen)
	require.NoError(t, err)
	require.True(t, dModerate.Pass)

	assert.Less(t, dModerate.Signal.KellySize, dLow.Signal.KellySize)
}

func TestEvaluateCapsKellyForMicrocap(t *testing.T) {
	in := baselineInput()
	in.MarketCap = 5000
	in.InsiderProbability = optional.Known(0.01)
	in.CreatorRisk = optional.Known(0.01)
	d, err := Evaluate(context.Background(), in, DefaultConfig(), noSignalSeen)
	require.NoError(t, err)
	require.True(t, d.Pass, d.Reason)
	assert.LessOrEqual(t, d.Signal.KellySize, DefaultConfig().KellyMicrocapMax)
}

func TestBayesianConfidenceWithinBounds(t *testing.T) {
	in := baselineInput()
	p := bayesianConfidence(in, DefaultConfig())
	assert.GreaterOrEqual(t, p, 0.01)
	assert.LessOrEqual(t, p, 0.99)
}

func TestEvaluateCandlePatternFailsOpenOnShortHistory(t *testing.T) {
	_, ok := EvaluateCandlePattern([]Candle{{Close: 1}})
	assert.False(t, ok)
}
