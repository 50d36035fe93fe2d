package creatorprofile

import (
	"context"
	"testing"
	"time"

	"github.com/nyxsignal/oracle/internal/storage/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeAggregatesRugRatioAndLifespan(t *testing.T) {
	store := memstore.New()
	now := time.Now()
	launches := []Launch{
		{TokenAddress: "a", LaunchedAt: now.Add(-48 * time.Hour), DiedAt: now.Add(-47 * time.Hour), RugPct: 0.95},
		{TokenAddress: "b", LaunchedAt: now.Add(-24 * time.Hour), DiedAt: now.Add(-20 * time.Hour), RugPct: 0.1},
	}

	err := Recompute(context.Background(), store, "creator1", launches)
	require.NoError(t, err)

	profile, ok, err := store.GetCreatorProfile(context.Background(), "creator1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.5, profile.RugRatio, 1e-9)
	assert.InDelta(t, 2.5, profile.AvgLifespanHrs, 1e-9)
	assert.Equal(t, 2, profile.TotalLaunched)
}

func TestRecomputeNoopOnEmptyLaunches(t *testing.T) {
	store := memstore.New()
	err := Recompute(context.Background(), store, "creator1", nil)
	require.NoError(t, err)
	_, ok, _ := store.GetCreatorProfile(context.Background(), "creator1")
	assert.False(t, ok)
}

func TestRiskPenalizesHighRugRatioAndVelocity(t *testing.T) {
	low := Risk(0.0, 1)
	high := Risk(1.0, 20)
	assert.Less(t, low, high)
	assert.LessOrEqual(t, high, 1.0)
}
