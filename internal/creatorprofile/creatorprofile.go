// Package creatorprofile aggregates a token creator's track record (§7
// Supplemented Features): Recompute turns a launch history into rug ratio and
// average token lifespan and writes them to the Store, and Risk turns a
// profile into the Gate Cascade's creator_risk input (§4.6b/d). Nothing in
// the process calls Recompute on a schedule; it runs only when a caller
// passes it a launch history.
package creatorprofile

import (
	"context"
	"fmt"
	"time"

	"github.com/nyxsignal/oracle/internal/storage"
	"github.com/nyxsignal/oracle/pkg/optional"
)

// Launch is one token a creator has launched, the raw input to Recompute.
type Launch struct {
	TokenAddress string
	LaunchedAt   time.Time
	// DiedAt is the time liquidity effectively went to zero, or the zero
	// value if the token is still alive.
	DiedAt time.Time
	// RugPct is the fraction of liquidity removed within the first hour, used
	// to classify a launch as a rug rather than a natural fade.
	RugPct float64
}

const rugThreshold = 0.80

// Recompute aggregates a creator's launch history into rug_ratio and
// avg_lifespan_hours and upserts it via Store.
func Recompute(ctx context.Context, store storage.Store, creatorAddr string, launches []Launch) error {
	if len(launches) == 0 {
		return nil
	}

	rugs := 0
	var totalLifespanHours float64
	livingCount := 0
	for _, l := range launches {
		if l.RugPct >= rugThreshold {
			rugs++
		}
		if !l.DiedAt.IsZero() {
			totalLifespanHours += l.DiedAt.Sub(l.LaunchedAt).Hours()
			livingCount++
		}
	}

	rugRatio := float64(rugs) / float64(len(launches))
	avgLifespan := 0.0
	if livingCount > 0 {
		avgLifespan = totalLifespanHours / float64(livingCount)
	}

	patch := storage.CreatorPatch{
		RugRatio:         optional.Known(rugRatio),
		TotalTokensDelta: len(launches),
	}
	if livingCount > 0 {
		patch.AvgLifespanHours = optional.Known(avgLifespan)
	}

	if err := store.UpsertCreatorStats(ctx, creatorAddr, patch); err != nil {
		return fmt.Errorf("creatorprofile: upsert %s: %w", creatorAddr, err)
	}
	return nil
}

// Risk computes the single creator_risk score the Gate Cascade reads
// (§4.6b/d): 0.85 × rug ratio plus a flat 0.1 penalty once the creator has
// launched more than 10 tokens, capped at 1. Launch timing is not considered.
func Risk(rugRatio float64, totalLaunched int) float64 {
	velocityPenalty := 0.0
	if totalLaunched > 10 {
		velocityPenalty = 0.1
	}
	risk := 0.85*rugRatio + velocityPenalty
	if risk > 1 {
		risk = 1
	}
	return risk
}
