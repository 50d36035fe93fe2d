package ingest

import (
	"testing"
	"time"

	"github.com/nyxsignal/oracle/internal/clock"
	"github.com/nyxsignal/oracle/internal/stream"
	"github.com/stretchr/testify/assert"
)

func TestHandleEventDeduplicatesWithinWindow(t *testing.T) {
	clk := clock.NewFrozen(time.Unix(0, 0))
	ing := New(10, clk)

	ing.HandleEvent(stream.Event{Mint: "A", Type: stream.EventCreate})
	ing.HandleEvent(stream.Event{Mint: "A", Type: stream.EventBuy})
	assert.Equal(t, []string{"A"}, ing.Drain())
}

func TestHandleEventAllowsReentryAfterDedupWindow(t *testing.T) {
	clk := clock.NewFrozen(time.Unix(0, 0))
	ing := New(10, clk)

	ing.HandleEvent(stream.Event{Mint: "A"})
	ing.Drain()
	clk.Advance(11 * time.Second)
	ing.HandleEvent(stream.Event{Mint: "A"})
	assert.Equal(t, []string{"A"}, ing.Drain())
}

func TestDrainEmptiesQueue(t *testing.T) {
	clk := clock.NewFrozen(time.Unix(0, 0))
	ing := New(10, clk)
	ing.HandleEvent(stream.Event{Mint: "A"})
	assert.Len(t, ing.Drain(), 1)
	assert.Empty(t, ing.Drain())
}

func TestEnqueueDropsOldestOnOverflow(t *testing.T) {
	clk := clock.NewFrozen(time.Unix(0, 0))
	ing := New(2, clk)
	ing.HandleEvent(stream.Event{Mint: "A"})
	ing.HandleEvent(stream.Event{Mint: "B"})
	ing.HandleEvent(stream.Event{Mint: "C"})
	assert.Equal(t, []string{"B", "C"}, ing.Drain())
	assert.Equal(t, 1, ing.DroppedCount())
}

func TestHandleEventIgnoresEmptyMint(t *testing.T) {
	clk := clock.NewFrozen(time.Unix(0, 0))
	ing := New(10, clk)
	ing.HandleEvent(stream.Event{Mint: ""})
	assert.Empty(t, ing.Drain())
}

func TestSubscriptionDriftOnlyReturnsNewKeys(t *testing.T) {
	d := NewSubscriptionDrift()
	added := d.Reconcile([]string{"a", "b"})
	assert.ElementsMatch(t, []string{"a", "b"}, added)

	added = d.Reconcile([]string{"a", "b", "c"})
	assert.Equal(t, []string{"c"}, added)

	added = d.Reconcile([]string{"c"})
	assert.Empty(t, added)
}
