// Package ingest implements the Stream Ingestor (§2 item 4, §5): consumes
// push events from a StreamSource, deduplicates tokens into a bounded
// in-memory work queue for the Scheduler, and re-subscribes as the
// tracked-token and smart-wallet sets drift.
package ingest

import (
	"sync"
	"time"

	"github.com/nyxsignal/oracle/internal/clock"
	"github.com/nyxsignal/oracle/internal/stream"
)

// dedupClearInterval is how long a mint is suppressed from re-entering the
// queue after being enqueued; PruneDedupSet drops dedup entries older than
// the same interval (§5: "the dedup set is cleared every 10 seconds for
// real-time responsiveness").
const dedupClearInterval = 10 * time.Second

// Ingestor owns the work queue and the recently-enqueued dedup set.
type Ingestor struct {
	mu          sync.Mutex
	queue       []string
	recentlySeen map[string]time.Time
	maxQueue    int
	clk         clock.Clock

	dropped int
}

// New builds an Ingestor with a bounded queue of maxQueueSize mints.
func New(maxQueueSize int, clk clock.Clock) *Ingestor {
	return &Ingestor{
		queue:        make([]string, 0, maxQueueSize),
		recentlySeen: make(map[string]time.Time),
		maxQueue:     maxQueueSize,
		clk:          clk,
	}
}

// HandleEvent is the StreamSource callback: enqueues a mint on create/buy/
// sell/migration events, deduplicating against the recently-enqueued set.
func (i *Ingestor) HandleEvent(ev stream.Event) {
	if ev.Mint == "" {
		return
	}
	i.enqueue(ev.Mint)
}

func (i *Ingestor) enqueue(mint string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.clk.Now()
	if seenAt, ok := i.recentlySeen[mint]; ok && now.Sub(seenAt) < dedupClearInterval {
		return
	}
	i.recentlySeen[mint] = now

	if len(i.queue) >= i.maxQueue {
		// Drop-oldest overflow policy (§5 Backpressure).
		i.queue = i.queue[1:]
		i.dropped++
	}
	i.queue = append(i.queue, mint)
}

// Drain empties the queue and returns its contents for one Scheduler cycle
// (§4.8 step 1).
func (i *Ingestor) Drain() []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := i.queue
	i.queue = make([]string, 0, i.maxQueue)
	return out
}

// DroppedCount reports how many mints have been dropped by the overflow
// policy since startup, for metrics/logging.
func (i *Ingestor) DroppedCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.dropped
}

// PruneDedupSet clears entries older than dedupClearInterval; callers run
// this on a 10s ticker (§5) separately from enqueue's lazy check so a quiet
// Ingestor doesn't grow its set unbounded.
func (i *Ingestor) PruneDedupSet() {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.clk.Now()
	for mint, seenAt := range i.recentlySeen {
		if now.Sub(seenAt) >= dedupClearInterval {
			delete(i.recentlySeen, mint)
		}
	}
}

// SubscriptionDrift tracks the set of mints/wallets currently subscribed to
// on the StreamSource so the Ingestor can detect drift against a freshly
// published tracked-token or smart-wallet set and re-subscribe only the
// delta (§2 item 4, §4.8 step 4).
type SubscriptionDrift struct {
	mu      sync.Mutex
	current map[string]struct{}
}

// NewSubscriptionDrift builds an empty drift tracker.
func NewSubscriptionDrift() *SubscriptionDrift {
	return &SubscriptionDrift{current: make(map[string]struct{})}
}

// Reconcile compares wanted against the tracked set and returns the keys
// that need a fresh subscribe call, then adopts wanted as the new tracked
// set.
func (d *SubscriptionDrift) Reconcile(wanted []string) (toAdd []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := make(map[string]struct{}, len(wanted))
	for _, k := range wanted {
		next[k] = struct{}{}
		if _, ok := d.current[k]; !ok {
			toAdd = append(toAdd, k)
		}
	}
	d.current = next
	return toAdd
}
