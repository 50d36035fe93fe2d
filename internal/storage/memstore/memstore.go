// Package memstore is an in-memory storage.Store used by tests that need a
// deterministic Store without a Postgres instance, per the design note that
// cross-cutting singletons be injected as interfaces (spec §9).
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nyxsignal/oracle/internal/storage"
	"github.com/nyxsignal/oracle/pkg/models"
)

// Store is a mutex-protected in-memory implementation of storage.Store.
type Store struct {
	mu       sync.Mutex
	tokens   map[string]models.Token
	metrics  map[string][]models.TokenMetric
	signals  []models.Signal
	wallets  map[string]models.WalletProfile
	creators map[string]models.CreatorProfile
	regimes  []models.RegimeObservation
}

var _ storage.Store = (*Store)(nil)

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{
		tokens:   make(map[string]models.Token),
		metrics:  make(map[string][]models.TokenMetric),
		wallets:  make(map[string]models.WalletProfile),
		creators: make(map[string]models.CreatorProfile),
	}
}

func (s *Store) UpsertToken(_ context.Context, addr string, patch storage.TokenPatch) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[addr]
	if !ok {
		t = models.Token{Address: addr, FirstSeen: time.Now(), IsBondingCurve: models.IsBondingCurveAddress(addr)}
	}
	if v, known := patch.Name.Get(); known {
		t.Name = v
	}
	if v, known := patch.Symbol.Get(); known {
		t.Symbol = v
	}
	if v, known := patch.Narrative.Get(); known {
		t.Narrative = v
	}
	if v, known := patch.Creator.Get(); known {
		t.CreatorAddress = patch.Creator
		_ = v
	}
	s.tokens[addr] = t
	return addr, nil
}

func (s *Store) InsertMetric(_ context.Context, m models.TokenMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[m.TokenAddress] = append(s.metrics[m.TokenAddress], m)
	return nil
}

func (s *Store) RecentMetrics(_ context.Context, tokenAddr string, windowMinutes int) ([]models.TokenMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(windowMinutes) * time.Minute)
	var out []models.TokenMetric
	for _, m := range s.metrics[tokenAddr] {
		if !m.ObservedAt.Before(cutoff) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.After(out[j].ObservedAt) })
	return out, nil
}

func (s *Store) TokensObservedSince(_ context.Context, windowMinutes int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(windowMinutes) * time.Minute)
	var out []string
	for addr, metrics := range s.metrics {
		for _, m := range metrics {
			if !m.ObservedAt.Before(cutoff) {
				out = append(out, addr)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) LatestInstabilityAll(_ context.Context, windowMinutes int) ([]storage.InstabilityRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(windowMinutes) * time.Minute)
	var out []storage.InstabilityRow
	for addr, ms := range s.metrics {
		var latest *models.TokenMetric
		for i := range ms {
			m := ms[i]
			if m.ObservedAt.Before(cutoff) {
				continue
			}
			if latest == nil || m.ObservedAt.After(latest.ObservedAt) {
				latest = &ms[i]
			}
		}
		if latest == nil {
			continue
		}
		out = append(out, storage.InstabilityRow{
			TokenAddress: addr,
			Instability:  latest.InstabilityIndex,
			Price:        latest.Price,
			MarketCap:    latest.MarketCap,
			Liquidity:    latest.Liquidity,
			Holders:      latest.Holders,
			Top10:        latest.Top10Ratio,
			ObservedAt:   latest.ObservedAt,
		})
	}
	return out, nil
}

func (s *Store) InsertSignal(_ context.Context, sig models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
	return nil
}

func (s *Store) HasRecentSignal(_ context.Context, tokenAddr string, minutes int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)
	for _, sig := range s.signals {
		if sig.TokenAddress == tokenAddr && !sig.ObservedAt.Before(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) UpsertWallet(_ context.Context, addr string, patch storage.WalletPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[addr] = models.WalletProfile{
		Address:      addr,
		AvgROI:       patch.AvgROI,
		TotalTrades:  patch.TotalTrades,
		WinRate:      patch.WinRate,
		Cluster:      patch.Cluster,
		LastActiveAt: time.Now(),
		Verified:     true,
	}
	return nil
}

func (s *Store) GetWallets(_ context.Context, addrs []string) ([]models.WalletProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WalletProfile
	for _, a := range addrs {
		if w, ok := s.wallets[a]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) UpsertCreatorStats(_ context.Context, addr string, patch storage.CreatorPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.creators[addr]
	c.Address = addr
	if v, known := patch.RugRatio.Get(); known {
		c.RugRatio = v
	}
	if v, known := patch.AvgLifespanHours.Get(); known {
		c.AvgLifespanHrs = v
	}
	c.TotalLaunched += patch.TotalTokensDelta
	c.UpdatedAt = time.Now()
	s.creators[addr] = c
	return nil
}

func (s *Store) GetCreatorProfile(_ context.Context, addr string) (models.CreatorProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creators[addr]
	return c, ok, nil
}

func (s *Store) RecentSignals(_ context.Context, windowMinutes int) ([]models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(windowMinutes) * time.Minute)
	var out []models.Signal
	for _, sig := range s.signals {
		if !sig.ObservedAt.Before(cutoff) {
			out = append(out, sig)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.After(out[j].ObservedAt) })
	return out, nil
}

func (s *Store) LogRegime(_ context.Context, r models.RegimeObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regimes = append(s.regimes, r)
	return nil
}

func (s *Store) RecentRegimes(_ context.Context, n int) ([]models.RegimeObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Slice(s.regimes, func(i, j int) bool { return s.regimes[i].Bucket.After(s.regimes[j].Bucket) })
	if n > len(s.regimes) {
		n = len(s.regimes)
	}
	out := make([]models.RegimeObservation, n)
	copy(out, s.regimes[:n])
	return out, nil
}
