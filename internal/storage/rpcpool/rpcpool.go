// Package rpcpool implements the rotating RPC pool with per-endpoint circuit
// breaker described in §4.2/§5: round-robin selection skipping
// cooled-down endpoints, 60s cooldown on rate-limit (300s for Helius-class
// endpoints). Adapted from r3e-network-service_layer's chain.RPCPool, traded
// down from its active health-check loop (no cheap RPC call is universal
// across Solana providers) to the spec's simpler cooldown-on-429 model.
package rpcpool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// defaultCooldown and heliusCooldown are the spec's fixed cooldown windows
// (§4.2): ordinary endpoints cool for 60s after a rate-limit response,
// Helius-class endpoints (paid, stricter limits) for 300s.
const (
	defaultCooldown = 60 * time.Second
	heliusCooldown  = 300 * time.Second
)

type endpoint struct {
	url          string
	isHelius     bool
	disabledUntil time.Time
}

// Pool is a rotating, mutex-protected set of RPC endpoints.
type Pool struct {
	mu        sync.Mutex
	endpoints []*endpoint
	next      int
	now       func() time.Time
}

// New builds a Pool from a list of RPC URLs. URLs containing "helius" use
// the longer cooldown window.
func New(urls []string) (*Pool, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("rpcpool: at least one endpoint required")
	}
	endpoints := make([]*endpoint, len(urls))
	for i, u := range urls {
		endpoints[i] = &endpoint{url: u, isHelius: strings.Contains(strings.ToLower(u), "helius")}
	}
	return &Pool{endpoints: endpoints, now: time.Now}, nil
}

// Select returns the next enabled endpoint in round-robin order, skipping
// any still in cooldown. Returns an error only when every endpoint is
// currently disabled.
func (p *Pool) Select() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	n := len(p.endpoints)
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		ep := p.endpoints[idx]
		if ep.disabledUntil.IsZero() || now.After(ep.disabledUntil) {
			p.next = (idx + 1) % n
			return ep.url, nil
		}
	}
	return "", fmt.Errorf("rpcpool: all %d endpoints in cooldown", n)
}

// Disable cools an endpoint down after a rate-limit response (§4.2, §5).
func (p *Pool) Disable(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ep := range p.endpoints {
		if ep.url == url {
			cooldown := defaultCooldown
			if ep.isHelius {
				cooldown = heliusCooldown
			}
			ep.disabledUntil = p.now().Add(cooldown)
			return
		}
	}
}

// Do selects an endpoint, runs fn against it, and disables the endpoint on a
// rate-limit error (identified via isRateLimited) so outstanding calls
// through other endpoints keep working (§5 Cancellation).
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context, url string) error, isRateLimited func(error) bool) error {
	url, err := p.Select()
	if err != nil {
		return err
	}
	err = fn(ctx, url)
	if err != nil && isRateLimited(err) {
		p.Disable(url)
	}
	return err
}
