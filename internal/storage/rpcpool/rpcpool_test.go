package rpcpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectRoundRobins(t *testing.T) {
	p, err := New([]string{"a", "b", "c"})
	require.NoError(t, err)

	seen := []string{}
	for i := 0; i < 3; i++ {
		u, err := p.Select()
		require.NoError(t, err)
		seen = append(seen, u)
	}
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestDisableSkipsEndpointUntilCooldownExpires(t *testing.T) {
	p, err := New([]string{"a", "b"})
	require.NoError(t, err)

	fixed := time.Unix(1000, 0)
	p.now = func() time.Time { return fixed }

	u, _ := p.Select()
	require.Equal(t, "a", u)
	p.Disable("a")

	u, err = p.Select()
	require.NoError(t, err)
	assert.Equal(t, "b", u)

	p.now = func() time.Time { return fixed.Add(61 * time.Second) }
	u, err = p.Select()
	require.NoError(t, err)
	assert.Equal(t, "a", u)
}

func TestHeliusEndpointGetsLongerCooldown(t *testing.T) {
	p, err := New([]string{"https://helius-rpc.example.com", "https://other.example.com"})
	require.NoError(t, err)

	fixed := time.Unix(1000, 0)
	p.now = func() time.Time { return fixed }

	p.Select()
	p.Disable("https://helius-rpc.example.com")

	p.now = func() time.Time { return fixed.Add(61 * time.Second) }
	u, err := p.Select()
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com", u)

	p.now = func() time.Time { return fixed.Add(301 * time.Second) }
	u, err = p.Select()
	require.NoError(t, err)
	assert.Contains(t, []string{"https://helius-rpc.example.com", "https://other.example.com"}, u)
}

func TestSelectErrorsWhenAllDisabled(t *testing.T) {
	p, err := New([]string{"a"})
	require.NoError(t, err)
	p.Disable("a")
	_, err = p.Select()
	assert.Error(t, err)
}

func TestDoDisablesOnRateLimit(t *testing.T) {
	p, err := New([]string{"a", "b"})
	require.NoError(t, err)

	rateLimited := errors.New("429")
	callCount := 0
	err = p.Do(context.Background(), func(ctx context.Context, url string) error {
		callCount++
		return rateLimited
	}, func(e error) bool { return e == rateLimited })
	assert.Error(t, err)
	assert.Equal(t, 1, callCount)

	u, err := p.Select()
	require.NoError(t, err)
	assert.Equal(t, "b", u)
}
