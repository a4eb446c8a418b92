package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kab1why1/habit/internal/domain/leaderboard"
	"github.com/kab1why1/habit/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyCache struct {
	err     error
	calls   int
	entries []leaderboard.Entry
}

func (f *flakyCache) Top(context.Context, int) ([]leaderboard.Entry, bool, error) {
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	return f.entries, true, nil
}

func (f *flakyCache) Upsert(context.Context, leaderboard.Entry) error {
	f.calls++
	return f.err
}

func (f *flakyCache) Replace(_ context.Context, entries []leaderboard.Entry) error {
	f.calls++
	if f.err == nil {
		f.entries = entries
	}
	return f.err
}

func TestGuardedLeaderboardCache_OpensOnFailures(t *testing.T) {
	ctx := context.Background()
	inner := &flakyCache{err: errors.New("dial tcp: connection refused")}
	breaker := circuitbreaker.New("redis", circuitbreaker.WithThresholds(2, 1), circuitbreaker.WithCooldown(time.Hour))
	guarded := NewGuardedLeaderboardCache(inner, breaker, nil)

	_, _, err := guarded.Top(ctx, 10)
	assert.Error(t, err)
	assert.Error(t, guarded.Upsert(ctx, leaderboard.Entry{UserID: "u1"}))
	require.Equal(t, circuitbreaker.StateOpen, breaker.State())

	entries, hit, err := guarded.Top(ctx, 10)
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, entries)

	assert.NoError(t, guarded.Upsert(ctx, leaderboard.Entry{UserID: "u1"}))
	assert.ErrorIs(t, guarded.Replace(ctx, nil), circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls)
}

func TestGuardedLeaderboardCache_PassesThrough(t *testing.T) {
	ctx := context.Background()
	inner := &flakyCache{}
	guarded := NewGuardedLeaderboardCache(inner, circuitbreaker.New("redis"), nil)

	want := []leaderboard.Entry{{UserID: "u1", Username: "alice", XP: 30, Level: 1, Rank: 1}}
	require.NoError(t, guarded.Replace(ctx, want))

	got, hit, err := guarded.Top(ctx, 10)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)
}
