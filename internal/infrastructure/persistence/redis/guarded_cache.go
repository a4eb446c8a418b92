package redis

import (
	"context"

	"github.com/kab1why1/habit/internal/domain/leaderboard"
	"github.com/kab1why1/habit/pkg/circuitbreaker"
	"github.com/kab1why1/habit/pkg/logger"
)

// GuardedLeaderboardCache wraps a leaderboard.Cache with a circuit breaker.
// While the circuit is open reads report a miss and writes are dropped, so
// callers fall back to the store without waiting on Redis.
type GuardedLeaderboardCache struct {
	inner   leaderboard.Cache
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

var _ leaderboard.Cache = (*GuardedLeaderboardCache)(nil)

// NewGuardedLeaderboardCache creates a new GuardedLeaderboardCache.
func NewGuardedLeaderboardCache(inner leaderboard.Cache, breaker *circuitbreaker.CircuitBreaker, log *logger.Logger) *GuardedLeaderboardCache {
	if log == nil {
		log = logger.Nop()
	}
	return &GuardedLeaderboardCache{
		inner:   inner,
		breaker: breaker,
		log:     log.Named("leaderboard_cache"),
	}
}

// Top returns a miss while the circuit is open.
func (g *GuardedLeaderboardCache) Top(ctx context.Context, limit int) ([]leaderboard.Entry, bool, error) {
	var (
		entries []leaderboard.Entry
		hit     bool
	)
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		entries, hit, err = g.inner.Top(ctx, limit)
		return err
	})
	if circuitbreaker.IsRejected(err) {
		return nil, false, nil
	}
	return entries, hit, err
}

// Upsert is dropped while the circuit is open; the next rebuild repairs it.
func (g *GuardedLeaderboardCache) Upsert(ctx context.Context, e leaderboard.Entry) error {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.inner.Upsert(ctx, e)
	})
	if circuitbreaker.IsRejected(err) {
		g.log.Debug("cache upsert skipped", logger.UserID(e.UserID), logger.String("circuit", g.breaker.State().String()))
		return nil
	}
	return err
}

// Replace fails fast with the breaker error while the circuit is open.
func (g *GuardedLeaderboardCache) Replace(ctx context.Context, entries []leaderboard.Entry) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.inner.Replace(ctx, entries)
	})
}
