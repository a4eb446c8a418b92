// Package jobs contains the scheduled jobs of the habit service.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kab1why1/habit/internal/domain/leaderboard"
	"github.com/kab1why1/habit/pkg/logger"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// Locker takes a short-lived named lock so only one instance rebuilds at a time.
type Locker interface {
	TryLock(ctx context.Context, resource, owner string, ttl time.Duration) (bool, func(context.Context), error)
}

// RebuildLeaderboardJob copies the relational leaderboard into the cache.
type RebuildLeaderboardJob struct {
	repo   leaderboard.Repository
	cache  leaderboard.Cache
	locker Locker
	logger *logger.Logger
	config RebuildLeaderboardConfig

	// instance identifies this process as a lock owner.
	instance string

	lastRebuildStats atomic.Pointer[RebuildStats]
}

// RebuildLeaderboardConfig contains configuration for the rebuild job.
type RebuildLeaderboardConfig struct {
	// Size is how many users are cached.
	Size int

	// Timeout is the maximum duration for one rebuild.
	Timeout time.Duration

	// LockTTL bounds how long a crashed instance can block the others.
	LockTTL time.Duration
}

// DefaultRebuildLeaderboardConfig returns sensible defaults.
func DefaultRebuildLeaderboardConfig() RebuildLeaderboardConfig {
	return RebuildLeaderboardConfig{
		Size:    leaderboard.MaxSize,
		Timeout: time.Minute,
		LockTTL: 2 * time.Minute,
	}
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Users     int
	Skipped   bool
}

// NewRebuildLeaderboardJob creates the job. locker may be nil.
func NewRebuildLeaderboardJob(
	repo leaderboard.Repository,
	cache leaderboard.Cache,
	locker Locker,
	log *logger.Logger,
	config RebuildLeaderboardConfig,
) *RebuildLeaderboardJob {
	if log == nil {
		log = logger.Default()
	}
	if config.Size <= 0 {
		config.Size = leaderboard.MaxSize
	}

	return &RebuildLeaderboardJob{
		repo:     repo,
		cache:    cache,
		locker:   locker,
		logger:   log.Named("rebuild_leaderboard"),
		config:   config,
		instance: uuid.NewString(),
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string {
	return "rebuild_leaderboard"
}

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Copies the top of the leaderboard from the database into the cache"
}

// Run executes the rebuild job.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	started := time.Now()
	stats := &RebuildStats{StartedAt: started}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	if j.locker != nil {
		ok, release, err := j.locker.TryLock(ctx, j.Name(), j.instance, j.config.LockTTL)
		if err != nil {
			return fmt.Errorf("failed to take rebuild lock: %w", err)
		}
		if !ok {
			stats.Skipped = true
			stats.Duration = time.Since(started)
			j.lastRebuildStats.Store(stats)
			j.logger.Debug("another instance is rebuilding, skipping")
			return nil
		}
		defer release(context.WithoutCancel(ctx))
	}

	entries, err := j.repo.Top(ctx, j.config.Size)
	if err != nil {
		return fmt.Errorf("failed to read leaderboard: %w", err)
	}

	if err := j.cache.Replace(ctx, entries); err != nil {
		return fmt.Errorf("failed to replace cached leaderboard: %w", err)
	}

	stats.Users = len(entries)
	stats.Duration = time.Since(started)
	j.lastRebuildStats.Store(stats)

	j.logger.Info("leaderboard rebuilt",
		logger.Int("users", stats.Users),
		logger.Latency(stats.Duration),
	)
	return nil
}

// LastStats returns the stats of the last run, or nil.
func (j *RebuildLeaderboardJob) LastStats() *RebuildStats {
	return j.lastRebuildStats.Load()
}
