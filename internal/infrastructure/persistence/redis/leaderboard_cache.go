package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kab1why1/habit/internal/domain/leaderboard"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache keeps the hot leaderboard in Redis.
//
// Layout:
//   - Sorted Set "leaderboard:score" stores userID -> leaderboard.Score(level, xp)
//   - Hash "leaderboard:info" stores userID -> Entry JSON
//   - String "leaderboard:meta" marks a complete rebuild; without it the
//     cache is treated as empty and single upserts are skipped.
type LeaderboardCache struct {
	cache *Cache
	ttl   time.Duration
}

var _ leaderboard.Cache = (*LeaderboardCache)(nil)

const (
	keyLeaderboardScore = PrefixLeaderboard + "score"
	keyLeaderboardInfo  = PrefixLeaderboard + "info"
	keyLeaderboardMeta  = PrefixLeaderboard + "meta"

	// DefaultLeaderboardTTL outlives a few rebuild intervals.
	DefaultLeaderboardTTL = 30 * time.Minute
)

// LeaderboardMeta describes the last rebuild.
type LeaderboardMeta struct {
	RebuiltAt time.Time `json:"rebuilt_at"`
	Users     int       `json:"users"`
}

// NewLeaderboardCache creates a new LeaderboardCache. ttl <= 0 uses the default.
func NewLeaderboardCache(cache *Cache, ttl time.Duration) *LeaderboardCache {
	if ttl <= 0 {
		ttl = DefaultLeaderboardTTL
	}
	return &LeaderboardCache{cache: cache, ttl: ttl}
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Upsert updates one user after an XP award. It is a no-op while the cache
// has not been rebuilt, so a partial set is never served as the full table.
func (l *LeaderboardCache) Upsert(ctx context.Context, e leaderboard.Entry) error {
	if e.UserID == "" {
		return ErrCacheKeyEmpty
	}

	n, err := l.cache.client.Exists(ctx, keyLeaderboardMeta).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	data, err := encodeEntry(e)
	if err != nil {
		return err
	}

	pipe := l.cache.client.TxPipeline()
	pipe.ZAdd(ctx, keyLeaderboardScore, redis.Z{Score: e.Score(), Member: e.UserID})
	pipe.HSet(ctx, keyLeaderboardInfo, e.UserID, data)

	_, err = pipe.Exec(ctx)
	return err
}

// Replace swaps the whole cache for entries in one MULTI/EXEC.
func (l *LeaderboardCache) Replace(ctx context.Context, entries []leaderboard.Entry) error {
	members := make([]redis.Z, 0, len(entries))
	info := make(map[string]any, len(entries))

	for _, e := range entries {
		if e.UserID == "" {
			continue
		}
		data, err := encodeEntry(e)
		if err != nil {
			return err
		}
		members = append(members, redis.Z{Score: e.Score(), Member: e.UserID})
		info[e.UserID] = data
	}

	meta, err := json.Marshal(LeaderboardMeta{RebuiltAt: time.Now().UTC(), Users: len(members)})
	if err != nil {
		return err
	}

	pipe := l.cache.client.TxPipeline()
	pipe.Del(ctx, keyLeaderboardScore, keyLeaderboardInfo, keyLeaderboardMeta)
	if len(members) > 0 {
		pipe.ZAdd(ctx, keyLeaderboardScore, members...)
		pipe.HSet(ctx, keyLeaderboardInfo, info)
		pipe.Expire(ctx, keyLeaderboardScore, l.ttl)
		pipe.Expire(ctx, keyLeaderboardInfo, l.ttl)
	}
	pipe.Set(ctx, keyLeaderboardMeta, meta, l.ttl)

	_, err = pipe.Exec(ctx)
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// READ OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Top returns the first limit entries. ok is false when the cache is cold.
func (l *LeaderboardCache) Top(ctx context.Context, limit int) ([]leaderboard.Entry, bool, error) {
	limit = leaderboard.ClampLimit(limit)

	if _, err := l.cache.client.Get(ctx, keyLeaderboardMeta).Result(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	ids, err := l.cache.client.ZRevRange(ctx, keyLeaderboardScore, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(ids) == 0 {
		return []leaderboard.Entry{}, true, nil
	}

	values, err := l.cache.client.HMGet(ctx, keyLeaderboardInfo, ids...).Result()
	if err != nil {
		return nil, false, err
	}

	entries, err := decodeEntries(values)
	if err != nil {
		return nil, false, err
	}
	return leaderboard.Ranking(entries, limit), true, nil
}

// Meta returns the last rebuild marker, or nil when the cache is cold.
func (l *LeaderboardCache) Meta(ctx context.Context) (*LeaderboardMeta, error) {
	data, err := l.cache.client.Get(ctx, keyLeaderboardMeta).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var meta LeaderboardMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal leaderboard meta: %w", err)
	}
	return &meta, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

func encodeEntry(e leaderboard.Entry) (string, error) {
	e.Rank = 0
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}
	return string(data), nil
}

// decodeEntries skips hash misses, which appear when the two keys race.
func decodeEntries(values []any) ([]leaderboard.Entry, error) {
	entries := make([]leaderboard.Entry, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var e leaderboard.Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
