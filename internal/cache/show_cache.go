// Package cache implements the Redis read-through cache for per-show song
// rankings. It trades freshness for read throughput: entries live for a short
// TTL, vote mutations invalidate by deleting the key, and any Redis failure
// falls back to the database so reads never break when the cache is down.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/encorelive/encore/internal/domain"
	"github.com/encorelive/encore/internal/metrics"
)

// showSongsTTL bounds staleness when an invalidation is lost (e.g. Redis was
// unavailable right after a commit).
const showSongsTTL = 300 * time.Second

// ShowSongCache is a read-through cache in front of a domain.SetlistReader.
// Concurrent misses for the same show collapse into a single database query
// via singleflight.
type ShowSongCache struct {
	rdb    goredis.Cmdable
	reader domain.SetlistReader
	group  singleflight.Group
}

var _ domain.ShowSongCache = (*ShowSongCache)(nil)

func NewShowSongCache(rdb goredis.Cmdable, reader domain.SetlistReader) *ShowSongCache {
	return &ShowSongCache{rdb: rdb, reader: reader}
}

func showSongsKey(showID uuid.UUID) string {
	return fmt.Sprintf("show:%s:songs", showID)
}

func (c *ShowSongCache) GetShowSongs(ctx context.Context, showID uuid.UUID) ([]domain.SongVoteCount, error) {
	key := showSongsKey(showID)

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var songs []domain.SongVoteCount
		if err := json.Unmarshal(data, &songs); err == nil {
			metrics.CacheHitsTotal.Inc()
			return songs, nil
		}
		slog.Warn("Corrupt cache entry, refetching", "key", key)
	} else if !errors.Is(err, goredis.Nil) {
		// Redis down or breaker open: serve from the database and record the
		// degraded read. Do not attempt the write-back below.
		metrics.CacheFallbacksTotal.Inc()
		slog.Warn("Cache read failed, falling back to store", "show_id", showID, "error", err)
		return c.reader.GetShowSongs(ctx, showID)
	}

	metrics.CacheMissesTotal.Inc()

	// Collapse a miss stampede into one store query per show.
	v, err, _ := c.group.Do(key, func() (any, error) {
		songs, err := c.reader.GetShowSongs(ctx, showID)
		if err != nil {
			return nil, err
		}
		c.writeBack(ctx, key, songs)
		return songs, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]domain.SongVoteCount), nil
}

// Invalidate deletes the show's cache key. Called after each committed vote
// mutation; the next read repopulates from the source of truth.
func (c *ShowSongCache) Invalidate(ctx context.Context, showID uuid.UUID) error {
	if err := c.rdb.Del(ctx, showSongsKey(showID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate show songs cache: %w", err)
	}
	metrics.CacheInvalidationsTotal.Inc()
	return nil
}

func (c *ShowSongCache) writeBack(ctx context.Context, key string, songs []domain.SongVoteCount) {
	encoded, err := json.Marshal(songs)
	if err != nil {
		slog.Warn("Failed to marshal show songs for cache", "key", key, "error", err)
		return
	}

	if err := c.rdb.Set(ctx, key, encoded, showSongsTTL).Err(); err != nil {
		slog.Warn("Failed to populate show songs cache", "key", key, "error", err)
	}
}
