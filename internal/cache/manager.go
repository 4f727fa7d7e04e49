package cache

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/stratalign/pmocast/internal/episode"
)

// EpisodeCache maps episode ids to their complete segment lists. It is an
// optimization only: every failure is logged and reported as a miss, and
// nothing is returned to the caller as an error.
type EpisodeCache struct {
	namespace string
	memory    *SessionStore
	disk      *DiskStore
	logger    *log.Logger

	mu    sync.Mutex
	stats ManagerStats
}

// ManagerStats aggregates cache activity across tiers.
type ManagerStats struct {
	Hits       int64
	Misses     int64
	MemoryHits int64
	DiskHits   int64
	Promotions int64
	Writes     int64
	Rejected   int64
	Failures   int64

	Memory Stats
	Disk   Stats
}

// New creates an episode cache. A disk tier that cannot be created is
// logged and skipped.
func New(cfg Config) *EpisodeCache {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.MemoryCapacity <= 0 {
		cfg.MemoryCapacity = DefaultConfig().MemoryCapacity
	}

	c := &EpisodeCache{
		namespace: cfg.Namespace,
		memory:    NewSessionStore(cfg.MemoryCapacity),
		logger:    cfg.Logger,
	}

	if cfg.Disk {
		disk, err := NewDiskStore(cfg.DiskDir, cfg.CompressionLevel)
		if err != nil {
			cfg.Logger.Warn("disk cache unavailable, using memory only", "error", err)
		} else {
			c.disk = disk
			cfg.Logger.Debug("disk cache ready", "dir", disk.Dir())
		}
	}
	return c
}

// Key returns the storage key for an episode.
func (c *EpisodeCache) Key(id string) string {
	return c.namespace + id
}

// Get returns the cached segments of an episode in index order.
func (c *EpisodeCache) Get(id string) ([]episode.Segment, bool) {
	key := c.Key(id)

	data, level, ok := c.lookup(key)
	if !ok {
		c.count(func(s *ManagerStats) { s.Misses++ })
		return nil, false
	}

	var segments []episode.Segment
	if err := json.Unmarshal(data, &segments); err != nil || len(segments) == 0 || !episode.Gapless(segments) {
		c.logger.Warn("dropping unreadable cache entry", "episode", id, "level", level, "error", fmt.Errorf("%w: %v", ErrCacheCorrupted, err))
		c.drop(key)
		c.count(func(s *ManagerStats) { s.Failures++; s.Misses++ })
		return nil, false
	}

	c.count(func(s *ManagerStats) {
		s.Hits++
		if level == LevelMemory {
			s.MemoryHits++
		} else {
			s.DiskHits++
		}
	})
	c.logger.Debug("episode cache hit", "episode", id, "level", level, "segments", len(segments))
	return segments, true
}

// Put stores an episode's complete segment list. Lists that are empty or
// have gaps are not stored.
func (c *EpisodeCache) Put(id string, segments []episode.Segment) {
	if len(segments) == 0 || !episode.Gapless(segments) {
		c.logger.Debug("not caching incomplete episode", "episode", id, "error", ErrIncompleteEpisode)
		c.count(func(s *ManagerStats) { s.Rejected++ })
		return
	}

	data, err := json.Marshal(segments)
	if err != nil {
		c.logger.Warn("failed to encode episode for cache", "episode", id, "error", err)
		c.count(func(s *ManagerStats) { s.Failures++ })
		return
	}

	key := c.Key(id)
	stored := false
	if err := c.memory.Put(key, data); err != nil {
		c.logger.Debug("memory cache write skipped", "episode", id, "error", err)
	} else {
		stored = true
	}
	if c.disk != nil {
		if err := c.disk.Put(key, data); err != nil {
			c.logger.Warn("disk cache write failed", "episode", id, "error", err)
		} else {
			stored = true
		}
	}

	if !stored {
		c.count(func(s *ManagerStats) { s.Failures++ })
		return
	}
	c.count(func(s *ManagerStats) { s.Writes++ })
	c.logger.Debug("episode cached", "episode", id, "segments", len(segments), "bytes", len(data))
}

// Delete removes an episode from every tier.
func (c *EpisodeCache) Delete(id string) {
	c.drop(c.Key(id))
}

// Stats returns aggregated statistics.
func (c *EpisodeCache) Stats() ManagerStats {
	c.mu.Lock()
	stats := c.stats
	c.mu.Unlock()

	stats.Memory = c.memory.Stats()
	if c.disk != nil {
		stats.Disk = c.disk.Stats()
	}
	return stats
}

// Close ends the session, discarding every tier.
func (c *EpisodeCache) Close() error {
	_ = c.memory.Clear()
	if c.disk != nil {
		if err := c.disk.Close(); err != nil {
			return fmt.Errorf("failed to close disk cache: %w", err)
		}
	}
	return nil
}

// lookup checks memory, then disk, promoting disk hits into memory.
func (c *EpisodeCache) lookup(key string) ([]byte, Level, bool) {
	if data, ok := c.memory.Get(key); ok {
		return data, LevelMemory, true
	}
	if c.disk == nil {
		return nil, LevelMemory, false
	}
	data, ok := c.disk.Get(key)
	if !ok {
		return nil, LevelDisk, false
	}
	if err := c.memory.Put(key, data); err == nil {
		c.count(func(s *ManagerStats) { s.Promotions++ })
	}
	return data, LevelDisk, true
}

func (c *EpisodeCache) drop(key string) {
	_ = c.memory.Delete(key)
	if c.disk != nil {
		_ = c.disk.Delete(key)
	}
}

func (c *EpisodeCache) count(fn func(*ManagerStats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}
