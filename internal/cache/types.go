package cache

import (
	"errors"
	"time"

	"github.com/charmbracelet/log"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds a tier's capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when stored data cannot be decoded.
	ErrCacheCorrupted = errors.New("cache data corrupted")

	// ErrIncompleteEpisode is returned when asked to store a segment list
	// that is empty or has gaps.
	ErrIncompleteEpisode = errors.New("episode segments are not complete")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("cache is closed")
)

// Level identifies a cache tier.
type Level int

const (
	// LevelMemory is the in-process tier.
	LevelMemory Level = iota

	// LevelDisk is the compressed temp-dir tier.
	LevelDisk
)

// String returns the string representation of the cache level
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "Memory"
	case LevelDisk:
		return "Disk"
	default:
		return "Unknown"
	}
}

// Stats holds tier metrics.
type Stats struct {
	Capacity  int64
	Size      int64
	ItemCount int64

	Hits      int64
	Misses    int64
	Evictions int64
	Failures  int64
	HitRate   float64

	LastAccess time.Time
	LastEvict  time.Time
}

func (s *Stats) updateHitRate() {
	if s.Hits+s.Misses > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
}

// Config holds configuration for the episode cache.
type Config struct {
	// Namespace prefixes every key, e.g. "pmo-podcast-".
	Namespace string

	// MemoryCapacity bounds the memory tier in bytes.
	MemoryCapacity int64

	// Disk enables the disk tier.
	Disk bool

	// DiskDir is where the session directory is created. Defaults to the
	// system temp dir.
	DiskDir string

	// CompressionLevel is the zstd level for the disk tier (1-22).
	CompressionLevel int

	Logger *log.Logger
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:        "pmo-podcast-",
		MemoryCapacity:   64 * 1024 * 1024,
		Disk:             true,
		CompressionLevel: 3,
	}
}

// Store is a byte-oriented cache tier.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Stats() Stats
}
