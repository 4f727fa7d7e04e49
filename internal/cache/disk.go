package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// DiskStore is the disk tier. Entries are zstd compressed files in a
// directory unique to this session, removed by Close.
type DiskStore struct {
	dir string

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index  map[string]*diskEntry
	size   int64
	closed bool

	mu    sync.Mutex
	stats Stats
}

type diskEntry struct {
	path         string
	size         int64 // compressed
	originalSize int64
	written      time.Time
}

// NewDiskStore creates a session directory under parent and prepares the
// codec at the given zstd level.
func NewDiskStore(parent string, level int) (*DiskStore, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	dir := filepath.Join(parent, "pmocast-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	if level <= 0 {
		level = 3
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &DiskStore{
		dir:     dir,
		encoder: enc,
		decoder: dec,
		index:   make(map[string]*diskEntry),
	}, nil
}

// Dir returns the session directory.
func (d *DiskStore) Dir() string {
	return d.dir
}

// Get reads and decompresses an entry. Unreadable entries are dropped and
// reported as misses.
func (d *DiskStore) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.index[key]
	if !ok || d.closed {
		d.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(e.path)
	if err == nil {
		data, err = d.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		d.dropLocked(key, e)
		d.stats.Failures++
		d.stats.Misses++
		return nil, false
	}

	d.stats.Hits++
	d.stats.LastAccess = time.Now()
	return data, true
}

// Put compresses and writes an entry.
func (d *DiskStore) Put(key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if old, ok := d.index[key]; ok {
		d.dropLocked(key, old)
	}

	compressed := d.encoder.EncodeAll(value, nil)
	path := filepath.Join(d.dir, fileName(key))
	if err := writeFile(path, compressed); err != nil {
		d.stats.Failures++
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	d.index[key] = &diskEntry{
		path:         path,
		size:         int64(len(compressed)),
		originalSize: int64(len(value)),
		written:      time.Now(),
	}
	d.size += int64(len(compressed))
	return nil
}

// Delete removes an entry.
func (d *DiskStore) Delete(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.index[key]; ok {
		d.dropLocked(key, e)
	}
	return nil
}

// Clear removes every entry but keeps the directory.
func (d *DiskStore) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, e := range d.index {
		d.dropLocked(k, e)
	}
	return nil
}

// Stats returns tier statistics. Size is the compressed size on disk.
func (d *DiskStore) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := d.stats
	stats.Size = d.size
	stats.ItemCount = int64(len(d.index))
	stats.updateHitRate()
	return stats
}

// Close removes the session directory.
func (d *DiskStore) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.index = make(map[string]*diskEntry)
	d.size = 0

	_ = d.encoder.Close()
	d.decoder.Close()
	return os.RemoveAll(d.dir)
}

func (d *DiskStore) dropLocked(key string, e *diskEntry) {
	_ = os.Remove(e.path)
	d.size -= e.size
	delete(d.index, key)
}

func fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + ".zst"
}

// writeFile writes to a temp file and renames it into place.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
