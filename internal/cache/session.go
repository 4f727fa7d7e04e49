package cache

import (
	"sync"
	"time"
)

// SessionStore is the memory tier. When full it drops the oldest entries
// first.
type SessionStore struct {
	capacity int64
	size     int64
	items    map[string]*sessionEntry

	mu    sync.Mutex
	stats Stats
}

type sessionEntry struct {
	value     []byte
	timestamp time.Time
}

// NewSessionStore creates a memory tier bounded to capacity bytes.
func NewSessionStore(capacity int64) *SessionStore {
	return &SessionStore{
		capacity: capacity,
		items:    make(map[string]*sessionEntry),
		stats:    Stats{Capacity: capacity},
	}
}

// Get retrieves a value.
func (s *SessionStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		s.stats.Misses++
		return nil, false
	}
	s.stats.Hits++
	s.stats.LastAccess = time.Now()
	return e.value, true
}

// Put stores a value, evicting older entries to make room.
func (s *SessionStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(value))
	if n > s.capacity {
		return ErrItemTooLarge
	}
	if old, ok := s.items[key]; ok {
		s.size -= int64(len(old.value))
		delete(s.items, key)
	}
	for s.size+n > s.capacity && len(s.items) > 0 {
		s.evictOldestLocked()
	}

	s.items[key] = &sessionEntry{value: value, timestamp: time.Now()}
	s.size += n
	return nil
}

// Delete removes an entry.
func (s *SessionStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.items[key]; ok {
		s.size -= int64(len(e.value))
		delete(s.items, key)
	}
	return nil
}

// Clear removes all entries.
func (s *SessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*sessionEntry)
	s.size = 0
	return nil
}

// Stats returns tier statistics.
func (s *SessionStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.Size = s.size
	stats.ItemCount = int64(len(s.items))
	stats.updateHitRate()
	return stats
}

func (s *SessionStore) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range s.items {
		if oldestKey == "" || e.timestamp.Before(oldest) {
			oldestKey, oldest = k, e.timestamp
		}
	}
	if oldestKey == "" {
		return
	}
	s.size -= int64(len(s.items[oldestKey].value))
	delete(s.items, oldestKey)
	s.stats.Evictions++
	s.stats.LastEvict = time.Now()
}
