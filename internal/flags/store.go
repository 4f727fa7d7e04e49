package flags

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	badger "github.com/dgraph-io/badger/v4"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("flag store is closed")

// DefaultTTL is how long a marker is kept when Mark is given no TTL.
const DefaultTTL = 7 * 24 * time.Hour

// Options configures the flag store.
type Options struct {
	// Dir holds the database files. Required unless InMemory is set.
	Dir string

	// InMemory keeps everything in memory; used by tests.
	InMemory bool

	Logger *log.Logger
}

// Store is a set of expiring markers.
type Store struct {
	db     *badger.DB
	logger *log.Logger
	now    func() time.Time
}

// Open opens or creates the flag database.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("flags: Options.Dir is required for on-disk mode")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	dbOpts := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithLogger(badgerLogger{opts.Logger})
	if opts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open flag store: %w", err)
	}
	return &Store{db: db, logger: opts.Logger, now: time.Now}, nil
}

// Seen reports whether key is marked.
func (s *Store) Seen(key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	case errors.Is(err, badger.ErrDBClosed):
		return false, ErrClosed
	default:
		return false, fmt.Errorf("read flag %q: %w", key, err)
	}
}

// Mark sets key for ttl, or DefaultTTL when ttl is zero.
func (s *Store) Mark(key string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		stamp := []byte(s.now().UTC().Format(time.RFC3339))
		return txn.SetEntry(badger.NewEntry([]byte(key), stamp).WithTTL(ttl))
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	if err != nil {
		return fmt.Errorf("write flag %q: %w", key, err)
	}
	s.logger.Debug("flag marked", "key", key, "ttl", ttl)
	return nil
}

// Clear removes key.
func (s *Store) Clear(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GreetingKey is the marker for the greeting of the day containing t, in
// t's location.
func GreetingKey(t time.Time) string {
	return "greeting/" + t.Format("2006-01-02")
}

// GreetedToday reports whether today's greeting has been recorded.
func (s *Store) GreetedToday() (bool, error) {
	return s.Seen(GreetingKey(s.now()))
}

// MarkGreeted records today's greeting. The marker outlives the day so a
// clock skew around midnight does not replay it.
func (s *Store) MarkGreeted() error {
	return s.Mark(GreetingKey(s.now()), 48*time.Hour)
}

// badgerLogger routes badger's own messages into the application log,
// demoting its chatty info output to debug.
type badgerLogger struct {
	l *log.Logger
}

func (b badgerLogger) Errorf(f string, v ...interface{}) {
	b.l.Error(fmt.Sprintf(f, v...), "component", "badger")
}

func (b badgerLogger) Warningf(f string, v ...interface{}) {
	b.l.Warn(fmt.Sprintf(f, v...), "component", "badger")
}

func (b badgerLogger) Infof(f string, v ...interface{}) {
	b.l.Debug(fmt.Sprintf(f, v...), "component", "badger")
}

func (b badgerLogger) Debugf(string, ...interface{}) {}
