package podcast

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/stratalign/pmocast/internal/audio"
	"github.com/stratalign/pmocast/internal/episode"
	"github.com/stratalign/pmocast/internal/mediasession"
	"github.com/stratalign/pmocast/internal/source"
)

const waitTimeout = 2 * time.Second

func quietLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Level: log.FatalLevel})
}

// clip is the audio payload used for segment i of episode id.
func clip(id string, i int) []byte {
	return []byte(fmt.Sprintf("%s#%d", id, i))
}

func segmentLine(id string, i int) string {
	speaker := "Alex"
	if i%2 == 1 {
		speaker = "Sam"
	}
	return fmt.Sprintf(`{"speaker":%q,"line":"line %d","audioContent":%q,"index":%d}`+"\n",
		speaker, i, base64.StdEncoding.EncodeToString(clip(id, i)), i)
}

const doneLine = `{"done":true}` + "\n"

// fakeSource hands out one pipe per OpenStream call.
type fakeSource struct {
	mu      sync.Mutex
	pipes   map[string][]*io.PipeWriter
	opens   map[string]int
	openErr map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		pipes:   make(map[string][]*io.PipeWriter),
		opens:   make(map[string]int),
		openErr: make(map[string]error),
	}
}

func (f *fakeSource) OpenStream(ctx context.Context, d episode.Descriptor) (*source.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opens[d.ID]++
	if err := f.openErr[d.ID]; err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	f.pipes[d.ID] = append(f.pipes[d.ID], pw)
	return source.NewStream(pr), nil
}

func (f *fakeSource) failOpen(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr[id] = err
}

func (f *fakeSource) openCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[id]
}

// writer waits for the n-th (1-based) stream of an episode to be opened.
func (f *fakeSource) writer(t *testing.T, id string, n int) *io.PipeWriter {
	t.Helper()
	var w *io.PipeWriter
	waitFor(t, fmt.Sprintf("stream %d of %s opened", n, id), func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.pipes[id]) >= n {
			w = f.pipes[id][n-1]
			return true
		}
		return false
	})
	return w
}

// send writes lines to a stream; errors from cancelled streams are returned.
func send(w *io.PipeWriter, lines ...string) error {
	for _, l := range lines {
		if _, err := io.WriteString(w, l); err != nil {
			return err
		}
	}
	return nil
}

func mustSend(t *testing.T, w *io.PipeWriter, lines ...string) {
	t.Helper()
	if err := send(w, lines...); err != nil {
		t.Fatalf("write to stream: %v", err)
	}
}

// mapCache is an in-memory EpisodeCache.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]episode.Segment
	puts int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]episode.Segment)}
}

func (c *mapCache) Get(id string) ([]episode.Segment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.data[id]
	return s, ok
}

func (c *mapCache) Put(id string, segments []episode.Segment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[id] = segments
	c.puts++
}

func (c *mapCache) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

// fakeMedia records what the engine publishes.
type fakeMedia struct {
	mu       sync.Mutex
	last     mediasession.NowPlaying
	updates  int
	clears   int
	handlers mediasession.Handlers
}

func (m *fakeMedia) Update(np mediasession.NowPlaying) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = np
	m.updates++
}

func (m *fakeMedia) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = mediasession.NowPlaying{}
	m.clears++
}

func (m *fakeMedia) SetHandlers(h mediasession.Handlers) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = h
}

func (m *fakeMedia) Close() error { return nil }

func (m *fakeMedia) snapshot() (mediasession.NowPlaying, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.updates, m.clears
}

// mapCatalog resolves ids to descriptors titled after the id.
type mapCatalog map[string]episode.Descriptor

var errNotFound = errors.New("not found")

func (c mapCatalog) Episode(id string) (episode.Descriptor, error) {
	d, ok := c[id]
	if !ok {
		return episode.Descriptor{}, errNotFound
	}
	return d, nil
}

func descriptors(ids ...string) []episode.Descriptor {
	out := make([]episode.Descriptor, len(ids))
	for i, id := range ids {
		out[i] = episode.Descriptor{ID: id, Title: "Episode " + id, DeckTitle: "Deck"}
	}
	return out
}

type harness struct {
	engine *Engine
	source *fakeSource
	player *audio.MockPlayer
	cache  *mapCache
	media  *fakeMedia
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		source: newFakeSource(),
		player: audio.DefaultMockPlayer(),
		cache:  newMapCache(),
		media:  &fakeMedia{},
	}

	catalog := mapCatalog{}
	for _, d := range descriptors("a", "b", "c") {
		catalog[d.ID] = d
	}

	e, err := New(Config{
		Source:  h.source,
		Cache:   h.cache,
		Output:  h.player,
		Media:   h.media,
		Catalog: catalog,
		Logger:  quietLogger(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.engine = e
	t.Cleanup(func() { _ = e.Close() })
	return h
}

// played returns the clips passed to the output, as strings.
func (h *harness) played() []string {
	var out []string
	for _, c := range h.player.History() {
		out = append(out, string(c))
	}
	return out
}

func (h *harness) waitState(t *testing.T, want State) Session {
	t.Helper()
	var s Session
	waitFor(t, "state "+want.String(), func() bool {
		s = h.engine.Session()
		return s.State == want
	})
	return s
}

func (h *harness) waitPlaying(t *testing.T, id string, index int) {
	t.Helper()
	waitFor(t, fmt.Sprintf("playing %s#%d", id, index), func() bool {
		s := h.engine.Session()
		return s.State == StatePlaying && s.Episode.ID == id && s.SegmentIndex == index
	})
}

// waitMedia waits until the media session shows np matching cond.
func (h *harness) waitMedia(t *testing.T, what string, cond func(np mediasession.NowPlaying, clears int) bool) mediasession.NowPlaying {
	t.Helper()
	var np mediasession.NowPlaying
	waitFor(t, "media "+what, func() bool {
		var clears int
		np, _, clears = h.media.snapshot()
		return cond(np, clears)
	})
	return np
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func expectPlayed(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected played %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected played %v, got %v", want, got)
		}
	}
}
