package devsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stratalign/pmocast/internal/episode"
)

const shutdownTimeout = 10 * time.Second

// Config controls how records are emitted.
type Config struct {
	// Dir is the fixtures directory.
	Dir string

	// Fallback is the episode served for ids without a fixture. Empty
	// means unknown ids get a 404.
	Fallback string

	// Shuffle emits segment records in a random order.
	Shuffle bool
	Seed    uint64

	// Delay is the pause before every record after the first.
	Delay time.Duration

	// FailIndices are emitted as error records instead of segments.
	FailIndices []int

	Logger *log.Logger
}

// Server serves the segment stream, speech and download endpoints.
type Server struct {
	cfg     Config
	metrics *Metrics
	logger  *log.Logger

	mu       sync.RWMutex
	fixtures *Fixtures

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New loads the fixtures in cfg.Dir and creates a server.
func New(cfg Config) (*Server, error) {
	f, err := LoadFixtures(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return NewWithFixtures(f, cfg), nil
}

// NewWithFixtures creates a server over already loaded fixtures.
func NewWithFixtures(f *Fixtures, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano()) //nolint:gosec
	}
	return &Server{
		cfg:      cfg,
		metrics:  NewMetrics(),
		logger:   cfg.Logger,
		fixtures: f,
		rng:      rand.New(rand.NewPCG(seed, seed>>1|1)), //nolint:gosec
	}
}

// Reload re-reads the fixtures directory. The previous fixtures stay in
// use when it fails.
func (s *Server) Reload() error {
	f, err := LoadFixtures(s.cfg.Dir)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.fixtures = f
	s.mu.Unlock()
	s.logger.Info("fixtures reloaded", "episodes", len(f.IDs()))
	return nil
}

// Fixtures returns the fixtures being served.
func (s *Server) Fixtures() *Fixtures {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fixtures
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Post("/podcast/stream", s.handleStream)
		r.Post("/podcast/download", s.handleDownload)
		r.Post("/tts", s.handleSpeech)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dev source listening", "addr", addr, "episodes", len(s.Fixtures().IDs()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type streamRequest struct {
	ID   string       `json:"id"`
	Card episode.Card `json:"card"`
}

type errorRecord struct {
	Error string `json:"error"`
	Index *int   `json:"index,omitempty"`
}

type doneRecord struct {
	Done bool `json:"done"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		http.Error(w, "expected {\"id\": ..., \"card\": {...}}", http.StatusBadRequest)
		return
	}

	segments, ok := s.lookup(req.ID)
	if !ok {
		http.Error(w, "unknown episode "+req.ID, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	s.metrics.activeStreams.Inc()
	defer s.metrics.activeStreams.Dec()

	fail := make(map[int]bool, len(s.cfg.FailIndices))
	for _, i := range s.cfg.FailIndices {
		fail[i] = true
	}

	enc := json.NewEncoder(w)
	emit := func(kind string, v any) bool {
		if err := enc.Encode(v); err != nil {
			s.logger.Debug("client went away", "episode", req.ID, "error", err)
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		s.metrics.incRecords(kind)
		return true
	}

	for n, pos := range s.order(len(segments)) {
		if n > 0 && !s.pause(r.Context()) {
			return
		}
		seg := segments[pos]
		if fail[seg.Index] {
			index := seg.Index
			if !emit("error", errorRecord{Error: "synthesis failed", Index: &index}) {
				return
			}
			continue
		}
		if !emit("segment", seg) {
			return
		}
	}

	if !s.pause(r.Context()) || !emit("done", doneRecord{Done: true}) {
		return
	}
	s.metrics.streamsCompleted.Inc()
	s.logger.Debug("stream completed", "episode", req.ID, "segments", len(segments))
}

type speechRequest struct {
	Text string `json:"text"`
}

type speechResponse struct {
	AudioContent []byte `json:"audioContent"`
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "expected {\"text\": ...}", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(speechResponse{AudioContent: s.Fixtures().FirstClip()})
}

type downloadRequest struct {
	Segments []episode.Segment `json:"segments"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Segments) == 0 {
		http.Error(w, "expected {\"segments\": [...]}", http.StatusBadRequest)
		return
	}

	episode.SortByIndex(req.Segments)
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", `attachment; filename="episode.mp3"`)
	for _, seg := range req.Segments {
		if _, err := w.Write(seg.Audio); err != nil {
			return
		}
	}
}

func (s *Server) lookup(id string) ([]episode.Segment, bool) {
	f := s.Fixtures()
	if segments, ok := f.Episode(id); ok {
		return segments, true
	}
	if s.cfg.Fallback != "" {
		return f.Episode(s.cfg.Fallback)
	}
	return nil, false
}

// order returns the emission order of n segments.
func (s *Server) order(n int) []int {
	if !s.cfg.Shuffle {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Perm(n)
}

// pause waits the configured delay. It reports false if ctx ended first.
func (s *Server) pause(ctx context.Context) bool {
	if s.cfg.Delay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.cfg.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// observe logs each request and records request metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrap := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrap, r)

		s.metrics.requestsTotal.WithLabelValues(r.URL.Path).Inc()
		if wrap.status >= 400 {
			s.metrics.errorsTotal.Inc()
		}
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrap.status,
			"duration", time.Since(start),
			"size", wrap.size,
		)
	})
}
