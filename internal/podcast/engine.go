package podcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/stratalign/pmocast/internal/audio"
	"github.com/stratalign/pmocast/internal/episode"
	"github.com/stratalign/pmocast/internal/mediasession"
	"github.com/stratalign/pmocast/internal/queue"
)

// Config wires the engine to its collaborators.
type Config struct {
	Source  SegmentSource
	Cache   EpisodeCache // optional
	Output  AudioOutput
	Media   mediasession.Session // optional
	Catalog Catalog              // optional; required by Play and PlayPlaylist
	Rate    float64
	Logger  *log.Logger
}

// Engine owns the audio output, the segment queue of the active episode and
// the published session. One Engine exists per listening session; it is
// created by New and disposed of by Close.
//
// Every asynchronous result (stream records, segment completion, buffering
// wake-ups) carries the token that was current when it started and is
// dropped if the token has moved on.
type Engine struct {
	source  SegmentSource
	cache   EpisodeCache
	out     AudioOutput
	media   mediasession.Session
	catalog Catalog
	logger  *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	token    uint64
	state    State
	playlist episode.Playlist
	queue    *queue.SegmentQueue
	current  *episode.Segment
	pausedAt time.Duration
	rate     float64
	err      error
	closed   bool

	// stream cancels the stream read of the active episode.
	stream context.CancelFunc
	// waiting is the buffering waiter of the active episode, if any.
	waiting *waiter

	subs subscribers

	// mediaCh carries the latest snapshot to forwardMedia, which talks to
	// the media session outside mu. Its handlers call back into the engine.
	mediaCh   chan Session
	mediaDone chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// Stats tracks engine activity.
type Stats struct {
	EpisodesStarted  int64
	CacheHits        int64
	StreamsOpened    int64
	StreamFailures   int64
	SegmentsReceived int64
	SegmentsPlayed   int64
	SegmentsSkipped  int64
	MalformedRecords int64
	StaleCallbacks   int64
	LastActivity     time.Time
}

type waiter struct {
	cancel context.CancelFunc
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Source == nil {
		return nil, errors.New("segment source is required")
	}
	if cfg.Output == nil {
		return nil, errors.New("audio output is required")
	}
	if cfg.Media == nil {
		cfg.Media = mediasession.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Rate == 0 {
		cfg.Rate = audio.DefaultRate
	}
	if err := audio.ValidateRate(cfg.Rate); err != nil {
		return nil, err
	}
	if err := cfg.Output.SetRate(cfg.Rate); err != nil {
		return nil, fmt.Errorf("set output rate: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		source:  cfg.Source,
		cache:   cfg.Cache,
		out:     cfg.Output,
		media:   cfg.Media,
		catalog: cfg.Catalog,
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
		rate:    cfg.Rate,

		mediaCh:   make(chan Session, 1),
		mediaDone: make(chan struct{}),
	}

	e.media.SetHandlers(mediasession.Handlers{
		Play:      e.Resume,
		Pause:     e.Pause,
		PlayPause: e.Toggle,
		Next:      e.Next,
		Previous:  e.Prev,
		Stop:      e.Stop,
		SetRate:   e.SetRate,
	})
	go e.forwardMedia()
	return e, nil
}

// forwardMedia mirrors published snapshots onto the media session until
// Close closes mediaCh.
func (e *Engine) forwardMedia() {
	defer close(e.mediaDone)
	for snap := range e.mediaCh {
		switch snap.State {
		case StateIdle, StateFinished, StateError:
			e.media.Clear()
		default:
			e.media.Update(snap.NowPlaying())
		}
	}
}

// Session returns the current snapshot.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe returns a channel receiving a snapshot after every change. Only
// the latest unread snapshot is kept. The returned func unsubscribes.
func (e *Engine) Subscribe() (<-chan Session, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, ch := e.subs.add()
	if e.closed {
		e.subs.remove(id)
		return ch, func() {}
	}
	ch <- e.snapshotLocked()

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.subs.remove(id)
	}
}

// GetStats returns engine statistics.
func (e *Engine) GetStats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

func (e *Engine) count(fn func(*Stats)) {
	e.statsMu.Lock()
	fn(&e.stats)
	e.stats.LastActivity = time.Now()
	e.statsMu.Unlock()
}

func (e *Engine) snapshotLocked() Session {
	s := Session{
		State:        e.state,
		Token:        e.token,
		Position:     e.playlist.Position,
		Episodes:     e.playlist.Len(),
		SegmentIndex: -1,
		Rate:         e.rate,
		Err:          e.err,
	}
	if d, ok := e.playlist.Current(); ok {
		s.Episode = d
	}
	if e.queue != nil {
		s.Total, s.TotalExact = e.queue.Total()
		s.Received = e.queue.Received()
	}
	if e.current != nil {
		s.Speaker = e.current.Speaker
		s.Line = e.current.Line
		s.SegmentIndex = e.current.Index
		s.Duration = e.out.Duration()
		if e.state == StatePaused {
			s.Elapsed = e.pausedAt
		} else {
			s.Elapsed = e.out.Position()
		}
	}
	return s
}

// publishLocked hands a fresh snapshot to subscribers and the OS media
// session.
func (e *Engine) publishLocked() {
	if e.closed {
		return
	}
	snap := e.snapshotLocked()
	e.subs.publish(snap)

	// Sends happen under mu, so after the drain the buffer slot is free.
	select {
	case <-e.mediaCh:
	default:
	}
	e.mediaCh <- snap
}

// advanceLocked plays the next segment in index order, buffers when it has
// not arrived, or finishes the episode when the stream is exhausted.
func (e *Engine) advanceLocked(token uint64) {
	if token != e.token || e.queue == nil {
		e.stale("advance")
		return
	}
	if e.state == StatePaused {
		return
	}

	for {
		seg, status := e.queue.Take()
		switch status {
		case queue.Ready:
			e.cancelWaitLocked()
			if err := e.out.Play(seg.Audio, 0, e.segmentDone(token, seg.Index)); err != nil {
				e.logger.Warn("skipping unplayable segment",
					"episode", e.episodeIDLocked(), "index", seg.Index,
					"error", NewPodcastError(ErrorCodeDecode, e.episodeIDLocked(), "segment cannot be played", err))
				e.count(func(s *Stats) { s.SegmentsSkipped++ })
				continue
			}
			e.current = &seg
			e.pausedAt = 0
			e.state = StatePlaying
			e.count(func(s *Stats) { s.SegmentsPlayed++ })
			e.logger.Debug("playing segment", "episode", e.episodeIDLocked(), "index", seg.Index, "speaker", seg.Speaker)
			e.publishLocked()
			return

		case queue.Pending:
			e.current = nil
			e.state = StateBuffering
			e.startWaitLocked(token)
			e.logger.Debug("buffering", "episode", e.episodeIDLocked(), "wanted", e.queue.Wanted())
			e.publishLocked()
			return

		case queue.Exhausted:
			e.finishEpisodeLocked(token)
			return
		}
	}
}

// segmentDone returns the completion callback for one segment.
func (e *Engine) segmentDone(token uint64, index int) func(error) {
	return func(err error) {
		e.mu.Lock()
		defer e.mu.Unlock()

		if token != e.token || e.current == nil || e.current.Index != index || e.state != StatePlaying {
			e.stale("segment done")
			return
		}
		if err != nil {
			e.logger.Warn("segment playback failed, skipping",
				"episode", e.episodeIDLocked(), "index", index,
				"error", NewPodcastError(ErrorCodeDecode, e.episodeIDLocked(), "playback failed", err))
			e.count(func(s *Stats) { s.SegmentsSkipped++ })
		}
		e.current = nil
		e.advanceLocked(token)
	}
}

// startWaitLocked wakes the engine when the wanted segment arrives or the
// stream completes.
func (e *Engine) startWaitLocked(token uint64) {
	if e.waiting != nil {
		return
	}
	ctx, cancel := context.WithCancel(e.ctx)
	w := &waiter{cancel: cancel}
	e.waiting = w
	q := e.queue

	go func() {
		err := q.Wait(ctx)

		e.mu.Lock()
		defer e.mu.Unlock()
		defer cancel()

		if e.waiting != w {
			return
		}
		e.waiting = nil
		if err != nil || token != e.token {
			e.stale("buffering wake-up")
			return
		}
		if e.state != StateBuffering {
			return
		}
		e.advanceLocked(token)
	}()
}

func (e *Engine) cancelWaitLocked() {
	if e.waiting != nil {
		e.waiting.cancel()
		e.waiting = nil
	}
}

func (e *Engine) pauseLocked() {
	switch e.state {
	case StatePlaying:
		e.pausedAt = e.out.Position()
		if err := e.out.Pause(); err != nil {
			e.logger.Debug("output pause", "error", err)
		}
	case StateBuffering, StateLoading:
		e.cancelWaitLocked()
	default:
		return
	}
	e.state = StatePaused
	e.logger.Debug("paused", "episode", e.episodeIDLocked(), "at", e.pausedAt)
	e.publishLocked()
}

func (e *Engine) resumeLocked() {
	if e.state != StatePaused {
		return
	}
	token := e.token

	if e.current == nil {
		e.state = StateBuffering
		e.advanceLocked(token)
		return
	}

	if err := e.out.Resume(); err != nil {
		// The output lost the clip; restart it where it was paused.
		seg := *e.current
		if err := e.out.Play(seg.Audio, e.pausedAt, e.segmentDone(token, seg.Index)); err != nil {
			e.logger.Warn("cannot resume segment, skipping", "episode", e.episodeIDLocked(), "index", seg.Index, "error", err)
			e.count(func(s *Stats) { s.SegmentsSkipped++ })
			e.current = nil
			e.state = StateBuffering
			e.advanceLocked(token)
			return
		}
	}
	e.state = StatePlaying
	e.logger.Debug("resumed", "episode", e.episodeIDLocked(), "at", e.pausedAt)
	e.publishLocked()
}

// haltLocked invalidates the active episode: its stream, waiter, queue and
// audio.
func (e *Engine) haltLocked() {
	e.token++
	if e.stream != nil {
		e.stream()
		e.stream = nil
	}
	e.cancelWaitLocked()
	if e.queue != nil {
		_ = e.queue.Close()
	}
	if err := e.out.Stop(); err != nil {
		e.logger.Debug("output stop", "error", err)
	}
	e.current = nil
	e.pausedAt = 0
}

func (e *Engine) stopLocked() {
	e.haltLocked()
	e.queue = nil
	e.playlist = episode.Playlist{}
	e.state = StateIdle
	e.err = nil
	e.publishLocked()
}

func (e *Engine) episodeIDLocked() string {
	if d, ok := e.playlist.Current(); ok {
		return d.ID
	}
	return ""
}

func (e *Engine) stale(what string) {
	e.count(func(s *Stats) { s.StaleCallbacks++ })
	e.logger.Debug("discarding stale callback", "callback", what)
}
