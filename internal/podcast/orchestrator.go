package podcast

import (
	"context"
	"errors"
	"io"

	"github.com/stratalign/pmocast/internal/episode"
	"github.com/stratalign/pmocast/internal/queue"
	"github.com/stratalign/pmocast/internal/source"
)

// startEpisodeLocked begins the current item of pl under a new token. A
// cached episode is queued in one shot; otherwise its stream is read in the
// background.
func (e *Engine) startEpisodeLocked(pl episode.Playlist) {
	e.haltLocked()
	token := e.token

	d, _ := pl.Current()
	q := queue.New()
	e.playlist = pl
	e.queue = q
	e.state = StateLoading
	e.err = nil
	e.count(func(s *Stats) { s.EpisodesStarted++ })
	e.logger.Info("starting episode", "episode", d.ID, "position", pl.Position, "playlist", pl.Len())

	if e.cache != nil {
		if segments, ok := e.cache.Get(d.ID); ok {
			for _, seg := range segments {
				q.Enqueue(seg)
			}
			q.MarkComplete()
			e.count(func(s *Stats) { s.CacheHits++ })
			e.logger.Debug("episode served from cache", "episode", d.ID, "segments", len(segments))
			e.publishLocked()
			e.advanceLocked(token)
			return
		}
	}

	ctx, cancel := context.WithCancel(e.ctx)
	e.stream = cancel
	e.publishLocked()
	go e.consume(ctx, token, d, q)
}

// consume reads the episode's stream into q until the stream completes,
// fails or ctx is cancelled.
func (e *Engine) consume(ctx context.Context, token uint64, d episode.Descriptor, q *queue.SegmentQueue) {
	stream, err := e.source.OpenStream(ctx, d)
	if err != nil {
		e.failOpen(ctx, token, d, err)
		return
	}
	defer stream.Close() //nolint:errcheck
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stop()
	e.count(func(s *Stats) { s.StreamsOpened++ })

	received := 0
	for {
		rec, err := stream.Next()
		if ctx.Err() != nil {
			e.logger.Debug("stream read cancelled", "episode", d.ID)
			return
		}
		if errors.Is(err, source.ErrMalformedRecord) {
			e.count(func(s *Stats) { s.MalformedRecords++ })
			e.logger.Warn("skipping malformed record", "episode", d.ID, "error", err)
			var bad *source.MalformedRecordError
			if errors.As(err, &bad) && bad.Index != nil {
				q.Skip(*bad.Index)
			}
			continue
		}
		if err != nil {
			if received == 0 {
				if errors.Is(err, io.EOF) {
					err = ErrStreamEnded
				}
				e.failOpen(ctx, token, d, err)
				return
			}
			// Without a completion marker the episode cannot be declared
			// finished; playback stays buffered until the user acts.
			e.logger.Warn("segment stream ended before completion", "episode", d.ID, "received", received, "error", err)
			return
		}

		switch r := rec.(type) {
		case source.SegmentRecord:
			if !q.Enqueue(r.Segment) {
				e.logger.Debug("segment dropped", "episode", d.ID, "index", r.Segment.Index)
				continue
			}
			received++
			e.count(func(s *Stats) { s.SegmentsReceived++ })
			e.segmentArrived(token)

		case source.ErrorRecord:
			e.logger.Warn("source failed a segment", "episode", d.ID,
				"error", NewPodcastError(ErrorCodeSegment, d.ID, r.Message, nil))
			if r.Index != nil {
				q.Skip(*r.Index)
			}

		case source.DoneRecord:
			q.MarkComplete()
			e.writeBack(d, q)
			e.streamComplete(token)
			return
		}
	}
}

// segmentArrived starts playback when the first segment of a loading
// episode arrives, and refreshes the published totals otherwise.
func (e *Engine) segmentArrived(token uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if token != e.token {
		e.stale("segment arrival")
		return
	}
	if e.state == StateLoading {
		e.state = StatePlaying
		e.advanceLocked(token)
		return
	}
	e.publishLocked()
}

// streamComplete finishes an episode whose stream completed while still
// loading. Buffering waiters wake up on their own.
func (e *Engine) streamComplete(token uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if token != e.token {
		e.stale("stream completion")
		return
	}
	e.stream = nil
	if e.state == StateLoading {
		e.state = StatePlaying
		e.advanceLocked(token)
		return
	}
	e.publishLocked()
}

// writeBack caches a completed episode when nothing is missing from it.
func (e *Engine) writeBack(d episode.Descriptor, q *queue.SegmentQueue) {
	if e.cache == nil {
		return
	}
	segments := q.Segments()
	if len(segments) == 0 || !episode.Gapless(segments) {
		e.logger.Debug("episode incomplete, not cached", "episode", d.ID, "segments", len(segments))
		return
	}
	e.cache.Put(d.ID, segments)
}

// failOpen records a stream that produced nothing. It is terminal for this
// play attempt; the user may start the episode again.
func (e *Engine) failOpen(ctx context.Context, token uint64, d episode.Descriptor, cause error) {
	if ctx.Err() != nil {
		return
	}
	e.count(func(s *Stats) { s.StreamFailures++ })

	e.mu.Lock()
	defer e.mu.Unlock()

	if token != e.token {
		e.stale("stream failure")
		return
	}
	err := NewPodcastError(ErrorCodeStreamOpen, d.ID, "could not start episode", cause)
	e.logger.Error("episode failed to start", "episode", d.ID, "error", err)

	e.haltLocked()
	e.state = StateError
	e.err = err
	e.publishLocked()
}

// finishEpisodeLocked moves to the next playlist item, or ends playback
// when there is none.
func (e *Engine) finishEpisodeLocked(token uint64) {
	if token != e.token {
		return
	}
	e.logger.Info("episode finished", "episode", e.episodeIDLocked())

	if next, ok := e.playlist.Next(); ok {
		e.startEpisodeLocked(next)
		return
	}

	e.haltLocked()
	e.state = StateFinished
	e.publishLocked()
}
