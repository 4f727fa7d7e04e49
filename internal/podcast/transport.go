package podcast

import (
	"fmt"

	"github.com/stratalign/pmocast/internal/audio"
	"github.com/stratalign/pmocast/internal/episode"
)

// Play starts a single episode by id.
func (e *Engine) Play(id string) error {
	return e.PlayPlaylist([]string{id})
}

// PlayPlaylist resolves ids through the catalog and plays them in order.
func (e *Engine) PlayPlaylist(ids []string) error {
	if len(ids) == 0 {
		return ErrEmptyPlaylist
	}
	if e.catalog == nil {
		return ErrNoCatalog
	}

	items := make([]episode.Descriptor, 0, len(ids))
	for _, id := range ids {
		d, err := e.catalog.Episode(id)
		if err != nil {
			return NewPodcastError(ErrorCodeCatalog, id, "unknown episode", err)
		}
		items = append(items, d)
	}
	return e.PlayDescriptors(items, 0)
}

// PlayDescriptors plays items starting at position start. Anything already
// playing is cancelled first.
func (e *Engine) PlayDescriptors(items []episode.Descriptor, start int) error {
	pl := episode.NewPlaylist(items...)
	if pl.Len() == 0 {
		return ErrEmptyPlaylist
	}
	if start < 0 || start >= pl.Len() {
		return fmt.Errorf("start position %d out of range for %d episodes", start, pl.Len())
	}
	pl.Position = start

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.startEpisodeLocked(pl)
	return nil
}

// Pause halts audio and remembers the position within the segment. It is a
// no-op unless an episode is active and not already paused.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseLocked()
}

// Resume continues from where Pause left off. It is a no-op unless paused.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resumeLocked()
}

// Toggle pauses when active and resumes when paused.
func (e *Engine) Toggle() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StatePaused {
		e.resumeLocked()
		return
	}
	e.pauseLocked()
}

// Stop cancels everything and returns to idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.stopLocked()
}

// Next starts the following playlist episode. At the last position it does
// nothing.
func (e *Engine) Next() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if pl, ok := e.playlist.Next(); ok {
		e.startEpisodeLocked(pl)
	}
}

// Prev starts the preceding playlist episode. At the first position it does
// nothing.
func (e *Engine) Prev() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if pl, ok := e.playlist.Prev(); ok {
		e.startEpisodeLocked(pl)
	}
}

// SetRate changes the playback rate for the segment in progress and every
// later one.
func (e *Engine) SetRate(rate float64) error {
	if err := audio.ValidateRate(rate); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.out.SetRate(rate); err != nil {
		return fmt.Errorf("set output rate: %w", err)
	}
	if rate == e.rate {
		return nil
	}
	e.rate = rate
	e.publishLocked()
	return nil
}

// Close stops playback and releases subscribers and the media session.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.stopLocked()
	e.closed = true
	e.cancel()
	e.subs.closeAll()
	close(e.mediaCh)
	e.mu.Unlock()

	<-e.mediaDone
	e.media.Clear()
	return nil
}
