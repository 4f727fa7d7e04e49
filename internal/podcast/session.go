package podcast

import (
	"time"

	"github.com/stratalign/pmocast/internal/episode"
	"github.com/stratalign/pmocast/internal/mediasession"
)

// Album is the album name published to the media session.
const Album = "PMO Toolkit Podcast"

// Session is an immutable snapshot of what the engine is doing.
type Session struct {
	State State
	Token uint64

	Episode  episode.Descriptor
	Position int // index in the playlist
	Episodes int // playlist length

	// Segment in progress; SegmentIndex is -1 when none.
	Speaker      episode.Speaker
	Line         string
	SegmentIndex int

	Elapsed  time.Duration
	Duration time.Duration

	// Total is exact once the stream completed, an estimate before.
	Total      int
	TotalExact bool
	Received   int

	Rate float64
	Err  error
}

// IsPlaying reports whether audio is audible.
func (s Session) IsPlaying() bool { return s.State == StatePlaying }

// IsPaused reports whether the user paused.
func (s Session) IsPaused() bool { return s.State == StatePaused }

// IsLoading reports whether the first segment is awaited.
func (s Session) IsLoading() bool { return s.State == StateLoading }

// IsBuffering reports whether the next segment is awaited.
func (s Session) IsBuffering() bool { return s.State == StateBuffering }

// HasNext reports whether another episode follows in the playlist.
func (s Session) HasNext() bool { return s.Position+1 < s.Episodes }

// HasPrev reports whether an episode precedes in the playlist.
func (s Session) HasPrev() bool { return s.Position > 0 && s.Episodes > 0 }

// NowPlaying builds the media session descriptor. The artist is the
// speaking host, or the deck when nobody is speaking.
func (s Session) NowPlaying() mediasession.NowPlaying {
	artist := string(s.Speaker)
	if artist == "" {
		artist = s.Episode.DeckTitle
	}

	status := mediasession.StatusPaused
	switch s.State {
	case StatePlaying:
		status = mediasession.StatusPlaying
	case StateIdle, StateFinished, StateError:
		status = mediasession.StatusStopped
	}

	return mediasession.NowPlaying{
		TrackID:       s.Episode.ID,
		Title:         s.Episode.Title,
		Artist:        artist,
		Album:         Album,
		Status:        status,
		Length:        s.Duration,
		Position:      s.Elapsed,
		Rate:          s.Rate,
		CanGoNext:     s.HasNext(),
		CanGoPrevious: s.HasPrev(),
	}
}

// subscribers fan snapshots out on latest-wins channels.
type subscribers struct {
	next int
	subs map[int]chan Session
}

func (s *subscribers) add() (int, chan Session) {
	if s.subs == nil {
		s.subs = make(map[int]chan Session)
	}
	s.next++
	ch := make(chan Session, 1)
	s.subs[s.next] = ch
	return s.next, ch
}

func (s *subscribers) remove(id int) {
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// publish replaces any unread snapshot. Callers serialize publish.
func (s *subscribers) publish(snap Session) {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (s *subscribers) closeAll() {
	for id := range s.subs {
		s.remove(id)
	}
}
