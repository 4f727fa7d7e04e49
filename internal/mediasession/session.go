package mediasession

import "time"

// PlaybackStatus is the play/pause flag shown by the OS.
type PlaybackStatus string

const (
	StatusPlaying PlaybackStatus = "Playing"
	StatusPaused  PlaybackStatus = "Paused"
	StatusStopped PlaybackStatus = "Stopped"
)

// NowPlaying is the descriptor shown on lock screens and notifications.
type NowPlaying struct {
	TrackID  string
	Title    string
	Artist   string
	Album    string
	Status   PlaybackStatus
	Length   time.Duration
	Position time.Duration
	Rate     float64

	CanGoNext     bool
	CanGoPrevious bool
}

// Handlers are the actions the OS may invoke. Nil handlers are reported as
// unsupported.
type Handlers struct {
	Play      func()
	Pause     func()
	PlayPause func()
	Next      func()
	Previous  func()
	Stop      func()
	SetRate   func(rate float64) error
}

// Session is an OS media session.
type Session interface {
	// Update replaces the published descriptor.
	Update(NowPlaying)
	// Clear removes the descriptor, leaving the session stopped.
	Clear()
	// SetHandlers registers the transport actions.
	SetHandlers(Handlers)
	Close() error
}

// Noop is a Session that publishes nothing.
type Noop struct{}

func (Noop) Update(NowPlaying)    {}
func (Noop) Clear()               {}
func (Noop) SetHandlers(Handlers) {}
func (Noop) Close() error         { return nil }

var _ Session = Noop{}
