package audio

import (
	"errors"
	"fmt"
)

// PlayerState represents the current state of a player.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateClosed
)

func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Playback rate bounds.
const (
	MinRate     = 0.5
	MaxRate     = 2.0
	DefaultRate = 1.0
)

var (
	// ErrEmptyAudio is returned by Play for a zero-length clip.
	ErrEmptyAudio = errors.New("audio data is empty")

	// ErrClosed is returned once the player has been closed.
	ErrClosed = errors.New("player is closed")

	// ErrInvalidRate is returned for a rate outside MinRate..MaxRate.
	ErrInvalidRate = errors.New("invalid playback rate")

	// ErrInvalidVolume is returned for a volume outside 0..1.
	ErrInvalidVolume = errors.New("invalid volume")
)

// ValidateRate checks a playback rate multiplier.
func ValidateRate(rate float64) error {
	if rate < MinRate || rate > MaxRate {
		return fmt.Errorf("%w: %.2f (must be %.1f-%.1f)", ErrInvalidRate, rate, MinRate, MaxRate)
	}
	return nil
}

func validateVolume(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: %.2f (must be 0.0-1.0)", ErrInvalidVolume, v)
	}
	return nil
}

func stateError(op string, s PlayerState) error {
	return fmt.Errorf("cannot %s: player is %s", op, s)
}
