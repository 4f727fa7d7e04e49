package podcast

// State is the playback state of the engine.
type State int

const (
	// StateIdle means nothing is loaded.
	StateIdle State = iota

	// StateLoading means an episode was requested and no segment has
	// arrived yet.
	StateLoading

	// StatePlaying means a segment is audible.
	StatePlaying

	// StatePaused means the user paused.
	StatePaused

	// StateBuffering means the next segment has not arrived yet.
	StateBuffering

	// StateFinished means the playlist played to its end.
	StateFinished

	// StateError means the episode could not be started.
	StateError
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether an episode is loaded.
func (s State) Active() bool {
	switch s {
	case StateLoading, StatePlaying, StatePaused, StateBuffering:
		return true
	default:
		return false
	}
}
