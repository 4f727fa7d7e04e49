package source

import (
	"errors"
	"fmt"
)

var (
	// ErrIncompleteStream is returned by Collect when the stream ends
	// without a completion marker.
	ErrIncompleteStream = errors.New("stream ended before completion")

	// ErrNoAudio is returned when the speech endpoint answers without audio.
	ErrNoAudio = errors.New("no audio content returned")

	// ErrEmptyText is returned when asked to synthesize nothing.
	ErrEmptyText = errors.New("text is empty")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.Code, e.Body)
}
