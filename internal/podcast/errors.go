package podcast

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPlaylist is returned when asked to play nothing.
	ErrEmptyPlaylist = errors.New("playlist is empty")

	// ErrNoCatalog is returned by Play when episodes cannot be resolved by id.
	ErrNoCatalog = errors.New("no episode catalog configured")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("player is closed")

	// ErrStreamEnded is the cause recorded when a stream closes before it
	// produced any segment.
	ErrStreamEnded = errors.New("segment stream ended before any segment")
)

// ErrorCode identifies specific error types.
type ErrorCode string

const (
	ErrorCodeStreamOpen ErrorCode = "STREAM_OPEN"
	ErrorCodeSegment    ErrorCode = "SEGMENT"
	ErrorCodeDecode     ErrorCode = "DECODE"
	ErrorCodeCatalog    ErrorCode = "CATALOG"
	ErrorCodeOutput     ErrorCode = "OUTPUT"
)

// PodcastError carries the episode an error belongs to.
type PodcastError struct {
	Code    ErrorCode
	Episode string
	Message string
	Cause   error
}

// NewPodcastError creates a new error.
func NewPodcastError(code ErrorCode, episode, message string, cause error) *PodcastError {
	return &PodcastError{Code: code, Episode: episode, Message: message, Cause: cause}
}

// Error implements the error interface
func (e *PodcastError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Episode != "" {
		msg = fmt.Sprintf("%s: %s (episode %s)", e.Code, e.Message, e.Episode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *PodcastError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether the error ends the current play attempt.
func (e *PodcastError) IsFatal() bool {
	switch e.Code {
	case ErrorCodeStreamOpen, ErrorCodeCatalog, ErrorCodeOutput:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether playing the episode again may succeed. No
// retry is ever automatic.
func (e *PodcastError) IsRetryable() bool {
	return e.Code == ErrorCodeStreamOpen
}
