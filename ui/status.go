package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/stratalign/pmocast/internal/podcast"
)

// statusDisplay renders the playback state for the status bar.
type statusDisplay struct {
	state        podcast.State
	segment      int
	total        int
	exact        bool
	received     int
	elapsed      time.Duration
	duration     time.Duration
	rate         float64
	progress     float64
	errorMessage string
	ascii        bool
}

func newStatusDisplay(ascii bool) *statusDisplay {
	return &statusDisplay{state: podcast.StateIdle, segment: -1, rate: 1, ascii: ascii}
}

// update copies the fields shown from a snapshot.
func (s *statusDisplay) update(snap podcast.Session) {
	s.state = snap.State
	s.segment = snap.SegmentIndex
	s.total = snap.Total
	s.exact = snap.TotalExact
	s.received = snap.Received
	s.elapsed = snap.Elapsed
	s.duration = snap.Duration
	s.rate = snap.Rate

	switch {
	case snap.State == podcast.StateFinished:
		s.progress = 1
	case s.total > 0 && s.segment >= 0:
		s.progress = float64(s.segment) / float64(s.total)
		if s.duration > 0 {
			s.progress += float64(s.elapsed) / float64(s.duration) / float64(s.total)
		}
	case snap.State == podcast.StateIdle:
		s.progress = 0
	}
	if s.progress > 1 {
		s.progress = 1
	}

	if snap.State == podcast.StateError && snap.Err != nil {
		s.errorMessage = snap.Err.Error()
	} else {
		s.errorMessage = ""
	}
}

// compact returns the one-line status, empty when idle.
func (s *statusDisplay) compact() string {
	if s.state == podcast.StateIdle {
		return ""
	}

	status := lipgloss.NewStyle().Foreground(s.color()).Render(s.icon() + " " + s.state.String())

	if s.segment >= 0 && s.total > 0 {
		status += grayFg(" " + s.counter())
	}
	if s.duration > 0 {
		status += grayFg(fmt.Sprintf(" %s/%s", formatDuration(s.elapsed), formatDuration(s.duration)))
	}
	if s.rate != 1 {
		status += grayFg(fmt.Sprintf(" %.3gx", s.rate))
	}
	return status
}

// counter is "segment/total"; an estimated total is marked with a tilde.
func (s *statusDisplay) counter() string {
	if s.exact {
		return fmt.Sprintf("%d/%d", s.segment+1, s.total)
	}
	return fmt.Sprintf("%d/~%d", s.segment+1, s.total)
}

// errorLine returns the error, truncated to width.
func (s *statusDisplay) errorLine(width int) string {
	if s.errorMessage == "" {
		return ""
	}
	if width < 10 {
		width = 10
	}
	return errorFg(truncate.StringWithTail("Error: "+s.errorMessage, uint(width), ellipsis)) //nolint:gosec
}

// bar renders the episode progress without the bubbles progress model, for
// narrow terminals.
func (s *statusDisplay) bar(width int) string {
	if width < 10 {
		return ""
	}
	filled := int(s.progress * float64(width))
	if filled > width {
		filled = width
	}
	full, empty := "█", "░"
	if s.ascii {
		full, empty = "#", "-"
	}
	return lipgloss.NewStyle().Foreground(s.color()).Render(strings.Repeat(full, filled)) +
		lipgloss.NewStyle().Foreground(darkGray).Render(strings.Repeat(empty, width-filled))
}

func (s *statusDisplay) active() bool {
	return s.state.Active()
}

// busy reports whether the spinner should run.
func (s *statusDisplay) busy() bool {
	return s.state == podcast.StateLoading || s.state == podcast.StateBuffering
}

func (s *statusDisplay) color() lipgloss.TerminalColor {
	switch s.state {
	case podcast.StatePlaying:
		return green
	case podcast.StatePaused:
		return yellow
	case podcast.StateLoading, podcast.StateBuffering:
		return blue
	case podcast.StateError:
		return red
	case podcast.StateFinished:
		return gray
	default:
		return darkGray
	}
}

func (s *statusDisplay) icon() string {
	if s.ascii {
		switch s.state {
		case podcast.StatePlaying:
			return ">"
		case podcast.StatePaused:
			return "="
		case podcast.StateLoading, podcast.StateBuffering:
			return "~"
		case podcast.StateError:
			return "x"
		default:
			return "."
		}
	}
	switch s.state {
	case podcast.StatePlaying:
		return "▶"
	case podcast.StatePaused:
		return "⏸"
	case podcast.StateLoading, podcast.StateBuffering:
		return "⟳"
	case podcast.StateError:
		return "✗"
	case podcast.StateFinished:
		return "■"
	default:
		return "○"
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
