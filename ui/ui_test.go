package ui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stratalign/pmocast/internal/episode"
	"github.com/stratalign/pmocast/internal/podcast"
)

type fakePlayer struct {
	mu      sync.Mutex
	session podcast.Session
	ch      chan podcast.Session
	calls   []string
	rate    float64
	rateErr error
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{
		session: podcast.Session{State: podcast.StateIdle, SegmentIndex: -1, Rate: 1},
		ch:      make(chan podcast.Session, 1),
		rate:    1,
	}
}

func (p *fakePlayer) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePlayer) Session() podcast.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *fakePlayer) Subscribe() (<-chan podcast.Session, func()) {
	return p.ch, func() { p.record("unsubscribe") }
}

func (p *fakePlayer) Toggle() { p.record("toggle") }
func (p *fakePlayer) Next()   { p.record("next") }
func (p *fakePlayer) Prev()   { p.record("prev") }
func (p *fakePlayer) Stop()   { p.record("stop") }

func (p *fakePlayer) SetRate(rate float64) error {
	p.record("rate")
	if p.rateErr != nil {
		return p.rateErr
	}
	p.rate = rate
	return nil
}

func (p *fakePlayer) lastCall() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return ""
	}
	return p.calls[len(p.calls)-1]
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func playing(index int, speaker episode.Speaker, line string) podcast.Session {
	return podcast.Session{
		State:        podcast.StatePlaying,
		Token:        1,
		Episode:      episode.Descriptor{ID: "T5", Title: "RACI Matrix", DeckTitle: "Tools"},
		Position:     0,
		Episodes:     2,
		Speaker:      speaker,
		Line:         line,
		SegmentIndex: index,
		Total:        4,
		Rate:         1,
	}
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func TestKeyBindingsDrivePlayer(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{" ", "toggle"},
		{"k", "toggle"},
		{"n", "next"},
		{"right", "next"},
		{"s", "stop"},
		{"+", "rate"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			p := newFakePlayer()
			m := newModel(Config{}, p)
			m, _ = update(t, m, sessionMsg(playing(0, episode.SpeakerAlex, "hello")))

			update(t, m, keyMsg(tt.key))
			if got := p.lastCall(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPrevAtFirstEpisodeShowsMessage(t *testing.T) {
	p := newFakePlayer()
	m := newModel(Config{}, p)
	m, _ = update(t, m, sessionMsg(playing(0, episode.SpeakerAlex, "hello")))

	m, cmd := update(t, m, keyMsg("p"))
	if p.lastCall() == "prev" {
		t.Error("Expected prev not to reach the player at the first episode")
	}
	if cmd == nil || m.statusMessage != "First episode" {
		t.Errorf("Expected status message, got %q", m.statusMessage)
	}
}

func TestRateChanges(t *testing.T) {
	p := newFakePlayer()
	m := newModel(Config{}, p)
	s := playing(0, episode.SpeakerAlex, "hello")
	s.Rate = 2
	m, _ = update(t, m, sessionMsg(s))

	update(t, m, keyMsg("+"))
	if p.lastCall() == "rate" {
		t.Error("Expected no rate change above the maximum")
	}

	m, _ = update(t, m, keyMsg("-"))
	if p.rate != 1.75 {
		t.Errorf("Expected rate 1.75, got %v", p.rate)
	}
	if !strings.Contains(m.statusMessage, "1.75") {
		t.Errorf("Expected speed message, got %q", m.statusMessage)
	}

	p.rateErr = errors.New("device busy")
	m, _ = update(t, m, keyMsg("-"))
	if m.statusMessage != "device busy" {
		t.Errorf("Expected error message, got %q", m.statusMessage)
	}
}

func TestTranscriptFollowsSegments(t *testing.T) {
	p := newFakePlayer()
	m := newModel(Config{TranscriptLines: 2}, p)

	m, _ = update(t, m, sessionMsg(playing(0, episode.SpeakerAlex, "first")))
	m, _ = update(t, m, sessionMsg(playing(0, episode.SpeakerAlex, "first")))
	if len(m.transcript) != 1 {
		t.Fatalf("Expected repeated snapshot not to add a line, got %d", len(m.transcript))
	}

	m, _ = update(t, m, sessionMsg(playing(1, episode.SpeakerSam, "second")))
	m, _ = update(t, m, sessionMsg(playing(2, episode.SpeakerAlex, "third")))
	if len(m.transcript) != 2 || m.transcript[0].text != "second" || m.transcript[1].text != "third" {
		t.Errorf("Expected last two lines kept, got %+v", m.transcript)
	}

	buffering := playing(-1, "", "")
	buffering.State = podcast.StateBuffering
	m, _ = update(t, m, sessionMsg(buffering))
	if len(m.transcript) != 2 {
		t.Errorf("Expected buffering to keep the transcript, got %d lines", len(m.transcript))
	}

	other := playing(0, episode.SpeakerSam, "new episode")
	other.Token = 2
	other.Episode.ID = "T6"
	m, _ = update(t, m, sessionMsg(other))
	if len(m.transcript) != 1 || m.transcript[0].text != "new episode" {
		t.Errorf("Expected transcript reset for a new episode, got %+v", m.transcript)
	}
}

func TestView(t *testing.T) {
	p := newFakePlayer()
	m := newModel(Config{ASCII: true}, p)

	if v := m.View(); !strings.Contains(v, "Nothing playing") {
		t.Errorf("Expected idle view, got:\n%s", v)
	}

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = update(t, m, sessionMsg(playing(1, episode.SpeakerSam, "What does accountable mean?")))
	v := m.View()
	for _, want := range []string{"RACI Matrix", "1st of 2", "2/~4", "What does accountable mean?", "Sam"} {
		if !strings.Contains(v, want) {
			t.Errorf("Expected view to contain %q, got:\n%s", want, v)
		}
	}
}

func TestExitWhenDone(t *testing.T) {
	p := newFakePlayer()
	m := newModel(Config{ExitWhenDone: true}, p)

	done := playing(-1, "", "")
	done.State = podcast.StateFinished
	_, cmd := update(t, m, sessionMsg(done))
	if cmd == nil {
		t.Fatal("Expected a command")
	}
}

func TestQuitUnsubscribes(t *testing.T) {
	p := newFakePlayer()
	m := newModel(Config{}, p)

	_, cmd := update(t, m, keyMsg("q"))
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
	if p.lastCall() != "unsubscribe" {
		t.Errorf("Expected unsubscribe, got %q", p.lastCall())
	}
}

func TestWaitForSession(t *testing.T) {
	ch := make(chan podcast.Session, 1)
	ch <- podcast.Session{Token: 9}
	if msg, ok := waitForSession(ch)().(sessionMsg); !ok || msg.Token != 9 {
		t.Errorf("Expected session message, got %#v", msg)
	}

	close(ch)
	if _, ok := waitForSession(ch)().(sessionsClosedMsg); !ok {
		t.Error("Expected closed message")
	}
}

func TestStatusDisplay(t *testing.T) {
	tests := []struct {
		name    string
		session podcast.Session
		want    []string
		empty   bool
	}{
		{name: "idle", session: podcast.Session{State: podcast.StateIdle, SegmentIndex: -1}, empty: true},
		{
			name:    "exact total",
			session: podcast.Session{State: podcast.StatePlaying, SegmentIndex: 2, Total: 5, TotalExact: true, Rate: 1.5, Elapsed: 3 * time.Second, Duration: 65 * time.Second},
			want:    []string{"playing", "3/5", "0:03/1:05", "1.5x"},
		},
		{
			name:    "buffering",
			session: podcast.Session{State: podcast.StateBuffering, SegmentIndex: -1, Total: 3, Rate: 1},
			want:    []string{"buffering"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStatusDisplay(true)
			s.update(tt.session)
			got := s.compact()
			if tt.empty {
				if got != "" {
					t.Errorf("Expected empty status, got %q", got)
				}
				return
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Expected %q in %q", w, got)
				}
			}
		})
	}
}

func TestStatusProgress(t *testing.T) {
	s := newStatusDisplay(false)

	s.update(podcast.Session{State: podcast.StatePlaying, SegmentIndex: 1, Total: 4, Elapsed: time.Second, Duration: 2 * time.Second})
	if s.progress != 0.375 {
		t.Errorf("Expected progress 0.375, got %v", s.progress)
	}

	s.update(podcast.Session{State: podcast.StateFinished, SegmentIndex: -1})
	if s.progress != 1 {
		t.Errorf("Expected full progress when finished, got %v", s.progress)
	}
}

func TestStatusErrorLine(t *testing.T) {
	s := newStatusDisplay(true)
	s.update(podcast.Session{State: podcast.StateError, SegmentIndex: -1, Err: errors.New("connection refused by the narration backend")})

	line := s.errorLine(20)
	if !strings.Contains(line, "Error:") || !strings.Contains(line, ellipsis) {
		t.Errorf("Expected truncated error, got %q", line)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "0:00"},
		{0, "0:00"},
		{59 * time.Second, "0:59"},
		{61 * time.Second, "1:01"},
		{10 * time.Minute, "10:00"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v): expected %q, got %q", tt.d, tt.want, got)
		}
	}
}
