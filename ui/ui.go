// Package ui provides the terminal player for pmocast.
package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	te "github.com/muesli/termenv"

	"github.com/stratalign/pmocast/internal/audio"
	"github.com/stratalign/pmocast/internal/episode"
	"github.com/stratalign/pmocast/internal/podcast"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied"
	rateStep             = 0.25
	maxWidth             = 100
)

// Player is the part of the playback engine the TUI drives.
type Player interface {
	Session() podcast.Session
	Subscribe() (<-chan podcast.Session, func())
	Toggle()
	Next()
	Prev()
	Stop()
	SetRate(rate float64) error
}

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, player Player) *tea.Program {
	log.Debug("Starting player UI", "transcript_lines", cfg.TranscriptLines, "ascii", cfg.ASCII)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, player), opts...)
}

type (
	sessionMsg              podcast.Session
	sessionsClosedMsg       struct{}
	tickMsg                 time.Time
	statusMessageTimeoutMsg struct{}
)

type transcriptLine struct {
	token   uint64
	index   int
	speaker episode.Speaker
	text    string
}

type model struct {
	cfg    Config
	player Player
	keys   keyMap

	updates     <-chan podcast.Session
	unsubscribe func()

	session    podcast.Session
	status     *statusDisplay
	transcript []transcriptLine

	spinner  spinner.Model
	progress progress.Model
	help     help.Model

	width          int
	showTranscript bool

	statusMessage      string
	statusMessageTimer *time.Timer
}

func newModel(cfg Config, player Player) model {
	if cfg.TranscriptLines <= 0 {
		cfg.TranscriptLines = 6
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 250
	}
	if plainTerminal() {
		cfg.ASCII = true
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	if cfg.ASCII {
		sp.Spinner = spinner.Line
	}

	updates, unsubscribe := player.Subscribe()
	return model{
		cfg:            cfg,
		player:         player,
		keys:           newKeyMap(),
		updates:        updates,
		unsubscribe:    unsubscribe,
		session:        player.Session(),
		status:         newStatusDisplay(cfg.ASCII),
		spinner:        sp,
		progress:       progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		help:           help.New(),
		width:          80,
		showTranscript: true,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForSession(m.updates), m.spinner.Tick, m.tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.cfg.Width > 0 && int(m.cfg.Width) < m.width { //nolint:gosec
			m.width = int(m.cfg.Width) //nolint:gosec
		}
		if m.width > maxWidth {
			m.width = maxWidth
		}
		m.progress.Width = m.contentWidth()
		m.help.Width = m.contentWidth()
		return m, nil

	case sessionMsg:
		m.apply(podcast.Session(msg))
		cmds := []tea.Cmd{waitForSession(m.updates)}
		if m.cfg.ExitWhenDone && (msg.State == podcast.StateFinished || msg.State == podcast.StateError) {
			cmds = append(cmds, tea.Quit)
		}
		return m, tea.Batch(cmds...)

	case sessionsClosedMsg:
		return m, tea.Quit

	case tickMsg:
		if m.session.State == podcast.StatePlaying {
			m.apply(m.player.Session())
		}
		return m, m.tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMessageTimeoutMsg:
		m.statusMessage = ""
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Toggle):
		m.player.Toggle()

	case key.Matches(msg, m.keys.Next):
		if !m.session.HasNext() {
			return m, m.showStatusMessage("Last episode")
		}
		m.player.Next()

	case key.Matches(msg, m.keys.Prev):
		if !m.session.HasPrev() {
			return m, m.showStatusMessage("First episode")
		}
		m.player.Prev()

	case key.Matches(msg, m.keys.Stop):
		m.player.Stop()

	case key.Matches(msg, m.keys.Faster):
		return m, m.changeRate(rateStep)

	case key.Matches(msg, m.keys.Slower):
		return m, m.changeRate(-rateStep)

	case key.Matches(msg, m.keys.Copy):
		if m.session.Line == "" {
			return m, nil
		}
		// Copy using OSC 52
		te.Copy(m.session.Line)
		// Copy using native system clipboard
		_ = clipboard.WriteAll(m.session.Line)
		return m, m.showStatusMessage("Copied line")

	case key.Matches(msg, m.keys.Transcript):
		m.showTranscript = !m.showTranscript

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *model) changeRate(delta float64) tea.Cmd {
	rate := math.Round((m.session.Rate+delta)/rateStep) * rateStep
	rate = math.Max(audio.MinRate, math.Min(audio.MaxRate, rate))
	if rate == m.session.Rate {
		return nil
	}
	if err := m.player.SetRate(rate); err != nil {
		return m.showStatusMessage(err.Error())
	}
	return m.showStatusMessage(fmt.Sprintf("Speed %.3gx", rate))
}

// apply takes a new snapshot and records a transcript line when a new
// segment starts.
func (m *model) apply(s podcast.Session) {
	if s.Episode.ID != m.session.Episode.ID {
		m.transcript = nil
	}
	m.session = s
	m.status.update(s)

	if s.SegmentIndex < 0 {
		return
	}
	if n := len(m.transcript); n > 0 {
		last := m.transcript[n-1]
		if last.token == s.Token && last.index == s.SegmentIndex {
			return
		}
	}
	m.transcript = append(m.transcript, transcriptLine{
		token:   s.Token,
		index:   s.SegmentIndex,
		speaker: s.Speaker,
		text:    s.Line,
	})
	if over := len(m.transcript) - m.cfg.TranscriptLines; over > 0 {
		m.transcript = m.transcript[over:]
	}
}

func (m *model) showStatusMessage(msg string) tea.Cmd {
	m.statusMessage = msg
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)
	return waitForStatusMessageTimeout(m.statusMessageTimer)
}

func (m model) View() string {
	w := m.contentWidth()
	var b strings.Builder

	b.WriteString(m.headerView(w))
	b.WriteString("\n\n")

	status := m.status.compact()
	if m.status.busy() {
		status = m.spinner.View() + " " + status
	}
	if status == "" {
		status = grayFg("Nothing playing")
	}
	b.WriteString(status)
	b.WriteString("\n")

	if m.status.active() || m.session.State == podcast.StateFinished {
		b.WriteString(m.progress.ViewAs(m.status.progress))
		b.WriteString("\n")
	}
	if line := m.status.errorLine(w); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.showTranscript && len(m.transcript) > 0 {
		b.WriteString("\n")
		b.WriteString(m.transcriptView(w))
	}

	b.WriteString("\n")
	if m.statusMessage != "" {
		b.WriteString(noteStyle.Render(m.statusMessage))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))

	return frameStyle.Render(b.String())
}

func (m model) headerView(w int) string {
	s := m.session
	if s.Episode.ID == "" {
		return titleStyle.Render("pmocast")
	}

	title := titleStyle.Render(truncate.StringWithTail(s.Episode.Title, uint(w), ellipsis)) //nolint:gosec
	deck := s.Episode.DeckTitle
	if s.Episodes > 1 {
		deck = fmt.Sprintf("%s · %s of %d", deck, humanize.Ordinal(s.Position+1), s.Episodes)
	}
	return title + "\n" + deckStyle.Render(truncate.StringWithTail(deck, uint(w), ellipsis)) //nolint:gosec
}

func (m model) transcriptView(w int) string {
	// Speaker names are padded to a common width so lines align.
	nameWidth := 0
	for _, l := range m.transcript {
		nameWidth = max(nameWidth, runewidth.StringWidth(string(l.speaker)))
	}

	var lines []string
	for i, l := range m.transcript {
		name := string(l.speaker) + strings.Repeat(" ", nameWidth-runewidth.StringWidth(string(l.speaker)))
		switch l.speaker {
		case episode.SpeakerAlex:
			name = alexStyle.Render(name)
		case episode.SpeakerSam:
			name = samStyle.Render(name)
		}

		style := pastStyle
		if i == len(m.transcript)-1 {
			style = lineStyle
		}
		wrapped := wordwrap.String(l.text, max(w-nameWidth-2, 10))
		indent := strings.Repeat(" ", nameWidth+2)
		text := strings.ReplaceAll(wrapped, "\n", "\n"+indent)
		lines = append(lines, name+"  "+style.Render(text))
	}
	return strings.Join(lines, "\n")
}

func (m model) contentWidth() int {
	return max(m.width-frameStyle.GetHorizontalFrameSize(), 20)
}

func (m model) tick() tea.Cmd {
	return tea.Tick(time.Duration(m.cfg.TickInterval)*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForSession(ch <-chan podcast.Session) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return sessionsClosedMsg{}
		}
		return sessionMsg(s)
	}
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}
