package ui

// Config contains TUI-specific configuration.
type Config struct {
	EnableMouse bool

	// Width caps the layout; zero follows the terminal.
	Width uint

	// ExitWhenDone quits once the playlist finishes or fails.
	ExitWhenDone bool

	// Transcript lines kept on screen.
	TranscriptLines int `env:"PMOCAST_TRANSCRIPT_LINES" envDefault:"6"`

	// ASCII replaces the state glyphs, for terminals without them.
	ASCII bool `env:"PMOCAST_ASCII" envDefault:"false"`

	// For debugging the UI
	TickInterval int `env:"PMOCAST_TICK_MS" envDefault:"250"`
}
