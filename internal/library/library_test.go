package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const testLibrary = `
decks:
  - id: tools
    title: Tools & Techniques
    cards:
      - id: T5
        title: RACI Matrix
        tagline: Clarify who is Responsible, Accountable, Consulted, Informed
        what_it_is: A grid mapping tasks to roles.
        when_to_use: When roles and responsibilities are unclear.
        steps:
          - List the deliverables
          - List the roles
        pro_tip: Only one Accountable per row.
      - id: T6
        title: Risk Register
        tagline: Central log of risks
  - id: phase-setup
    cards:
      - id: P1
        title: Project Charter
        deck_title: Setup
`

func parseTest(t *testing.T) *Library {
	t.Helper()
	lib, err := Parse([]byte(testLibrary))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return lib
}

func TestParse(t *testing.T) {
	lib := parseTest(t)

	if lib.Len() != 3 {
		t.Fatalf("Expected 3 episodes, got %d", lib.Len())
	}

	d, err := lib.Episode("T5")
	if err != nil {
		t.Fatalf("Episode failed: %v", err)
	}
	if d.Title != "RACI Matrix" || d.Deck != "tools" || d.DeckTitle != "Tools & Techniques" {
		t.Errorf("Unexpected descriptor: %+v", d)
	}
	if d.Card.Title != "RACI Matrix" || len(d.Card.Steps) != 2 || d.Card.ProTip == "" {
		t.Errorf("Unexpected card: %+v", d.Card)
	}
	if d.Card.DeckTitle != "Tools & Techniques" {
		t.Errorf("Expected card deck title filled in, got %q", d.Card.DeckTitle)
	}

	p, _ := lib.Episode("P1")
	if p.DeckTitle != "Phase Setup" {
		t.Errorf("Expected derived deck title, got %q", p.DeckTitle)
	}
	if p.Card.DeckTitle != "Setup" {
		t.Errorf("Expected explicit card deck title kept, got %q", p.Card.DeckTitle)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid yaml", "decks: [\n"},
		{"deck without id", "decks:\n  - title: x\n"},
		{"card without title", "decks:\n  - id: d\n    cards:\n      - id: a\n"},
		{"duplicate id", "decks:\n  - id: d\n    cards:\n      - {id: a, title: A}\n      - {id: a, title: B}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestEpisodeUnknown(t *testing.T) {
	lib := parseTest(t)
	if _, err := lib.Episode("nope"); !errors.Is(err, ErrUnknownEpisode) {
		t.Errorf("Expected ErrUnknownEpisode, got %v", err)
	}
}

func TestDeck(t *testing.T) {
	lib := parseTest(t)

	eps, err := lib.Deck("tools")
	if err != nil {
		t.Fatalf("Deck failed: %v", err)
	}
	if len(eps) != 2 || eps[0].ID != "T5" || eps[1].ID != "T6" {
		t.Errorf("Unexpected deck episodes: %+v", eps)
	}

	if _, err := lib.Deck("missing"); !errors.Is(err, ErrUnknownDeck) {
		t.Errorf("Expected ErrUnknownDeck, got %v", err)
	}

	decks := lib.Decks()
	if len(decks) != 2 || decks[0].Episodes != 2 || decks[1].Title != "Phase Setup" {
		t.Errorf("Unexpected decks: %+v", decks)
	}
}

func TestAll(t *testing.T) {
	lib := parseTest(t)

	tests := []struct {
		limit int
		want  int
	}{
		{0, 3},
		{-1, 3},
		{2, 2},
		{10, 3},
	}

	for _, tt := range tests {
		if got := lib.All(tt.limit); len(got) != tt.want {
			t.Errorf("All(%d): expected %d, got %d", tt.limit, tt.want, len(got))
		}
	}
}

func TestFind(t *testing.T) {
	lib := parseTest(t)

	tests := []struct {
		query   string
		want    string
		wantErr bool
	}{
		{"T6", "T6", false},
		{"raci", "T5", false},
		{"charter", "P1", false},
		{"zzzz", "", true},
	}

	for _, tt := range tests {
		d, err := lib.Find(tt.query)
		if (err != nil) != tt.wantErr {
			t.Errorf("Find(%q): unexpected error %v", tt.query, err)
			continue
		}
		if d.ID != tt.want {
			t.Errorf("Find(%q): expected %s, got %s", tt.query, tt.want, d.ID)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.yml")
	if err := os.WriteFile(path, []byte(testLibrary), 0o600); err != nil {
		t.Fatal(err)
	}

	lib, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if lib.Len() != 3 {
		t.Errorf("Expected 3 episodes, got %d", lib.Len())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
