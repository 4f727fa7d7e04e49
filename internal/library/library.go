package library

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/stratalign/pmocast/internal/episode"
)

var (
	// ErrUnknownEpisode is returned for ids not in the library.
	ErrUnknownEpisode = errors.New("unknown episode")

	// ErrUnknownDeck is returned for deck ids not in the library.
	ErrUnknownDeck = errors.New("unknown deck")
)

// DefaultAllLimit caps how many episodes "play all" queues.
const DefaultAllLimit = 20

type file struct {
	Decks []deck `yaml:"decks"`
}

type deck struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Cards []card `yaml:"cards"`
}

type card struct {
	ID           string `yaml:"id"`
	episode.Card `yaml:",inline"`
}

// Deck is a named group of episodes.
type Deck struct {
	ID       string
	Title    string
	Episodes int
}

// Library is an immutable, ordered set of episodes.
type Library struct {
	episodes []episode.Descriptor
	byID     map[string]int
	decks    []Deck
}

// Load reads a library file.
func Load(path string) (*Library, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read library: %w", err)
	}
	lib, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lib, nil
}

// Parse decodes a library document:
//
//	decks:
//	  - id: tools
//	    title: Tools & Techniques
//	    cards:
//	      - id: T5
//	        title: RACI Matrix
//	        tagline: Clarify who is Responsible, Accountable, Consulted, Informed
//	        what_it_is: ...
//	        when_to_use: ...
//	        steps: [...]
//	        pro_tip: ...
//	        example: ...
//
// Episode ids must be unique across decks.
func Parse(b []byte) (*Library, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse library: %w", err)
	}

	lib := &Library{byID: make(map[string]int)}
	titler := cases.Title(language.English)

	for _, d := range f.Decks {
		if d.ID == "" {
			return nil, errors.New("deck without id")
		}
		title := d.Title
		if title == "" {
			title = titler.String(strings.ReplaceAll(d.ID, "-", " "))
		}

		for _, c := range d.Cards {
			if c.ID == "" || c.Title == "" {
				return nil, fmt.Errorf("deck %s: card needs id and title", d.ID)
			}
			if _, dup := lib.byID[c.ID]; dup {
				return nil, fmt.Errorf("duplicate episode id %q", c.ID)
			}

			payload := c.Card
			if payload.DeckTitle == "" {
				payload.DeckTitle = title
			}
			lib.byID[c.ID] = len(lib.episodes)
			lib.episodes = append(lib.episodes, episode.Descriptor{
				ID:        c.ID,
				Title:     c.Title,
				Deck:      d.ID,
				DeckTitle: title,
				Card:      payload,
			})
		}
		lib.decks = append(lib.decks, Deck{ID: d.ID, Title: title, Episodes: len(d.Cards)})
	}
	return lib, nil
}

// Episode returns the episode with the given id.
func (l *Library) Episode(id string) (episode.Descriptor, error) {
	i, ok := l.byID[id]
	if !ok {
		return episode.Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownEpisode, id)
	}
	return l.episodes[i], nil
}

// Deck returns the episodes of a deck in library order.
func (l *Library) Deck(id string) ([]episode.Descriptor, error) {
	var out []episode.Descriptor
	for _, d := range l.episodes {
		if d.Deck == id {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDeck, id)
	}
	return out, nil
}

// All returns the first limit episodes, or every episode when limit is not
// positive.
func (l *Library) All(limit int) []episode.Descriptor {
	n := len(l.episodes)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]episode.Descriptor, n)
	copy(out, l.episodes[:n])
	return out
}

// Decks lists the decks in library order.
func (l *Library) Decks() []Deck {
	out := make([]Deck, len(l.decks))
	copy(out, l.decks)
	return out
}

// Len returns the number of episodes.
func (l *Library) Len() int {
	return len(l.episodes)
}

// Find resolves a query to an episode: an exact id first, then the best
// fuzzy match on titles.
func (l *Library) Find(query string) (episode.Descriptor, error) {
	if d, err := l.Episode(query); err == nil {
		return d, nil
	}

	titles := make([]string, len(l.episodes))
	for i, d := range l.episodes {
		titles[i] = d.Title
	}
	matches := fuzzy.Find(query, titles)
	if len(matches) == 0 {
		return episode.Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownEpisode, query)
	}
	return l.episodes[matches[0].Index], nil
}
