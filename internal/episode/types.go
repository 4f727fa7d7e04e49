package episode

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownSpeaker is returned when a segment names a host outside the
// fixed cast.
var ErrUnknownSpeaker = errors.New("unknown speaker")

// Speaker identifies one of the podcast hosts.
type Speaker string

const (
	// SpeakerAlex is the analytical host.
	SpeakerAlex Speaker = "Alex"
	// SpeakerSam is the curious host.
	SpeakerSam Speaker = "Sam"
)

// ParseSpeaker resolves a speaker name case-insensitively.
func ParseSpeaker(name string) (Speaker, error) {
	switch {
	case strings.EqualFold(name, string(SpeakerAlex)):
		return SpeakerAlex, nil
	case strings.EqualFold(name, string(SpeakerSam)):
		return SpeakerSam, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSpeaker, name)
	}
}

// Valid reports whether s is a member of the cast.
func (s Speaker) Valid() bool {
	return s == SpeakerAlex || s == SpeakerSam
}

// Segment is one spoken utterance of an episode. Index is assigned by the
// source and is the only ordering key. Segments are never modified after
// they are received.
//
// Audio marshals to base64, which is both the wire and the cache encoding.
type Segment struct {
	Speaker Speaker `json:"speaker"`
	Line    string  `json:"line"`
	Audio   []byte  `json:"audioContent"`
	Index   int     `json:"index"`
}

// SortByIndex orders segments by ascending index in place.
func SortByIndex(segments []Segment) {
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Index < segments[j].Index
	})
}

// Gapless reports whether segments hold exactly the indices 0..n-1 in order.
func Gapless(segments []Segment) bool {
	for i, s := range segments {
		if s.Index != i {
			return false
		}
	}
	return true
}

// Card is the narration payload the segment source turns into an episode.
// Field names follow the generator's request body.
type Card struct {
	Title     string   `json:"title" yaml:"title"`
	Tagline   string   `json:"tagline" yaml:"tagline"`
	WhatItIs  string   `json:"whatItIs" yaml:"what_it_is"`
	WhenToUse string   `json:"whenToUse" yaml:"when_to_use"`
	Steps     []string `json:"steps,omitempty" yaml:"steps"`
	ProTip    string   `json:"proTip" yaml:"pro_tip"`
	Example   string   `json:"example,omitempty" yaml:"example"`
	DeckTitle string   `json:"deckTitle" yaml:"deck_title"`
}

// Descriptor is a lightweight reference to an episode. It carries no audio.
type Descriptor struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Deck      string `json:"deck"`
	DeckTitle string `json:"deckTitle"`
	Card      Card   `json:"card"`
}
