package devsource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stratalign/pmocast/internal/episode"
)

// TranscriptFile is the per-episode transcript name.
const TranscriptFile = "lines.yaml"

// ErrNoFixtures is returned when a directory holds no episode.
var ErrNoFixtures = errors.New("no fixture episodes found")

type transcriptLine struct {
	Index   int    `yaml:"index"`
	Speaker string `yaml:"speaker"`
	Line    string `yaml:"line"`
}

// Fixtures is an immutable set of recorded episodes.
type Fixtures struct {
	episodes map[string][]episode.Segment
}

// LoadFixtures reads every episode directory under dir.
func LoadFixtures(dir string) (*Fixtures, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}

	f := &Fixtures{episodes: make(map[string][]episode.Segment)}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		epDir := filepath.Join(dir, e.Name())
		if _, err := os.Stat(filepath.Join(epDir, TranscriptFile)); err != nil {
			continue
		}
		segments, err := loadEpisode(epDir)
		if err != nil {
			return nil, fmt.Errorf("episode %s: %w", e.Name(), err)
		}
		f.episodes[e.Name()] = segments
	}
	if len(f.episodes) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFixtures, dir)
	}
	return f, nil
}

func loadEpisode(dir string) ([]episode.Segment, error) {
	b, err := os.ReadFile(filepath.Join(dir, TranscriptFile))
	if err != nil {
		return nil, err
	}
	var lines []transcriptLine
	if err := yaml.Unmarshal(b, &lines); err != nil {
		return nil, fmt.Errorf("parse %s: %w", TranscriptFile, err)
	}

	segments := make([]episode.Segment, 0, len(lines))
	for _, l := range lines {
		speaker, err := episode.ParseSpeaker(l.Speaker)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", l.Index, err)
		}
		name := fmt.Sprintf("%d-%s.mp3", l.Index, strings.ToLower(string(speaker)))
		audio, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", l.Index, err)
		}
		segments = append(segments, episode.Segment{
			Speaker: speaker,
			Line:    l.Line,
			Audio:   audio,
			Index:   l.Index,
		})
	}
	episode.SortByIndex(segments)
	if !episode.Gapless(segments) {
		return nil, errors.New("transcript indices must run 0..n-1")
	}
	return segments, nil
}

// Episode returns the segments of an episode in index order.
func (f *Fixtures) Episode(id string) ([]episode.Segment, bool) {
	s, ok := f.episodes[id]
	return s, ok
}

// IDs lists the episode ids, sorted.
func (f *Fixtures) IDs() []string {
	ids := make([]string, 0, len(f.episodes))
	for id := range f.episodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FirstClip is any clip, used as the single-line speech response.
func (f *Fixtures) FirstClip() []byte {
	ids := f.IDs()
	if len(ids) == 0 {
		return nil
	}
	return f.episodes[ids[0]][0].Audio
}
