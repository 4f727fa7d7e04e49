package podcast

import (
	"context"
	"time"

	"github.com/stratalign/pmocast/internal/episode"
	"github.com/stratalign/pmocast/internal/source"
)

// SegmentSource opens the segment stream of an episode. Cancelling ctx must
// abort the stream.
type SegmentSource interface {
	OpenStream(ctx context.Context, d episode.Descriptor) (*source.Stream, error)
}

// EpisodeCache holds complete segment lists. Implementations swallow their
// own failures.
type EpisodeCache interface {
	Get(id string) ([]episode.Segment, bool)
	Put(id string, segments []episode.Segment)
}

// AudioOutput plays one clip at a time. done is called once when a clip
// ends by itself or fails while playing, and never after Stop or after the
// clip was replaced.
type AudioOutput interface {
	Play(audio []byte, offset time.Duration, done func(error)) error
	Pause() error
	Resume() error
	Stop() error
	SetRate(rate float64) error
	Position() time.Duration
	Duration() time.Duration
}

// Catalog resolves episode ids.
type Catalog interface {
	Episode(id string) (episode.Descriptor, error)
}
