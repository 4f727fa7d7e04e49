package source

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stratalign/pmocast/internal/episode"
)

// ErrMalformedRecord is returned for stream lines that are not one of the
// three record shapes.
var ErrMalformedRecord = errors.New("malformed stream record")

// MalformedRecordError is returned for a line that does not parse. Index is
// set when the line named a valid position, so the caller can skip it.
type MalformedRecordError struct {
	Index  *int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Index != nil {
		return fmt.Sprintf("%s at index %d: %s", ErrMalformedRecord, *e.Index, e.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedRecord, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

func malformed(index *int, format string, args ...any) error {
	return &MalformedRecordError{Index: index, Reason: fmt.Sprintf(format, args...)}
}

// Record is one parsed line of the segment stream. It is always one of
// SegmentRecord, ErrorRecord or DoneRecord.
type Record interface {
	record()
}

// SegmentRecord carries a narrated segment.
type SegmentRecord struct {
	Segment episode.Segment
}

// ErrorRecord reports a segment the source failed to produce. Index is set
// when the source names the failed position.
type ErrorRecord struct {
	Message string
	Index   *int
}

// DoneRecord marks the end of the stream.
type DoneRecord struct{}

func (SegmentRecord) record() {}
func (ErrorRecord) record()   {}
func (DoneRecord) record()    {}

// wireRecord is the union of every field a stream line may carry.
type wireRecord struct {
	Speaker      *string `json:"speaker"`
	Line         string  `json:"line"`
	AudioContent string  `json:"audioContent"`
	Index        *int    `json:"index"`
	Error        *string `json:"error"`
	Done         bool    `json:"done"`
}

// ParseRecord validates a single stream line into a Record.
func ParseRecord(line []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, malformed(nil, "%v", err)
	}

	switch {
	case w.Done:
		return DoneRecord{}, nil
	case w.Error != nil:
		return ErrorRecord{Message: *w.Error, Index: w.Index}, nil
	}

	if w.Index == nil {
		return nil, malformed(nil, "missing index")
	}
	if *w.Index < 0 {
		return nil, malformed(nil, "negative index %d", *w.Index)
	}
	if w.Speaker == nil {
		return nil, malformed(w.Index, "missing speaker")
	}
	speaker, err := episode.ParseSpeaker(*w.Speaker)
	if err != nil {
		return nil, malformed(w.Index, "%v", err)
	}
	audio, err := base64.StdEncoding.DecodeString(w.AudioContent)
	if err != nil {
		return nil, malformed(w.Index, "audio: %v", err)
	}
	if len(audio) == 0 {
		return nil, malformed(w.Index, "empty audio")
	}

	return SegmentRecord{Segment: episode.Segment{
		Speaker: speaker,
		Line:    w.Line,
		Audio:   audio,
		Index:   *w.Index,
	}}, nil
}
