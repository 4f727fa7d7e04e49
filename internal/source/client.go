package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/stratalign/pmocast/internal/episode"
)

const (
	streamPath   = "/api/podcast/stream"
	speechPath   = "/api/tts"
	downloadPath = "/api/podcast/download"

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 200
)

// Config holds client configuration.
type Config struct {
	// BaseURL of the narration backend, e.g. "http://localhost:8787".
	BaseURL string

	// Timeout applies to the speech and download requests. The segment
	// stream is bounded only by its context; narration can take a while.
	Timeout time.Duration

	// RequestsPerMinute limits speech synthesis calls (default 50).
	RequestsPerMinute int

	// HTTPClient overrides the transport. Optional.
	HTTPClient *http.Client

	Logger *log.Logger
}

// Client talks to the narration backend.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewClient creates a backend client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 50
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		logger:  cfg.Logger,
	}, nil
}

// streamRequest is the body of a segment stream request.
type streamRequest struct {
	ID   string       `json:"id"`
	Card episode.Card `json:"card"`
}

// OpenStream starts narration of an episode. A non-2xx response is returned
// as a *StatusError before any record is read. Cancelling ctx aborts the
// read of the response body.
func (c *Client) OpenStream(ctx context.Context, d episode.Descriptor) (*Stream, error) {
	resp, err := c.post(ctx, streamPath, streamRequest{ID: d.ID, Card: d.Card})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("segment stream opened", "episode", d.ID, "status", resp.StatusCode)
	return NewStream(resp.Body), nil
}

// Collect reads an episode's stream to completion and returns its segments
// in index order. Error records and malformed lines are skipped.
func (c *Client) Collect(ctx context.Context, d episode.Descriptor) ([]episode.Segment, error) {
	stream, err := c.OpenStream(ctx, d)
	if err != nil {
		return nil, err
	}
	defer stream.Close() //nolint:errcheck

	var segments []episode.Segment
	for {
		rec, err := stream.Next()
		if errors.Is(err, ErrMalformedRecord) {
			c.logger.Warn("skipping malformed record", "episode", d.ID, "error", err)
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil, ErrIncompleteStream
		}
		if err != nil {
			return nil, fmt.Errorf("read stream: %w", err)
		}

		switch r := rec.(type) {
		case SegmentRecord:
			segments = append(segments, r.Segment)
		case ErrorRecord:
			c.logger.Warn("source skipped a segment", "episode", d.ID, "error", r.Message)
		case DoneRecord:
			episode.SortByIndex(segments)
			return segments, nil
		}
	}
}

type speechRequest struct {
	Text string `json:"text"`
}

type speechResponse struct {
	AudioContent []byte `json:"audioContent"`
}

// Synthesize narrates a single line. Callers treat any error as a reason to
// fall back to text.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, speechPath, speechRequest{Text: text})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	var out speechResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode speech response: %w", err)
	}
	if len(out.AudioContent) == 0 {
		return nil, ErrNoAudio
	}
	return out.AudioContent, nil
}

type downloadRequest struct {
	Segments []episode.Segment `json:"segments"`
}

// Download asks the backend to join an episode's segments into one audio
// file and copies it to w.
func (c *Client) Download(ctx context.Context, segments []episode.Segment, w io.Writer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, downloadPath, downloadRequest{Segments: segments})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("copy download: %w", err)
	}
	return n, nil
}

// post sends a JSON body and returns the response if its status is 2xx.
func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close() //nolint:errcheck
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Endpoint: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// Stream reads records from a newline-delimited JSON body.
type Stream struct {
	body   io.ReadCloser
	reader *bufio.Reader

	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps a body of newline-delimited records.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{
		body: body,
		// Lines carry whole base64 clips, so use a reader rather than a
		// scanner with a fixed token limit.
		reader: bufio.NewReaderSize(body, 64*1024),
	}
}

// Next returns the next record. Blank lines are skipped. It returns io.EOF
// when the body ends and a *MalformedRecordError for a line that does not
// parse; the stream stays usable after the latter.
func (s *Stream) Next() (Record, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			return ParseRecord(line)
		}
		if err != nil {
			return nil, err
		}
	}
}

// Close releases the underlying body. It is safe to call more than once and
// from another goroutine to unblock Next.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
