package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
)

// Player plays MP3 segments through a shared oto context. Playback rate is
// applied by resampling, so pitch follows speed.
//
// A single oto player reads from a deck for the life of the Player. When a
// clip runs dry the deck reports it and pads with silence, so the next clip
// queues behind audio oto has already buffered.
type Player struct {
	context *oto.Context

	player *oto.Player
	deck   *deck

	// Current playback
	track *track
	done  func(error)

	state  atomic.Int32 // PlayerState
	volume float64
	rate   float64

	mu sync.Mutex

	sampleRate beep.SampleRate
	logger     *log.Logger
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate int           // 44100 or 48000 Hz only
	BufferSize time.Duration // Device buffer; zero lets oto choose
	Volume     float64
	Rate       float64
	Logger     *log.Logger
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 44100,
		BufferSize: 100 * time.Millisecond,
		Volume:     1.0,
		Rate:       DefaultRate,
	}
}

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
	otoRate int
)

// sharedContext returns the process-wide oto context. oto allows only one.
func sharedContext(sampleRate int, buffer time.Duration) (*oto.Context, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   buffer,
		})
		if otoErr == nil {
			<-ready
			otoRate = sampleRate
		}
	})
	if otoErr != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", otoErr)
	}
	if otoRate != sampleRate {
		return nil, fmt.Errorf("audio device already open at %d Hz", otoRate)
	}
	return otoCtx, nil
}

// NewPlayer opens the audio device.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, err := sharedContext(config.SampleRate, config.BufferSize)
	if err != nil {
		return nil, err
	}

	p := &Player{
		context:    ctx,
		volume:     config.Volume,
		rate:       config.Rate,
		sampleRate: beep.SampleRate(config.SampleRate),
		logger:     config.Logger,
	}
	p.deck = &deck{onEnd: p.ended}
	p.state.Store(int32(StateStopped))
	return p, nil
}

func validateConfig(config PlayerConfig) error {
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}
	if config.BufferSize < 0 {
		return errors.New("buffer size must not be negative")
	}
	if err := validateVolume(config.Volume); err != nil {
		return err
	}
	return ValidateRate(config.Rate)
}

// Play decodes an MP3 clip and starts it at offset, replacing whatever was
// playing. done is called once when the clip ends on its own or fails while
// playing; it is not called after Stop or when another Play replaces the
// clip.
func (p *Player) Play(audio []byte, offset time.Duration, done func(error)) error {
	if len(audio) == 0 {
		return ErrEmptyAudio
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() == StateClosed {
		return ErrClosed
	}

	t, err := newTrack(audio, p.sampleRate, p.rate)
	if err != nil {
		return err
	}
	if offset > 0 {
		if err := t.seek(offset); err != nil {
			t.close()
			return err
		}
	}

	if p.player == nil {
		p.player = p.context.NewPlayer(p.deck)
		p.player.SetVolume(p.volume)
	}

	// A clip that ran out on its own leaves its tail in oto's buffer, and
	// the new clip follows it. Anything else is cut.
	if p.track != nil || !p.player.IsPlaying() {
		p.releaseLocked()
		p.flushLocked()
	}

	p.track = t
	p.done = done
	p.deck.load(t)

	p.player.Play()
	p.state.Store(int32(StatePlaying))
	return nil
}

// ended runs when the deck has read the last frame of r.
func (p *Player) ended(r io.Reader) {
	p.mu.Lock()
	if p.track == nil || r != io.Reader(p.track) {
		p.mu.Unlock()
		return
	}

	t := p.track
	err := t.err()
	if err == nil && p.player != nil {
		err = p.player.Err()
	}
	done := p.done
	t.close()
	p.track = nil
	p.done = nil
	p.state.Store(int32(StateStopped))
	p.mu.Unlock()

	if done != nil {
		done(err)
	}
}

// Pause pauses the current playback.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s := p.State(); s != StatePlaying {
		return stateError("pause", s)
	}
	p.player.Pause()
	p.state.Store(int32(StatePaused))
	return nil
}

// Resume continues paused playback.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s := p.State(); s != StatePaused {
		return stateError("resume", s)
	}
	p.player.Play()
	p.state.Store(int32(StatePlaying))
	return nil
}

// Stop halts playback without calling the completion callback.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	return nil
}

func (p *Player) stopLocked() {
	if p.State() == StateClosed {
		return
	}
	p.releaseLocked()
	if p.player != nil {
		p.player.Pause()
		p.flushLocked()
	}
	p.state.Store(int32(StateStopped))
}

// releaseLocked detaches the current clip without reporting it.
func (p *Player) releaseLocked() {
	p.deck.load(nil)
	if p.track != nil {
		p.track.close()
		p.track = nil
	}
	p.done = nil
}

// flushLocked drops audio oto has buffered but not yet played.
func (p *Player) flushLocked() {
	if p.player == nil {
		return
	}
	if _, err := p.player.Seek(0, io.SeekStart); err != nil {
		p.logger.Debug("audio flush failed", "error", err)
	}
}

// SetRate changes the playback rate, including for the clip in progress.
func (p *Player) SetRate(rate float64) error {
	if err := ValidateRate(rate); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.rate = rate
	if p.track != nil {
		p.track.setRate(rate)
	}
	return nil
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if err := validateVolume(volume); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.volume = volume
	if p.player != nil {
		p.player.SetVolume(volume)
	}
	return nil
}

// Position returns the elapsed time within the current clip.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.track == nil {
		return 0
	}
	return p.track.position()
}

// Duration returns the length of the current clip.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.track == nil {
		return 0
	}
	return p.track.duration()
}

// IsPlaying returns whether audio is currently playing.
func (p *Player) IsPlaying() bool {
	return p.State() == StatePlaying
}

// State returns the current player state.
func (p *Player) State() PlayerState {
	return PlayerState(p.state.Load())
}

// Close stops playback. The shared device stays open for the process.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	if p.player != nil {
		_ = p.player.Close()
		p.player = nil
	}
	p.state.Store(int32(StateClosed))
	return nil
}

// deck is the source of the long-lived oto player. It reads the loaded clip
// and pads with silence once it runs dry, so oto never sees EOF.
type deck struct {
	mu      sync.Mutex
	current io.Reader
	onEnd   func(io.Reader)
}

func (d *deck) load(r io.Reader) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = r
}

func (d *deck) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for d.current != nil && n < len(p) {
		m, err := d.current.Read(p[n:])
		n += m
		if err != nil {
			r := d.current
			d.current = nil
			go d.onEnd(r)
			break
		}
		if m == 0 {
			break
		}
	}
	clear(p[n:])
	return len(p), nil
}

// Seek lets oto drop its buffer. The deck itself has no position.
func (d *deck) Seek(offset int64, whence int) (int64, error) {
	return 0, nil
}

// track adapts a decoded clip to the interleaved int16 stereo stream oto
// reads. oto reads from its own goroutine, so every access is locked.
type track struct {
	mu sync.Mutex

	source    beep.StreamSeekCloser
	resampler *beep.Resampler
	format    beep.Format
	outRate   beep.SampleRate
	buf       [][2]float64
	closed    bool
}

func newTrack(audio []byte, outRate beep.SampleRate, rate float64) (*track, error) {
	source, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(audio)))
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	t := &track{
		source:  source,
		format:  format,
		outRate: outRate,
	}
	t.resampler = beep.ResampleRatio(4, t.ratio(rate), source)
	return t, nil
}

// ratio is how many source samples are consumed per output sample.
func (t *track) ratio(rate float64) float64 {
	return float64(t.format.SampleRate) / float64(t.outRate) * rate
}

func (t *track) setRate(rate float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resampler.SetRatio(t.ratio(rate))
}

func (t *track) seek(offset time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.format.SampleRate.N(offset)
	if n >= t.source.Len() {
		n = t.source.Len() - 1
	}
	if n < 0 {
		n = 0
	}
	if err := t.source.Seek(n); err != nil {
		return fmt.Errorf("seek to %s: %w", offset, err)
	}
	return nil
}

func (t *track) position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0
	}
	return t.format.SampleRate.D(t.source.Position())
}

func (t *track) duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0
	}
	return t.format.SampleRate.D(t.source.Len())
}

func (t *track) err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	return t.source.Err()
}

// Read fills p with little-endian int16 stereo frames.
func (t *track) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, io.EOF
	}

	frames := len(p) / 4
	if frames == 0 {
		return 0, nil
	}
	if cap(t.buf) < frames {
		t.buf = make([][2]float64, frames)
	}
	buf := t.buf[:frames]

	n, ok := t.resampler.Stream(buf)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(p[i*4:], uint16(toInt16(buf[i][0])))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(toInt16(buf[i][1])))
	}
	if !ok {
		return n * 4, io.EOF
	}
	return n * 4, nil
}

func (t *track) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	_ = t.source.Close()
	t.buf = nil
}

func toInt16(v float64) int16 {
	v = math.Max(-1, math.Min(1, v))
	return int16(v * math.MaxInt16)
}
