package audio

import (
	"bytes"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/gopxl/beep/v2"
)

func TestPlayerConfig(t *testing.T) {
	valid := DefaultPlayerConfig()

	tests := []struct {
		name      string
		mutate    func(*PlayerConfig)
		expectErr bool
	}{
		{"default", func(*PlayerConfig) {}, false},
		{"48000Hz", func(c *PlayerConfig) { c.SampleRate = 48000 }, false},
		{"invalid sample rate", func(c *PlayerConfig) { c.SampleRate = 22050 }, true},
		{"negative buffer", func(c *PlayerConfig) { c.BufferSize = -time.Millisecond }, true},
		{"volume too high", func(c *PlayerConfig) { c.Volume = 1.5 }, true},
		{"rate too low", func(c *PlayerConfig) { c.Rate = 0.25 }, true},
		{"rate too high", func(c *PlayerConfig) { c.Rate = 3 }, true},
		{"fast rate", func(c *PlayerConfig) { c.Rate = 1.75 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			err := validateConfig(config)
			if tt.expectErr && err == nil {
				t.Errorf("validateConfig() expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("validateConfig() unexpected error: %v", err)
			}
		})
	}
}

func TestValidateRate(t *testing.T) {
	for _, rate := range []float64{0.5, 1, 1.25, 2} {
		if err := ValidateRate(rate); err != nil {
			t.Errorf("rate %.2f: unexpected error %v", rate, err)
		}
	}
	for _, rate := range []float64{0, 0.49, 2.01, -1} {
		if err := ValidateRate(rate); !errors.Is(err, ErrInvalidRate) {
			t.Errorf("rate %.2f: expected ErrInvalidRate, got %v", rate, err)
		}
	}
}

func TestToInt16(t *testing.T) {
	tests := []struct {
		in   float64
		want int16
	}{
		{0, 0},
		{1, math.MaxInt16},
		{-1, -math.MaxInt16},
		{2, math.MaxInt16},
		{-2, -math.MaxInt16},
	}
	for _, tt := range tests {
		if got := toInt16(tt.in); got != tt.want {
			t.Errorf("toInt16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTrackRatio(t *testing.T) {
	tr := &track{format: beep.Format{SampleRate: 24000}, outRate: 48000}

	if r := tr.ratio(1); r != 0.5 {
		t.Errorf("Expected ratio 0.5, got %v", r)
	}
	if r := tr.ratio(2); r != 1 {
		t.Errorf("Expected ratio 1 at double speed, got %v", r)
	}
}

func TestNewTrackRejectsGarbage(t *testing.T) {
	if _, err := newTrack([]byte("definitely not an mp3 frame"), 44100, 1); err == nil {
		t.Error("Expected decode error")
	}
}

func TestDeckPadsSilenceAndReportsEnd(t *testing.T) {
	ended := make(chan io.Reader, 2)
	d := &deck{onEnd: func(r io.Reader) { ended <- r }}

	clip := bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	d.load(clip)

	buf := bytes.Repeat([]byte{0xff}, 16)
	n, err := d.Read(buf)
	if n != len(buf) || err != nil {
		t.Fatalf("Expected a full read, got %d, %v", n, err)
	}
	if want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0, 0, 0, 0, 0}; !bytes.Equal(buf, want) {
		t.Errorf("Expected clip then silence, got %v", buf)
	}

	select {
	case r := <-ended:
		if r != io.Reader(clip) {
			t.Errorf("Expected end of loaded clip, got %v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected end to be reported")
	}

	if n, err := d.Read(buf); n != len(buf) || err != nil {
		t.Errorf("Expected silence after the clip, got %d, %v", n, err)
	}
	select {
	case <-ended:
		t.Error("Expected end to be reported once")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestDeckFillsShortReads(t *testing.T) {
	d := &deck{onEnd: func(io.Reader) {}}

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	d.load(iotest.HalfReader(bytes.NewReader(data)))

	buf := make([]byte, len(data))
	if n, err := d.Read(buf); n != len(buf) || err != nil {
		t.Fatalf("Expected a full read, got %d, %v", n, err)
	}
	if !bytes.Equal(buf, data) {
		t.Errorf("Expected %v without gaps, got %v", data, buf)
	}
}

func TestDeckUnloadedIsSilent(t *testing.T) {
	called := false
	d := &deck{onEnd: func(io.Reader) { called = true }}

	d.load(bytes.NewReader([]byte{9, 9, 9, 9}))
	d.load(nil)

	buf := bytes.Repeat([]byte{0xff}, 8)
	if n, err := d.Read(buf); n != len(buf) || err != nil {
		t.Fatalf("Expected a full read, got %d, %v", n, err)
	}
	if !bytes.Equal(buf, make([]byte, 8)) {
		t.Errorf("Expected silence, got %v", buf)
	}
	if pos, err := d.Seek(0, io.SeekStart); pos != 0 || err != nil {
		t.Errorf("Expected Seek to succeed at 0, got %d, %v", pos, err)
	}
	time.Sleep(10 * time.Millisecond)
	if called {
		t.Error("Expected no end report for an unloaded clip")
	}
}

// Shared test context to avoid "context already created" errors
var (
	testPlayer     *Player
	testPlayerOnce sync.Once
	testPlayerErr  error
)

// getTestPlayer returns a shared test player, creating it once.
func getTestPlayer(t *testing.T) *Player {
	testPlayerOnce.Do(func() {
		testPlayer, testPlayerErr = NewPlayer(DefaultPlayerConfig())
	})
	if testPlayerErr != nil {
		t.Skipf("Skipping test: cannot create audio player (no audio device?): %v", testPlayerErr)
	}
	_ = testPlayer.Stop()
	return testPlayer
}

func TestPlayerRejectsBadInput(t *testing.T) {
	p := getTestPlayer(t)

	if err := p.Play(nil, 0, nil); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("Expected ErrEmptyAudio, got %v", err)
	}
	if err := p.Play([]byte("garbage"), 0, nil); err == nil {
		t.Error("Expected decode error")
	}
	if p.IsPlaying() {
		t.Error("Player should not be playing after a failed Play")
	}
	if err := p.Pause(); err == nil {
		t.Error("Expected error pausing a stopped player")
	}
	if err := p.SetRate(5); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("Expected ErrInvalidRate, got %v", err)
	}
	if err := p.SetVolume(0.5); err != nil {
		t.Errorf("SetVolume failed: %v", err)
	}
	if p.Position() != 0 || p.Duration() != 0 {
		t.Error("Expected zero position and duration while stopped")
	}
}
