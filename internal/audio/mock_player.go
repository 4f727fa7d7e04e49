package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// MockPlayer simulates audio playback without producing sound. By default a
// clip plays until the test calls Finish; SetAutoFinish makes clips end on
// their own after their simulated duration.
type MockPlayer struct {
	state atomic.Int32 // PlayerState

	// Current clip
	audio     []byte
	offset    time.Duration
	duration  time.Duration
	played    time.Duration // accumulated before the current run
	runStart  time.Time
	done      func(error)
	gen       uint64
	stopCh    chan struct{}
	autoAfter time.Duration

	volume float64
	rate   float64

	callbacks MockCallbacks
	failPlay  func(audio []byte) error
	history   [][]byte
	offsets   []time.Duration

	mu sync.Mutex

	playCount   atomic.Int64
	pauseCount  atomic.Int64
	resumeCount atomic.Int64
	stopCount   atomic.Int64
	finishCount atomic.Int64
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay   func(audio []byte, offset time.Duration)
	OnPause  func()
	OnResume func()
	OnStop   func()
	OnFinish func(audio []byte)
	OnClose  func()
}

// MockPlayerMetrics contains playback metrics for testing.
type MockPlayerMetrics struct {
	PlayCount   int64
	PauseCount  int64
	ResumeCount int64
	StopCount   int64
	FinishCount int64
}

// DefaultMockPlayer creates a new mock player with default settings.
func DefaultMockPlayer() *MockPlayer {
	mp := &MockPlayer{
		volume:   1.0,
		rate:     DefaultRate,
		duration: time.Second,
	}
	mp.state.Store(int32(StateStopped))
	return mp
}

// NewMockPlayer creates a new mock player with custom callbacks.
func NewMockPlayer(callbacks MockCallbacks) *MockPlayer {
	mp := DefaultMockPlayer()
	mp.callbacks = callbacks
	return mp
}

// SetAutoFinish makes every clip end by itself after d of simulated
// playback, scaled by the playback rate. Zero restores manual mode.
func (mp *MockPlayer) SetAutoFinish(d time.Duration) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.autoAfter = d
	if d > 0 {
		mp.duration = d
	}
}

// SetAudioDuration sets the duration reported for clips.
func (mp *MockPlayer) SetAudioDuration(d time.Duration) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.duration = d
}

// SetFailPlay makes Play return the error fn gives for a clip.
func (mp *MockPlayer) SetFailPlay(fn func(audio []byte) error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.failPlay = fn
}

// Play starts a clip at offset, replacing the current one.
func (mp *MockPlayer) Play(audio []byte, offset time.Duration, done func(error)) error {
	if len(audio) == 0 {
		return ErrEmptyAudio
	}

	mp.mu.Lock()
	if mp.State() == StateClosed {
		mp.mu.Unlock()
		return ErrClosed
	}
	mp.stopLocked(false)

	clip := make([]byte, len(audio))
	copy(clip, audio)
	mp.history = append(mp.history, clip)
	mp.offsets = append(mp.offsets, offset)
	mp.playCount.Add(1)

	if mp.failPlay != nil {
		if err := mp.failPlay(clip); err != nil {
			mp.mu.Unlock()
			return err
		}
	}

	mp.gen++
	mp.audio = clip
	mp.offset = offset
	mp.played = 0
	mp.runStart = time.Now()
	mp.done = done
	mp.state.Store(int32(StatePlaying))
	mp.startRunLocked()

	onPlay := mp.callbacks.OnPlay
	mp.mu.Unlock()

	if onPlay != nil {
		onPlay(clip, offset)
	}
	return nil
}

// Finish ends the current clip as if it reached its end naturally. It
// reports false when nothing is playing or paused.
func (mp *MockPlayer) Finish() bool {
	mp.mu.Lock()
	return mp.finishLocked(mp.gen, nil)
}

// Fail ends the current clip with a playback error.
func (mp *MockPlayer) Fail(err error) bool {
	mp.mu.Lock()
	return mp.finishLocked(mp.gen, err)
}

// finishLocked is entered with mp.mu held and releases it.
func (mp *MockPlayer) finishLocked(gen uint64, err error) bool {
	s := mp.State()
	if gen != mp.gen || (s != StatePlaying && s != StatePaused) {
		mp.mu.Unlock()
		return false
	}

	done := mp.done
	clip := mp.audio
	mp.gen++
	mp.haltRunLocked()
	mp.audio = nil
	mp.done = nil
	mp.state.Store(int32(StateStopped))
	mp.finishCount.Add(1)
	onFinish := mp.callbacks.OnFinish
	mp.mu.Unlock()

	if onFinish != nil {
		onFinish(clip)
	}
	if done != nil {
		done(err)
	}
	return true
}

// Pause pauses the current playback.
func (mp *MockPlayer) Pause() error {
	mp.mu.Lock()
	if s := mp.State(); s != StatePlaying {
		mp.mu.Unlock()
		return stateError("pause", s)
	}
	mp.played += time.Duration(float64(time.Since(mp.runStart)) * mp.rate)
	mp.haltRunLocked()
	mp.state.Store(int32(StatePaused))
	mp.pauseCount.Add(1)
	onPause := mp.callbacks.OnPause
	mp.mu.Unlock()

	if onPause != nil {
		onPause()
	}
	return nil
}

// Resume resumes paused playback.
func (mp *MockPlayer) Resume() error {
	mp.mu.Lock()
	if s := mp.State(); s != StatePaused {
		mp.mu.Unlock()
		return stateError("resume", s)
	}
	mp.runStart = time.Now()
	mp.state.Store(int32(StatePlaying))
	mp.startRunLocked()
	mp.resumeCount.Add(1)
	onResume := mp.callbacks.OnResume
	mp.mu.Unlock()

	if onResume != nil {
		onResume()
	}
	return nil
}

// Stop halts playback without calling the completion callback.
func (mp *MockPlayer) Stop() error {
	mp.mu.Lock()
	stopped := mp.stopLocked(true)
	onStop := mp.callbacks.OnStop
	mp.mu.Unlock()

	if stopped && onStop != nil {
		onStop()
	}
	return nil
}

func (mp *MockPlayer) stopLocked(count bool) bool {
	s := mp.State()
	if s == StateStopped || s == StateClosed {
		return false
	}
	mp.gen++
	mp.haltRunLocked()
	mp.audio = nil
	mp.done = nil
	mp.state.Store(int32(StateStopped))
	if count {
		mp.stopCount.Add(1)
	}
	return true
}

// startRunLocked starts the auto-finish timer for the remaining duration.
func (mp *MockPlayer) startRunLocked() {
	if mp.autoAfter <= 0 {
		return
	}
	remaining := mp.duration - mp.offset - mp.played
	if remaining < 0 {
		remaining = 0
	}
	wait := time.Duration(float64(remaining) / mp.rate)

	stop := make(chan struct{})
	mp.stopCh = stop
	gen := mp.gen
	go func() {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-stop:
		case <-timer.C:
			mp.mu.Lock()
			if mp.stopCh != stop {
				// paused or replaced while the timer fired
				mp.mu.Unlock()
				return
			}
			mp.finishLocked(gen, nil)
		}
	}()
}

func (mp *MockPlayer) haltRunLocked() {
	if mp.stopCh != nil {
		close(mp.stopCh)
		mp.stopCh = nil
	}
}

// SetRate sets the playback rate.
func (mp *MockPlayer) SetRate(rate float64) error {
	if err := ValidateRate(rate); err != nil {
		return err
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.State() == StatePlaying {
		mp.played += time.Duration(float64(time.Since(mp.runStart)) * mp.rate)
		mp.runStart = time.Now()
		mp.rate = rate
		mp.haltRunLocked()
		mp.startRunLocked()
		return nil
	}
	mp.rate = rate
	return nil
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (mp *MockPlayer) SetVolume(volume float64) error {
	if err := validateVolume(volume); err != nil {
		return err
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.volume = volume
	return nil
}

// Position returns the simulated elapsed time within the current clip.
func (mp *MockPlayer) Position() time.Duration {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	switch mp.State() {
	case StatePlaying:
		pos := mp.offset + mp.played + time.Duration(float64(time.Since(mp.runStart))*mp.rate)
		if pos > mp.duration {
			pos = mp.duration
		}
		return pos
	case StatePaused:
		return mp.offset + mp.played
	default:
		return 0
	}
}

// Duration returns the simulated clip duration.
func (mp *MockPlayer) Duration() time.Duration {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.audio == nil {
		return 0
	}
	return mp.duration
}

// IsPlaying returns whether audio is currently playing.
func (mp *MockPlayer) IsPlaying() bool {
	return mp.State() == StatePlaying
}

// State returns the current player state.
func (mp *MockPlayer) State() PlayerState {
	return PlayerState(mp.state.Load())
}

// Close stops playback and rejects further calls to Play.
func (mp *MockPlayer) Close() error {
	mp.mu.Lock()
	mp.stopLocked(false)
	mp.state.Store(int32(StateClosed))
	onClose := mp.callbacks.OnClose
	mp.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return nil
}

// Volume returns the current volume.
func (mp *MockPlayer) Volume() float64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.volume
}

// Rate returns the current playback rate.
func (mp *MockPlayer) Rate() float64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.rate
}

// Current returns the clip in progress, or nil.
func (mp *MockPlayer) Current() []byte {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.audio
}

// History returns every clip passed to Play, in order.
func (mp *MockPlayer) History() [][]byte {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make([][]byte, len(mp.history))
	copy(out, mp.history)
	return out
}

// Offsets returns the offset of every Play call, in order.
func (mp *MockPlayer) Offsets() []time.Duration {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make([]time.Duration, len(mp.offsets))
	copy(out, mp.offsets)
	return out
}

// GetMetrics returns playback metrics for testing.
func (mp *MockPlayer) GetMetrics() MockPlayerMetrics {
	return MockPlayerMetrics{
		PlayCount:   mp.playCount.Load(),
		PauseCount:  mp.pauseCount.Load(),
		ResumeCount: mp.resumeCount.Load(),
		StopCount:   mp.stopCount.Load(),
		FinishCount: mp.finishCount.Load(),
	}
}

// WaitForPlays blocks until Play has been called n times or timeout passes.
func (mp *MockPlayer) WaitForPlays(n int64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if mp.playCount.Load() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return mp.playCount.Load() >= n
}

// ErrSimulated is a convenience error for SetFailPlay.
var ErrSimulated = errors.New("simulated playback error")
