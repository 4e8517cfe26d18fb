package audio

import (
	"errors"
	"sync"
	"time"

	"github.com/dgnsrekt/ttsync/internal/clock"
	"github.com/dgnsrekt/ttsync/tts"
)

// DefaultMockDuration is used for sources whose length cannot be decoded.
const DefaultMockDuration = time.Second

// PlaybackEvent records one call made on a MockSink.
type PlaybackEvent struct {
	Type     string
	Position time.Duration
	At       time.Time
}

// MockSink is a silent sink whose playhead follows a clock. With a fake
// clock every callback is deterministic: metadata is reported at the next
// Advance and the end fires once the clock passes the source duration.
type MockSink struct {
	clock clock.Clock

	mu       sync.Mutex
	listener tts.SinkListener
	gen      uint64
	loaded   bool
	source   tts.AudioSource
	duration time.Duration
	playing  bool
	base     time.Duration
	started  time.Time
	endTimer clock.Timer
	volume   float64
	closed   bool

	holdPlay bool
	held     []func(error)
	errors   map[string]error
	history  []PlaybackEvent
}

// NewMockSink creates a mock sink driven by c.
func NewMockSink(c clock.Clock) *MockSink {
	if c == nil {
		c = clock.Real()
	}
	return &MockSink{clock: c, volume: 1, errors: make(map[string]error)}
}

// NewMockSinkFactory returns a factory of mock sinks. Every created sink is
// also sent to created, if it is not nil.
func NewMockSinkFactory(c clock.Clock, created func(*MockSink)) tts.SinkFactory {
	return func() (tts.AudioSink, error) {
		s := NewMockSink(c)
		if created != nil {
			created(s)
		}
		return s, nil
	}
}

// SetSource loads src. Blob sources are decoded to find their duration, so
// an undecodable blob fails here.
func (m *MockSink) SetSource(src tts.AudioSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("source")
	if err := m.errors["source"]; err != nil {
		return err
	}
	if m.closed {
		return errors.New("sink closed")
	}

	d := DefaultMockDuration
	if src.Blob != nil {
		pcm, err := Decode(src.Blob.Bytes(), src.Blob.MIME())
		if err != nil {
			return err
		}
		d = pcm.Duration()
	}

	m.unloadLocked()
	m.loaded = true
	m.source = src
	m.duration = d

	gen := m.gen
	m.clock.AfterFunc(0, func() {
		if l, ok := m.listenerFor(gen); ok && l.OnMetadata != nil {
			l.OnMetadata(d)
		}
	})
	return nil
}

func (m *MockSink) SetListener(l tts.SinkListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

// Play starts the playhead. While HoldPlay is on, done is kept until
// SettlePlay and the playhead does not move.
func (m *MockSink) Play(done func(error)) {
	m.mu.Lock()
	m.record("play")

	if m.holdPlay {
		m.held = append(m.held, done)
		m.mu.Unlock()
		return
	}
	err := m.startLocked()
	m.mu.Unlock()

	done(err)
}

func (m *MockSink) startLocked() error {
	if err := m.errors["play"]; err != nil {
		return err
	}
	if !m.loaded {
		return errors.New("no source loaded")
	}
	if m.playing {
		return nil
	}
	m.playing = true
	m.started = m.clock.Now()
	m.armEndLocked()
	return nil
}

func (m *MockSink) armEndLocked() {
	if m.endTimer != nil {
		m.endTimer.Stop()
	}
	gen := m.gen
	m.endTimer = m.clock.AfterFunc(max(m.duration-m.base, 0), func() {
		m.mu.Lock()
		if m.gen != gen || !m.playing {
			m.mu.Unlock()
			return
		}
		m.base = m.duration
		m.playing = false
		m.endTimer = nil
		l := m.listener
		m.mu.Unlock()

		if l.OnEnded != nil {
			l.OnEnded()
		}
	})
}

func (m *MockSink) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("pause")
	m.pauseLocked()
}

func (m *MockSink) pauseLocked() {
	if !m.playing {
		return
	}
	m.base = m.positionLocked()
	m.playing = false
	if m.endTimer != nil {
		m.endTimer.Stop()
		m.endTimer = nil
	}
}

func (m *MockSink) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("stop")
	m.unloadLocked()
}

func (m *MockSink) unloadLocked() {
	m.pauseLocked()
	m.gen++
	m.loaded = false
	m.source = tts.AudioSource{}
	m.duration = 0
	m.base = 0
	// a real device never settles a start it abandoned
	m.held = nil
}

func (m *MockSink) Seek(pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errors["seek"]; err != nil {
		return err
	}
	if !m.loaded {
		return errors.New("no source loaded")
	}
	m.base = min(max(pos, 0), m.duration)
	m.started = m.clock.Now()
	m.history = append(m.history, PlaybackEvent{Type: "seek", Position: m.base, At: m.started})
	if m.playing {
		m.armEndLocked()
	}
	return nil
}

func (m *MockSink) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positionLocked()
}

func (m *MockSink) positionLocked() time.Duration {
	if !m.playing {
		return m.base
	}
	return min(m.base+m.clock.Now().Sub(m.started), m.duration)
}

func (m *MockSink) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *MockSink) SetVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = v
}

func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("close")
	m.unloadLocked()
	m.closed = true
	return nil
}

func (m *MockSink) listenerFor(gen uint64) (tts.SinkListener, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listener, m.gen == gen
}

func (m *MockSink) record(kind string) {
	m.history = append(m.history, PlaybackEvent{Type: kind, Position: m.positionLocked(), At: m.clock.Now()})
}

// HoldPlay makes later Play calls wait for SettlePlay, simulating a
// platform that is slow to start audio.
func (m *MockSink) HoldPlay(hold bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdPlay = hold
}

// SettlePlay completes every held Play call with err. A nil err starts
// the playhead.
func (m *MockSink) SettlePlay(err error) int {
	m.mu.Lock()
	held := m.held
	m.held = nil
	if err == nil && len(held) > 0 {
		err = m.startLocked()
	}
	m.mu.Unlock()

	for _, done := range held {
		done(err)
	}
	return len(held)
}

// InjectError makes method ("source", "play" or "seek") fail with err.
// A nil err clears it.
func (m *MockSink) InjectError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errors, method)
		return
	}
	m.errors[method] = err
}

// Fail reports a playback error for the loaded source.
func (m *MockSink) Fail(err error) {
	m.mu.Lock()
	m.pauseLocked()
	l := m.listener
	m.mu.Unlock()

	if l.OnError != nil {
		l.OnError(err)
	}
}

// SimulateCompletion ends the loaded source immediately.
func (m *MockSink) SimulateCompletion() {
	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return
	}
	m.pauseLocked()
	m.base = m.duration
	l := m.listener
	m.mu.Unlock()

	if l.OnEnded != nil {
		l.OnEnded()
	}
}

// Playing reports whether the playhead is moving.
func (m *MockSink) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// Source returns the loaded source.
func (m *MockSink) Source() tts.AudioSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

// Duration returns the loaded source's duration.
func (m *MockSink) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

// Volume returns the last volume set.
func (m *MockSink) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// History returns every recorded call.
func (m *MockSink) History() []PlaybackEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PlaybackEvent(nil), m.history...)
}

// Count returns how many calls of kind were recorded.
func (m *MockSink) Count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.history {
		if ev.Type == kind {
			n++
		}
	}
	return n
}
