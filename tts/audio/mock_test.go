package audio

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/ttsync/internal/clock"
	"github.com/dgnsrekt/ttsync/tts"
)

func wavSource(d time.Duration) tts.AudioSource {
	return tts.AudioSource{Blob: tts.NewBlob(EncodeWAV(Silence(d, 16000, 1)), "audio/wav")}
}

func TestMockSinkPlayhead(t *testing.T) {
	clk := clock.NewFake()
	s := NewMockSink(clk)

	var (
		meta  time.Duration
		ended atomic.Int32
	)
	s.SetListener(tts.SinkListener{
		OnMetadata: func(d time.Duration) { meta = d },
		OnEnded:    func() { ended.Add(1) },
	})

	if err := s.SetSource(wavSource(time.Second)); err != nil {
		t.Fatal(err)
	}
	if !s.Ready() {
		t.Fatal("sink should be ready after SetSource")
	}

	var started error = errors.New("not called")
	s.Play(func(err error) { started = err })
	if started != nil {
		t.Fatalf("Play done = %v", started)
	}

	clk.Advance(300 * time.Millisecond)
	if meta != time.Second {
		t.Errorf("metadata duration = %v", meta)
	}
	if got := s.Position(); got != 300*time.Millisecond {
		t.Errorf("Position() = %v", got)
	}

	s.Pause()
	clk.Advance(time.Second)
	if got := s.Position(); got != 300*time.Millisecond {
		t.Errorf("paused Position() = %v", got)
	}
	if ended.Load() != 0 {
		t.Fatal("paused sink must not end")
	}

	s.Play(func(error) {})
	clk.Advance(700 * time.Millisecond)
	if ended.Load() != 1 {
		t.Errorf("ended %d times, want 1", ended.Load())
	}
	if s.Playing() {
		t.Error("sink should stop at the end")
	}
}

func TestMockSinkSeek(t *testing.T) {
	clk := clock.NewFake()
	s := NewMockSink(clk)
	if err := s.SetSource(wavSource(time.Second)); err != nil {
		t.Fatal(err)
	}
	s.Play(func(error) {})

	if err := s.Seek(800 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	clk.Advance(100 * time.Millisecond)
	if got := s.Position(); got != 900*time.Millisecond {
		t.Errorf("Position() = %v", got)
	}
	if err := s.Seek(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	if got := s.Position(); got != time.Second {
		t.Errorf("seek past end should clamp, got %v", got)
	}
}

func TestMockSinkStopSilencesOldSource(t *testing.T) {
	clk := clock.NewFake()
	s := NewMockSink(clk)

	var ended, meta int
	s.SetListener(tts.SinkListener{
		OnMetadata: func(time.Duration) { meta++ },
		OnEnded:    func() { ended++ },
	})

	if err := s.SetSource(wavSource(100 * time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	s.Play(func(error) {})
	s.Stop()
	clk.Advance(time.Second)

	if ended != 0 || meta != 0 {
		t.Errorf("stopped source delivered ended=%d metadata=%d", ended, meta)
	}
	if s.Ready() {
		t.Error("Stop should unload the source")
	}
}

func TestMockSinkHoldPlay(t *testing.T) {
	clk := clock.NewFake()
	s := NewMockSink(clk)
	if err := s.SetSource(wavSource(time.Second)); err != nil {
		t.Fatal(err)
	}

	s.HoldPlay(true)
	var calls int
	var got error
	s.Play(func(err error) { calls++; got = err })

	clk.Advance(200 * time.Millisecond)
	if calls != 0 || s.Playing() {
		t.Fatal("held play must not settle")
	}

	boom := errors.New("blocked")
	if n := s.SettlePlay(boom); n != 1 {
		t.Fatalf("SettlePlay settled %d calls", n)
	}
	if calls != 1 || !errors.Is(got, boom) {
		t.Errorf("done called %d times with %v", calls, got)
	}
}

func TestMockSinkInjectedErrors(t *testing.T) {
	s := NewMockSink(clock.NewFake())
	boom := errors.New("boom")

	s.InjectError("source", boom)
	if err := s.SetSource(wavSource(time.Second)); !errors.Is(err, boom) {
		t.Errorf("SetSource() = %v", err)
	}
	s.InjectError("source", nil)

	bad := tts.AudioSource{Blob: tts.NewBlob([]byte("garbage"), "audio/wav")}
	if err := s.SetSource(bad); err == nil {
		t.Error("undecodable blob should fail")
	}

	if err := s.SetSource(wavSource(time.Second)); err != nil {
		t.Fatal(err)
	}
	s.InjectError("play", boom)
	var got error
	s.Play(func(err error) { got = err })
	if !errors.Is(got, boom) {
		t.Errorf("Play done = %v", got)
	}
	if s.Count("play") != 1 {
		t.Errorf("Count(play) = %d", s.Count("play"))
	}
}
