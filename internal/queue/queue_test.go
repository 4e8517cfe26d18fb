package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/ttsync/tts"
)

// fakeSpeaker records the calls a playlist makes and lets tests fire the
// engine's events.
type fakeSpeaker struct {
	mu       sync.Mutex
	calls    []string
	preloads []string
	prepared []string
	hint     int
	paused   bool

	ends       []func()
	errs       []func(*tts.TTSError)
	boundaries []func(tts.Boundary)
}

func newFakeSpeaker() *fakeSpeaker { return &fakeSpeaker{hint: -1} }

func (f *fakeSpeaker) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSpeaker) Speak(text string)        { f.record("speak:" + text) }
func (f *fakeSpeaker) SpeakGapless(text string) { f.record("gapless:" + text) }
func (f *fakeSpeaker) Cancel()                  { f.record("cancel") }

func (f *fakeSpeaker) SetResumeHint(charIndex int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hint = charIndex
}

func (f *fakeSpeaker) Preload(_ context.Context, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preloads = append(f.preloads, text)
}

func (f *fakeSpeaker) PrepareNext(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared = append(f.prepared, text)
}

func (f *fakeSpeaker) Pause() {
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
	f.record("pause")
}

func (f *fakeSpeaker) Resume() {
	f.mu.Lock()
	f.paused = false
	f.mu.Unlock()
	f.record("resume")
}

func (f *fakeSpeaker) IsPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeSpeaker) OnEnd(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends = append(f.ends, fn)
	i := len(f.ends) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.ends[i] = nil
	}
}

func (f *fakeSpeaker) OnError(fn func(*tts.TTSError)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, fn)
	return func() {}
}

func (f *fakeSpeaker) OnBoundary(fn func(tts.Boundary)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boundaries = append(f.boundaries, fn)
	return func() {}
}

func (f *fakeSpeaker) end() {
	f.mu.Lock()
	fns := append([]func(){}, f.ends...)
	f.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

func (f *fakeSpeaker) fail(terr *tts.TTSError) {
	f.mu.Lock()
	fns := append([]func(*tts.TTSError){}, f.errs...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(terr)
	}
}

func (f *fakeSpeaker) word(b tts.Boundary) {
	f.mu.Lock()
	fns := append([]func(tts.Boundary){}, f.boundaries...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(b)
	}
}

func (f *fakeSpeaker) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func sentences(texts ...string) []tts.Sentence {
	out := make([]tts.Sentence, len(texts))
	for i, t := range texts {
		out[i] = tts.Sentence{Index: i, Text: t}
	}
	return out
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []EventKind
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPlaylistPlaysThrough(t *testing.T) {
	sp := newFakeSpeaker()
	p := New(sp, sentences("One.", "Two.", "Three."), Options{Lookahead: -1})
	defer p.Close()

	var log eventLog
	p.Subscribe(log.add)

	if err := p.Start(0, 0); err != nil {
		t.Fatal(err)
	}
	sp.end()
	sp.end()
	if !p.Playing() {
		t.Fatal("playlist should still be playing the last sentence")
	}
	sp.end()

	want := []string{"speak:One.", "gapless:Two.", "gapless:Three."}
	if got := sp.history(); !equalStrings(got, want) {
		t.Errorf("calls = %q, want %q", got, want)
	}

	kinds := log.kinds()
	wantKinds := []EventKind{EventSentence, EventSentence, EventSentence, EventFinished}
	if len(kinds) != len(wantKinds) {
		t.Fatalf("events = %v, want %v", kinds, wantKinds)
	}
	for i := range kinds {
		if kinds[i] != wantKinds[i] {
			t.Errorf("event %d = %v, want %v", i, kinds[i], wantKinds[i])
		}
	}

	select {
	case <-p.Done():
	default:
		t.Error("Done should be closed after the last sentence")
	}
	if p.Playing() {
		t.Error("playlist should stop after the last sentence")
	}

	// a late end is ignored
	sp.end()
	if got := len(sp.history()); got != 3 {
		t.Errorf("late end triggered speech, %d calls", got)
	}
}

func TestPlaylistStartWithResumeOffset(t *testing.T) {
	sp := newFakeSpeaker()
	p := New(sp, sentences("One.", "Two words here."), Options{Lookahead: -1})
	defer p.Close()

	if err := p.Start(1, 4); err != nil {
		t.Fatal(err)
	}
	if sp.hint != 4 {
		t.Errorf("resume hint = %d, want 4", sp.hint)
	}
	if idx, total := p.Position(); idx != 1 || total != 2 {
		t.Errorf("Position() = %d/%d", idx, total)
	}
	if err := p.Start(5, 0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Start(5) error = %v", err)
	}
}

func TestPlaylistNavigation(t *testing.T) {
	sp := newFakeSpeaker()
	p := New(sp, sentences("A.", "B.", "C."), Options{Lookahead: -1})
	defer p.Close()

	if err := p.Start(0, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.Next(); err != nil {
		t.Fatal(err)
	}
	if err := p.Next(); err != nil {
		t.Fatal(err)
	}
	if err := p.Next(); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Next() past the end = %v", err)
	}
	if err := p.Previous(); err != nil {
		t.Fatal(err)
	}

	want := []string{"speak:A.", "speak:B.", "speak:C.", "speak:B."}
	if got := sp.history(); !equalStrings(got, want) {
		t.Errorf("calls = %q, want %q", got, want)
	}

	if s, ok := p.Current(); !ok || s.Text != "B." {
		t.Errorf("Current() = %+v", s)
	}
}

func TestPlaylistTogglePauseAndStop(t *testing.T) {
	sp := newFakeSpeaker()
	p := New(sp, sentences("A.", "B."), Options{Lookahead: -1})
	defer p.Close()

	var log eventLog
	p.Subscribe(log.add)

	p.TogglePause()
	if len(sp.history()) != 0 {
		t.Fatal("toggling an idle playlist should do nothing")
	}

	_ = p.Start(0, 0)
	p.TogglePause()
	p.TogglePause()
	p.Stop()

	want := []string{"speak:A.", "pause", "resume", "cancel"}
	if got := sp.history(); !equalStrings(got, want) {
		t.Errorf("calls = %q, want %q", got, want)
	}
	kinds := log.kinds()
	if len(kinds) != 4 || kinds[1] != EventPaused || kinds[2] != EventResumed || kinds[3] != EventStopped {
		t.Errorf("events = %v", kinds)
	}

	// after Stop an end from the speaker does not advance
	sp.end()
	if idx, _ := p.Position(); idx != 0 {
		t.Errorf("index = %d after stop", idx)
	}
}

func TestPlaylistErrorStops(t *testing.T) {
	sp := newFakeSpeaker()
	p := New(sp, sentences("A.", "B."), Options{Lookahead: -1})
	defer p.Close()

	var log eventLog
	p.Subscribe(log.add)
	_ = p.Start(0, 0)

	terr := tts.NewTTSError(tts.ErrSynthesisRejected, tts.StageSynthesize, tts.DiagSynthFail)
	sp.fail(terr)

	if p.Playing() {
		t.Error("an error should stop the playlist")
	}
	log.mu.Lock()
	last := log.events[len(log.events)-1]
	log.mu.Unlock()
	if last.Kind != EventError || last.Err != terr || last.Index != 0 {
		t.Errorf("last event = %+v", last)
	}

	sp.end()
	if len(sp.history()) != 1 {
		t.Error("no speech after an error")
	}
}

func TestPlaylistWordEvents(t *testing.T) {
	sp := newFakeSpeaker()
	p := New(sp, sentences("Hello world."), Options{Lookahead: -1})
	defer p.Close()

	var log eventLog
	p.Subscribe(log.add)

	sp.word(tts.Boundary{CharIndex: 0})
	if len(log.kinds()) != 0 {
		t.Fatal("words before Start are ignored")
	}

	_ = p.Start(0, 0)
	sp.word(tts.Boundary{CharIndex: 6, CharLength: 5})

	log.mu.Lock()
	defer log.mu.Unlock()
	ev := log.events[len(log.events)-1]
	if ev.Kind != EventWord || ev.Word.CharIndex != 6 || ev.Sentence.Text != "Hello world." {
		t.Errorf("word event = %+v", ev)
	}
}

func TestPlaylistPrefetch(t *testing.T) {
	sp := newFakeSpeaker()
	p := New(sp, sentences("A.", "B.", "C.", "D."), Options{Lookahead: 2})

	_ = p.Start(0, 0)

	deadline := time.Now().Add(time.Second)
	for {
		sp.mu.Lock()
		n := len(sp.preloads)
		sp.mu.Unlock()
		if n == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	_ = p.Close()

	sp.mu.Lock()
	defer sp.mu.Unlock()
	if !equalStrings(sp.preloads, []string{"B.", "C."}) {
		t.Errorf("preloads = %q", sp.preloads)
	}
	if !equalStrings(sp.prepared, []string{"B."}) {
		t.Errorf("prepared = %q", sp.prepared)
	}
}

func TestPlaylistClose(t *testing.T) {
	sp := newFakeSpeaker()
	p := New(sp, sentences("A."), Options{})

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal("Close should be idempotent")
	}
	if err := p.Start(0, 0); !errors.Is(err, ErrPlaylistClosed) {
		t.Errorf("Start after Close = %v", err)
	}
	select {
	case <-p.Done():
	default:
		t.Error("Done should be closed")
	}
	sp.end()
}

func TestEventKindString(t *testing.T) {
	if EventWord.String() != "word" || EventKind(99).String() != "unknown" {
		t.Error("unexpected EventKind names")
	}
}
