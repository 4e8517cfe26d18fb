package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/ttsync/tts"
)

var (
	// ErrOutOfRange is returned when a sentence index does not exist.
	ErrOutOfRange = errors.New("sentence index out of range")

	// ErrPlaylistClosed is returned when operations are attempted on a closed playlist.
	ErrPlaylistClosed = errors.New("playlist is closed")
)

// DefaultLookahead is the number of upcoming sentences synthesized ahead of
// playback.
const DefaultLookahead = 2

// Speaker is the part of *tts.Engine a Playlist drives.
type Speaker interface {
	Speak(text string)
	SpeakGapless(text string)
	SetResumeHint(charIndex int)
	Preload(ctx context.Context, text string)
	PrepareNext(text string)
	Pause()
	Resume()
	Cancel()
	IsPaused() bool

	OnEnd(fn func()) func()
	OnError(fn func(*tts.TTSError)) func()
	OnBoundary(fn func(tts.Boundary)) func()
}

// EventKind identifies a playlist event.
type EventKind int

const (
	EventSentence EventKind = iota // a sentence started
	EventWord                      // a word of the current sentence is spoken
	EventPaused
	EventResumed
	EventFinished // the last sentence ended
	EventStopped
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventSentence:
		return "sentence"
	case EventWord:
		return "word"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	case EventFinished:
		return "finished"
	case EventStopped:
		return "stopped"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event reports playlist progress.
type Event struct {
	Kind     EventKind
	Index    int
	Total    int
	Sentence tts.Sentence
	Word     tts.Boundary
	Err      *tts.TTSError
}

// Options tune a Playlist.
type Options struct {
	// Lookahead is how many sentences after the current one are preloaded.
	// Zero uses DefaultLookahead; negative disables preloading.
	Lookahead int
	Logger    *log.Logger
}

// Playlist speaks a list of sentences in order. Each natural end hands off
// to the next sentence gaplessly while the following ones are synthesized
// in the background and the immediate successor is loaded into a standby
// sink.
type Playlist struct {
	speaker   Speaker
	sentences []tts.Sentence
	lookahead int
	logger    *log.Logger

	mu       sync.Mutex
	index    int
	playing  bool
	closed   bool
	prefetch context.CancelFunc
	subs     []func(Event)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	unsubscribe []func()
	done        chan struct{}
	doneOnce    sync.Once
}

// New creates a playlist over sentences. It subscribes to the speaker's
// events until Close.
func New(speaker Speaker, sentences []tts.Sentence, opts Options) *Playlist {
	lookahead := opts.Lookahead
	if lookahead == 0 {
		lookahead = DefaultLookahead
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("playlist")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Playlist{
		speaker:   speaker,
		sentences: sentences,
		lookahead: max(lookahead, 0),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	p.unsubscribe = []func(){
		speaker.OnEnd(p.handleEnd),
		speaker.OnError(p.handleError),
		speaker.OnBoundary(p.handleBoundary),
	}
	return p
}

// Subscribe registers fn for playlist events. Events are delivered on the
// goroutine that caused them; fn may call back into the playlist.
func (p *Playlist) Subscribe(fn func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, fn)
}

// Start speaks from sentence index, beginning at byte offset charIndex of
// its text.
func (p *Playlist) Start(index, charIndex int) error {
	if err := p.moveTo(index); err != nil {
		return err
	}
	if charIndex > 0 {
		p.speaker.SetResumeHint(charIndex)
	}
	p.speak(index, false)
	return nil
}

// Next skips to the following sentence.
func (p *Playlist) Next() error {
	index, _ := p.Position()
	if err := p.moveTo(index + 1); err != nil {
		return err
	}
	p.speak(index+1, false)
	return nil
}

// Previous goes back one sentence, or restarts the first.
func (p *Playlist) Previous() error {
	index, _ := p.Position()
	index = max(index-1, 0)
	if err := p.moveTo(index); err != nil {
		return err
	}
	p.speak(index, false)
	return nil
}

// TogglePause pauses a playing playlist or resumes a paused one.
func (p *Playlist) TogglePause() {
	p.mu.Lock()
	playing := p.playing && !p.closed
	index := p.index
	p.mu.Unlock()
	if !playing {
		return
	}

	if p.speaker.IsPaused() {
		p.speaker.Resume()
		p.emit(p.event(EventResumed, index))
		return
	}
	p.speaker.Pause()
	p.emit(p.event(EventPaused, index))
}

// Stop cancels playback. The position is kept so Start can pick it up
// again.
func (p *Playlist) Stop() {
	p.mu.Lock()
	wasPlaying := p.playing
	p.playing = false
	p.stopPrefetchLocked()
	index := p.index
	p.mu.Unlock()

	p.speaker.Cancel()
	if wasPlaying {
		p.emit(p.event(EventStopped, index))
	}
}

// Position returns the current sentence index and the sentence count.
func (p *Playlist) Position() (index, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index, len(p.sentences)
}

// Current returns the current sentence.
func (p *Playlist) Current() (tts.Sentence, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index < 0 || p.index >= len(p.sentences) {
		return tts.Sentence{}, false
	}
	return p.sentences[p.index], true
}

// Sentences returns the playlist contents.
func (p *Playlist) Sentences() []tts.Sentence {
	return p.sentences
}

// Playing reports whether the playlist is between Start and its end.
func (p *Playlist) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Done is closed once the last sentence ends or the playlist is closed.
func (p *Playlist) Done() <-chan struct{} {
	return p.done
}

// Close stops playback, detaches from the speaker and waits for background
// preloads.
func (p *Playlist) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.playing = false
	p.stopPrefetchLocked()
	p.mu.Unlock()

	for _, fn := range p.unsubscribe {
		fn()
	}
	p.speaker.Cancel()
	p.cancel()
	p.wg.Wait()
	p.doneOnce.Do(func() { close(p.done) })
	return nil
}

func (p *Playlist) moveTo(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlaylistClosed
	}
	if index < 0 || index >= len(p.sentences) {
		return ErrOutOfRange
	}
	p.index = index
	p.playing = true
	return nil
}

// speak announces sentence index and hands it to the speaker. It must be
// called without p.mu held: a cached utterance delivers events before the
// speaker returns.
func (p *Playlist) speak(index int, gapless bool) {
	p.emit(p.event(EventSentence, index))

	text := p.sentences[index].Text
	p.logger.Debug("Speaking sentence", "index", index, "gapless", gapless)
	if gapless {
		p.speaker.SpeakGapless(text)
	} else {
		p.speaker.Speak(text)
	}
	p.startPrefetch(index + 1)
}

func (p *Playlist) handleEnd() {
	p.mu.Lock()
	if !p.playing || p.closed {
		p.mu.Unlock()
		return
	}
	next := p.index + 1
	if next >= len(p.sentences) {
		p.playing = false
		p.stopPrefetchLocked()
		p.mu.Unlock()

		p.emit(p.event(EventFinished, next-1))
		p.doneOnce.Do(func() { close(p.done) })
		return
	}
	p.index = next
	p.mu.Unlock()

	p.speak(next, true)
}

// handleError stops the playlist on the current sentence.
func (p *Playlist) handleError(terr *tts.TTSError) {
	p.mu.Lock()
	if !p.playing || p.closed {
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.stopPrefetchLocked()
	index := p.index
	p.mu.Unlock()

	p.logger.Warn("Sentence failed", "index", index, "error", terr)
	ev := p.event(EventError, index)
	ev.Err = terr
	p.emit(ev)
}

func (p *Playlist) handleBoundary(b tts.Boundary) {
	p.mu.Lock()
	if !p.playing || p.closed {
		p.mu.Unlock()
		return
	}
	index := p.index
	p.mu.Unlock()

	ev := p.event(EventWord, index)
	ev.Word = b
	p.emit(ev)
}

// startPrefetch preloads the sentences from index on and prepares the first
// of them for a gapless handoff. A newer prefetch cancels the previous one.
func (p *Playlist) startPrefetch(from int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopPrefetchLocked()
	if p.closed || p.lookahead == 0 || from >= len(p.sentences) {
		return
	}
	end := min(from+p.lookahead, len(p.sentences))
	texts := make([]string, 0, end-from)
	for _, s := range p.sentences[from:end] {
		texts = append(texts, s.Text)
	}

	ctx, cancel := context.WithCancel(p.ctx)
	p.prefetch = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for i, text := range texts {
			if ctx.Err() != nil {
				return
			}
			p.speaker.Preload(ctx, text)
			if i == 0 && ctx.Err() == nil {
				p.speaker.PrepareNext(text)
			}
		}
	}()
}

func (p *Playlist) stopPrefetchLocked() {
	if p.prefetch != nil {
		p.prefetch()
		p.prefetch = nil
	}
}

func (p *Playlist) event(kind EventKind, index int) Event {
	ev := Event{Kind: kind, Index: index, Total: len(p.sentences)}
	if index >= 0 && index < len(p.sentences) {
		ev.Sentence = p.sentences[index]
	}
	return ev
}

func (p *Playlist) emit(ev Event) {
	p.mu.Lock()
	subs := make([]func(Event), len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
