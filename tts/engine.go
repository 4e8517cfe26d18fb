package tts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/ttsync/internal/clock"
	"github.com/dgnsrekt/ttsync/tts/align"
	ttssync "github.com/dgnsrekt/ttsync/tts/sync"
)

// ErrNoSink is reported when no audio sink can be created.
var ErrNoSink = errors.New("no audio sink available")

// Engine speaks text through a Provider and an AudioSink while reporting
// which word of the text is being spoken.
//
// Exactly one utterance (session) is current at a time. Every asynchronous
// completion (synthesis, sink events, timers, boundary polling) checks that
// its session is still current before touching state, so a superseded
// utterance never produces events.
type Engine struct {
	cfg      Config
	provider Provider
	sinks    SinkFactory
	clock    clock.Clock
	logger   *log.Logger
	cache    *SynthesisCache
	client   *Client
	sched    *ttssync.Scheduler

	mu         sync.Mutex
	state      *StateMachine
	session    *session
	finishedID string
	sink       AudioSink
	prepared   *preparedSink
	prepareGen uint64
	closed     bool

	voice  string
	rate   float64
	pitch  float64
	volume float64

	resumeHint  int
	resumeTimer clock.Timer
	resumeToken uint64

	health   Health
	voices   []Voice
	lastDiag DiagnosticEvent
	breaker  breaker

	pending  []delivery
	draining bool

	boundaryListeners listeners[Boundary]
	endListeners      listeners[struct{}]
	errorListeners    listeners[*TTSError]
	diagListeners     listeners[DiagnosticEvent]

	resets sync.WaitGroup
}

// session is one utterance.
type session struct {
	requestID       string
	text            string
	key             CacheKey
	resumeCharIndex int
	resumeSeekMs    int64
	entries         []align.Entry
	gapless         bool
	paused          bool // set by Pause, cleared by Resume
	cancel          context.CancelFunc
}

// preparedSink holds cached audio loaded ahead of a gapless handoff.
type preparedSink struct {
	key        CacheKey
	boundaries []BoundaryEvent
	sink       AudioSink
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the real clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver reports every provider call to o.
func WithObserver(o SynthesisObserver) Option {
	return func(e *Engine) { e.client.observer = o }
}

// NewEngine creates an idle engine. provider may be nil, in which case
// every speak fails with ErrSynthesisUnavailable.
func NewEngine(cfg Config, provider Provider, sinks SinkFactory, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		provider:   provider,
		sinks:      sinks,
		clock:      clock.Real(),
		logger:     log.Default().WithPrefix("tts"),
		cache:      NewSynthesisCache(max(cfg.Cache.Capacity, 1)),
		state:      NewStateMachine(),
		voice:      cfg.Voice,
		rate:       clamp(cfg.Rate, MinRate, MaxRate),
		pitch:      clamp(cfg.Pitch, MinPitch, MaxPitch),
		volume:     clamp(cfg.Volume, MinVolume, MaxVolume),
		resumeHint: -1,
		health:     Health{Reason: reasonUninitialized},
		breaker:    breaker{threshold: max(cfg.Health.FailureThreshold, 1)},
	}
	e.client = NewClient(provider, e.cache, cfg.Synthesis, nil)

	for _, opt := range opts {
		opt(e)
	}

	e.client.clock = e.clock
	e.client.diag = e.emitDiag
	e.client.current = e.currentID
	e.sched = ttssync.NewScheduler(e.clock)

	for _, st := range []StateType{StateIdle, StateRequesting, StatePlaying, StatePaused} {
		st := st
		e.state.OnEnter(st, func() {
			e.logger.Debug("State changed", "state", st, "request", e.currentIDLocked())
		})
	}

	return e
}

// Speak cancels whatever is playing and speaks text. A cached result starts
// immediately; otherwise synthesis runs in the background and the outcome
// arrives through OnEnd or OnError. Empty text only cancels.
func (e *Engine) Speak(text string) {
	e.speak(text, false)
}

// SpeakGapless speaks text without silencing the current audio while the
// new audio is synthesized. The previous utterance is superseded at once
// and never reports OnEnd.
func (e *Engine) SpeakGapless(text string) {
	e.speak(text, true)
}

func (e *Engine) speak(text string, gapless bool) {
	t := strings.TrimSpace(text)

	e.mu.Lock()
	if e.closed || (t == "" && gapless) {
		e.mu.Unlock()
		return
	}

	hint := e.resumeHint
	e.resumeHint = -1

	if gapless {
		e.supersedeLocked()
	} else {
		e.cancelLocked()
	}

	if t == "" {
		e.mu.Unlock()
		e.drain()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	req := e.requestLocked(t)
	s := &session{
		requestID:       uuid.NewString(),
		text:            t,
		key:             req.Key(),
		resumeCharIndex: hint,
		resumeSeekMs:    -1,
		gapless:         gapless,
		cancel:          cancel,
	}
	e.session = s
	e.finishedID = ""

	if gapless {
		if p := e.prepared; p != nil && p.key == s.key && p.sink.Ready() {
			e.prepared = nil
			e.diagLocked(DiagCacheHit, "prepared")
			e.mu.Unlock()
			e.startPlayback(s, CacheEntry{Boundaries: p.boundaries}, p.sink)
			return
		}
		e.clearPreparedLocked()
	}

	if e.state.Current() == StateIdle {
		e.state.Transition(StateRequesting)
	}

	if entry, ok := e.cache.Get(s.key); ok {
		e.diagLocked(DiagCacheHit, "")
		e.mu.Unlock()
		e.startPlayback(s, entry, nil)
		return
	}

	e.diagLocked(DiagSynthStart, "")
	e.mu.Unlock()
	e.drain()

	go e.fetch(ctx, s, req)
}

// fetch synthesizes a cache miss and starts playback if s is still current.
func (e *Engine) fetch(ctx context.Context, s *session, req SynthesisRequest) {
	res, err := e.client.Synthesize(ctx, req)
	var entry CacheEntry
	synthErr := err
	if err == nil {
		entry, err = e.client.Entry(res)
	}

	e.mu.Lock()
	if e.session != s {
		e.mu.Unlock()
		if err == nil {
			entry.release()
		}
		e.logger.Debug("Discarding late synthesis", "request", s.requestID)
		return
	}

	if err != nil {
		var terr *TTSError
		switch {
		case synthErr == nil:
			e.diagLocked(DiagSynthOK, "")
			terr = NewTTSError(ErrDecodeFailure, StageDecode, DiagDecodeFail)
		case errors.Is(err, ErrSynthesisTimeout):
			terr = NewTTSError(ErrSynthesisTimeout, StageSynthesize, DiagSynthTimeout).
				WithSeverity(SeverityWarning)
		default:
			terr = NewTTSError(classify(err), StageSynthesize, DiagSynthFail)
			if !terr.IsRecoverable() {
				terr.WithSeverity(SeverityCritical)
			}
		}
		e.failLocked(s, terr.WithReason(err.Error()))
		e.mu.Unlock()
		e.drain()
		return
	}

	e.diagLocked(DiagSynthOK, "")
	if res.AudioURL == "" && len(res.Audio) == 0 {
		e.diagLocked(DiagDecodeOK, "")
	}
	e.cache.Set(s.key, entry)
	e.mu.Unlock()

	e.startPlayback(s, entry, nil)
}

// startPlayback hands entry to s. Unless sink is already loaded, the audio
// is loaded into a fresh sink first, without holding e.mu; the result is
// discarded if s was superseded meanwhile.
func (e *Engine) startPlayback(s *session, entry CacheEntry, sink AudioSink) {
	var terr *TTSError
	if sink == nil {
		sink, terr = e.loadSink(entry.Source)
	}

	e.mu.Lock()
	if e.session != s || e.closed {
		e.mu.Unlock()
		if sink != nil {
			sink.Stop()
			_ = sink.Close()
		}
		e.logger.Debug("Discarding superseded audio", "request", s.requestID)
		e.drain()
		return
	}
	if terr != nil {
		e.failLocked(s, terr)
		e.mu.Unlock()
		e.drain()
		return
	}
	play := e.commitLocked(s, entry.Boundaries, sink)
	e.mu.Unlock()

	if play {
		sink.Play(func(err error) {
			if err != nil {
				e.playFailed(s, sink, err)
			}
		})
	}
	e.drain()
}

// loadSink creates a sink and loads src into it. It must not be called with
// e.mu held: loading may decode or fetch a URL.
func (e *Engine) loadSink(src AudioSource) (AudioSink, *TTSError) {
	if e.sinks == nil {
		return nil, NewTTSError(ErrPlaybackFailure, StagePlay, DiagPlayFail).WithReason(ErrNoSink.Error())
	}
	sink, err := e.sinks()
	if err != nil {
		return nil, NewTTSError(ErrPlaybackFailure, StagePlay, DiagPlayFail).WithReason(err.Error())
	}
	if err := sink.SetSource(src); err != nil {
		_ = sink.Close()
		return nil, NewTTSError(ErrDecodeFailure, StageDecode, DiagDecodeFail).WithReason(err.Error())
	}
	return sink, nil
}

// commitLocked makes the loaded sink current for s, replacing the previous
// sink, and starts the boundary scheduler. The listener is installed only
// now, so nothing the sink reported while loading reaches s. It reports
// whether the caller should start the sink; a pause taken while s was
// loading is kept.
func (e *Engine) commitLocked(s *session, boundaries []BoundaryEvent, sink AudioSink) bool {
	s.entries = align.Align(boundaries, s.text)

	next := 0
	if s.resumeCharIndex >= 0 && len(s.entries) > 0 {
		next = align.FindResumeEntry(s.entries, s.resumeCharIndex)
		s.resumeSeekMs = s.entries[next].OffsetMs
	}

	if old := e.sink; old != nil && old != sink {
		old.Stop()
		_ = old.Close()
	}
	e.sink = sink
	sink.SetVolume(e.volume)
	sink.SetListener(e.sinkListener(s, sink))

	if s.resumeSeekMs >= 0 && sink.Ready() {
		if err := sink.Seek(time.Duration(s.resumeSeekMs) * time.Millisecond); err != nil {
			e.logger.Debug("Resume seek failed", "request", s.requestID, "error", err)
		}
		s.resumeSeekMs = -1
	}

	paused := s.paused && e.state.Current() == StatePaused
	if !paused {
		e.state.Transition(StatePlaying)
	}
	e.sched.Start(s.entries, next, sink.Position, e.fireBoundary(s))
	if paused {
		e.sched.Pause()
	}
	return !paused
}

func (e *Engine) sinkListener(s *session, sink AudioSink) SinkListener {
	owns := func() bool { return e.session == s && e.sink == sink }

	return SinkListener{
		OnMetadata: func(time.Duration) {
			e.mu.Lock()
			defer e.mu.Unlock()
			if !owns() || s.resumeSeekMs < 0 {
				return
			}
			seek := time.Duration(s.resumeSeekMs) * time.Millisecond
			s.resumeSeekMs = -1
			if err := sink.Seek(seek); err != nil {
				e.logger.Debug("Resume seek failed", "request", s.requestID, "error", err)
			}
		},
		OnEnded: func() {
			e.mu.Lock()
			if !owns() {
				e.mu.Unlock()
				return
			}
			e.finishLocked(s)
			e.mu.Unlock()
			e.drain()
		},
		OnError: func(err error) {
			e.playFailed(s, sink, err)
		},
	}
}

func (e *Engine) playFailed(s *session, sink AudioSink, err error) {
	e.mu.Lock()
	if e.session != s || e.sink != sink {
		e.mu.Unlock()
		return
	}
	e.failLocked(s, NewTTSError(ErrPlaybackFailure, StagePlay, DiagPlayFail).WithReason(err.Error()))
	e.mu.Unlock()
	e.drain()
}

func (e *Engine) fireBoundary(s *session) ttssync.FireFunc {
	return func(i int, entry align.Entry) {
		e.mu.Lock()
		if e.session != s {
			e.mu.Unlock()
			return
		}
		b := Boundary{
			RequestID:   s.requestID,
			Index:       i,
			CharIndex:   entry.CharIndex,
			CharLength:  entry.CharLength,
			OffsetMs:    entry.OffsetMs,
			Granularity: GranularityWord,
		}
		e.enqueueLocked(delivery{
			requestID: s.requestID,
			bound:     true,
			run:       func() { e.boundaryListeners.emit(b) },
		})
		e.mu.Unlock()
		e.drain()
	}
}

// finishLocked ends s after its audio played to completion.
func (e *Engine) finishLocked(s *session) {
	e.sched.Stop()
	e.stopResumeTimerLocked()
	s.cancel()
	e.session = nil
	e.finishedID = s.requestID
	e.state.Transition(StateIdle)
	e.breaker.reset()

	e.diagLocked(DiagPlayOK, "")
	e.enqueueLocked(delivery{
		requestID: s.requestID,
		bound:     true,
		run:       func() { e.endListeners.emit(struct{}{}) },
	})
}

// failLocked ends s with terr. Any audio still playing, including a
// superseded utterance kept alive by a gapless handoff, is stopped.
func (e *Engine) failLocked(s *session, terr *TTSError) {
	terr.RequestID = s.requestID
	terr.WithContext("voice", s.key.Voice).WithContext("text_length", len(s.text))
	e.logger.Debug("Utterance failed", "request", s.requestID, "code", terr.Code, "reason", terr.Reason)

	e.sched.Stop()
	e.stopResumeTimerLocked()
	s.cancel()
	e.session = nil
	e.finishedID = s.requestID
	e.state.Transition(StateIdle)
	if e.sink != nil {
		e.sink.Stop()
	}

	e.diagLocked(terr.Code, terr.Reason)
	e.enqueueLocked(delivery{
		requestID: s.requestID,
		bound:     true,
		run:       func() { e.errorListeners.emit(terr) },
	})
}

// Pause pauses playback. The engine reports paused before the sink is told.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.state.Current() != StatePlaying || e.session == nil || e.sink == nil {
		e.mu.Unlock()
		return
	}
	e.state.Transition(StatePaused)
	e.session.paused = true
	e.sched.Pause()
	e.stopResumeTimerLocked()
	sink := e.sink
	e.mu.Unlock()

	sink.Pause()
}

// Resume continues paused playback. The engine reports playing at once; if
// the sink has neither started nor failed within the resume timeout the
// engine falls back to paused and emits resume_timeout.
func (e *Engine) Resume() {
	e.mu.Lock()
	if e.state.Current() != StatePaused || e.session == nil || e.sink == nil {
		e.mu.Unlock()
		return
	}
	s, sink := e.session, e.sink

	e.state.Transition(StatePlaying)
	s.paused = false
	e.sched.Resume()

	e.stopResumeTimerLocked()
	token := e.resumeToken
	e.resumeTimer = e.clock.AfterFunc(e.cfg.Playback.ResumeTimeout, func() {
		e.resumeTimedOut(s, token)
	})
	e.mu.Unlock()

	sink.Play(func(err error) { e.resumeSettled(s, token, err) })
	e.drain()
}

func (e *Engine) resumeSettled(s *session, token uint64, err error) {
	e.mu.Lock()
	if token != e.resumeToken || e.session != s {
		e.mu.Unlock()
		return
	}
	e.stopResumeTimerLocked()
	if err != nil {
		e.state.Transition(StatePaused)
		e.sched.Pause()
		e.diagLocked(DiagResumeFail, err.Error())
	}
	e.mu.Unlock()
	e.drain()
}

func (e *Engine) resumeTimedOut(s *session, token uint64) {
	e.mu.Lock()
	if token != e.resumeToken || e.session != s {
		e.mu.Unlock()
		return
	}
	e.resumeTimer = nil
	e.resumeToken++
	e.state.Transition(StatePaused)
	e.sched.Pause()
	e.diagLocked(DiagResumeTimeout, "play_stuck")
	sink := e.sink
	e.mu.Unlock()

	if sink != nil {
		sink.Pause()
	}
	e.drain()
}

// stopResumeTimerLocked disarms a pending resume check and invalidates its
// token.
func (e *Engine) stopResumeTimerLocked() {
	if e.resumeTimer != nil {
		e.resumeTimer.Stop()
		e.resumeTimer = nil
	}
	e.resumeToken++
}

// Cancel stops everything. It is safe to call in any state.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.cancelLocked()
	e.mu.Unlock()
	e.drain()
}

func (e *Engine) cancelLocked() {
	e.sched.Stop()
	e.clearPreparedLocked()
	e.resumeHint = -1
	if e.session != nil {
		e.session.cancel()
		e.session = nil
	}
	e.finishedID = ""
	e.state.Transition(StateIdle)
	e.stopResumeTimerLocked()
	if e.sink != nil {
		e.sink.Stop()
	}
}

// supersedeLocked invalidates the current session but leaves its audio
// playing.
func (e *Engine) supersedeLocked() {
	e.sched.Stop()
	e.stopResumeTimerLocked()
	if e.session != nil {
		e.session.cancel()
		e.session = nil
	}
	e.finishedID = ""
}

// SetResumeHint makes the next speak start at the word containing byte
// offset charIndex of its text. A negative value clears the hint.
func (e *Engine) SetResumeHint(charIndex int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resumeHint = max(charIndex, -1)
}

// PrepareNext loads cached audio for text into a standby sink so a later
// SpeakGapless of the same text starts without decoding. Uncached text is
// ignored.
func (e *Engine) PrepareNext(text string) {
	t := strings.TrimSpace(text)
	if t == "" {
		return
	}

	e.mu.Lock()
	if e.closed || e.sinks == nil {
		e.mu.Unlock()
		return
	}
	key := e.requestLocked(t).Key()
	if e.prepared != nil && e.prepared.key == key {
		e.mu.Unlock()
		return
	}
	e.clearPreparedLocked()

	entry, ok := e.cache.Peek(key)
	gen := e.prepareGen
	e.mu.Unlock()
	if !ok {
		return
	}

	sink, terr := e.loadSink(entry.Source)
	if terr != nil {
		e.logger.Debug("Cannot prepare standby sink", "reason", terr.Reason)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || gen != e.prepareGen {
		sink.Stop()
		_ = sink.Close()
		return
	}
	sink.SetVolume(e.volume)
	e.prepared = &preparedSink{key: key, boundaries: entry.Boundaries, sink: sink}
}

// clearPreparedLocked drops the standby sink and abandons any PrepareNext
// still loading.
func (e *Engine) clearPreparedLocked() {
	e.prepareGen++
	if e.prepared == nil {
		return
	}
	e.prepared.sink.Stop()
	_ = e.prepared.sink.Close()
	e.prepared = nil
}

// Preload synthesizes text into the cache without playing it. It blocks
// until the preload finishes or is abandoned; callers usually run it in a
// goroutine. Failures never reach OnError.
func (e *Engine) Preload(ctx context.Context, text string) {
	t := strings.TrimSpace(text)
	if t == "" {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	req := e.requestLocked(t)
	requestID := e.currentIDLocked()
	e.mu.Unlock()

	e.client.Preload(ctx, requestID, req)
}

// IsPreloaded reports whether text is cached for the current settings.
func (e *Engine) IsPreloaded(text string) bool {
	e.mu.Lock()
	key := e.requestLocked(strings.TrimSpace(text)).Key()
	e.mu.Unlock()
	return e.cache.Contains(key)
}

// ClearPreloadCache drops cached audio, forgets failed preloads and the
// standby sink.
func (e *Engine) ClearPreloadCache() {
	e.cache.Clear()
	e.client.ClearFailed()

	e.mu.Lock()
	e.clearPreparedLocked()
	e.mu.Unlock()
}

// SetRate sets the speaking rate, clamped to [0.5, 2].
func (e *Engine) SetRate(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rate = clamp(rate, MinRate, MaxRate)
}

// SetPitch sets the pitch, clamped to [0.5, 2].
func (e *Engine) SetPitch(pitch float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pitch = clamp(pitch, MinPitch, MaxPitch)
}

// SetVolume sets the output volume, clamped to [0, 1], on the live and
// standby sinks.
func (e *Engine) SetVolume(volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = clamp(volume, MinVolume, MaxVolume)
	if e.sink != nil {
		e.sink.SetVolume(e.volume)
	}
	if e.prepared != nil {
		e.prepared.sink.SetVolume(e.volume)
	}
}

// SetVoice selects a voice. An empty id restores the configured default.
func (e *Engine) SetVoice(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id = strings.TrimSpace(id); id == "" {
		id = e.cfg.Voice
	}
	e.voice = id
}

// IsSpeaking reports whether an utterance is being requested or played.
func (e *Engine) IsSpeaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.state.Current()
	return cur == StateRequesting || cur == StatePlaying
}

// IsPaused reports whether playback is paused.
func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Current() == StatePaused
}

// State returns a snapshot of the engine.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{
		CurrentState:      e.state.Current(),
		Voice:             e.voice,
		Rate:              e.rate,
		Pitch:             e.pitch,
		Volume:            e.volume,
		Health:            e.health,
		PendingBoundaries: e.sched.Pending(),
	}
	if e.session != nil {
		st.RequestID = e.session.requestID
		st.Text = e.session.text
	}
	return st
}

// LastDiag returns the most recent diagnostic.
func (e *Engine) LastDiag() DiagnosticEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastDiag
}

// Cache exposes the synthesis cache.
func (e *Engine) Cache() *SynthesisCache { return e.cache }

// Close cancels playback and releases the sinks and cached audio.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.cancelLocked()
	e.closed = true
	sink := e.sink
	e.sink = nil
	e.mu.Unlock()
	e.drain()

	e.resets.Wait()
	e.cache.Clear()
	if sink != nil {
		return sink.Close()
	}
	return nil
}

func (e *Engine) requestLocked(text string) SynthesisRequest {
	return SynthesisRequest{Text: text, Voice: e.voice, Rate: e.rate, Pitch: e.pitch}
}

func (e *Engine) currentID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentIDLocked()
}

func (e *Engine) currentIDLocked() string {
	if e.session == nil {
		return ""
	}
	return e.session.requestID
}

// emitDiag records a diagnostic from outside the engine lock.
func (e *Engine) emitDiag(code, detail string) {
	e.mu.Lock()
	e.diagLocked(code, detail)
	e.mu.Unlock()
	e.drain()
}

// diagLocked records and queues a diagnostic and feeds the circuit
// breaker. Diagnostics are never dropped for superseded sessions.
func (e *Engine) diagLocked(code, detail string) {
	ev := DiagnosticEvent{
		Code:      code,
		Detail:    detail,
		RequestID: e.currentIDLocked(),
		At:        e.clock.Now(),
	}
	e.lastDiag = ev
	e.logger.Debug("diag", "code", code, "detail", detail, "request", ev.RequestID)
	e.enqueueLocked(delivery{run: func() { e.diagListeners.emit(ev) }})

	if e.breaker.record(ev) && e.provider != nil && !e.closed {
		e.resets.Add(1)
		go e.resetProvider()
	}
}

func (e *Engine) resetProvider() {
	defer e.resets.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	detail := "ok"
	if err := e.provider.ResetInstance(ctx); err != nil {
		detail = err.Error()
		e.logger.Warn("Provider reset failed", "error", err)
	}
	e.emitDiag(DiagProviderReset, detail)
}
