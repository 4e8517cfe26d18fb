package tts

import "sync"

// Granularity of boundary events.
const GranularityWord = "word"

// Boundary is delivered to OnBoundary listeners when a spoken word is
// reached. Text[CharIndex:CharIndex+CharLength] is the word; CharLength is
// zero when the provider word could not be located.
type Boundary struct {
	RequestID   string `json:"request_id"`
	Index       int    `json:"index"`
	CharIndex   int    `json:"char_index"`
	CharLength  int    `json:"char_length"`
	OffsetMs    int64  `json:"offset_ms"`
	Granularity string `json:"granularity"`
}

// listeners is a registry of callbacks of one event type.
type listeners[T any] struct {
	mu   sync.Mutex
	next int
	fns  []listener[T]
}

type listener[T any] struct {
	id int
	fn func(T)
}

// add registers fn and returns a function removing it again.
func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	id := l.next
	l.fns = append(l.fns, listener[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, entry := range l.fns {
				if entry.id == id {
					l.fns = append(l.fns[:i:i], l.fns[i+1:]...)
					return
				}
			}
		})
	}
}

func (l *listeners[T]) emit(v T) {
	l.mu.Lock()
	fns := make([]func(T), len(l.fns))
	for i, entry := range l.fns {
		fns[i] = entry.fn
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (l *listeners[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

// delivery is a queued listener invocation. Session-bound deliveries carry
// the request id they belong to and are dropped once it is superseded.
type delivery struct {
	requestID string
	bound     bool
	run       func()
}

// OnBoundary registers a boundary listener.
func (e *Engine) OnBoundary(fn func(Boundary)) (unsubscribe func()) {
	return e.boundaryListeners.add(fn)
}

// OnEnd registers a listener for the natural end of an utterance.
func (e *Engine) OnEnd(fn func()) (unsubscribe func()) {
	return e.endListeners.add(func(struct{}) { fn() })
}

// OnError registers a listener for failed utterances.
func (e *Engine) OnError(fn func(*TTSError)) (unsubscribe func()) {
	return e.errorListeners.add(fn)
}

// OnDiag registers a listener for the diagnostic stream.
func (e *Engine) OnDiag(fn func(DiagnosticEvent)) (unsubscribe func()) {
	return e.diagListeners.add(fn)
}

// enqueueLocked queues a delivery. Must be called with e.mu held.
func (e *Engine) enqueueLocked(d delivery) {
	e.pending = append(e.pending, d)
}

// drain delivers queued events in order. It must be called without e.mu
// held. A drain started from inside a listener only queues; the outer drain
// picks the new events up.
func (e *Engine) drain() {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return
	}
	e.draining = true

	for len(e.pending) > 0 {
		d := e.pending[0]
		e.pending[0] = delivery{}
		e.pending = e.pending[1:]

		if d.bound && !e.deliverableLocked(d.requestID) {
			continue
		}

		e.mu.Unlock()
		d.run()
		e.mu.Lock()
	}

	e.pending = nil
	e.draining = false
	e.mu.Unlock()
}

// deliverableLocked reports whether events for requestID may still reach
// listeners: the session is current, or it just finished on its own.
func (e *Engine) deliverableLocked(requestID string) bool {
	if requestID == "" {
		return false
	}
	if e.session != nil && e.session.requestID == requestID {
		return true
	}
	return e.finishedID == requestID
}
