package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/dgnsrekt/ttsync/tts"
)

const (
	defaultEventBuffer = 64
	writeTimeout       = 5 * time.Second
)

// Event types sent over /events.
const (
	EventState    = "state"
	EventBoundary = "boundary"
	EventEnd      = "end"
	EventError    = "error"
	EventDiag     = "diag"
)

// Event is one websocket message. Exactly one payload field is set,
// matching Type; end events carry none.
type Event struct {
	Type     string               `json:"type"`
	State    *tts.State           `json:"state,omitempty"`
	Boundary *tts.Boundary        `json:"boundary,omitempty"`
	Error    *ErrorEvent          `json:"error,omitempty"`
	Diag     *tts.DiagnosticEvent `json:"diag,omitempty"`
}

// ErrorEvent is the wire form of a *tts.TTSError.
type ErrorEvent struct {
	Message   string         `json:"message"`
	Code      string         `json:"code"`
	Stage     string         `json:"stage"`
	Reason    string         `json:"reason,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Severity  string         `json:"severity"`
	Context   map[string]any `json:"context,omitempty"`
}

func newErrorEvent(err *tts.TTSError) *ErrorEvent {
	return &ErrorEvent{
		Message:   err.Error(),
		Code:      err.Code,
		Stage:     string(err.Stage),
		Reason:    err.Reason,
		RequestID: err.RequestID,
		Severity:  err.Severity.String(),
		Context:   err.Context,
	}
}

// hub fans engine events out to websocket clients. A client that falls more
// than buffer events behind is dropped rather than stalling the others.
type hub struct {
	buffer int
	logger *log.Logger

	mu      sync.Mutex
	clients map[chan Event]struct{}
	closed  bool
}

func newHub(buffer int) *hub {
	return &hub{buffer: buffer, clients: make(map[chan Event]struct{})}
}

func (h *hub) attach(e *tts.Engine) (detach func()) {
	unsubs := []func(){
		e.OnBoundary(func(b tts.Boundary) { h.broadcast(Event{Type: EventBoundary, Boundary: &b}) }),
		e.OnEnd(func() { h.broadcast(Event{Type: EventEnd}) }),
		e.OnError(func(err *tts.TTSError) { h.broadcast(Event{Type: EventError, Error: newErrorEvent(err)}) }),
		e.OnDiag(func(d tts.DiagnosticEvent) { h.broadcast(Event{Type: EventDiag, Diag: &d}) }),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// join registers a client. The channel is closed when the client is
// dropped or the hub closes.
func (h *hub) join() (chan Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan Event, h.buffer)
	h.clients[ch] = struct{}{}
	return ch, true
}

func (h *hub) leave(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
			delete(h.clients, ch)
			close(ch)
			if h.logger != nil {
				h.logger.Warn("Dropping slow event client", "buffer", h.buffer)
			}
		}
	}
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

// events upgrades to a websocket, sends the current state and then streams
// engine events until either side goes away.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", "err", err)
		return
	}

	ch, ok := s.hub.join()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "server closing")
		return
	}
	defer s.hub.leave(ch)

	// only control frames are expected from the client
	ctx := conn.CloseRead(r.Context())

	st := s.engine.State()
	if err := write(ctx, conn, Event{Type: EventState, State: &st}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "event stream closed")
				return
			}
			if err := write(ctx, conn, ev); err != nil {
				s.logger.Debug("Websocket write failed", "err", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
