// Package server exposes an Engine over HTTP so other programs can drive
// speech and follow word boundaries.
//
// Commands are plain JSON requests; the /events websocket streams
// boundary, end, error and diagnostic events as they happen.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/ttsync/internal/metrics"
	"github.com/dgnsrekt/ttsync/tts"
)

// DefaultAddr is where serve listens when no address is configured.
const DefaultAddr = "127.0.0.1:7317"

const shutdownTimeout = 5 * time.Second

// Server routes HTTP requests to one engine.
type Server struct {
	engine  *tts.Engine
	metrics *metrics.Collector
	logger  *log.Logger
	hub     *hub

	// background work such as preloads outlives the request that
	// started it but not the server
	bg     context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	detach func()
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records request metrics and serves /metrics from c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithEventBuffer sets how many events a websocket client may lag behind
// before it is disconnected.
func WithEventBuffer(n int) Option {
	return func(s *Server) { s.hub.buffer = max(n, 1) }
}

// New subscribes a server to engine's events.
func New(engine *tts.Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: log.Default().WithPrefix("server"),
		hub:    newHub(defaultEventBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub.logger = s.logger
	s.bg, s.stop = context.WithCancel(context.Background())
	s.detach = s.hub.attach(engine)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.healthz)
	r.Get("/probe", s.probe)
	r.Get("/voices", s.voices)
	r.Get("/state", s.state)
	r.Post("/speak", s.speak)
	r.Post("/preload", s.preload)
	r.Post("/prepare", s.prepare)
	r.Post("/pause", s.pause)
	r.Post("/resume", s.resume)
	r.Post("/cancel", s.cancel)
	r.Get("/settings", s.settings)
	r.Put("/settings", s.updateSettings)
	r.Get("/events", s.events)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.bg },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("Listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.hub.close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("Stopped")
	return nil
}

// Close stops background work and detaches from the engine. It does not
// close the engine.
func (s *Server) Close() error {
	s.stop()
	s.detach()
	s.hub.close()
	s.wg.Wait()
	return nil
}

// goBackground runs fn in the background with the server's context.
func (s *Server) goBackground(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.bg)
	}()
}

// observe logs every request and feeds the metrics collector.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.logger.Debug("Request", "method", r.Method, "route", route, "status", status, "elapsed", elapsed,
			"id", chimiddleware.GetReqID(r.Context()))
		if s.metrics != nil {
			s.metrics.ObserveHTTP(r.Method, route, status, elapsed)
		}
	})
}
