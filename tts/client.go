package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/ttsync/internal/clock"
)

// DefaultMIMEType is assumed for audio a provider returns without a type.
const DefaultMIMEType = "audio/mpeg"

// SynthesisObserver is told about every completed provider call. Metrics
// collectors implement it.
type SynthesisObserver interface {
	ObserveSynthesis(kind string, d time.Duration, err error)
}

// Client performs bounded synthesis calls and speculative preloads into a
// SynthesisCache.
type Client struct {
	provider Provider
	cache    *SynthesisCache
	clock    clock.Clock
	logger   *log.Logger
	observer SynthesisObserver

	timeout time.Duration
	delays  []time.Duration
	limiter *rate.Limiter

	// diag reports preload exhaustion; current returns the request id of
	// the engine's active session.
	diag    func(code, detail string)
	current func() string

	mu       sync.Mutex
	inflight map[CacheKey]struct{}
	failed   map[CacheKey]struct{}
}

// NewClient builds a client from the synthesis section of the config.
func NewClient(provider Provider, cache *SynthesisCache, cfg SynthesisConfig, clk clock.Clock) *Client {
	if clk == nil {
		clk = clock.Real()
	}
	burst := max(cfg.PreloadBurst, 1)
	limit := rate.Limit(cfg.PreloadRPS)
	if cfg.PreloadRPS <= 0 {
		limit = rate.Inf
	}
	return &Client{
		provider: provider,
		cache:    cache,
		clock:    clk,
		logger:   log.Default().WithPrefix("synth"),
		timeout:  cfg.Timeout,
		delays:   cfg.PreloadDelays,
		limiter:  rate.NewLimiter(limit, burst),
		diag:     func(string, string) {},
		current:  func() string { return "" },
		inflight: make(map[CacheKey]struct{}),
		failed:   make(map[CacheKey]struct{}),
	}
}

// Synthesize renders req, bounded by the configured timeout. Errors wrap
// ErrSynthesisTimeout, ErrSynthesisRejected or ErrSynthesisUnavailable.
func (c *Client) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	return c.synthesize(ctx, req, "foreground")
}

func (c *Client) synthesize(ctx context.Context, req SynthesisRequest, kind string) (res *SynthesisResult, err error) {
	if c.provider == nil {
		return nil, ErrSynthesisUnavailable
	}

	start := time.Now()
	if c.observer != nil {
		defer func() { c.observer.ObserveSynthesis(kind, time.Since(start), err) }()
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if c.timeout > 0 {
		timer := c.clock.AfterFunc(c.timeout, func() { cancel(ErrSynthesisTimeout) })
		defer timer.Stop()
	}

	type outcome struct {
		res *SynthesisResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		r, e := c.provider.Synthesize(ctx, req)
		done <- outcome{r, e}
	}()

	// a provider that ignores ctx still cannot hold the caller past the
	// deadline
	select {
	case out := <-done:
		res, err = out.res, out.err
	case <-ctx.Done():
		err = context.Cause(ctx)
	}

	if err != nil && errors.Is(context.Cause(ctx), ErrSynthesisTimeout) {
		return nil, fmt.Errorf("%w after %v", ErrSynthesisTimeout, c.timeout)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrSynthesisTimeout, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if classify(err) == ErrSynthesisRejected && !errors.Is(err, ErrSynthesisRejected) {
			return nil, fmt.Errorf("%w: %w", ErrSynthesisRejected, err)
		}
		return nil, err
	}
	if !res.HasAudio() {
		return nil, fmt.Errorf("%w: empty audio payload", ErrSynthesisRejected)
	}
	return res, nil
}

// Entry converts a provider result into a cache entry. Base64 payloads are
// decoded here; a malformed payload wraps ErrDecodeFailure.
func (c *Client) Entry(res *SynthesisResult) (CacheEntry, error) {
	entry := CacheEntry{Boundaries: res.Boundaries}

	mime := res.MIMEType
	if mime == "" {
		mime = DefaultMIMEType
	}

	switch {
	case res.AudioURL != "":
		entry.Source.URL = res.AudioURL
	case len(res.Audio) > 0:
		entry.Source.Blob = NewBlob(res.Audio, mime)
	default:
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(res.AudioBase64))
		if err != nil {
			return CacheEntry{}, fmt.Errorf("%w: invalid audio payload: %w", ErrDecodeFailure, err)
		}
		if len(data) == 0 {
			return CacheEntry{}, fmt.Errorf("%w: empty audio payload", ErrDecodeFailure)
		}
		entry.Source.Blob = NewBlob(data, mime)
	}
	return entry, nil
}

// Preload synthesizes req into the cache without playing it. Keys that are
// cached, already being preloaded or known to fail are skipped. Transient
// failures are retried with the configured backoff; once every attempt has
// failed the key is never preloaded again and a preload_fail diagnostic is
// emitted. The preload stops early when requestID stops being the current
// session; an empty requestID disables that check.
func (c *Client) Preload(ctx context.Context, requestID string, req SynthesisRequest) {
	key := req.Key()

	c.mu.Lock()
	if c.provider == nil || c.cache.Contains(key) {
		c.mu.Unlock()
		return
	}
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return
	}
	if _, failed := c.failed[key]; failed {
		c.mu.Unlock()
		return
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}()

	superseded := func() bool {
		return requestID != "" && c.current() != requestID
	}

	var lastErr error
	for attempt, delay := range c.delays {
		if attempt > 0 || delay > 0 {
			if superseded() {
				return
			}
			select {
			case <-c.clock.After(delay):
			case <-ctx.Done():
				return
			}
			if superseded() || c.cache.Contains(key) {
				return
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return
		}

		res, err := c.synthesize(ctx, req, "preload")
		if err == nil {
			var entry CacheEntry
			entry, err = c.Entry(res)
			if err == nil {
				if superseded() {
					entry.release()
					return
				}
				c.cache.Set(key, entry)
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		lastErr = err
		c.logger.Debug("Preload attempt failed", "attempt", attempt+1, "len", len(req.Text), "error", err)
	}

	c.mu.Lock()
	c.failed[key] = struct{}{}
	c.mu.Unlock()

	c.logger.Warn("Preload exhausted retries", "len", len(req.Text), "error", lastErr)
	c.diag(DiagPreloadFail, fmt.Sprintf("len=%d err=%v", len(req.Text), lastErr))
}

// Failed reports whether key exhausted its preload retries.
func (c *Client) Failed(key CacheKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.failed[key]
	return ok
}

// ClearFailed forgets every permanently failed key.
func (c *Client) ClearFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = make(map[CacheKey]struct{})
}
