package engines

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/ttsync/tts"
)

// FallbackProvider wraps a primary provider with automatic fallback to a
// secondary one when the primary fails consistently.
type FallbackProvider struct {
	primary     tts.Provider
	fallback    tts.Provider
	maxFailures int
	logger      *log.Logger

	mu            sync.Mutex
	failures      int
	usingFallback bool
}

// NewFallbackProvider creates a provider that switches to fallback after
// maxFailures consecutive primary failures.
func NewFallbackProvider(primary, fallback tts.Provider, maxFailures int, logger *log.Logger) *FallbackProvider {
	if logger == nil {
		logger = log.Default().WithPrefix("fallback")
	}
	return &FallbackProvider{
		primary:     primary,
		fallback:    fallback,
		maxFailures: max(maxFailures, 1),
		logger:      logger,
	}
}

func (f *FallbackProvider) active() tts.Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usingFallback {
		return f.fallback
	}
	return f.primary
}

func (f *FallbackProvider) switchToFallback(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.usingFallback {
		f.usingFallback = true
		f.logger.Warn("Switching to fallback provider", "reason", reason)
	}
}

// Probe checks the active provider. An unavailable primary hands over to
// an available fallback.
func (f *FallbackProvider) Probe(ctx context.Context, opts tts.ProbeOptions) (tts.ProbeResult, error) {
	p := f.active()
	res, err := p.Probe(ctx, opts)
	if p == f.fallback || (err == nil && res.OK && res.Available) {
		return res, err
	}

	fres, ferr := f.fallback.Probe(ctx, opts)
	if ferr == nil && fres.OK && fres.Available {
		f.switchToFallback("primary probe failed")
		return fres, nil
	}
	return res, err
}

// Voices returns voices from the active provider.
func (f *FallbackProvider) Voices(ctx context.Context) ([]tts.Voice, error) {
	return f.active().Voices(ctx)
}

// Synthesize uses the active provider. Once the primary has failed
// maxFailures times in a row the request is retried on the fallback and
// every later request goes there too.
func (f *FallbackProvider) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	if p := f.active(); p == f.fallback {
		return p.Synthesize(ctx, req)
	}

	res, err := f.primary.Synthesize(ctx, req)
	if err == nil {
		f.mu.Lock()
		if f.failures > 0 {
			f.logger.Info("Primary provider recovered", "failures", f.failures)
			f.failures = 0
		}
		f.mu.Unlock()
		return res, nil
	}
	// the caller gave up; not the provider's fault
	if errors.Is(err, context.Canceled) {
		return nil, err
	}

	f.mu.Lock()
	f.failures++
	failures := f.failures
	f.mu.Unlock()
	f.logger.Warn("Primary provider failed", "attempt", failures, "max", f.maxFailures, "error", err)

	if failures < f.maxFailures {
		return nil, err
	}
	f.switchToFallback(fmt.Sprintf("%d consecutive failures", failures))

	res, ferr := f.fallback.Synthesize(ctx, req)
	if ferr != nil {
		return nil, fmt.Errorf("both providers failed: %w", ferr)
	}
	return res, nil
}

// ResetInstance resets both providers and returns to the primary.
func (f *FallbackProvider) ResetInstance(ctx context.Context) error {
	f.mu.Lock()
	f.failures = 0
	f.usingFallback = false
	f.mu.Unlock()
	f.logger.Info("Reset to primary provider")

	return errors.Join(f.primary.ResetInstance(ctx), f.fallback.ResetInstance(ctx))
}

// UsingFallback reports whether requests currently go to the fallback.
func (f *FallbackProvider) UsingFallback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usingFallback
}

// Status describes the provider in use.
func (f *FallbackProvider) Status() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.usingFallback {
		return fmt.Sprintf("Using fallback provider (primary failed %d times)", f.failures)
	}
	return fmt.Sprintf("Using primary provider (failures: %d/%d)", f.failures, f.maxFailures)
}
