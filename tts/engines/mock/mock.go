// Package mock provides a scripted synthesis provider for tests and demos.
//
// It renders silence as long as the text would take to speak, with word
// boundaries estimated from the text. Latency, failures and availability
// can be scripted.
package mock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/ttsync/internal/clock"
	"github.com/dgnsrekt/ttsync/tts"
	"github.com/dgnsrekt/ttsync/tts/audio"
	"github.com/dgnsrekt/ttsync/tts/engines"
)

// ErrMockUnavailable is returned while the provider is marked unavailable.
var ErrMockUnavailable = errors.New("mock provider unavailable")

// tail is silence appended after the last word so its boundary is reached
// before the audio ends.
const tail = 200 * time.Millisecond

// Provider is a deterministic tts.Provider.
type Provider struct {
	cfg   tts.MockConfig
	clock clock.Clock

	mu        sync.Mutex
	failure   error
	available bool
	gate      chan struct{}
	voices    []tts.Voice

	calls  atomic.Int32
	probes atomic.Int32
	resets atomic.Int32
}

// Option configures a Provider.
type Option func(*Provider)

// WithClock sets the clock used for simulated latency.
func WithClock(c clock.Clock) Option {
	return func(p *Provider) { p.clock = c }
}

// New creates an available mock provider.
func New(cfg tts.MockConfig, opts ...Option) *Provider {
	if cfg.WordsPerMinute <= 0 {
		cfg.WordsPerMinute = engines.DefaultWordsPerMinute
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	p := &Provider{
		cfg:       cfg,
		clock:     clock.Real(),
		available: true,
		voices: []tts.Voice{
			{ID: "mock-voice-1", Name: "Mock Voice", Language: "en-US", Gender: "neutral", Default: true},
			{ID: "mock-voice-2", Name: "Mock Voice Two", Language: "en-GB", Gender: "female"},
			{ID: "mock-voice-3", Name: "Voix Factice", Language: "fr-FR", Gender: "male"},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe reports the scripted availability.
func (p *Provider) Probe(_ context.Context, opts tts.ProbeOptions) (tts.ProbeResult, error) {
	p.probes.Add(1)

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available {
		return tts.ProbeResult{OK: true, Available: false, Reason: "mock_unavailable"}, nil
	}
	if opts.RequireSynthesis && p.failure != nil {
		return tts.ProbeResult{
			OK:        true,
			Available: false,
			Reason:    p.failure.Error(),
			Details:   map[string]any{"error_code": "synthesis_failed"},
		}, nil
	}
	return tts.ProbeResult{OK: true, Available: true}, nil
}

// Voices returns the fixed voice list.
func (p *Provider) Voices(context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]tts.Voice(nil), p.voices...), nil
}

// Synthesize renders silence with estimated word boundaries.
func (p *Provider) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	p.calls.Add(1)

	p.mu.Lock()
	failure, available, gate := p.failure, p.available, p.gate
	p.mu.Unlock()

	if p.cfg.Latency > 0 {
		select {
		case <-p.clock.After(p.cfg.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	switch {
	case !available:
		return nil, tts.ErrProviderUnavailable
	case failure != nil:
		return nil, failure
	case strings.TrimSpace(req.Text) == "":
		return nil, tts.ErrEmptyText
	}

	boundaries, d := engines.EstimateBoundaries(req.Text, req.Rate, p.cfg.WordsPerMinute)
	pcm := audio.Silence(d+tail, p.cfg.SampleRate, 1)
	return &tts.SynthesisResult{
		Audio:      audio.EncodeWAV(pcm),
		MIMEType:   "audio/wav",
		Boundaries: boundaries,
	}, nil
}

// ResetInstance counts resets.
func (p *Provider) ResetInstance(context.Context) error {
	p.resets.Add(1)
	return nil
}

// SetFailure makes every synthesis fail with err. nil restores success.
func (p *Provider) SetFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failure = err
}

// SetAvailable toggles availability.
func (p *Provider) SetAvailable(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = ok
}

// Hold makes synthesis block until Release.
func (p *Provider) Hold() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gate == nil {
		p.gate = make(chan struct{})
	}
}

// Release unblocks held and future syntheses.
func (p *Provider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gate != nil {
		close(p.gate)
		p.gate = nil
	}
}

// Calls returns the number of Synthesize calls.
func (p *Provider) Calls() int { return int(p.calls.Load()) }

// Probes returns the number of Probe calls.
func (p *Provider) Probes() int { return int(p.probes.Load()) }

// Resets returns the number of ResetInstance calls.
func (p *Provider) Resets() int { return int(p.resets.Load()) }
