package tts

import (
	"context"
	"fmt"
)

// Health is the cached result of the last provider probe.
type Health struct {
	Known     bool   `json:"known"`
	Available bool   `json:"available"`
	Reason    string `json:"reason"`
}

const reasonUninitialized = "probe_uninitialized"

// Probe checks provider availability. A provider already confirmed
// available is not probed again until ResetHealth. A successful probe also
// refreshes the voice list.
func (e *Engine) Probe(ctx context.Context) Health {
	e.mu.Lock()
	if e.health.Known && e.health.Available {
		e.diagLocked(DiagProbeCached, "skipped")
		h := e.health
		e.mu.Unlock()
		e.drain()
		return h
	}
	e.diagLocked(DiagProbeStart, "")
	e.mu.Unlock()
	e.drain()

	h := Health{Known: true}
	var errorCode string

	if e.provider == nil {
		h.Reason = "provider_missing"
	} else {
		opts := ProbeOptions{
			RequireSynthesis: e.cfg.Health.RequireSynthesis,
			Timeout:          e.cfg.Health.ProbeTimeout,
		}
		pctx := ctx
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}

		res, err := e.provider.Probe(pctx, opts)
		switch {
		case err != nil:
			h.Reason = err.Error()
		case res.OK && res.Available:
			h.Available = true
			h.Reason = DiagProbeOK
		default:
			h.Reason = res.Reason
			if h.Reason == "" {
				h.Reason = "probe_failed"
			}
			if code, ok := res.Details["error_code"]; ok {
				errorCode = fmt.Sprint(code)
			}
		}
	}

	e.mu.Lock()
	e.health = h
	if h.Available {
		e.diagLocked(DiagProbeOK, h.Reason)
	} else {
		e.diagLocked(DiagProbeFail, h.Reason)
		if errorCode != "" {
			e.diagLocked(DiagProbeFail, errorCode)
		}
	}
	e.mu.Unlock()
	e.drain()

	if h.Available {
		e.LoadVoices(ctx)
	}
	return h
}

// LoadVoices fetches the provider's voices. Voices without an id are
// dropped. On failure the list is emptied.
func (e *Engine) LoadVoices(ctx context.Context) []Voice {
	e.mu.Lock()
	e.diagLocked(DiagVoicesFetchStart, "")
	e.mu.Unlock()
	e.drain()

	var (
		voices []Voice
		reason string
	)
	if e.provider == nil {
		reason = "provider_missing"
	} else {
		all, err := e.provider.Voices(ctx)
		if err != nil {
			reason = err.Error()
		}
		for _, v := range all {
			if v.ID == "" {
				continue
			}
			if v.Name == "" {
				v.Name = v.ID
			}
			voices = append(voices, v)
		}
		if err == nil && len(voices) == 0 {
			reason = "voices_empty"
		}
	}

	e.mu.Lock()
	e.voices = voices
	if reason != "" {
		e.diagLocked(DiagVoicesFetchFail, reason)
	} else {
		e.diagLocked(DiagVoicesFetchOK, fmt.Sprint(len(voices)))
	}
	e.mu.Unlock()
	e.drain()

	return voices
}

// Voices returns the last fetched voice list.
func (e *Engine) Voices() []Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Voice(nil), e.voices...)
}

// Health returns the cached probe result.
func (e *Engine) Health() Health {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.health
}

// IsAvailable reports whether the last probe confirmed the provider.
func (e *Engine) IsAvailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.health.Known && e.health.Available
}

// ResetHealth forgets the cached probe so the next Probe asks the provider.
func (e *Engine) ResetHealth() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.health = Health{Reason: reasonUninitialized}
}
