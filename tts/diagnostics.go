package tts

import (
	"strings"
	"time"
)

// Diagnostic codes.
const (
	DiagProbeStart       = "probe_start"
	DiagProbeOK          = "probe_ok"
	DiagProbeFail        = "probe_fail"
	DiagProbeCached      = "probe_cached"
	DiagVoicesFetchStart = "voices_fetch_start"
	DiagVoicesFetchOK    = "voices_fetch_ok"
	DiagVoicesFetchFail  = "voices_fetch_fail"
	DiagSynthStart       = "synth_start"
	DiagSynthOK          = "synth_ok"
	DiagSynthFail        = "synth_fail"
	DiagSynthTimeout     = "synth_timeout"
	DiagDecodeOK         = "decode_ok"
	DiagDecodeFail       = "decode_fail"
	DiagPlayOK           = "play_ok"
	DiagPlayFail         = "play_fail"
	DiagCacheHit         = "cache_hit"
	DiagResumeTimeout    = "resume_timeout"
	DiagResumeFail       = "resume_fail"
	DiagPreloadFail      = "preload_fail"
	DiagProviderReset    = "provider_reset"
)

// DiagnosticEvent is one entry of the diagnostic stream.
type DiagnosticEvent struct {
	Code      string    `json:"code"`
	Detail    string    `json:"detail"`
	RequestID string    `json:"request_id,omitempty"`
	At        time.Time `json:"at"`
}

// IsFailure reports whether the event counts toward the circuit breaker.
func (d DiagnosticEvent) IsFailure() bool {
	return strings.Contains(d.Code, "fail") || strings.Contains(d.Code, "timeout")
}

// breaker counts failure diagnostics and trips once the threshold is
// reached. It is guarded by the engine lock.
type breaker struct {
	threshold int
	failures  int
}

// record returns true when ev trips the breaker. The counter restarts
// after a trip.
func (b *breaker) record(ev DiagnosticEvent) bool {
	if !ev.IsFailure() {
		return false
	}
	b.failures++
	if b.failures < b.threshold {
		return false
	}
	b.failures = 0
	return true
}

func (b *breaker) reset() { b.failures = 0 }
