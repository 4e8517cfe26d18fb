package tts

import (
	"errors"
	"fmt"
)

// Error taxonomy reported through OnError and diagnostics.
var (
	// ErrProviderUnavailable means the provider integration is missing or
	// its probe failed.
	ErrProviderUnavailable = errors.New("synthesis provider unavailable")
	// ErrSynthesisTimeout means the provider did not answer in time.
	ErrSynthesisTimeout = errors.New("synthesis timed out")
	// ErrSynthesisRejected means the provider answered with a failure or an
	// empty payload.
	ErrSynthesisRejected = errors.New("synthesis rejected")
	// ErrSynthesisUnavailable means no provider is configured at all.
	ErrSynthesisUnavailable = errors.New("synthesis unavailable")
	// ErrDecodeFailure means the payload could not be turned into audio.
	ErrDecodeFailure = errors.New("audio decode failed")
	// ErrPlaybackFailure means the audio sink rejected play.
	ErrPlaybackFailure = errors.New("playback failed")
	// ErrResumeTimeout means a resumed sink neither started nor failed in
	// time.
	ErrResumeTimeout = errors.New("resume timed out")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")

	// Control errors
	ErrEmptyText    = errors.New("empty text")
	ErrInvalidState = errors.New("invalid state for operation")
	ErrEngineClosed = errors.New("engine has been closed")
)

// IsRecoverableError checks if an error is recoverable, meaning a later
// speak may succeed without operator action.
func IsRecoverableError(err error) bool {
	if err == nil {
		return true
	}

	switch {
	case errors.Is(err, ErrSynthesisUnavailable),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrEngineClosed):
		return false
	}

	return true
}

// ErrorSeverity represents the severity of an error.
type ErrorSeverity int

const (
	// SeverityInfo is for informational messages.
	SeverityInfo ErrorSeverity = iota
	// SeverityWarning is for warnings that don't prevent operation.
	SeverityWarning
	// SeverityError is for errors that prevent normal operation.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Stage names the pipeline step that failed.
type Stage string

const (
	StageProbe      Stage = "probe"
	StageSynthesize Stage = "synthesize"
	StageDecode     Stage = "decode"
	StagePlay       Stage = "play"
	StageResume     Stage = "resume"
	StagePreload    Stage = "preload"
)

// TTSError is the payload delivered to OnError listeners.
type TTSError struct {
	Err       error         // one of the sentinels above
	Code      string        // diagnostic code emitted alongside
	Stage     Stage         // pipeline step
	Reason    string        // provider or sink detail
	RequestID string        // session the failure belongs to
	Severity  ErrorSeverity // Severity of the error
	Context   map[string]any
}

// Error implements the error interface.
func (e *TTSError) Error() string {
	if e.Err == nil {
		return "unknown TTS error"
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Err, e.Reason)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *TTSError) Unwrap() error {
	return e.Err
}

// IsRecoverable checks if the error is recoverable.
func (e *TTSError) IsRecoverable() bool {
	return IsRecoverableError(e.Err)
}

// NewTTSError creates an error for a failed stage.
func NewTTSError(err error, stage Stage, code string) *TTSError {
	return &TTSError{
		Err:      err,
		Stage:    stage,
		Code:     code,
		Severity: SeverityError,
	}
}

// WithReason records the provider or sink detail.
func (e *TTSError) WithReason(reason string) *TTSError {
	e.Reason = reason
	return e
}

// WithSeverity sets the error severity.
func (e *TTSError) WithSeverity(severity ErrorSeverity) *TTSError {
	e.Severity = severity
	return e
}

// WithContext adds context to the error.
func (e *TTSError) WithContext(key string, value any) *TTSError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// classify maps a synthesis error onto the taxonomy. Errors already wrapping
// a sentinel keep it; everything else counts as a rejection.
func classify(err error) error {
	for _, sentinel := range []error{
		ErrSynthesisTimeout,
		ErrSynthesisUnavailable,
		ErrProviderUnavailable,
		ErrDecodeFailure,
		ErrSynthesisRejected,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return ErrSynthesisRejected
}
