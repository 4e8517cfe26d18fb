package tts

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/ttsync/tts/align"
)

// Provider is a speech synthesis backend.
type Provider interface {
	// Probe checks whether the provider can synthesize right now.
	Probe(ctx context.Context, opts ProbeOptions) (ProbeResult, error)

	// Voices lists the voices the provider offers.
	Voices(ctx context.Context) ([]Voice, error)

	// Synthesize renders text to audio plus word boundaries. A provider
	// failure is returned as an error; an ok response without audio is
	// treated as a rejection by the caller.
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)

	// ResetInstance tears down and rebuilds the provider connection.
	ResetInstance(ctx context.Context) error
}

// ProbeOptions tune a health probe.
type ProbeOptions struct {
	// RequireSynthesis asks the provider to prove it can render audio,
	// not only that it is reachable.
	RequireSynthesis bool
	Timeout          time.Duration
}

// ProbeResult is the provider's answer to a probe.
type ProbeResult struct {
	OK        bool           `json:"ok"`
	Available bool           `json:"available"`
	Reason    string         `json:"reason,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Voice represents a provider voice.
type Voice struct {
	ID       string `json:"voice_uri"`
	Name     string `json:"name"`
	Language string `json:"lang"`
	Gender   string `json:"gender,omitempty"`
	Default  bool   `json:"default,omitempty"`
}

// SynthesisRequest is one utterance to render.
type SynthesisRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Rate  float64 `json:"rate"`
	Pitch float64 `json:"pitch"`
}

// Key returns the cache key for the request.
func (r SynthesisRequest) Key() CacheKey {
	return CacheKey{Voice: r.Voice, Rate: r.Rate, Pitch: r.Pitch, Text: r.Text}
}

// BoundaryEvent is a provider word boundary: the spoken word and its offset
// into the audio.
type BoundaryEvent = align.Event

// SynthesisResult is rendered audio in exactly one of three shapes: a URL
// the sink can open, raw bytes, or base64 encoded bytes.
type SynthesisResult struct {
	AudioURL    string
	Audio       []byte
	AudioBase64 string
	MIMEType    string
	Boundaries  []BoundaryEvent
}

// HasAudio reports whether any audio payload is present.
func (r *SynthesisResult) HasAudio() bool {
	return r != nil && (r.AudioURL != "" || len(r.Audio) > 0 || r.AudioBase64 != "")
}

// Blob is an in-memory audio resource. Releasing it drops the bytes and runs
// the release hook once.
type Blob struct {
	mu        sync.Mutex
	data      []byte
	mime      string
	released  bool
	onRelease func()
}

// NewBlob wraps audio bytes of the given MIME type.
func NewBlob(data []byte, mime string) *Blob {
	return &Blob{data: data, mime: mime}
}

// Bytes returns the audio, or nil once released.
func (b *Blob) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// MIME returns the audio MIME type.
func (b *Blob) MIME() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mime
}

// Size returns the length of the audio in bytes.
func (b *Blob) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// OnRelease registers a hook run when the blob is released.
func (b *Blob) OnRelease(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onRelease = fn
}

// Release frees the audio. It is safe to call more than once.
func (b *Blob) Release() {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.released = true
	b.data = nil
	fn := b.onRelease
	b.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Released reports whether Release has been called.
func (b *Blob) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// AudioSource is what a sink plays: a URL or a blob.
type AudioSource struct {
	URL  string
	Blob *Blob
}

// IsZero reports whether the source is empty.
func (s AudioSource) IsZero() bool { return s.URL == "" && s.Blob == nil }

// SinkListener receives sink events. Callbacks arrive on the sink's own
// goroutine, never from inside a sink method.
type SinkListener struct {
	OnMetadata func(duration time.Duration)
	OnEnded    func()
	OnError    func(err error)
}

// AudioSink is a single playable audio output.
type AudioSink interface {
	// SetSource loads audio. Metadata is reported through the listener
	// once the duration is known.
	SetSource(src AudioSource) error

	SetListener(l SinkListener)

	// Play starts or resumes playback. done receives nil once audio is
	// running, or the reason it could not start. done may be called
	// before Play returns, or never if the platform stalls.
	Play(done func(error))

	Pause()

	// Stop halts playback and unloads the source.
	Stop()

	Seek(pos time.Duration) error
	Position() time.Duration

	// Ready reports whether a source is loaded and playable.
	Ready() bool

	SetVolume(v float64)
	Close() error
}

// SinkFactory creates audio sinks.
type SinkFactory func() (AudioSink, error)

// Sentence represents a parsed sentence with metadata.
type Sentence struct {
	Index    int           // Index in the sentence array
	Text     string        // Plain text content
	Markdown string        // Original markdown
	Start    int           // Start position in original content
	End      int           // End position in original content
	Duration time.Duration // Estimated speaking duration
}

// SentenceParser defines the interface for extracting sentences from markdown.
type SentenceParser interface {
	// Parse extracts sentences from markdown content.
	Parse(markdown string) []Sentence

	// EstimateDuration estimates the speaking duration for text.
	EstimateDuration(text string) time.Duration
}
