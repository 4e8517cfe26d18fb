package tts

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Bounds for user-adjustable speech parameters.
const (
	MinRate   = 0.5
	MaxRate   = 2.0
	MinPitch  = 0.5
	MaxPitch  = 2.0
	MinVolume = 0.0
	MaxVolume = 1.0
)

// Config contains all engine configuration options. Defaults come from
// DefaultConfig; the env tags name the variables ApplyEnv reads.
type Config struct {
	Engine string  `yaml:"engine" env:"TTSYNC_ENGINE"`
	Voice  string  `yaml:"voice" env:"TTSYNC_VOICE"`
	Rate   float64 `yaml:"rate" env:"TTSYNC_RATE"`
	Pitch  float64 `yaml:"pitch" env:"TTSYNC_PITCH"`
	Volume float64 `yaml:"volume" env:"TTSYNC_VOLUME"`

	Synthesis SynthesisConfig `yaml:"synthesis"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Cache     CacheConfig     `yaml:"cache"`
	Health    HealthConfig    `yaml:"health"`

	// Provider-specific configurations
	Exec   ExecConfig   `yaml:"exec"`
	Piper  PiperConfig  `yaml:"piper"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Mock   MockConfig   `yaml:"mock"`
}

// SynthesisConfig bounds foreground and speculative synthesis.
type SynthesisConfig struct {
	Timeout       time.Duration   `yaml:"timeout" env:"TTSYNC_SYNTHESIS_TIMEOUT"`
	PreloadDelays []time.Duration `yaml:"preload_delays" env:"TTSYNC_PRELOAD_DELAYS"`
	PreloadRPS    float64         `yaml:"preload_rps" env:"TTSYNC_PRELOAD_RPS"`
	PreloadBurst  int             `yaml:"preload_burst" env:"TTSYNC_PRELOAD_BURST"`
}

// PlaybackConfig contains audio output settings.
type PlaybackConfig struct {
	ResumeTimeout time.Duration `yaml:"resume_timeout" env:"TTSYNC_RESUME_TIMEOUT"`
	SampleRate    int           `yaml:"sample_rate" env:"TTSYNC_SAMPLE_RATE"`
	BufferSize    time.Duration `yaml:"buffer_size" env:"TTSYNC_BUFFER_SIZE"`
}

// CacheConfig sizes the in-memory and on-disk audio caches.
type CacheConfig struct {
	Capacity         int    `yaml:"capacity" env:"TTSYNC_CACHE_CAPACITY"`
	DiskEnabled      bool   `yaml:"disk_enabled" env:"TTSYNC_CACHE_DISK"`
	DiskPath         string `yaml:"disk_path" env:"TTSYNC_CACHE_PATH"`
	DiskCapacityMB   int64  `yaml:"disk_capacity_mb" env:"TTSYNC_CACHE_DISK_MB"`
	CompressionLevel int    `yaml:"compression_level" env:"TTSYNC_CACHE_COMPRESSION"`
}

// HealthConfig tunes probing and the failure circuit breaker.
type HealthConfig struct {
	ProbeTimeout     time.Duration `yaml:"probe_timeout" env:"TTSYNC_PROBE_TIMEOUT"`
	RequireSynthesis bool          `yaml:"require_synthesis" env:"TTSYNC_PROBE_REQUIRE_SYNTHESIS"`
	FailureThreshold int           `yaml:"failure_threshold" env:"TTSYNC_FAILURE_THRESHOLD"`
}

// ExecConfig configures the subprocess provider.
type ExecConfig struct {
	Command string        `yaml:"command" env:"TTSYNC_EXEC_COMMAND"`
	Timeout time.Duration `yaml:"timeout" env:"TTSYNC_EXEC_TIMEOUT"`
}

// PiperConfig configures the local Piper provider. Voices are the .onnx
// models in ModelDir; Model is the one used when no voice is selected.
type PiperConfig struct {
	Binary     string        `yaml:"binary" env:"TTSYNC_PIPER_BINARY"`
	Model      string        `yaml:"model" env:"TTSYNC_PIPER_MODEL"`
	ModelDir   string        `yaml:"model_dir" env:"TTSYNC_PIPER_MODEL_DIR"`
	SampleRate int           `yaml:"sample_rate" env:"TTSYNC_PIPER_SAMPLE_RATE"`
	Timeout    time.Duration `yaml:"timeout" env:"TTSYNC_PIPER_TIMEOUT"`
}

// OpenAIConfig configures the OpenAI speech provider.
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL string        `yaml:"base_url" env:"TTSYNC_OPENAI_BASE_URL"`
	Model   string        `yaml:"model" env:"TTSYNC_OPENAI_MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"TTSYNC_OPENAI_TIMEOUT"`
	RPS     float64       `yaml:"rps" env:"TTSYNC_OPENAI_RPS"`
}

// MockConfig contains mock provider settings for testing and demos.
type MockConfig struct {
	Latency        time.Duration `yaml:"latency" env:"TTSYNC_MOCK_LATENCY"`
	WordsPerMinute int           `yaml:"words_per_minute" env:"TTSYNC_MOCK_WORDS_PER_MINUTE"`
	SampleRate     int           `yaml:"sample_rate" env:"TTSYNC_MOCK_SAMPLE_RATE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine: "mock",
		Voice:  "",
		Rate:   1.0,
		Pitch:  1.0,
		Volume: 1.0,

		Synthesis: DefaultSynthesisConfig(),
		Playback:  DefaultPlaybackConfig(),
		Cache:     DefaultCacheConfig(),
		Health:    DefaultHealthConfig(),

		Exec:   DefaultExecConfig(),
		Piper:  DefaultPiperConfig(),
		OpenAI: DefaultOpenAIConfig(),
		Mock:   DefaultMockConfig(),
	}
}

// DefaultSynthesisConfig returns default synthesis bounds.
func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{
		Timeout:       15 * time.Second,
		PreloadDelays: []time.Duration{0, 500 * time.Millisecond, time.Second},
		PreloadRPS:    4,
		PreloadBurst:  2,
	}
}

// DefaultPlaybackConfig returns default playback settings.
func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		ResumeTimeout: 5 * time.Second,
		SampleRate:    24000,
		BufferSize:    100 * time.Millisecond,
	}
}

// DefaultCacheConfig returns default cache sizes.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Capacity:         50,
		DiskEnabled:      true,
		DiskCapacityMB:   500,
		CompressionLevel: 3,
	}
}

// DefaultHealthConfig returns default probe settings.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		ProbeTimeout:     5 * time.Second,
		RequireSynthesis: true,
		FailureThreshold: 2,
	}
}

// DefaultExecConfig returns default subprocess settings.
func DefaultExecConfig() ExecConfig {
	return ExecConfig{Timeout: 30 * time.Second}
}

// DefaultPiperConfig returns default Piper settings.
func DefaultPiperConfig() PiperConfig {
	return PiperConfig{
		Binary:     "piper",
		SampleRate: 22050,
		Timeout:    30 * time.Second,
	}
}

// DefaultOpenAIConfig returns default OpenAI settings.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:   "tts-1",
		Timeout: 30 * time.Second,
		RPS:     2,
	}
}

// DefaultMockConfig returns default mock provider settings.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		Latency:        150 * time.Millisecond,
		WordsPerMinute: 170,
		SampleRate:     16000,
	}
}

// ValidEngines lists the providers the CLI can build.
var ValidEngines = []string{"mock", "exec", "piper", "openai"}

// Validate checks if the configuration is valid. The engine name is
// normalized to lower case.
func (c *Config) Validate() error {
	engine := strings.ToLower(strings.TrimSpace(c.Engine))
	if !slices.Contains(ValidEngines, engine) {
		return fmt.Errorf("%w: invalid TTS engine '%s': must be one of %v", ErrInvalidConfig, c.Engine, ValidEngines)
	}
	c.Engine = engine

	if c.Rate < MinRate || c.Rate > MaxRate {
		return fmt.Errorf("%w: rate must be between %.1f and %.1f, got %f", ErrInvalidConfig, MinRate, MaxRate, c.Rate)
	}
	if c.Pitch < MinPitch || c.Pitch > MaxPitch {
		return fmt.Errorf("%w: pitch must be between %.1f and %.1f, got %f", ErrInvalidConfig, MinPitch, MaxPitch, c.Pitch)
	}
	if c.Volume < MinVolume || c.Volume > MaxVolume {
		return fmt.Errorf("%w: volume must be between 0.0 and 1.0, got %f", ErrInvalidConfig, c.Volume)
	}

	if err := c.Synthesis.Validate(); err != nil {
		return fmt.Errorf("%w: synthesis: %w", ErrInvalidConfig, err)
	}
	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("%w: playback: %w", ErrInvalidConfig, err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("%w: cache: %w", ErrInvalidConfig, err)
	}
	if c.Health.FailureThreshold < 1 {
		return fmt.Errorf("%w: failure_threshold must be at least 1, got %d", ErrInvalidConfig, c.Health.FailureThreshold)
	}

	switch c.Engine {
	case "exec":
		if strings.TrimSpace(c.Exec.Command) == "" {
			return fmt.Errorf("%w: exec config: command cannot be empty", ErrInvalidConfig)
		}
	case "piper":
		if c.Piper.Model == "" && c.Piper.ModelDir == "" {
			return fmt.Errorf("%w: piper config: model or model_dir is required", ErrInvalidConfig)
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("%w: openai config: api_key is required", ErrInvalidConfig)
		}
	case "mock":
		if c.Mock.WordsPerMinute < 50 || c.Mock.WordsPerMinute > 500 {
			return fmt.Errorf("%w: mock config: words_per_minute must be between 50 and 500, got %d", ErrInvalidConfig, c.Mock.WordsPerMinute)
		}
	}

	return nil
}

// Validate checks if the synthesis configuration is valid.
func (c *SynthesisConfig) Validate() error {
	if c.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second, got %v", c.Timeout)
	}
	if len(c.PreloadDelays) == 0 {
		return fmt.Errorf("preload_delays needs at least one attempt")
	}
	for _, d := range c.PreloadDelays {
		if d < 0 {
			return fmt.Errorf("preload delay cannot be negative, got %v", d)
		}
	}
	if c.PreloadRPS <= 0 {
		return fmt.Errorf("preload_rps must be positive, got %f", c.PreloadRPS)
	}
	return nil
}

// Validate checks if the playback configuration is valid.
func (c *PlaybackConfig) Validate() error {
	if c.ResumeTimeout <= 0 {
		return fmt.Errorf("resume_timeout must be positive, got %v", c.ResumeTimeout)
	}
	if !slices.Contains([]int{8000, 16000, 22050, 24000, 44100, 48000}, c.SampleRate) {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}
	return nil
}

// Validate checks if the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", c.Capacity)
	}
	if c.DiskEnabled && c.DiskCapacityMB < 1 {
		return fmt.Errorf("disk_capacity_mb must be at least 1, got %d", c.DiskCapacityMB)
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 22 {
		return fmt.Errorf("compression_level must be between 0 and 22, got %d", c.CompressionLevel)
	}
	return nil
}

// ApplyEnv overlays environment variables onto c. Variables that are not
// set leave the field untouched.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// Request builds a synthesis request with the configured voice, rate and
// pitch.
func (c *Config) Request(text string) SynthesisRequest {
	return SynthesisRequest{Text: text, Voice: c.Voice, Rate: c.Rate, Pitch: c.Pitch}
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
