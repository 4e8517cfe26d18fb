package tts

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadConfigFromViper loads engine configuration from Viper, then applies
// environment overrides and validates the result.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("tts.engine") {
		cfg.Engine = viper.GetString("tts.engine")
	}
	if viper.IsSet("tts.voice") {
		cfg.Voice = viper.GetString("tts.voice")
	}
	if viper.IsSet("tts.rate") {
		cfg.Rate = viper.GetFloat64("tts.rate")
	}
	if viper.IsSet("tts.pitch") {
		cfg.Pitch = viper.GetFloat64("tts.pitch")
	}
	if viper.IsSet("tts.volume") {
		cfg.Volume = viper.GetFloat64("tts.volume")
	}

	cfg.Synthesis = loadSynthesisConfig()
	cfg.Playback = loadPlaybackConfig()
	cfg.Cache = loadCacheConfig()
	cfg.Health = loadHealthConfig()
	cfg.Exec = loadExecConfig()
	cfg.Piper = loadPiperConfig()
	cfg.OpenAI = loadOpenAIConfig()
	cfg.Mock = loadMockConfig()

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid TTS configuration: %w", err)
	}

	return cfg, nil
}

// getDuration reads key as a duration string, keeping def when it is unset
// or malformed.
func getDuration(key string, def time.Duration) time.Duration {
	if !viper.IsSet(key) {
		return def
	}
	if d, err := time.ParseDuration(viper.GetString(key)); err == nil {
		return d
	}
	return def
}

func loadSynthesisConfig() SynthesisConfig {
	cfg := DefaultSynthesisConfig()

	cfg.Timeout = getDuration("tts.synthesis.timeout", cfg.Timeout)
	if viper.IsSet("tts.synthesis.preload_delays") {
		var delays []time.Duration
		for _, s := range viper.GetStringSlice("tts.synthesis.preload_delays") {
			if d, err := time.ParseDuration(s); err == nil {
				delays = append(delays, d)
			}
		}
		if len(delays) > 0 {
			cfg.PreloadDelays = delays
		}
	}
	if viper.IsSet("tts.synthesis.preload_rps") {
		cfg.PreloadRPS = viper.GetFloat64("tts.synthesis.preload_rps")
	}
	if viper.IsSet("tts.synthesis.preload_burst") {
		cfg.PreloadBurst = viper.GetInt("tts.synthesis.preload_burst")
	}

	return cfg
}

func loadPlaybackConfig() PlaybackConfig {
	cfg := DefaultPlaybackConfig()

	cfg.ResumeTimeout = getDuration("tts.playback.resume_timeout", cfg.ResumeTimeout)
	cfg.BufferSize = getDuration("tts.playback.buffer_size", cfg.BufferSize)
	if viper.IsSet("tts.playback.sample_rate") {
		cfg.SampleRate = viper.GetInt("tts.playback.sample_rate")
	}

	return cfg
}

func loadCacheConfig() CacheConfig {
	cfg := DefaultCacheConfig()

	if viper.IsSet("tts.cache.capacity") {
		cfg.Capacity = viper.GetInt("tts.cache.capacity")
	}
	if viper.IsSet("tts.cache.disk_enabled") {
		cfg.DiskEnabled = viper.GetBool("tts.cache.disk_enabled")
	}
	if viper.IsSet("tts.cache.disk_path") {
		cfg.DiskPath = viper.GetString("tts.cache.disk_path")
	}
	if viper.IsSet("tts.cache.disk_capacity_mb") {
		cfg.DiskCapacityMB = viper.GetInt64("tts.cache.disk_capacity_mb")
	}
	if viper.IsSet("tts.cache.compression_level") {
		cfg.CompressionLevel = viper.GetInt("tts.cache.compression_level")
	}

	return cfg
}

func loadHealthConfig() HealthConfig {
	cfg := DefaultHealthConfig()

	cfg.ProbeTimeout = getDuration("tts.health.probe_timeout", cfg.ProbeTimeout)
	if viper.IsSet("tts.health.require_synthesis") {
		cfg.RequireSynthesis = viper.GetBool("tts.health.require_synthesis")
	}
	if viper.IsSet("tts.health.failure_threshold") {
		cfg.FailureThreshold = viper.GetInt("tts.health.failure_threshold")
	}

	return cfg
}

func loadExecConfig() ExecConfig {
	cfg := DefaultExecConfig()

	if viper.IsSet("tts.exec.command") {
		cfg.Command = viper.GetString("tts.exec.command")
	}
	cfg.Timeout = getDuration("tts.exec.timeout", cfg.Timeout)

	return cfg
}

func loadPiperConfig() PiperConfig {
	cfg := DefaultPiperConfig()

	if viper.IsSet("tts.piper.binary") {
		cfg.Binary = viper.GetString("tts.piper.binary")
	}
	if viper.IsSet("tts.piper.model") {
		cfg.Model = viper.GetString("tts.piper.model")
	}
	if viper.IsSet("tts.piper.model_dir") {
		cfg.ModelDir = viper.GetString("tts.piper.model_dir")
	}
	if viper.IsSet("tts.piper.sample_rate") {
		cfg.SampleRate = viper.GetInt("tts.piper.sample_rate")
	}
	cfg.Timeout = getDuration("tts.piper.timeout", cfg.Timeout)

	return cfg
}

func loadOpenAIConfig() OpenAIConfig {
	cfg := DefaultOpenAIConfig()

	if viper.IsSet("tts.openai.api_key") {
		cfg.APIKey = viper.GetString("tts.openai.api_key")
	}
	if viper.IsSet("tts.openai.base_url") {
		cfg.BaseURL = viper.GetString("tts.openai.base_url")
	}
	if viper.IsSet("tts.openai.model") {
		cfg.Model = viper.GetString("tts.openai.model")
	}
	cfg.Timeout = getDuration("tts.openai.timeout", cfg.Timeout)
	if viper.IsSet("tts.openai.rps") {
		cfg.RPS = viper.GetFloat64("tts.openai.rps")
	}

	return cfg
}

func loadMockConfig() MockConfig {
	cfg := DefaultMockConfig()

	cfg.Latency = getDuration("tts.mock.latency", cfg.Latency)
	if viper.IsSet("tts.mock.words_per_minute") {
		cfg.WordsPerMinute = viper.GetInt("tts.mock.words_per_minute")
	}
	if viper.IsSet("tts.mock.sample_rate") {
		cfg.SampleRate = viper.GetInt("tts.mock.sample_rate")
	}

	return cfg
}

// SetDefaults sets default values in Viper for engine configuration.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("tts.engine", defaults.Engine)
	viper.SetDefault("tts.voice", defaults.Voice)
	viper.SetDefault("tts.rate", defaults.Rate)
	viper.SetDefault("tts.pitch", defaults.Pitch)
	viper.SetDefault("tts.volume", defaults.Volume)

	delays := make([]string, len(defaults.Synthesis.PreloadDelays))
	for i, d := range defaults.Synthesis.PreloadDelays {
		delays[i] = d.String()
	}
	viper.SetDefault("tts.synthesis.timeout", defaults.Synthesis.Timeout.String())
	viper.SetDefault("tts.synthesis.preload_delays", delays)
	viper.SetDefault("tts.synthesis.preload_rps", defaults.Synthesis.PreloadRPS)
	viper.SetDefault("tts.synthesis.preload_burst", defaults.Synthesis.PreloadBurst)

	viper.SetDefault("tts.playback.resume_timeout", defaults.Playback.ResumeTimeout.String())
	viper.SetDefault("tts.playback.sample_rate", defaults.Playback.SampleRate)
	viper.SetDefault("tts.playback.buffer_size", defaults.Playback.BufferSize.String())

	viper.SetDefault("tts.cache.capacity", defaults.Cache.Capacity)
	viper.SetDefault("tts.cache.disk_enabled", defaults.Cache.DiskEnabled)
	viper.SetDefault("tts.cache.disk_capacity_mb", defaults.Cache.DiskCapacityMB)
	viper.SetDefault("tts.cache.compression_level", defaults.Cache.CompressionLevel)

	viper.SetDefault("tts.health.probe_timeout", defaults.Health.ProbeTimeout.String())
	viper.SetDefault("tts.health.require_synthesis", defaults.Health.RequireSynthesis)
	viper.SetDefault("tts.health.failure_threshold", defaults.Health.FailureThreshold)

	viper.SetDefault("tts.exec.timeout", defaults.Exec.Timeout.String())

	viper.SetDefault("tts.piper.binary", defaults.Piper.Binary)
	viper.SetDefault("tts.piper.sample_rate", defaults.Piper.SampleRate)
	viper.SetDefault("tts.piper.timeout", defaults.Piper.Timeout.String())

	viper.SetDefault("tts.openai.model", defaults.OpenAI.Model)
	viper.SetDefault("tts.openai.timeout", defaults.OpenAI.Timeout.String())
	viper.SetDefault("tts.openai.rps", defaults.OpenAI.RPS)

	viper.SetDefault("tts.mock.latency", defaults.Mock.Latency.String())
	viper.SetDefault("tts.mock.words_per_minute", defaults.Mock.WordsPerMinute)
	viper.SetDefault("tts.mock.sample_rate", defaults.Mock.SampleRate)
}
