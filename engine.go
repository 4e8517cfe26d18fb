package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/ttsync/internal/cache"
	"github.com/dgnsrekt/ttsync/internal/clock"
	"github.com/dgnsrekt/ttsync/internal/progress"
	"github.com/dgnsrekt/ttsync/tts"
	"github.com/dgnsrekt/ttsync/tts/audio"
	"github.com/dgnsrekt/ttsync/tts/engines"
	ttsexec "github.com/dgnsrekt/ttsync/tts/engines/exec"
	"github.com/dgnsrekt/ttsync/tts/engines/mock"
	"github.com/dgnsrekt/ttsync/tts/engines/openai"
	"github.com/dgnsrekt/ttsync/tts/engines/piper"
)

var appScope = gap.NewScope(gap.User, "ttsync")

// runtime is everything a command needs to speak.
type runtime struct {
	cfg    tts.Config
	engine *tts.Engine
	disk   *engines.CachingProvider
	store  *cache.DiskStore
}

func (r *runtime) Close() error {
	err := r.engine.Close()
	if r.store != nil {
		if cerr := r.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// loadConfig resolves the engine configuration from viper, the environment
// and the command line.
func loadConfig() (tts.Config, error) {
	cfg, err := tts.LoadConfigFromViper()
	if err != nil {
		return cfg, err //nolint:wrapcheck
	}
	if viper.GetBool("no-disk-cache") {
		cfg.Cache.DiskEnabled = false
	}
	if cfg.Cache.DiskPath == "" {
		dir, err := appScope.CacheDir()
		if err != nil {
			return cfg, fmt.Errorf("unable to find cache directory: %w", err)
		}
		cfg.Cache.DiskPath = filepath.Join(dir, "audio")
	}
	for _, p := range []*string{&cfg.Cache.DiskPath, &cfg.Piper.Model, &cfg.Piper.ModelDir} {
		if *p == "" {
			continue
		}
		if *p, err = expandPath(*p); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// newRuntime builds the provider stack and the engine for cfg.
func newRuntime(cfg tts.Config, opts ...tts.Option) (*runtime, error) {
	provider, err := buildProvider(cfg.Engine, cfg)
	if err != nil {
		return nil, err
	}

	if fb := viper.GetString("fallback"); fb != "" && fb != cfg.Engine {
		fallback, err := buildProvider(fb, cfg)
		if err != nil {
			return nil, fmt.Errorf("fallback engine: %w", err)
		}
		log.Debug("Using fallback engine", "primary", cfg.Engine, "fallback", fb)
		provider = engines.NewFallbackProvider(provider, fallback, cfg.Health.FailureThreshold,
			log.WithPrefix("fallback"))
	}

	rt := &runtime{cfg: cfg}
	if cfg.Cache.DiskEnabled {
		store, err := openDiskStore(cfg.Cache)
		if err != nil {
			log.Warn("Disk cache disabled", "err", err)
		} else {
			rt.store = store
			rt.disk = engines.NewCachingProvider(provider, store, log.WithPrefix("disk-cache"))
			provider = rt.disk
		}
	}

	sinks := audio.NewOtoSinkFactory(cfg.Playback)
	if viper.GetBool("silent") {
		sinks = audio.NewMockSinkFactory(clock.Real(), nil)
	}

	opts = append([]tts.Option{tts.WithLogger(log.WithPrefix("engine"))}, opts...)
	rt.engine = tts.NewEngine(cfg, provider, sinks, opts...)
	return rt, nil
}

func buildProvider(name string, cfg tts.Config) (tts.Provider, error) {
	switch name {
	case "mock":
		return mock.New(cfg.Mock), nil
	case "exec":
		p, err := ttsexec.New(cfg.Exec, log.WithPrefix("exec"))
		if err != nil {
			return nil, fmt.Errorf("exec engine: %w", err)
		}
		return p, nil
	case "piper":
		return piper.New(cfg.Piper, log.WithPrefix("piper")), nil
	case "openai":
		return openai.New(cfg.OpenAI, log.WithPrefix("openai")), nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", tts.ErrInvalidConfig, name)
	}
}

func openDiskStore(cfg tts.CacheConfig) (*cache.DiskStore, error) {
	store, err := cache.NewDiskStore(cfg.DiskPath, cfg.DiskCapacityMB<<20, cfg.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("unable to open audio cache: %w", err)
	}
	return store, nil
}

func progressPath() (string, error) {
	if p := viper.GetString("progress"); p != "" {
		return expandPath(p)
	}
	path, err := appScope.DataPath("progress.db")
	if err != nil {
		return "", fmt.Errorf("unable to find data directory: %w", err)
	}
	return path, nil
}

func openProgress(ctx context.Context) (*progress.Store, error) {
	path, err := progressPath()
	if err != nil {
		return nil, err
	}
	store, err := progress.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("unable to open progress store: %w", err)
	}
	return store, nil
}
