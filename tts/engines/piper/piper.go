// Package piper speaks through a local Piper binary.
//
// Every request starts a fresh piper process with the selected model and
// reads raw 16-bit mono PCM from its stdout. Voices are the .onnx models
// found in the model directory; a model's sample rate is read from the
// .onnx.json file next to it. Piper reports no word timings, so boundaries
// are estimated and stretched over the rendered audio.
package piper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/ttsync/tts"
	"github.com/dgnsrekt/ttsync/tts/engines"
)

// Errors returned by the provider.
var (
	ErrNoModel = errors.New("no piper model configured")
	ErrNoAudio = errors.New("piper produced no audio")
)

const modelExt = ".onnx"

// Provider runs piper once per utterance.
type Provider struct {
	cfg    tts.PiperConfig
	logger *log.Logger

	mu    sync.Mutex
	rates map[string]int
}

// New creates a provider for cfg. Nothing is checked until Probe.
func New(cfg tts.PiperConfig, logger *log.Logger) *Provider {
	defaults := tts.DefaultPiperConfig()
	if cfg.Binary == "" {
		cfg.Binary = defaults.Binary
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaults.SampleRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = log.Default().WithPrefix("piper")
	}
	return &Provider{cfg: cfg, logger: logger, rates: make(map[string]int)}
}

// Probe looks up the binary and the default model. With RequireSynthesis
// it also renders a short utterance.
func (p *Provider) Probe(ctx context.Context, opts tts.ProbeOptions) (tts.ProbeResult, error) {
	bin, err := osexec.LookPath(p.cfg.Binary)
	if err != nil {
		return tts.ProbeResult{OK: true, Available: false, Reason: "binary_missing: " + p.cfg.Binary}, nil
	}
	model, err := p.model("")
	if err != nil {
		return tts.ProbeResult{OK: true, Available: false, Reason: "model_missing: " + err.Error()}, nil
	}
	details := map[string]any{"binary": bin, "model": model}

	if opts.RequireSynthesis {
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}
		if _, err := p.Synthesize(ctx, tts.SynthesisRequest{Text: "Ready.", Rate: 1}); err != nil {
			return tts.ProbeResult{OK: false, Available: false, Reason: err.Error(), Details: details}, nil
		}
	}
	return tts.ProbeResult{OK: true, Available: true, Details: details}, nil
}

// Voices lists the configured model and every model in the model
// directory.
func (p *Provider) Voices(context.Context) ([]tts.Voice, error) {
	models, err := p.models()
	if err != nil {
		return nil, err
	}
	def, _ := p.model("")

	voices := make([]tts.Voice, 0, len(models))
	for _, m := range models {
		v := voiceFromModel(m)
		v.Default = m == def
		voices = append(voices, v)
	}
	return voices, nil
}

// Synthesize renders req with the model named by req.Voice, or the default
// model when the voice is empty or unknown.
func (p *Provider) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	model, err := p.model(req.Voice)
	if err != nil {
		return nil, err
	}
	rate := p.sampleRate(model)

	args := []string{"--model", model, "--output-raw"}
	if req.Rate > 0 && req.Rate != 1 {
		args = append(args, "--length_scale", strconv.FormatFloat(1/req.Rate, 'f', 3, 64))
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := osexec.CommandContext(ctx, p.cfg.Binary, args...)
	cmd.Stdin = strings.NewReader(req.Text + "\n")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("piper: %w", ctx.Err())
		}
		if msg := lastLine(stderr.String()); msg != "" {
			return nil, fmt.Errorf("piper: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("piper: %w", err)
	}

	pcm := stdout.Bytes()
	pcm = pcm[:len(pcm)-len(pcm)%2]
	if len(pcm) == 0 {
		return nil, ErrNoAudio
	}
	duration := time.Duration(len(pcm)/2) * time.Second / time.Duration(rate)
	p.logger.Debug("Synthesized", "model", filepath.Base(model), "bytes", len(pcm),
		"duration", duration, "elapsed", time.Since(start))

	return &tts.SynthesisResult{
		Audio:      pcm,
		MIMEType:   fmt.Sprintf("audio/L16; rate=%d; channels=1", rate),
		Boundaries: fitBoundaries(req.Text, req.Rate, duration),
	}, nil
}

// ResetInstance forgets cached model metadata; there is no long-lived
// process to restart.
func (p *Provider) ResetInstance(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.rates)
	return nil
}

// models returns the configured model followed by the models in the model
// directory, without duplicates.
func (p *Provider) models() ([]string, error) {
	var models []string
	if p.cfg.Model != "" {
		models = append(models, filepath.Clean(p.cfg.Model))
	}
	if p.cfg.ModelDir != "" {
		matches, err := filepath.Glob(filepath.Join(p.cfg.ModelDir, "*"+modelExt))
		if err != nil {
			return nil, fmt.Errorf("list piper models: %w", err)
		}
		slices.Sort(matches)
		for _, m := range matches {
			if !slices.Contains(models, m) {
				models = append(models, m)
			}
		}
	}
	return models, nil
}

// model resolves a voice id to a model path.
func (p *Provider) model(voice string) (string, error) {
	models, err := p.models()
	if err != nil {
		return "", err
	}
	if len(models) == 0 {
		return "", ErrNoModel
	}
	if voice != "" {
		for _, m := range models {
			if voiceID(m) == voice {
				return m, nil
			}
		}
		p.logger.Debug("Unknown voice, using default model", "voice", voice)
	}
	if _, err := os.Stat(models[0]); err != nil {
		return "", fmt.Errorf("piper model: %w", err)
	}
	return models[0], nil
}

// sampleRate reads audio.sample_rate from the model's JSON config,
// falling back to the configured rate.
func (p *Provider) sampleRate(model string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.rates[model]; ok {
		return r
	}

	rate := p.cfg.SampleRate
	if data, err := os.ReadFile(model + ".json"); err == nil {
		var meta struct {
			Audio struct {
				SampleRate int `json:"sample_rate"`
			} `json:"audio"`
		}
		if err := json.Unmarshal(data, &meta); err == nil && meta.Audio.SampleRate > 0 {
			rate = meta.Audio.SampleRate
		}
	}
	p.rates[model] = rate
	return rate
}

func voiceID(model string) string {
	return strings.TrimSuffix(filepath.Base(model), modelExt)
}

// voiceFromModel parses Piper's lang_REGION-name-quality file names.
func voiceFromModel(model string) tts.Voice {
	id := voiceID(model)
	v := tts.Voice{ID: id, Name: id}
	parts := strings.SplitN(id, "-", 3)
	if len(parts) >= 2 {
		v.Language = strings.ReplaceAll(parts[0], "_", "-")
		v.Name = parts[1]
		if len(parts) == 3 {
			v.Name += " (" + parts[2] + ")"
		}
	}
	return v
}

// fitBoundaries estimates word boundaries and scales them onto the
// rendered duration.
func fitBoundaries(text string, rate float64, duration time.Duration) []tts.BoundaryEvent {
	events, estimated := engines.EstimateBoundaries(text, rate, 0)
	if estimated <= 0 || duration <= 0 {
		return events
	}
	scale := float64(duration) / float64(estimated)
	for i := range events {
		events[i].OffsetMs = int64(float64(events[i].OffsetMs) * scale)
	}
	return events
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
