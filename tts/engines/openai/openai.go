// Package openai synthesizes speech with the OpenAI audio API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/ttsync/tts"
	"github.com/dgnsrekt/ttsync/tts/engines"
)

// DefaultVoice is used when a request names no voice.
const DefaultVoice = string(goopenai.VoiceAlloy)

var voices = []tts.Voice{
	{ID: string(goopenai.VoiceAlloy), Name: "Alloy", Language: "en", Default: true},
	{ID: string(goopenai.VoiceEcho), Name: "Echo", Language: "en"},
	{ID: string(goopenai.VoiceFable), Name: "Fable", Language: "en"},
	{ID: string(goopenai.VoiceOnyx), Name: "Onyx", Language: "en"},
	{ID: string(goopenai.VoiceNova), Name: "Nova", Language: "en"},
	{ID: string(goopenai.VoiceShimmer), Name: "Shimmer", Language: "en"},
}

// Provider calls the speech endpoint and estimates word boundaries, which
// the API does not report.
type Provider struct {
	cfg     tts.OpenAIConfig
	limiter *rate.Limiter
	logger  *log.Logger

	mu     sync.Mutex
	client *goopenai.Client
}

// New creates a provider. Requests are limited to cfg.RPS per second.
func New(cfg tts.OpenAIConfig, logger *log.Logger) *Provider {
	if cfg.Model == "" {
		cfg.Model = string(goopenai.TTSModel1)
	}
	if logger == nil {
		logger = log.Default().WithPrefix("openai")
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	p := &Provider{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
	p.client = p.newClient()
	return p
}

func (p *Provider) newClient() *goopenai.Client {
	config := goopenai.DefaultConfig(p.cfg.APIKey)
	if p.cfg.BaseURL != "" {
		config.BaseURL = p.cfg.BaseURL
	}
	config.HTTPClient = &http.Client{Timeout: p.cfg.Timeout}
	return goopenai.NewClientWithConfig(config)
}

func (p *Provider) api() *goopenai.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client
}

// Probe lists the models the key can use. With RequireSynthesis the
// configured model must be among them.
func (p *Provider) Probe(ctx context.Context, opts tts.ProbeOptions) (tts.ProbeResult, error) {
	if p.cfg.APIKey == "" {
		return tts.ProbeResult{OK: true, Available: false, Reason: "api_key_missing"}, nil
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	models, err := p.api().ListModels(ctx)
	if err != nil {
		res := tts.ProbeResult{OK: false, Available: false, Reason: err.Error()}
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			res.Details = map[string]any{"error_code": strconv.Itoa(apiErr.HTTPStatusCode)}
		}
		return res, nil
	}

	if opts.RequireSynthesis {
		found := slices.ContainsFunc(models.Models, func(m goopenai.Model) bool { return m.ID == p.cfg.Model })
		if !found {
			return tts.ProbeResult{OK: true, Available: false, Reason: "model_unavailable: " + p.cfg.Model}, nil
		}
	}
	return tts.ProbeResult{OK: true, Available: true}, nil
}

// Voices returns the fixed voice list of the speech API.
func (p *Provider) Voices(context.Context) ([]tts.Voice, error) {
	return slices.Clone(voices), nil
}

// Synthesize renders req as mp3.
func (p *Provider) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	voice := req.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	speed := req.Rate
	if speed <= 0 {
		speed = 1
	}

	resp, err := p.api().CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(p.cfg.Model),
		Input:          req.Text,
		Voice:          goopenai.SpeechVoice(voice),
		ResponseFormat: goopenai.SpeechResponseFormatMp3,
		Speed:          speed,
	})
	if err != nil {
		return nil, fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	p.logger.Debug("Speech created", "bytes", len(data), "voice", voice)

	boundaries, _ := engines.EstimateBoundaries(req.Text, speed, 0)
	return &tts.SynthesisResult{
		Audio:      data,
		MIMEType:   "audio/mpeg",
		Boundaries: boundaries,
	}, nil
}

// ResetInstance replaces the HTTP client, dropping pooled connections.
func (p *Provider) ResetInstance(context.Context) error {
	client := p.newClient()
	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	p.logger.Info("Client rebuilt")
	return nil
}
