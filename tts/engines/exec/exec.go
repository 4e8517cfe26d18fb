// Package exec runs an external command as a synthesis provider.
//
// Every call starts the command, writes one JSON request to its stdin and
// reads one JSON response from its stdout:
//
//	{"op":"synthesize","text":"Hi.","voice":"en","rate":1,"pitch":1}
//	{"ok":true,"audio_base64":"UklGR...","mime":"audio/wav",
//	 "boundaries":[{"text":"Hi","offset_ms":0}]}
//
// op is one of probe, voices or synthesize. A response with ok false carries
// the failure in reason. When a synthesize response has no boundaries they
// are estimated from the text.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	osexec "os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-shellwords"

	"github.com/dgnsrekt/ttsync/tts"
	"github.com/dgnsrekt/ttsync/tts/engines"
)

// ErrEmptyCommand is returned when no command is configured.
var ErrEmptyCommand = errors.New("exec provider command empty")

type request struct {
	Op    string  `json:"op"`
	Text  string  `json:"text,omitempty"`
	Voice string  `json:"voice,omitempty"`
	Rate  float64 `json:"rate,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`
}

type response struct {
	OK          bool                `json:"ok"`
	Available   *bool               `json:"available,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	AudioBase64 string              `json:"audio_base64,omitempty"`
	AudioURL    string              `json:"audio_url,omitempty"`
	MIME        string              `json:"mime,omitempty"`
	Boundaries  []tts.BoundaryEvent `json:"boundaries,omitempty"`
	Voices      []tts.Voice         `json:"voices,omitempty"`
}

// Provider speaks through an external command.
type Provider struct {
	args    []string
	timeout time.Duration
	logger  *log.Logger
}

// New parses the configured command line. Environment variables in the
// command are expanded.
func New(cfg tts.ExecConfig, logger *log.Logger) (*Provider, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse exec command: %w", err)
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	if logger == nil {
		logger = log.Default().WithPrefix("exec")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = tts.DefaultExecConfig().Timeout
	}
	return &Provider{args: args, timeout: timeout, logger: logger}, nil
}

// Probe asks the command whether it can synthesize.
func (p *Provider) Probe(ctx context.Context, opts tts.ProbeOptions) (tts.ProbeResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	resp, err := p.run(ctx, request{Op: "probe"})
	if err != nil {
		return tts.ProbeResult{}, err
	}

	available := resp.OK
	if resp.Available != nil {
		available = resp.OK && *resp.Available
	}
	return tts.ProbeResult{OK: resp.OK, Available: available, Reason: resp.Reason}, nil
}

// Voices lists the voices the command reports.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	resp, err := p.run(ctx, request{Op: "voices"})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("voices: %s", resp.Reason)
	}
	return resp.Voices, nil
}

// Synthesize renders req through the command.
func (p *Provider) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	resp, err := p.run(ctx, request{
		Op:    "synthesize",
		Text:  req.Text,
		Voice: req.Voice,
		Rate:  req.Rate,
		Pitch: req.Pitch,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		reason := resp.Reason
		if reason == "" {
			reason = "command reported failure"
		}
		return nil, errors.New(reason)
	}

	res := &tts.SynthesisResult{
		AudioURL:    resp.AudioURL,
		AudioBase64: resp.AudioBase64,
		MIMEType:    resp.MIME,
		Boundaries:  resp.Boundaries,
	}
	if len(res.Boundaries) == 0 {
		res.Boundaries, _ = engines.EstimateBoundaries(req.Text, req.Rate, 0)
	}
	return res, nil
}

// ResetInstance is a no-op: every call starts a fresh process.
func (p *Provider) ResetInstance(context.Context) error {
	return nil
}

func (p *Provider) run(ctx context.Context, req request) (*response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := osexec.CommandContext(ctx, p.args[0], p.args[1:]...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", p.args[0], req.Op, ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", p.args[0], req.Op, err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", p.args[0], req.Op, err)
	}
	p.logger.Debug("Command finished", "op", req.Op, "elapsed", time.Since(start))

	var resp response
	if err := json.NewDecoder(&stdout).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%s %s: invalid response: %w", p.args[0], req.Op, err)
	}
	return &resp, nil
}
