package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/ttsync/internal/clock"
)

// stubProvider answers Synthesize with fn.
type stubProvider struct {
	fn    func(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
	calls atomic.Int32
}

func (p *stubProvider) Probe(context.Context, ProbeOptions) (ProbeResult, error) {
	return ProbeResult{OK: true, Available: true}, nil
}

func (p *stubProvider) Voices(context.Context) ([]Voice, error) { return nil, nil }

func (p *stubProvider) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	p.calls.Add(1)
	return p.fn(ctx, req)
}

func (p *stubProvider) ResetInstance(context.Context) error { return nil }

func okResult(context.Context, SynthesisRequest) (*SynthesisResult, error) {
	return &SynthesisResult{Audio: []byte("audio"), MIMEType: "audio/wav"}, nil
}

type observed struct {
	mu    sync.Mutex
	kinds []string
	errs  []error
}

func (o *observed) ObserveSynthesis(kind string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds = append(o.kinds, kind)
	o.errs = append(o.errs, err)
}

func TestClientSynthesizeTimeout(t *testing.T) {
	clk := clock.NewFake()
	started := make(chan struct{})
	p := &stubProvider{fn: func(ctx context.Context, _ SynthesisRequest) (*SynthesisResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := DefaultSynthesisConfig()
	c := NewClient(p, NewSynthesisCache(4), cfg, clk)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Synthesize(context.Background(), SynthesisRequest{Text: "hi"})
		errc <- err
	}()

	<-started
	clk.Advance(cfg.Timeout)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrSynthesisTimeout) {
			t.Fatalf("error = %v, want ErrSynthesisTimeout", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Synthesize did not return after the timeout")
	}
}

func TestClientSynthesizeIgnoringContext(t *testing.T) {
	clk := clock.NewFake()
	block := make(chan struct{})
	defer close(block)

	started := make(chan struct{})
	p := &stubProvider{fn: func(context.Context, SynthesisRequest) (*SynthesisResult, error) {
		close(started)
		<-block
		return nil, nil
	}}
	c := NewClient(p, NewSynthesisCache(4), DefaultSynthesisConfig(), clk)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Synthesize(context.Background(), SynthesisRequest{Text: "hi"})
		errc <- err
	}()
	<-started
	clk.Advance(time.Minute)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrSynthesisTimeout) {
			t.Fatalf("error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("a provider ignoring ctx must not block past the timeout")
	}
}

func TestClientSynthesizeErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context, SynthesisRequest) (*SynthesisResult, error)
		want error
	}{
		{"rejected", func(context.Context, SynthesisRequest) (*SynthesisResult, error) {
			return nil, errors.New("bad voice")
		}, ErrSynthesisRejected},
		{"empty audio", func(context.Context, SynthesisRequest) (*SynthesisResult, error) {
			return &SynthesisResult{}, nil
		}, ErrSynthesisRejected},
		{"unavailable", func(context.Context, SynthesisRequest) (*SynthesisResult, error) {
			return nil, ErrProviderUnavailable
		}, ErrProviderUnavailable},
		{"deadline", func(context.Context, SynthesisRequest) (*SynthesisResult, error) {
			return nil, context.DeadlineExceeded
		}, ErrSynthesisTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &observed{}
			c := NewClient(&stubProvider{fn: tt.fn}, NewSynthesisCache(4), SynthesisConfig{}, clock.NewFake())
			c.observer = obs

			_, err := c.Synthesize(context.Background(), SynthesisRequest{Text: "x"})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if len(obs.kinds) != 1 || obs.kinds[0] != "foreground" || obs.errs[0] == nil {
				t.Errorf("observer saw %v %v", obs.kinds, obs.errs)
			}
		})
	}

	c := NewClient(nil, NewSynthesisCache(4), SynthesisConfig{}, nil)
	if _, err := c.Synthesize(context.Background(), SynthesisRequest{}); !errors.Is(err, ErrSynthesisUnavailable) {
		t.Errorf("nil provider error = %v", err)
	}
}

func TestClientEntry(t *testing.T) {
	c := NewClient(nil, NewSynthesisCache(4), SynthesisConfig{}, nil)

	e, err := c.Entry(&SynthesisResult{AudioURL: "file:///a.mp3", Audio: []byte("x")})
	if err != nil || e.Source.URL != "file:///a.mp3" || e.Source.Blob != nil {
		t.Errorf("URL should win: %+v %v", e.Source, err)
	}

	e, err = c.Entry(&SynthesisResult{Audio: []byte("abc")})
	if err != nil || e.Source.Blob.MIME() != DefaultMIMEType {
		t.Errorf("bytes entry: %+v %v", e.Source, err)
	}

	enc := base64.StdEncoding.EncodeToString([]byte("payload"))
	e, err = c.Entry(&SynthesisResult{AudioBase64: enc, MIMEType: "audio/wav"})
	if err != nil || string(e.Source.Blob.Bytes()) != "payload" || e.Source.Blob.MIME() != "audio/wav" {
		t.Errorf("base64 entry: %v", err)
	}

	if _, err := c.Entry(&SynthesisResult{AudioBase64: "!!not base64!!"}); !errors.Is(err, ErrDecodeFailure) {
		t.Errorf("invalid base64 error = %v", err)
	}
}

func TestClientPreloadSkipsCachedAndInflight(t *testing.T) {
	gate := make(chan struct{})
	p := &stubProvider{fn: func(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
		<-gate
		return okResult(ctx, req)
	}}
	cache := NewSynthesisCache(4)
	cfg := SynthesisConfig{PreloadDelays: []time.Duration{0}}
	c := NewClient(p, cache, cfg, clock.NewFake())

	req := SynthesisRequest{Text: "next"}
	done := make(chan struct{})
	go func() {
		c.Preload(context.Background(), "", req)
		close(done)
	}()

	for p.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	// a second preload of the same key while the first is running is a no-op
	c.Preload(context.Background(), "", req)
	close(gate)
	<-done

	if got := p.calls.Load(); got != 1 {
		t.Errorf("provider called %d times, want 1", got)
	}
	if !cache.Contains(req.Key()) {
		t.Fatal("preloaded entry should be cached")
	}

	c.Preload(context.Background(), "", req)
	if got := p.calls.Load(); got != 1 {
		t.Errorf("cached key was synthesized again")
	}
}

func TestClientPreloadSupersededDiscards(t *testing.T) {
	current := "req-1"
	var mu sync.Mutex

	p := &stubProvider{fn: func(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
		mu.Lock()
		current = "req-2"
		mu.Unlock()
		return okResult(ctx, req)
	}}
	cache := NewSynthesisCache(4)
	c := NewClient(p, cache, SynthesisConfig{PreloadDelays: []time.Duration{0}}, clock.NewFake())
	c.current = func() string {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	req := SynthesisRequest{Text: "late"}
	c.Preload(context.Background(), "req-1", req)

	if cache.Contains(req.Key()) {
		t.Error("result for a superseded session must be discarded")
	}
	if c.Failed(req.Key()) {
		t.Error("a superseded preload is not a failure")
	}
}

func TestClientPreloadExhaustion(t *testing.T) {
	clk := clock.NewFake()
	p := &stubProvider{fn: func(context.Context, SynthesisRequest) (*SynthesisResult, error) {
		return nil, errors.New("nope")
	}}
	var diags []string
	c := NewClient(p, NewSynthesisCache(4), SynthesisConfig{
		PreloadDelays: []time.Duration{0, 500 * time.Millisecond, time.Second},
	}, clk)
	c.diag = func(code, detail string) { diags = append(diags, code+" "+detail) }

	req := SynthesisRequest{Text: "abc"}
	done := make(chan struct{})
	go func() {
		c.Preload(context.Background(), "", req)
		close(done)
	}()

	for {
		select {
		case <-done:
			if got := p.calls.Load(); got != 3 {
				t.Errorf("attempts = %d, want 3", got)
			}
			if !c.Failed(req.Key()) {
				t.Error("key should be marked failed")
			}
			if len(diags) != 1 || diags[0] != "preload_fail len=3 err=synthesis rejected: nope" {
				t.Errorf("diags = %q", diags)
			}
			c.ClearFailed()
			if c.Failed(req.Key()) {
				t.Error("ClearFailed should forget the key")
			}
			return
		case <-time.After(time.Millisecond):
			clk.Advance(100 * time.Millisecond)
		}
	}
}
