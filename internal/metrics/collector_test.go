package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/ttsync/internal/clock"
	"github.com/dgnsrekt/ttsync/tts"
	"github.com/dgnsrekt/ttsync/tts/audio"
	"github.com/dgnsrekt/ttsync/tts/engines/mock"
)

func TestObserveSynthesis(t *testing.T) {
	c := NewCollector(nil)

	c.ObserveSynthesis("foreground", 200*time.Millisecond, nil)
	c.ObserveSynthesis("foreground", time.Second, fmt.Errorf("call: %w", tts.ErrSynthesisTimeout))
	c.ObserveSynthesis("preload", 50*time.Millisecond, tts.ErrSynthesisRejected)
	c.ObserveSynthesis("preload", 50*time.Millisecond, tts.ErrSynthesisUnavailable)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.synthTotal.WithLabelValues("foreground", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.synthTotal.WithLabelValues("foreground", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.synthTotal.WithLabelValues("preload", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.synthTotal.WithLabelValues("preload", "unavailable")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.synthDuration))
}

func TestObserveHTTPAndHandler(t *testing.T) {
	c := NewCollector(nil)
	c.ObserveHTTP("POST", "/speak", 202, 3*time.Millisecond)
	c.ObserveHTTP("POST", "/speak", 202, 5*time.Millisecond)
	c.ObserveHTTP("GET", "/state", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpTotal.WithLabelValues("POST", "/speak", "202")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `ttsync_http_requests_total{method="GET",route="/state",status="200"} 1`)
}

func TestAttach(t *testing.T) {
	clk := clock.NewFake()
	cfg := tts.DefaultConfig()
	cfg.Synthesis.PreloadRPS = 0
	cfg.Mock = tts.MockConfig{WordsPerMinute: 120, SampleRate: 8000}

	c := NewCollector(nil)
	engine := tts.NewEngine(cfg, mock.New(cfg.Mock), audio.NewMockSinkFactory(clk, nil),
		tts.WithClock(clk), tts.WithObserver(c))
	defer engine.Close()

	detach := c.Attach(engine)
	require.True(t, engine.Probe(context.Background()).Available)

	engine.Speak("Hello brave new world.")
	require.Eventually(t, func() bool {
		return engine.State().CurrentState == tts.StatePlaying
	}, 2*time.Second, time.Millisecond)
	clk.Advance(3 * time.Second)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.boundaries))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.utterances.WithLabelValues("end")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.diagTotal.WithLabelValues(tts.DiagProbeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.synthTotal.WithLabelValues("foreground", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.speaking))

	detach()
	engine.Speak("Hello brave new world.")
	require.Eventually(t, func() bool {
		return engine.State().CurrentState == tts.StatePlaying
	}, 2*time.Second, time.Millisecond)
	clk.Advance(3 * time.Second)
	assert.Equal(t, 4.0, testutil.ToFloat64(c.boundaries))
}
