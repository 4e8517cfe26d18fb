// Package metrics exposes engine and server activity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgnsrekt/ttsync/tts"
)

// Namespace prefixes every metric name.
const Namespace = "ttsync"

// Collector records synthesis calls, diagnostics, boundaries and HTTP
// requests. It implements tts.SynthesisObserver.
type Collector struct {
	registry *prometheus.Registry

	synthTotal    *prometheus.CounterVec
	synthDuration *prometheus.HistogramVec
	diagTotal     *prometheus.CounterVec
	boundaries    prometheus.Counter
	utterances    *prometheus.CounterVec
	speaking      prometheus.Gauge

	httpTotal    *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector registers all metrics on reg. A nil reg gets a fresh
// registry, which keeps tests and multiple engines apart.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		synthTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "synthesis_requests_total",
			Help:      "Provider synthesis calls by kind and outcome",
		}, []string{"kind", "status"}),
		synthDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Provider synthesis latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		}, []string{"kind"}),
		diagTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "diagnostics_total",
			Help:      "Diagnostic events by code",
		}, []string{"code"}),
		boundaries: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "boundaries_total",
			Help:      "Word boundary events delivered",
		}),
		utterances: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "utterances_total",
			Help:      "Finished utterances by outcome",
		}, []string{"outcome"}),
		speaking: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "speaking",
			Help:      "1 while an utterance is requested or playing",
		}),
		httpTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the registry the metrics live in.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveSynthesis implements tts.SynthesisObserver.
func (c *Collector) ObserveSynthesis(kind string, d time.Duration, err error) {
	c.synthTotal.WithLabelValues(kind, synthStatus(err)).Inc()
	c.synthDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func synthStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, tts.ErrSynthesisTimeout):
		return "timeout"
	case errors.Is(err, tts.ErrSynthesisUnavailable), errors.Is(err, tts.ErrProviderUnavailable):
		return "unavailable"
	default:
		return "rejected"
	}
}

// Attach subscribes the collector to an engine's event streams and returns
// a func that detaches it.
func (c *Collector) Attach(e *tts.Engine) (detach func()) {
	unsubs := []func(){
		e.OnDiag(func(d tts.DiagnosticEvent) {
			c.diagTotal.WithLabelValues(d.Code).Inc()
			c.speaking.Set(boolGauge(e.IsSpeaking()))
		}),
		e.OnBoundary(func(tts.Boundary) { c.boundaries.Inc() }),
		e.OnEnd(func() {
			c.utterances.WithLabelValues("end").Inc()
			c.speaking.Set(0)
		}),
		e.OnError(func(*tts.TTSError) {
			c.utterances.WithLabelValues("error").Inc()
			c.speaking.Set(0)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// ObserveHTTP records one served request. route is the matched pattern, not
// the raw path.
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	c.httpTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
