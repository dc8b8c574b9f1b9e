package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "job_radar"

// Metrics holds every collector the radar exports. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	AdapterOutcomes  *prometheus.CounterVec
	AdapterAttempts  *prometheus.CounterVec
	Postings         *prometheus.CounterVec
	AICalls          *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	RateLimitWait    *prometheus.HistogramVec
	ContentGenerated *prometheus.CounterVec
	Dispatches       *prometheus.CounterVec
	State            *prometheus.GaugeVec
}

// New registers the collectors with reg. Each process normally calls it once
// with prometheus.DefaultRegisterer; tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Total number of completed cycles",
			},
			[]string{"aborted"},
		),
		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of a full cycle in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		AdapterOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "adapter_outcomes_total",
				Help:      "Adapter outcomes per source and status",
			},
			[]string{"source", "status"},
		),
		AdapterAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "adapter_attempts_total",
				Help:      "Fetch attempts per source including retries",
			},
			[]string{"source"},
		),
		Postings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "postings_total",
				Help:      "Postings seen by the normalizer grouped by kind (raw, collapsed, malformed, new)",
			},
			[]string{"kind"},
		),
		AICalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ai_calls_total",
				Help:      "Outbound AI calls per template, model and result",
			},
			[]string{"template", "model", "result"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "AI cache lookups by result",
			},
			[]string{"result"},
		),
		RateLimitWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rate_limit_wait_seconds",
				Help:      "Time spent waiting on a token bucket",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"key"},
		),
		ContentGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "content_generated_total",
				Help:      "Outreach bodies by source (ai-generated, template-fallback)",
			},
			[]string{"source"},
		),
		Dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Dispatch attempts per sink and result",
			},
			[]string{"sink", "result"},
		),
		State: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state",
				Help:      "Current orchestrator state (1 for the active state)",
			},
			[]string{"state"},
		),
	}
}

func (m *Metrics) ObserveCycle(d time.Duration, aborted bool) {
	if m == nil {
		return
	}
	label := "false"
	if aborted {
		label = "true"
	}
	m.CyclesTotal.WithLabelValues(label).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

func (m *Metrics) AdapterOutcome(source, status string, attempts int) {
	if m == nil {
		return
	}
	m.AdapterOutcomes.WithLabelValues(source, status).Inc()
	m.AdapterAttempts.WithLabelValues(source).Add(float64(attempts))
}

func (m *Metrics) AddPostings(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Postings.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) AICall(template, model, result string) {
	if m == nil {
		return
	}
	m.AICalls.WithLabelValues(template, model, result).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRateLimitWait(key string, d time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWait.WithLabelValues(key).Observe(d.Seconds())
}

func (m *Metrics) Content(source string) {
	if m == nil {
		return
	}
	m.ContentGenerated.WithLabelValues(source).Inc()
}

func (m *Metrics) Dispatch(sink string, ok bool) {
	if m == nil {
		return
	}
	result := "delivered"
	if !ok {
		result = "failed"
	}
	m.Dispatches.WithLabelValues(sink, result).Inc()
}

// SetState marks state as the only active one among states.
func (m *Metrics) SetState(state string, states []string) {
	if m == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.State.WithLabelValues(s).Set(v)
	}
}
