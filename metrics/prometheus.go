package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// labelSets declares the label names for every contract metric, in the
// order values must be passed to IncCounter/ObserveHistogram.
var labelSets = map[string][]string{
	CommandInvocationsTotal:   {"command"},
	DispatchSuccessTotal:      {"command"},
	DispatchFailuresTotal:     {"reason", "command", "status_code"},
	DispatchDurationMs:        {"outcome", "command"},
	RateLimitExceededTotal:    {"tenant", "actor", "command"},
	RateLimitChecksPassed:     {"command"},
	AuthorizationSuccessTotal: {"command", "tenant"},
	AuthorizationFailureTotal: {"command", "reason", "tenant"},
	OpDurationMs:              {"op"},
	OpTotal:                   {"op"},
	AuditLogsDroppedTotal:     {},
	SpansCreatedTotal:         {"target"},
	SpansRateLimitedTotal:     {},
}

// PrometheusRecorder implements Recorder against a prometheus.Registerer.
// Vectors are created lazily on first use and registered once.
type PrometheusRecorder struct {
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusRecorder creates a Recorder that registers its vectors
// against reg. Pass prometheus.DefaultRegisterer to use the global
// registry that promhttp.Handler() serves.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	return &PrometheusRecorder{
		registerer: reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func (p *PrometheusRecorder) IncCounter(name string, labels ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.counters[name]
	if !ok {
		c = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: name, Help: name + " (gateway metric)"},
			labelSets[name],
		)
		p.registerer.MustRegister(c)
		p.counters[name] = c
	}
	c.WithLabelValues(labels...).Inc()
}

func (p *PrometheusRecorder) ObserveHistogram(name string, value float64, labels ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.histograms[name]
	if !ok {
		h = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: name, Help: name + " (gateway metric)"},
			labelSets[name],
		)
		p.registerer.MustRegister(h)
		p.histograms[name] = h
	}
	h.WithLabelValues(labels...).Observe(value)
}

var _ Recorder = (*PrometheusRecorder)(nil)
