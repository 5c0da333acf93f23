package metrics

import (
	"strings"
	"sync"
)

// MemoryRecorder is an in-memory Recorder for tests and standalone
// deployments without a Prometheus scraper. Safe for concurrent use.
type MemoryRecorder struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string][]float64
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		counters:   make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (m *MemoryRecorder) key(name string, labels []string) string {
	if len(labels) == 0 {
		return name
	}
	return name + "{" + strings.Join(labels, ",") + "}"
}

func (m *MemoryRecorder) IncCounter(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[m.key(name, labels)]++
}

func (m *MemoryRecorder) ObserveHistogram(name string, value float64, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(name, labels)
	m.histograms[k] = append(m.histograms[k], value)
}

// CounterValue returns the current value of a counter with the given
// label values, or 0 if it has never been incremented.
func (m *MemoryRecorder) CounterValue(name string, labels ...string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[m.key(name, labels)]
}

// HistogramObservations returns a copy of every value observed for a
// histogram with the given label values.
func (m *MemoryRecorder) HistogramObservations(name string, labels ...string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals := m.histograms[m.key(name, labels)]
	out := make([]float64, len(vals))
	copy(out, vals)
	return out
}

var _ Recorder = (*MemoryRecorder)(nil)
