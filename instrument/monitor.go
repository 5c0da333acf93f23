package instrument

import (
	"sync"
	"time"
)

// OperationMetrics is the running timing/error profile for one
// "component.operation" key.
type OperationMetrics struct {
	AvgDurationMs float64
	TotalCount    uint64
	ErrorCount    uint64
	LastUpdated   time.Time
}

// SystemLoadMetrics is a coarse system-load snapshot; this gateway does
// not sample the OS itself, so these are set by whatever health-check
// component calls SetSystemLoad.
type SystemLoadMetrics struct {
	CPUUsagePercent        float64
	MemoryUsagePercent     float64
	ConcurrentOperations   uint64
}

// performanceMonitor tracks per-operation timings and the system-wide
// performance state that drives the PerformancePolicy layer.
type performanceMonitor struct {
	mu          sync.RWMutex
	state       PerformanceState
	timings     map[string]*OperationMetrics
	systemLoad  SystemLoadMetrics
}

func newPerformanceMonitor() *performanceMonitor {
	return &performanceMonitor{state: Normal, timings: make(map[string]*OperationMetrics)}
}

func (m *performanceMonitor) currentState() PerformanceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *performanceMonitor) systemLoadSnapshot() SystemLoadMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.systemLoad
}

// SetSystemLoad updates the load snapshot exposed via Stats.
func (m *performanceMonitor) setSystemLoad(load SystemLoadMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemLoad = load
}

func (m *performanceMonitor) updateOperationMetrics(key string, durationMs float64, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	metrics, ok := m.timings[key]
	if !ok {
		metrics = &OperationMetrics{AvgDurationMs: durationMs}
		m.timings[key] = metrics
	}
	metrics.TotalCount++
	if !success {
		metrics.ErrorCount++
	}
	metrics.AvgDurationMs = (metrics.AvgDurationMs + durationMs) / 2
	metrics.LastUpdated = time.Now()
}

// reportPerformanceIssue escalates the performance state based on how far
// an operation overran its overhead budget, matching the original's
// >200%→Critical, >100%→HighLoad, else→Degraded banding.
func (m *performanceMonitor) reportPerformanceIssue(overagePercent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case overagePercent > 200:
		m.state = Critical
	case overagePercent > 100:
		m.state = HighLoad
	default:
		m.state = Degraded
	}
}

// Reset returns the performance state to Normal, e.g. after a health check
// confirms load has subsided.
func (m *performanceMonitor) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Normal
}
