package instrument

// InstrumentationStats summarizes the engine's cache effectiveness and
// current performance posture, exposed for health checks and dashboards.
type InstrumentationStats struct {
	TotalDecisions   uint64
	CacheHits        uint64
	CacheHitRatio    float64
	PerformanceState PerformanceState
	SystemLoad       SystemLoadMetrics
}

// Stats computes a point-in-time InstrumentationStats snapshot by walking
// the decision cache's entries.
func (e *Engine) Stats() InstrumentationStats {
	e.mu.Lock()
	var total, hits uint64
	for _, key := range e.cache.Keys() {
		cached, ok := e.cache.Peek(key)
		if !ok {
			continue
		}
		total++
		hits += cached.hitCount - 1
	}
	e.mu.Unlock()

	var ratio float64
	if total > 0 {
		ratio = float64(hits) / float64(total+hits)
	}

	return InstrumentationStats{
		TotalDecisions:   total,
		CacheHits:        hits,
		CacheHitRatio:    ratio,
		PerformanceState: e.monitor.currentState(),
		SystemLoad:       e.monitor.systemLoadSnapshot(),
	}
}

// SetSystemLoad updates the load snapshot Stats reports; callers (e.g. a
// health-check loop) sample the OS and push the result here.
func (e *Engine) SetSystemLoad(load SystemLoadMetrics) {
	e.monitor.setSystemLoad(load)
}

// Reset returns the performance state to Normal.
func (e *Engine) Reset() {
	e.monitor.reset()
}
