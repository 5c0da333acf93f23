package dispatch

import (
	"time"

	"github.com/byteness/sentinel-gateway/metrics"
)

// opMetricsAdapter satisfies instrument.MetricsRecorder by forwarding to the
// gateway-wide metrics.Recorder under the op_total/op_duration_ms contract
// names, keeping the instrumentation package's interface independent of any
// concrete metrics backend.
type opMetricsAdapter struct {
	recorder metrics.Recorder
}

func (a opMetricsAdapter) RecordOperationStart(component, operation string) {
	// No separate "start" counter in the metric contract; op_total is
	// incremented on completion alongside its outcome-free label set.
}

func (a opMetricsAdapter) RecordOperationEnd(component, operation string, duration time.Duration, success bool) {
	a.recorder.IncCounter(metrics.OpTotal, operation)
	a.recorder.ObserveHistogram(metrics.OpDurationMs, float64(duration.Milliseconds()), operation)
}
