// Package metrics defines the counter/histogram contract the gateway emits
// and provides both a Prometheus-backed and an in-memory Recorder.
package metrics

// Recorder is the thin interface the rest of the gateway publishes metrics
// through. Callers never reach for a concrete metrics client directly, so
// the exporter can be swapped (Prometheus in production, in-memory in
// tests) without touching call sites.
type Recorder interface {
	// IncCounter increments a named counter with the given label values,
	// in the order the metric's label names were declared.
	IncCounter(name string, labels ...string)

	// ObserveHistogram records a value (milliseconds unless the metric
	// name says otherwise) against a named histogram.
	ObserveHistogram(name string, value float64, labels ...string)
}

// Metric names. Label order must match each metric's declared label set.
const (
	CommandInvocationsTotal   = "command_invocations_total"   // command
	DispatchSuccessTotal      = "dispatch_success_total"      // command
	DispatchFailuresTotal     = "dispatch_failures_total"     // reason, command, status_code
	DispatchDurationMs        = "dispatch_duration_ms"        // outcome, command
	RateLimitExceededTotal    = "rate_limit_exceeded_total"   // tenant, actor, command
	RateLimitChecksPassed     = "rate_limit_checks_passed_total" // command
	AuthorizationSuccessTotal = "authorization_success_total" // command, tenant
	AuthorizationFailureTotal = "authorization_failure_total" // command, reason, tenant
	OpDurationMs              = "op_duration_ms"              // op
	OpTotal                   = "op_total"                    // op
	AuditLogsDroppedTotal     = "audit_logs_dropped_total"     // (none)
	SpansCreatedTotal         = "spans_created_total"          // target
	SpansRateLimitedTotal     = "spans_rate_limited_total"     // (none)
)
