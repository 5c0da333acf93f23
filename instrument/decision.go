// Package instrument implements the automatic instrumentation decision
// engine: given an operation's classification, component, current
// performance state, and tenant, decide how much audit/metrics overhead
// that operation should pay, without the caller hand-wiring forensic
// calls at every site.
package instrument

import (
	"fmt"
	"time"

	"github.com/byteness/sentinel-gateway/gateway"
)

// Context identifies one operation for the decision engine: enough to
// pick a classification policy, a component policy, and (optionally) a
// tenant override.
type Context struct {
	Component      string
	Operation      string
	Classification gateway.ClassificationLevel
	UserID         string
	TenantID       string
}

// cacheKey is the LRU key for a Context; decisions are cached per
// component/operation/classification/tenant tuple, not per user.
func (c Context) cacheKey() string {
	return fmt.Sprintf("%s:%s:%s:%s", c.Component, c.Operation, c.Classification.String(), c.TenantID)
}

// PerformanceState is the system's current load band, used to scale back
// instrumentation automatically under pressure.
type PerformanceState int

const (
	Normal PerformanceState = iota
	Degraded
	HighLoad
	Critical
)

func (s PerformanceState) String() string {
	switch s {
	case Normal:
		return "normal"
	case Degraded:
		return "degraded"
	case HighLoad:
		return "high_load"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Decision is the instrumentation engine's verdict for one operation.
type Decision struct {
	Enabled             bool
	AuditRequired       bool
	MetricsEnabled      bool
	PerformanceTracking bool
	FullPayloadLogging  bool
	OverheadBudgetMs    uint64
}

// defaultDecision mirrors the original's `InstrumentationDecision::default`:
// instrumentation on, nothing else forced, a generous overhead budget.
func defaultDecision() Decision {
	return Decision{Enabled: true, OverheadBudgetMs: 5}
}

// cachedDecision pairs a Decision with cache bookkeeping.
type cachedDecision struct {
	decision  Decision
	createdAt time.Time
	hitCount  uint64
}

const decisionCacheTTL = 5 * time.Minute
