package instrument

import (
	"context"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/google/uuid"

	"github.com/byteness/sentinel-gateway/audit"
)

// newOperationID mints a fresh identifier for an audit envelope's
// operation/session fields when the caller has none of its own.
func newOperationID() uuid.UUID { return uuid.New() }

// decisionCacheSize matches the original's 2048-entry LRU, sized for
// sub-0.1ms lookups on the hot path.
const decisionCacheSize = 2048

// LicenseTierProvider reports the caller's current license tier; the
// engine consults it once per decision to gate feature availability.
type LicenseTierProvider interface {
	Tier() LicenseTier
	HasFeature(name string) bool
}

// staticLicense is the simplest LicenseTierProvider: a fixed tier with no
// extra feature gating, useful for tests and single-tenant deployments.
type staticLicense struct {
	tier     LicenseTier
	features map[string]bool
}

func (s staticLicense) Tier() LicenseTier { return s.tier }
func (s staticLicense) HasFeature(name string) bool {
	return s.features[name]
}

// NewStaticLicense returns a LicenseTierProvider fixed to tier, with the
// given feature flags.
func NewStaticLicense(tier LicenseTier, features map[string]bool) LicenseTierProvider {
	return staticLicense{tier: tier, features: features}
}

// Engine is the automatic instrumentation decision engine: a decision
// cache backed by a policy engine and the current performance state.
type Engine struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *cachedDecision]
	policy  *policyEngine
	monitor *performanceMonitor
	license LicenseTierProvider
}

// NewEngine builds an Engine with the default classification/component/
// performance policies and the given tenant overrides and license
// provider.
func NewEngine(tenants map[string]TenantPolicy, license LicenseTierProvider) (*Engine, error) {
	cache, err := lru.New[string, *cachedDecision](decisionCacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cache:   cache,
		policy:  newPolicyEngine(tenants),
		monitor: newPerformanceMonitor(),
		license: license,
	}, nil
}

// Decide returns the instrumentation decision for ctx, serving from the
// LRU cache when a fresh entry exists and recomputing (then caching)
// otherwise.
func (e *Engine) Decide(ctx Context) Decision {
	key := ctx.cacheKey()

	e.mu.Lock()
	if cached, ok := e.cache.Get(key); ok {
		if time.Since(cached.createdAt) < decisionCacheTTL {
			cached.hitCount++
			decision := cached.decision
			e.mu.Unlock()
			return decision
		}
		e.cache.Remove(key)
	}
	e.mu.Unlock()

	decision := e.compute(ctx)

	e.mu.Lock()
	e.cache.Add(key, &cachedDecision{decision: decision, createdAt: time.Now(), hitCount: 1})
	e.mu.Unlock()

	return decision
}

// compute applies classification → component → performance → tenant →
// license layering, in that order, per spec.md §4.4.3.
func (e *Engine) compute(ctx Context) Decision {
	state := e.monitor.currentState()
	decision := defaultDecision()

	if classPolicy, ok := e.policy.classification[ctx.Classification]; ok {
		decision.AuditRequired = classPolicy.AuditRequired
		decision.MetricsEnabled = classPolicy.MetricsEnabled
		decision.PerformanceTracking = classPolicy.PerformanceTracking
		decision.FullPayloadLogging = classPolicy.FullPayloadLogging
		decision.OverheadBudgetMs = classPolicy.OverheadBudgetMs
	}

	if compPolicy, ok := e.policy.component[ctx.Component]; ok {
		decision.Enabled = decision.Enabled && compPolicy.Enabled
		decision.AuditRequired = decision.AuditRequired && compPolicy.AuditOperations[ctx.Operation]
		decision.MetricsEnabled = decision.MetricsEnabled && compPolicy.MetricsOperations[ctx.Operation]
	}

	if perfPolicy, ok := e.policy.performance[state]; ok {
		if perfPolicy.ReduceInstrumentation {
			decision.MetricsEnabled = false
			decision.FullPayloadLogging = false
			if decision.OverheadBudgetMs > 1 {
				decision.OverheadBudgetMs = 1
			}
		}
		if perfPolicy.EmergencyMode {
			decision.Enabled = false
			return decision
		}
	}

	if ctx.TenantID != "" {
		if tenantPolicy, ok := e.policy.tenant[ctx.TenantID]; ok {
			switch tenantPolicy.ComplianceLevel {
			case ComplianceSOX, ComplianceHIPAA, ComplianceDefense:
				decision.AuditRequired = true
				decision.FullPayloadLogging = true
			case ComplianceGDPR:
				decision.AuditRequired = true
				decision.FullPayloadLogging = false
			}
		}
	}

	switch e.license.Tier() {
	case LicenseCommunity:
		decision.FullPayloadLogging = false
		if decision.OverheadBudgetMs > 5 {
			decision.OverheadBudgetMs = 5
		}
	case LicensePro:
		decision.FullPayloadLogging = false
		if decision.OverheadBudgetMs > 3 {
			decision.OverheadBudgetMs = 3
		}
	case LicenseEnterprise:
		if !e.license.HasFeature("advanced_forensics") {
			decision.FullPayloadLogging = false
		}
	case LicenseDefense:
		decision.AuditRequired = true
		decision.PerformanceTracking = true
	}

	return decision
}

// MetricsRecorder is the narrow metrics surface instrumented operations
// drive; the metrics package implements it.
type MetricsRecorder interface {
	RecordOperationStart(component, operation string)
	RecordOperationEnd(component, operation string, duration time.Duration, success bool)
}

// checkPerformanceBudget logs a warning when an operation overruns its
// decision's overhead budget, and escalates performance state when the
// overage exceeds 50%.
func (e *Engine) checkPerformanceBudget(ctx Context, actual time.Duration, budgetMs uint64) {
	actualMs := uint64(actual.Milliseconds())
	if actualMs <= budgetMs || budgetMs == 0 {
		return
	}
	log.Printf("instrument: %s.%s took %dms, over its %dms overhead budget", ctx.Component, ctx.Operation, actualMs, budgetMs)
	overagePercent := (float64(actualMs-budgetMs) / float64(budgetMs)) * 100
	if overagePercent > 50 {
		e.monitor.reportPerformanceIssue(overagePercent)
	}
}

// InstrumentOperation runs op under ctx's instrumentation decision. When
// instrumentation is disabled it only runs op. Otherwise it emits
// operation-start/end audit envelopes (when audit is required) and metrics
// (when enabled), tracks the performance budget, and updates the
// performance monitor's per-operation timing stats.
func InstrumentOperation[T any](e *Engine, ctx context.Context, opCtx Context, writer *audit.Writer, recorder MetricsRecorder, op func(context.Context) (T, error)) (T, error) {
	decision := e.Decide(opCtx)

	if !decision.Enabled {
		return op(ctx)
	}

	operationID := newOperationID()
	start := time.Now()

	if decision.AuditRequired && writer != nil {
		env := audit.NewEnvelope(operationID, audit.EventOperationStart, opCtx.UserID, newOperationID(), opCtx.Classification, opCtx.Operation)
		_ = writer.Log(env)
	}
	if decision.MetricsEnabled && recorder != nil {
		recorder.RecordOperationStart(opCtx.Component, opCtx.Operation)
	}

	result, err := op(ctx)

	duration := time.Since(start)

	if decision.AuditRequired && writer != nil {
		env := audit.NewEnvelope(operationID, audit.EventOperationEnd, opCtx.UserID, newOperationID(), opCtx.Classification, opCtx.Operation)
		if err != nil {
			env = env.WithMetadata(map[string]any{"error": err.Error()})
		}
		_ = writer.Log(env)
	}
	if decision.MetricsEnabled && recorder != nil {
		recorder.RecordOperationEnd(opCtx.Component, opCtx.Operation, duration, err == nil)
	}

	if decision.PerformanceTracking {
		e.checkPerformanceBudget(opCtx, duration, decision.OverheadBudgetMs)
	}

	e.monitor.updateOperationMetrics(opCtx.Component+"."+opCtx.Operation, float64(duration.Milliseconds()), err == nil)

	return result, err
}
