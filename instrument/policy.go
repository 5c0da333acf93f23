package instrument

import "github.com/byteness/sentinel-gateway/gateway"

// ClassificationPolicy sets the baseline instrumentation level for a
// classification tier; higher classifications audit more and tolerate
// less overhead.
type ClassificationPolicy struct {
	AuditRequired       bool
	MetricsEnabled      bool
	PerformanceTracking bool
	FullPayloadLogging  bool
	OverheadBudgetMs    uint64
}

// ComponentPolicy narrows instrumentation to the operations that matter
// for a specific component (e.g. only "put"/"delete" need audit on
// "storage", not "get").
type ComponentPolicy struct {
	Enabled             bool
	AuditOperations     map[string]bool
	MetricsOperations   map[string]bool
	PerformanceCritical bool
	MaxOverheadMs       uint64
}

// PerformancePolicy scales instrumentation back as system load rises.
type PerformancePolicy struct {
	ReduceInstrumentation bool
	PriorityOperationsOnly bool
	DisablePayloadLogging bool
	EmergencyMode         bool
}

// ComplianceLevel names the regulatory regime a tenant operates under.
type ComplianceLevel string

const (
	ComplianceStandard ComplianceLevel = "standard"
	ComplianceSOX      ComplianceLevel = "sox"
	ComplianceHIPAA    ComplianceLevel = "hipaa"
	ComplianceGDPR     ComplianceLevel = "gdpr"
	ComplianceDefense  ComplianceLevel = "defense"
)

// PerformanceRequirements are a tenant's negotiated overhead ceilings.
type PerformanceRequirements struct {
	MaxOverheadMs      uint64
	MaxAuditLatencyMs  uint64
	HighThroughputMode bool
}

// TenantPolicy overrides classification/component policy for one tenant,
// typically driven by a compliance obligation.
type TenantPolicy struct {
	TenantID                string
	ComplianceLevel         ComplianceLevel
	CustomAuditRequirements []string
	Performance             PerformanceRequirements
}

// LicenseTier gates which instrumentation features are available.
type LicenseTier string

const (
	LicenseCommunity LicenseTier = "community"
	LicensePro       LicenseTier = "pro"
	LicenseEnterprise LicenseTier = "enterprise"
	LicenseDefense   LicenseTier = "defense"
)

// policyEngine holds every instrumentation policy layer. It is read-only
// after construction; rebuild it (policy hot-swap) rather than mutate it
// under load.
type policyEngine struct {
	classification map[gateway.ClassificationLevel]ClassificationPolicy
	component      map[string]ComponentPolicy
	performance    map[PerformanceState]PerformancePolicy
	tenant         map[string]TenantPolicy
}

// newPolicyEngine builds the default policy set, matching the original's
// per-classification/per-component/per-performance-state defaults.
func newPolicyEngine(tenants map[string]TenantPolicy) *policyEngine {
	return &policyEngine{
		classification: defaultClassificationPolicies(),
		component:      defaultComponentPolicies(),
		performance:    defaultPerformancePolicies(),
		tenant:         tenants,
	}
}

func defaultClassificationPolicies() map[gateway.ClassificationLevel]ClassificationPolicy {
	return map[gateway.ClassificationLevel]ClassificationPolicy{
		gateway.Unclassified: {
			AuditRequired: false, MetricsEnabled: true, PerformanceTracking: true,
			FullPayloadLogging: false, OverheadBudgetMs: 5,
		},
		gateway.Internal: {
			AuditRequired: true, MetricsEnabled: true, PerformanceTracking: true,
			FullPayloadLogging: false, OverheadBudgetMs: 3,
		},
		gateway.Confidential: {
			AuditRequired: true, MetricsEnabled: true, PerformanceTracking: true,
			FullPayloadLogging: true, OverheadBudgetMs: 2,
		},
		gateway.Secret: {
			AuditRequired: true, MetricsEnabled: true, PerformanceTracking: true,
			FullPayloadLogging: true, OverheadBudgetMs: 1,
		},
		gateway.NatoSecret: {
			AuditRequired: true, MetricsEnabled: true, PerformanceTracking: true,
			FullPayloadLogging: true, OverheadBudgetMs: 1,
		},
	}
}

func defaultComponentPolicies() map[string]ComponentPolicy {
	return map[string]ComponentPolicy{
		"storage": {
			Enabled:             true,
			AuditOperations:     map[string]bool{"put": true, "delete": true},
			MetricsOperations:   map[string]bool{"get": true, "put": true, "delete": true},
			PerformanceCritical: true,
			MaxOverheadMs:       2,
		},
		"ui": {
			Enabled:             true,
			AuditOperations:     map[string]bool{"action": true},
			MetricsOperations:   map[string]bool{"render": true, "action": true},
			PerformanceCritical: true,
			MaxOverheadMs:       1,
		},
	}
}

func defaultPerformancePolicies() map[PerformanceState]PerformancePolicy {
	return map[PerformanceState]PerformancePolicy{
		Normal: {},
		Degraded: {
			ReduceInstrumentation: true,
		},
		HighLoad: {
			ReduceInstrumentation: true, PriorityOperationsOnly: true, DisablePayloadLogging: true,
		},
		Critical: {
			ReduceInstrumentation: true, PriorityOperationsOnly: true, DisablePayloadLogging: true, EmergencyMode: true,
		},
	}
}
