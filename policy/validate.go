package policy

import (
	"fmt"

	sentinelerrors "github.com/byteness/sentinel-gateway/errors"
)

// Validate checks every cross-field rule from spec.md §4.1. All rules must
// hold before a snapshot is eligible for Swap.
func (p *PolicySnapshot) Validate() error {
	if err := p.validateObs(); err != nil {
		return err
	}
	if err := p.validateSec(); err != nil {
		return err
	}
	if err := p.validatePlugins(); err != nil {
		return err
	}
	if err := p.validateDatabase(); err != nil {
		return err
	}
	return nil
}

func fail(reason string) error {
	return sentinelerrors.NewWithSuggestion(sentinelerrors.BadRequest, sentinelerrors.ErrCodePolicyValidationFailed, reason, nil)
}

func (p *PolicySnapshot) validateObs() error {
	if p.Obs.SamplingRate < 0.0 || p.Obs.SamplingRate > 1.0 {
		return fail(fmt.Sprintf("observability.sampling_rate must be in [0.0, 1.0], got %v", p.Obs.SamplingRate))
	}
	if p.Obs.Enabled && p.Obs.MaxSpansPerSec <= 0 {
		return fail("observability.max_spans_per_second must be > 0 when observability is enabled")
	}
	if p.Obs.IncludeTenantLabels && p.Obs.MaxCardinality <= 0 {
		return fail("observability.max_cardinality must be > 0 when include_tenant_labels is set")
	}
	return nil
}

func (p *PolicySnapshot) validateSec() error {
	if p.Sec.SessionTimeoutMin <= 0 || p.Sec.SessionTimeoutMin > 1440 {
		return fail(fmt.Sprintf("security.session_timeout_minutes must be in (0, 1440], got %d", p.Sec.SessionTimeoutMin))
	}
	if p.Sec.MaxFailedAttempts <= 0 {
		return fail("security.max_failed_attempts must be > 0")
	}
	for command, rl := range p.Sec.RateLimits {
		if rl.RPM <= 0 {
			return fail(fmt.Sprintf("security.rate_limits[%s].rpm must be > 0", command))
		}
		if rl.Burst > rl.RPM {
			return fail(fmt.Sprintf("security.rate_limits[%s].burst must be <= rpm", command))
		}
	}
	return nil
}

func (p *PolicySnapshot) validatePlugins() error {
	if p.Plugins.WASMEnabled {
		if p.Plugins.MaxMemoryMB <= 0 {
			return fail("plugins.max_memory_mb must be > 0 when wasm_enabled")
		}
		if p.Plugins.MaxExecMS <= 0 {
			return fail("plugins.max_execution_time_ms must be > 0 when wasm_enabled")
		}
	}
	if p.Plugins.NativeEnabled {
		if !p.Plugins.hasCapability("native_execution") {
			return fail("plugins.allowed_capabilities must include native_execution when native_enabled")
		}
		if p.Sec.MACEnforcement {
			return fail("plugins.native_enabled is incompatible with security.mac_enforcement")
		}
	}
	return nil
}

func (p *PolicySnapshot) validateDatabase() error {
	if p.Database.PoolSize <= 0 || p.Database.PoolSize > 100 {
		return fail(fmt.Sprintf("database.connection_pool_size must be in (0, 100], got %d", p.Database.PoolSize))
	}
	if p.Database.AutoOptimize && !p.Database.AdvisorMode {
		return fail("database.auto_optimize requires database.advisor_mode")
	}
	return nil
}
