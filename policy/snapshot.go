package policy

import (
	"log"
	"sync/atomic"

	sentinelerrors "github.com/byteness/sentinel-gateway/errors"
)

// current holds the process-wide active snapshot behind an atomic.Pointer.
// Readers take no lock; this is the lock-free handle spec.md §4.1 requires
// of the hot read path.
var current atomic.Pointer[PolicySnapshot]

// Current returns the active PolicySnapshot. It never returns nil once
// Swap has been called at least once; callers that run before startup has
// installed a snapshot get a PolicyNotLoaded error from the dispatcher, not
// from this accessor (Current is allocation-free and cannot itself fail).
func Current() *PolicySnapshot {
	return current.Load()
}

// Loaded reports whether a snapshot has ever been installed.
func Loaded() bool {
	return current.Load() != nil
}

// Swap validates next, seals its checksum, diffs it against the previously
// active snapshot, and atomically installs it. On validation failure the
// active snapshot is left untouched and the error is returned; next's
// Version must be supplied by the caller (the loader increments it).
func Swap(next *PolicySnapshot) (Diff, error) {
	if err := next.Validate(); err != nil {
		return Diff{}, err
	}
	if err := next.sealChecksum(); err != nil {
		return Diff{}, sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodePolicyValidationFailed, "failed to seal policy checksum", err)
	}

	prev := current.Swap(next)

	d := diff(prev, next)
	logSwap(d)
	return d, nil
}

// VerifyAndSwap behaves like Swap but additionally rejects next if its
// stored checksum does not match its own content — used when next arrives
// pre-checksummed from an external loader and must be proven untampered
// before installation.
func VerifyAndSwap(next *PolicySnapshot) (Diff, error) {
	if !next.VerifyIntegrity() {
		return Diff{}, sentinelerrors.New(sentinelerrors.BadRequest, sentinelerrors.ErrCodePolicyChecksumMismatch, "policy checksum does not match content", nil)
	}
	return Swap(next)
}

func diff(prev, next *PolicySnapshot) Diff {
	d := Diff{NewVersion: next.Version}
	if prev == nil {
		d.ObservabilityChanged = true
		d.SecurityChanged = true
		d.PluginsChanged = true
		d.DatabaseChanged = true
		return d
	}
	d.OldVersion = prev.Version
	d.ObservabilityChanged = !obsEqual(prev.Obs, next.Obs)
	d.SecurityChanged = !secEqual(prev.Sec, next.Sec)
	d.PluginsChanged = !pluginsEqual(prev.Plugins, next.Plugins)
	d.DatabaseChanged = prev.Database != next.Database
	return d
}

// obsEqual, secEqual, and pluginsEqual compare field by field because
// ObsPolicy, SecPolicy, and PluginPolicy all carry map or slice fields,
// which Go disallows comparing with a plain `==`.
func obsEqual(a, b ObsPolicy) bool {
	if a.Enabled != b.Enabled ||
		a.SamplingRate != b.SamplingRate ||
		a.MaxSpansPerSec != b.MaxSpansPerSec ||
		a.IncludeTenantLabels != b.IncludeTenantLabels ||
		a.MaxCardinality != b.MaxCardinality {
		return false
	}
	if len(a.EnabledOps) != len(b.EnabledOps) || len(a.DisabledOps) != len(b.DisabledOps) {
		return false
	}
	for i, op := range a.EnabledOps {
		if b.EnabledOps[i] != op {
			return false
		}
	}
	for i, op := range a.DisabledOps {
		if b.DisabledOps[i] != op {
			return false
		}
	}
	return true
}

func secEqual(a, b SecPolicy) bool {
	if a.MACEnforcement != b.MACEnforcement ||
		a.DefaultClassification != b.DefaultClassification ||
		a.RequireMFA != b.RequireMFA ||
		a.SessionTimeoutMin != b.SessionTimeoutMin ||
		a.MaxFailedAttempts != b.MaxFailedAttempts ||
		a.TenantIsolation != b.TenantIsolation {
		return false
	}
	if len(a.RateLimits) != len(b.RateLimits) || len(a.AllowedCommands) != len(b.AllowedCommands) {
		return false
	}
	for k, v := range a.RateLimits {
		if b.RateLimits[k] != v {
			return false
		}
	}
	for i, c := range a.AllowedCommands {
		if b.AllowedCommands[i] != c {
			return false
		}
	}
	return true
}

func pluginsEqual(a, b PluginPolicy) bool {
	if a.WASMEnabled != b.WASMEnabled ||
		a.NativeEnabled != b.NativeEnabled ||
		a.MaxMemoryMB != b.MaxMemoryMB ||
		a.MaxExecMS != b.MaxExecMS {
		return false
	}
	if len(a.AllowedCapabilities) != len(b.AllowedCapabilities) {
		return false
	}
	for i, c := range a.AllowedCapabilities {
		if b.AllowedCapabilities[i] != c {
			return false
		}
	}
	return true
}

// logSwap emits the structured diff line. Logging failures must never block
// the hot path; this mirrors the fail-open pattern the teacher's signed
// logger uses on a signing error — write what we can, never panic or retry.
func logSwap(d Diff) {
	log.Printf("policy swap version=%d->%d observability_changed=%t security_changed=%t plugins_changed=%t database_changed=%t summary=%q",
		d.OldVersion, d.NewVersion, d.ObservabilityChanged, d.SecurityChanged, d.PluginsChanged, d.DatabaseChanged, d.Summary())
}
