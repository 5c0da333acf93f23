// Package policy defines the gateway's PolicySnapshot: the immutable,
// versioned configuration bundle every other subsystem consults before
// acting. A snapshot is constructed by the loader, validated, checksummed,
// and published with a single atomic swap; nothing mutates it afterward.
package policy

import "time"

// ObsPolicy governs the instrumentation subsystem's sampling behavior.
type ObsPolicy struct {
	Enabled             bool     `toml:"enabled" json:"enabled"`
	SamplingRate        float64  `toml:"sampling_rate" json:"sampling_rate"`
	MaxSpansPerSec      int      `toml:"max_spans_per_second" json:"max_spans_per_sec"`
	EnabledOps          []string `toml:"enabled_ops" json:"enabled_ops,omitempty"`
	DisabledOps         []string `toml:"disabled_ops" json:"disabled_ops,omitempty"`
	IncludeTenantLabels bool     `toml:"include_tenant_labels" json:"include_tenant_labels"`
	MaxCardinality      int      `toml:"max_cardinality" json:"max_cardinality"`
}

// RateLimit is a per-command allowance: rpm requests per rolling minute,
// with burst reserve capacity consumable without cooldown.
type RateLimit struct {
	RPM   int `toml:"rpm" json:"rpm"`
	Burst int `toml:"burst" json:"burst"`
}

// SecPolicy governs admission control: MAC enforcement, session policy,
// and per-command rate limits.
type SecPolicy struct {
	MACEnforcement        bool                 `toml:"mac_enforcement" json:"mac_enforcement"`
	DefaultClassification string               `toml:"default_classification" json:"default_classification"`
	RequireMFA            bool                 `toml:"require_mfa" json:"require_mfa"`
	SessionTimeoutMin     int                  `toml:"session_timeout_minutes" json:"session_timeout_min"`
	MaxFailedAttempts     int                  `toml:"max_failed_attempts" json:"max_failed_attempts"`
	RateLimits            map[string]RateLimit `toml:"rate_limits" json:"rate_limits,omitempty"`
	AllowedCommands       []string             `toml:"allowed_commands" json:"allowed_commands,omitempty"`
	TenantIsolation       bool                 `toml:"tenant_isolation" json:"tenant_isolation"`
}

// AllowsCommand reports whether command is permitted. An empty allow-list
// means "allow all" (spec.md §4.2 step 2).
func (s SecPolicy) AllowsCommand(command string) bool {
	if len(s.AllowedCommands) == 0 {
		return true
	}
	for _, c := range s.AllowedCommands {
		if c == command {
			return true
		}
	}
	return false
}

// RateLimitFor returns the configured rate limit for command, falling back
// to a "default" rule, or ok=false if neither exists (no limit applies).
func (s SecPolicy) RateLimitFor(command string) (RateLimit, bool) {
	if rl, ok := s.RateLimits[command]; ok {
		return rl, true
	}
	if rl, ok := s.RateLimits["default"]; ok {
		return rl, true
	}
	return RateLimit{}, false
}

// PluginPolicy governs plugin execution limits and which runtimes are
// permitted.
type PluginPolicy struct {
	WASMEnabled         bool     `toml:"wasm_enabled" json:"wasm_enabled"`
	NativeEnabled       bool     `toml:"native_enabled" json:"native_enabled"`
	AllowedCapabilities []string `toml:"allowed_capabilities" json:"allowed_capabilities,omitempty"`
	MaxMemoryMB         int      `toml:"max_memory_mb" json:"max_memory_mb"`
	MaxExecMS           int      `toml:"max_execution_time_ms" json:"max_exec_ms"`
}

func (p PluginPolicy) hasCapability(name string) bool {
	for _, c := range p.AllowedCapabilities {
		if c == name {
			return true
		}
	}
	return false
}

// DatabasePolicy governs the advisor/optimizer surface the gateway exposes
// to its storage engine collaborator.
type DatabasePolicy struct {
	AdvisorMode  bool `toml:"advisor_mode" json:"advisor_mode"`
	AutoOptimize bool `toml:"auto_optimize" json:"auto_optimize"`
	MaxQueryMS   int  `toml:"max_query_ms" json:"max_query_ms"`
	PoolSize     int  `toml:"connection_pool_size" json:"pool_size"`
	QueryLogging bool `toml:"query_logging" json:"query_logging"`
}

// PolicySnapshot is the immutable, versioned configuration bundle. It is
// never mutated after construction; a new version replaces it wholesale via
// Swap.
type PolicySnapshot struct {
	Obs      ObsPolicy      `toml:"observability" json:"obs"`
	Sec      SecPolicy      `toml:"security" json:"sec"`
	Plugins  PluginPolicy   `toml:"plugins" json:"plugins"`
	Database DatabasePolicy `toml:"database" json:"database"`

	Version  uint64    `toml:"-" json:"version"`
	LoadedAt time.Time `toml:"-" json:"loaded_at"`
	Checksum string    `toml:"-" json:"checksum"`
}

// Diff summarizes which top-level sections changed between two snapshots,
// for the structured log line emitted on a successful swap.
type Diff struct {
	OldVersion           uint64
	NewVersion           uint64
	ObservabilityChanged bool
	SecurityChanged      bool
	PluginsChanged       bool
	DatabaseChanged      bool
}

// Changed reports whether any section differs.
func (d Diff) Changed() bool {
	return d.ObservabilityChanged || d.SecurityChanged || d.PluginsChanged || d.DatabaseChanged
}

// Summary renders a one-line, human-readable description of which sections
// changed, suitable for a structured log field.
func (d Diff) Summary() string {
	if !d.Changed() {
		return "policy swapped: no section changes"
	}
	sections := make([]string, 0, 4)
	if d.ObservabilityChanged {
		sections = append(sections, "observability")
	}
	if d.SecurityChanged {
		sections = append(sections, "security")
	}
	if d.PluginsChanged {
		sections = append(sections, "plugins")
	}
	if d.DatabaseChanged {
		sections = append(sections, "database")
	}
	out := "policy swapped v" + uitoa(d.OldVersion) + " -> v" + uitoa(d.NewVersion) + ": changed ["
	for i, s := range sections {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out + "]"
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
