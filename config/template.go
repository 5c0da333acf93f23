package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/byteness/sentinel-gateway/policy"
)

// TemplateID identifies a pre-built policy template.
type TemplateID string

const (
	// TemplateBasic is a permissive development policy: MAC disabled, no
	// command allow-list, no rate limits.
	TemplateBasic TemplateID = "basic"
	// TemplateEnforced turns on MAC enforcement and a default rate limit,
	// with an explicit command allow-list.
	TemplateEnforced TemplateID = "enforced"
	// TemplateStrict additionally enables tenant isolation and MFA, and
	// forbids native plugin execution.
	TemplateStrict TemplateID = "strict"
)

// IsValid returns true if the TemplateID is a known value.
func (t TemplateID) IsValid() bool {
	switch t {
	case TemplateBasic, TemplateEnforced, TemplateStrict:
		return true
	}
	return false
}

func (t TemplateID) String() string {
	return string(t)
}

// AllTemplateIDs returns all valid template ID values.
func AllTemplateIDs() []TemplateID {
	return []TemplateID{TemplateBasic, TemplateEnforced, TemplateStrict}
}

// Template describes a pre-built policy template.
type Template struct {
	ID          TemplateID
	Name        string
	Description string
}

var templateRegistry = map[TemplateID]Template{
	TemplateBasic: {
		ID:          TemplateBasic,
		Name:        "Basic (development)",
		Description: "MAC enforcement off, no allow-list, no rate limits",
	},
	TemplateEnforced: {
		ID:          TemplateEnforced,
		Name:        "Enforced",
		Description: "MAC enforcement on, explicit command allow-list, a default rate limit",
	},
	TemplateStrict: {
		ID:          TemplateStrict,
		Name:        "Strict",
		Description: "Enforced plus tenant isolation, required MFA, and no native plugin execution",
	},
}

// GetTemplate returns the template metadata for the given ID.
func GetTemplate(id TemplateID) (Template, bool) {
	t, ok := templateRegistry[id]
	return t, ok
}

// AllTemplates returns metadata for all available templates.
func AllTemplates() []Template {
	templates := make([]Template, 0, len(templateRegistry))
	for _, id := range AllTemplateIDs() {
		templates = append(templates, templateRegistry[id])
	}
	return templates
}

// GenerateTemplate renders a policy.PolicySnapshot for the named template
// into TOML, scoping its command allow-list and default rate limit to
// commands. commands is ignored by TemplateBasic.
func GenerateTemplate(id TemplateID, commands []string) (string, error) {
	if !id.IsValid() {
		return "", fmt.Errorf("invalid template ID: %s", id)
	}
	if id != TemplateBasic && len(commands) == 0 {
		return "", fmt.Errorf("at least one command is required for the %s template", id)
	}

	snap := policy.PolicySnapshot{
		Obs: policy.ObsPolicy{
			Enabled:        false,
			SamplingRate:   0.1,
			MaxSpansPerSec: 100,
		},
		Database: policy.DatabasePolicy{
			MaxQueryMS: 1000,
			PoolSize:   10,
		},
	}

	switch id {
	case TemplateBasic:
		snap.Sec = policy.SecPolicy{
			SessionTimeoutMin: 60,
			MaxFailedAttempts: 5,
		}
	case TemplateEnforced:
		snap.Sec = policy.SecPolicy{
			MACEnforcement:        true,
			DefaultClassification: "internal",
			SessionTimeoutMin:     60,
			MaxFailedAttempts:     5,
			AllowedCommands:       commands,
			RateLimits: map[string]policy.RateLimit{
				"default": {RPM: 60, Burst: 10},
			},
		}
	case TemplateStrict:
		snap.Sec = policy.SecPolicy{
			MACEnforcement:        true,
			DefaultClassification: "confidential",
			RequireMFA:            true,
			SessionTimeoutMin:     30,
			MaxFailedAttempts:     3,
			TenantIsolation:       true,
			AllowedCommands:       commands,
			RateLimits: map[string]policy.RateLimit{
				"default": {RPM: 30, Burst: 5},
			},
		}
	}

	if err := snap.Validate(); err != nil {
		return "", fmt.Errorf("generated template failed validation: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(snap); err != nil {
		return "", fmt.Errorf("encode template: %w", err)
	}
	return buf.String(), nil
}
