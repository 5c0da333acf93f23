package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	sentinelerrors "github.com/byteness/sentinel-gateway/errors"
	"github.com/byteness/sentinel-gateway/policy"
)

// Validate validates config content based on type. It parses content and
// runs semantic validation, returning all issues found rather than
// stopping at the first one.
func Validate(configType ConfigType, content []byte, source string) ValidationResult {
	result := ValidationResult{
		ConfigType: configType,
		Source:     source,
		Valid:      true,
		Issues:     []ValidationIssue{},
	}

	if len(content) == 0 {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityError,
			Message:    "empty configuration",
			Suggestion: "provide policy TOML or a Settings YAML document",
		})
		return result
	}

	switch configType {
	case ConfigTypePolicy:
		validatePolicy(content, &result)
	case ConfigTypeBootstrap:
		validateBootstrap(content, &result)
	default:
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Message:    fmt.Sprintf("unknown config type: %s", configType),
			Severity:   SeverityError,
			Suggestion: fmt.Sprintf("use one of: %s", strings.Join(configTypeStrings(), ", ")),
		})
	}

	return result
}

// ValidateFile validates a local file, detecting its ConfigType from the
// extension when typ is empty: ".toml" is a policy file, anything else is
// treated as a Settings YAML document.
func ValidateFile(path string, typ ConfigType) (ValidationResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return ValidationResult{
			ConfigType: typ,
			Source:     path,
			Valid:      false,
			Issues: []ValidationIssue{{
				Severity:   SeverityError,
				Message:    fmt.Sprintf("failed to read file: %v", err),
				Suggestion: "verify the file path exists and is readable",
			}},
		}, err
	}
	if typ == "" {
		typ = DetectConfigType(path)
	}
	return Validate(typ, content, path), nil
}

// DetectConfigType guesses a ConfigType from a file path's extension.
func DetectConfigType(path string) ConfigType {
	if strings.HasSuffix(path, ".toml") {
		return ConfigTypePolicy
	}
	return ConfigTypeBootstrap
}

func validatePolicy(content []byte, result *ValidationResult) {
	snapshot, err := policy.LoadTOML(content, 0)
	if err != nil {
		result.Valid = false
		ce, _ := sentinelerrors.As(err)
		issue := ValidationIssue{
			Severity: SeverityError,
			Message:  err.Error(),
		}
		if ce != nil {
			issue.Location = ce.Code()
			issue.Suggestion = ce.Suggestion()
		}
		result.Issues = append(result.Issues, issue)
		return
	}

	addPolicyWarnings(snapshot, result)
}

func addPolicyWarnings(p *policy.PolicySnapshot, result *ValidationResult) {
	if !p.Sec.MACEnforcement {
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityWarning,
			Location:   "security.mac_enforcement",
			Message:    "MAC enforcement is disabled - all commands are admitted regardless of caller clearance",
			Suggestion: "set security.mac_enforcement = true unless this is a development policy",
		})
	}

	if len(p.Sec.AllowedCommands) == 0 {
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityWarning,
			Location:   "security.allowed_commands",
			Message:    "allowed_commands is empty - every registered command is reachable",
			Suggestion: "list the specific commands this policy should permit",
		})
	}

	if _, ok := p.Sec.RateLimits["default"]; !ok && len(p.Sec.RateLimits) > 0 {
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityWarning,
			Location:   "security.rate_limits",
			Message:    "no \"default\" rate limit rule - commands without an explicit entry are unlimited",
			Suggestion: "add a security.rate_limits.default entry as a backstop",
		})
	}

	if p.Plugins.NativeEnabled {
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityWarning,
			Location:   "plugins.native_enabled",
			Message:    "native plugin execution is enabled - this disables MAC enforcement by construction",
			Suggestion: "confirm native plugins are trusted, or disable plugins.native_enabled",
		})
	}
}

func validateBootstrap(content []byte, result *ValidationResult) {
	var settings Settings
	if err := yaml.Unmarshal(content, &settings); err != nil {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityError,
			Message:    fmt.Sprintf("YAML parse error: %v", err),
			Suggestion: "check YAML syntax for correct indentation and formatting",
		})
		return
	}

	if settings.TokenSigningKeyB64 == "" {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityError,
			Location:   "token_signing_key",
			Message:    "token_signing_key is required",
			Suggestion: "set token_signing_key to a base64-encoded key",
		})
	}
	if settings.AuditChainKeyB64 == "" {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityError,
			Location:   "audit_chain_key",
			Message:    "audit_chain_key is required",
			Suggestion: "set audit_chain_key to a base64-encoded key",
		})
	}
	if settings.Environment == "production" && settings.MasterKeySource == MasterKeySourceGenerated {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityError,
			Location:   "master_key_source",
			Message:    "master_key_source=generated is not allowed when environment=production",
			Suggestion: "set master_key_source to kms or secretsmanager",
		})
	}
	if settings.MasterKeySource == MasterKeySourceKMS && (settings.KMSKeyID == "" || settings.KMSCiphertextBlobB64 == "") {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityError,
			Location:   "master_key_source",
			Message:    "master_key_source=kms requires kms_key_id and kms_ciphertext_blob",
			Suggestion: "set both kms_key_id and kms_ciphertext_blob",
		})
	}
	if settings.MasterKeySource == MasterKeySourceSecretsManager && settings.SecretsManagerID == "" {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityError,
			Location:   "master_key_source",
			Message:    "master_key_source=secretsmanager requires secrets_manager_secret_id",
			Suggestion: "set secrets_manager_secret_id",
		})
	}
	if settings.AuditSink == AuditSinkPostgres && settings.DatabaseDSN == "" {
		result.Valid = false
		result.Issues = append(result.Issues, ValidationIssue{
			Severity:   SeverityError,
			Location:   "audit_sink",
			Message:    "audit_sink=postgres requires database_dsn",
			Suggestion: "set database_dsn to a postgres connection string",
		})
	}
}

func configTypeStrings() []string {
	types := AllConfigTypes()
	strs := make([]string, len(types))
	for i, t := range types {
		strs[i] = string(t)
	}
	return strs
}
