package errors

// Suggestions contains default fix suggestions for each error code.
// NewWithSuggestion attaches the matching entry when it constructs an
// error, so errors built through it carry actionable text when a tag exists.
var Suggestions = map[string]string{
	ErrCodeContextInvalid:          "Check that tenant_id, session_id, and actor are non-empty and within length bounds.",
	ErrCodeCommandNotFound:         "Verify the command name against the namespaced command registry (system.*, security.*, data.*, observability.*, license.*, enterprise.*, plugin.*).",
	ErrCodeSessionInvalid:          "Re-authenticate; the session token is expired or was revoked.",
	ErrCodeSessionUnavailable:      "The session store is unreachable. Retry after a backoff.",
	ErrCodeRateLimited:             "Reduce request rate for this tenant/actor/command or raise the configured rpm in policy.",
	ErrCodeMACDenied:               "The caller's security label does not dominate the resource's classification. Elevate clearance or request a lower-classification resource.",
	ErrCodePanicRecovered:          "An unexpected internal panic was converted to an error. Check audit logs for the captured stack context.",
	ErrCodeDeadlineExceeded:        "A sub-budget (session/MAC check) exceeded its allotted time. Retry, or investigate the slow subsystem.",
	ErrCodePolicyParseFailed:       "The policy file is not valid TOML. Validate it with gatewayctl policy validate.",
	ErrCodePolicyValidationFailed:  "The policy failed a cross-field validation rule. Run gatewayctl policy validate for the specific reason.",
	ErrCodePolicyChecksumMismatch:  "The loaded policy's checksum does not match its recorded checksum; the file may have been tampered with or partially written.",
	ErrCodePolicyNotLoaded:         "No policy snapshot has been installed yet. Call policy.Swap with a validated snapshot at startup.",
	ErrCodeCryptoUnknownDomain:     "No CryptoDomain is registered for the requested classification level.",
	ErrCodeCryptoKeyDerivation:     "Key derivation failed. Check the master key source is reachable and the derivation config is valid.",
	ErrCodeCryptoAADMismatch:       "Additional authentication data did not match the pinned hash; the ciphertext's binding context changed or the data was tampered with.",
	ErrCodeCryptoClassMismatch:     "The ciphertext's recorded classification does not match the classification requested for decryption.",
	ErrCodeCryptoDecryptFailed:     "AEAD authentication failed. The ciphertext, nonce, or AAD is wrong or corrupted.",
	ErrCodeCryptoMasterKeySource:   "The configured MasterKeySource could not produce a key. Check KMS/SecretsManager connectivity and IAM permissions.",
	ErrCodeCryptoRotationRunning:   "A key rotation for this domain is already in progress.",
	ErrCodeAuditChainBroken:        "The forensic hash chain failed integrity verification at this envelope. Treat the log as compromised from this point forward.",
	ErrCodeAuditBufferFull:         "The bounded audit writer channel is full and the event was dropped. Increase buffer capacity or investigate a slow sink.",
	ErrCodeAuditSinkFailed:         "The audit sink (file or database) failed to persist an envelope. Check disk space or database connectivity.",
	ErrCodeSecurityContextNotFound: "No SecurityContext exists for this context id. Call security.Manager.CreateSecurityContext first.",
	ErrCodeSecurityContextExpired:  "The SecurityContext has expired and must be re-established.",
	ErrCodeThreatCritical:          "Threat score crossed the critical band; the security context was terminated automatically.",
	ErrCodeConfigMissingEnv:        "A required configuration field was left empty. Check the Settings file against config.Bootstrap's field list.",
	ErrCodeConfigInvalid:           "The configuration value could not be parsed or used as given. Check its format against the Settings field it fills.",
	ErrCodeConfigInsecureProd:      "Set master_key_source to kms or secretsmanager for a production deployment; generated keys never persist across restarts.",
}

// GetSuggestion returns the default suggestion for an error code, or "" if
// none is defined.
func GetSuggestion(code string) string {
	return Suggestions[code]
}

// NewWithSuggestion constructs a CoreError and fills in its suggestion from
// Suggestions if one is registered for the code.
func NewWithSuggestion(status Status, code, message string, cause error) CoreError {
	ce := New(status, code, message, cause)
	if s := GetSuggestion(code); s != "" {
		ce = WithSuggestion(ce, s)
	}
	return ce
}
