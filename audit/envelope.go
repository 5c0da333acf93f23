// Package audit implements the gateway's tamper-evident forensic log: an
// HMAC hash-chained sequence of ForensicEnvelope records, written through a
// bounded async channel so the hot path never blocks on disk or database
// I/O except for the handful of event classes that must.
package audit

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/byteness/sentinel-gateway/gateway"
)

// EventType categorizes a ForensicEnvelope for search, retention policy, and
// the high-priority bypass check.
type EventType string

const (
	EventAuthentication     EventType = "authentication"
	EventAuthorization      EventType = "authorization"
	EventAccessDenied       EventType = "access_denied"
	EventSecurityViolation  EventType = "security_violation"
	EventDataAccess         EventType = "data_access"
	EventDataModification   EventType = "data_modification"
	EventDataDeletion       EventType = "data_deletion"
	EventDataExport         EventType = "data_export"
	EventSystemStart        EventType = "system_start"
	EventSystemStop         EventType = "system_stop"
	EventConfigurationChange EventType = "configuration_change"
	EventPerformanceAlert   EventType = "performance_alert"
	EventUserLogin          EventType = "user_login"
	EventUserLogout         EventType = "user_logout"
	EventUserAction         EventType = "user_action"
	EventPolicyViolation    EventType = "policy_violation"
	EventComplianceCheck    EventType = "compliance_check"
	EventAuditExport        EventType = "audit_export"
	EventOperationStart     EventType = "operation_start"
	EventOperationEnd       EventType = "operation_end"
)

// String returns the stable tag for the event type.
func (e EventType) String() string { return string(e) }

// ForensicEnvelope is a single immutable audit record. Once chain_hash is
// set by the writer, nothing about the envelope may change; the chain hash
// binds it to the envelope that preceded it.
type ForensicEnvelope struct {
	EnvelopeID     uuid.UUID              `json:"envelope_id"`
	OperationID    uuid.UUID              `json:"operation_id"`
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	UserID         string                 `json:"user_id"`
	SessionID      uuid.UUID              `json:"session_id"`
	Classification gateway.ClassificationLevel `json:"classification"`
	Action         string                 `json:"action"`
	Resource       string                 `json:"resource,omitempty"`
	BeforeState    any                    `json:"before_state,omitempty"`
	AfterState     any                    `json:"after_state,omitempty"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
	ChainHash      string                 `json:"chain_hash"`
}

// NewEnvelope constructs an envelope with a fresh EnvelopeID and the current
// timestamp. ChainHash is left empty; the writer fills it in as the
// envelope is appended to the chain.
func NewEnvelope(operationID uuid.UUID, eventType EventType, userID string, sessionID uuid.UUID, classification gateway.ClassificationLevel, action string) ForensicEnvelope {
	return ForensicEnvelope{
		EnvelopeID:     uuid.New(),
		OperationID:    operationID,
		EventType:      eventType,
		Timestamp:      time.Now(),
		UserID:         userID,
		SessionID:      sessionID,
		Classification: classification,
		Action:         action,
	}
}

// WithResource attaches a resource identifier.
func (e ForensicEnvelope) WithResource(resource string) ForensicEnvelope {
	e.Resource = resource
	return e
}

// WithStateChange attaches before/after state snapshots.
func (e ForensicEnvelope) WithStateChange(before, after any) ForensicEnvelope {
	e.BeforeState = before
	e.AfterState = after
	return e
}

// WithMetadata attaches arbitrary structured metadata.
func (e ForensicEnvelope) WithMetadata(metadata map[string]any) ForensicEnvelope {
	e.Metadata = metadata
	return e
}

// isHighPriority reports whether e must bypass the buffered writer and
// persist synchronously: security events, anything carrying "error" in its
// action, or anything at Secret/NatoSecret classification.
func (e ForensicEnvelope) isHighPriority() bool {
	switch e.EventType {
	case EventSecurityViolation, EventAccessDenied, EventAuthorization, EventPolicyViolation:
		return true
	}
	if strings.Contains(strings.ToLower(e.Action), "error") || strings.Contains(string(e.EventType), "security") {
		return true
	}
	return e.Classification >= gateway.Secret
}
