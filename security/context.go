// Package security implements the gateway's Security Manager: the
// component that owns session-scoped SecurityContexts, enforces MAC via
// the gateway package's domination rules, delegates encryption to
// crypto.ClassificationCrypto, scores risk, and emits audit events for
// every context lifecycle transition.
package security

import (
	"time"

	"github.com/google/uuid"

	"github.com/byteness/sentinel-gateway/gateway"
)

// AuthenticationMethod is how a session was established; it seeds the
// session's initial risk score.
type AuthenticationMethod string

const (
	AuthPassword   AuthenticationMethod = "password"
	AuthTwoFactor  AuthenticationMethod = "two_factor"
	AuthCertificate AuthenticationMethod = "certificate"
	AuthBiometric  AuthenticationMethod = "biometric"
	AuthSmartCard  AuthenticationMethod = "smart_card"
	AuthSAML       AuthenticationMethod = "saml"
	AuthOAuth2     AuthenticationMethod = "oauth2"
)

// baseRisk is each authentication method's starting risk contribution.
var baseRisk = map[AuthenticationMethod]float64{
	AuthPassword:    10.0,
	AuthTwoFactor:   5.0,
	AuthCertificate: 2.0,
	AuthBiometric:   3.0,
	AuthSmartCard:   1.0,
	AuthSAML:        4.0,
	AuthOAuth2:      6.0,
}

// SessionState is a SecuritySession's lifecycle state.
type SessionState string

const (
	SessionActive      SessionState = "active"
	SessionInactive    SessionState = "inactive"
	SessionSuspended   SessionState = "suspended"
	SessionTerminated  SessionState = "terminated"
	SessionExpired     SessionState = "expired"
)

// SecurityContext is the session-scoped authorization snapshot every MAC
// and crypto decision consults. It is owned by the Manager's active-context
// map; callers never construct one directly.
type SecurityContext struct {
	ContextID           uuid.UUID
	UserID              string
	SessionID           uuid.UUID
	Label               gateway.SecurityLabel
	TenantID            string
	CreatedAt           time.Time
	LastAccessed        time.Time
	Permissions         []string
	CompartmentAccess   []gateway.Compartment
	SecurityAttributes  map[string]string
}

// securitySession tracks session-level activity and risk, separately from
// the SecurityContext the caller sees; it is internal bookkeeping for
// threat assessment and auto-response.
type securitySession struct {
	sessionID              uuid.UUID
	userID                 string
	label                  gateway.SecurityLabel
	loginTime              time.Time
	lastActivity           time.Time
	sourceIP               string
	userAgent              string
	authenticationMethod   AuthenticationMethod
	state                  SessionState
	riskScore              float64
	events                 []SecurityEvent
}

// EventType classifies a SecurityEvent for threat detection.
type EventType string

const (
	EventLoginAttempt       EventType = "login_attempt"
	EventLoginFailure       EventType = "login_failure"
	EventAccessDenied       EventType = "access_denied"
	EventPrivilegeEscalation EventType = "privilege_escalation"
	EventUnauthorizedAccess EventType = "unauthorized_access"
	EventDataExfiltration   EventType = "data_exfiltration"
	EventPolicyViolation    EventType = "policy_violation"
	EventAnomalousActivity  EventType = "anomalous_activity"
	EventThreatDetected     EventType = "threat_detected"
)

// Severity ranks a SecurityEvent's urgency.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SecurityEvent is a session-scoped record feeding the risk calculator; it
// is distinct from audit.ForensicEnvelope, which is the durable, hash-chained
// record of the same fact.
type SecurityEvent struct {
	EventID     uuid.UUID
	EventType   EventType
	Timestamp   time.Time
	Severity    Severity
	Description string
	Metadata    map[string]string
}
