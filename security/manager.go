package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/byteness/sentinel-gateway/audit"
	"github.com/byteness/sentinel-gateway/crypto"
	sentinelerrors "github.com/byteness/sentinel-gateway/errors"
	"github.com/byteness/sentinel-gateway/gateway"
	"github.com/byteness/sentinel-gateway/instrument"
)

// Config holds the Manager settings that have no home in policy.SecPolicy
// (which governs admission control, not session/threat behavior).
type Config struct {
	ThreatDetectionEnabled bool
	AutoResponseEnabled    bool
	SessionTimeout         time.Duration
	TokenTTL               time.Duration
}

// DefaultConfig matches the original's SecurityConfiguration::default.
// Auto-response is off: ThreatAssessment neither requires re-auth nor
// terminates a session unless the caller sets AutoResponseEnabled.
func DefaultConfig() Config {
	return Config{
		ThreatDetectionEnabled: true,
		AutoResponseEnabled:    false,
		SessionTimeout:         8 * time.Hour,
		TokenTTL:               8 * time.Hour,
	}
}

// Metrics is a point-in-time snapshot of the manager's operation counters.
type Metrics struct {
	TotalSecurityChecks uint64
	AccessGranted       uint64
	AccessDenied        uint64
	EncryptionOps       uint64
	DecryptionOps       uint64
	ThreatsDetected     uint64
	ThreatsMitigated    uint64
}

// OperationType names what SecurityCheck is being asked to authorize.
type OperationType string

const (
	OpAccessCheck      OperationType = "access_check"
	OpEncrypt          OperationType = "encrypt"
	OpDecrypt          OperationType = "decrypt"
	OpPolicyEvaluation OperationType = "policy_evaluation"
)

// CheckRequest is the input to SecurityCheck.
type CheckRequest struct {
	OperationType  OperationType
	UserID         string
	SessionID      uuid.UUID
	Resource       string
	Action         string
	Context        map[string]string
	Classification gateway.ClassificationLevel
}

// PolicyDecisionType is a single policy evaluation's verdict.
type PolicyDecisionType string

const (
	PolicyAllow                 PolicyDecisionType = "allow"
	PolicyDeny                  PolicyDecisionType = "deny"
	PolicyRequireApproval       PolicyDecisionType = "require_approval"
	PolicyRequireAdditionalAuth PolicyDecisionType = "require_additional_auth"
)

// PolicyDecision is one named policy's verdict for a CheckRequest.
type PolicyDecision struct {
	PolicyID   string
	Decision   PolicyDecisionType
	Reason     string
	Confidence float64
}

// CheckResult is SecurityCheck's verdict.
type CheckResult struct {
	Allowed         bool
	RiskScore       float64
	PolicyDecisions []PolicyDecision
	Events          []SecurityEvent
	AuditRequired   bool
}

// Manager is the central security orchestrator: it owns active
// SecurityContexts and sessions, enforces MAC via gateway.CanRead/CanWrite,
// delegates encryption to crypto.ClassificationCrypto, and scores risk via
// the embedded risk calculator. It never panics; every failure path
// returns a sentinelerrors.CoreError.
type Manager struct {
	crypto          *crypto.ClassificationCrypto
	auditWriter     *audit.Writer
	instrumentation *instrument.Engine
	risk            *riskCalculator
	tokens          *tokenIssuer

	mu       sync.RWMutex
	contexts map[uuid.UUID]SecurityContext
	sessions map[uuid.UUID]*securitySession

	configMu sync.RWMutex
	config   Config

	metricsMu sync.Mutex
	metrics   Metrics
}

// NewManager wires a Manager from its already-constructed dependencies.
// tokenKey seeds the SecurityContext bearer-token signer; it must be
// secret and distinct from the audit hash-chain key.
func NewManager(cryptoSystem *crypto.ClassificationCrypto, auditWriter *audit.Writer, instrumentation *instrument.Engine, tokenKey []byte, config Config) *Manager {
	return &Manager{
		crypto:          cryptoSystem,
		auditWriter:     auditWriter,
		instrumentation: instrumentation,
		risk:            newRiskCalculator(),
		tokens:          newTokenIssuer(tokenKey, config.TokenTTL),
		contexts:        make(map[uuid.UUID]SecurityContext),
		sessions:        make(map[uuid.UUID]*securitySession),
		config:          config,
	}
}

// Configure replaces the manager's runtime configuration.
func (m *Manager) Configure(config Config) {
	m.configMu.Lock()
	defer m.configMu.Unlock()
	m.config = config
}

func (m *Manager) currentConfig() Config {
	m.configMu.RLock()
	defer m.configMu.RUnlock()
	return m.config
}

// CreateSecurityContext establishes a new SecurityContext and session for
// an authenticated user, scoring initial risk from the authentication
// method, source IP, and historical profile.
func (m *Manager) CreateSecurityContext(userID string, label gateway.SecurityLabel, sessionID uuid.UUID, method AuthenticationMethod, sourceIP, userAgent string, permissions []string, compartments []gateway.Compartment) (SecurityContext, string, error) {
	contextID := uuid.New()
	now := time.Now()

	riskScore := m.risk.calculateBaseRisk(userID, method, sourceIP)

	ctx := SecurityContext{
		ContextID:          contextID,
		UserID:             userID,
		SessionID:          sessionID,
		Label:              label,
		CreatedAt:          now,
		LastAccessed:       now,
		Permissions:        permissions,
		CompartmentAccess:  compartments,
		SecurityAttributes: make(map[string]string),
	}

	session := &securitySession{
		sessionID:            sessionID,
		userID:               userID,
		label:                label,
		loginTime:            now,
		lastActivity:         now,
		sourceIP:             sourceIP,
		userAgent:            userAgent,
		authenticationMethod: method,
		state:                SessionActive,
		riskScore:            riskScore,
	}

	m.mu.Lock()
	m.contexts[contextID] = ctx
	m.sessions[sessionID] = session
	m.mu.Unlock()

	token, err := m.tokens.issue(ctx)
	if err != nil {
		return SecurityContext{}, "", err
	}

	env := audit.NewEnvelope(contextID, audit.EventAuthentication, userID, sessionID, label.Level, "security.context.created")
	_ = m.auditWriter.Log(env.WithMetadata(map[string]any{"auth_method": string(method)}))

	return ctx, token, nil
}

// GetSecurityContext looks up the context for a session ID.
func (m *Manager) GetSecurityContext(sessionID uuid.UUID) (SecurityContext, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ctx := range m.contexts {
		if ctx.SessionID == sessionID {
			return ctx, true
		}
	}
	return SecurityContext{}, false
}

// VerifyToken validates a bearer token and returns the SecurityContext it
// names, failing if the context has since been terminated.
func (m *Manager) VerifyToken(token string) (SecurityContext, error) {
	claims, err := m.tokens.verify(token)
	if err != nil {
		return SecurityContext{}, err
	}

	m.mu.RLock()
	ctx, ok := m.contexts[claims.ContextID]
	m.mu.RUnlock()
	if !ok {
		return SecurityContext{}, sentinelerrors.NewWithSuggestion(sentinelerrors.Unauthorized, sentinelerrors.ErrCodeSecurityContextNotFound, "security context not found for token", nil)
	}
	return ctx, nil
}

// UpdateSecurityContext records session activity and adjusts risk score by
// riskModifier (positive raises risk, negative lowers it), clamped to
// [0,100].
func (m *Manager) UpdateSecurityContext(sessionID uuid.UUID, activity string, riskModifier float64) error {
	m.mu.Lock()
	for contextID, ctx := range m.contexts {
		if ctx.SessionID == sessionID {
			ctx.LastAccessed = time.Now()
			m.contexts[contextID] = ctx
			break
		}
	}

	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return sentinelerrors.NewWithSuggestion(sentinelerrors.NotFound, sentinelerrors.ErrCodeSecurityContextNotFound, "no active session for id", nil)
	}
	session.lastActivity = time.Now()
	session.riskScore = clampRisk(session.riskScore + riskModifier)
	userID := session.userID
	m.mu.Unlock()

	m.risk.updateProfile(userID, activity, riskModifier)
	return nil
}

// TerminateSecurityContext removes the context and marks its session
// Terminated, emitting an audit event.
func (m *Manager) TerminateSecurityContext(sessionID uuid.UUID) error {
	m.mu.Lock()
	var contextToRemove uuid.UUID
	var found bool
	for contextID, ctx := range m.contexts {
		if ctx.SessionID == sessionID {
			contextToRemove = contextID
			found = true
			break
		}
	}
	if found {
		delete(m.contexts, contextToRemove)
	}

	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return sentinelerrors.NewWithSuggestion(sentinelerrors.NotFound, sentinelerrors.ErrCodeSecurityContextNotFound, "no active session for id", nil)
	}
	session.state = SessionTerminated
	userID := session.userID
	label := session.label
	m.mu.Unlock()

	env := audit.NewEnvelope(contextToRemove, audit.EventUserLogout, userID, sessionID, label.Level, "security.context.terminated")
	return m.auditWriter.Log(env)
}

// EncryptData verifies the caller may write at classification (no
// write-down) and delegates to crypto.ClassificationCrypto, binding AAD
// from the SecurityContext.
func (m *Manager) EncryptData(data []byte, classification gateway.ClassificationLevel, ctx SecurityContext, operationContext string) (crypto.EncryptedData, error) {
	objectLabel := gateway.NewSecurityLabel(classification, nil)
	if !gateway.CanWrite(ctx.Label, objectLabel) {
		return crypto.EncryptedData{}, sentinelerrors.NewWithSuggestion(sentinelerrors.Forbidden, sentinelerrors.ErrCodeMACDenied, "caller may not write at this classification", nil)
	}

	aad := &crypto.AdditionalAuthData{
		UserID:         ctx.UserID,
		SessionID:      ctx.SessionID,
		Classification: classification,
		Compartments:   compartmentStrings(ctx.CompartmentAccess),
		Context:        ctx.SecurityAttributes,
		Timestamp:      time.Now(),
	}

	encrypted, err := m.crypto.Encrypt(classification, data, aad, uuid.New(), ctx.SessionID, ctx.UserID, operationContext)
	if err != nil {
		return crypto.EncryptedData{}, err
	}

	m.metricsMu.Lock()
	m.metrics.EncryptionOps++
	m.metricsMu.Unlock()

	return encrypted, nil
}

// DecryptData verifies the caller may read at the ciphertext's recorded
// classification (no read-up) and delegates to crypto.ClassificationCrypto.
func (m *Manager) DecryptData(encrypted crypto.EncryptedData, ctx SecurityContext, operationContext string) ([]byte, error) {
	objectLabel := gateway.NewSecurityLabel(encrypted.Classification, nil)
	if !gateway.CanRead(ctx.Label, objectLabel) {
		return nil, sentinelerrors.NewWithSuggestion(sentinelerrors.Forbidden, sentinelerrors.ErrCodeMACDenied, "caller may not read at this classification", nil)
	}

	aad := &crypto.AdditionalAuthData{
		UserID:         ctx.UserID,
		SessionID:      ctx.SessionID,
		Classification: encrypted.Classification,
		Compartments:   compartmentStrings(ctx.CompartmentAccess),
		Context:        ctx.SecurityAttributes,
		Timestamp:      time.Now(),
	}

	plaintext, err := m.crypto.Decrypt(encrypted, encrypted.Classification, aad, ctx.UserID, operationContext)
	if err != nil {
		return nil, err
	}

	m.metricsMu.Lock()
	m.metrics.DecryptionOps++
	m.metricsMu.Unlock()

	return plaintext, nil
}

// EvaluatePolicies runs tenant-level policy checks for a request. Beyond
// the MAC gate (handled separately in SecurityCheck), this gateway has no
// tenant policy store wired in yet, so it returns a single default-allow
// decision; a future tenant policy service plugs in here without changing
// SecurityCheck's shape.
func (m *Manager) EvaluatePolicies(request CheckRequest, ctx SecurityContext) []PolicyDecision {
	return []PolicyDecision{{
		PolicyID:   "default",
		Decision:   PolicyAllow,
		Reason:     "no tenant policy overrides configured",
		Confidence: 1.0,
	}}
}

// SecurityCheck runs the full admission pipeline for one request: MAC,
// policy evaluation, and risk scoring, all wrapped in automatic
// instrumentation so the decision itself is audited and timed according to
// the instrument package's policy layering.
func (m *Manager) SecurityCheck(ctx context.Context, request CheckRequest) (CheckResult, error) {
	opCtx := instrument.Context{
		Component:      "security",
		Operation:      string(request.OperationType),
		Classification: request.Classification,
		UserID:         request.UserID,
	}

	result, err := instrument.InstrumentOperation[CheckResult](m.instrumentation, ctx, opCtx, m.auditWriter, nil, func(ctx context.Context) (CheckResult, error) {
		return m.performSecurityCheck(request)
	})

	m.updateMetrics(result, err)
	return result, err
}

func (m *Manager) performSecurityCheck(request CheckRequest) (CheckResult, error) {
	secCtx, ok := m.GetSecurityContext(request.SessionID)
	if !ok {
		return CheckResult{}, sentinelerrors.NewWithSuggestion(sentinelerrors.Unauthorized, sentinelerrors.ErrCodeSecurityContextNotFound, "no security context for session", nil)
	}

	resourceLabel := gateway.NewSecurityLabel(request.Classification, nil)
	macAllowed := true
	switch request.OperationType {
	case OpAccessCheck, OpDecrypt:
		macAllowed = gateway.CanRead(secCtx.Label, resourceLabel)
	case OpEncrypt:
		macAllowed = gateway.CanWrite(secCtx.Label, resourceLabel)
	}

	decisions := m.EvaluatePolicies(request, secCtx)
	policyAllowed := true
	for _, d := range decisions {
		if d.Decision != PolicyAllow {
			policyAllowed = false
			break
		}
	}

	riskScore := m.risk.assessActivity(request.UserID, fmt.Sprintf("%s:%s", request.Action, request.Resource))

	allowed := macAllowed && policyAllowed && riskScore < 80.0

	var events []SecurityEvent
	if !allowed {
		events = append(events, SecurityEvent{
			EventID:     uuid.New(),
			EventType:   EventAccessDenied,
			Timestamp:   time.Now(),
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("access denied for user %s to resource %s", request.UserID, request.Resource),
			Metadata:    request.Context,
		})
	}

	return CheckResult{
		Allowed:         allowed,
		RiskScore:       riskScore,
		PolicyDecisions: decisions,
		Events:          events,
		AuditRequired:   !allowed || riskScore > 50.0,
	}, nil
}

// ThreatAssessment scores activity, bands it into a ThreatLevel, and, when
// auto-response is enabled, acts on High/Critical levels: High requires
// re-authentication (reported, not enforced here), Critical terminates the
// session outright.
func (m *Manager) ThreatAssessment(ctx SecurityContext, activityDescription string, metadata map[string]string) (ThreatAssessmentResult, error) {
	riskScore := m.risk.assessActivity(ctx.UserID, activityDescription)
	level := thresholdLevel(riskScore)

	var autoResponse *AutoResponse
	if m.currentConfig().AutoResponseEnabled && riskScore >= 60.0 {
		switch level {
		case ThreatCritical:
			if err := m.TerminateSecurityContext(ctx.SessionID); err != nil {
				return ThreatAssessmentResult{}, err
			}
			resp := ResponseSessionTerminated
			autoResponse = &resp

			m.metricsMu.Lock()
			m.metrics.ThreatsMitigated++
			m.metricsMu.Unlock()
		case ThreatHigh:
			resp := ResponseRequireReauth
			autoResponse = &resp
		}
	}

	if level == ThreatHigh || level == ThreatCritical {
		m.metricsMu.Lock()
		m.metrics.ThreatsDetected++
		m.metricsMu.Unlock()
	}

	return ThreatAssessmentResult{
		RiskScore:          riskScore,
		Level:              level,
		AutoResponse:       autoResponse,
		RecommendedActions: recommendedActions(riskScore),
	}, nil
}

// Metrics returns a snapshot of the manager's cumulative operation counters.
func (m *Manager) Metrics() Metrics {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()
	return m.metrics
}

// ActiveSessionCount returns the number of sessions currently Active.
func (m *Manager) ActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.state == SessionActive {
			count++
		}
	}
	return count
}

func (m *Manager) updateMetrics(result CheckResult, err error) {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()
	m.metrics.TotalSecurityChecks++
	if err == nil && result.Allowed {
		m.metrics.AccessGranted++
	} else {
		m.metrics.AccessDenied++
	}
}

func compartmentStrings(compartments []gateway.Compartment) []string {
	out := make([]string, len(compartments))
	for i, c := range compartments {
		out[i] = string(c)
	}
	return out
}
