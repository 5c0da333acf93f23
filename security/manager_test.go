package security

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/byteness/sentinel-gateway/audit"
	sentinelcrypto "github.com/byteness/sentinel-gateway/crypto"
	"github.com/byteness/sentinel-gateway/gateway"
	"github.com/byteness/sentinel-gateway/instrument"
)

type nullSink struct {
	mu   sync.Mutex
	envs []audit.ForensicEnvelope
}

func (s *nullSink) Persist(env audit.ForensicEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
	return nil
}

var testTokenKey = []byte("session-token-test-key-0123456789")
var testChainKey = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T) (*Manager, *nullSink) {
	t.Helper()

	source, err := sentinelcrypto.NewGeneratedKeySource()
	if err != nil {
		t.Fatalf("NewGeneratedKeySource() error = %v", err)
	}
	cryptoSystem, err := sentinelcrypto.New(context.Background(), source)
	if err != nil {
		t.Fatalf("crypto.New() error = %v", err)
	}

	sink := &nullSink{}
	writer := audit.NewWriter(testChainKey, sink, 64)
	t.Cleanup(writer.Close)

	engine, err := instrument.NewEngine(nil, instrument.NewStaticLicense(instrument.LicenseEnterprise, map[string]bool{"advanced_forensics": true}))
	if err != nil {
		t.Fatalf("instrument.NewEngine() error = %v", err)
	}

	config := DefaultConfig()
	config.AutoResponseEnabled = true
	manager := NewManager(cryptoSystem, writer, engine, testTokenKey, config)
	return manager, sink
}

func TestCreateSecurityContext_IssuesVerifiableToken(t *testing.T) {
	manager, _ := newTestManager(t)
	label := gateway.NewSecurityLabel(gateway.Confidential, nil)

	ctx, token, err := manager.CreateSecurityContext("alice", label, uuid.New(), AuthTwoFactor, "10.0.0.1", "test-agent", []string{"read"}, nil)
	if err != nil {
		t.Fatalf("CreateSecurityContext() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty bearer token")
	}

	verified, err := manager.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if verified.ContextID != ctx.ContextID {
		t.Errorf("VerifyToken() returned context %v, want %v", verified.ContextID, ctx.ContextID)
	}
}

func TestGetSecurityContext_FoundAndNotFound(t *testing.T) {
	manager, _ := newTestManager(t)
	label := gateway.NewSecurityLabel(gateway.Internal, nil)
	sessionID := uuid.New()

	if _, ok := manager.GetSecurityContext(sessionID); ok {
		t.Fatal("expected no context before creation")
	}

	manager.CreateSecurityContext("bob", label, sessionID, AuthPassword, "", "", nil, nil)

	ctx, ok := manager.GetSecurityContext(sessionID)
	if !ok || ctx.UserID != "bob" {
		t.Fatalf("GetSecurityContext() = (%+v, %v), want bob's context", ctx, ok)
	}
}

func TestTerminateSecurityContext_RemovesContextAndEmitsAudit(t *testing.T) {
	manager, sink := newTestManager(t)
	label := gateway.NewSecurityLabel(gateway.Internal, nil)
	sessionID := uuid.New()
	manager.CreateSecurityContext("carol", label, sessionID, AuthPassword, "", "", nil, nil)

	if err := manager.TerminateSecurityContext(sessionID); err != nil {
		t.Fatalf("TerminateSecurityContext() error = %v", err)
	}

	if _, ok := manager.GetSecurityContext(sessionID); ok {
		t.Error("context should be gone after termination")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	found := false
	for _, env := range sink.envs {
		if env.EventType == audit.EventUserLogout {
			found = true
		}
	}
	if !found {
		t.Error("expected a user_logout audit envelope on termination")
	}
}

func TestEncryptDecryptData_RoundTripsThroughMAC(t *testing.T) {
	manager, _ := newTestManager(t)
	label := gateway.NewSecurityLabel(gateway.Confidential, nil)
	sessionID := uuid.New()
	ctx, _, err := manager.CreateSecurityContext("dave", label, sessionID, AuthCertificate, "", "", nil, nil)
	if err != nil {
		t.Fatalf("CreateSecurityContext() error = %v", err)
	}

	encrypted, err := manager.EncryptData([]byte("classified payload"), gateway.Confidential, ctx, "test-op")
	if err != nil {
		t.Fatalf("EncryptData() error = %v", err)
	}

	plaintext, err := manager.DecryptData(encrypted, ctx, "test-op")
	if err != nil {
		t.Fatalf("DecryptData() error = %v", err)
	}
	if string(plaintext) != "classified payload" {
		t.Errorf("DecryptData() = %q, want %q", plaintext, "classified payload")
	}
}

func TestEncryptData_DeniesWriteDown(t *testing.T) {
	manager, _ := newTestManager(t)
	label := gateway.NewSecurityLabel(gateway.Unclassified, nil)
	ctx, _, err := manager.CreateSecurityContext("eve", label, uuid.New(), AuthPassword, "", "", nil, nil)
	if err != nil {
		t.Fatalf("CreateSecurityContext() error = %v", err)
	}

	_, err = manager.EncryptData([]byte("data"), gateway.Secret, ctx, "test-op")
	if err == nil {
		t.Fatal("expected write-down to secret classification to be denied")
	}
}

func TestSecurityCheck_AllowsWithinClearance(t *testing.T) {
	manager, _ := newTestManager(t)
	label := gateway.NewSecurityLabel(gateway.Secret, nil)
	sessionID := uuid.New()
	manager.CreateSecurityContext("frank", label, sessionID, AuthCertificate, "", "", nil, nil)

	result, err := manager.SecurityCheck(context.Background(), CheckRequest{
		OperationType:  OpAccessCheck,
		UserID:         "frank",
		SessionID:      sessionID,
		Resource:       "report-1",
		Action:         "view",
		Classification: gateway.Internal,
	})
	if err != nil {
		t.Fatalf("SecurityCheck() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("SecurityCheck() = %+v, want allowed", result)
	}
}

func TestSecurityCheck_DeniesAboveClearance(t *testing.T) {
	manager, _ := newTestManager(t)
	label := gateway.NewSecurityLabel(gateway.Unclassified, nil)
	sessionID := uuid.New()
	manager.CreateSecurityContext("grace", label, sessionID, AuthPassword, "", "", nil, nil)

	result, err := manager.SecurityCheck(context.Background(), CheckRequest{
		OperationType:  OpAccessCheck,
		UserID:         "grace",
		SessionID:      sessionID,
		Resource:       "report-2",
		Action:         "view",
		Classification: gateway.Secret,
	})
	if err != nil {
		t.Fatalf("SecurityCheck() error = %v", err)
	}
	if result.Allowed {
		t.Error("SecurityCheck() should deny reading above clearance")
	}
	if len(result.Events) == 0 {
		t.Error("expected an access-denied event")
	}
}

func TestSecurityCheck_UnknownSessionErrors(t *testing.T) {
	manager, _ := newTestManager(t)
	_, err := manager.SecurityCheck(context.Background(), CheckRequest{
		OperationType: OpAccessCheck,
		UserID:        "ghost",
		SessionID:     uuid.New(),
	})
	if err == nil {
		t.Fatal("expected an error for an unknown session")
	}
}

func TestThreatAssessment_ElevatedActivityReachesMediumBand(t *testing.T) {
	manager, _ := newTestManager(t)
	label := gateway.NewSecurityLabel(gateway.Internal, nil)
	sessionID := uuid.New()
	ctx, _, err := manager.CreateSecurityContext("heidi", label, sessionID, AuthPassword, "", "", nil, nil)
	if err != nil {
		t.Fatalf("CreateSecurityContext() error = %v", err)
	}

	result, err := manager.ThreatAssessment(ctx, "admin delete export", nil)
	if err != nil {
		t.Fatalf("ThreatAssessment() error = %v", err)
	}
	if result.Level != ThreatMedium {
		t.Fatalf("ThreatAssessment() level = %s, want medium (score %v)", result.Level, result.RiskScore)
	}
	if result.AutoResponse != nil {
		t.Errorf("medium-band risk should not trigger auto-response, got %v", *result.AutoResponse)
	}

	if _, ok := manager.GetSecurityContext(sessionID); !ok {
		t.Error("medium-band threat assessment should not terminate the session")
	}
}

func TestThreatAssessment_LowRiskNoAutoResponse(t *testing.T) {
	manager, _ := newTestManager(t)
	label := gateway.NewSecurityLabel(gateway.Internal, nil)
	sessionID := uuid.New()
	ctx, _, err := manager.CreateSecurityContext("ivan", label, sessionID, AuthPassword, "", "", nil, nil)
	if err != nil {
		t.Fatalf("CreateSecurityContext() error = %v", err)
	}

	result, err := manager.ThreatAssessment(ctx, "view dashboard", nil)
	if err != nil {
		t.Fatalf("ThreatAssessment() error = %v", err)
	}
	if result.Level != ThreatLow && result.Level != ThreatMedium {
		t.Errorf("ThreatAssessment() level = %s, want low or medium for a benign activity", result.Level)
	}
	if result.AutoResponse != nil {
		t.Errorf("unexpected auto-response %v for non-elevated risk", *result.AutoResponse)
	}
}

func TestMetrics_TracksChecksAndCrypto(t *testing.T) {
	manager, _ := newTestManager(t)
	label := gateway.NewSecurityLabel(gateway.Confidential, nil)
	sessionID := uuid.New()
	ctx, _, _ := manager.CreateSecurityContext("judy", label, sessionID, AuthPassword, "", "", nil, nil)

	manager.SecurityCheck(context.Background(), CheckRequest{
		OperationType:  OpAccessCheck,
		UserID:         "judy",
		SessionID:      sessionID,
		Classification: gateway.Internal,
	})
	manager.EncryptData([]byte("x"), gateway.Confidential, ctx, "op")

	metrics := manager.Metrics()
	if metrics.TotalSecurityChecks != 1 {
		t.Errorf("TotalSecurityChecks = %d, want 1", metrics.TotalSecurityChecks)
	}
	if metrics.EncryptionOps != 1 {
		t.Errorf("EncryptionOps = %d, want 1", metrics.EncryptionOps)
	}
}

func TestActiveSessionCount(t *testing.T) {
	manager, _ := newTestManager(t)
	label := gateway.NewSecurityLabel(gateway.Internal, nil)
	manager.CreateSecurityContext("kim", label, uuid.New(), AuthPassword, "", "", nil, nil)
	manager.CreateSecurityContext("leo", label, uuid.New(), AuthPassword, "", "", nil, nil)

	if got := manager.ActiveSessionCount(); got != 2 {
		t.Errorf("ActiveSessionCount() = %d, want 2", got)
	}
}
