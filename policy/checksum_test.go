package policy

import "testing"

func TestSealAndVerifyIntegrity(t *testing.T) {
	s := validSnapshot()
	s.Version = 1
	if err := s.sealChecksum(); err != nil {
		t.Fatalf("sealChecksum: %v", err)
	}
	if s.Checksum == "" {
		t.Fatal("expected non-empty checksum after sealing")
	}
	if !s.VerifyIntegrity() {
		t.Fatal("expected freshly sealed snapshot to verify")
	}
}

func TestVerifyIntegrity_DetectsTamper(t *testing.T) {
	s := validSnapshot()
	s.Version = 1
	if err := s.sealChecksum(); err != nil {
		t.Fatalf("sealChecksum: %v", err)
	}

	s.Sec.MACEnforcement = false
	if s.VerifyIntegrity() {
		t.Fatal("expected tampered snapshot to fail integrity check")
	}
}

func TestVerifyIntegrity_EmptyChecksum(t *testing.T) {
	s := validSnapshot()
	if s.VerifyIntegrity() {
		t.Fatal("expected a snapshot with no checksum to fail verification")
	}
}
