package main

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/byteness/sentinel-gateway/audit"
	"github.com/byteness/sentinel-gateway/gateway"
)

func writeAuditLog(t *testing.T, key []byte) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer f.Close()

	writer := audit.NewWriter(key, audit.NewFileSink(f), 4)
	env := audit.NewEnvelope(uuid.New(), audit.EventAuthorization, "actor-a", uuid.New(), gateway.Internal, "dispatch:data.read")
	if err := writer.Log(env); err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	writer.Close()

	return path
}

func TestAuditVerifyCommand_IntactChain(t *testing.T) {
	key := make([]byte, 32)
	path := writeAuditLog(t, key)

	stdout := tempOutputFile(t)
	ok, err := AuditVerifyCommand(AuditVerifyCommandInput{
		Path:        path,
		ChainKeyB64: base64.StdEncoding.EncodeToString(key),
		Stdout:      stdout,
	})
	if err != nil {
		t.Fatalf("AuditVerifyCommand() error = %v", err)
	}
	if !ok {
		t.Errorf("expected the chain to verify, output:\n%s", readOutputFile(t, stdout))
	}
}

func TestAuditVerifyCommand_WrongKey(t *testing.T) {
	path := writeAuditLog(t, make([]byte, 32))

	wrongKey := make([]byte, 32)
	wrongKey[0] = 1

	stdout := tempOutputFile(t)
	ok, err := AuditVerifyCommand(AuditVerifyCommandInput{
		Path:        path,
		ChainKeyB64: base64.StdEncoding.EncodeToString(wrongKey),
		Stdout:      stdout,
	})
	if err != nil {
		t.Fatalf("AuditVerifyCommand() error = %v", err)
	}
	if ok {
		t.Error("expected chain verification to fail with the wrong key")
	}
}

func TestAuditVerifyCommand_InvalidChainKey(t *testing.T) {
	path := writeAuditLog(t, make([]byte, 32))

	_, err := AuditVerifyCommand(AuditVerifyCommandInput{
		Path:        path,
		ChainKeyB64: "not-base64!!",
	})
	if err == nil {
		t.Error("expected an error for invalid base64 chain key")
	}
}
