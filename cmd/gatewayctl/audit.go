package main

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/byteness/sentinel-gateway/audit"
)

// AuditVerifyCommandInput contains the input for audit verify.
type AuditVerifyCommandInput struct {
	Path        string
	ChainKeyB64 string

	Stdout *os.File
}

// ConfigureAuditVerifyCommand sets up the audit verify command.
func ConfigureAuditVerifyCommand(app *kingpin.Application) {
	input := AuditVerifyCommandInput{}

	auditCmd := app.Command("audit", "Audit log inspection")
	cmd := auditCmd.Command("verify", "Verify the hash chain of a newline-delimited JSON audit log")

	cmd.Arg("path", "Audit log file (newline-delimited JSON envelopes)").
		Required().
		StringVar(&input.Path)

	cmd.Flag("chain-key", "Base64-encoded audit chain key").
		Envar("SENTINEL_AUDIT_CHAIN_KEY").
		Required().
		StringVar(&input.ChainKeyB64)

	cmd.Action(func(c *kingpin.ParseContext) error {
		ok, err := AuditVerifyCommand(input)
		app.FatalIfError(err, "audit-verify")
		if !ok {
			os.Exit(1)
		}
		return nil
	})
}

// AuditVerifyCommand reads every envelope from Path and checks the hash
// chain against ChainKeyB64, reporting the first broken link if any.
func AuditVerifyCommand(input AuditVerifyCommandInput) (bool, error) {
	stdout := input.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	key, err := base64.StdEncoding.DecodeString(input.ChainKeyB64)
	if err != nil {
		return false, fmt.Errorf("chain-key is not valid base64: %w", err)
	}

	f, err := os.Open(input.Path)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", input.Path, err)
	}
	defer f.Close()

	var envelopes []audit.ForensicEnvelope
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env audit.ForensicEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			return false, fmt.Errorf("malformed envelope: %w", err)
		}
		envelopes = append(envelopes, env)
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("failed to read %s: %w", input.Path, err)
	}

	ok, brokenAt := audit.VerifyChain(key, envelopes)
	if ok {
		fmt.Fprintf(stdout, "%s %d envelopes, chain intact\n", okStyle.Render("OK "), len(envelopes))
		return true, nil
	}

	fmt.Fprintf(stdout, "%s chain broken at envelope %d of %d\n", errStyle.Render("ERR"), brokenAt, len(envelopes))
	return false, nil
}
