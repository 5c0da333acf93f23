package policy

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"time"
)

// checksumPayload is the canonical serialization used for the integrity
// hash: every field except the checksum itself. Version and LoadedAt are
// included so two snapshots with identical policy content but different
// load times still get distinct checksums, matching the original's
// "serialized body sans checksum" rule.
type checksumPayload struct {
	Obs      ObsPolicy      `json:"obs"`
	Sec      SecPolicy      `json:"sec"`
	Plugins  PluginPolicy   `json:"plugins"`
	Database DatabasePolicy `json:"database"`
	Version  uint64         `json:"version"`
	LoadedAt time.Time      `json:"loaded_at"`
}

// computeChecksum returns the hex-encoded SHA-256 hash of p's canonical
// serialization, excluding the Checksum field.
func computeChecksum(p *PolicySnapshot) (string, error) {
	payload := checksumPayload{
		Obs:      p.Obs,
		Sec:      p.Sec,
		Plugins:  p.Plugins,
		Database: p.Database,
		Version:  p.Version,
		LoadedAt: p.LoadedAt,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyIntegrity recomputes p's checksum and compares it in constant time
// against the stored value, rejecting a tampered or corrupted snapshot.
func (p *PolicySnapshot) VerifyIntegrity() bool {
	if p.Checksum == "" {
		return false
	}
	computed, err := computeChecksum(p)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(p.Checksum), []byte(computed)) == 1
}

// sealChecksum computes and stores p's checksum. Called once, by the loader,
// before a snapshot is ever exposed to Swap.
func (p *PolicySnapshot) sealChecksum() error {
	sum, err := computeChecksum(p)
	if err != nil {
		return err
	}
	p.Checksum = sum
	return nil
}
