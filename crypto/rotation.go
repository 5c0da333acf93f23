package crypto

import (
	"sync"
	"time"

	"github.com/byteness/sentinel-gateway/gateway"
)

// RotationType distinguishes why a key rotation happened, carried through
// to the audit trail for compliance review.
type RotationType string

const (
	RotationScheduled  RotationType = "scheduled"
	RotationEmergency  RotationType = "emergency"
	RotationManual     RotationType = "manual"
	RotationCompliance RotationType = "compliance"
)

// ScheduledRotation records that a rotation occurred (or was requested),
// for inspection by operators and the audit log.
type ScheduledRotation struct {
	Classification gateway.ClassificationLevel
	ScheduledAt    time.Time
	Type           RotationType
	InitiatedBy    string
}

// RotationManager tracks rotations requested through RotateKeys. It does
// not itself schedule timers; the out-of-scope re-encrypt cleanup hook
// that spec.md §4.3 requires a component to expose reads Pending() to
// decide what stale ciphertext, if any, still needs re-encryption.
type RotationManager struct {
	mu        sync.Mutex
	scheduled []ScheduledRotation
}

func newRotationManager() *RotationManager {
	return &RotationManager{}
}

func (m *RotationManager) record(r ScheduledRotation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled = append(m.scheduled, r)
}

// Pending returns every rotation recorded so far, oldest first.
func (m *RotationManager) Pending() []ScheduledRotation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ScheduledRotation, len(m.scheduled))
	copy(out, m.scheduled)
	return out
}
