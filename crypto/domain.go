// Package crypto implements classification-bound encryption: a crypto
// domain per ClassificationLevel, PBKDF2 key derivation scoped to that
// domain, and AEAD encrypt/decrypt with additional-authenticated-data
// binding to the caller's identity and session.
package crypto

import (
	"time"

	"github.com/google/uuid"

	"github.com/byteness/sentinel-gateway/gateway"
)

// EncryptionAlgorithm names a supported AEAD cipher.
type EncryptionAlgorithm string

const (
	AES256GCM        EncryptionAlgorithm = "aes256gcm"
	ChaCha20Poly1305 EncryptionAlgorithm = "chacha20poly1305"
)

// KeyDerivationConfig controls how a domain's per-operation key is derived.
type KeyDerivationConfig struct {
	Iterations int
	SaltLength int
	KeyLength  int
}

// CryptoDomain binds a classification level to an algorithm and a key
// derivation cost. Higher classifications get stronger ciphers and more
// PBKDF2 iterations.
type CryptoDomain struct {
	Classification     gateway.ClassificationLevel
	DomainID           uuid.UUID
	Algorithm          EncryptionAlgorithm
	KeyDerivation      KeyDerivationConfig
	AADBindingRequired bool
	CreatedAt          time.Time
	LastRotation       time.Time
}

// iterationsFor returns the PBKDF2 iteration count for a classification
// level. Higher classifications cost more to brute-force.
func iterationsFor(level gateway.ClassificationLevel) int {
	switch level {
	case gateway.Unclassified:
		return 10_000
	case gateway.Internal:
		return 50_000
	case gateway.Confidential:
		return 100_000
	case gateway.Secret:
		return 200_000
	case gateway.NatoSecret:
		return 500_000
	default:
		return 500_000
	}
}

// algorithmFor selects the AEAD cipher for a classification level.
// NatoSecret uses ChaCha20-Poly1305; everything else uses AES-256-GCM.
func algorithmFor(level gateway.ClassificationLevel) EncryptionAlgorithm {
	if level == gateway.NatoSecret {
		return ChaCha20Poly1305
	}
	return AES256GCM
}

// newCryptoDomain creates a fresh domain for level, with a new DomainID and
// a derivation cost scaled to the classification.
func newCryptoDomain(level gateway.ClassificationLevel) CryptoDomain {
	now := time.Now()
	return CryptoDomain{
		Classification: level,
		DomainID:       uuid.New(),
		Algorithm:      algorithmFor(level),
		KeyDerivation: KeyDerivationConfig{
			Iterations: iterationsFor(level),
			SaltLength: 16,
			KeyLength:  32,
		},
		AADBindingRequired: level >= gateway.Confidential,
		CreatedAt:          now,
		LastRotation:       now,
	}
}

// DomainInfo is the read-only view of a domain exposed for monitoring.
type DomainInfo struct {
	Classification     gateway.ClassificationLevel
	DomainID            uuid.UUID
	Algorithm           EncryptionAlgorithm
	CreatedAt           time.Time
	LastRotation        time.Time
	AADBindingRequired  bool
}

func (d CryptoDomain) info() DomainInfo {
	return DomainInfo{
		Classification:     d.Classification,
		DomainID:           d.DomainID,
		Algorithm:          d.Algorithm,
		CreatedAt:          d.CreatedAt,
		LastRotation:       d.LastRotation,
		AADBindingRequired: d.AADBindingRequired,
	}
}
