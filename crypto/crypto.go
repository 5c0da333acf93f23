package crypto

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	sentinelerrors "github.com/byteness/sentinel-gateway/errors"
	"github.com/byteness/sentinel-gateway/gateway"
)

// ClassificationCrypto is the classification-bound encryption system: one
// CryptoDomain per ClassificationLevel, a shared master key source, a
// derivation metadata cache, operation statistics, and rotation tracking.
type ClassificationCrypto struct {
	mu          sync.RWMutex
	domains     map[gateway.ClassificationLevel]CryptoDomain
	masterKey   []byte
	masterSalt  []byte
	cache       *keyCache
	stats       statsCollector
	rotations   *RotationManager
}

// New builds a ClassificationCrypto: it loads the master key from source,
// generates a local salt, and creates a domain for every classification
// level from Unclassified through NatoSecret.
func New(ctx context.Context, source MasterKeySource) (*ClassificationCrypto, error) {
	key, err := source.Load(ctx)
	if err != nil {
		return nil, err
	}
	salt, err := randomSalt(16)
	if err != nil {
		return nil, err
	}

	domains := make(map[gateway.ClassificationLevel]CryptoDomain)
	for level := gateway.Unclassified; level <= gateway.NatoSecret; level++ {
		domains[level] = newCryptoDomain(level)
	}

	return &ClassificationCrypto{
		domains:    domains,
		masterKey:  key,
		masterSalt: salt,
		cache:      newKeyCache(),
		rotations:  newRotationManager(),
	}, nil
}

func (c *ClassificationCrypto) domainFor(level gateway.ClassificationLevel) (CryptoDomain, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	domain, ok := c.domains[level]
	if !ok {
		return CryptoDomain{}, sentinelerrors.New(sentinelerrors.BadRequest, sentinelerrors.ErrCodeCryptoUnknownDomain, "no crypto domain for classification level", nil)
	}
	return domain, nil
}

// DeriveKey derives the PBKDF2 key for a classification/context/user
// triple. Callers outside this package use it only for diagnostics; the
// hot path derives keys internally in Encrypt/Decrypt.
func (c *ClassificationCrypto) DeriveKey(level gateway.ClassificationLevel, context, userID string) ([]byte, error) {
	domain, err := c.domainFor(level)
	if err != nil {
		return nil, err
	}
	key := cacheKey(domain, context, userID)
	hit := c.cache.touch(key, level)
	c.stats.recordDerivation(hit)
	return deriveKey(domain, c.masterSalt, context, userID), nil
}

// Encrypt encrypts data under the domain for classification, binding aad
// if provided. operationID/sessionID/userID populate the returned
// EncryptedData's metadata for audit correlation.
func (c *ClassificationCrypto) Encrypt(classification gateway.ClassificationLevel, data []byte, aad *AdditionalAuthData, operationID, sessionID uuid.UUID, userID, operationContext string) (EncryptedData, error) {
	start := time.Now()

	domain, err := c.domainFor(classification)
	if err != nil {
		return EncryptedData{}, err
	}
	if domain.AADBindingRequired && aad == nil {
		return EncryptedData{}, sentinelerrors.New(sentinelerrors.BadRequest, sentinelerrors.ErrCodeCryptoAADMismatch, "AAD binding required for this classification", nil)
	}

	key, err := c.DeriveKey(classification, operationContext, userID)
	if err != nil {
		return EncryptedData{}, err
	}

	encrypted, err := seal(domain, key, data, aad, operationID, sessionID, userID)
	if err != nil {
		return EncryptedData{}, err
	}

	c.stats.recordEncryption(float64(time.Since(start).Milliseconds()), len(data))
	return encrypted, nil
}

// Decrypt verifies classification, domain, and AAD binding before opening
// the AEAD. expected must match encrypted.Classification exactly.
func (c *ClassificationCrypto) Decrypt(encrypted EncryptedData, expected gateway.ClassificationLevel, aad *AdditionalAuthData, userID, operationContext string) ([]byte, error) {
	start := time.Now()

	domain, err := c.domainFor(expected)
	if err != nil {
		return nil, err
	}

	key, err := c.DeriveKey(expected, operationContext, userID)
	if err != nil {
		return nil, err
	}

	plaintext, err := open(domain, key, encrypted, expected, aad)
	if err != nil {
		return nil, err
	}

	c.stats.recordDecryption(float64(time.Since(start).Milliseconds()), len(plaintext))
	return plaintext, nil
}

// RotateKeys replaces the crypto domain for a classification level with a
// fresh one (new DomainID, reset LastRotation) and evicts that level's
// derivation cache entries, then records the rotation for RotationManager.
// Ciphertext already encrypted under the old domain remains decryptable
// only by a caller that kept the old domain around; re-encrypting existing
// data under the new domain is the out-of-scope cleanup hook RotationManager
// exposes via Pending.
func (c *ClassificationCrypto) RotateKeys(level gateway.ClassificationLevel, rotationType RotationType, initiatedBy string) error {
	c.mu.Lock()
	c.domains[level] = newCryptoDomain(level)
	c.mu.Unlock()

	c.cache.evictClassification(level)
	c.rotations.record(ScheduledRotation{
		Classification: level,
		ScheduledAt:    time.Now(),
		Type:           rotationType,
		InitiatedBy:    initiatedBy,
	})
	return nil
}

// Stats returns a snapshot of cumulative operation statistics.
func (c *ClassificationCrypto) Stats() Stats {
	return c.stats.snapshot()
}

// DomainInfo returns the read-only view of a classification's domain.
func (c *ClassificationCrypto) DomainInfo(level gateway.ClassificationLevel) (DomainInfo, error) {
	domain, err := c.domainFor(level)
	if err != nil {
		return DomainInfo{}, err
	}
	return domain.info(), nil
}

// Rotations exposes the rotation manager for operators inspecting pending
// key-rotation history.
func (c *ClassificationCrypto) Rotations() *RotationManager {
	return c.rotations
}
