package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/google/uuid"

	sentinelerrors "github.com/byteness/sentinel-gateway/errors"
	"github.com/byteness/sentinel-gateway/gateway"
)

const nonceLength = 12

// AdditionalAuthData binds a ciphertext to the caller's identity, session,
// classification, and compartments. Its JSON encoding is used both as the
// AEAD's additional authenticated data and, hashed, as a tamper check
// independent of the AEAD tag.
type AdditionalAuthData struct {
	UserID         string            `json:"user_id"`
	SessionID      uuid.UUID         `json:"session_id"`
	Classification gateway.ClassificationLevel `json:"classification"`
	Compartments   []string          `json:"compartments"`
	Context        map[string]string `json:"context,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// EncryptionMetadata is carried alongside ciphertext for audit and
// compliance review; it never contains key material.
type EncryptionMetadata struct {
	OperationID     uuid.UUID `json:"operation_id"`
	UserID          string    `json:"user_id"`
	SessionID       uuid.UUID `json:"session_id"`
	KeyVersion      uint32    `json:"key_version"`
	DomainVersion   uint32    `json:"domain_version"`
	ComplianceTags  []string  `json:"compliance_tags"`
}

// EncryptedData is the self-describing result of an Encrypt call: enough
// to find the right domain and key, and to verify AAD binding, on Decrypt.
type EncryptedData struct {
	Ciphertext     []byte              `json:"ciphertext"`
	Nonce          []byte              `json:"nonce"`
	Classification gateway.ClassificationLevel `json:"classification"`
	DomainID       uuid.UUID           `json:"domain_id"`
	AADHash        []byte              `json:"aad_hash,omitempty"`
	Algorithm      EncryptionAlgorithm `json:"algorithm"`
	EncryptedAt    time.Time           `json:"encrypted_at"`
	Metadata       EncryptionMetadata  `json:"metadata"`
}

func aadBytes(aad *AdditionalAuthData) ([]byte, error) {
	if aad == nil {
		return nil, nil
	}
	data, err := json.Marshal(aad)
	if err != nil {
		return nil, sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeCryptoAADMismatch, "failed to marshal AAD", err)
	}
	return data, nil
}

func newAEAD(algorithm EncryptionAlgorithm, key []byte) (cipher.AEAD, error) {
	switch algorithm {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeCryptoKeyDerivation, "failed to create AES cipher", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeCryptoKeyDerivation, "failed to create GCM AEAD", err)
		}
		return aead, nil
	case ChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeCryptoKeyDerivation, "failed to create ChaCha20-Poly1305 AEAD", err)
		}
		return aead, nil
	default:
		return nil, sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeCryptoUnknownDomain, "unsupported encryption algorithm", nil)
	}
}

// seal encrypts plaintext under key with a fresh random nonce, binding aad
// if present. The returned EncryptedData carries everything Decrypt needs
// except the key itself.
func seal(domain CryptoDomain, key, plaintext []byte, aad *AdditionalAuthData, operationID, sessionID uuid.UUID, userID string) (EncryptedData, error) {
	aead, err := newAEAD(domain.Algorithm, key)
	if err != nil {
		return EncryptedData{}, err
	}

	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedData{}, sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeCryptoKeyDerivation, "failed to generate nonce", err)
	}

	aadData, err := aadBytes(aad)
	if err != nil {
		return EncryptedData{}, err
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, aadData)

	var aadHash []byte
	if aad != nil {
		sum := sha256.Sum256(aadData)
		aadHash = sum[:]
	}

	return EncryptedData{
		Ciphertext:     ciphertext,
		Nonce:          nonce,
		Classification: domain.Classification,
		DomainID:       domain.DomainID,
		AADHash:        aadHash,
		Algorithm:      domain.Algorithm,
		EncryptedAt:    time.Now(),
		Metadata: EncryptionMetadata{
			OperationID:    operationID,
			UserID:         userID,
			SessionID:      sessionID,
			KeyVersion:     1,
			DomainVersion:  1,
			ComplianceTags: []string{"default"},
		},
	}, nil
}

// open verifies classification and domain match, verifies the AAD hash
// pin before ever touching the AEAD tag, then decrypts.
func open(domain CryptoDomain, key []byte, encrypted EncryptedData, expected gateway.ClassificationLevel, aad *AdditionalAuthData) ([]byte, error) {
	if encrypted.Classification != expected {
		return nil, sentinelerrors.New(sentinelerrors.BadRequest, sentinelerrors.ErrCodeCryptoClassMismatch, "classification mismatch on decrypt", nil)
	}
	if encrypted.DomainID != domain.DomainID {
		return nil, sentinelerrors.New(sentinelerrors.BadRequest, sentinelerrors.ErrCodeCryptoUnknownDomain, "domain id mismatch on decrypt", nil)
	}

	aadData, err := aadBytes(aad)
	if err != nil {
		return nil, err
	}
	if len(encrypted.AADHash) > 0 {
		sum := sha256.Sum256(aadData)
		if subtle.ConstantTimeCompare(sum[:], encrypted.AADHash) != 1 {
			return nil, sentinelerrors.New(sentinelerrors.Forbidden, sentinelerrors.ErrCodeCryptoAADMismatch, "AAD hash verification failed", nil)
		}
	}

	aead, err := newAEAD(domain.Algorithm, key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, encrypted.Nonce, encrypted.Ciphertext, aadData)
	if err != nil {
		return nil, sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeCryptoDecryptFailed, "AEAD decryption failed", err)
	}
	return plaintext, nil
}
