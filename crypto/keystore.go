package crypto

import (
	"context"
	"crypto/rand"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	sentinelerrors "github.com/byteness/sentinel-gateway/errors"
)

// masterKeyLength is the size in bytes of the master key material used to
// seed PBKDF2 derivation for every classification domain.
const masterKeyLength = 32

// MasterKeySource supplies the master key material from which all
// per-domain derived keys descend. Implementations never persist the key
// material themselves; the caller holds it only in process memory.
type MasterKeySource interface {
	// Load returns 32 bytes of master key material.
	Load(ctx context.Context) ([]byte, error)
}

func randomSalt(length int) ([]byte, error) {
	salt := make([]byte, length)
	if _, err := rand.Read(salt); err != nil {
		return nil, sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeCryptoMasterKeySource, "failed to generate salt", err)
	}
	return salt, nil
}

// GeneratedKeySource produces a random master key at construction time. It
// is suitable for development and tests only; config.Bootstrap refuses it
// in production per SPEC_FULL.md §6 Open Question 1.
type GeneratedKeySource struct {
	key []byte
}

// NewGeneratedKeySource generates a fresh random master key immediately.
func NewGeneratedKeySource() (*GeneratedKeySource, error) {
	key := make([]byte, masterKeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeCryptoMasterKeySource, "failed to generate master key", err)
	}
	return &GeneratedKeySource{key: key}, nil
}

func (s *GeneratedKeySource) Load(ctx context.Context) ([]byte, error) {
	return s.key, nil
}

// kmsAPI is the subset of the KMS client used here, narrowed for testing
// with a mock implementation rather than the full SDK client.
type kmsAPI interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSKeySource decrypts a KMS-wrapped ciphertext blob to obtain the master
// key material. The blob is typically produced once out of band (e.g. via
// `aws kms encrypt`) and stored in config; KMS itself never sees the
// plaintext key outside the Decrypt call.
type KMSKeySource struct {
	client         kmsAPI
	ciphertextBlob []byte
	keyID          string
}

// NewKMSKeySource creates a KMSKeySource from an AWS config. ciphertextBlob
// is the KMS-encrypted master key; keyID scopes the decrypt call to the
// expected CMK.
func NewKMSKeySource(cfg aws.Config, ciphertextBlob []byte, keyID string) *KMSKeySource {
	return &KMSKeySource{client: kms.NewFromConfig(cfg), ciphertextBlob: ciphertextBlob, keyID: keyID}
}

// NewKMSKeySourceWithClient injects a custom KMS client, for testing.
func NewKMSKeySourceWithClient(client kmsAPI, ciphertextBlob []byte, keyID string) *KMSKeySource {
	return &KMSKeySource{client: client, ciphertextBlob: ciphertextBlob, keyID: keyID}
}

func (s *KMSKeySource) Load(ctx context.Context) ([]byte, error) {
	out, err := s.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: s.ciphertextBlob,
		KeyId:          aws.String(s.keyID),
	})
	if err != nil {
		return nil, sentinelerrors.New(sentinelerrors.ServiceUnavailable, sentinelerrors.ErrCodeCryptoMasterKeySource, "KMS decrypt failed", err)
	}
	if len(out.Plaintext) != masterKeyLength {
		return nil, sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeCryptoMasterKeySource, "KMS plaintext is not 32 bytes", nil)
	}
	return out.Plaintext, nil
}

// secretsManagerAPI is the subset of the Secrets Manager client used here.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerKeySource fetches the master key material from AWS Secrets
// Manager: a 32-byte SecretBinary, or else a SecretString of exactly 32
// bytes used as-is. The string is not base64-decoded.
type SecretsManagerKeySource struct {
	client   secretsManagerAPI
	secretID string
}

// NewSecretsManagerKeySource creates a SecretsManagerKeySource from an AWS
// config and the secret's name or ARN.
func NewSecretsManagerKeySource(cfg aws.Config, secretID string) *SecretsManagerKeySource {
	return &SecretsManagerKeySource{client: secretsmanager.NewFromConfig(cfg), secretID: secretID}
}

// NewSecretsManagerKeySourceWithClient injects a custom client, for testing.
func NewSecretsManagerKeySourceWithClient(client secretsManagerAPI, secretID string) *SecretsManagerKeySource {
	return &SecretsManagerKeySource{client: client, secretID: secretID}
}

func (s *SecretsManagerKeySource) Load(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		return nil, sentinelerrors.New(sentinelerrors.ServiceUnavailable, sentinelerrors.ErrCodeCryptoMasterKeySource, "Secrets Manager fetch failed", err)
	}
	if out.SecretBinary != nil {
		if len(out.SecretBinary) != masterKeyLength {
			return nil, sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeCryptoMasterKeySource, "secret binary is not 32 bytes", nil)
		}
		return out.SecretBinary, nil
	}
	if out.SecretString == nil || len(*out.SecretString) != masterKeyLength {
		return nil, sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeCryptoMasterKeySource, "secret string is not 32 bytes", nil)
	}
	return []byte(*out.SecretString), nil
}
