package config

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	_ "github.com/lib/pq"

	"github.com/byteness/sentinel-gateway/audit"
	sentinelcrypto "github.com/byteness/sentinel-gateway/crypto"
	sentinelerrors "github.com/byteness/sentinel-gateway/errors"
	"github.com/byteness/sentinel-gateway/instrument"
	"github.com/byteness/sentinel-gateway/policy"
	"github.com/byteness/sentinel-gateway/security"
)

// MasterKeySourceKind selects which crypto.MasterKeySource implementation
// Bootstrap constructs.
type MasterKeySourceKind string

const (
	MasterKeySourceGenerated      MasterKeySourceKind = "generated"
	MasterKeySourceKMS            MasterKeySourceKind = "kms"
	MasterKeySourceSecretsManager MasterKeySourceKind = "secretsmanager"
)

// AuditSinkKind selects the audit.Sink implementation Bootstrap wires up.
type AuditSinkKind string

const (
	AuditSinkFile    AuditSinkKind = "file"
	AuditSinkPostgres AuditSinkKind = "postgres"
)

// Settings is the process-wiring configuration every cmd/ binary loads
// before constructing a Gateway. It is read from a YAML file, following
// the same gopkg.in/yaml.v3 convention the rest of the codebase uses for
// non-policy config.
type Settings struct {
	Environment string `yaml:"environment"` // "production" or anything else

	PolicyFile string `yaml:"policy_file"`

	MasterKeySource      MasterKeySourceKind `yaml:"master_key_source"`
	KMSKeyID             string              `yaml:"kms_key_id,omitempty"`
	KMSCiphertextBlobB64 string              `yaml:"kms_ciphertext_blob,omitempty"`
	SecretsManagerID     string              `yaml:"secrets_manager_secret_id,omitempty"`

	TokenSigningKeyB64 string `yaml:"token_signing_key"`
	AuditChainKeyB64   string `yaml:"audit_chain_key"`

	AuditSink     AuditSinkKind `yaml:"audit_sink"`
	AuditLogPath  string        `yaml:"audit_log_path,omitempty"`
	DatabaseDSN   string        `yaml:"database_dsn,omitempty"`
	AuditBuffer   int           `yaml:"audit_buffer_size"`

	LicenseTier instrument.LicenseTier `yaml:"license_tier"`

	Security security.Config `yaml:"-"` // not user-configurable yet; security.DefaultConfig() is used
}

// errProductionRequiresManagedKeySource is returned by Bootstrap when
// Environment is "production" and MasterKeySource is "generated".
var errProductionRequiresManagedKeySource = sentinelerrors.NewWithSuggestion(
	sentinelerrors.Internal,
	sentinelerrors.ErrCodeConfigInsecureProd,
	"master_key_source=generated is not allowed when environment=production",
	nil,
)

// Gateway is the set of constructed singletons every binary in cmd/
// shares: the crypto system, audit writer, instrumentation engine, and
// security manager that back a dispatch.Dispatcher.
type Gateway struct {
	Settings        Settings
	Crypto          *sentinelcrypto.ClassificationCrypto
	AuditWriter     *audit.Writer
	Instrumentation *instrument.Engine
	Security        *security.Manager
}

// Bootstrap constructs a Gateway from settings: it loads the policy file,
// selects and validates the master key source, and wires crypto, audit,
// instrumentation, and security into one aggregate. Close must be called
// on the returned Gateway's AuditWriter when the process shuts down.
func Bootstrap(ctx context.Context, settings Settings) (*Gateway, error) {
	if settings.Environment == "production" && settings.MasterKeySource == MasterKeySourceGenerated {
		return nil, errProductionRequiresManagedKeySource
	}

	keySource, err := buildMasterKeySource(ctx, settings)
	if err != nil {
		return nil, err
	}
	cryptoSystem, err := sentinelcrypto.New(ctx, keySource)
	if err != nil {
		return nil, err
	}

	chainKey, err := decodeKey(settings.AuditChainKeyB64, "audit_chain_key")
	if err != nil {
		return nil, err
	}
	sink, err := buildAuditSink(settings)
	if err != nil {
		return nil, err
	}
	bufferSize := settings.AuditBuffer
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	writer := audit.NewWriter(chainKey, sink, bufferSize)

	license := instrument.NewStaticLicense(effectiveLicenseTier(settings.LicenseTier), nil)
	engine, err := instrument.NewEngine(nil, license)
	if err != nil {
		writer.Close()
		return nil, sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeConfigInvalid, "failed to construct instrumentation engine", err)
	}

	tokenKey, err := decodeKey(settings.TokenSigningKeyB64, "token_signing_key")
	if err != nil {
		writer.Close()
		return nil, err
	}

	secConfig := settings.Security
	if secConfig == (security.Config{}) {
		secConfig = security.DefaultConfig()
	}
	secMgr := security.NewManager(cryptoSystem, writer, engine, tokenKey, secConfig)

	if settings.PolicyFile != "" {
		snapshot, err := policy.LoadTOMLFile(settings.PolicyFile, 1)
		if err != nil {
			writer.Close()
			return nil, err
		}
		if _, err := policy.Swap(snapshot); err != nil {
			writer.Close()
			return nil, err
		}
	}

	return &Gateway{
		Settings:        settings,
		Crypto:          cryptoSystem,
		AuditWriter:     writer,
		Instrumentation: engine,
		Security:        secMgr,
	}, nil
}

func effectiveLicenseTier(tier instrument.LicenseTier) instrument.LicenseTier {
	if tier == "" {
		return instrument.LicenseCommunity
	}
	return tier
}

func buildMasterKeySource(ctx context.Context, settings Settings) (sentinelcrypto.MasterKeySource, error) {
	switch settings.MasterKeySource {
	case MasterKeySourceKMS:
		blob, err := base64.StdEncoding.DecodeString(settings.KMSCiphertextBlobB64)
		if err != nil {
			return nil, sentinelerrors.New(sentinelerrors.BadRequest, sentinelerrors.ErrCodeConfigInvalid, "kms_ciphertext_blob is not valid base64", err)
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, sentinelerrors.New(sentinelerrors.ServiceUnavailable, sentinelerrors.ErrCodeConfigInvalid, "failed to load AWS config for KMS master key source", err)
		}
		return sentinelcrypto.NewKMSKeySource(awsCfg, blob, settings.KMSKeyID), nil
	case MasterKeySourceSecretsManager:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, sentinelerrors.New(sentinelerrors.ServiceUnavailable, sentinelerrors.ErrCodeConfigInvalid, "failed to load AWS config for Secrets Manager master key source", err)
		}
		return sentinelcrypto.NewSecretsManagerKeySource(awsCfg, settings.SecretsManagerID), nil
	case MasterKeySourceGenerated, "":
		return sentinelcrypto.NewGeneratedKeySource()
	default:
		return nil, sentinelerrors.New(sentinelerrors.BadRequest, sentinelerrors.ErrCodeConfigInvalid, fmt.Sprintf("unknown master_key_source: %s", settings.MasterKeySource), nil)
	}
}

func buildAuditSink(settings Settings) (audit.Sink, error) {
	switch settings.AuditSink {
	case AuditSinkPostgres:
		db, err := sql.Open("postgres", settings.DatabaseDSN)
		if err != nil {
			return nil, sentinelerrors.New(sentinelerrors.ServiceUnavailable, sentinelerrors.ErrCodeConfigInvalid, "failed to open audit database", err)
		}
		return audit.NewPQSink(db), nil
	case AuditSinkFile, "":
		path := settings.AuditLogPath
		if path == "" {
			path = "sentinel-audit.log"
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return nil, sentinelerrors.New(sentinelerrors.ServiceUnavailable, sentinelerrors.ErrCodeConfigInvalid, "failed to open audit log file", err)
		}
		return audit.NewFileSink(f), nil
	default:
		return nil, sentinelerrors.New(sentinelerrors.BadRequest, sentinelerrors.ErrCodeConfigInvalid, fmt.Sprintf("unknown audit_sink: %s", settings.AuditSink), nil)
	}
}

func decodeKey(b64 string, field string) ([]byte, error) {
	if b64 == "" {
		return nil, sentinelerrors.NewWithSuggestion(sentinelerrors.BadRequest, sentinelerrors.ErrCodeConfigMissingEnv, field+" is required", nil)
	}
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, sentinelerrors.New(sentinelerrors.BadRequest, sentinelerrors.ErrCodeConfigInvalid, field+" is not valid base64", err)
	}
	return key, nil
}
