package policy

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	sentinelerrors "github.com/byteness/sentinel-gateway/errors"
)

// LoadTOML parses TOML policy content into a PolicySnapshot. version is the
// version number the caller assigns to this load (typically one more than
// the currently active snapshot's). The returned snapshot is validated and
// checksummed but not yet installed — call Swap or VerifyAndSwap next.
func LoadTOML(data []byte, version uint64) (*PolicySnapshot, error) {
	var snap PolicySnapshot
	if _, err := toml.Decode(string(data), &snap); err != nil {
		return nil, sentinelerrors.New(sentinelerrors.BadRequest, sentinelerrors.ErrCodePolicyParseFailed, "failed to parse policy TOML", err)
	}
	snap.Version = version
	snap.LoadedAt = time.Now()

	if err := snap.Validate(); err != nil {
		return nil, err
	}
	if err := snap.sealChecksum(); err != nil {
		return nil, sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodePolicyValidationFailed, "failed to seal policy checksum", err)
	}
	return &snap, nil
}

// LoadTOMLFile reads path and delegates to LoadTOML.
func LoadTOMLFile(path string, version uint64) (*PolicySnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sentinelerrors.New(sentinelerrors.BadRequest, sentinelerrors.ErrCodePolicyParseFailed, "failed to read policy file", err)
	}
	return LoadTOML(data, version)
}
