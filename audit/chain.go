package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"sync"
)

// genesisHash seeds the chain before any envelope has been written.
const genesisHash = "genesis"

// chain is the single-writer HMAC hash chain. Each envelope's ChainHash
// covers "<last_hash>:<envelope_json>", binding it to every envelope before
// it. last is the only mutable state in the audit subsystem.
type chain struct {
	key  []byte
	mu   sync.Mutex
	last string
}

func newChain(key []byte) *chain {
	return &chain{key: key, last: genesisHash}
}

// append computes env's chain hash, links it to the current head, advances
// the head, and returns env with ChainHash set.
func (c *chain) append(env ForensicEnvelope) (ForensicEnvelope, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return ForensicEnvelope{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	message := c.last + ":" + string(data)
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(message))
	hash := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	c.last = hash
	env.ChainHash = hash
	return env, nil
}

// head returns the current chain head hash.
func (c *chain) head() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// VerifyChain recomputes the hash chain over envelopes in order, starting
// from genesis, and reports whether every ChainHash matches. It returns the
// index of the first broken link, or -1 if the whole chain verifies.
func VerifyChain(key []byte, envelopes []ForensicEnvelope) (ok bool, brokenAt int) {
	last := genesisHash
	for i, env := range envelopes {
		want := env.ChainHash
		env.ChainHash = ""
		data, err := json.Marshal(env)
		if err != nil {
			return false, i
		}
		mac := hmac.New(sha256.New, key)
		mac.Write([]byte(last + ":" + string(data)))
		got := base64.StdEncoding.EncodeToString(mac.Sum(nil))
		if got != want {
			return false, i
		}
		last = got
	}
	return true, -1
}
