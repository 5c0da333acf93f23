package crypto

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
	"crypto/sha256"

	"github.com/byteness/sentinel-gateway/gateway"
)

// derivedKeyEntry records that a key was derived for a given cache key; it
// intentionally never stores the derived key material itself, only usage
// metadata, so a compromised cache cannot leak key bytes.
type derivedKeyEntry struct {
	createdAt      time.Time
	accessCount    uint64
	classification gateway.ClassificationLevel
}

// keyCache tracks derivation metadata per "domain:classification:context:
// user" key. It exists purely for CryptoStats.CacheHits/CacheMisses and
// RotateKeys' invalidation, not to avoid recomputation — recomputation is
// the security property, not the cost.
type keyCache struct {
	mu      sync.Mutex
	entries map[string]*derivedKeyEntry
}

func newKeyCache() *keyCache {
	return &keyCache{entries: make(map[string]*derivedKeyEntry)}
}

func cacheKey(domain CryptoDomain, context, userID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", domain.DomainID, domain.Classification.String(), context, userID)
}

// touch records cache hit/miss bookkeeping for a derivation and reports
// whether this was a hit (an entry already existed).
func (c *keyCache) touch(key string, classification gateway.ClassificationLevel) (hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		entry.accessCount++
		return true
	}
	c.entries[key] = &derivedKeyEntry{createdAt: time.Now(), accessCount: 1, classification: classification}
	return false
}

// evictClassification drops every cache entry for a rotated classification.
func (c *keyCache) evictClassification(level gateway.ClassificationLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if entry.classification == level {
			delete(c.entries, key)
		}
	}
}

// deriveKey runs PBKDF2-HMAC-SHA256 over "<domain_id>:<classification>:
// <context>:<user_id>" salted with the master salt, at the domain's
// configured iteration count, producing a 32-byte key.
func deriveKey(domain CryptoDomain, salt []byte, context, userID string) []byte {
	input := fmt.Sprintf("%s:%s:%s:%s", domain.DomainID, domain.Classification.String(), context, userID)
	return pbkdf2.Key([]byte(input), salt, domain.KeyDerivation.Iterations, domain.KeyDerivation.KeyLength, sha256.New)
}
