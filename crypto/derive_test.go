package crypto

import (
	"testing"

	"github.com/byteness/sentinel-gateway/gateway"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	domain := newCryptoDomain(gateway.Internal)
	salt := []byte("0123456789abcdef")

	k1 := deriveKey(domain, salt, "op", "alice")
	k2 := deriveKey(domain, salt, "op", "alice")
	if string(k1) != string(k2) {
		t.Error("deriveKey should be deterministic for identical inputs")
	}
	if len(k1) != domain.KeyDerivation.KeyLength {
		t.Errorf("key length = %d, want %d", len(k1), domain.KeyDerivation.KeyLength)
	}
}

func TestDeriveKey_DiffersByContext(t *testing.T) {
	domain := newCryptoDomain(gateway.Internal)
	salt := []byte("0123456789abcdef")

	k1 := deriveKey(domain, salt, "op_a", "alice")
	k2 := deriveKey(domain, salt, "op_b", "alice")
	if string(k1) == string(k2) {
		t.Error("distinct contexts should derive distinct keys")
	}
}

func TestDeriveKey_DiffersByUser(t *testing.T) {
	domain := newCryptoDomain(gateway.Internal)
	salt := []byte("0123456789abcdef")

	k1 := deriveKey(domain, salt, "op", "alice")
	k2 := deriveKey(domain, salt, "op", "bob")
	if string(k1) == string(k2) {
		t.Error("distinct users should derive distinct keys")
	}
}

func TestKeyCache_TouchTracksHitMiss(t *testing.T) {
	cache := newKeyCache()
	domain := newCryptoDomain(gateway.Internal)
	key := cacheKey(domain, "op", "alice")

	if hit := cache.touch(key, gateway.Internal); hit {
		t.Error("first touch should be a miss")
	}
	if hit := cache.touch(key, gateway.Internal); !hit {
		t.Error("second touch should be a hit")
	}
}

func TestKeyCache_EvictClassification(t *testing.T) {
	cache := newKeyCache()
	domain := newCryptoDomain(gateway.Secret)
	key := cacheKey(domain, "op", "alice")
	cache.touch(key, gateway.Secret)

	cache.evictClassification(gateway.Secret)

	if hit := cache.touch(key, gateway.Secret); hit {
		t.Error("expected cache entry to be evicted")
	}
}
