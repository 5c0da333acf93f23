package crypto

import "sync"

// Stats is the crypto subsystem's cumulative operation counters, exposed
// for the metrics layer beyond what a bare encrypt/decrypt API implies.
type Stats struct {
	TotalEncryptions    uint64
	TotalDecryptions    uint64
	KeyDerivations      uint64
	CacheHits           uint64
	CacheMisses         uint64
	AvgEncryptionTimeMs float64
	AvgDecryptionTimeMs float64
	BytesEncrypted      uint64
	BytesDecrypted      uint64
}

type statsCollector struct {
	mu    sync.Mutex
	stats Stats
}

func (c *statsCollector) recordEncryption(durationMs float64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.TotalEncryptions++
	c.stats.BytesEncrypted += uint64(size)
	c.stats.AvgEncryptionTimeMs = (c.stats.AvgEncryptionTimeMs + durationMs) / 2
}

func (c *statsCollector) recordDecryption(durationMs float64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.TotalDecryptions++
	c.stats.BytesDecrypted += uint64(size)
	c.stats.AvgDecryptionTimeMs = (c.stats.AvgDecryptionTimeMs + durationMs) / 2
}

func (c *statsCollector) recordDerivation(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.KeyDerivations++
	if hit {
		c.stats.CacheHits++
	} else {
		c.stats.CacheMisses++
	}
}

func (c *statsCollector) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
