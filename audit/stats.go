package audit

import (
	"sync"
	"time"
)

// BufferStats mirrors the original forensic buffer's diagnostics: how many
// envelopes have been queued in total, their combined and average size, and
// when the drain last flushed one to the sink.
type BufferStats struct {
	TotalEventsBuffered int64
	LastFlushTime       time.Time
	BufferSizeBytes     int64
	AvgEnvelopeSizeBytes int64
}

// statsTracker accumulates the running totals behind Writer.Stats; it is
// updated as envelopes are queued and drained so BufferStats never needs
// to walk the channel.
type statsTracker struct {
	mu            sync.Mutex
	totalBuffered int64
	totalBytes    int64
	lastFlush     time.Time
}

func (t *statsTracker) recordEnqueue(sizeBytes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalBuffered++
	t.totalBytes += int64(sizeBytes)
}

func (t *statsTracker) recordFlush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastFlush = time.Now()
}

func (t *statsTracker) snapshot() BufferStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	avg := int64(0)
	if t.totalBuffered > 0 {
		avg = t.totalBytes / t.totalBuffered
	}
	return BufferStats{
		TotalEventsBuffered:  t.totalBuffered,
		LastFlushTime:        t.lastFlush,
		BufferSizeBytes:      t.totalBytes,
		AvgEnvelopeSizeBytes: avg,
	}
}
