package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	sentinelerrors "github.com/byteness/sentinel-gateway/errors"
)

// DefaultBufferSize is the bounded channel capacity for the async writer.
const DefaultBufferSize = 4096

// Writer hash-chains envelopes and persists them through a Sink. Most
// writes are enqueued on a bounded channel and drained by a background
// goroutine; a full channel drops the event rather than blocking the
// caller. High-priority events (security, error, Secret+) bypass the
// channel and persist synchronously, per spec.md §4.4's forensic
// classification table.
type Writer struct {
	chain *chain
	sink  Sink

	queue   chan ForensicEnvelope
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	written atomic.Uint64
	stats   statsTracker
}

// NewWriter starts the background drain goroutine. key is the HMAC key
// seeding the hash chain; it must be at least 32 bytes.
func NewWriter(key []byte, sink Sink, bufferSize int) *Writer {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	w := &Writer{
		chain: newChain(key),
		sink:  sink,
		queue: make(chan ForensicEnvelope, bufferSize),
		done:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.drain()
	return w
}

// Log appends env to the hash chain and persists it, synchronously for
// high-priority events and via the bounded channel otherwise. A full
// channel causes the event to be dropped and audit_logs_dropped_total to
// increment; Log never blocks the caller waiting for channel space.
func (w *Writer) Log(env ForensicEnvelope) error {
	chained, err := w.chain.append(env)
	if err != nil {
		return sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeAuditChainBroken, "failed to chain envelope", err)
	}

	if chained.isHighPriority() {
		if err := w.sink.Persist(chained); err != nil {
			fmt.Fprintf(os.Stderr, "audit: high-priority persist failed: %v\n", err)
			return err
		}
		w.written.Add(1)
		return nil
	}

	select {
	case w.queue <- chained:
		if data, err := json.Marshal(chained); err == nil {
			w.stats.recordEnqueue(len(data))
		}
		return nil
	default:
		w.dropped.Add(1)
		return sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeAuditBufferFull, "audit buffer full, event dropped", nil)
	}
}

// BufferStats reports the writer's buffer diagnostics, matching the
// original forensic buffer's stat surface.
func (w *Writer) BufferStats() BufferStats {
	return w.stats.snapshot()
}

func (w *Writer) drain() {
	defer w.wg.Done()
	for {
		select {
		case env, ok := <-w.queue:
			if !ok {
				return
			}
			if err := w.sink.Persist(env); err != nil {
				// Fail-open: the hash chain already advanced past this
				// envelope, so a sink failure here is logged to stderr,
				// never retried in-line, and never blocks the next write.
				fmt.Fprintf(os.Stderr, "audit: sink persist failed: %v\n", err)
				continue
			}
			w.written.Add(1)
			w.stats.recordFlush()
		case <-w.done:
			// Drain whatever remains before exiting.
			for {
				select {
				case env := <-w.queue:
					if err := w.sink.Persist(env); err != nil {
						fmt.Fprintf(os.Stderr, "audit: sink persist failed: %v\n", err)
						continue
					}
					w.written.Add(1)
					w.stats.recordFlush()
				default:
					return
				}
			}
		}
	}
}

// Close stops the background goroutine after draining any queued events.
func (w *Writer) Close() {
	close(w.done)
	w.wg.Wait()
}

// Head returns the current chain head hash, for diagnostics.
func (w *Writer) Head() string {
	return w.chain.head()
}

// Stats reports buffer write/drop counters.
type Stats struct {
	Written uint64
	Dropped uint64
}

// Stats returns the writer's cumulative counters.
func (w *Writer) Stats() Stats {
	return Stats{Written: w.written.Load(), Dropped: w.dropped.Load()}
}
