package audit

import (
	"database/sql"
	"encoding/json"
	"io"
	"sync"

	sentinelerrors "github.com/byteness/sentinel-gateway/errors"
)

// Sink persists envelopes. Out of scope per SPEC_FULL.md is the storage
// engine itself; the core only needs to expose and drive a sink.
type Sink interface {
	Persist(env ForensicEnvelope) error
}

// FileSink appends newline-delimited JSON, one envelope per line, matching
// the on-disk audit log format in spec.md §6.
type FileSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFileSink wraps w (typically an *os.File opened for append).
func NewFileSink(w io.Writer) *FileSink {
	return &FileSink{w: w}
}

func (s *FileSink) Persist(env ForensicEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeAuditSinkFailed, "failed to marshal envelope", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeAuditSinkFailed, "failed to write envelope", err)
	}
	return nil
}

// PQSink persists envelopes to a Postgres table via lib/pq, the "persist
// envelope" storage engine collaborator named in spec.md §1.
type PQSink struct {
	db *sql.DB
}

// NewPQSink wraps an already-opened *sql.DB (driver "postgres", lib/pq).
// The caller owns the table's schema and lifecycle; PQSink only inserts.
func NewPQSink(db *sql.DB) *PQSink {
	return &PQSink{db: db}
}

func (s *PQSink) Persist(env ForensicEnvelope) error {
	metadata, err := json.Marshal(env.Metadata)
	if err != nil {
		return sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeAuditSinkFailed, "failed to marshal envelope metadata", err)
	}
	before, _ := json.Marshal(env.BeforeState)
	after, _ := json.Marshal(env.AfterState)

	const q = `INSERT INTO forensic_envelopes
		(envelope_id, operation_id, event_type, ts, user_id, session_id, classification, action, resource, before_state, after_state, metadata, chain_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = s.db.Exec(q,
		env.EnvelopeID, env.OperationID, string(env.EventType), env.Timestamp,
		env.UserID, env.SessionID, int(env.Classification), env.Action, env.Resource,
		before, after, metadata, env.ChainHash,
	)
	if err != nil {
		return sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeAuditSinkFailed, "failed to insert envelope", err)
	}
	return nil
}
