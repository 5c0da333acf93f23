package dispatch

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/byteness/sentinel-gateway/audit"
	sentinelerrors "github.com/byteness/sentinel-gateway/errors"
	"github.com/byteness/sentinel-gateway/gateway"
	"github.com/byteness/sentinel-gateway/instrument"
	"github.com/byteness/sentinel-gateway/metrics"
	"github.com/byteness/sentinel-gateway/policy"
	"github.com/byteness/sentinel-gateway/security"
)

// Handler executes one command's body once the front door has cleared it.
// payload is the raw JSON request body; the returned bytes are the raw JSON
// response body.
type Handler func(ctx context.Context, dctx Context, payload json.RawMessage) (json.RawMessage, error)

// route pairs a registered Handler with the classification it operates on,
// for the MAC check that gates it.
type route struct {
	handler        Handler
	classification gateway.ClassificationLevel
}

// Dispatcher is the single admission path every command passes through. It
// wires together policy, session/MAC enforcement, rate limiting, and
// automatic instrumentation ahead of whatever Handler a command names.
type Dispatcher struct {
	security        *security.Manager
	instrumentation *instrument.Engine
	auditWriter     *audit.Writer
	metrics         metrics.Recorder
	policySource    func() *policy.PolicySnapshot
	rates           *rateGate

	routes map[string]route
}

// Option configures a Dispatcher at construction.
type Option func(*Dispatcher)

// WithLimiterFactory overrides the default in-memory rate limiter backend,
// e.g. to use ratelimit.NewRedisRateLimiter for a multi-instance deployment.
func WithLimiterFactory(factory LimiterFactory) Option {
	return func(d *Dispatcher) { d.rates = newRateGate(factory) }
}

// WithPolicySource overrides where the dispatcher reads the current
// PolicySnapshot from. Defaults to policy.Current. Tests use this to inject
// a fixed snapshot instead of mutating global state.
func WithPolicySource(source func() *policy.PolicySnapshot) Option {
	return func(d *Dispatcher) { d.policySource = source }
}

// NewDispatcher constructs a Dispatcher. secMgr, instrumentation, and
// auditWriter are shared with the rest of the gateway; recorder publishes
// this package's metric contract.
func NewDispatcher(secMgr *security.Manager, instrumentation *instrument.Engine, auditWriter *audit.Writer, recorder metrics.Recorder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		security:        secMgr,
		instrumentation: instrumentation,
		auditWriter:     auditWriter,
		metrics:         recorder,
		policySource:    policy.Current,
		rates:           newRateGate(NewMemoryLimiterFactory()),
		routes:          make(map[string]route),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterCommand adds command to the routing table. classification is the
// sensitivity level the MAC gate checks the caller's clearance against.
func (d *Dispatcher) RegisterCommand(command string, classification gateway.ClassificationLevel, handler Handler) {
	d.routes[command] = route{handler: handler, classification: classification}
}

// Dispatch runs a command through the full front-door pipeline: context
// validation, the policy allow-list, session lookup, rate limiting, the MAC
// gate, and finally the instrumented handler itself.
func (d *Dispatcher) Dispatch(ctx context.Context, command string, payload json.RawMessage, dctx Context) (json.RawMessage, error) {
	start := time.Now()
	d.metrics.IncCounter(metrics.CommandInvocationsTotal, command)

	resp, err := d.dispatch(ctx, command, payload, dctx)

	duration := float64(time.Since(start).Milliseconds())
	if err != nil {
		ce, _ := sentinelerrors.As(err)
		reason := "internal_error"
		if ce != nil {
			reason = ce.Code()
		}
		d.metrics.IncCounter(metrics.DispatchFailuresTotal, reason, command, statusCodeString(err))
		d.metrics.ObserveHistogram(metrics.DispatchDurationMs, duration, "failure", command)
		return nil, err
	}

	d.metrics.IncCounter(metrics.DispatchSuccessTotal, command)
	d.metrics.ObserveHistogram(metrics.DispatchDurationMs, duration, "success", command)
	return resp, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, command string, payload json.RawMessage, dctx Context) (json.RawMessage, error) {
	if err := dctx.Validate(); err != nil {
		return nil, err
	}

	snapshot := d.policySource()
	if snapshot == nil {
		return nil, sentinelerrors.New(sentinelerrors.ServiceUnavailable, sentinelerrors.ErrCodePolicyNotLoaded, "no policy snapshot loaded", nil)
	}

	r, registered := d.routes[command]
	if !registered || !snapshot.Sec.AllowsCommand(command) {
		d.auditDenial(dctx, command, "command_not_allowed")
		// Never leak whether the command exists but is merely disabled by
		// policy: NotFound narrows an attacker's search space less than
		// Forbidden would.
		return nil, sentinelerrors.New(sentinelerrors.NotFound, sentinelerrors.ErrCodeCommandNotFound, "command not found: "+command, nil)
	}

	var sessionID uuid.UUID
	if dctx.UserID != "" {
		parsed, err := uuid.Parse(dctx.SessionID)
		if err != nil {
			d.auditDenial(dctx, command, "invalid_session")
			return nil, sentinelerrors.New(sentinelerrors.Unauthorized, sentinelerrors.ErrCodeSessionInvalid, "malformed session id", err)
		}
		sessionID = parsed
		if _, ok := d.security.GetSecurityContext(sessionID); !ok {
			d.auditDenial(dctx, command, "invalid_session")
			return nil, sentinelerrors.New(sentinelerrors.Unauthorized, sentinelerrors.ErrCodeSessionInvalid, "session validation failed", nil)
		}
	}

	if limit, ok := snapshot.Sec.RateLimitFor(command); ok {
		allowed, _, err := d.rates.check(ctx, dctx.TenantID, dctx.Actor, command, limit)
		if err != nil {
			d.auditDenial(dctx, command, "rate_limiter_unavailable")
			return nil, sentinelerrors.New(sentinelerrors.ServiceUnavailable, sentinelerrors.ErrCodeSessionUnavailable, "rate limiter unavailable", err)
		}
		if !allowed {
			d.metrics.IncCounter(metrics.RateLimitExceededTotal, dctx.TenantID, dctx.Actor, command)
			d.auditDenial(dctx, command, "rate_limited")
			return nil, sentinelerrors.New(sentinelerrors.RateLimited, sentinelerrors.ErrCodeRateLimited, "rate limit exceeded for "+command, nil)
		}
		d.metrics.IncCounter(metrics.RateLimitChecksPassed, command)
	}

	if snapshot.Sec.MACEnforcement && dctx.UserID != "" {
		result, err := d.security.SecurityCheck(ctx, security.CheckRequest{
			OperationType:  security.OpAccessCheck,
			UserID:         dctx.UserID,
			SessionID:      sessionID,
			Resource:       command,
			Action:         "dispatch",
			Classification: r.classification,
		})
		if err != nil {
			d.auditDenial(dctx, command, "mac_check_error")
			return nil, sentinelerrors.New(sentinelerrors.ServiceUnavailable, sentinelerrors.ErrCodeMACDenied, "authorization service unavailable", err)
		}
		if !result.Allowed {
			d.metrics.IncCounter(metrics.AuthorizationFailureTotal, command, "insufficient_clearance", dctx.TenantID)
			d.auditDenial(dctx, command, "insufficient_privileges")
			return nil, sentinelerrors.New(sentinelerrors.Forbidden, sentinelerrors.ErrCodeMACDenied, "insufficient privileges for "+command, nil)
		}
		d.metrics.IncCounter(metrics.AuthorizationSuccessTotal, command, dctx.TenantID)
	}

	d.auditSuccess(dctx, command)

	opCtx := instrument.Context{
		Component:      "dispatch",
		Operation:      command,
		Classification: r.classification,
		UserID:         dctx.UserID,
		TenantID:       dctx.TenantID,
	}
	return instrument.InstrumentOperation[json.RawMessage](d.instrumentation, ctx, opCtx, d.auditWriter, opMetricsAdapter{d.metrics}, func(ctx context.Context) (json.RawMessage, error) {
		return r.handler(ctx, dctx, payload)
	})
}

func (d *Dispatcher) auditSuccess(dctx Context, command string) {
	sessionID, _ := uuid.Parse(dctx.SessionID)
	env := audit.NewEnvelope(uuid.New(), audit.EventAuthorization, dctx.Actor, sessionID, gateway.Unclassified, "authorized:"+command)
	_ = d.auditWriter.Log(env)
}

func (d *Dispatcher) auditDenial(dctx Context, command, reason string) {
	sessionID, _ := uuid.Parse(dctx.SessionID)
	env := audit.NewEnvelope(uuid.New(), audit.EventAccessDenied, dctx.Actor, sessionID, gateway.Unclassified, reason+":"+command)
	_ = d.auditWriter.Log(env)
}

func statusCodeString(err error) string {
	return strconv.Itoa(sentinelerrors.StatusOf(err).HTTPCode())
}
