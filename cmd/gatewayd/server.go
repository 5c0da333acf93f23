package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/byteness/sentinel-gateway/dispatch"
	sentinelerrors "github.com/byteness/sentinel-gateway/errors"
	"github.com/byteness/sentinel-gateway/metrics"
)

// dispatchRequest is the wire shape of a POST /v1/dispatch/{command} body.
type dispatchRequest struct {
	TenantID  string          `json:"tenant_id"`
	SessionID string          `json:"session_id"`
	Actor     string          `json:"actor"`
	UserID    string          `json:"user_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type errorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

func newServer(addr string, dispatcher *dispatch.Dispatcher, recorder metrics.Recorder) *http.Server {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/v1/dispatch/{command}", dispatchHandler(dispatcher)).Methods(http.MethodPost)

	return &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func dispatchHandler(dispatcher *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		command := mux.Vars(r)["command"]

		var req dispatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, sentinelerrors.New(sentinelerrors.BadRequest, sentinelerrors.ErrCodeContextInvalid, "malformed request body", err))
			return
		}

		dctx := dispatch.Context{
			TenantID:  req.TenantID,
			SessionID: req.SessionID,
			Actor:     req.Actor,
			UserID:    req.UserID,
			SourceIP:  clientIP(r),
			UserAgent: r.UserAgent(),
		}

		resp, err := dispatcher.Dispatch(r.Context(), command, req.Payload, dctx)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := sentinelerrors.StatusOf(err)
	body := errorResponse{Message: err.Error()}
	if ce, ok := sentinelerrors.As(err); ok {
		body.Code = ce.Code()
		body.Suggestion = ce.Suggestion()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status.HTTPCode())
	if encodeErr := json.NewEncoder(w).Encode(body); encodeErr != nil {
		log.Printf("gatewayd: failed to encode error response: %v", encodeErr)
	}
}

// clientIP prefers the first hop of X-Forwarded-For (set by a trusted
// upstream proxy), falling back to the direct connection's address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}
