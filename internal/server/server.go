// Package server exposes the coordinator over HTTP: the WebSocket endpoint
// remote evaluators connect to, pending and trusted certificate listings,
// decision and reset commands, and Prometheus metrics.
package server

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sensiblebit/certtrust"
	"github.com/sensiblebit/certtrust/internal/coordinator"
	"github.com/sensiblebit/certtrust/internal/presenter"
)

// maxBodyBytes bounds decoded request bodies.
const maxBodyBytes = 1 << 16

// Coordinator is the subset of *coordinator.Coordinator the server uses.
type Coordinator interface {
	DecideTag(ctx context.Context, tag string, trusted bool) error
	Reset(ctx context.Context) error
	PendingDecisions(ctx context.Context) ([]coordinator.Pending, error)
}

// TrustedLister lists durably trusted certificates.
type TrustedLister interface {
	Trusted() []*x509.Certificate
}

// Options configures the HTTP surface. WebSocket, Inbox, and Gatherer are
// optional; their routes are omitted when nil.
type Options struct {
	Coordinator Coordinator
	Store       TrustedLister
	WebSocket   http.Handler
	Inbox       *presenter.Inbox
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
}

// PendingResponse is one entry of GET /pending.
type PendingResponse struct {
	certtrust.Details
	Waiters    int       `json:"waiters"`
	Foreground bool      `json:"foreground"`
	Since      time.Time `json:"since"`
}

// DecisionRequest is the body of POST /decisions.
type DecisionRequest struct {
	Tag     string `json:"tag"`
	Trusted *bool  `json:"trusted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	coord  Coordinator
	store  TrustedLister
	inbox  *presenter.Inbox
	logger *slog.Logger
}

// NewRouter builds the chi router for opts.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{coord: opts.Coordinator, store: opts.Store, inbox: opts.Inbox, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if opts.WebSocket != nil {
		r.Method(http.MethodGet, "/ws", opts.WebSocket)
	}
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/pending", h.handlePending)
		r.Post("/decisions", h.handleDecision)
		r.Post("/reset", h.handleReset)
		r.Get("/trusted", h.handleTrusted)
		if h.inbox != nil {
			r.Get("/notifications", h.handleNotifications)
		}
	})
	return r
}

func (h *handler) handlePending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.coord.PendingDecisions(r.Context())
	if err != nil {
		h.fail(w, r, http.StatusServiceUnavailable, "listing pending decisions", err)
		return
	}
	out := make([]PendingResponse, 0, len(pending))
	for _, p := range pending {
		out = append(out, PendingResponse{
			Details:    certtrust.NewDetails(p.Cert),
			Waiters:    p.Waiters,
			Foreground: p.Foreground,
			Since:      p.Since,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.Tag == "" || req.Trusted == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tag and trusted are required"})
		return
	}

	err := h.coord.DecideTag(r.Context(), req.Tag, *req.Trusted)
	switch {
	case errors.Is(err, coordinator.ErrNoPendingDecision):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	case err != nil:
		h.fail(w, r, http.StatusInternalServerError, "applying decision", err)
		return
	}
	h.logger.Info("decision received", "tag", req.Tag, "trusted", *req.Trusted,
		"request_id", middleware.GetReqID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.coord.Reset(r.Context()); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "resetting trust store", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleTrusted(w http.ResponseWriter, _ *http.Request) {
	certs := h.store.Trusted()
	out := make([]certtrust.Details, 0, len(certs))
	for _, cert := range certs {
		out = append(out, certtrust.NewDetails(cert))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.inbox.List())
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, status, errorResponse{Error: msg + ": " + err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
