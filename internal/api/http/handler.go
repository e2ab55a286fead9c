// Package http exposes the penalty engine over a JSON HTTP API.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"rentdesk-backend/internal/clock"
	"rentdesk-backend/internal/domain"
	"rentdesk-backend/internal/logger"
	"rentdesk-backend/internal/security"
	"rentdesk-backend/internal/service"
)

const dateLayout = "2006-01-02"

// HealthChecker is satisfied by *sql.DB
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type PenaltyHandler struct {
	svc        service.PenaltyService
	clock      clock.Clock
	production bool
}

func NewPenaltyHandler(svc service.PenaltyService, clk clock.Clock, production bool) *PenaltyHandler {
	return &PenaltyHandler{svc: svc, clock: clk, production: production}
}

// NewRouter wires the penalty routes, health and metrics endpoints
func NewRouter(h *PenaltyHandler, tm security.TokenManager, health HealthChecker) *mux.Router {
	r := mux.NewRouter()
	r.Use(observe, NewAuthMiddleware(tm).Handler)

	r.HandleFunc("/healthz", healthHandler(health)).Methods(http.MethodGet).Name("health")
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet).Name("metrics")

	api := r.PathPrefix("/api/v1/penalties").Subrouter()
	api.HandleFunc("/bills/{id:[0-9]+}/apply", h.ApplyToBill).Methods(http.MethodPost).Name("penalty.apply")
	api.HandleFunc("/bills/{id:[0-9]+}/preview", h.PreviewPenalty).Methods(http.MethodGet).Name("penalty.preview")
	api.HandleFunc("/bills/{id:[0-9]+}", h.AdjustPenalty).Methods(http.MethodPut).Name("penalty.adjust")
	api.HandleFunc("/bills/{id:[0-9]+}", h.RemovePenalty).Methods(http.MethodDelete).Name("penalty.remove")
	api.HandleFunc("/apply-monthly", h.ApplyMonthlyPenalties).Methods(http.MethodPost).Name("penalty.applyMonthly")
	api.HandleFunc("/recalculate", h.RecalculateAllPenalties).Methods(http.MethodPost).Name("penalty.recalculate")

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "not found")
	})
	return r
}

func healthHandler(health HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := health.PingContext(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, "database_unavailable", "database is not reachable")
				return
			}
		}
		writeOK(w, map[string]string{"status": "ok"})
	}
}

func billID(r *http.Request) (int32, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 32)
	if err != nil || id <= 0 {
		return 0, false
	}
	return int32(id), true
}

// parseAsOf reads a YYYY-MM-DD reference date, defaulting to now
func parseAsOf(q string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(q) == "" {
		return now, nil
	}
	return time.Parse(dateLayout, q)
}

func actor(r *http.Request) int32 {
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		return claims.UserID
	}
	return 0
}

func (h *PenaltyHandler) ApplyToBill(w http.ResponseWriter, r *http.Request) {
	id, ok := billID(r)
	if !ok {
		BadRequest(w, "invalid_bill_id", "bill id must be a positive integer")
		return
	}

	res, err := h.svc.ApplyToBill(r.Context(), id, h.clock.Now())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	logger.InfoContext(r.Context(), "Penalty apply requested", "billID", id, "actor", actor(r), "applied", res.Applied)
	writeOK(w, res)
}

func (h *PenaltyHandler) ApplyMonthlyPenalties(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ApplyMonthlyPenalties(r.Context(), h.clock.Now())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	logger.InfoContext(r.Context(), "Monthly penalty sweep requested", "actor", actor(r), "runID", res.RunID, "applied", res.PenaltiesApplied)
	writeOK(w, res)
}

func (h *PenaltyHandler) PreviewPenalty(w http.ResponseWriter, r *http.Request) {
	id, ok := billID(r)
	if !ok {
		BadRequest(w, "invalid_bill_id", "bill id must be a positive integer")
		return
	}

	asOf, err := parseAsOf(r.URL.Query().Get("as_of"), h.clock.Now())
	if err != nil {
		BadRequest(w, "invalid_as_of", "as_of must be YYYY-MM-DD")
		return
	}

	res, err := h.svc.PreviewPenalty(r.Context(), id, asOf)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, res)
}

type adjustRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

func (h *PenaltyHandler) AdjustPenalty(w http.ResponseWriter, r *http.Request) {
	id, ok := billID(r)
	if !ok {
		BadRequest(w, "invalid_bill_id", "bill id must be a positive integer")
		return
	}

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount == nil {
		h.writeServiceError(w, r, domain.ErrInvalidAdjustment)
		return
	}

	res, err := h.svc.AdjustPenalty(r.Context(), id, *req.Amount, h.clock.Now())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	logger.InfoContext(r.Context(), "Penalty adjusted", "billID", id, "actor", actor(r), "delta", req.Amount.String())
	writeOK(w, res)
}

func (h *PenaltyHandler) RemovePenalty(w http.ResponseWriter, r *http.Request) {
	id, ok := billID(r)
	if !ok {
		BadRequest(w, "invalid_bill_id", "bill id must be a positive integer")
		return
	}

	res, err := h.svc.RemovePenalty(r.Context(), id, h.clock.Now())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	logger.InfoContext(r.Context(), "Penalty removed", "billID", id, "actor", actor(r))
	writeOK(w, res)
}

func (h *PenaltyHandler) RecalculateAllPenalties(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RecalculateAllPenalties(r.Context(), h.clock.Now())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	logger.InfoContext(r.Context(), "Penalty recalculation requested", "actor", actor(r), "runID", res.RunID, "recalculated", res.Recalculated)
	writeOK(w, res)
}
