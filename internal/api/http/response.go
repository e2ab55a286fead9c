package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"rentdesk-backend/internal/domain"
	"rentdesk-backend/internal/logger"
)

type Envelope struct {
	OK   bool        `json:"ok"`
	Data any         `json:"data"`
	Err  *ErrorShape `json:"error,omitempty"`
}

type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(payload)
}

func writeOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Envelope{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, Envelope{
		OK:  false,
		Err: &ErrorShape{Code: code, Message: message},
	})
}

func BadRequest(w http.ResponseWriter, code, message string) {
	writeError(w, http.StatusBadRequest, code, message)
}

// errorStatus maps service errors to an HTTP status and error code
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrBillNotFound):
		return http.StatusNotFound, "bill_not_found"
	case errors.Is(err, domain.ErrBillImmutable):
		return http.StatusConflict, "bill_immutable"
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict, "version_conflict"
	case errors.Is(err, domain.ErrSweepInProgress):
		return http.StatusConflict, "sweep_in_progress"
	case errors.Is(err, domain.ErrInvalidAdjustment):
		return http.StatusBadRequest, "invalid_adjustment"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeServiceError renders err. Unexpected errors only expose their
// detail outside production.
func (h *PenaltyHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Penalty request failed", "path", r.URL.Path, "error", err)
		message = "internal server error"
		if !h.production {
			message += ": " + err.Error()
		}
	}
	writeError(w, status, code, message)
}
