package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/motify-engine/internal/models"
	"github.com/terra-clan/motify-engine/internal/storage"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondServiceError maps domain errors to HTTP responses. action is used
// in the log line and the generic 500 message.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var (
		validation  *models.ValidationError
		partial     *models.PartialFailureError
		rateLimited *models.RateLimitedError
	)

	switch {
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, "validation_error", validation.Error())
	case errors.Is(err, models.ErrInvalidStake):
		respondError(w, http.StatusBadRequest, "invalid_stake", err.Error())
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, models.ErrNotParticipant):
		respondError(w, http.StatusNotFound, "not_participant", err.Error())
	case errors.Is(err, models.ErrAlreadyJoined):
		respondError(w, http.StatusConflict, "already_joined", err.Error())
	case errors.Is(err, models.ErrChallengeEnded):
		respondError(w, http.StatusConflict, "challenge_ended", err.Error())
	case errors.Is(err, models.ErrNotEnded):
		respondError(w, http.StatusConflict, "challenge_not_ended", err.Error())
	case errors.As(err, &partial):
		slog.Error("partial failure", "action", action, "error", err, "tx_hash", partial.TxHash)
		respondError(w, http.StatusBadGateway, "partial_failure",
			fmt.Sprintf("transaction %s was submitted but not recorded; retry to reconcile", partial.TxHash))
	case errors.As(err, &rateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rateLimited.RetryAfter)))
		respondError(w, http.StatusTooManyRequests, "rate_limited", rateLimited.Error())
	case errors.Is(err, models.ErrExternalAuth):
		respondError(w, http.StatusBadGateway, "external_auth_failed", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		slog.Error("request failed", "action", action, "error", err, "path", r.URL.Path)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_id", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.challenges.Ping(r.Context()); err != nil {
		slog.Warn("readiness check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Debug handlers

func (s *Server) handleDebugReset(w http.ResponseWriter, r *http.Request) {
	resetter, ok := s.repo.(storage.Resetter)
	if !ok {
		respondError(w, http.StatusNotImplemented, "not_supported", "the configured store cannot be reset")
		return
	}

	resetter.Reset()
	slog.Warn("store reset to seed data", "remote_addr", r.RemoteAddr)

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "reset",
	})
}
