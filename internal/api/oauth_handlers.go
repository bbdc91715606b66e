package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/motify-engine/internal/ledger"
	"github.com/terra-clan/motify-engine/internal/models"
	"github.com/terra-clan/motify-engine/internal/oauth"
)

// oauthProvider reads and validates the {provider} URL parameter
func oauthProvider(w http.ResponseWriter, r *http.Request) (string, bool) {
	provider := strings.ToLower(chi.URLParam(r, "provider"))
	if !models.APIProvider(provider).Valid() {
		respondError(w, http.StatusBadRequest, "unknown_provider", "unknown oauth provider: "+provider)
		return "", false
	}
	return provider, true
}

func (s *Server) handleOAuthStatus(w http.ResponseWriter, r *http.Request) {
	provider, ok := oauthProvider(w, r)
	if !ok {
		return
	}

	wallet := ledger.NormalizeAddress(chi.URLParam(r, "wallet"))
	if wallet == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "wallet is required")
		return
	}

	status, err := s.oauth.Status(r.Context(), provider, wallet)
	if err != nil {
		respondServiceError(w, r, err, "get oauth status")
		return
	}

	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleOAuthMessage(w http.ResponseWriter, r *http.Request) {
	provider, ok := oauthProvider(w, r)
	if !ok {
		return
	}

	wallet := ledger.NormalizeAddress(r.URL.Query().Get("wallet"))
	if wallet == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "wallet is required")
		return
	}

	action := r.URL.Query().Get("action")
	if action == "" {
		action = oauth.ActionConnect
	}

	msg, err := oauth.NewMessage(action, provider, wallet, s.now())
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, msg)
}

func decodeSigned(w http.ResponseWriter, r *http.Request) (models.SignedOAuthRequest, bool) {
	var req models.SignedOAuthRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}

	req.WalletAddress = ledger.NormalizeAddress(req.WalletAddress)
	switch {
	case req.WalletAddress == "":
		respondError(w, http.StatusBadRequest, "validation_error", "wallet_address is required")
		return req, false
	case req.Signature == "":
		respondError(w, http.StatusBadRequest, "validation_error", "signature is required")
		return req, false
	case req.Timestamp <= 0:
		respondError(w, http.StatusBadRequest, "validation_error", "timestamp is required")
		return req, false
	}

	return req, true
}

func (s *Server) handleOAuthConnect(w http.ResponseWriter, r *http.Request) {
	provider, ok := oauthProvider(w, r)
	if !ok {
		return
	}

	req, ok := decodeSigned(w, r)
	if !ok {
		return
	}

	authURL, err := s.oauth.ConnectURL(r.Context(), provider, req)
	if err != nil {
		respondServiceError(w, r, err, "start oauth connection")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"auth_url": authURL,
	})
}

func (s *Server) handleOAuthDisconnect(w http.ResponseWriter, r *http.Request) {
	provider, ok := oauthProvider(w, r)
	if !ok {
		return
	}

	req, ok := decodeSigned(w, r)
	if !ok {
		return
	}

	result, err := s.oauth.Disconnect(r.Context(), provider, req)
	if err != nil {
		respondServiceError(w, r, err, "disconnect oauth provider")
		return
	}

	respondJSON(w, http.StatusOK, result)
}
