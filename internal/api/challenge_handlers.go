package api

import (
	"log/slog"
	"net/http"

	"github.com/terra-clan/motify-engine/internal/ledger"
	"github.com/terra-clan/motify-engine/internal/models"
)

func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	views, err := s.challenges.List(r.Context(), r.URL.Query().Get("wallet"))
	if err != nil {
		respondServiceError(w, r, err, "list challenges")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"challenges": views,
		"total":      len(views),
	})
}

func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req models.CreateChallengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := s.challenges.Create(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err, "create challenge")
		return
	}

	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	view, err := s.challenges.Get(r.Context(), id, r.URL.Query().Get("wallet"))
	if err != nil {
		respondServiceError(w, r, err, "get challenge")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetChallengeByChainID(w http.ResponseWriter, r *http.Request) {
	chainID, ok := pathID(w, r, "chainId")
	if !ok {
		return
	}

	view, err := s.challenges.GetByChainID(r.Context(), chainID, r.URL.Query().Get("wallet"))
	if err != nil {
		respondServiceError(w, r, err, "get challenge")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	el, err := s.challenges.Eligibility(r.Context(), id, r.URL.Query().Get("wallet"))
	if err != nil {
		respondServiceError(w, r, err, "check eligibility")
		return
	}

	respondJSON(w, http.StatusOK, el)
}

func (s *Server) handleJoinChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req models.JoinRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := s.challenges.Join(r.Context(), id, req)
	if err != nil {
		respondServiceError(w, r, err, "join challenge")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

type progressResponse struct {
	ChallengeID   int64                  `json:"challenge_id"`
	WalletAddress string                 `json:"wallet_address"`
	Started       bool                   `json:"started"`
	Progress      *models.ProgressSeries `json:"progress"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	wallet := r.URL.Query().Get("wallet")

	series, err := s.challenges.Progress(r.Context(), id, wallet)
	if err != nil {
		respondServiceError(w, r, err, "get progress")
		return
	}

	resp := progressResponse{
		ChallengeID: id,
		Started:     series != nil,
		Progress:    series,
	}
	if series != nil {
		resp.WalletAddress = series.WalletAddress
	} else {
		resp.WalletAddress = ledger.NormalizeAddress(wallet)
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFinalizeChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	view, err := s.challenges.Finalize(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "finalize challenge")
		return
	}

	slog.Info("finalization requested", "challenge_id", id, "client", clientName(r))

	respondJSON(w, http.StatusOK, view)
}
