package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"bondoracle/referral"
)

const defaultLeaderboardLimit = 10

// handleGenerateCode mints a fresh referral code for an owner address.
func (s *Server) handleGenerateCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner   string  `json:"owner"`
		TokenID *uint64 `json:"tokenId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Owner) == "" {
		s.writeError(w, http.StatusBadRequest, "missing owner")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	code, err := s.ledger.GenerateCode(ctx, req.Owner, req.TokenID)
	if err != nil {
		s.logger.Error("referral code generation failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to generate referral code")
		return
	}
	s.logger.Info("referral code generated", "owner", req.Owner)
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    map[string]string{"code": code},
	})
}

// handleTrackClick records one click against a code. Unknown codes are a
// 404, not a fault.
func (s *Server) handleTrackClick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		s.writeError(w, http.StatusBadRequest, "missing code")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	ok, err := s.ledger.TrackClick(ctx, req.Code, clientOrigin(r), r.UserAgent())
	if err != nil {
		s.logger.Error("click tracking failed", "error", err, "code", req.Code)
		s.writeError(w, http.StatusInternalServerError, "failed to track click")
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "referral code not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "click tracked",
	})
}

// handleTrackConversion records a conversion and flips the most recent
// unconverted click from the same origin when one exists.
func (s *Server) handleTrackConversion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		s.writeError(w, http.StatusBadRequest, "missing code")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	ok, err := s.ledger.TrackConversion(ctx, req.Code, clientOrigin(r))
	if err != nil {
		s.logger.Error("conversion tracking failed", "error", err, "code", req.Code)
		s.writeError(w, http.StatusInternalServerError, "failed to track conversion")
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "referral code not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "conversion tracked",
	})
}

// handleReferralStats returns the funnel summary for one code.
func (s *Server) handleReferralStats(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	stats, err := s.ledger.Stats(ctx, code)
	if err != nil {
		s.logger.Error("referral stats failed", "error", err, "code", code)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	if stats == nil {
		s.writeError(w, http.StatusNotFound, "referral code not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    stats,
	})
}

// handleLeaderboard lists the top codes by conversions, clicks breaking ties.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	board, err := s.ledger.Leaderboard(ctx, limit)
	if err != nil {
		s.logger.Error("leaderboard failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get leaderboard")
		return
	}
	if board == nil {
		board = []referral.Entry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    board,
	})
}

// handleCodesByOwner lists every code owned by an address, with reward totals.
func (s *Server) handleCodesByOwner(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	entries, err := s.ledger.CodesByOwner(ctx, owner)
	if err != nil {
		s.logger.Error("codes by owner failed", "error", err, "owner", owner)
		s.writeError(w, http.StatusInternalServerError, "failed to list codes")
		return
	}

	var conversions uint64
	for _, entry := range entries {
		conversions += entry.Conversions
	}
	if entries == nil {
		entries = []referral.Entry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"codes":        entries,
			"totalReward":  s.ledger.CalculateReward(conversions),
			"totalCodes":   len(entries),
			"totalConvert": conversions,
		},
	})
}

// clientOrigin prefers the RealIP-resolved remote address. RealIP leaves a
// bare IP without a port, so a failed split returns the address as-is.
func clientOrigin(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	return host
}
