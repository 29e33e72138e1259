package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"bondoracle/store"
	"bondoracle/tasks"
	"bondoracle/verify"
)

type verifyTaskRequest struct {
	TokenID  uint64       `json:"tokenId"`
	TaskID   string       `json:"taskId"`
	Claimant string       `json:"claimant"`
	Proof    verify.Proof `json:"proof"`
}

// handleVerifyTask runs the full claim flow. Side effects are strictly
// ordered: the idempotency gate precedes the verifier call, verification
// precedes nonce allocation, the nonce precedes signing, signing precedes
// persistence, and audit logging comes last as best effort.
func (s *Server) handleVerifyTask(w http.ResponseWriter, r *http.Request) {
	var req verifyTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.TokenID == 0 || req.TaskID == "" || req.Claimant == "" || req.Proof.Type == "" {
		s.writeError(w, http.StatusBadRequest, "missing required fields: tokenId, taskId, proof, claimant")
		return
	}
	task, ok := tasks.Lookup(req.TaskID)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown task")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	completed, err := s.store.IsCompleted(ctx, req.TokenID, req.TaskID)
	if err != nil {
		s.logger.Error("completion lookup failed", "error", err, "token", req.TokenID, "task", req.TaskID)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if completed {
		s.writeError(w, http.StatusConflict, "task already completed for this token")
		return
	}

	verdict, err := s.verifiers.Dispatch(ctx, verify.Claim{
		TokenID:  req.TokenID,
		TaskID:   req.TaskID,
		Claimant: req.Claimant,
		Proof:    req.Proof,
	})
	if err != nil {
		switch {
		case errors.Is(err, verify.ErrUnknownTask):
			s.writeError(w, http.StatusBadRequest, "unknown task")
		case errors.Is(err, verify.ErrUnavailable):
			s.logger.Warn("capability provider unavailable", "error", err, "task", req.TaskID)
			s.writeError(w, http.StatusBadGateway, "verification provider unavailable")
		default:
			s.logger.Error("verifier dispatch failed", "error", err, "task", req.TaskID)
			s.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	if !verdict {
		s.writeError(w, http.StatusForbidden, "task verification failed")
		return
	}

	nonce, err := s.store.NextNonce(ctx, req.TokenID)
	if err != nil {
		s.logger.Error("nonce allocation failed", "error", err, "token", req.TokenID)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	att, err := s.signer.Sign(req.TokenID, req.TaskID, nonce)
	if err != nil {
		s.logger.Error("attestation signing failed", "error", err, "token", req.TokenID, "task", req.TaskID)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	sigHex := "0x" + hex.EncodeToString(att.Signature)
	digestHex := "0x" + hex.EncodeToString(att.Digest[:])

	proofJSON, err := json.Marshal(req.Proof)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := s.store.RecordCompletion(ctx, store.Completion{
		TokenID:   req.TokenID,
		TaskID:    req.TaskID,
		Claimant:  req.Claimant,
		TaskKind:  string(task.Kind),
		Proof:     string(proofJSON),
		Signature: sigHex,
		Nonce:     nonce,
	}); err != nil {
		s.logger.Error("completion persist failed", "error", err, "token", req.TokenID, "task", req.TaskID)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Diagnostic only: a failed audit write never fails the claim.
	if err := s.store.RecordSignatureAudit(ctx, req.TokenID, req.TaskID, digestHex, sigHex, nonce, att.IssuedAt); err != nil {
		s.logger.Warn("signature audit write failed", "error", err, "token", req.TokenID, "task", req.TaskID)
	}

	s.logger.Info("attestation issued",
		"token", req.TokenID, "task", req.TaskID, "kind", task.Kind, "nonce", nonce)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"signature": sigHex,
		"nonce":     nonce,
		"message":   "task verified successfully",
	})
}

// handleTaskStats reports completion counts grouped by task kind.
func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	stats, err := s.store.TaskStatistics(ctx)
	if err != nil {
		s.logger.Error("task statistics failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if stats == nil {
		stats = []store.TaskStat{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    stats,
	})
}
