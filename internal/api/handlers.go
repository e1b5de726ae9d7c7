package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/goodtune/talkgate/internal/plans"
	"github.com/goodtune/talkgate/internal/quota"
)

const maxBodyBytes = 64 << 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	defaultID := s.deps.Catalog.Default().ID

	resp := PlansResponse{}
	for _, t := range s.deps.Catalog.Tiers() {
		resp.Plans = append(resp.Plans, planInfo(t, defaultID))
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleTalk runs one conversational turn through the quota gate.
func (s *Server) handleTalk(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req TalkRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "message is required")
		return
	}

	hint := s.planHint(r, userID)

	if req.Feature != "" {
		tier := s.deps.Gate.Resolve(hint)
		allowed, err := s.deps.Features.AllowFeature(r.Context(), tier, plans.Feature(req.Feature))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "policy_error", "Feature policy evaluation failed")
			return
		}
		if !allowed {
			writeError(w, http.StatusForbidden, "feature_not_available", "Feature "+req.Feature+" is not available on plan "+tier.ID)
			return
		}
	}

	outcome, err := s.deps.Gate.Turn(r.Context(), quota.TurnRequest{
		UserID:   userID,
		TierHint: hint,
		Message:  req.Message,
	})
	if err != nil {
		if errors.Is(err, quota.ErrResponderFailed) {
			writeError(w, http.StatusBadGateway, "responder_failed", "The assistant is unavailable, please try again")
			return
		}
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Turn failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// handleUsage reports the caller's quota position for today.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	tier := s.deps.Gate.Resolve(s.planHint(r, userID))

	stats := s.deps.Usage.Stats(userID, tier.DailyConversationLimit, tier.MaxSecondsPerConversation)

	writeJSON(w, http.StatusOK, UsageResponse{
		UserID:     userID,
		Plan:       tier.ID,
		UsageStats: stats,
		MaxSeconds: tier.MaxSecondsPerConversation,
	})
}

func (s *Server) planHint(r *http.Request, userID string) string {
	header := strings.TrimSpace(r.Header.Get(s.config.PlanHeader))
	if s.deps.Hints == nil {
		return header
	}
	return s.deps.Hints.PlanHint(r.Context(), userID, header)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"internal_error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
