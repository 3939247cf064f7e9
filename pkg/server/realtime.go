package server

import (
	"net/http"

	"github.com/haivivi/giztalk/pkg/account"
	"github.com/haivivi/giztalk/pkg/credits"
	openairealtime "github.com/haivivi/giztalk/pkg/openai-realtime"
	"github.com/haivivi/giztalk/pkg/styles"
)

type secretRequest struct {
	Instructions string `json:"instructions"`
	StyleID      string `json:"conversationStyle"`
}

// handleRealtimeSecret mints a client secret for a voice session. Without
// explicit instructions the style prompt is personalized with the stored
// profile.
func (s *Server) handleRealtimeSecret(w http.ResponseWriter, r *http.Request, user *account.User) {
	if s.cfg.Realtime == nil {
		writeMessage(w, http.StatusServiceUnavailable, "OpenAI API key not configured")
		return
	}
	var req secretRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	acc, ok, err := s.cfg.Ledger.CanStart(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusPaymentRequired, map[string]any{"error": "크레딧이 부족합니다.", "credits": acc.Balance})
		return
	}

	instructions := req.Instructions
	if instructions == "" {
		profile, err := s.cfg.Accounts.Profile(r.Context(), user.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		instructions = styles.Instructions(req.StyleID, profile, nil)
	}

	secret, err := s.cfg.Realtime.CreateClientSecret(r.Context(), &openairealtime.SessionConfig{
		Instructions: instructions,
	})
	if err != nil {
		s.logger.Error("create client secret failed", "user_id", user.ID, "error", err)
		writeMessage(w, http.StatusBadGateway, "Failed to create client secret")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"clientSecret": secret.Value})
}

type usageRequest struct {
	ConversationID string `json:"conversationId"`
	InputTokens    int    `json:"inputTokens"`
	OutputTokens   int    `json:"outputTokens"`
}

// handleRealtimeUsage charges one completed realtime response.
func (s *Server) handleRealtimeUsage(w http.ResponseWriter, r *http.Request, user *account.User) {
	var req usageRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tokens := req.InputTokens + req.OutputTokens
	res, err := s.cfg.Ledger.Debit(r.Context(), user.ID, credits.UsageCost(req.InputTokens, req.OutputTokens), credits.Options{
		ConversationID: req.ConversationID,
		Type:           credits.TypeRealtime,
		TokensUsed:     &tokens,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
