package server

import (
	"net/http"
	"strconv"

	"github.com/haivivi/giztalk/pkg/account"
	"github.com/haivivi/giztalk/pkg/credits"
	"github.com/haivivi/giztalk/pkg/payments"
)

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, user *account.User) {
	acc, err := s.cfg.Ledger.Balance(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"credits":     acc.Balance,
		"isSuperUser": acc.Unmetered,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, user *account.User) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	txs, total, err := s.cfg.Ledger.History(r.Context(), user.ID, limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []credits.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    txs,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request, user *account.User) {
	if s.cfg.Payments == nil {
		writeMessage(w, http.StatusServiceUnavailable, "토스페이먼츠 시크릿 키가 설정되지 않았습니다.")
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.cfg.Payments.Create(r.Context(), *user, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*payments.CreateResult
	}{true, res})
}

func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request, user *account.User) {
	if s.cfg.Payments == nil {
		writeMessage(w, http.StatusServiceUnavailable, "토스페이먼츠 시크릿 키가 설정되지 않았습니다.")
		return
	}
	var req payments.ConfirmRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.cfg.Payments.Confirm(r.Context(), user.ID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg := "결제가 완료되었습니다."
	if res.AlreadyDone {
		msg = "이미 처리된 결제입니다."
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg, "payment": res})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Payments == nil {
		writeMessage(w, http.StatusServiceUnavailable, "토스페이먼츠 시크릿 키가 설정되지 않았습니다.")
		return
	}
	var ev payments.WebhookEvent
	if err := decode(w, r, &ev); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.cfg.Payments.Webhook(r.Context(), ev)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
}
