package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/haivivi/giztalk/pkg/account"
	"github.com/haivivi/giztalk/pkg/chat"
	"github.com/haivivi/giztalk/pkg/conversation"
	"github.com/haivivi/giztalk/pkg/credits"
	"github.com/haivivi/giztalk/pkg/payments"
)

const maxBodyBytes = 1 << 20

var errBadJSON = errors.New("잘못된 요청 형식입니다.")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errBadJSON
	}
	return nil
}

// writeError maps service errors onto statuses. Unknown errors are logged
// and reported as a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *credits.InsufficientError
	var gateway *payments.GatewayError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":    "크레딧이 부족합니다.",
			"credits":  insufficient.Balance,
			"required": insufficient.Required,
		})
	case errors.Is(err, credits.ErrInsufficientCredits):
		writeMessage(w, http.StatusPaymentRequired, "크레딧이 부족합니다.")
	case errors.Is(err, conversation.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "대화를 찾을 수 없습니다.")
	case errors.Is(err, payments.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "결제 정보를 찾을 수 없습니다.")
	case errors.Is(err, account.ErrNotFound), errors.Is(err, credits.ErrUserNotFound):
		writeMessage(w, http.StatusNotFound, "사용자를 찾을 수 없습니다.")
	case errors.Is(err, errBadJSON):
		writeMessage(w, http.StatusBadRequest, errBadJSON.Error())
	case errors.Is(err, conversation.ErrInvalidItem),
		errors.Is(err, payments.ErrMissingFields),
		errors.Is(err, credits.ErrInvalidAmount):
		writeMessage(w, http.StatusBadRequest, "필수 정보가 누락되었습니다.")
	case errors.Is(err, payments.ErrAmountTooLow):
		writeMessage(w, http.StatusBadRequest, "최소 결제 금액은 1,000원입니다.")
	case errors.Is(err, payments.ErrAmountMismatch):
		writeMessage(w, http.StatusBadRequest, "결제 금액이 주문 금액과 일치하지 않습니다.")
	case errors.Is(err, chat.ErrNoMessages):
		writeMessage(w, http.StatusBadRequest, "메시지가 필요합니다.")
	case errors.Is(err, chat.ErrTooShort):
		writeMessage(w, http.StatusBadRequest, "대화가 너무 짧아 요약할 수 없습니다.")
	case errors.As(err, &gateway):
		s.logger.Warn("payment gateway failed", "path", r.URL.Path, "op", gateway.Op, "error", gateway.Err)
		writeMessage(w, http.StatusBadRequest, "결제 처리에 실패했습니다.")
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, "서버 오류가 발생했습니다.")
	}
}
