package server

import (
	"net/http"

	"github.com/haivivi/giztalk/pkg/account"
	"github.com/haivivi/giztalk/pkg/styles"
)

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, user *account.User) {
	p, err := s.cfg.Accounts.Profile(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "profile": p})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, user *account.User) {
	var p account.Profile
	if err := decode(w, r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	if p.Age != nil && *p.Age <= 0 {
		p.Age = nil
	}
	if err := s.cfg.Accounts.UpdateProfile(r.Context(), user.ID, p); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "profile": p})
}

func (s *Server) handleToggleUnmetered(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"userId"`
		IsSuperUser *bool  `json:"isSuperUser"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.UserID == "" || req.IsSuperUser == nil {
		writeMessage(w, http.StatusBadRequest, "필수 정보가 누락되었습니다.")
		return
	}
	if err := s.cfg.Accounts.SetUnmetered(r.Context(), req.UserID, *req.IsSuperUser); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.cfg.Accounts.User(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg := "일반 계정으로 변경되었습니다."
	if u.Unmetered {
		msg = "슈퍼 계정으로 설정되었습니다."
	}
	s.logger.Info("unmetered flag changed", "user_id", u.ID, "unmetered", u.Unmetered)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": u, "message": msg})
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ok(styles.All()))
}
