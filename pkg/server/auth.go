package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/haivivi/giztalk/pkg/account"
)

type authedHandler func(w http.ResponseWriter, r *http.Request, user *account.User)

// authed resolves the session cookie to a stored user, creating the row on
// first sight, or answers 401.
func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(account.SessionCookie)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "인증이 필요합니다.")
			return
		}
		u, err := account.DecodeSession(c.Value)
		if err != nil {
			http.SetCookie(w, &http.Cookie{Name: account.SessionCookie, Path: "/", MaxAge: -1})
			writeMessage(w, http.StatusUnauthorized, "인증이 필요합니다.")
			return
		}
		if err := s.cfg.Accounts.EnsureUser(r.Context(), u); err != nil {
			s.writeError(w, r, err)
			return
		}
		user, err := s.cfg.Accounts.User(r.Context(), u.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		h(w, r, user)
	}
}

func (s *Server) admin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken != "" {
			got := r.Header.Get("X-Admin-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AdminToken)) != 1 {
				writeMessage(w, http.StatusForbidden, "권한이 없습니다.")
				return
			}
		}
		h(w, r)
	}
}
