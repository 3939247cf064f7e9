// Package server is the giztalk HTTP API: realtime credentials, text chat,
// conversations, credits, payments, profiles and the status stream.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/haivivi/giztalk/pkg/account"
	"github.com/haivivi/giztalk/pkg/chat"
	"github.com/haivivi/giztalk/pkg/conversation"
	"github.com/haivivi/giztalk/pkg/credits"
	openairealtime "github.com/haivivi/giztalk/pkg/openai-realtime"
	"github.com/haivivi/giztalk/pkg/payments"
)

const shutdownTimeout = 10 * time.Second

// SecretIssuer mints realtime client secrets. *openairealtime.Client
// satisfies it.
type SecretIssuer interface {
	CreateClientSecret(ctx context.Context, config *openairealtime.SessionConfig) (*openairealtime.ClientSecret, error)
}

// Config wires the server to its services. Accounts, Ledger and
// Conversations are required; a nil optional service answers 503 on its
// routes.
type Config struct {
	Accounts      account.Store
	Ledger        *credits.Ledger
	Conversations *conversation.Service

	Realtime SecretIssuer
	Chat     *chat.Service
	Payments *payments.Service

	// AdminToken guards the admin routes through the X-Admin-Token header.
	// Empty leaves them open.
	AdminToken string

	Logger *slog.Logger
}

// Server serves the HTTP API.
type Server struct {
	cfg    Config
	mux    *http.ServeMux
	logger *slog.Logger
}

// New returns a server with all routes registered.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, mux: http.NewServeMux(), logger: logger}
	s.routes()
	return s
}

func (s *Server) routes() {
	m := s.mux

	m.HandleFunc("POST /api/realtime", s.authed(s.handleRealtimeSecret))
	m.HandleFunc("POST /api/realtime/usage", s.authed(s.handleRealtimeUsage))
	m.HandleFunc("POST /api/chat", s.authed(s.handleChat))

	m.HandleFunc("POST /api/conversations/create", s.authed(s.handleCreateConversation))
	m.HandleFunc("POST /api/conversations/save-item", s.authed(s.handleSaveItem))
	m.HandleFunc("POST /api/conversations/finalize", s.authed(s.handleFinalize))
	m.HandleFunc("POST /api/conversations/save", s.authed(s.handleSaveConversation))
	m.HandleFunc("POST /api/conversations/summarize-title", s.authed(s.handleSummarizeTitle))
	m.HandleFunc("POST /api/conversations/summarize-conversation", s.authed(s.handleSummarizeConversation))
	m.HandleFunc("GET /api/conversations/user", s.authed(s.handleListConversations))
	m.HandleFunc("GET /api/conversations/{id}", s.authed(s.handleGetConversation))
	m.HandleFunc("PATCH /api/conversations/{id}", s.authed(s.handleRenameConversation))
	m.HandleFunc("DELETE /api/conversations/{id}", s.authed(s.handleDeleteConversation))
	m.HandleFunc("GET /api/conversations/{id}/items", s.authed(s.handleGetConversation))

	m.HandleFunc("GET /api/credits/balance", s.authed(s.handleBalance))
	m.HandleFunc("GET /api/credits/history", s.authed(s.handleHistory))

	m.HandleFunc("POST /api/payments/create", s.authed(s.handleCreatePayment))
	m.HandleFunc("POST /api/payments/confirm", s.authed(s.handleConfirmPayment))
	m.HandleFunc("POST /api/payments/webhook", s.handleWebhook)

	m.HandleFunc("GET /api/user/profile", s.authed(s.handleGetProfile))
	m.HandleFunc("PATCH /api/user/profile", s.authed(s.handleUpdateProfile))
	m.HandleFunc("POST /api/admin/toggle-super-user", s.admin(s.handleToggleUnmetered))

	m.HandleFunc("GET /api/styles", s.handleStyles)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
