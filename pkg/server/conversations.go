package server

import (
	"net/http"

	"github.com/haivivi/giztalk/pkg/account"
	"github.com/haivivi/giztalk/pkg/chat"
	"github.com/haivivi/giztalk/pkg/conversation"
)

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

func ok(data any) envelope {
	return envelope{Success: true, Data: data}
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request, user *account.User) {
	var req conversation.CreateRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	conv, err := s.cfg.Conversations.Create(r.Context(), user.ID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ok(conv))
}

type saveItemRequest struct {
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	Content        string `json:"content"`
}

func (s *Server) handleSaveItem(w http.ResponseWriter, r *http.Request, user *account.User) {
	var req saveItemRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	it, err := s.cfg.Conversations.AppendItem(r.Context(), user.ID, req.ConversationID, req.Role, req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ok(it))
}

type conversationRef struct {
	ConversationID string `json:"conversationId"`
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request, user *account.User) {
	var req conversationRef
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ConversationID == "" {
		writeMessage(w, http.StatusBadRequest, "대화 ID가 필요합니다.")
		return
	}
	conv, err := s.cfg.Conversations.Finalize(r.Context(), user.ID, req.ConversationID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok(conv))
}

func (s *Server) handleSaveConversation(w http.ResponseWriter, r *http.Request, user *account.User) {
	var req conversation.SaveRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Messages) == 0 {
		writeMessage(w, http.StatusBadRequest, "저장할 메시지가 없습니다.")
		return
	}
	id, n, err := s.cfg.Conversations.Save(r.Context(), user.ID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok(map[string]any{"conversationId": id, "itemsCount": n}))
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request, user *account.User) {
	list, err := s.cfg.Conversations.List(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []conversation.Conversation{}
	}
	writeJSON(w, http.StatusOK, ok(list))
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request, user *account.User) {
	conv, items, err := s.cfg.Conversations.Items(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []conversation.Item{}
	}
	writeJSON(w, http.StatusOK, ok(map[string]any{"conversation": conv, "items": items}))
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request, user *account.User) {
	var req struct {
		Title string `json:"title"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	conv, err := s.cfg.Conversations.Rename(r.Context(), user.ID, r.PathValue("id"), req.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok(conv))
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request, user *account.User) {
	if err := s.cfg.Conversations.Delete(r.Context(), user.ID, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok(nil))
}

type messagesRequest struct {
	Messages []conversation.Message `json:"messages"`
}

func (s *Server) handleSummarizeTitle(w http.ResponseWriter, r *http.Request, user *account.User) {
	if s.cfg.Chat == nil {
		writeMessage(w, http.StatusServiceUnavailable, "OpenAI API key not configured")
		return
	}
	var req messagesRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	title, err := s.cfg.Chat.Title(r.Context(), req.Messages)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "title": title})
}

func (s *Server) handleSummarizeConversation(w http.ResponseWriter, r *http.Request, user *account.User) {
	if s.cfg.Chat == nil {
		writeMessage(w, http.StatusServiceUnavailable, "OpenAI API key not configured")
		return
	}
	var req messagesRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.cfg.Chat.Summary(r.Context(), req.Messages)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "summary": summary})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, user *account.User) {
	if s.cfg.Chat == nil {
		writeMessage(w, http.StatusServiceUnavailable, "OpenAI API key not configured")
		return
	}
	var req chat.ReplyRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	reply, err := s.cfg.Chat.Reply(r.Context(), user.ID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*chat.Reply
	}{true, reply})
}
