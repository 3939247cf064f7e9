// Package conversation persists conversations and their ordered items
// (turns).
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown conversations and for
	// conversations owned by another user.
	ErrNotFound = errors.New("conversation: not found")

	// ErrInvalidItem is returned when an item lacks a role or content.
	ErrInvalidItem = errors.New("conversation: role and content are required")
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Item roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is one voice or text session of a user.
type Conversation struct {
	ID        string     `json:"id" msgpack:"id"`
	UserID    string     `json:"user_id" msgpack:"user_id"`
	SessionID string     `json:"session_id" msgpack:"session_id"`
	Title     string     `json:"title,omitempty" msgpack:"title"`
	Status    Status     `json:"status" msgpack:"status"`
	StartedAt time.Time  `json:"started_at" msgpack:"started_at"`
	EndedAt   *time.Time `json:"ended_at" msgpack:"ended_at"`
	CreatedAt time.Time  `json:"created_at" msgpack:"created_at"`
}

// Item is one persisted turn. Sequence numbers start at 1 and are gap-free
// per conversation; the Store assigns them.
type Item struct {
	ID             string    `json:"id" msgpack:"id"`
	ConversationID string    `json:"conversation_id" msgpack:"conversation_id"`
	Sequence       int       `json:"sequence_number" msgpack:"sequence_number"`
	Role           string    `json:"role" msgpack:"role"`
	Content        string    `json:"content" msgpack:"content"`
	CreatedAt      time.Time `json:"created_at" msgpack:"created_at"`
}

// Store persists conversations and items.
type Store interface {
	CreateConversation(ctx context.Context, c *Conversation) error

	// Conversation returns ErrNotFound for unknown ids.
	Conversation(ctx context.Context, id string) (*Conversation, error)
	UpdateConversation(ctx context.Context, c *Conversation) error

	// DeleteConversation removes the conversation and its items.
	DeleteConversation(ctx context.Context, id string) error

	// ListConversations returns the user's conversations with the given
	// status (all when empty), most recently started first.
	ListConversations(ctx context.Context, userID string, status Status) ([]Conversation, error)

	// AppendItem assigns it.Sequence as the last sequence plus one and
	// stores the item, atomically.
	AppendItem(ctx context.Context, it Item) (Item, error)

	// Items returns the items of a conversation in sequence order.
	Items(ctx context.Context, conversationID string) ([]Item, error)
}

// Message is a role and content pair used by bulk saves.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CreateRequest describes a new conversation. A random session id is used
// when SessionID is empty.
type CreateRequest struct {
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
}

// SaveRequest saves a finished text conversation in one call. A new
// completed conversation is created when ConversationID is empty.
type SaveRequest struct {
	ConversationID string    `json:"conversationId"`
	Title          string    `json:"title"`
	Messages       []Message `json:"messages"`
}

// Service implements the conversation operations on top of a Store.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService returns a service over store.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Create starts an active conversation for userID.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*Conversation, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	now := s.now()
	c := &Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: req.SessionID,
		Title:     strings.TrimSpace(req.Title),
		Status:    StatusActive,
		StartedAt: now,
		CreatedAt: now,
	}
	if err := s.store.CreateConversation(ctx, c); err != nil {
		return nil, fmt.Errorf("conversation: create: %w", err)
	}
	s.logger.Debug("conversation created", "id", c.ID, "user_id", userID)
	return c, nil
}

// Get returns the user's conversation.
func (s *Service) Get(ctx context.Context, userID, id string) (*Conversation, error) {
	c, err := s.store.Conversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrNotFound
	}
	return c, nil
}

// AppendItem appends a turn to the user's conversation.
func (s *Service) AppendItem(ctx context.Context, userID, conversationID, role, content string) (Item, error) {
	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return Item{}, err
	}
	return s.appendItem(ctx, conversationID, role, content)
}

// AppendTurn appends a turn without an ownership check, for in-process
// callers that created the conversation themselves.
func (s *Service) AppendTurn(ctx context.Context, conversationID, role, content string) error {
	_, err := s.appendItem(ctx, conversationID, role, content)
	return err
}

func (s *Service) appendItem(ctx context.Context, conversationID, role, content string) (Item, error) {
	if role != RoleUser && role != RoleAssistant {
		return Item{}, fmt.Errorf("%w: role %q", ErrInvalidItem, role)
	}
	if strings.TrimSpace(content) == "" || conversationID == "" {
		return Item{}, ErrInvalidItem
	}
	it, err := s.store.AppendItem(ctx, Item{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return Item{}, fmt.Errorf("conversation: append item: %w", err)
	}
	return it, nil
}

// Items returns the user's conversation with its items in sequence order.
func (s *Service) Items(ctx context.Context, userID, id string) (*Conversation, []Item, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.store.Items(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("conversation: items: %w", err)
	}
	if items == nil {
		items = []Item{}
	}
	return c, items, nil
}

// Finalize marks the conversation completed.
func (s *Service) Finalize(ctx context.Context, userID, id string) (*Conversation, error) {
	return s.update(ctx, userID, id, func(c *Conversation) {
		now := s.now()
		c.Status = StatusCompleted
		c.EndedAt = &now
	})
}

// Rename sets the title.
func (s *Service) Rename(ctx context.Context, userID, id, title string) (*Conversation, error) {
	title = strings.TrimSpace(title)
	return s.update(ctx, userID, id, func(c *Conversation) {
		c.Title = title
	})
}

func (s *Service) update(ctx context.Context, userID, id string, fn func(*Conversation)) (*Conversation, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	fn(c)
	if err := s.store.UpdateConversation(ctx, c); err != nil {
		return nil, fmt.Errorf("conversation: update: %w", err)
	}
	return c, nil
}

// List returns the user's completed conversations, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Conversation, error) {
	list, err := s.store.ListConversations(ctx, userID, StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("conversation: list: %w", err)
	}
	if list == nil {
		list = []Conversation{}
	}
	return list, nil
}

// Delete removes the user's conversation and its items.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("conversation: delete: %w", err)
	}
	s.logger.Info("conversation deleted", "id", id, "user_id", userID)
	return nil
}

// Save stores a whole text conversation and marks it completed. It returns
// the conversation id and the number of items written.
func (s *Service) Save(ctx context.Context, userID string, req SaveRequest) (string, int, error) {
	if len(req.Messages) == 0 {
		return "", 0, ErrInvalidItem
	}
	var c *Conversation
	if req.ConversationID == "" {
		now := s.now()
		title := strings.TrimSpace(req.Title)
		if title == "" {
			title = "대화 " + now.Format("2006. 1. 2. 15:04")
		}
		c = &Conversation{
			ID:        uuid.NewString(),
			UserID:    userID,
			SessionID: uuid.NewString(),
			Title:     title,
			Status:    StatusCompleted,
			StartedAt: now,
			EndedAt:   &now,
			CreatedAt: now,
		}
		if err := s.store.CreateConversation(ctx, c); err != nil {
			return "", 0, fmt.Errorf("conversation: create: %w", err)
		}
	} else {
		var err error
		c, err = s.update(ctx, userID, req.ConversationID, func(c *Conversation) {
			now := s.now()
			c.Status = StatusCompleted
			c.EndedAt = &now
			if t := strings.TrimSpace(req.Title); t != "" {
				c.Title = t
			}
		})
		if err != nil {
			return "", 0, err
		}
	}

	n := 0
	for _, m := range req.Messages {
		if _, err := s.appendItem(ctx, c.ID, m.Role, m.Content); err != nil {
			if errors.Is(err, ErrInvalidItem) {
				s.logger.Warn("skipping invalid message", "conversation_id", c.ID, "role", m.Role)
				continue
			}
			return c.ID, n, err
		}
		n++
	}
	return c.ID, n, nil
}
