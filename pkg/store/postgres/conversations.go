package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/haivivi/giztalk/pkg/conversation"
)

const conversationColumns = `id, user_id, session_id, COALESCE(title, ''), status, started_at, ended_at, created_at`

func scanConversation(row pgx.Row) (*conversation.Conversation, error) {
	var c conversation.Conversation
	var status string
	if err := row.Scan(&c.ID, &c.UserID, &c.SessionID, &c.Title, &status, &c.StartedAt, &c.EndedAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Status = conversation.Status(status)
	return &c, nil
}

func (s *Store) CreateConversation(ctx context.Context, c *conversation.Conversation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, user_id, session_id, title, status, started_at, ended_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.UserID, c.SessionID, nullString(c.Title), string(c.Status), c.StartedAt, c.EndedAt, c.CreatedAt)
	return err
}

func (s *Store) Conversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	c, err := scanConversation(s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, conversation.ErrNotFound
	}
	return c, err
}

func (s *Store) UpdateConversation(ctx context.Context, c *conversation.Conversation) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET title = $2, status = $3, ended_at = $4
		WHERE id = $1`,
		c.ID, nullString(c.Title), string(c.Status), c.EndedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return conversation.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return conversation.ErrNotFound
	}
	return nil
}

func (s *Store) ListConversations(ctx context.Context, userID string, status conversation.Status) ([]conversation.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE user_id = $1 AND ($2::text = '' OR status = $2::text)
		ORDER BY started_at DESC`, userID, string(status))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (conversation.Conversation, error) {
		c, err := scanConversation(row)
		if err != nil {
			return conversation.Conversation{}, err
		}
		return *c, nil
	})
}

// AppendItem locks the conversation row so concurrent appends get
// consecutive sequence numbers.
func (s *Store) AppendItem(ctx context.Context, it conversation.Item) (conversation.Item, error) {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, it.ConversationID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return conversation.ErrNotFound
		}
		if err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO conversation_items (id, conversation_id, sequence_number, role, content, created_at)
			SELECT $1::text, $2::text, COALESCE(MAX(sequence_number), 0) + 1, $3::text, $4::text, $5::timestamptz
			FROM conversation_items WHERE conversation_id = $2::text
			RETURNING sequence_number`,
			it.ID, it.ConversationID, it.Role, it.Content, it.CreatedAt).Scan(&it.Sequence)
	})
	if err != nil {
		return conversation.Item{}, err
	}
	return it, nil
}

func (s *Store) Items(ctx context.Context, conversationID string) ([]conversation.Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sequence_number, role, content, created_at
		FROM conversation_items
		WHERE conversation_id = $1
		ORDER BY sequence_number`, conversationID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[conversation.Item])
}
