package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/haivivi/giztalk/pkg/account"
	"github.com/haivivi/giztalk/pkg/credits"
)

func (s *Store) EnsureUser(ctx context.Context, u account.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, is_super_user)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		u.ID, u.Email, u.Name, u.Unmetered)
	return err
}

func (s *Store) User(ctx context.Context, id string) (*account.User, error) {
	var u account.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, name, is_super_user, created_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.Unmetered, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) Profile(ctx context.Context, userID string) (account.Profile, error) {
	var p account.Profile
	err := s.pool.QueryRow(ctx, `
		SELECT age, COALESCE(gender, ''), COALESCE(personality, ''),
		       COALESCE(occupation, ''), COALESCE(characteristics, '')
		FROM users WHERE id = $1`, userID).
		Scan(&p.Age, &p.Gender, &p.Personality, &p.Occupation, &p.Characteristics)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.Profile{}, account.ErrNotFound
	}
	return p, err
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, p account.Profile) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET age = $2, gender = $3, personality = $4, occupation = $5, characteristics = $6
		WHERE id = $1`,
		userID, p.Age, nullString(p.Gender), nullString(p.Personality),
		nullString(p.Occupation), nullString(p.Characteristics))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (s *Store) SetUnmetered(ctx context.Context, userID string, unmetered bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET is_super_user = $2 WHERE id = $1`, userID, unmetered)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

// ApplyTransaction implements credits.Store. The user row is locked for the
// duration of the check and the update.
func (s *Store) ApplyTransaction(ctx context.Context, t credits.Transaction, guard credits.Guard) (credits.Account, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	var out credits.Account
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		acc := credits.Account{UserID: t.UserID}
		err := tx.QueryRow(ctx, `SELECT credits, is_super_user FROM users WHERE id = $1 FOR UPDATE`, t.UserID).
			Scan(&acc.Balance, &acc.Unmetered)
		if errors.Is(err, pgx.ErrNoRows) {
			return credits.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(acc); err != nil {
				if errors.Is(err, credits.ErrSkip) {
					out = acc
					return nil
				}
				return err
			}
		}
		if err := tx.QueryRow(ctx, `UPDATE users SET credits = credits + $2 WHERE id = $1 RETURNING credits`,
			t.UserID, t.Amount).Scan(&acc.Balance); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO credit_transactions
				(id, user_id, conversation_id, payment_id, amount, type,
				 message_count, duration_seconds, tokens_used, description, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			t.ID, t.UserID, nullString(t.ConversationID), nullString(t.PaymentID), t.Amount, string(t.Type),
			t.MessageCount, t.DurationSeconds, t.TokensUsed, t.Description, t.CreatedAt); err != nil {
			return err
		}
		out = acc
		return nil
	})
	if err != nil {
		return credits.Account{}, err
	}
	return out, nil
}

func (s *Store) Account(ctx context.Context, userID string) (credits.Account, error) {
	acc := credits.Account{UserID: userID}
	err := s.pool.QueryRow(ctx, `SELECT credits, is_super_user FROM users WHERE id = $1`, userID).
		Scan(&acc.Balance, &acc.Unmetered)
	if errors.Is(err, pgx.ErrNoRows) {
		return credits.Account{}, credits.ErrUserNotFound
	}
	return acc, err
}

func (s *Store) Transactions(ctx context.Context, userID string, limit, offset int) ([]credits.Transaction, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM credit_transactions WHERE user_id = $1`, userID).
		Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, COALESCE(conversation_id, ''), COALESCE(payment_id, ''), amount, type,
		       message_count, duration_seconds, tokens_used, description, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (credits.Transaction, error) {
		var t credits.Transaction
		var typ string
		err := row.Scan(&t.ID, &t.UserID, &t.ConversationID, &t.PaymentID, &t.Amount, &typ,
			&t.MessageCount, &t.DurationSeconds, &t.TokensUsed, &t.Description, &t.CreatedAt)
		t.Type = credits.Type(typ)
		return t, err
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
