package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/haivivi/giztalk/pkg/payments"
)

func (s *Store) CreatePayment(ctx context.Context, p *payments.Payment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payments (id, user_id, order_id, payment_key, amount, credits_added, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.UserID, p.OrderID, nullString(p.PaymentKey), p.Amount, p.CreditsAdded, string(p.Status), p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *Store) PaymentByOrder(ctx context.Context, orderID string) (*payments.Payment, error) {
	var p payments.Payment
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, order_id, COALESCE(payment_key, ''), amount, credits_added, status, created_at, updated_at
		FROM payments WHERE order_id = $1`, orderID).
		Scan(&p.ID, &p.UserID, &p.OrderID, &p.PaymentKey, &p.Amount, &p.CreditsAdded, &status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, payments.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Status = payments.Status(status)
	return &p, nil
}

func (s *Store) SetPaymentStatus(ctx context.Context, id string, status payments.Status, paymentKey string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2, payment_key = COALESCE($3, payment_key), updated_at = now()
		WHERE id = $1`, id, string(status), nullString(paymentKey))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return payments.ErrNotFound
	}
	return nil
}

func (s *Store) CompletePayment(ctx context.Context, id, paymentKey string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payments
		SET status = 'DONE', payment_key = COALESCE($2, payment_key), updated_at = now()
		WHERE id = $1 AND status <> 'DONE'`, id, nullString(paymentKey))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
