package badgerstore

import (
	"context"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/haivivi/giztalk/pkg/payments"
)

func (s *Store) CreatePayment(_ context.Context, p *payments.Payment) error {
	return s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key("payorder", p.OrderID)); err == nil {
			return errors.New("badgerstore: duplicate order id")
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := put(txn, key("pay", p.ID), p); err != nil {
			return err
		}
		return txn.Set(key("payorder", p.OrderID), []byte(p.ID))
	})
}

func (s *Store) PaymentByOrder(_ context.Context, orderID string) (*payments.Payment, error) {
	var p payments.Payment
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key("payorder", orderID))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return get(txn, key("pay", string(id)), &p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, payments.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// modifyPayment applies fn to the stored payment; fn returning false
// leaves it unchanged.
func (s *Store) modifyPayment(id string, fn func(*payments.Payment) bool) (bool, error) {
	changed := false
	err := s.update(func(txn *badger.Txn) error {
		changed = false
		var p payments.Payment
		if err := get(txn, key("pay", id), &p); err != nil {
			return err
		}
		if !fn(&p) {
			return nil
		}
		p.UpdatedAt = time.Now()
		changed = true
		return put(txn, key("pay", id), &p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, payments.ErrNotFound
	}
	return changed, err
}

func (s *Store) SetPaymentStatus(_ context.Context, id string, status payments.Status, paymentKey string) error {
	_, err := s.modifyPayment(id, func(p *payments.Payment) bool {
		p.Status = status
		if paymentKey != "" {
			p.PaymentKey = paymentKey
		}
		return true
	})
	return err
}

func (s *Store) CompletePayment(_ context.Context, id, paymentKey string) (bool, error) {
	return s.modifyPayment(id, func(p *payments.Payment) bool {
		if p.Status == payments.StatusDone {
			return false
		}
		p.Status = payments.StatusDone
		if paymentKey != "" {
			p.PaymentKey = paymentKey
		}
		return true
	})
}
