package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/haivivi/giztalk/pkg/account"
	"github.com/haivivi/giztalk/pkg/credits"
)

type userRecord struct {
	ID        string          `msgpack:"id"`
	Email     string          `msgpack:"email"`
	Name      string          `msgpack:"name"`
	Unmetered bool            `msgpack:"unmetered"`
	Credits   float64         `msgpack:"credits"`
	Profile   account.Profile `msgpack:"profile"`
	CreatedAt time.Time       `msgpack:"created_at"`
}

func (r *userRecord) user() *account.User {
	return &account.User{ID: r.ID, Email: r.Email, Name: r.Name, Unmetered: r.Unmetered, CreatedAt: r.CreatedAt}
}

func (r *userRecord) account() credits.Account {
	return credits.Account{UserID: r.ID, Balance: r.Credits, Unmetered: r.Unmetered}
}

func getUser(txn *badger.Txn, id string) (*userRecord, error) {
	var r userRecord
	if err := get(txn, key("user", id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// modifyUser applies fn to the stored user record.
func (s *Store) modifyUser(id string, fn func(*userRecord) error) error {
	err := s.update(func(txn *badger.Txn) error {
		r, err := getUser(txn, id)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
		return put(txn, key("user", id), r)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return account.ErrNotFound
	}
	return err
}

func (s *Store) EnsureUser(_ context.Context, u account.User) error {
	if u.ID == "" {
		return errors.New("badgerstore: user id is required")
	}
	return s.update(func(txn *badger.Txn) error {
		_, err := txn.Get(key("user", u.ID))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		created := u.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		return put(txn, key("user", u.ID), &userRecord{
			ID:        u.ID,
			Email:     u.Email,
			Name:      u.Name,
			Unmetered: u.Unmetered,
			CreatedAt: created,
		})
	})
}

func (s *Store) User(_ context.Context, id string) (*account.User, error) {
	var r *userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		r, err = getUser(txn, id)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.user(), nil
}

func (s *Store) Profile(ctx context.Context, userID string) (account.Profile, error) {
	var r *userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		r, err = getUser(txn, userID)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return account.Profile{}, account.ErrNotFound
	}
	if err != nil {
		return account.Profile{}, err
	}
	return r.Profile, nil
}

func (s *Store) UpdateProfile(_ context.Context, userID string, p account.Profile) error {
	return s.modifyUser(userID, func(r *userRecord) error {
		r.Profile = p
		return nil
	})
}

func (s *Store) SetUnmetered(_ context.Context, userID string, unmetered bool) error {
	return s.modifyUser(userID, func(r *userRecord) error {
		r.Unmetered = unmetered
		return nil
	})
}

// ApplyTransaction implements credits.Store.
func (s *Store) ApplyTransaction(_ context.Context, tx credits.Transaction, guard credits.Guard) (credits.Account, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	var out credits.Account
	err := s.update(func(txn *badger.Txn) error {
		r, err := getUser(txn, tx.UserID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(r.account()); err != nil {
				if errors.Is(err, credits.ErrSkip) {
					out = r.account()
					return nil
				}
				return err
			}
		}
		r.Credits += tx.Amount
		if err := put(txn, key("user", r.ID), r); err != nil {
			return err
		}
		if err := put(txn, txKey(tx), &tx); err != nil {
			return err
		}
		out = r.account()
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return credits.Account{}, credits.ErrUserNotFound
	}
	if err != nil {
		return credits.Account{}, err
	}
	return out, nil
}

func txKey(tx credits.Transaction) []byte {
	return key("tx", tx.UserID, fmt.Sprintf("%020d", tx.CreatedAt.UnixNano()), tx.ID)
}

func (s *Store) Account(_ context.Context, userID string) (credits.Account, error) {
	var out credits.Account
	err := s.db.View(func(txn *badger.Txn) error {
		r, err := getUser(txn, userID)
		if err != nil {
			return err
		}
		out = r.account()
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return credits.Account{}, credits.ErrUserNotFound
	}
	return out, err
}

func (s *Store) Transactions(_ context.Context, userID string, limit, offset int) ([]credits.Transaction, int, error) {
	out := []credits.Transaction{}
	total := 0
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefix("tx", userID), true, func(_ []byte, item *badger.Item) (bool, error) {
			total++
			if total <= offset || len(out) >= limit {
				return true, nil
			}
			var tx credits.Transaction
			if err := item.Value(func(v []byte) error { return unmarshal(v, &tx) }); err != nil {
				return false, err
			}
			out = append(out, tx)
			return true, nil
		})
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
