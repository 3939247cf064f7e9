package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/haivivi/giztalk/pkg/conversation"
)

func itemKey(conversationID string, seq int) []byte {
	return key("item", conversationID, fmt.Sprintf("%010d", seq))
}

func (s *Store) CreateConversation(_ context.Context, c *conversation.Conversation) error {
	return s.update(func(txn *badger.Txn) error {
		if err := put(txn, key("conv", c.ID), c); err != nil {
			return err
		}
		return txn.Set(key("convuser", c.UserID, c.ID), nil)
	})
}

func (s *Store) Conversation(_ context.Context, id string) (*conversation.Conversation, error) {
	var c conversation.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		return get(txn, key("conv", id), &c)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, conversation.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpdateConversation(_ context.Context, c *conversation.Conversation) error {
	err := s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key("conv", c.ID)); err != nil {
			return err
		}
		return put(txn, key("conv", c.ID), c)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return conversation.ErrNotFound
	}
	return err
}

func (s *Store) DeleteConversation(_ context.Context, id string) error {
	err := s.update(func(txn *badger.Txn) error {
		var c conversation.Conversation
		if err := get(txn, key("conv", id), &c); err != nil {
			return err
		}
		var keys [][]byte
		err := scan(txn, prefix("item", id), false, func(k []byte, _ *badger.Item) (bool, error) {
			keys = append(keys, k)
			return true, nil
		})
		if err != nil {
			return err
		}
		keys = append(keys, key("conv", id), key("convuser", c.UserID, id))
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return conversation.ErrNotFound
	}
	return err
}

func (s *Store) ListConversations(_ context.Context, userID string, status conversation.Status) ([]conversation.Conversation, error) {
	var out []conversation.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		p := prefix("convuser", userID)
		return scan(txn, p, false, func(k []byte, _ *badger.Item) (bool, error) {
			id := string(k[len(p):])
			var c conversation.Conversation
			if err := get(txn, key("conv", id), &c); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return true, nil
				}
				return false, err
			}
			if status == "" || c.Status == status {
				out = append(out, c)
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *Store) AppendItem(_ context.Context, it conversation.Item) (conversation.Item, error) {
	err := s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key("conv", it.ConversationID)); err != nil {
			return err
		}
		last := 0
		err := scan(txn, prefix("item", it.ConversationID), true, func(_ []byte, item *badger.Item) (bool, error) {
			var prev conversation.Item
			if err := item.Value(func(v []byte) error { return unmarshal(v, &prev) }); err != nil {
				return false, err
			}
			last = prev.Sequence
			return false, nil
		})
		if err != nil {
			return err
		}
		it.Sequence = last + 1
		return put(txn, itemKey(it.ConversationID, it.Sequence), &it)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return conversation.Item{}, conversation.ErrNotFound
	}
	if err != nil {
		return conversation.Item{}, err
	}
	return it, nil
}

func (s *Store) Items(_ context.Context, conversationID string) ([]conversation.Item, error) {
	var out []conversation.Item
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefix("item", conversationID), false, func(_ []byte, item *badger.Item) (bool, error) {
			var it conversation.Item
			if err := item.Value(func(v []byte) error { return unmarshal(v, &it) }); err != nil {
				return false, err
			}
			out = append(out, it)
			return true, nil
		})
	})
	return out, err
}
