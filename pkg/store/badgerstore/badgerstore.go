// Package badgerstore implements the account, credits, conversation and
// payments stores on an embedded BadgerDB, with msgpack-encoded values.
// It backs local development and tests; production uses Postgres.
//
// Key layout:
//
//	user:{id}                      userRecord
//	conv:{id}                      conversation.Conversation
//	convuser:{user}:{id}           index, empty value
//	item:{conv}:{seq:010d}         conversation.Item
//	tx:{user}:{unixnano:020d}:{id} credits.Transaction
//	pay:{id}                       payments.Payment
//	payorder:{order}               payment id
package badgerstore

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const maxConflictRetries = 100

// Options configures the store.
type Options struct {
	// Dir is the directory for data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	Logger *slog.Logger
}

// Store is the BadgerDB store.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (or creates) the database.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badgerstore: Dir is required for on-disk mode")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{logger})
	if opts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying on conflicts with
// concurrent transactions.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func key(parts ...string) []byte {
	return []byte(strings.Join(parts, ":"))
}

func prefix(parts ...string) []byte {
	return []byte(strings.Join(parts, ":") + ":")
}

// get decodes the value at k into v. It returns badger.ErrKeyNotFound for
// missing keys.
func get(txn *badger.Txn, k []byte, v any) error {
	item, err := txn.Get(k)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return unmarshal(val, v)
	})
}

func unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func put(txn *badger.Txn, k []byte, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(k, data)
}

// scan calls fn with the value of every key under p, in key order, or
// reverse key order when reverse is set. fn returns false to stop.
func scan(txn *badger.Txn, p []byte, reverse bool, fn func(k []byte, item *badger.Item) (bool, error)) error {
	iopts := badger.DefaultIteratorOptions
	iopts.Prefix = p
	iopts.Reverse = reverse
	it := txn.NewIterator(iopts)
	defer it.Close()

	seek := p
	if reverse {
		// Seek past the last key carrying the prefix.
		seek = append(append([]byte{}, p...), 0xff)
	}
	for it.Seek(seek); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		ok, err := fn(item.KeyCopy(nil), item)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

// badgerLogger routes badger's warnings and errors to slog and drops the
// rest.
type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) Errorf(f string, v ...any) {
	b.l.Error(strings.TrimSpace(fmt.Sprintf(f, v...)), "component", "badger")
}

func (b badgerLogger) Warningf(f string, v ...any) {
	b.l.Warn(strings.TrimSpace(fmt.Sprintf(f, v...)), "component", "badger")
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
