// Package badger provides an embedded BadgerDB snapshot blob store.
package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/thebtf/tastetrainer/internal/snapshot"
)

const keyPrefix = "snapshot:"

// ErrClosed is returned by Ping after the database was closed.
var ErrClosed = errors.New("badger store is closed")

// Store implements snapshot.BlobStore on BadgerDB.
type Store struct {
	db     *badger.DB
	closer bool
}

// Open opens (or creates) a database in dir. An empty dir opens an
// in-memory database.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, closer: true}, nil
}

// New wraps an existing database. Close leaves db open.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

// Get returns the blob stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return snapshot.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get snapshot: %w", err)
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Put stores data under key.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keyPrefix+key), data); err != nil {
			return fmt.Errorf("set snapshot: %w", err)
		}
		return nil
	})
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
}

// Ping reports whether the database is still open.
func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Close closes the database if it was opened by Open.
func (s *Store) Close() error {
	if !s.closer {
		return nil
	}
	return s.db.Close()
}
