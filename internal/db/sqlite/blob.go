package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thebtf/tastetrainer/internal/snapshot"
)

// Get returns the blob stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.queryRowContext(ctx, "SELECT data FROM snapshots WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, snapshot.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", key, err)
	}
	return data, nil
}

// Put stores data under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.execContext(ctx, `
		INSERT INTO snapshots (key, data, updated_at, size_bytes) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at, size_bytes = excluded.size_bytes
	`, key, data, time.Now().UTC().Format(time.RFC3339), len(data))
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.execContext(ctx, "DELETE FROM snapshots WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	return nil
}
