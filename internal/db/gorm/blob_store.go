package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/tastetrainer/internal/snapshot"
)

// BlobStore implements snapshot.BlobStore on the snapshot_blobs table.
type BlobStore struct {
	store *Store
}

// NewBlobStore creates a blob store on top of store.
func NewBlobStore(store *Store) *BlobStore {
	return &BlobStore{store: store}
}

// Get returns the blob stored under key.
func (b *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := b.store.WithTimeout(ctx, DefaultQueryTimeout, "snapshot_get")
	defer cancel()

	var row SnapshotBlob
	err := b.store.DB.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, snapshot.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", key, err)
	}
	return row.Data, nil
}

// Put upserts the blob under key.
func (b *BlobStore) Put(ctx context.Context, key string, data []byte) error {
	ctx, cancel := b.store.WithTimeout(ctx, DefaultQueryTimeout, "snapshot_put")
	defer cancel()

	row := SnapshotBlob{Key: key, Data: data, SizeBytes: len(data), UpdatedAt: time.Now().UTC()}
	err := b.store.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "size_bytes", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (b *BlobStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := b.store.WithTimeout(ctx, DefaultQueryTimeout, "snapshot_delete")
	defer cancel()

	if err := b.store.DB.WithContext(ctx).Where("key = ?", key).Delete(&SnapshotBlob{}).Error; err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	return nil
}
