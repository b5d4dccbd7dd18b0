package gorm

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: snapshot blobs
		{
			ID: "001_snapshot_blobs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&SnapshotBlob{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("snapshot_blobs")
			},
		},

		// Migration 002: dish inventory
		{
			ID: "002_dishes",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Dish{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("dishes")
			},
		},

		// Migration 003: GIN index for signal lookups
		{
			ID: "003_dishes_signals_gin",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_dishes_signals ON dishes USING GIN (signals)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS idx_dishes_signals").Error
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run gormigrate migrations: %w", err)
	}

	return nil
}
