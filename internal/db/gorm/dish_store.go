package gorm

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm/clause"

	"github.com/thebtf/tastetrainer/pkg/models"
)

// DishStore is the persistent dish inventory. It satisfies the deck
// candidate source contract.
type DishStore struct {
	store *Store
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewDishStore creates an inventory on top of store.
func NewDishStore(store *Store) *DishStore {
	return &DishStore{
		store: store,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fetch returns up to count ready dishes whose names are not in avoid,
// in random order.
func (d *DishStore) Fetch(ctx context.Context, count int, avoid map[string]struct{}) ([]models.DishCandidate, error) {
	if count <= 0 {
		return nil, nil
	}

	ctx, cancel := d.store.WithTimeout(ctx, DefaultQueryTimeout, "dish_fetch")
	defer cancel()

	query := d.store.DB.WithContext(ctx).Where("status = ?", DishStatusReady)
	if len(avoid) > 0 {
		names := make([]string, 0, len(avoid))
		for name := range avoid {
			names = append(names, name)
		}
		query = query.Where("name NOT IN ?", names)
	}

	var rows []Dish
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch dishes: %w", err)
	}

	d.rngMu.Lock()
	d.rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
	d.rngMu.Unlock()

	out := make([]models.DishCandidate, 0, min(count, len(rows)))
	for i := range rows {
		if len(out) == count {
			break
		}
		c, err := rows[i].ToCandidate()
		if err != nil {
			log.Warn().Err(err).Str("dish", rows[i].Name).Msg("Skipping malformed inventory dish")
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Upsert stores dishes; names that already exist are left untouched.
// Returns the number of inserted rows.
func (d *DishStore) Upsert(ctx context.Context, dishes []models.DishCandidate, source string) (int64, error) {
	if len(dishes) == 0 {
		return 0, nil
	}

	ctx, cancel := d.store.WithTimeout(ctx, DefaultQueryTimeout, "dish_upsert")
	defer cancel()

	rows := make([]*Dish, 0, len(dishes))
	for _, c := range dishes {
		rows = append(rows, dishFromCandidate(c, source))
	}

	result := d.store.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&rows)
	if result.Error != nil {
		return 0, fmt.Errorf("upsert dishes: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Retire hides a dish from Fetch.
func (d *DishStore) Retire(ctx context.Context, name string) error {
	ctx, cancel := d.store.WithTimeout(ctx, DefaultQueryTimeout, "dish_retire")
	defer cancel()

	err := d.store.DB.WithContext(ctx).Model(&Dish{}).
		Where("name = ?", name).
		Update("status", DishStatusRetired).Error
	if err != nil {
		return fmt.Errorf("retire dish %s: %w", name, err)
	}
	return nil
}

// Count returns the number of ready dishes.
func (d *DishStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := d.store.DB.WithContext(ctx).Model(&Dish{}).Where("status = ?", DishStatusReady).Count(&n).Error
	return n, err
}
