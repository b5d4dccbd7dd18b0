package gorm

import (
	"database/sql/driver"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/thebtf/tastetrainer/pkg/models"
)

// Dish statuses.
const (
	DishStatusReady   = "ready"
	DishStatusRetired = "retired"
)

// SnapshotBlob is one persisted trainer snapshot.
type SnapshotBlob struct {
	UpdatedAt time.Time `gorm:"not null"`
	Key       string    `gorm:"primaryKey;type:text"`
	Data      []byte    `gorm:"type:bytea;not null"`
	SizeBytes int       `gorm:"not null;default:0"`
}

func (SnapshotBlob) TableName() string { return "snapshot_blobs" }

// Dish is an inventory row.
// Field order optimized for memory alignment.
type Dish struct {
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Signals      JSONSignals      `gorm:"type:jsonb;not null"`
	CategoryTags JSONCategoryTags `gorm:"type:jsonb"`
	Name         string           `gorm:"uniqueIndex;not null"`
	Subtitle     string           `gorm:"type:text"`
	ImageRef     string           `gorm:"type:text"`
	Status       string           `gorm:"type:text;check:status IN ('ready', 'retired');default:'ready';index;not null"`
	Source       string           `gorm:"type:text;index"`
	ID           int64            `gorm:"primaryKey;autoIncrement"`
}

func (Dish) TableName() string { return "dishes" }

// ToCandidate converts the row into a validated dish candidate.
func (d *Dish) ToCandidate() (models.DishCandidate, error) {
	return models.NewDishCandidate(d.Name, d.Subtitle, d.Signals, d.CategoryTags.CategoryTags, d.ImageRef)
}

// dishFromCandidate builds an inventory row for a candidate.
func dishFromCandidate(c models.DishCandidate, source string) *Dish {
	return &Dish{
		Name:         c.Name,
		Subtitle:     c.Subtitle,
		Signals:      JSONSignals(c.Signals),
		CategoryTags: JSONCategoryTags{CategoryTags: c.CategoryTags},
		ImageRef:     c.ImageRef,
		Status:       DishStatusReady,
		Source:       source,
	}
}

// JSONSignals is a feature signal map stored as JSON.
type JSONSignals map[models.FeatureID]float64

// Scan implements sql.Scanner.
func (j *JSONSignals) Scan(src any) error {
	data, err := scanBytes(src)
	if err != nil || data == nil {
		*j = nil
		return err
	}
	return json.Unmarshal(data, j)
}

// Value implements driver.Valuer.
func (j JSONSignals) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[models.FeatureID]float64(j))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// JSONCategoryTags stores optional category tags as JSON.
type JSONCategoryTags struct {
	*models.CategoryTags
}

// Scan implements sql.Scanner.
func (j *JSONCategoryTags) Scan(src any) error {
	data, err := scanBytes(src)
	if err != nil || data == nil {
		j.CategoryTags = nil
		return err
	}
	var tags models.CategoryTags
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	j.CategoryTags = &tags
	return nil
}

// Value implements driver.Valuer.
func (j JSONCategoryTags) Value() (driver.Value, error) {
	if j.CategoryTags == nil {
		return nil, nil
	}
	data, err := json.Marshal(j.CategoryTags)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func scanBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" || v == "null" {
			return nil, nil
		}
		return []byte(v), nil
	case []byte:
		if len(v) == 0 || string(v) == "null" {
			return nil, nil
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", src)
	}
}
