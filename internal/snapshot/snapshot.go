// Package snapshot persists the full trainer state as a single blob.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tastetrainer/internal/scoring"
	"github.com/thebtf/tastetrainer/pkg/models"
)

// CurrentVersion is the envelope version written by Encode.
const CurrentVersion = 1

// DefaultKey is the blob key used when none is configured.
const DefaultKey = "taste_training_snapshot_v1"

// ErrNotFound is returned by a BlobStore when the key has no value.
var ErrNotFound = errors.New("snapshot not found")

// ErrIncompatible is returned by Decode for blobs from an unknown version.
var ErrIncompatible = errors.New("incompatible snapshot version")

// Snapshot is the unit of persistence.
type Snapshot struct {
	Version        int                         `json:"version"`
	Profile        *scoring.Profile            `json:"profile"`
	Deck           []models.DishCandidate      `json:"deck"`
	History        []models.SwipeEvent         `json:"history"`
	LatestAnalysis *models.TasteAnalysisResult `json:"latest_analysis,omitempty"`
	SavedAt        time.Time                   `json:"saved_at"`
}

// BlobStore is a key-value store for opaque blobs.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Encode serializes a snapshot.
func Encode(s *Snapshot) ([]byte, error) {
	out := *s
	out.Version = CurrentVersion
	if out.Profile == nil {
		out.Profile = scoring.NewProfile()
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a blob written by Encode. Deck entries that no longer pass
// ingestion rules are dropped.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrIncompatible, s.Version)
	}
	if s.Profile == nil {
		s.Profile = scoring.NewProfile()
	}
	deck := s.Deck[:0]
	for _, d := range s.Deck {
		if d.Name != "" && len(d.Signals) >= models.MinSignals {
			deck = append(deck, d)
		}
	}
	s.Deck = deck
	return &s, nil
}

// Repository loads and saves snapshots through a BlobStore.
type Repository struct {
	store  BlobStore
	key    string
	logger zerolog.Logger
}

// NewRepository creates a repository storing under key.
func NewRepository(store BlobStore, key string) *Repository {
	if key == "" {
		key = DefaultKey
	}
	return &Repository{
		store:  store,
		key:    key,
		logger: log.With().Str("component", "snapshot").Str("key", key).Logger(),
	}
}

// Load returns the stored snapshot, or nil when there is none or it cannot
// be decoded. Decode failures are logged and treated as a cold start.
func (r *Repository) Load(ctx context.Context) *Snapshot {
	data, err := r.store.Get(ctx, r.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn().Err(err).Msg("Failed to read snapshot, starting cold")
		}
		return nil
	}
	s, err := Decode(data)
	if err != nil {
		r.logger.Warn().Err(err).Int("bytes", len(data)).Msg("Discarding unreadable snapshot")
		return nil
	}
	return s
}

// Save writes the snapshot. The write is all-or-nothing.
func (r *Repository) Save(ctx context.Context, s *Snapshot) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, r.key, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Clear removes the stored snapshot. A missing snapshot is not an error.
func (r *Repository) Clear(ctx context.Context) error {
	if err := r.store.Delete(ctx, r.key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
