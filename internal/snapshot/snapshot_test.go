package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/tastetrainer/internal/scoring"
	"github.com/thebtf/tastetrainer/pkg/models"
)

func sampleSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	dish, err := models.NewDishCandidate("Mapo Tofu", "Sichuan classic",
		map[models.FeatureID]float64{models.FeatureSpicy: 0.92, models.FeatureTofu: 0.82},
		&models.CategoryTags{Cuisine: []string{"Sichuan"}}, "")
	require.NoError(t, err)
	other, err := models.NewDishCandidate("Tom Yum", "",
		map[models.FeatureID]float64{models.FeatureSour: 0.92, models.FeatureSeafood: 0.62}, nil, "")
	require.NoError(t, err)

	event := models.NewSwipeEvent(dish, models.ActionLike, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	profile := scoring.NewProfile()
	profile.Apply(event)

	return &Snapshot{
		Profile: profile,
		Deck:    []models.DishCandidate{other},
		History: []models.SwipeEvent{event},
		LatestAnalysis: &models.TasteAnalysisResult{
			Summary: "Loves heat", Avoid: "Bland food", Strategy: "Order Sichuan", Source: "remote",
		},
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	in := sampleSnapshot(t)

	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, CurrentVersion, out.Version)
	assert.Equal(t, in.Profile, out.Profile)
	assert.Equal(t, in.Deck, out.Deck)
	require.Len(t, out.History, 1)
	assert.Equal(t, in.History[0].ID, out.History[0].ID)
	assert.Equal(t, in.History[0].Dish, out.History[0].Dish)
	assert.True(t, in.History[0].CreatedAt.Equal(out.History[0].CreatedAt))
	assert.Equal(t, in.LatestAnalysis, out.LatestAnalysis)
}

func TestCodec_DecodeFailures(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"version":99,"profile":{}}`))
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestCodec_DropsMalformedDeckEntries(t *testing.T) {
	data := []byte(`{"version":1,"deck":[{"name":"ok","signals":{"spicy":0.5,"rice":0.5}},{"name":"thin","signals":{"spicy":0.5}}]}`)
	s, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, s.Deck, 1)
	assert.Equal(t, "ok", s.Deck[0].Name)
	assert.NotNil(t, s.Profile)
}

func TestRepository_LoadSaveClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	repo := NewRepository(store, "")

	assert.Nil(t, repo.Load(ctx))

	require.NoError(t, repo.Save(ctx, sampleSnapshot(t)))
	loaded := repo.Load(ctx)
	require.NotNil(t, loaded)
	assert.Equal(t, 1, loaded.Profile.TotalSwipes)

	require.NoError(t, repo.Clear(ctx))
	assert.Nil(t, repo.Load(ctx))
	require.NoError(t, repo.Clear(ctx))
}

func TestRepository_CorruptBlobIsColdStart(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, DefaultKey, []byte("garbage")))

	assert.Nil(t, NewRepository(store, DefaultKey).Load(ctx))
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("io") }
func (failingStore) Put(context.Context, string, []byte) error  { return errors.New("disk full") }
func (failingStore) Delete(context.Context, string) error       { return errors.New("io") }

func TestRepository_StoreErrors(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(failingStore{}, "k")

	assert.Nil(t, repo.Load(ctx))
	assert.ErrorContains(t, repo.Save(ctx, sampleSnapshot(t)), "disk full")
	assert.Error(t, repo.Clear(ctx))
}
