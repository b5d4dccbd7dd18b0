package candidates

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/thebtf/tastetrainer/pkg/models"
)

//go:embed catalog.yaml
var builtinCatalog []byte

type catalogFile struct {
	Dishes []RawDish `yaml:"dishes"`
}

// Catalog is a static dish library. Fetch returns random dishes whose names
// are not avoided.
type Catalog struct {
	path   string
	mu     sync.RWMutex
	dishes []models.DishCandidate
	rngMu  sync.Mutex
	rng    *rand.Rand
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithSeed makes Fetch ordering deterministic.
func WithSeed(seed int64) CatalogOption {
	return func(c *Catalog) { c.rng = rand.New(rand.NewSource(seed)) }
}

// WithFile loads dishes from a YAML file instead of the built-in library.
func WithFile(path string) CatalogOption {
	return func(c *Catalog) { c.path = path }
}

// NewCatalog loads the catalog.
func NewCatalog(opts ...CatalogOption) (*Catalog, error) {
	c := &Catalog{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog source. On error the current dishes are kept.
func (c *Catalog) Reload() error {
	data := builtinCatalog
	if c.path != "" {
		var err error
		if data, err = os.ReadFile(c.path); err != nil {
			return fmt.Errorf("read catalog: %w", err)
		}
	}
	dishes, err := parseCatalog(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.dishes = dishes
	c.mu.Unlock()

	log.Info().Str("path", c.path).Int("dishes", len(dishes)).Msg("Dish catalog loaded")
	return nil
}

func parseCatalog(data []byte) ([]models.DishCandidate, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	dishes := SanitizeAll(file.Dishes)
	if len(dishes) == 0 {
		return nil, errors.New("catalog has no valid dishes")
	}
	return dishes, nil
}

// Len returns the number of dishes in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.dishes)
}

// Fetch returns up to count random dishes not named in avoid. Each returned
// dish carries a fresh ID.
func (c *Catalog) Fetch(_ context.Context, count int, avoid map[string]struct{}) ([]models.DishCandidate, error) {
	if count <= 0 {
		return nil, nil
	}

	c.mu.RLock()
	pool := make([]models.DishCandidate, 0, len(c.dishes))
	for _, d := range c.dishes {
		if _, ok := avoid[d.Name]; !ok {
			pool = append(pool, d)
		}
	}
	c.mu.RUnlock()

	c.rngMu.Lock()
	c.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	c.rngMu.Unlock()

	if len(pool) > count {
		pool = pool[:count]
	}
	for i := range pool {
		pool[i].ID = uuid.New()
	}
	return pool, nil
}

// Watch reloads the catalog file whenever it changes, until ctx is done.
// It returns immediately for the built-in catalog.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("watch %s: %w", c.path, err)
	}
	target := filepath.Clean(c.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := c.Reload(); err != nil {
				log.Warn().Err(err).Str("path", c.path).Msg("Catalog reload failed, keeping previous dishes")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Catalog watcher error")
		}
	}
}
