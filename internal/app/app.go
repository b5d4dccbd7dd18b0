// Package app assembles the trainer, its stores and the HTTP worker from
// configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	gormlogger "gorm.io/gorm/logger"

	"github.com/thebtf/tastetrainer/internal/analysis"
	"github.com/thebtf/tastetrainer/internal/backend"
	"github.com/thebtf/tastetrainer/internal/candidates"
	"github.com/thebtf/tastetrainer/internal/config"
	badgerdb "github.com/thebtf/tastetrainer/internal/db/badger"
	gormdb "github.com/thebtf/tastetrainer/internal/db/gorm"
	"github.com/thebtf/tastetrainer/internal/db/sqlite"
	"github.com/thebtf/tastetrainer/internal/deck"
	"github.com/thebtf/tastetrainer/internal/logging"
	"github.com/thebtf/tastetrainer/internal/metrics"
	"github.com/thebtf/tastetrainer/internal/privacy"
	"github.com/thebtf/tastetrainer/internal/snapshot"
	"github.com/thebtf/tastetrainer/internal/trainer"
	"github.com/thebtf/tastetrainer/internal/worker"
)

// App owns every long-lived component built from a Config.
type App struct {
	Config  *config.Config
	Trainer *trainer.Trainer

	catalog *candidates.Catalog
	breaker *analysis.Breaker
	pg      *gormdb.Store
	ping    func(context.Context) error
	closers []func() error
	logger  zerolog.Logger
}

// New builds the stores, candidate source, analyzer and trainer described
// by cfg. The trainer is not bootstrapped yet.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, logger: logging.Component("app")}

	blobs, pg, err := a.openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	source, err := a.buildSource(ctx, cfg.Candidates, pg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	analyzer, err := a.buildAnalyzer(cfg.Analysis, cfg.Candidates)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	repo := snapshot.NewRepository(blobs, cfg.Storage.Key)
	a.Trainer = trainer.New(cfg.Trainer, cfg.Scoring, source, analyzer, repo)
	return a, nil
}

// Bootstrap loads the stored snapshot and fills the deck. A failed fetch is
// logged and left to the next refill; it does not fail startup.
func (a *App) Bootstrap(ctx context.Context) error {
	if err := a.Trainer.Bootstrap(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Initial deck fetch failed")
	}
	return nil
}

// Serve bootstraps the trainer, starts the HTTP worker and, when enabled,
// the catalog watcher. It returns once ctx is canceled and everything has
// stopped.
func (a *App) Serve(ctx context.Context, version string) error {
	svc := worker.NewService(version, a.Config.Server, a.Trainer,
		worker.WithStorageHealth(a.StorageHealth),
		worker.WithBreakerState(a.BreakerState),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.ListenAndServe(ctx)
	})
	g.Go(func() error {
		err := a.Bootstrap(ctx)
		svc.MarkReady(err)
		return nil
	})
	if a.catalog != nil && a.Config.Candidates.Watch && a.Config.Candidates.CatalogPath != "" {
		g.Go(func() error {
			if err := a.catalog.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("Catalog watcher stopped")
			}
			return nil
		})
	}

	return g.Wait()
}

// BreakerState reports the analysis circuit breaker state, or "" when no
// breaker is configured.
func (a *App) BreakerState() string {
	if a.breaker == nil {
		return ""
	}
	return a.breaker.State()
}

// StorageHealth checks the configured store. The in-memory store is always
// healthy.
func (a *App) StorageHealth(ctx context.Context) worker.StorageHealth {
	h := worker.StorageHealth{Driver: a.Config.Storage.Driver, Status: worker.HealthHealthy}
	switch {
	case a.pg != nil:
		info := a.pg.HealthCheck(ctx)
		h.Status, h.Error, h.Detail = info.Status, info.Error, info
	case a.ping != nil:
		if err := a.ping(ctx); err != nil {
			h.Status, h.Error = worker.HealthUnhealthy, err.Error()
		}
	}
	return h
}

// Close stops in-flight analysis and closes stores in reverse order.
func (a *App) Close() error {
	if a.Trainer != nil {
		a.Trainer.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openStore returns the snapshot blob store for the configured driver. The
// gorm store is returned too when the driver is postgres so the dish
// inventory can share its connection pool.
func (a *App) openStore(cfg config.StorageConfig) (snapshot.BlobStore, *gormdb.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return snapshot.NewMemoryStore(), nil, nil

	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		store, err := sqlite.NewStore(sqlite.StoreConfig{Path: cfg.Path, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.ping = store.Ping
		return store, nil, nil

	case config.DriverBadger:
		a.logger.Debug().Str("path", cfg.Path).Msg("Opening Badger store")
		store, err := badgerdb.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.ping = store.Ping
		return store, nil, nil

	case config.DriverPostgres:
		a.logger.Info().Str("dsn", privacy.RedactDSN(cfg.DSN)).Msg("Opening PostgreSQL store")
		store, err := gormdb.NewStore(gormdb.Config{
			DSN:      cfg.DSN,
			MaxConns: cfg.MaxConns,
			LogLevel: gormlogger.Silent,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.pg = store
		return gormdb.NewBlobStore(store), store, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

func (a *App) buildSource(ctx context.Context, cfg config.CandidatesConfig, pg *gormdb.Store) (deck.Source, error) {
	switch cfg.Source {
	case config.SourceCatalog:
		catalog, err := a.newCatalog(cfg)
		if err != nil {
			return nil, err
		}
		a.catalog = catalog
		return catalog, nil

	case config.SourceRemote:
		client := backend.NewClient(cfg.RemoteURL, cfg.Timeout)
		return candidates.NewRemoteSource(client, cfg.Locale), nil

	case config.SourceInventory:
		if pg == nil {
			return nil, errors.New("inventory source requires the postgres storage driver")
		}
		dishes := gormdb.NewDishStore(pg)
		if err := a.seedInventory(ctx, cfg, dishes); err != nil {
			return nil, err
		}
		return dishes, nil
	}
	return nil, fmt.Errorf("unknown candidate source %q", cfg.Source)
}

func (a *App) newCatalog(cfg config.CandidatesConfig) (*candidates.Catalog, error) {
	var opts []candidates.CatalogOption
	if cfg.Seed != 0 {
		opts = append(opts, candidates.WithSeed(cfg.Seed))
	}
	if cfg.CatalogPath != "" {
		opts = append(opts, candidates.WithFile(cfg.CatalogPath))
	}
	return candidates.NewCatalog(opts...)
}

// seedInventory loads the catalog into an empty inventory table.
func (a *App) seedInventory(ctx context.Context, cfg config.CandidatesConfig, dishes *gormdb.DishStore) error {
	n, err := dishes.Count(ctx)
	if err != nil {
		return fmt.Errorf("count inventory: %w", err)
	}
	if n > 0 {
		return nil
	}

	catalog, err := a.newCatalog(cfg)
	if err != nil {
		return err
	}
	seed, err := catalog.Fetch(ctx, catalog.Len(), nil)
	if err != nil {
		return err
	}
	added, err := dishes.Upsert(ctx, seed, config.SourceCatalog)
	if err != nil {
		return fmt.Errorf("seed inventory: %w", err)
	}
	a.logger.Info().Int64("dishes", added).Msg("Seeded dish inventory from catalog")
	return nil
}

func (a *App) buildAnalyzer(cfg config.AnalysisConfig, cand config.CandidatesConfig) (analysis.Analyzer, error) {
	var inner analysis.Analyzer
	switch cfg.Provider {
	case config.ProviderNone:
		return analysis.Disabled{}, nil

	case config.ProviderRemote:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = cand.RemoteURL
		}
		inner = analysis.NewRemote(backend.NewClient(baseURL, cfg.Timeout))

	case config.ProviderChat:
		chat, err := analysis.NewChat(analysis.ChatConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		inner = chat

	default:
		return nil, fmt.Errorf("unknown analysis provider %q", cfg.Provider)
	}

	a.breaker = analysis.NewBreaker(inner, analysis.BreakerConfig{
		FailureThreshold: cfg.BreakerThreshold,
		Timeout:          cfg.BreakerTimeout,
		OnStateChange:    metrics.SetBreakerState,
	})
	metrics.SetBreakerState(a.breaker.State())
	return a.breaker, nil
}
