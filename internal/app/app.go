// Package app builds the ledger, price table and pipelines selected by the
// configuration. Every binary goes through New.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/subzap/internal/audit"
	"github.com/dvloznov/subzap/internal/config"
	infraBQ "github.com/dvloznov/subzap/internal/infra/bigquery"
	"github.com/dvloznov/subzap/internal/ledger"
	"github.com/dvloznov/subzap/internal/ledger/inmemory"
	"github.com/dvloznov/subzap/internal/ledger/postgres"
	"github.com/dvloznov/subzap/internal/ledger/sqlite"
	"github.com/dvloznov/subzap/internal/normalize"
	"github.com/dvloznov/subzap/internal/pipeline"
	"github.com/dvloznov/subzap/internal/pricetable"
	"github.com/dvloznov/subzap/internal/recurrence"
	"github.com/dvloznov/subzap/internal/source"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// App holds the wired services. Call Close when done.
type App struct {
	Config *config.Config
	Log    zerolog.Logger

	Store      ledger.Store
	PriceTable pricetable.Table
	Ingestor   *pipeline.Ingestor
	Scanner    *pipeline.Scanner
	Loader     *source.Loader

	// Storage is nil unless a bucket is configured.
	Storage source.StorageService

	// Set when the price table is file-backed or cached, for ReloadPrices.
	priceFile  *pricetable.File
	priceCache *pricetable.Cached

	pool    *pgxpool.Pool
	closers []func() error
}

// OpenLedger connects only the ledger store, which is all Migrate needs.
func OpenLedger(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}
	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.OpenLedger: %w", err)
	}
	a.Store = store
	return a, nil
}

// New connects every backend cfg selects. cfg must already be validated.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *App, err error) {
	a, err := OpenLedger(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.PriceTable, err = a.openPriceTable(ctx); err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	if cfg.Storage.Bucket != "" {
		gcs, err := source.NewGCSStorageService(ctx)
		if err != nil {
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.Storage = gcs
		a.closers = append(a.closers, gcs.Close)
	}

	thresholds, err := cfg.Thresholds()
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}

	rules := cfg.Rules()
	opts := []pipeline.IngestorOption{pipeline.WithConcurrency(cfg.Ingest.Concurrency)}
	if cfg.Ingest.ValidateCategories {
		opts = append(opts, pipeline.WithCategoryValidator(pipeline.NewCategoryValidator(rules.Categories)))
	}

	a.Ingestor = pipeline.NewIngestor(
		normalize.New(normalize.Options{DefaultYear: cfg.Ingest.DefaultYear, Rules: &rules}),
		ledger.NewDeduplicator(a.Store),
		opts...,
	)
	a.Scanner = pipeline.NewScanner(a.Store, recurrence.New(cfg.Recurrence), audit.New(a.PriceTable, thresholds))
	a.Loader = source.NewLoader(a.Storage)

	log.Info().
		Str("ledger", cfg.Ledger.Driver).
		Str("prices", cfg.Prices.Source).
		Str("price_table_version", pricetable.VersionOf(a.PriceTable)).
		Msg("Services initialised")

	return a, nil
}

func (a *App) postgresPool(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	pool, err := postgres.Connect(ctx, a.Config.Ledger.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	return pool, nil
}

func (a *App) openStore(ctx context.Context) (ledger.Store, error) {
	cfg := a.Config.Ledger
	switch cfg.Driver {
	case config.DriverMemory:
		return inmemory.NewStore(), nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil

	case config.DriverPostgres:
		pool, err := a.postgresPool(ctx)
		if err != nil {
			return nil, err
		}
		return postgres.NewStore(pool), nil

	case config.DriverBigQuery:
		repo, err := infraBQ.NewLedgerRepository(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, repo.Close)
		return repo, nil
	}
	return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
}

func (a *App) openPriceTable(ctx context.Context) (pricetable.Table, error) {
	cfg := a.Config.Prices

	var inner pricetable.Table
	switch cfg.Source {
	case config.PricesFile:
		file, err := pricetable.LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		a.priceFile = file
		inner = file
	case config.PricesPostgres:
		pool, err := a.postgresPool(ctx)
		if err != nil {
			return nil, err
		}
		inner = pricetable.NewPostgres(pool)
	default:
		return nil, fmt.Errorf("unknown price source %q", cfg.Source)
	}

	if cfg.CacheSize == 0 {
		return inner, nil
	}
	ttl, err := a.Config.PriceCacheTTL()
	if err != nil {
		return nil, err
	}
	cached, err := pricetable.NewCached(inner, cfg.CacheSize, ttl)
	if err != nil {
		return nil, err
	}
	a.priceCache = cached
	a.closers = append(a.closers, func() error {
		cached.Close()
		return nil
	})
	return cached, nil
}

// ReloadPrices re-reads a file-backed price table and drops cached lookups,
// so the next scan audits against the current revision. When the file
// cannot be read the previous revision stays in use and the error is
// returned.
func (a *App) ReloadPrices(ctx context.Context) error {
	if a.priceFile != nil {
		if err := a.priceFile.Reload(); err != nil {
			return fmt.Errorf("ReloadPrices: %w", err)
		}
	}
	if a.priceCache != nil {
		a.priceCache.Invalidate()
	}
	a.Log.Info().
		Str("prices", a.Config.Prices.Source).
		Str("price_table_version", pricetable.VersionOf(a.PriceTable)).
		Msg("Price table reloaded")
	return nil
}

// Migrate creates the schemas of the configured ledger and price table.
func (a *App) Migrate(ctx context.Context) error {
	if m, ok := a.Store.(ledger.Migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("Migrate: ledger: %w", err)
		}
	}
	if a.Config.Prices.Source == config.PricesPostgres {
		pool, err := a.postgresPool(ctx)
		if err != nil {
			return fmt.Errorf("Migrate: %w", err)
		}
		if err := pricetable.NewPostgres(pool).Migrate(ctx); err != nil {
			return fmt.Errorf("Migrate: price table: %w", err)
		}
	}
	return nil
}

// SeedPrices copies the YAML price file at path into the reference_prices
// table and returns the number of rows written.
func (a *App) SeedPrices(ctx context.Context, path string) (int, error) {
	file, err := pricetable.LoadFile(path)
	if err != nil {
		return 0, fmt.Errorf("SeedPrices: %w", err)
	}
	if a.Config.Ledger.DatabaseURL == "" {
		return 0, fmt.Errorf("SeedPrices: ledger.database_url is required")
	}
	pool, err := a.postgresPool(ctx)
	if err != nil {
		return 0, fmt.Errorf("SeedPrices: %w", err)
	}

	table := pricetable.NewPostgres(pool)
	if err := table.Migrate(ctx); err != nil {
		return 0, fmt.Errorf("SeedPrices: %w", err)
	}
	refs := file.References()
	for _, ref := range refs {
		if err := table.Upsert(ctx, ref); err != nil {
			return 0, fmt.Errorf("SeedPrices: %w", err)
		}
	}
	return len(refs), nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
