package pricetable

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/subzap/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres reads reference prices from the reference_prices table. Each
// merchant may have several versions; the most recent effective one wins.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the reference_prices table.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS reference_prices (
			merchant_key   TEXT NOT NULL,
			version        TEXT NOT NULL,
			plan           TEXT NOT NULL DEFAULT '',
			price          NUMERIC(14, 2) NOT NULL,
			effective_from DATE NOT NULL DEFAULT CURRENT_DATE,
			PRIMARY KEY (merchant_key, version)
		)`)
	if err != nil {
		return fmt.Errorf("pricetable.Migrate: %w", err)
	}
	return nil
}

// Lookup implements Table.
func (p *Postgres) Lookup(ctx context.Context, merchantKey string) (Reference, bool, error) {
	query := `
		SELECT merchant_key, plan, price::text, version
		FROM reference_prices
		WHERE merchant_key = $1
		ORDER BY effective_from DESC, version DESC
		LIMIT 1
	`
	var (
		ref   Reference
		price string
	)
	err := p.pool.QueryRow(ctx, query, domain.MerchantKey(merchantKey)).
		Scan(&ref.MerchantKey, &ref.Plan, &price, &ref.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reference{}, false, nil
	}
	if err != nil {
		return Reference{}, false, fmt.Errorf("pricetable.Lookup %s: %w", merchantKey, err)
	}

	if ref.Price, err = decimal.NewFromString(price); err != nil {
		return Reference{}, false, fmt.Errorf("pricetable.Lookup %s: price %q: %w", merchantKey, price, err)
	}
	if ref.Price.IsZero() {
		return Reference{}, false, nil
	}
	return ref, true, nil
}

// Upsert stores ref under its version, replacing an existing row.
func (p *Postgres) Upsert(ctx context.Context, ref Reference) error {
	if ref.Version == "" {
		return fmt.Errorf("pricetable.Upsert: version is required")
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO reference_prices (merchant_key, version, plan, price)
		VALUES ($1, $2, $3, $4::numeric)
		ON CONFLICT (merchant_key, version)
		DO UPDATE SET plan = EXCLUDED.plan, price = EXCLUDED.price`,
		domain.MerchantKey(ref.MerchantKey), ref.Version, ref.Plan, ref.Price.StringFixed(2),
	)
	if err != nil {
		return fmt.Errorf("pricetable.Upsert %s: %w", ref.MerchantKey, err)
	}
	return nil
}

var _ Table = (*Postgres)(nil)
