// Package postgres is the shared-database ledger, using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const selectColumns = `id, date::text, merchant_name, raw_description, payment_mode,
	amount::text, category, source_id, reversal_of, created_at`

// Connect opens a pool and verifies the connection.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres.Connect: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.Connect: ping: %w", err)
	}

	return pool, nil
}

// Store keeps the ledger in a transactions table whose unique constraint
// enforces the dedup key.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the transactions table.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id              TEXT PRIMARY KEY,
			date            DATE NOT NULL,
			merchant_name   TEXT NOT NULL,
			merchant_key    TEXT NOT NULL,
			raw_description TEXT NOT NULL,
			payment_mode    TEXT NOT NULL,
			amount          NUMERIC(14, 2) NOT NULL,
			category        TEXT NOT NULL DEFAULT '',
			source_id       TEXT NOT NULL DEFAULT '',
			reversal_of     TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT transactions_dedup_key UNIQUE (date, raw_description, amount)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_merchant ON transactions (merchant_key, date)`,
	}
	for i, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("Migrate: statement %d: %w", i, err)
		}
	}
	return nil
}

// InsertIfAbsent implements ledger.Store. The unique constraint decides the
// race; a losing insert falls through to reading the winner.
func (s *Store) InsertIfAbsent(ctx context.Context, tx *domain.Transaction) (ledger.Admission, error) {
	stored := *tx
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO transactions (
			id, date, merchant_name, merchant_key, raw_description, payment_mode,
			amount, category, source_id, reversal_of, created_at
		)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11)
		ON CONFLICT ON CONSTRAINT transactions_dedup_key DO NOTHING
		RETURNING id
	`
	var id string
	err := s.pool.QueryRow(ctx, query,
		stored.ID,
		stored.Date.String(),
		stored.MerchantName,
		stored.MerchantKey(),
		stored.RawDescription,
		string(stored.PaymentMode),
		domain.FormatAmount(stored.Amount),
		stored.Category,
		stored.SourceID,
		stored.ReversalOf,
		stored.CreatedAt,
	).Scan(&id)
	switch {
	case err == nil:
		return ledger.Admission{Status: ledger.Accepted, Transaction: &stored}, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return ledger.Admission{}, fmt.Errorf("InsertIfAbsent: insert: %w", err)
	}

	key := stored.Key()
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM transactions
		WHERE date = $1::date AND raw_description = $2 AND amount = $3::numeric`,
		key.Date.String(), key.RawDescription, key.Amount,
	)
	existing, err := scanTransaction(row)
	if err != nil {
		return ledger.Admission{}, fmt.Errorf("InsertIfAbsent: load existing: %w", err)
	}
	return ledger.Admission{Status: ledger.Rejected, Existing: existing}, nil
}

// Scan implements ledger.Store.
func (s *Store) Scan(ctx context.Context, f ledger.Filter) ([]*domain.Transaction, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.MerchantKey != "" {
		where = append(where, "merchant_key = "+arg(domain.MerchantKey(f.MerchantKey)))
	}
	if f.SourceID != "" {
		where = append(where, "source_id = "+arg(f.SourceID))
	}
	if f.From.IsValid() {
		where = append(where, "date >= "+arg(f.From.String())+"::date")
	}
	if f.To.IsValid() {
		where = append(where, "date <= "+arg(f.To.String())+"::date")
	}

	query := `SELECT ` + selectColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date, raw_description COLLATE "C", amount`
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Scan: query: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("Scan: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Scan: rows: %w", err)
	}
	return out, nil
}

// Get implements ledger.Store.
func (s *Store) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("Get %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get %s: %w", id, err)
	}
	return tx, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		tx                 domain.Transaction
		date, mode, amount string
	)
	if err := row.Scan(
		&tx.ID, &date, &tx.MerchantName, &tx.RawDescription, &mode,
		&amount, &tx.Category, &tx.SourceID, &tx.ReversalOf, &tx.CreatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if tx.Date, err = civil.ParseDate(date); err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	tx.PaymentMode = domain.ParsePaymentMode(mode)
	return &tx, nil
}

// Ensure Store implements the ledger interfaces.
var (
	_ ledger.Store    = (*Store)(nil)
	_ ledger.Migrator = (*Store)(nil)
)
