// Package sqlite is a single-file ledger backed by the pure Go SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const selectColumns = `id, date, merchant_name, merchant_key, raw_description, payment_mode,
	amount, category, source_id, reversal_of, created_at`

// Store persists the ledger in SQLite. Uniqueness of the dedup key is a
// table constraint, so concurrent inserts from several processes stay safe.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: open: %w", err)
	}
	// One writer at a time; readers share the same connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id              TEXT PRIMARY KEY,
			date            TEXT NOT NULL,
			merchant_name   TEXT NOT NULL,
			merchant_key    TEXT NOT NULL,
			raw_description TEXT NOT NULL,
			payment_mode    TEXT NOT NULL,
			amount          TEXT NOT NULL,
			category        TEXT NOT NULL DEFAULT '',
			source_id       TEXT NOT NULL DEFAULT '',
			reversal_of     TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL,
			UNIQUE (date, raw_description, amount)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_merchant ON transactions(merchant_key, date)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_source ON transactions(source_id)`,
	}

	for i, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("Migrate: statement %d: %w", i, err)
		}
	}
	return nil
}

// InsertIfAbsent implements ledger.Store.
func (s *Store) InsertIfAbsent(ctx context.Context, tx *domain.Transaction) (ledger.Admission, error) {
	stored := *tx
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, date, merchant_name, merchant_key, raw_description, payment_mode,
			amount, category, source_id, reversal_of, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (date, raw_description, amount) DO NOTHING`,
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
		stored.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return ledger.Admission{}, fmt.Errorf("InsertIfAbsent: insert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return ledger.Admission{}, fmt.Errorf("InsertIfAbsent: rows affected: %w", err)
	}
	if n == 1 {
		return ledger.Admission{Status: ledger.Accepted, Transaction: &stored}, nil
	}

	key := stored.Key()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM transactions WHERE date = ? AND raw_description = ? AND amount = ?`,
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
	if f.MerchantKey != "" {
		where = append(where, "merchant_key = ?")
		args = append(args, domain.MerchantKey(f.MerchantKey))
	}
	if f.SourceID != "" {
		where = append(where, "source_id = ?")
		args = append(args, f.SourceID)
	}
	if f.From.IsValid() {
		where = append(where, "date >= ?")
		args = append(args, f.From.String())
	}
	if f.To.IsValid() {
		where = append(where, "date <= ?")
		args = append(args, f.To.String())
	}

	query := `SELECT ` + selectColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, raw_description, CAST(amount AS REAL)"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("Get %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get %s: %w", id, err)
	}
	return tx, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx                       domain.Transaction
		date, mode, amount, made string
		merchantKey              string
	)
	if err := row.Scan(
		&tx.ID, &date, &tx.MerchantName, &merchantKey, &tx.RawDescription, &mode,
		&amount, &tx.Category, &tx.SourceID, &tx.ReversalOf, &made,
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
	if tx.CreatedAt, err = time.Parse(time.RFC3339Nano, made); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", made, err)
	}
	tx.PaymentMode = domain.ParsePaymentMode(mode)
	return &tx, nil
}

// Ensure Store implements the ledger interfaces.
var (
	_ ledger.Store    = (*Store)(nil)
	_ ledger.Migrator = (*Store)(nil)
)
