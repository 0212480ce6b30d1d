// Package ledger defines the append-only transaction store and the
// deduplication gate in front of it.
package ledger

import (
	"context"
	"errors"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/subzap/internal/domain"
)

// ErrNotFound is returned by Get when no record has the requested ID.
var ErrNotFound = errors.New("ledger: transaction not found")

// AdmissionStatus is the outcome of an insert attempt.
type AdmissionStatus string

const (
	Accepted AdmissionStatus = "accepted"
	Rejected AdmissionStatus = "rejected"
)

// Admission reports what happened to one transaction offered to the ledger.
// A rejection is an expected outcome, not an error: Existing points at the
// record that already holds the same (date, raw_description, amount) key.
type Admission struct {
	Status      AdmissionStatus
	Transaction *domain.Transaction // stored record when accepted
	Existing    *domain.Transaction // conflicting record when rejected
}

// Filter narrows a Scan. Zero values match everything.
type Filter struct {
	MerchantKey string
	SourceID    string
	From        civil.Date // inclusive
	To          civil.Date // inclusive
	Limit       int
}

// Store is the ledger backing store. Implementations must enforce uniqueness
// of (date, raw_description, amount) themselves so that InsertIfAbsent is
// atomic with respect to concurrent inserts of the same key.
type Store interface {
	// InsertIfAbsent stores tx unless its key is already present.
	// On acceptance the store assigns ID and CreatedAt when they are empty.
	InsertIfAbsent(ctx context.Context, tx *domain.Transaction) (Admission, error)

	// Scan returns matching records ordered by date, raw description, amount.
	Scan(ctx context.Context, f Filter) ([]*domain.Transaction, error)

	// Get returns the record with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Transaction, error)
}

// Migrator is implemented by stores that need a schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Match reports whether tx passes every non-zero field of f except Limit.
func (f Filter) Match(tx *domain.Transaction) bool {
	if f.MerchantKey != "" && tx.MerchantKey() != domain.MerchantKey(f.MerchantKey) {
		return false
	}
	if f.SourceID != "" && tx.SourceID != f.SourceID {
		return false
	}
	if f.From.IsValid() && tx.Date.Before(f.From) {
		return false
	}
	if f.To.IsValid() && tx.Date.After(f.To) {
		return false
	}
	return true
}

// SortTransactions orders txs the way Scan must return them.
func SortTransactions(txs []*domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.RawDescription != b.RawDescription {
			return a.RawDescription < b.RawDescription
		}
		return a.Amount.LessThan(b.Amount)
	})
}
