// Package pricetable provides reference market prices for subscriptions.
// Tables are owned and refreshed outside the audit; the auditor only reads.
package pricetable

import (
	"context"
	"sort"
	"sync"

	"github.com/dvloznov/subzap/internal/domain"
	"github.com/shopspring/decimal"
)

// Reference is the market price of one merchant's plan.
type Reference struct {
	MerchantKey string
	Plan        string
	Price       decimal.Decimal
	Version     string
}

// Table looks up reference prices by merchant key. ok is false when the
// table has no usable price; a zero price counts as absent.
type Table interface {
	Lookup(ctx context.Context, merchantKey string) (ref Reference, ok bool, err error)
}

// Versioned is implemented by tables that know which revision they serve.
type Versioned interface {
	Version() string
}

// VersionOf returns the table revision, or "" when t does not track one.
func VersionOf(t Table) string {
	if v, ok := t.(Versioned); ok {
		return v.Version()
	}
	return ""
}

// Static is an in-memory table.
type Static struct {
	mu      sync.RWMutex
	version string
	refs    map[string]Reference
}

// NewStatic builds a table from refs. Merchant keys are normalised, and a
// later entry for the same key replaces an earlier one.
func NewStatic(version string, refs ...Reference) *Static {
	s := &Static{version: version, refs: make(map[string]Reference, len(refs))}
	for _, r := range refs {
		r.MerchantKey = domain.MerchantKey(r.MerchantKey)
		if r.Version == "" {
			r.Version = version
		}
		s.refs[r.MerchantKey] = r
	}
	return s
}

// Lookup implements Table.
func (s *Static) Lookup(ctx context.Context, merchantKey string) (Reference, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.refs[domain.MerchantKey(merchantKey)]
	if !ok || ref.Price.IsZero() {
		return Reference{}, false, nil
	}
	return ref, true, nil
}

// Version implements Versioned.
func (s *Static) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Len returns the number of entries.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.refs)
}

// References returns every entry ordered by merchant key.
func (s *Static) References() []Reference {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Reference, 0, len(s.refs))
	for _, r := range s.refs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MerchantKey < out[j].MerchantKey })
	return out
}

// replace swaps the contents for those of other.
func (s *Static) replace(other *Static) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = other.version
	s.refs = other.refs
}
