package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/ledger"
	"github.com/google/uuid"
)

// Store is an in-memory ledger. The key index and the insert share one
// lock, so concurrent inserts of the same key admit exactly one record.
// Data is lost on restart; use the sqlite or postgres store to persist.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Transaction
	byKey map[domain.DedupKey]string
	now   func() time.Time
}

// NewStore creates an empty in-memory ledger.
func NewStore() *Store {
	return &Store{
		byID:  make(map[string]*domain.Transaction),
		byKey: make(map[domain.DedupKey]string),
		now:   time.Now,
	}
}

// InsertIfAbsent implements ledger.Store.
func (s *Store) InsertIfAbsent(ctx context.Context, tx *domain.Transaction) (ledger.Admission, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Admission{}, err
	}

	key := tx.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, exists := s.byKey[key]; exists {
		existing := *s.byID[id]
		return ledger.Admission{Status: ledger.Rejected, Existing: &existing}, nil
	}

	// Store a copy to avoid external modifications
	stored := *tx
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if _, taken := s.byID[stored.ID]; taken {
		return ledger.Admission{}, fmt.Errorf("InsertIfAbsent: id %s already used by another key", stored.ID)
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}

	s.byID[stored.ID] = &stored
	s.byKey[key] = stored.ID

	out := stored
	return ledger.Admission{Status: ledger.Accepted, Transaction: &out}, nil
}

// Scan implements ledger.Store.
func (s *Store) Scan(ctx context.Context, f ledger.Filter) ([]*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	result := make([]*domain.Transaction, 0, len(s.byID))
	for _, tx := range s.byID {
		if !f.Match(tx) {
			continue
		}
		txCopy := *tx
		result = append(result, &txCopy)
	}
	s.mu.RUnlock()

	ledger.SortTransactions(result)
	if f.Limit > 0 && f.Limit < len(result) {
		result = result[:f.Limit]
	}
	return result, nil
}

// Get implements ledger.Store.
func (s *Store) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.byID[id]
	if !exists {
		return nil, fmt.Errorf("Get %s: %w", id, ledger.ErrNotFound)
	}
	txCopy := *tx
	return &txCopy, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Migrate is a no-op kept so every driver satisfies ledger.Migrator.
func (s *Store) Migrate(ctx context.Context) error {
	return nil
}

// Ensure Store implements the ledger interfaces.
var (
	_ ledger.Store    = (*Store)(nil)
	_ ledger.Migrator = (*Store)(nil)
)
