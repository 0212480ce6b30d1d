package ledger

import (
	"context"
	"fmt"

	"github.com/dvloznov/subzap/internal/domain"
)

// Deduplicator is the admission gate in front of a Store.
// Duplicates are decided on (date, raw_description, amount) only; merchant
// name and category never take part. The check and the insert happen in one
// store call, so the gate is safe under concurrent ingestion and idempotent
// under retries with identical input.
type Deduplicator struct {
	store Store
}

// NewDeduplicator creates a Deduplicator over store.
func NewDeduplicator(store Store) *Deduplicator {
	return &Deduplicator{store: store}
}

// Admit offers tx to the ledger. Store failures are returned unchanged in
// meaning and are never retried here.
func (d *Deduplicator) Admit(ctx context.Context, tx *domain.Transaction) (Admission, error) {
	if tx == nil {
		return Admission{}, fmt.Errorf("Admit: nil transaction")
	}

	adm, err := d.store.InsertIfAbsent(ctx, tx)
	if err != nil {
		return Admission{}, fmt.Errorf("Admit: insert: %w", err)
	}
	if adm.Status == Rejected && adm.Existing == nil {
		return Admission{}, fmt.Errorf("Admit: store rejected %s without the existing record", domain.FormatAmount(tx.Amount))
	}
	return adm, nil
}
