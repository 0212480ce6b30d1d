package pipeline

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/ledger"
)

// Normalizer canonicalizes raw candidates. Implemented by *normalize.Normalizer.
type Normalizer interface {
	Normalize(c domain.RawCandidate) (*domain.Transaction, error)
}

// Admitter gates transactions into the ledger. Implemented by *ledger.Deduplicator.
type Admitter interface {
	Admit(ctx context.Context, tx *domain.Transaction) (ledger.Admission, error)
}

// LedgerReader provides the snapshot a scan runs over. Implemented by every ledger.Store.
type LedgerReader interface {
	Scan(ctx context.Context, f ledger.Filter) ([]*domain.Transaction, error)
}

// Detector finds recurring charges. Implemented by *recurrence.Detector.
type Detector interface {
	Detect(txs []*domain.Transaction, asOf civil.Date) []domain.SubscriptionCandidate
}

// Auditor grades candidates against reference prices. Implemented by *audit.Auditor.
type Auditor interface {
	AuditAll(ctx context.Context, candidates []domain.SubscriptionCandidate) ([]domain.AuditFinding, error)
	TableVersion() string
}
