package pipeline

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/ledger"
)

// CandidateResult reports the fate of one candidate, at its input index.
type CandidateResult struct {
	Index     int                 `json:"index"`
	Candidate domain.RawCandidate `json:"candidate"`
	Outcome   Outcome             `json:"outcome"`

	// Transaction is the stored record when accepted.
	Transaction *domain.Transaction `json:"transaction,omitempty"`
	// DuplicateOf is the record already holding the key when duplicate.
	DuplicateOf *domain.Transaction `json:"duplicate_of,omitempty"`

	// Err is the normalization failure when invalid.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// BatchReport summarises one IngestBatch call. Results follow input order.
type BatchReport struct {
	Results    []CandidateResult `json:"results"`
	Accepted   int               `json:"accepted"`
	Duplicates int               `json:"duplicates"`
	Invalid    int               `json:"invalid"`
}

// Total is the number of candidates offered.
func (r *BatchReport) Total() int {
	return len(r.Results)
}

func newBatchReport(results []CandidateResult) *BatchReport {
	report := &BatchReport{Results: results}
	for _, res := range results {
		switch res.Outcome {
		case OutcomeAccepted:
			report.Accepted++
		case OutcomeDuplicate:
			report.Duplicates++
		case OutcomeInvalid:
			report.Invalid++
		}
	}
	return report
}

// ScanRequest selects the ledger slice a scan runs over.
type ScanRequest struct {
	// AsOf is the reference date for lapse detection. Zero means today.
	AsOf   civil.Date
	Filter ledger.Filter
}

// ScanReport is the result of one detect-and-audit pass.
type ScanReport struct {
	AsOf              civil.Date                     `json:"as_of"`
	SnapshotSize      int                            `json:"snapshot_size"`
	Candidates        []domain.SubscriptionCandidate `json:"candidates"`
	Findings          []domain.AuditFinding          `json:"findings"`
	PriceTableVersion string                         `json:"price_table_version,omitempty"`
	StartedAt         time.Time                      `json:"started_at"`
	Duration          time.Duration                  `json:"duration"`
}

// Hikes returns the findings graded as hikes.
func (r *ScanReport) Hikes() []domain.AuditFinding {
	var out []domain.AuditFinding
	for _, f := range r.Findings {
		if f.Severity == domain.SeverityHike {
			out = append(out, f)
		}
	}
	return out
}
