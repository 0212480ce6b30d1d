// Package pipeline wires the normalizer, the deduplicating ledger, the
// recurrence detector and the price auditor into batch ingestion and scans.
package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/ledger"
	"github.com/dvloznov/subzap/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Ingestor runs candidates through Normalizer and Admitter.
type Ingestor struct {
	normalizer  Normalizer
	admitter    Admitter
	validator   *CategoryValidator
	concurrency int
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithConcurrency bounds in-flight candidates. n < 1 keeps the default.
func WithConcurrency(n int) IngestorOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// WithCategoryValidator filters category hints before normalization.
func WithCategoryValidator(v *CategoryValidator) IngestorOption {
	return func(i *Ingestor) {
		i.validator = v
	}
}

// NewIngestor creates an Ingestor.
func NewIngestor(normalizer Normalizer, admitter Admitter, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		normalizer:  normalizer,
		admitter:    admitter,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IngestBatch normalizes and admits every candidate. A candidate that fails
// normalization is reported as invalid and the batch goes on; a duplicate is
// reported with the record it collided with. A ledger failure stops the
// batch and is returned.
func (i *Ingestor) IngestBatch(ctx context.Context, candidates []domain.RawCandidate) (*BatchReport, error) {
	log := logger.FromContext(ctx)

	results := make([]CandidateResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for idx, c := range candidates {
		idx, c := idx, c // per-iteration copies; module targets go1.21
		g.Go(func() error {
			res, err := i.ingestOne(gctx, idx, c)
			if err != nil {
				return fmt.Errorf("candidate %d: %w", idx, err)
			}
			results[idx] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Int("candidates", len(candidates)).Msg("Batch ingestion aborted")
		return nil, fmt.Errorf("IngestBatch: %w", err)
	}

	report := newBatchReport(results)
	for _, res := range report.Results {
		switch res.Outcome {
		case OutcomeInvalid:
			log.Debug().
				Int("index", res.Index).
				Str("source_id", res.Candidate.SourceID).
				Str("reason", res.Error).
				Msg("Candidate rejected as invalid")
		case OutcomeDuplicate:
			log.Debug().
				Int("index", res.Index).
				Str("source_id", res.Candidate.SourceID).
				Str("duplicate_of", res.DuplicateOf.ID).
				Msg("Candidate rejected as duplicate")
		}
	}
	log.Info().
		Int("candidates", report.Total()).
		Int("accepted", report.Accepted).
		Int("duplicates", report.Duplicates).
		Int("invalid", report.Invalid).
		Msg("Batch ingested")

	return report, nil
}

func (i *Ingestor) ingestOne(ctx context.Context, idx int, c domain.RawCandidate) (CandidateResult, error) {
	if err := ctx.Err(); err != nil {
		return CandidateResult{}, err
	}

	res := CandidateResult{Index: idx, Candidate: c}

	input := c
	if i.validator != nil {
		input.Category, _ = i.validator.Apply(c.Category)
	}

	tx, err := i.normalizer.Normalize(input)
	if err != nil {
		res.Outcome = OutcomeInvalid
		res.Err = err
		res.Error = err.Error()
		return res, nil
	}

	adm, err := i.admitter.Admit(ctx, tx)
	if err != nil {
		return CandidateResult{}, err
	}

	switch adm.Status {
	case ledger.Accepted:
		res.Outcome = OutcomeAccepted
		res.Transaction = adm.Transaction
	case ledger.Rejected:
		res.Outcome = OutcomeDuplicate
		res.DuplicateOf = adm.Existing
	default:
		return CandidateResult{}, fmt.Errorf("unknown admission status %q", adm.Status)
	}
	return res, nil
}
