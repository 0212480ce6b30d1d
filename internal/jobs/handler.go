package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/pipeline"
)

// BatchLoader reads a candidate batch. Implemented by *source.Loader.
type BatchLoader interface {
	Load(ctx context.Context, location string) ([]domain.RawCandidate, error)
}

// BatchIngestor ingests a candidate batch. Implemented by *pipeline.Ingestor.
type BatchIngestor interface {
	IngestBatch(ctx context.Context, candidates []domain.RawCandidate) (*pipeline.BatchReport, error)
}

// IngestHandler returns a JobHandler that loads job.SourceURI and ingests it.
// Re-running a job is safe: candidates already in the ledger come back as
// duplicates.
func IngestHandler(loader BatchLoader, ingestor BatchIngestor) JobHandler {
	return func(ctx context.Context, job *IngestJob) error {
		candidates, err := loader.Load(ctx, job.SourceURI)
		if err != nil {
			return fmt.Errorf("IngestHandler: load: %w", err)
		}

		report, err := ingestor.IngestBatch(ctx, candidates)
		if err != nil {
			return fmt.Errorf("IngestHandler: ingest: %w", err)
		}

		job.Candidates = report.Total()
		job.Accepted = report.Accepted
		job.Duplicates = report.Duplicates
		job.Invalid = report.Invalid
		return nil
	}
}
