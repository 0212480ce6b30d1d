package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/pipeline"
)

// MockBatchLoader is a mock implementation of BatchLoader for testing.
type MockBatchLoader struct {
	LoadFunc func(ctx context.Context, location string) ([]domain.RawCandidate, error)
}

func (m *MockBatchLoader) Load(ctx context.Context, location string) ([]domain.RawCandidate, error) {
	return m.LoadFunc(ctx, location)
}

// MockBatchIngestor is a mock implementation of BatchIngestor for testing.
type MockBatchIngestor struct {
	IngestBatchFunc func(ctx context.Context, candidates []domain.RawCandidate) (*pipeline.BatchReport, error)
}

func (m *MockBatchIngestor) IngestBatch(ctx context.Context, candidates []domain.RawCandidate) (*pipeline.BatchReport, error) {
	return m.IngestBatchFunc(ctx, candidates)
}

func TestIngestHandler(t *testing.T) {
	loader := &MockBatchLoader{
		LoadFunc: func(ctx context.Context, location string) ([]domain.RawCandidate, error) {
			if location != "gs://statements/jan.csv" {
				t.Errorf("loaded %q", location)
			}
			return make([]domain.RawCandidate, 4), nil
		},
	}
	ingestor := &MockBatchIngestor{
		IngestBatchFunc: func(ctx context.Context, candidates []domain.RawCandidate) (*pipeline.BatchReport, error) {
			return &pipeline.BatchReport{
				Results:    make([]pipeline.CandidateResult, len(candidates)),
				Accepted:   2,
				Duplicates: 1,
				Invalid:    1,
			}, nil
		},
	}

	job := &IngestJob{JobID: "j1", SourceURI: "gs://statements/jan.csv"}
	if err := IngestHandler(loader, ingestor)(context.Background(), job); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if job.Candidates != 4 || job.Accepted != 2 || job.Duplicates != 1 || job.Invalid != 1 {
		t.Errorf("unexpected counts: %+v", job)
	}
}

func TestIngestHandler_Errors(t *testing.T) {
	loadErr := errors.New("object not found")
	storeErr := errors.New("ledger down")

	okLoader := &MockBatchLoader{LoadFunc: func(ctx context.Context, location string) ([]domain.RawCandidate, error) {
		return nil, nil
	}}
	badLoader := &MockBatchLoader{LoadFunc: func(ctx context.Context, location string) ([]domain.RawCandidate, error) {
		return nil, loadErr
	}}
	badIngestor := &MockBatchIngestor{IngestBatchFunc: func(ctx context.Context, c []domain.RawCandidate) (*pipeline.BatchReport, error) {
		return nil, storeErr
	}}

	if err := IngestHandler(badLoader, badIngestor)(context.Background(), &IngestJob{}); !errors.Is(err, loadErr) {
		t.Errorf("expected load error, got %v", err)
	}
	if err := IngestHandler(okLoader, badIngestor)(context.Background(), &IngestJob{}); !errors.Is(err, storeErr) {
		t.Errorf("expected ingest error, got %v", err)
	}
}
