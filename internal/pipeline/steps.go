package pipeline

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/ledger"
)

// PipelineStep represents a single step of a scan.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all steps of one scan.
type PipelineState struct {
	AsOf       civil.Date
	Filter     ledger.Filter
	Snapshot   []*domain.Transaction
	Candidates []domain.SubscriptionCandidate
	Findings   []domain.AuditFinding
}

// Step 1: SnapshotStep reads the ledger slice the scan runs over.
type SnapshotStep struct {
	Ledger LedgerReader
}

func (s *SnapshotStep) Execute(ctx context.Context, state *PipelineState) error {
	txs, err := s.Ledger.Scan(ctx, state.Filter)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	state.Snapshot = txs
	return nil
}

// Step 2: DetectStep finds recurring charges in the snapshot.
type DetectStep struct {
	Detector Detector
}

func (s *DetectStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Candidates = s.Detector.Detect(state.Snapshot, state.AsOf)
	return nil
}

// Step 3: AuditStep grades every candidate against reference prices.
type AuditStep struct {
	Auditor Auditor
}

func (s *AuditStep) Execute(ctx context.Context, state *PipelineState) error {
	findings, err := s.Auditor.AuditAll(ctx, state.Candidates)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	state.Findings = findings
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewScanPipeline creates the standard snapshot, detect, audit pipeline.
func NewScanPipeline(reader LedgerReader, detector Detector, auditor Auditor) *Pipeline {
	return NewPipeline(
		&SnapshotStep{Ledger: reader},
		&DetectStep{Detector: detector},
		&AuditStep{Auditor: auditor},
	)
}
