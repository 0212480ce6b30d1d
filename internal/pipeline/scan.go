package pipeline

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/subzap/internal/logger"
)

// Scanner runs detection and audit over a ledger snapshot. It holds no
// locks and keeps nothing between runs, so scans may overlap with
// ingestion and with each other.
type Scanner struct {
	pipeline *Pipeline
	auditor  Auditor
	now      func() time.Time
}

// NewScanner creates a Scanner.
func NewScanner(reader LedgerReader, detector Detector, auditor Auditor) *Scanner {
	return &Scanner{
		pipeline: NewScanPipeline(reader, detector, auditor),
		auditor:  auditor,
		now:      time.Now,
	}
}

// Run scans the ledger slice selected by req. Records that arrive after the
// snapshot is read are not part of the result.
func (s *Scanner) Run(ctx context.Context, req ScanRequest) (*ScanReport, error) {
	log := logger.FromContext(ctx)
	started := s.now()

	asOf := req.AsOf
	if !asOf.IsValid() {
		asOf = civil.DateOf(started)
	}

	state := &PipelineState{AsOf: asOf, Filter: req.Filter}
	if err := s.pipeline.Execute(ctx, state); err != nil {
		log.Error().Err(err).Str("as_of", asOf.String()).Msg("Scan failed")
		return nil, fmt.Errorf("Scan: %w", err)
	}

	report := &ScanReport{
		AsOf:              asOf,
		SnapshotSize:      len(state.Snapshot),
		Candidates:        state.Candidates,
		Findings:          state.Findings,
		PriceTableVersion: s.auditor.TableVersion(),
		StartedAt:         started.UTC(),
		Duration:          s.now().Sub(started),
	}

	log.Info().
		Str("as_of", asOf.String()).
		Int("snapshot", report.SnapshotSize).
		Int("subscriptions", len(report.Candidates)).
		Int("hikes", len(report.Hikes())).
		Str("price_table_version", report.PriceTableVersion).
		Msg("Scan completed")

	return report, nil
}
