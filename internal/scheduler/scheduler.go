// Package scheduler runs subscription scans on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/logger"
	"github.com/dvloznov/subzap/internal/pipeline"
	"github.com/robfig/cron/v3"
)

// ScanRunner runs one scan. Implemented by *pipeline.Scanner.
type ScanRunner interface {
	Run(ctx context.Context, req pipeline.ScanRequest) (*pipeline.ScanReport, error)
}

// ReportFunc receives every completed scan report.
type ReportFunc func(ctx context.Context, report *pipeline.ScanReport)

// PrepareFunc runs before every scan, e.g. to reload reference prices.
type PrepareFunc func(ctx context.Context) error

// Scheduler triggers periodic scans. Scans that would overlap are skipped.
type Scheduler struct {
	cron     *cron.Cron
	scanner  ScanRunner
	onReport ReportFunc
	prepare  PrepareFunc
	ctx      context.Context

	mu   sync.Mutex
	last *pipeline.ScanReport
}

// New creates a Scheduler. ctx carries the logger and bounds every scan.
// onReport may be nil.
func New(ctx context.Context, scanner ScanRunner, onReport ReportFunc) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		scanner:  scanner,
		onReport: onReport,
		ctx:      ctx,
	}
}

// SetPrepare installs fn to run before each scan. A failing fn is logged
// and the scan still runs.
func (s *Scheduler) SetPrepare(fn PrepareFunc) {
	s.prepare = fn
}

// Register adds the scan task under a six-field cron spec.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.scanTask); err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	log := logger.FromContext(s.ctx)
	log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for a running scan to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log := logger.FromContext(s.ctx)
	log.Info().Msg("Scheduler stopped")
}

// RunNow runs a scan immediately, outside the schedule.
func (s *Scheduler) RunNow() (*pipeline.ScanReport, error) {
	return s.runScan()
}

// Last returns the most recent successful report, or nil.
func (s *Scheduler) Last() *pipeline.ScanReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) scanTask() {
	if _, err := s.runScan(); err != nil {
		log := logger.FromContext(s.ctx)
		log.Error().Err(err).Msg("Scheduled scan failed")
	}
}

func (s *Scheduler) runScan() (*pipeline.ScanReport, error) {
	log := logger.FromContext(s.ctx)

	if s.prepare != nil {
		if err := s.prepare(s.ctx); err != nil {
			log.Warn().Err(err).Msg("Scan preparation failed, scanning with current data")
		}
	}

	report, err := s.scanner.Run(s.ctx, pipeline.ScanRequest{})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	for _, f := range report.Findings {
		if f.Severity == domain.SeverityNone {
			continue
		}
		log.Warn().
			Str("merchant", f.DisplayName).
			Str("severity", string(f.Severity)).
			Str("reference_price", f.ReferencePrice.StringFixed(2)).
			Str("current_price", f.CurrentPrice.StringFixed(2)).
			Str("delta_pct", f.DeltaPct.Shift(2).StringFixed(1)).
			Msg("Subscription price above reference")
	}
	for _, c := range report.Candidates {
		if c.Status == domain.StatusLapsed {
			log.Info().
				Str("merchant", c.DisplayName).
				Str("last_seen", c.LastSeen.String()).
				Msg("Subscription appears lapsed")
		}
	}

	if s.onReport != nil {
		s.onReport(s.ctx, report)
	}
	return report, nil
}
