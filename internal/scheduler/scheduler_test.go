package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/pipeline"
	"github.com/shopspring/decimal"
)

// MockScanRunner is a mock implementation of ScanRunner for testing.
type MockScanRunner struct {
	RunFunc func(ctx context.Context, req pipeline.ScanRequest) (*pipeline.ScanReport, error)
}

func (m *MockScanRunner) Run(ctx context.Context, req pipeline.ScanRequest) (*pipeline.ScanReport, error) {
	return m.RunFunc(ctx, req)
}

func TestRegister_RejectsBadSpec(t *testing.T) {
	s := New(context.Background(), &MockScanRunner{}, nil)
	if err := s.Register("0 7 * * *"); err == nil {
		t.Error("expected error for five-field spec")
	}
	if err := s.Register("0 0 7 * * *"); err != nil {
		t.Errorf("six-field spec rejected: %v", err)
	}
}

func TestRunNow(t *testing.T) {
	report := &pipeline.ScanReport{
		Findings: []domain.AuditFinding{{
			DisplayName:    "Netflix",
			ReferencePrice: decimal.RequireFromString("649"),
			CurrentPrice:   decimal.RequireFromString("799"),
			DeltaPct:       decimal.RequireFromString("0.2311"),
			Severity:       domain.SeverityHike,
		}},
	}
	runner := &MockScanRunner{RunFunc: func(ctx context.Context, req pipeline.ScanRequest) (*pipeline.ScanReport, error) {
		return report, nil
	}}

	var delivered *pipeline.ScanReport
	s := New(context.Background(), runner, func(ctx context.Context, r *pipeline.ScanReport) {
		delivered = r
	})

	if s.Last() != nil {
		t.Fatal("Last should be nil before any scan")
	}
	got, err := s.RunNow()
	if err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if got != report || delivered != report || s.Last() != report {
		t.Error("report not returned, delivered and kept")
	}
}

func TestRunNow_Error(t *testing.T) {
	scanErr := errors.New("ledger unavailable")
	runner := &MockScanRunner{RunFunc: func(ctx context.Context, req pipeline.ScanRequest) (*pipeline.ScanReport, error) {
		return nil, scanErr
	}}
	called := false
	s := New(context.Background(), runner, func(ctx context.Context, r *pipeline.ScanReport) { called = true })

	if _, err := s.RunNow(); !errors.Is(err, scanErr) {
		t.Errorf("expected scan error, got %v", err)
	}
	if called || s.Last() != nil {
		t.Error("failed scan must not be delivered or kept")
	}
}

func TestRunNow_PrepareRunsFirst(t *testing.T) {
	var calls []string
	runner := &MockScanRunner{RunFunc: func(ctx context.Context, req pipeline.ScanRequest) (*pipeline.ScanReport, error) {
		calls = append(calls, "scan")
		return &pipeline.ScanReport{}, nil
	}}
	s := New(context.Background(), runner, nil)

	s.SetPrepare(func(ctx context.Context) error {
		calls = append(calls, "prepare")
		return nil
	})
	if _, err := s.RunNow(); err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}

	s.SetPrepare(func(ctx context.Context) error {
		calls = append(calls, "prepare")
		return errors.New("price file unreadable")
	})
	if _, err := s.RunNow(); err != nil {
		t.Fatalf("a failed prepare should not fail the scan: %v", err)
	}

	want := []string{"prepare", "scan", "prepare", "scan"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestStartStop(t *testing.T) {
	s := New(context.Background(), &MockScanRunner{}, nil)
	if err := s.Register("@every 1h"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	s.Start()
	s.Stop()
}
