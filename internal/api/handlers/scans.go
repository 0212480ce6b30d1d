package handlers

import (
	"context"
	"net/http"

	"github.com/dvloznov/subzap/internal/api/middleware"
	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/pipeline"
	"github.com/rs/zerolog"
)

// ScanRunner is implemented by *pipeline.Scanner.
type ScanRunner interface {
	Run(ctx context.Context, req pipeline.ScanRequest) (*pipeline.ScanReport, error)
}

// ScansHandler serves the derived views: subscriptions and price findings.
// Both are computed per request from a fresh ledger snapshot.
type ScansHandler struct {
	scanner ScanRunner
	log     zerolog.Logger
}

// NewScansHandler creates a new scans handler.
func NewScansHandler(scanner ScanRunner, log zerolog.Logger) *ScansHandler {
	return &ScansHandler{
		scanner: scanner,
		log:     log,
	}
}

func (h *ScansHandler) run(w http.ResponseWriter, r *http.Request) (*pipeline.ScanReport, bool) {
	filter, err := parseFilter(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	asOf, err := parseDate(r.URL.Query().Get("as_of"), "as_of")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	report, err := h.scanner.Run(r.Context(), pipeline.ScanRequest{AsOf: asOf, Filter: filter})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to run scan")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to run scan")
		return nil, false
	}
	return report, true
}

// ListSubscriptions handles GET /api/subscriptions
// Optional status=active|lapsed narrows the result.
func (h *ScansHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	report, ok := h.run(w, r)
	if !ok {
		return
	}

	status := domain.SubscriptionStatus(r.URL.Query().Get("status"))
	subs := make([]domain.SubscriptionCandidate, 0, len(report.Candidates))
	for _, c := range report.Candidates {
		if status == "" || c.Status == status {
			subs = append(subs, c)
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"as_of":         report.AsOf,
		"snapshot_size": report.SnapshotSize,
		"subscriptions": subs,
		"count":         len(subs),
	})
}

// ListFindings handles GET /api/findings
// Optional severity=none|minor|hike narrows the result.
func (h *ScansHandler) ListFindings(w http.ResponseWriter, r *http.Request) {
	report, ok := h.run(w, r)
	if !ok {
		return
	}

	severity := domain.Severity(r.URL.Query().Get("severity"))
	findings := make([]domain.AuditFinding, 0, len(report.Findings))
	for _, f := range report.Findings {
		if severity == "" || f.Severity == severity {
			findings = append(findings, f)
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"as_of":               report.AsOf,
		"price_table_version": report.PriceTableVersion,
		"findings":            findings,
		"count":               len(findings),
	})
}
