// Package audit compares detected subscriptions against reference prices.
package audit

import (
	"context"
	"fmt"

	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/pricetable"
)

const (
	// deltaPlaces is the rounding of the reported delta_pct.
	deltaPlaces = 4
	// gradePrecision is the division precision used for grading.
	gradePrecision = 16
)

// Auditor scores subscriptions against a reference price table.
type Auditor struct {
	table      pricetable.Table
	thresholds Thresholds
}

// New creates an Auditor reading from table.
func New(table pricetable.Table, thresholds Thresholds) *Auditor {
	return &Auditor{table: table, thresholds: thresholds}
}

// Audit grades one candidate. A merchant missing from the table yields a
// finding with NoReference set and severity none. Table failures are
// returned as errors.
func (a *Auditor) Audit(ctx context.Context, c domain.SubscriptionCandidate) (domain.AuditFinding, error) {
	latest, ok := c.Latest()
	if !ok {
		return domain.AuditFinding{}, fmt.Errorf("Audit %s: candidate has no observations", c.MerchantKey)
	}

	finding := domain.AuditFinding{
		Subscription: domain.SubscriptionRef{MerchantKey: c.MerchantKey, Period: c.InferredPeriod},
		DisplayName:  c.DisplayName,
		CurrentPrice: latest.Amount,
		Severity:     domain.SeverityNone,
	}

	ref, found, err := a.table.Lookup(ctx, c.MerchantKey)
	if err != nil {
		return domain.AuditFinding{}, fmt.Errorf("Audit %s: lookup: %w", c.MerchantKey, err)
	}
	if !found || !ref.Price.IsPositive() {
		finding.NoReference = true
		return finding, nil
	}

	// Graded unrounded so a delta just above a bound is never rounded onto it.
	delta := latest.Amount.Sub(ref.Price).DivRound(ref.Price, gradePrecision)

	finding.ReferencePrice = ref.Price
	finding.DeltaPct = delta.Round(deltaPlaces)
	finding.Severity = a.thresholds.Severity(delta)
	finding.Plan = ref.Plan
	finding.TableVersion = ref.Version
	return finding, nil
}

// AuditAll audits every candidate, keeping input order. The first table
// failure stops the pass.
func (a *Auditor) AuditAll(ctx context.Context, candidates []domain.SubscriptionCandidate) ([]domain.AuditFinding, error) {
	findings := make([]domain.AuditFinding, 0, len(candidates))
	for _, c := range candidates {
		f, err := a.Audit(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("AuditAll: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// TableVersion reports the version of the reference table, if it has one.
func (a *Auditor) TableVersion() string {
	return pricetable.VersionOf(a.table)
}
