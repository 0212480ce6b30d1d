package domain

import "github.com/shopspring/decimal"

// Severity grades how far a subscription's current charge has drifted above
// its reference price.
type Severity string

const (
	SeverityNone  Severity = "none"
	SeverityMinor Severity = "minor"
	SeverityHike  Severity = "hike"
)

// SubscriptionRef identifies the candidate a finding was produced for.
type SubscriptionRef struct {
	MerchantKey string `json:"merchant_key"`
	Period      Period `json:"period"`
}

// AuditFinding is the result of comparing one subscription to the reference table.
type AuditFinding struct {
	Subscription   SubscriptionRef `json:"subscription"`
	DisplayName    string          `json:"display_name"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	DeltaPct       decimal.Decimal `json:"delta_pct"` // fraction, 0.231 == 23.1%
	Severity       Severity        `json:"severity"`

	// NoReference is set when the table had no price for the merchant.
	// ReferencePrice and DeltaPct are zero in that case.
	NoReference  bool   `json:"no_reference"`
	Plan         string `json:"plan,omitempty"`
	TableVersion string `json:"table_version,omitempty"`
}
