package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Period is the inferred billing cadence of a subscription.
type Period string

const (
	PeriodMonthly   Period = "monthly"
	PeriodQuarterly Period = "quarterly"
	PeriodAnnual    Period = "annual"
	PeriodIrregular Period = "irregular"
)

// SubscriptionStatus says whether charges are still arriving on schedule.
type SubscriptionStatus string

const (
	StatusActive SubscriptionStatus = "active"
	StatusLapsed SubscriptionStatus = "lapsed"
)

// Observation is one charge belonging to a subscription candidate.
type Observation struct {
	Date          civil.Date      `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id,omitempty"`
}

// SubscriptionCandidate is a recurring charge derived by one detector scan.
// It is not persisted and never shared between scans.
type SubscriptionCandidate struct {
	MerchantKey     string        `json:"merchant_key"`
	DisplayName     string        `json:"display_name"`
	ObservedAmounts []Observation `json:"observed_amounts"` // date ascending
	InferredPeriod  Period        `json:"inferred_period"`
	Confidence      float64       `json:"confidence"`

	TypicalDays  int                `json:"typical_days"`
	FirstSeen    civil.Date         `json:"first_seen"`
	LastSeen     civil.Date         `json:"last_seen"`
	NextExpected civil.Date         `json:"next_expected"`
	Status       SubscriptionStatus `json:"status"`
}

// Occurrences returns the number of observed charges.
func (c *SubscriptionCandidate) Occurrences() int {
	return len(c.ObservedAmounts)
}

// Latest returns the most recent observation.
func (c *SubscriptionCandidate) Latest() (Observation, bool) {
	if len(c.ObservedAmounts) == 0 {
		return Observation{}, false
	}
	return c.ObservedAmounts[len(c.ObservedAmounts)-1], true
}
