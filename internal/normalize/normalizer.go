// Package normalize turns raw statement lines into ledger transactions.
package normalize

import (
	"strings"

	"github.com/dvloznov/subzap/internal/domain"
)

// Options configure a Normalizer.
type Options struct {
	// DefaultYear completes dates printed without a year ("05 Jan").
	// Zero means such dates fail with ErrMissingDate.
	DefaultYear int

	// Rules overrides DefaultRules when non-nil.
	Rules *Rules
}

// Normalizer canonicalizes RawCandidates. It holds no mutable state and is
// safe for concurrent use.
type Normalizer struct {
	defaultYear int
	cleaner     *cleaner
	categories  []CategoryRule
}

// New creates a Normalizer.
func New(opts Options) *Normalizer {
	rules := DefaultRules()
	if opts.Rules != nil {
		rules = *opts.Rules
	}
	return &Normalizer{
		defaultYear: opts.DefaultYear,
		cleaner:     newCleaner(rules),
		categories:  rules.Categories,
	}
}

// Normalize converts one candidate into an unsaved Transaction.
// ID and CreatedAt are left for the ledger store to assign. The returned
// RawDescription is byte-identical to c.Description.
func (n *Normalizer) Normalize(c domain.RawCandidate) (*domain.Transaction, error) {
	if strings.TrimSpace(c.Description) == "" {
		return nil, &Error{Kind: ErrEmptyDescription, Field: "description", Input: c.Description}
	}

	dateText := c.Date
	if strings.TrimSpace(dateText) == "" {
		dateText = leadingDate(c.Description)
	}
	date, err := parseDate(dateText, n.defaultYear)
	if err != nil {
		return nil, &Error{Kind: ErrMissingDate, Field: "date", Input: c.Date, Err: err}
	}

	amount, err := parseAmount(c.Amount)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidAmount, Field: "amount", Input: c.Amount, Err: err}
	}

	merchant := n.cleaner.merchantName(c.Description, c.MerchantHint)

	return &domain.Transaction{
		Date:           date,
		MerchantName:   merchant,
		RawDescription: c.Description,
		PaymentMode:    classifyPaymentMode(c.Description),
		Amount:         amount,
		Category:       n.categorize(c, merchant),
		SourceID:       c.SourceID,
	}, nil
}

// categorize prefers the extractor's hint, then the first keyword rule hit.
func (n *Normalizer) categorize(c domain.RawCandidate, merchant string) string {
	if hint := strings.TrimSpace(c.Category); hint != "" {
		return hint
	}

	joined := " " + strings.Join(markerTokens(c.Description+" "+merchant), " ") + " "
	for _, rule := range n.categories {
		for _, kw := range rule.Keywords {
			kw = strings.Join(strings.Fields(strings.ToUpper(kw)), " ")
			if kw != "" && strings.Contains(joined, " "+kw+" ") {
				return rule.Name
			}
		}
	}
	return ""
}
