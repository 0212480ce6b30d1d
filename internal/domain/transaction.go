package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// PaymentMode is the best-effort channel a transaction was paid through.
type PaymentMode string

const (
	PaymentUPI        PaymentMode = "UPI"
	PaymentCard       PaymentMode = "Card"
	PaymentCash       PaymentMode = "Cash"
	PaymentNetBanking PaymentMode = "NetBanking"
	PaymentUnknown    PaymentMode = "Unknown"
)

// ParsePaymentMode maps a stored value back to a PaymentMode.
// Anything unrecognised becomes PaymentUnknown.
func ParsePaymentMode(s string) PaymentMode {
	switch PaymentMode(s) {
	case PaymentUPI, PaymentCard, PaymentCash, PaymentNetBanking:
		return PaymentMode(s)
	default:
		return PaymentUnknown
	}
}

// RawCandidate is one transaction line as emitted by the document-ingestion
// collaborator. Nothing about it is validated.
type RawCandidate struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	SourceID    string `json:"source_id"`

	// Optional hints proposed by the extractor.
	Category     string `json:"category,omitempty"`
	MerchantHint string `json:"merchant_name,omitempty"`
}

// Transaction is one accepted ledger record.
// Records are never updated in place; corrections are a new record plus a reversal.
type Transaction struct {
	ID             string          `json:"id"`
	Date           civil.Date      `json:"date"`
	MerchantName   string          `json:"merchant_name"`
	RawDescription string          `json:"raw_description"` // verbatim source text
	PaymentMode    PaymentMode     `json:"payment_mode"`
	Amount         decimal.Decimal `json:"amount"` // positive = debit/spend
	Category       string          `json:"category,omitempty"`

	SourceID   string    `json:"source_id,omitempty"`
	ReversalOf string    `json:"reversal_of,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DedupKey is the identity of a ledger record.
type DedupKey struct {
	Date           civil.Date
	RawDescription string
	Amount         string // fixed two-digit rendering
}

// Key returns the deduplication key of t.
func (t *Transaction) Key() DedupKey {
	return DedupKey{
		Date:           t.Date,
		RawDescription: t.RawDescription,
		Amount:         FormatAmount(t.Amount),
	}
}

// MerchantKey returns the grouping identity of the merchant.
func (t *Transaction) MerchantKey() string {
	return MerchantKey(t.MerchantName)
}

// MerchantKey lowercases a merchant name and collapses internal whitespace.
func MerchantKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// FormatAmount renders an amount with exactly two fraction digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Reverse builds the explicit reversal record for t, dated on date.
// The reversal carries the negated amount and the same raw description, so
// its dedup key never collides with the original.
func Reverse(t *Transaction, date civil.Date) *Transaction {
	return &Transaction{
		Date:           date,
		MerchantName:   t.MerchantName,
		RawDescription: t.RawDescription,
		PaymentMode:    t.PaymentMode,
		Amount:         t.Amount.Neg(),
		Category:       t.Category,
		SourceID:       t.SourceID,
		ReversalOf:     t.ID,
	}
}
