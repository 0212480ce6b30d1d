package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/subzap/internal/domain"
	"github.com/shopspring/decimal"
)

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED

	MerchantName   string `bigquery:"merchant_name"`   // REQUIRED
	MerchantKey    string `bigquery:"merchant_key"`    // REQUIRED, lower-cased grouping key
	RawDescription string `bigquery:"raw_description"` // REQUIRED, verbatim
	PaymentMode    string `bigquery:"payment_mode"`    // REQUIRED

	Amount *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC, positive = debit

	CategoryName bigquery.NullString `bigquery:"category_name"` // NULLABLE
	SourceID     bigquery.NullString `bigquery:"source_id"`     // NULLABLE
	ReversalOf   bigquery.NullString `bigquery:"reversal_of"`   // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

// toRow maps a ledger transaction onto the table layout.
func toRow(tx *domain.Transaction) *TransactionRow {
	return &TransactionRow{
		TransactionID:   tx.ID,
		TransactionDate: tx.Date,
		MerchantName:    tx.MerchantName,
		MerchantKey:     tx.MerchantKey(),
		RawDescription:  tx.RawDescription,
		PaymentMode:     string(tx.PaymentMode),
		Amount:          tx.Amount.Round(2).Rat(),
		CategoryName:    nullString(tx.Category),
		SourceID:        nullString(tx.SourceID),
		ReversalOf:      nullString(tx.ReversalOf),
		CreatedTS:       tx.CreatedAt,
	}
}

// toTransaction maps a stored row back to the domain type.
func (r *TransactionRow) toTransaction() (*domain.Transaction, error) {
	if r.Amount == nil {
		return nil, fmt.Errorf("row %s: amount is NULL", r.TransactionID)
	}
	return &domain.Transaction{
		ID:             r.TransactionID,
		Date:           r.TransactionDate,
		MerchantName:   r.MerchantName,
		RawDescription: r.RawDescription,
		PaymentMode:    domain.ParsePaymentMode(r.PaymentMode),
		Amount:         decimal.NewFromBigRat(r.Amount, 2),
		Category:       r.CategoryName.StringVal,
		SourceID:       r.SourceID.StringVal,
		ReversalOf:     r.ReversalOf.StringVal,
		CreatedAt:      r.CreatedTS,
	}, nil
}
