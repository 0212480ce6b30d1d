package domain

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

func TestMerchantKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Netflix", "netflix"},
		{"  Amazon   Prime ", "amazon prime"},
		{"STARBUCKS\tCOFFEE", "starbucks coffee"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := MerchantKey(tt.input); got != tt.want {
				t.Errorf("MerchantKey(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestKey_AmountScaleInsensitive(t *testing.T) {
	date := civil.Date{Year: 2024, Month: 1, Day: 5}
	a := &Transaction{Date: date, RawDescription: "NETFLIX", Amount: decimal.RequireFromString("649")}
	b := &Transaction{Date: date, RawDescription: "NETFLIX", Amount: decimal.RequireFromString("649.00")}

	if a.Key() != b.Key() {
		t.Errorf("expected equal keys, got %+v and %+v", a.Key(), b.Key())
	}
}

func TestReverse(t *testing.T) {
	orig := &Transaction{
		ID:             "abc",
		Date:           civil.Date{Year: 2024, Month: 1, Day: 5},
		MerchantName:   "Netflix",
		RawDescription: "UPI/NETFLIX/netflix@icici",
		PaymentMode:    PaymentUPI,
		Amount:         decimal.RequireFromString("649.00"),
	}

	rev := Reverse(orig, civil.Date{Year: 2024, Month: 1, Day: 9})

	if rev.ReversalOf != "abc" {
		t.Errorf("ReversalOf = %q, want abc", rev.ReversalOf)
	}
	if !rev.Amount.Equal(decimal.RequireFromString("-649")) {
		t.Errorf("Amount = %s, want -649", rev.Amount)
	}
	if rev.RawDescription != orig.RawDescription {
		t.Errorf("raw description changed: %q", rev.RawDescription)
	}
	if rev.Key() == orig.Key() {
		t.Error("reversal must not share the original's dedup key")
	}
}

func TestParsePaymentMode(t *testing.T) {
	if got := ParsePaymentMode("Card"); got != PaymentCard {
		t.Errorf("got %q, want Card", got)
	}
	if got := ParsePaymentMode("Other"); got != PaymentUnknown {
		t.Errorf("got %q, want Unknown", got)
	}
}
