package recurrence

import (
	"fmt"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/subzap/internal/domain"
	"github.com/shopspring/decimal"
)

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func charges(merchant, amount string, dates ...string) []*domain.Transaction {
	var out []*domain.Transaction
	for i, d := range dates {
		out = append(out, &domain.Transaction{
			ID:             fmt.Sprintf("%s-%d", merchant, i),
			Date:           date(d),
			MerchantName:   merchant,
			RawDescription: "ACH " + merchant + " " + d,
			Amount:         decimal.RequireFromString(amount),
		})
	}
	return out
}

func TestDetect_MonthlyConfidenceGrowsWithOccurrences(t *testing.T) {
	det := New(DefaultConfig())

	three := det.Detect(charges("Netflix", "649.00", "2024-01-05", "2024-02-04", "2024-03-06"), civil.Date{})
	two := det.Detect(charges("Netflix", "649.00", "2024-01-05", "2024-02-04"), civil.Date{})

	if len(three) != 1 || len(two) != 1 {
		t.Fatalf("expected one candidate each, got %d and %d", len(three), len(two))
	}
	if three[0].InferredPeriod != domain.PeriodMonthly {
		t.Errorf("InferredPeriod = %s, want monthly", three[0].InferredPeriod)
	}
	if three[0].Confidence <= two[0].Confidence {
		t.Errorf("confidence with 3 occurrences (%v) should exceed 2 occurrences (%v)", three[0].Confidence, two[0].Confidence)
	}
	if three[0].Confidence < 0 || three[0].Confidence > 1 {
		t.Errorf("confidence %v out of [0,1]", three[0].Confidence)
	}

	c := three[0]
	if c.MerchantKey != "netflix" || c.DisplayName != "Netflix" {
		t.Errorf("identity = %q/%q", c.MerchantKey, c.DisplayName)
	}
	if c.FirstSeen != date("2024-01-05") || c.LastSeen != date("2024-03-06") {
		t.Errorf("seen range = %s..%s", c.FirstSeen, c.LastSeen)
	}
	if c.TypicalDays != 30 || c.NextExpected != date("2024-04-05") {
		t.Errorf("TypicalDays = %d NextExpected = %s, want 30 and 2024-04-05", c.TypicalDays, c.NextExpected)
	}
	if c.Occurrences() != 3 {
		t.Errorf("Occurrences() = %d, want 3", c.Occurrences())
	}
}

func TestDetect_ConfidenceFallsWithVariance(t *testing.T) {
	det := New(DefaultConfig())

	steady := det.Detect(charges("Spotify", "119.00", "2024-01-01", "2024-01-31", "2024-03-01", "2024-03-31"), civil.Date{})
	jittery := det.Detect(charges("Spotify", "119.00", "2024-01-01", "2024-01-28", "2024-03-01", "2024-03-28"), civil.Date{})

	if len(steady) != 1 || len(jittery) != 1 {
		t.Fatalf("expected one candidate each, got %d and %d", len(steady), len(jittery))
	}
	if steady[0].Confidence <= jittery[0].Confidence {
		t.Errorf("steady cadence confidence %v should exceed jittery %v", steady[0].Confidence, jittery[0].Confidence)
	}
}

func TestDetect_Exclusions(t *testing.T) {
	tests := []struct {
		name string
		txs  []*domain.Transaction
	}{
		{"single occurrence", charges("Hotstar", "299.00", "2024-01-10")},
		{"irregular spend", charges("Zomato", "450.00", "2024-01-01", "2024-01-04", "2024-01-19", "2024-02-27")},
		{"same day repeat", charges("Uber", "120.00", "2024-01-01", "2024-01-01")},
		{"credits only", charges("Refund Co", "-649.00", "2024-01-05", "2024-02-04", "2024-03-06")},
	}

	det := New(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := det.Detect(tt.txs, civil.Date{}); len(got) != 0 {
				t.Errorf("Detect() = %+v, want no candidates", got)
			}
		})
	}
}

func TestDetect_Periods(t *testing.T) {
	tests := []struct {
		name  string
		dates []string
		want  domain.Period
	}{
		{"quarterly", []string{"2024-01-15", "2024-04-15", "2024-07-15"}, domain.PeriodQuarterly},
		{"annual", []string{"2022-06-01", "2023-06-01", "2024-06-01"}, domain.PeriodAnnual},
	}

	det := New(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := det.Detect(charges("Amazon Prime", "1499.00", tt.dates...), civil.Date{})
			if len(got) != 1 {
				t.Fatalf("expected one candidate, got %d", len(got))
			}
			if got[0].InferredPeriod != tt.want {
				t.Errorf("InferredPeriod = %s, want %s", got[0].InferredPeriod, tt.want)
			}
		})
	}
}

func TestDetect_VariableAmountKeepsHistory(t *testing.T) {
	txs := []*domain.Transaction{}
	for i, c := range []struct{ d, amt string }{
		{"2024-01-10", "812.40"},
		{"2024-02-09", "765.10"},
		{"2024-03-11", "901.00"},
	} {
		txs = append(txs, &domain.Transaction{
			ID:             fmt.Sprintf("bescom-%d", i),
			Date:           date(c.d),
			MerchantName:   "BESCOM",
			RawDescription: "BILLPAY BESCOM " + c.d,
			Amount:         decimal.RequireFromString(c.amt),
		})
	}

	got := New(DefaultConfig()).Detect(txs, civil.Date{})
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %d", len(got))
	}
	if len(got[0].ObservedAmounts) != 3 {
		t.Fatalf("ObservedAmounts has %d entries, want 3", len(got[0].ObservedAmounts))
	}
	latest, _ := got[0].Latest()
	if !latest.Amount.Equal(decimal.RequireFromString("901.00")) {
		t.Errorf("latest amount = %s, want 901.00", latest.Amount)
	}
}

func TestDetect_PriceChangeStillMonthly(t *testing.T) {
	txs := charges("Netflix", "649.00", "2024-01-05", "2024-02-04", "2024-03-06")
	txs = append(txs, charges("Netflix", "799.00", "2024-04-05", "2024-05-05")...)
	txs[3].ID, txs[4].ID = "netflix-new-0", "netflix-new-1"

	got := New(DefaultConfig()).Detect(txs, civil.Date{})
	if len(got) != 1 || got[0].InferredPeriod != domain.PeriodMonthly {
		t.Fatalf("Detect() = %+v, want one monthly candidate", got)
	}
	latest, _ := got[0].Latest()
	if !latest.Amount.Equal(decimal.RequireFromString("799.00")) {
		t.Errorf("latest amount = %s, want 799.00", latest.Amount)
	}
}

func TestDetect_Status(t *testing.T) {
	txs := charges("Netflix", "649.00", "2024-01-05", "2024-02-04", "2024-03-06")
	det := New(DefaultConfig())

	active := det.Detect(txs, date("2024-03-20"))
	if active[0].Status != domain.StatusActive {
		t.Errorf("Status = %s, want active", active[0].Status)
	}

	lapsed := det.Detect(txs, date("2024-06-01"))
	if lapsed[0].Status != domain.StatusLapsed {
		t.Errorf("Status = %s, want lapsed", lapsed[0].Status)
	}
}

func TestDetect_IgnoresReversedCharges(t *testing.T) {
	txs := charges("Netflix", "649.00", "2024-01-05", "2024-02-04")
	txs = append(txs, domain.Reverse(txs[1], date("2024-02-06")))

	if got := New(DefaultConfig()).Detect(txs, civil.Date{}); len(got) != 0 {
		t.Errorf("Detect() = %+v, want the reversed charge to break the series", got)
	}
}

func TestDetect_Deterministic(t *testing.T) {
	txs := append(charges("Netflix", "649.00", "2024-01-05", "2024-02-04", "2024-03-06"),
		charges("Spotify", "119.00", "2024-01-10", "2024-02-10", "2024-03-12")...)
	reversed := make([]*domain.Transaction, len(txs))
	for i, tx := range txs {
		reversed[len(txs)-1-i] = tx
	}

	det := New(DefaultConfig())
	a := det.Detect(txs, date("2024-03-31"))
	b := det.Detect(reversed, date("2024-03-31"))

	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("expected two candidates each, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i].MerchantKey != b[i].MerchantKey || a[i].Confidence != b[i].Confidence {
			t.Errorf("candidate %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
	if a[0].MerchantKey != "netflix" || a[1].MerchantKey != "spotify" {
		t.Errorf("candidates not sorted by merchant key: %s, %s", a[0].MerchantKey, a[1].MerchantKey)
	}
}

func TestDetect_ExplicitZeroInBandRatio(t *testing.T) {
	// One monthly gap, then two gaps outside every band.
	txs := charges("Gym", "1500.00", "2024-01-05", "2024-02-04", "2024-06-01", "2024-11-01")

	if got := New(Config{}).Detect(txs, civil.Date{}); len(got) != 0 {
		t.Fatalf("default ratio should reject the group, got %+v", got)
	}

	got := New(Config{MinInBandRatio: Ratio(0)}).Detect(txs, civil.Date{})
	if len(got) != 1 {
		t.Fatalf("ratio 0 should accept the group, got %d candidates", len(got))
	}
	if got[0].InferredPeriod != domain.PeriodMonthly {
		t.Errorf("InferredPeriod = %s, want monthly", got[0].InferredPeriod)
	}
	if err := (Config{MinInBandRatio: Ratio(0)}).Validate(); err != nil {
		t.Errorf("ratio 0 should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error = %v", err)
	}

	bad := DefaultConfig()
	bad.Bands = append(bad.Bands, Band{Period: domain.PeriodMonthly, MinDays: 40, MaxDays: 30})
	if err := bad.Validate(); err == nil {
		t.Error("expected error for inverted band")
	}

	bad = DefaultConfig()
	bad.MinInBandRatio = Ratio(1.5)
	if err := bad.Validate(); err == nil {
		t.Error("expected error for ratio above 1")
	}
}
