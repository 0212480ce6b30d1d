// Package recurrence finds subscription-like charges in a ledger snapshot.
//
// A scan is a pure function of its input: the same transactions and AsOf
// date always give the same candidates in the same order with the same
// confidence values. Nothing is carried between scans.
package recurrence

import (
	"math"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/subzap/internal/domain"
)

// Detector groups transactions by merchant and infers billing cadence.
type Detector struct {
	cfg Config
}

// New creates a Detector. Zero config fields take their defaults.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

// Detect returns the recurring charges found in txs, sorted by merchant key.
// Only debits take part, and a charge that has been reversed is ignored.
// Status is judged relative to asOf; a zero asOf means the latest date in txs.
func (d *Detector) Detect(txs []*domain.Transaction, asOf civil.Date) []domain.SubscriptionCandidate {
	groups, latest := d.group(txs)
	if !asOf.IsValid() {
		asOf = latest
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []domain.SubscriptionCandidate
	for _, key := range keys {
		if c, ok := d.evaluate(key, groups[key], asOf); ok {
			out = append(out, c)
		}
	}
	return out
}

// group buckets debits by merchant key, each bucket in a total order.
func (d *Detector) group(txs []*domain.Transaction) (map[string][]*domain.Transaction, civil.Date) {
	reversed := make(map[string]bool)
	for _, tx := range txs {
		if tx.ReversalOf != "" {
			reversed[tx.ReversalOf] = true
		}
	}

	var latest civil.Date
	groups := make(map[string][]*domain.Transaction)
	for _, tx := range txs {
		if !tx.Amount.IsPositive() || (tx.ID != "" && reversed[tx.ID]) {
			continue
		}
		key := tx.MerchantKey()
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], tx)
		if tx.Date.After(latest) {
			latest = tx.Date
		}
	}

	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool {
			a, b := g[i], g[j]
			if a.Date != b.Date {
				return a.Date.Before(b.Date)
			}
			if c := a.Amount.Cmp(b.Amount); c != 0 {
				return c < 0
			}
			if a.RawDescription != b.RawDescription {
				return a.RawDescription < b.RawDescription
			}
			return a.ID < b.ID
		})
	}
	return groups, latest
}

// cadenceDeltas returns day gaps between consecutive same-amount charges.
// If no amount repeats, the group is treated as variable billing and the
// gaps between all consecutive charges are used instead.
func cadenceDeltas(group []*domain.Transaction) []int {
	var (
		order  []string
		series = make(map[string][]civil.Date)
	)
	for _, tx := range group {
		amt := domain.FormatAmount(tx.Amount)
		if _, seen := series[amt]; !seen {
			order = append(order, amt)
		}
		series[amt] = append(series[amt], tx.Date)
	}

	var deltas []int
	for _, amt := range order {
		dates := series[amt]
		for i := 1; i < len(dates); i++ {
			deltas = append(deltas, dates[i].DaysSince(dates[i-1]))
		}
	}
	if len(deltas) > 0 {
		return deltas
	}

	for i := 1; i < len(group); i++ {
		deltas = append(deltas, group[i].Date.DaysSince(group[i-1].Date))
	}
	return deltas
}

// classify picks the band holding the most deltas and returns the deltas
// inside it. ok is false when no delta lands in any band.
func (d *Detector) classify(deltas []int) (band Band, inBand []int, ok bool) {
	best := -1
	for i, b := range d.cfg.Bands {
		var hits []int
		for _, delta := range deltas {
			if b.Contains(delta) {
				hits = append(hits, delta)
			}
		}
		if len(hits) > len(inBand) {
			best, inBand = i, hits
		}
	}
	if best < 0 {
		return Band{}, nil, false
	}
	return d.cfg.Bands[best], inBand, true
}

func (d *Detector) evaluate(key string, group []*domain.Transaction, asOf civil.Date) (domain.SubscriptionCandidate, bool) {
	if len(group) < 2 {
		return domain.SubscriptionCandidate{}, false
	}

	deltas := cadenceDeltas(group)
	band, inBand, ok := d.classify(deltas)
	if !ok {
		return domain.SubscriptionCandidate{}, false
	}
	ratio := float64(len(inBand)) / float64(len(deltas))
	if ratio < *d.cfg.MinInBandRatio {
		return domain.SubscriptionCandidate{}, false
	}

	observed := make([]domain.Observation, len(group))
	for i, tx := range group {
		observed[i] = domain.Observation{Date: tx.Date, Amount: tx.Amount, TransactionID: tx.ID}
	}

	first, last := group[0], group[len(group)-1]
	typical := typicalDays(inBand)

	status := domain.StatusActive
	if float64(asOf.DaysSince(last.Date)) > float64(band.MaxDays)*d.cfg.LapseFactor {
		status = domain.StatusLapsed
	}

	return domain.SubscriptionCandidate{
		MerchantKey:     key,
		DisplayName:     last.MerchantName,
		ObservedAmounts: observed,
		InferredPeriod:  band.Period,
		Confidence:      d.confidence(len(group), inBand, ratio),
		TypicalDays:     typical,
		FirstSeen:       first.Date,
		LastSeen:        last.Date,
		NextExpected:    last.Date.AddDays(typical),
		Status:          status,
	}, true
}

// confidence is (1 - 1/n) * 1/(1 + variance/scale) * inBandRatio, rounded to
// four places. It rises with occurrence count n, falls with the variance of
// the in-band deltas, and stays within [0, 1].
func (d *Detector) confidence(n int, inBand []int, ratio float64) float64 {
	countFactor := 1 - 1/float64(n)

	varianceFactor := 1.0
	if d.cfg.VarianceScaleDays > 0 {
		varianceFactor = 1 / (1 + variance(inBand)/d.cfg.VarianceScaleDays)
	}

	c := countFactor * varianceFactor * ratio
	c = math.Round(c*10000) / 10000
	return math.Max(0, math.Min(1, c))
}

func variance(xs []int) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		diff := float64(x) - mean
		sq += diff * diff
	}
	return sq / float64(len(xs))
}

// typicalDays is the lower median of the in-band deltas.
func typicalDays(inBand []int) int {
	sorted := append([]int(nil), inBand...)
	sort.Ints(sorted)
	return sorted[(len(sorted)-1)/2]
}
