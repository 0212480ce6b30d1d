package audit

import (
	"fmt"

	"github.com/dvloznov/subzap/internal/domain"
	"github.com/shopspring/decimal"
)

// Thresholds grade delta_pct, expressed as a fraction (0.05 == 5%).
// delta <= MinorAbove is none, delta <= HikeAbove is minor, above is hike.
type Thresholds struct {
	MinorAbove decimal.Decimal
	HikeAbove  decimal.Decimal
}

// DefaultThresholds returns 5% and 15%.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinorAbove: decimal.RequireFromString("0.05"),
		HikeAbove:  decimal.RequireFromString("0.15"),
	}
}

// ParseThresholds reads both bounds from decimal strings such as "0.05".
// Empty strings keep the defaults.
func ParseThresholds(minorAbove, hikeAbove string) (Thresholds, error) {
	t := DefaultThresholds()
	if minorAbove != "" {
		v, err := decimal.NewFromString(minorAbove)
		if err != nil {
			return Thresholds{}, fmt.Errorf("ParseThresholds: minor_above %q: %w", minorAbove, err)
		}
		t.MinorAbove = v
	}
	if hikeAbove != "" {
		v, err := decimal.NewFromString(hikeAbove)
		if err != nil {
			return Thresholds{}, fmt.Errorf("ParseThresholds: hike_above %q: %w", hikeAbove, err)
		}
		t.HikeAbove = v
	}
	return t, t.Validate()
}

// Validate requires 0 <= MinorAbove <= HikeAbove.
func (t Thresholds) Validate() error {
	if t.MinorAbove.IsNegative() {
		return fmt.Errorf("minor_above must not be negative, got %s", t.MinorAbove)
	}
	if t.HikeAbove.LessThan(t.MinorAbove) {
		return fmt.Errorf("hike_above (%s) must not be below minor_above (%s)", t.HikeAbove, t.MinorAbove)
	}
	return nil
}

// Severity grades one delta.
func (t Thresholds) Severity(delta decimal.Decimal) domain.Severity {
	switch {
	case delta.LessThanOrEqual(t.MinorAbove):
		return domain.SeverityNone
	case delta.LessThanOrEqual(t.HikeAbove):
		return domain.SeverityMinor
	default:
		return domain.SeverityHike
	}
}
