package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// 1234.50
	plainAmountPattern = regexp.MustCompile(`^\d+(?:\.\d{1,2})?$`)
	// 1,234,567.50
	westernAmountPattern = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?$`)
	// 12,34,567.50; the last group always has three digits
	indianAmountPattern = regexp.MustCompile(`^\d{1,3}(?:,\d{2})*,\d{3}(?:\.\d{1,2})?$`)
	// ₹, Rs, Rs., INR and the usual foreign symbols
	currencyPattern = regexp.MustCompile(`(?i)^(?:₹|INR|RS\.?|\$|£|€)`)
)

// parseAmount converts statement amount text into a signed decimal.
// Debits are positive. A leading minus or a trailing "Cr" marks a credit.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00A0' || r == '\t' {
			return -1
		}
		return r
	}, s)

	credit := false
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "CR"):
		credit = true
		s = s[:len(s)-2]
	case strings.HasSuffix(upper, "DR"):
		s = s[:len(s)-2]
	}

	negative := false
	for i := 0; i < 2; i++ {
		if strings.HasPrefix(s, "-") {
			negative = true
			s = s[1:]
		} else if strings.HasPrefix(s, "+") {
			s = s[1:]
		}
		s = currencyPattern.ReplaceAllString(s, "")
	}

	if s == "" {
		return decimal.Zero, fmt.Errorf("no digits")
	}
	if !plainAmountPattern.MatchString(s) && !westernAmountPattern.MatchString(s) && !indianAmountPattern.MatchString(s) {
		return decimal.Zero, fmt.Errorf("not a decimal amount")
	}

	value, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, err
	}

	if negative || credit {
		if value.IsZero() {
			return decimal.Zero, fmt.Errorf("negative zero")
		}
		value = value.Neg()
	}

	return value, nil
}
