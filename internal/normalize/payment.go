package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/dvloznov/subzap/internal/domain"
)

// upiHandlePattern matches VPAs such as netflix@icici or paytm-12345@paytm.
var upiHandlePattern = regexp.MustCompile(`(?i)[a-z0-9][a-z0-9._-]*@[a-z]{2,}`)

var (
	upiMarkers        = []string{"UPI"}
	cardMarkers       = []string{"POS", "CARD", "VISA", "MASTERCARD", "RUPAY", "ECOM", "DEBITCARD", "CREDITCARD"}
	netBankingMarkers = []string{"NEFT", "IMPS", "RTGS", "NETBANKING", "BILLPAY", "INB"}
	cashMarkers       = []string{"ATM", "CASH", "CWDR", "NWD", "ATW"}
)

// classifyPaymentMode guesses the payment channel from description markers.
// It is a heuristic; PaymentUnknown is a valid answer, not a failure.
func classifyPaymentMode(description string) domain.PaymentMode {
	if hasUPIHandle(description) {
		return domain.PaymentUPI
	}

	tokens := markerTokens(description)
	switch {
	case containsToken(tokens, upiMarkers):
		return domain.PaymentUPI
	case containsToken(tokens, cardMarkers):
		return domain.PaymentCard
	case containsToken(tokens, netBankingMarkers),
		strings.Contains(strings.Join(tokens, " "), "NET BANKING"):
		return domain.PaymentNetBanking
	case containsToken(tokens, cashMarkers):
		return domain.PaymentCash
	default:
		return domain.PaymentUnknown
	}
}

// hasUPIHandle reports whether s contains a UPI handle. E-mail addresses
// (the bank part followed by a dot) are not handles.
func hasUPIHandle(s string) bool {
	for _, loc := range upiHandlePattern.FindAllStringIndex(s, -1) {
		if loc[1] < len(s) && s[loc[1]] == '.' {
			continue
		}
		return true
	}
	return false
}

// markerTokens splits a description into upper-case alphanumeric tokens.
func markerTokens(s string) []string {
	return strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsToken(tokens, markers []string) bool {
	for _, tok := range tokens {
		for _, m := range markers {
			if tok == m {
				return true
			}
		}
	}
	return false
}
