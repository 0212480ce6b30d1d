package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/subzap/internal/ledger"
)

// parseFilter reads merchant, source_id, from, to and limit.
func parseFilter(r *http.Request) (ledger.Filter, error) {
	query := r.URL.Query()
	filter := ledger.Filter{
		MerchantKey: query.Get("merchant"),
		SourceID:    query.Get("source_id"),
	}

	var err error
	if filter.From, err = parseDate(query.Get("from"), "from"); err != nil {
		return ledger.Filter{}, err
	}
	if filter.To, err = parseDate(query.Get("to"), "to"); err != nil {
		return ledger.Filter{}, err
	}
	if filter.From.IsValid() && filter.To.IsValid() && filter.To.Before(filter.From) {
		return ledger.Filter{}, fmt.Errorf("to must not be before from")
	}

	if filter.Limit, err = parseCount(query.Get("limit"), "limit"); err != nil {
		return ledger.Filter{}, err
	}
	return filter, nil
}

// parseCount accepts a non-negative integer; empty means zero.
func parseCount(s, name string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("Invalid %s", name)
	}
	return n, nil
}

// parseDate accepts YYYY-MM-DD; empty means unset.
func parseDate(s, name string) (civil.Date, error) {
	if s == "" {
		return civil.Date{}, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("Invalid %s format, want YYYY-MM-DD", name)
	}
	return d, nil
}
