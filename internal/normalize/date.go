package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Full layouts, tried in order. Slash and dash dates are day-first.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
	"2-1-06",
	"2 Jan 2006",
	"2-Jan-2006",
	"2 January 2006",
	"2-January-2006",
	"2 Jan 06",
	"2-Jan-06",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
}

// Layouts without a year. They need Options.DefaultYear.
var partialDateLayouts = []string{
	"2 Jan",
	"2-Jan",
	"2 January",
	"2/1",
	"2-1",
}

// Dates found at the start of a description line.
var (
	leadingISODate   = regexp.MustCompile(`^\s*(\d{4}-\d{2}-\d{2})\b`)
	leadingSlashDate = regexp.MustCompile(`^\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\b`)
	leadingTextDate  = regexp.MustCompile(`(?i)^\s*(\d{1,2}[\s-](?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*[\s-]\d{2,4})\b`)
)

// parseDate turns statement date text into a calendar date.
func parseDate(s string, defaultYear int) (civil.Date, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return civil.Date{}, fmt.Errorf("no date text")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}

	for _, layout := range partialDateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if defaultYear == 0 {
			return civil.Date{}, fmt.Errorf("date has no year and no default year is configured")
		}
		d := civil.Date{Year: defaultYear, Month: t.Month(), Day: t.Day()}
		if !d.IsValid() {
			return civil.Date{}, fmt.Errorf("day out of range for %d", defaultYear)
		}
		return d, nil
	}

	return civil.Date{}, fmt.Errorf("unrecognised date format")
}

// leadingDate extracts a date printed at the start of a description.
func leadingDate(description string) string {
	for _, p := range []*regexp.Regexp{leadingISODate, leadingSlashDate, leadingTextDate} {
		if m := p.FindStringSubmatch(description); m != nil {
			return m[1]
		}
	}
	return ""
}
