package normalize

import (
	"sort"
	"strings"
	"unicode"
)

const tokenTrimCutset = ".,;:#()[]{}'\"!?<>"

// Web suffixes stripped from domain-style merchant tokens, longest first.
var domainSuffixes = []string{".CO.IN", ".COM", ".NET", ".ORG", ".IN"}

// cleaner derives display merchant names from raw descriptions.
type cleaner struct {
	boilerplate map[string]bool
	cities      [][]string
	aliases     []Alias
}

func newCleaner(r Rules) *cleaner {
	c := &cleaner{
		boilerplate: make(map[string]bool, len(r.Boilerplate)),
		aliases:     r.Aliases,
	}
	for _, b := range r.Boilerplate {
		c.boilerplate[strings.ToUpper(strings.TrimSpace(b))] = true
	}
	for _, city := range r.Cities {
		if words := strings.Fields(strings.ToUpper(city)); len(words) > 0 {
			c.cities = append(c.cities, words)
		}
	}
	// Multi-word cities first so "NEW DELHI" wins over "DELHI".
	sort.SliceStable(c.cities, func(i, j int) bool {
		return len(c.cities[i]) > len(c.cities[j])
	})
	return c
}

// merchantName picks, in order: an alias hit on the raw text, the
// extractor's hint, the cleaned description, the whitespace-collapsed raw text.
func (c *cleaner) merchantName(raw, hint string) string {
	upper := strings.ToUpper(raw)
	for _, a := range c.aliases {
		if a.Match != "" && strings.Contains(upper, strings.ToUpper(a.Match)) {
			return a.Name
		}
	}

	if h := strings.Trim(strings.Join(strings.Fields(hint), " "), tokenTrimCutset); h != "" {
		return h
	}

	body := raw
	if d := leadingDate(raw); d != "" {
		body = raw[strings.Index(raw, d)+len(d):]
	}
	if name := c.clean(body); name != "" {
		return name
	}

	return strings.Join(strings.Fields(raw), " ")
}

// clean returns the first description segment that survives stripping.
func (c *cleaner) clean(raw string) string {
	segments := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '/' || r == '|' || r == '*' || r == '\\' || r == ';'
	})
	for _, seg := range segments {
		for _, part := range strings.Split(seg, " - ") {
			if name := c.cleanSegment(part); name != "" {
				return displayCase(name)
			}
		}
	}
	return ""
}

func (c *cleaner) cleanSegment(seg string) string {
	var kept []string
	for _, tok := range strings.Fields(seg) {
		if tok = c.cleanToken(tok); tok != "" {
			kept = append(kept, tok)
		}
	}
	return strings.Join(c.stripTrailingCities(kept), " ")
}

func (c *cleaner) cleanToken(tok string) string {
	// UPI handles and e-mail addresses are never the business name.
	if strings.Contains(tok, "@") {
		return ""
	}

	tok = strings.Trim(tok, tokenTrimCutset)
	upper := strings.ToUpper(tok)
	if strings.HasPrefix(upper, "WWW.") {
		tok, upper = tok[4:], upper[4:]
	}
	for _, suffix := range domainSuffixes {
		if strings.HasSuffix(upper, suffix) && len(upper) > len(suffix) {
			tok = tok[:len(tok)-len(suffix)]
			break
		}
	}

	var parts []string
	for _, part := range strings.FieldsFunc(tok, func(r rune) bool { return r == '-' || r == '_' }) {
		if !hasAlnum(part) || c.boilerplate[strings.ToUpper(part)] || isReference(part) {
			continue
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "-")
}

// stripTrailingCities drops branch-city suffixes but never empties the name.
func (c *cleaner) stripTrailingCities(tokens []string) []string {
	for {
		stripped := false
		for _, city := range c.cities {
			if len(tokens) <= len(city) {
				continue
			}
			tail := tokens[len(tokens)-len(city):]
			match := true
			for i, w := range city {
				if strings.ToUpper(tail[i]) != w {
					match = false
					break
				}
			}
			if match {
				tokens = tokens[:len(tokens)-len(city)]
				stripped = true
				break
			}
		}
		if !stripped {
			return tokens
		}
	}
}

// isReference reports whether a token looks like a reference number or code.
func isReference(tok string) bool {
	digits, letters := 0, 0
	for _, r := range tok {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		}
	}
	if digits >= 4 {
		return true
	}
	return letters > 0 && digits >= 2 && len(tok) >= 8
}

func hasAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// displayCase title-cases names printed entirely in upper case and leaves
// mixed-case names alone.
func displayCase(name string) string {
	for _, r := range name {
		if unicode.IsLower(r) {
			return name
		}
	}

	var b strings.Builder
	start := true
	for _, r := range name {
		if unicode.IsLetter(r) {
			if start {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(unicode.ToLower(r))
			}
			start = false
			continue
		}
		b.WriteRune(r)
		start = r == ' ' || r == '-' || r == '&'
	}
	return b.String()
}
