package pipeline

import (
	"strings"

	"github.com/dvloznov/subzap/internal/normalize"
)

// CategoryValidator checks extractor category hints against the configured
// category names.
type CategoryValidator struct {
	categories map[string]string // normalized name -> configured spelling
}

// NewCategoryValidator builds a validator from the category rules.
func NewCategoryValidator(rules []normalize.CategoryRule) *CategoryValidator {
	v := &CategoryValidator{categories: make(map[string]string, len(rules))}
	for _, r := range rules {
		norm := normalizeCategory(r.Name)
		if norm == "" {
			continue
		}
		if _, seen := v.categories[norm]; !seen {
			v.categories[norm] = r.Name
		}
	}
	return v
}

// Canonical returns the configured spelling of category and whether it is known.
func (v *CategoryValidator) Canonical(category string) (string, bool) {
	name, ok := v.categories[normalizeCategory(category)]
	return name, ok
}

// Apply rewrites a known hint to its configured spelling and clears an
// unknown one, so the keyword rules decide instead. It reports whether a
// hint was dropped.
func (v *CategoryValidator) Apply(hint string) (string, bool) {
	if strings.TrimSpace(hint) == "" {
		return "", false
	}
	if name, ok := v.Canonical(hint); ok {
		return name, false
	}
	return "", true
}

// normalizeCategory upper-cases and trims a category for comparison.
func normalizeCategory(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
