package pricetable

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// fileFormat is the YAML layout of a price file:
//
//	version: "2024-06"
//	prices:
//	  - merchant: Netflix
//	    plan: Standard
//	    price: "649.00"
type fileFormat struct {
	Version string      `yaml:"version"`
	Prices  []fileEntry `yaml:"prices"`
}

type fileEntry struct {
	Merchant string `yaml:"merchant"`
	Plan     string `yaml:"plan"`
	Price    string `yaml:"price"`
	Version  string `yaml:"version"`
}

// File is a table loaded from a YAML file. Reload swaps in a new revision
// atomically; lookups in flight see either the old or the new one.
type File struct {
	path string
	*Static
}

// LoadFile reads the table at path.
func LoadFile(path string) (*File, error) {
	f := &File{path: path, Static: NewStatic("")}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload re-reads the file. On error the previous contents stay in place.
func (f *File) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("pricetable.Reload: read %s: %w", f.path, err)
	}
	parsed, err := Parse(data)
	if err != nil {
		return fmt.Errorf("pricetable.Reload: %s: %w", f.path, err)
	}
	f.Static.replace(parsed)
	return nil
}

// Parse decodes YAML price data into a Static table.
func Parse(data []byte) (*Static, error) {
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	refs := make([]Reference, 0, len(ff.Prices))
	for i, e := range ff.Prices {
		if e.Merchant == "" {
			return nil, fmt.Errorf("entry %d: merchant is required", i)
		}
		price, err := decimal.NewFromString(e.Price)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): price %q: %w", i, e.Merchant, e.Price, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("entry %d (%s): negative price %s", i, e.Merchant, e.Price)
		}
		refs = append(refs, Reference{
			MerchantKey: e.Merchant,
			Plan:        e.Plan,
			Price:       price,
			Version:     e.Version,
		})
	}
	return NewStatic(ff.Version, refs...), nil
}

var _ Table = (*File)(nil)
