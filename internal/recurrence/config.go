package recurrence

import (
	"fmt"

	"github.com/dvloznov/subzap/internal/domain"
)

// Band is the accepted day range between two charges of one cadence.
type Band struct {
	Period  domain.Period `yaml:"period"`
	MinDays int           `yaml:"min_days"`
	MaxDays int           `yaml:"max_days"`
}

// Contains reports whether days falls inside the band, bounds included.
func (b Band) Contains(days int) bool {
	return days >= b.MinDays && days <= b.MaxDays
}

// Config tunes the detector.
type Config struct {
	// Bands are tried in order; an earlier band wins ties.
	Bands []Band `yaml:"bands"`

	// MinInBandRatio is the share of cadence deltas that must fall inside
	// the dominant band for a group to count as recurring. Nil means the
	// default; an explicit 0 accepts any group with one in-band delta.
	MinInBandRatio *float64 `yaml:"min_in_band_ratio"`

	// VarianceScaleDays is the delta variance (in days squared) at which
	// the variance factor of the confidence score halves.
	VarianceScaleDays float64 `yaml:"variance_scale_days"`

	// LapseFactor times the band maximum is how long after the last charge
	// a subscription is still considered active.
	LapseFactor float64 `yaml:"lapse_factor"`
}

// DefaultConfig returns the standard monthly, quarterly and annual bands.
func DefaultConfig() Config {
	return Config{
		Bands: []Band{
			{Period: domain.PeriodMonthly, MinDays: 27, MaxDays: 33},
			{Period: domain.PeriodQuarterly, MinDays: 85, MaxDays: 95},
			{Period: domain.PeriodAnnual, MinDays: 350, MaxDays: 380},
		},
		MinInBandRatio:    Ratio(0.5),
		VarianceScaleDays: 4,
		LapseFactor:       1.5,
	}
}

// Ratio returns a pointer to r, for setting MinInBandRatio.
func Ratio(r float64) *float64 {
	return &r
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if len(c.Bands) == 0 {
		c.Bands = def.Bands
	}
	if c.MinInBandRatio == nil {
		c.MinInBandRatio = def.MinInBandRatio
	}
	if c.VarianceScaleDays == 0 {
		c.VarianceScaleDays = def.VarianceScaleDays
	}
	if c.LapseFactor == 0 {
		c.LapseFactor = def.LapseFactor
	}
	return c
}

// Validate checks that the bands and factors are usable.
func (c Config) Validate() error {
	for i, b := range c.Bands {
		if b.Period == "" || b.Period == domain.PeriodIrregular {
			return fmt.Errorf("band %d: period must be a cadence, got %q", i, b.Period)
		}
		if b.MinDays <= 0 || b.MaxDays < b.MinDays {
			return fmt.Errorf("band %d (%s): invalid range %d-%d", i, b.Period, b.MinDays, b.MaxDays)
		}
	}
	if r := c.MinInBandRatio; r != nil && (*r < 0 || *r > 1) {
		return fmt.Errorf("min_in_band_ratio must be within [0,1], got %v", *r)
	}
	if c.VarianceScaleDays < 0 {
		return fmt.Errorf("variance_scale_days must be positive, got %v", c.VarianceScaleDays)
	}
	if c.LapseFactor < 0 {
		return fmt.Errorf("lapse_factor must be positive, got %v", c.LapseFactor)
	}
	return nil
}
