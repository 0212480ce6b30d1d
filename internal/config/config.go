// Package config loads application settings from a YAML file, an optional
// .env file and environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/subzap/internal/audit"
	"github.com/dvloznov/subzap/internal/normalize"
	"github.com/dvloznov/subzap/internal/recurrence"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Ledger drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBigQuery = "bigquery"
)

// Price table sources.
const (
	PricesFile     = "file"
	PricesPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Ledger struct {
		Driver      string `yaml:"driver"`
		SQLitePath  string `yaml:"sqlite_path"`
		DatabaseURL string `yaml:"database_url"`
		BigQuery    struct {
			ProjectID string `yaml:"project_id"`
			DatasetID string `yaml:"dataset_id"`
		} `yaml:"bigquery"`
	} `yaml:"ledger"`

	Ingest struct {
		Concurrency int `yaml:"concurrency"`
		DefaultYear int `yaml:"default_year"`
		// ValidateCategories drops extractor category hints that name no
		// configured category.
		ValidateCategories bool `yaml:"validate_categories"`
	} `yaml:"ingest"`

	// Normalizer rules are appended to the built-in ones.
	Normalizer normalize.Rules `yaml:"normalizer"`

	Recurrence recurrence.Config `yaml:"recurrence"`

	Audit struct {
		MinorAbove string `yaml:"minor_above"`
		HikeAbove  string `yaml:"hike_above"`
	} `yaml:"audit"`

	Prices struct {
		Source    string `yaml:"source"`
		File      string `yaml:"file"`
		CacheSize int64  `yaml:"cache_size"`
		CacheTTL  string `yaml:"cache_ttl"`
	} `yaml:"prices"`

	Schedule struct {
		ScanCron string `yaml:"scan_cron"`
	} `yaml:"schedule"`

	API struct {
		Port       string `yaml:"port"`
		CORSOrigin string `yaml:"cors_origin"`
	} `yaml:"api"`

	Jobs struct {
		Workers    int `yaml:"workers"`
		BufferSize int `yaml:"buffer_size"`
		MaxRetries int `yaml:"max_retries"`
	} `yaml:"jobs"`

	Storage struct {
		Bucket string `yaml:"bucket"`
	} `yaml:"storage"`
}

// Load reads path (a missing file is fine), loads .env from the working
// directory if present, then applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("Load: read .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("Load: read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("Load: parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LEDGER_DRIVER"); v != "" {
		c.Ledger.Driver = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Ledger.SQLitePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Ledger.DatabaseURL = v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		c.Ledger.BigQuery.ProjectID = v
	}
	if v := os.Getenv("BQ_DATASET"); v != "" {
		c.Ledger.BigQuery.DatasetID = v
	}
	if v := os.Getenv("GCS_BUCKET"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("PRICES_SOURCE"); v != "" {
		c.Prices.Source = v
	}
	if v := os.Getenv("PRICES_FILE"); v != "" {
		c.Prices.File = v
	}
	if v := os.Getenv("SCAN_CRON"); v != "" {
		c.Schedule.ScanCron = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.API.Port = v
	}
	if v := os.Getenv("INGEST_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INGEST_CONCURRENCY %q: %w", v, err)
		}
		c.Ingest.Concurrency = n
	}
	if v := os.Getenv("DEFAULT_YEAR"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DEFAULT_YEAR %q: %w", v, err)
		}
		c.Ingest.DefaultYear = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Ledger.Driver == "" {
		c.Ledger.Driver = DriverSQLite
	}
	c.Ledger.Driver = strings.ToLower(c.Ledger.Driver)
	if c.Ledger.SQLitePath == "" {
		c.Ledger.SQLitePath = "data/subzap.db"
	}
	if c.Ledger.BigQuery.DatasetID == "" {
		c.Ledger.BigQuery.DatasetID = "subzap"
	}
	if c.Ingest.Concurrency == 0 {
		c.Ingest.Concurrency = 8
	}
	if c.Prices.Source == "" {
		c.Prices.Source = PricesFile
	}
	if c.Prices.File == "" {
		c.Prices.File = "prices.yaml"
	}
	if c.Prices.CacheSize == 0 {
		c.Prices.CacheSize = 1000
	}
	if c.Prices.CacheTTL == "" {
		c.Prices.CacheTTL = "10m"
	}
	if c.Schedule.ScanCron == "" {
		c.Schedule.ScanCron = "0 0 7 * * *"
	}
	if c.API.Port == "" {
		c.API.Port = "8080"
	}
	if c.Jobs.Workers == 0 {
		c.Jobs.Workers = 5
	}
	if c.Jobs.BufferSize == 0 {
		c.Jobs.BufferSize = 100
	}
	if c.Jobs.MaxRetries == 0 {
		c.Jobs.MaxRetries = 3
	}
}

// Thresholds parses the audit section.
func (c *Config) Thresholds() (audit.Thresholds, error) {
	return audit.ParseThresholds(c.Audit.MinorAbove, c.Audit.HikeAbove)
}

// PriceCacheTTL parses prices.cache_ttl.
func (c *Config) PriceCacheTTL() (time.Duration, error) {
	d, err := time.ParseDuration(c.Prices.CacheTTL)
	if err != nil {
		return 0, fmt.Errorf("prices.cache_ttl %q: %w", c.Prices.CacheTTL, err)
	}
	return d, nil
}

// Rules returns the built-in normalizer rules extended by the config.
func (c *Config) Rules() normalize.Rules {
	return normalize.DefaultRules().Merge(c.Normalizer)
}

// Validate checks that the settings for the selected backends are complete.
func (c *Config) Validate() error {
	switch c.Ledger.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Ledger.SQLitePath == "" {
			return fmt.Errorf("ledger.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Ledger.DatabaseURL == "" {
			return fmt.Errorf("ledger.database_url is required for the postgres driver")
		}
	case DriverBigQuery:
		if c.Ledger.BigQuery.ProjectID == "" {
			return fmt.Errorf("ledger.bigquery.project_id is required for the bigquery driver")
		}
	default:
		return fmt.Errorf("ledger.driver %q is not one of memory, sqlite, postgres, bigquery", c.Ledger.Driver)
	}

	switch c.Prices.Source {
	case PricesFile:
		if c.Prices.File == "" {
			return fmt.Errorf("prices.file is required for the file source")
		}
	case PricesPostgres:
		if c.Ledger.DatabaseURL == "" {
			return fmt.Errorf("ledger.database_url is required for the postgres price source")
		}
	default:
		return fmt.Errorf("prices.source %q is not one of file, postgres", c.Prices.Source)
	}
	if c.Prices.CacheSize < 0 {
		return fmt.Errorf("prices.cache_size must not be negative")
	}

	if c.Ingest.Concurrency < 1 {
		return fmt.Errorf("ingest.concurrency must be positive")
	}
	if _, err := c.Thresholds(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if err := c.Recurrence.Validate(); err != nil {
		return fmt.Errorf("recurrence: %w", err)
	}

	if _, err := c.PriceCacheTTL(); err != nil {
		return err
	}

	// Six fields, seconds first, as the scheduler expects.
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Schedule.ScanCron); err != nil {
		return fmt.Errorf("schedule.scan_cron %q: %w", c.Schedule.ScanCron, err)
	}
	return nil
}
