package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/subzap/internal/app"
	"github.com/dvloznov/subzap/internal/config"
	"github.com/dvloznov/subzap/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	var (
		configPath = flag.String("config", defaultConfigPath(), "Path to the YAML config (or set CONFIG_PATH env)")
		seedPrices = flag.String("seed-prices", "", "YAML price file to copy into the Postgres reference_prices table")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Invalid config")
	}

	log, err := logger.NewWithLevel(cfg.Log.Level)
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Invalid log level")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if err := run(ctx, cfg, *seedPrices, log); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "subzap.yaml"
}

// run creates the ledger schema for the configured driver, the price table
// schema when prices live in Postgres, and optionally seeds prices.
func run(ctx context.Context, cfg *config.Config, seedPrices string, log zerolog.Logger) error {
	a, err := app.OpenLedger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info().Str("driver", cfg.Ledger.Driver).Msg("Applying ledger schema")
	if err := a.Migrate(ctx); err != nil {
		return err
	}

	if seedPrices != "" {
		n, err := a.SeedPrices(ctx, seedPrices)
		if err != nil {
			return err
		}
		log.Info().Str("file", seedPrices).Int("prices", n).Msg("Reference prices seeded")
	}

	fmt.Println("Migrations completed successfully.")
	return nil
}
