package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/subzap/internal/app"
	"github.com/dvloznov/subzap/internal/config"
	"github.com/dvloznov/subzap/internal/ledger"
	"github.com/dvloznov/subzap/internal/logger"
	"github.com/dvloznov/subzap/internal/pipeline"
	"github.com/dvloznov/subzap/internal/report"
	"github.com/dvloznov/subzap/internal/source"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		runIngest(log)
	case "scan":
		runScan(log)
	case "transactions":
		runTransactions(log)
	case "upload":
		runUpload(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("subzap CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest        Normalize, deduplicate and store a candidate batch (.json, .jsonl, .csv)")
	fmt.Println("  scan          Detect subscriptions and audit them against reference prices")
	fmt.Println("  transactions  List ledger records")
	fmt.Println("  upload        Upload a candidate batch to GCS")
	fmt.Println("  help          Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "subzap.yaml"
}

// openApp loads the config and wires the services, exiting on failure.
func openApp(ctx context.Context, log zerolog.Logger, configPath string) (*app.App, zerolog.Logger) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	if lvl, err := logger.ParseLevel(cfg.Log.Level); err == nil {
		log = log.Level(lvl)
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise services")
	}
	return a, log
}

func runIngest(log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to the YAML config")
	file := fs.String("file", "", "Local candidate batch")
	gcsURI := fs.String("gcs-uri", "", "GCS URI of a candidate batch")
	verbose := fs.Bool("v", false, "List accepted candidates too")
	fs.Parse(os.Args[2:])

	location := *file
	if location == "" {
		location = *gcsURI
	}
	if location == "" || (*file != "" && *gcsURI != "") {
		log.Fatal().Msg("Usage: cli ingest -file PATH | -gcs-uri gs://BUCKET/OBJECT")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, log := openApp(ctx, log, *configPath)
	defer a.Close()
	ctx = logger.WithContext(ctx, log)

	log.Info().Str("source", location).Msg("Starting ingestion")

	if err := ingest(ctx, a.Loader, a.Ingestor, location, *verbose, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}
}

func ingest(ctx context.Context, loader *source.Loader, ingestor *pipeline.Ingestor, location string, verbose bool, w io.Writer) error {
	candidates, err := loader.Load(ctx, location)
	if err != nil {
		return err
	}
	batch, err := ingestor.IngestBatch(ctx, candidates)
	if err != nil {
		return err
	}
	report.Batch(w, batch, verbose)
	return nil
}

func runScan(log zerolog.Logger) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to the YAML config")
	asOf := fs.String("as-of", "", "Reference date YYYY-MM-DD for lapse detection (default today)")
	merchant := fs.String("merchant", "", "Only scan this merchant")
	fs.Parse(os.Args[2:])

	req := pipeline.ScanRequest{Filter: ledger.Filter{MerchantKey: *merchant}}
	if *asOf != "" {
		d, err := civil.ParseDate(*asOf)
		if err != nil {
			log.Fatal().Err(err).Msg("Error: -as-of must be YYYY-MM-DD")
		}
		req.AsOf = d
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, log := openApp(ctx, log, *configPath)
	defer a.Close()
	ctx = logger.WithContext(ctx, log)

	if err := scan(ctx, a.Scanner, req, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Scan failed")
	}
}

func scan(ctx context.Context, scanner *pipeline.Scanner, req pipeline.ScanRequest, w io.Writer) error {
	r, err := scanner.Run(ctx, req)
	if err != nil {
		return err
	}
	report.Scan(w, r)
	return nil
}

func runTransactions(log zerolog.Logger) {
	fs := flag.NewFlagSet("transactions", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to the YAML config")
	merchant := fs.String("merchant", "", "Merchant name")
	sourceID := fs.String("source", "", "Source document ID")
	from := fs.String("from", "", "First date YYYY-MM-DD")
	to := fs.String("to", "", "Last date YYYY-MM-DD")
	limit := fs.Int("limit", 0, "Maximum records (0 = all)")
	fs.Parse(os.Args[2:])

	filter := ledger.Filter{MerchantKey: *merchant, SourceID: *sourceID, Limit: *limit}
	var err error
	if *from != "" {
		if filter.From, err = civil.ParseDate(*from); err != nil {
			log.Fatal().Err(err).Msg("Error: -from must be YYYY-MM-DD")
		}
	}
	if *to != "" {
		if filter.To, err = civil.ParseDate(*to); err != nil {
			log.Fatal().Err(err).Msg("Error: -to must be YYYY-MM-DD")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, log := openApp(ctx, log, *configPath)
	defer a.Close()

	txs, err := a.Store.Scan(logger.WithContext(ctx, log), filter)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query transactions")
	}
	report.Transactions(os.Stdout, txs)
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket name (or set GCS_BUCKET env)")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local candidate batch")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}
	if _, err := source.FormatFromName(*filePath); err != nil {
		log.Fatal().Err(err).Msg("Unsupported batch file")
	}

	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	storage, err := source.NewGCSStorageService(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer storage.Close()

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	if err := storage.UploadFile(ctx, *bucketName, *objectName, *filePath); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to gs://%s/%s\n", *filePath, *bucketName, *objectName)
	fmt.Printf("Ingest with: cli ingest -gcs-uri gs://%s/%s\n", *bucketName, *objectName)
}
