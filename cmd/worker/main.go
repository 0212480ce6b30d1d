package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/subzap/internal/app"
	"github.com/dvloznov/subzap/internal/config"
	"github.com/dvloznov/subzap/internal/jobs"
	"github.com/dvloznov/subzap/internal/jobs/inmemory"
	"github.com/dvloznov/subzap/internal/logger"
	"github.com/dvloznov/subzap/internal/pipeline"
	"github.com/dvloznov/subzap/internal/report"
	"github.com/dvloznov/subzap/internal/scheduler"
)

func main() {
	var (
		configPath = flag.String("config", defaultConfigPath(), "Path to the YAML config (or set CONFIG_PATH env)")
		sources    = flag.String("ingest", "", "Comma-separated batches (paths or gs:// URIs) to ingest at startup")
		scanNow    = flag.Bool("scan-now", false, "Run one scan immediately after startup")
		printScans = flag.Bool("print", false, "Print every scan report as tables")
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

	// Initialize logger
	log, err := logger.NewWithLevel(cfg.Log.Level)
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Invalid log level")
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise services")
	}
	defer services.Close()

	log.Info().Msg("Starting worker service")

	// Initialize job store and queue
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Jobs.BufferSize, jobStore)
	jobQueue.SetWorkers(cfg.Jobs.Workers)

	if err := jobQueue.Start(ctx, jobs.IngestHandler(services.Loader, services.Ingestor)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	for _, uri := range splitList(*sources) {
		job := &jobs.IngestJob{SourceURI: uri, MaxRetries: cfg.Jobs.MaxRetries}
		if err := jobQueue.PublishIngest(ctx, job); err != nil {
			log.Error().Err(err).Str("source_uri", uri).Msg("Failed to enqueue ingest job")
			continue
		}
		log.Info().Str("job_id", job.JobID).Str("source_uri", uri).Msg("Ingest job enqueued")
	}

	var onReport scheduler.ReportFunc
	if *printScans {
		onReport = func(ctx context.Context, r *pipeline.ScanReport) {
			report.Scan(os.Stdout, r)
		}
	}

	sched := scheduler.New(ctx, services.Scanner, onReport)
	sched.SetPrepare(services.ReloadPrices)
	if err := sched.Register(cfg.Schedule.ScanCron); err != nil {
		log.Fatal().Err(err).Msg("Failed to register scan schedule")
	}
	sched.Start()

	if *scanNow {
		go func() {
			if _, err := sched.RunNow(); err != nil {
				log.Error().Err(err).Msg("Startup scan failed")
			}
		}()
	}

	log.Info().Str("scan_cron", cfg.Schedule.ScanCron).Msg("Worker service started, waiting for jobs...")

	// SIGHUP reloads reference prices; SIGINT and SIGTERM stop the worker
	reloadPricesOnHangup(ctx, services)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	sched.Stop()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	log.Info().Msg("Worker service exited")
}

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "subzap.yaml"
}

func reloadPricesOnHangup(ctx context.Context, services *app.App) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				signal.Stop(hup)
				return
			case <-hup:
				if err := services.ReloadPrices(ctx); err != nil {
					services.Log.Error().Err(err).Msg("Failed to reload price table")
				}
			}
		}
	}()
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
