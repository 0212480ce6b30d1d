package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/subzap/internal/api"
	"github.com/dvloznov/subzap/internal/app"
	"github.com/dvloznov/subzap/internal/config"
	"github.com/dvloznov/subzap/internal/jobs"
	"github.com/dvloznov/subzap/internal/jobs/inmemory"
	"github.com/dvloznov/subzap/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", defaultConfigPath(), "Path to the YAML config (or set CONFIG_PATH env)")
		port       = flag.String("port", "", "HTTP server port (overrides api.port)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Failed to load config")
	}
	if *port != "" {
		cfg.API.Port = *port
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

	ctx := logger.WithContext(context.Background(), log)

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise services")
	}
	defer services.Close()

	if services.Storage == nil {
		log.Warn().Msg("No GCS bucket configured - jobs can only read local files")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Jobs.BufferSize, jobStore)
	jobQueue.SetWorkers(cfg.Jobs.Workers)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, jobs.IngestHandler(services.Loader, services.Ingestor)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}
	log.Info().Int("workers", cfg.Jobs.Workers).Msg("Job worker started")

	router := api.NewRouter(api.Deps{
		Ingestor:  services.Ingestor,
		Ledger:    services.Store,
		Scanner:   services.Scanner,
		Publisher: jobQueue,
		JobStore:  jobStore,
		Log:       log,

		CORSOrigin: cfg.API.CORSOrigin,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.API.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.API.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// SIGHUP reloads reference prices without a restart
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-hup:
				if err := services.ReloadPrices(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to reload price table")
				}
			}
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "subzap.yaml"
}
