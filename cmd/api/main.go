package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/api"
	"github.com/dvloznov/finance-reconciler/internal/app"
	"github.com/dvloznov/finance-reconciler/internal/config"
	"github.com/dvloznov/finance-reconciler/internal/extraction"
	"github.com/dvloznov/finance-reconciler/internal/gcs"
	"github.com/dvloznov/finance-reconciler/internal/gcsuploader"
	"github.com/dvloznov/finance-reconciler/internal/jobs"
	jobmem "github.com/dvloznov/finance-reconciler/internal/jobs/inmemory"
	"github.com/dvloznov/finance-reconciler/internal/logger"
	"github.com/dvloznov/finance-reconciler/internal/telemetry"
)

func main() {
	configPath := flag.String("config", os.Getenv("RECONCILER_CONFIG"), "path to config file (or set RECONCILER_CONFIG)")
	flag.Parse()

	boot := logger.New()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := app.NewLogger(cfg)
	ctx := logger.WithContext(context.Background(), log)

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise telemetry")
	}

	s, closeStore, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer closeStore()

	engine, err := app.NewEngine(cfg, s)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}

	// Receipt uploads and gs:// image inputs need a bucket.
	var (
		storage gcs.StorageService
		fetcher extraction.ImageFetcher
	)
	if cfg.Storage.Bucket != "" {
		client, err := gcsuploader.NewClient(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer client.Close()
		storage, fetcher = client, client
	} else {
		log.Warn().Msg("No storage bucket configured - receipt uploads will be disabled")
	}

	extractor, err := app.NewExtractor(ctx, cfg, fetcher)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extractor")
	}

	jobStore := jobmem.NewStore()
	queue := jobmem.NewQueue(jobmem.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		QueueSize:  cfg.Jobs.QueueSize,
		MaxRetries: cfg.Jobs.MaxRetries,
	}, jobStore)
	processor := &jobs.Processor{
		Extractor:      extractor,
		Engine:         engine,
		ChequeKeywords: cfg.Extraction.ChequeKeywords,
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	if err := queue.Start(workerCtx, processor.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	serviceName := ""
	if cfg.Telemetry.Enabled {
		serviceName = cfg.Telemetry.ServiceName
	}
	handler := api.NewRouter(api.Deps{
		Engine:      engine,
		Publisher:   queue,
		JobStore:    jobStore,
		Storage:     storage,
		Bucket:      cfg.Storage.Bucket,
		APIKey:      cfg.Server.APIKey,
		ServiceName: serviceName,
		Log:         log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("backend", cfg.Store.Backend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight extractions finish before the store closes.
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()
	if err := queue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shut down telemetry")
	}

	log.Info().Msg("Server exited")
}
