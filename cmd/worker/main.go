package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ivolkov/statement-ingest/internal/config"
	"github.com/ivolkov/statement-ingest/internal/extraction"
	infraBQ "github.com/ivolkov/statement-ingest/internal/infra/bigquery"
	"github.com/ivolkov/statement-ingest/internal/jobs"
	"github.com/ivolkov/statement-ingest/internal/jobs/inmemory"
	"github.com/ivolkov/statement-ingest/internal/logger"
	"github.com/ivolkov/statement-ingest/internal/ocr"
	"github.com/ivolkov/statement-ingest/internal/parser"
	"github.com/ivolkov/statement-ingest/internal/pipeline"
	"github.com/ivolkov/statement-ingest/internal/resolver"
	"github.com/ivolkov/statement-ingest/internal/storage"
)

func main() {
	log := logger.New("worker")
	cfg := config.Load()

	if err := cfg.RequireGCP(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := infraBQ.New(ctx, cfg.GCP.ProjectID, cfg.GCP.DatasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery store")
	}
	defer st.Close()

	gw, err := storage.New(ctx, storage.Options{
		Endpoint:        cfg.Storage.Endpoint,
		CredentialsFile: cfg.Storage.CredentialsFile,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage gateway")
	}
	defer gw.Close()

	detector, err := ocr.New(ctx, cfg.OCR.CredentialsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create OCR client")
	}

	extractor := extraction.NewExtractor(gw, detector)
	processor := pipeline.NewProcessor(st, extractor, parser.New(), resolver.New(st), log)

	// In production, the in-memory queue would be replaced with Cloud Tasks
	// or Pub/Sub so this worker receives jobs from the API instances.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Jobs.QueueSize, cfg.Jobs.WorkerCount, jobStore)

	log.Info().Msg("Starting worker service")

	handler := func(ctx context.Context, job jobs.Job) error {
		processJob, ok := job.(*jobs.ProcessStatementJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", processJob.JobID).
			Str("statement_id", processJob.StatementID).
			Bool("reprocess", processJob.Reprocess).
			Msg("Processing statement job")

		return processor.Process(ctx, processJob.StatementID, processJob.Reprocess)
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}
