package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ivolkov/statement-ingest/internal/api/handlers"
	"github.com/ivolkov/statement-ingest/internal/api/middleware"
	"github.com/ivolkov/statement-ingest/internal/config"
	"github.com/ivolkov/statement-ingest/internal/extraction"
	infraBQ "github.com/ivolkov/statement-ingest/internal/infra/bigquery"
	"github.com/ivolkov/statement-ingest/internal/infra/memory"
	"github.com/ivolkov/statement-ingest/internal/jobs"
	"github.com/ivolkov/statement-ingest/internal/jobs/inmemory"
	"github.com/ivolkov/statement-ingest/internal/logger"
	"github.com/ivolkov/statement-ingest/internal/ocr"
	"github.com/ivolkov/statement-ingest/internal/parser"
	"github.com/ivolkov/statement-ingest/internal/pipeline"
	"github.com/ivolkov/statement-ingest/internal/resolver"
	"github.com/ivolkov/statement-ingest/internal/storage"
	"github.com/ivolkov/statement-ingest/internal/store"
)

func main() {
	var (
		memStore = flag.Bool("memory", false, "use the in-memory store instead of BigQuery (local development)")
	)
	flag.Parse()

	log := logger.New("api")
	cfg := config.Load()

	ctx := context.Background()

	// Persistence
	var st store.Store
	if *memStore {
		log.Warn().Msg("Using in-memory store - data is lost on restart")
		st = memory.New()
	} else {
		if err := cfg.RequireGCP(); err != nil {
			log.Fatal().Err(err).Msg("Invalid configuration")
		}
		bqStore, err := infraBQ.New(ctx, cfg.GCP.ProjectID, cfg.GCP.DatasetID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery store")
		}
		st = bqStore
	}
	defer st.Close()

	// Object storage
	if err := cfg.RequireStorage(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	gw, err := storage.New(ctx, storage.Options{
		Endpoint:        cfg.Storage.Endpoint,
		CredentialsFile: cfg.Storage.CredentialsFile,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage gateway")
	}
	defer gw.Close()

	// OCR
	detector, err := ocr.New(ctx, cfg.OCR.CredentialsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create OCR client")
	}

	// Pipeline
	extractor := extraction.NewExtractor(gw, detector)
	processor := pipeline.NewProcessor(st, extractor, parser.New(), resolver.New(st), log)

	// Job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Jobs.QueueSize, cfg.Jobs.WorkerCount, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
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

	go func() {
		log.Info().Int("workers", cfg.Jobs.WorkerCount).Msg("Starting job workers")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Handlers
	statementsHandler := handlers.NewStatementsHandler(st, gw, jobQueue, cfg.Storage.Bucket, log)
	accountsHandler := handlers.NewAccountsHandler(st, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// API routes (authenticated)
	apiMux := http.NewServeMux()

	apiMux.HandleFunc("/api/statements", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			statementsHandler.Upload(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.CodeBadRequest, "Method not allowed")
		}
	})

	apiMux.HandleFunc("/api/statements/recent", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			statementsHandler.ListRecent(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.CodeBadRequest, "Method not allowed")
		}
	})

	apiMux.HandleFunc("/api/statements/link", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			statementsHandler.Link(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.CodeBadRequest, "Method not allowed")
		}
	})

	apiMux.HandleFunc("/api/statements/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/statements/")
		if rest == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest, "Statement ID is required")
			return
		}

		switch {
		case strings.HasSuffix(rest, "/transactions"):
			if r.Method != http.MethodGet {
				middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.CodeBadRequest, "Method not allowed")
				return
			}
			statementsHandler.ListTransactions(w, r, strings.TrimSuffix(rest, "/transactions"))
		case strings.HasSuffix(rest, "/reprocess"):
			if r.Method != http.MethodPost {
				middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.CodeBadRequest, "Method not allowed")
				return
			}
			statementsHandler.Reprocess(w, r, strings.TrimSuffix(rest, "/reprocess"))
		default:
			if r.Method != http.MethodGet {
				middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.CodeBadRequest, "Method not allowed")
				return
			}
			statementsHandler.Get(w, r, rest)
		}
	})

	apiMux.HandleFunc("/api/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			accountsHandler.ListAccounts(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.CodeBadRequest, "Method not allowed")
		}
	})

	apiMux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.CodeBadRequest, "Method not allowed")
		}
	})

	apiMux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.CodeBadRequest, "Method not allowed")
		}
	})

	// Health check stays outside the auth boundary.
	mux := http.NewServeMux()
	mux.Handle("/api/", middleware.Auth(apiMux))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
