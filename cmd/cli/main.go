// Command cli is the operator tool for the statement ingest service: upload
// a statement file directly to storage, run the processing pipeline for a
// statement, or inspect a statement and its parsed transactions.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ivolkov/statement-ingest/internal/config"
	"github.com/ivolkov/statement-ingest/internal/domain"
	"github.com/ivolkov/statement-ingest/internal/extraction"
	infraBQ "github.com/ivolkov/statement-ingest/internal/infra/bigquery"
	"github.com/ivolkov/statement-ingest/internal/logger"
	"github.com/ivolkov/statement-ingest/internal/ocr"
	"github.com/ivolkov/statement-ingest/internal/parser"
	"github.com/ivolkov/statement-ingest/internal/pipeline"
	"github.com/ivolkov/statement-ingest/internal/resolver"
	"github.com/ivolkov/statement-ingest/internal/storage"
)

func main() {
	log := logger.New("cli")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "upload":
		runUpload(log)
	case "process":
		runProcess(log)
	case "inspect":
		runInspect(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Statement Ingest CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  upload    Upload a local statement file and register it")
	fmt.Println("  process   Run the processing pipeline for a statement by ID")
	fmt.Println("  inspect   Inspect a statement and its transactions")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// env builds the full pipeline wiring from the environment.
type env struct {
	cfg       *config.Config
	store     *infraBQ.Store
	gateway   *storage.Gateway
	processor *pipeline.Processor
}

func buildEnv(ctx context.Context, log zerolog.Logger) (*env, error) {
	cfg := config.Load()
	if err := cfg.RequireGCP(); err != nil {
		return nil, err
	}

	st, err := infraBQ.New(ctx, cfg.GCP.ProjectID, cfg.GCP.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	gw, err := storage.New(ctx, storage.Options{
		Endpoint:        cfg.Storage.Endpoint,
		CredentialsFile: cfg.Storage.CredentialsFile,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create storage gateway: %w", err)
	}

	detector, err := ocr.New(ctx, cfg.OCR.CredentialsFile)
	if err != nil {
		gw.Close()
		st.Close()
		return nil, fmt.Errorf("create OCR client: %w", err)
	}

	extractor := extraction.NewExtractor(gw, detector)
	processor := pipeline.NewProcessor(st, extractor, parser.New(), resolver.New(st), log)

	return &env{cfg: cfg, store: st, gateway: gw, processor: processor}, nil
}

func (e *env) close() {
	e.gateway.Close()
	e.store.Close()
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	filePath := fs.String("file", "", "path to the statement file (required)")
	userID := fs.String("user", "", "owner user ID (required)")
	accountID := fs.String("account", "", "account to link the statement to (optional)")
	process := fs.Bool("process", false, "run the pipeline synchronously after upload")
	fs.Parse(os.Args[2:])

	if *filePath == "" || *userID == "" {
		log.Fatal().Msg("Usage: cli upload -file /path/to/statement.pdf -user USER_ID [-account ACCOUNT_ID] [-process]")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}
	if len(data) > domain.MaxUploadBytes {
		log.Fatal().Int("bytes", len(data)).Msg("File exceeds the 10 MB upload limit")
	}

	filename := filepath.Base(*filePath)
	mimeType := domain.MIMETypeFromFilename(filename)
	if !domain.AllowedMIMEType(mimeType) {
		log.Fatal().Str("mime_type", mimeType).Msg("Only PDF, JPEG and PNG statements are accepted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	e, err := buildEnv(ctx, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer e.close()

	object := storage.ObjectPath(*userID, filename)
	uri, err := e.gateway.Upload(ctx, e.cfg.Storage.Bucket, object, data, mimeType)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	st := &domain.Statement{
		ID:         uuid.New().String(),
		UserID:     *userID,
		Filename:   filename,
		MIMEType:   mimeType,
		StorageURI: uri,
		Status:     domain.StatusUploaded,
		AccountID:  *accountID,
		UploadedAt: time.Now(),
	}
	if err := e.store.InsertStatement(ctx, st); err != nil {
		log.Fatal().Err(err).Msg("Failed to register statement")
	}

	fmt.Printf("Uploaded %s as statement %s (%s)\n", filename, st.ID, uri)

	if *process {
		if err := e.processor.Process(ctx, st.ID, false); err != nil {
			log.Fatal().Err(err).Msg("Processing failed")
		}
		fmt.Println("Processing completed successfully.")
	}
}

func runProcess(log zerolog.Logger) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	statementID := fs.String("statement", "", "statement ID (required)")
	reprocess := fs.Bool("reprocess", false, "allow re-running a completed or failed statement")
	fs.Parse(os.Args[2:])

	if *statementID == "" {
		log.Fatal().Msg("Usage: cli process -statement STATEMENT_ID [-reprocess]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	e, err := buildEnv(ctx, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer e.close()

	if err := e.processor.Process(ctx, *statementID, *reprocess); err != nil {
		log.Fatal().Err(err).Msg("Processing failed")
	}

	fmt.Println("Processing completed successfully.")
}

func runInspect(log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	statementID := fs.String("statement", "", "statement ID (required)")
	fs.Parse(os.Args[2:])

	if *statementID == "" {
		log.Fatal().Msg("Usage: cli inspect -statement STATEMENT_ID")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	e, err := buildEnv(ctx, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer e.close()

	st, err := e.store.GetStatementByID(ctx, *statementID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load statement")
	}

	txs, err := e.store.ListTransactionsByStatement(ctx, *statementID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load transactions")
	}

	out := struct {
		Statement    *domain.Statement     `json:"statement"`
		Transactions []*domain.Transaction `json:"transactions"`
	}{st, txs}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode output")
	}
}
