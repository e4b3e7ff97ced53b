package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ivolkov/statement-ingest/internal/domain"
	"github.com/ivolkov/statement-ingest/internal/extraction"
	"github.com/ivolkov/statement-ingest/internal/parser"
	"github.com/ivolkov/statement-ingest/internal/resolver"
	"github.com/ivolkov/statement-ingest/internal/store"
)

// Processor runs the statement processing pipeline for a single uploaded
// statement: extract text, parse transactions, resolve the bank account and
// persist the results. All collaborators are injected so the pipeline can be
// exercised against fakes.
type Processor struct {
	store     store.Store
	extractor extraction.TextExtractor
	parser    *parser.Parser
	resolver  *resolver.Resolver
	now       func() time.Time
	log       zerolog.Logger
}

// NewProcessor creates a pipeline processor.
func NewProcessor(st store.Store, ex extraction.TextExtractor, p *parser.Parser, r *resolver.Resolver, log zerolog.Logger) *Processor {
	return &Processor{
		store:     st,
		extractor: ex,
		parser:    p,
		resolver:  r,
		now:       time.Now,
		log:       log,
	}
}

// Process runs the pipeline for the given statement. reprocess allows a
// statement that already reached COMPLETED or FAILED to re-enter PROCESSING;
// without it only an UPLOADED statement is eligible.
//
// Failures before the PROCESSING transition leave the statement untouched and
// are returned to the caller. Failures after it are recorded on the statement
// as FAILED with the error message and a processed timestamp; the statement
// never returns to PROCESSING on its own.
func (p *Processor) Process(ctx context.Context, statementID string, reprocess bool) error {
	stmt, err := p.store.GetStatementByID(ctx, statementID)
	if err != nil {
		return fmt.Errorf("process statement %s: load: %w", statementID, err)
	}

	if !stmt.Status.CanTransitionTo(domain.StatusProcessing, reprocess) {
		return fmt.Errorf("process statement %s: status %s does not allow processing", statementID, stmt.Status)
	}

	if err := p.store.MarkStatementProcessing(ctx, statementID); err != nil {
		return fmt.Errorf("process statement %s: mark processing: %w", statementID, err)
	}

	log := p.log.With().Str("statement_id", statementID).Str("user_id", stmt.UserID).Logger()
	log.Info().Str("mime_type", stmt.MIMEType).Msg("processing statement")

	if err := p.run(ctx, stmt); err != nil {
		log.Error().Err(err).Msg("statement processing failed")
		processedAt := p.now()
		if markErr := p.store.MarkStatementFailed(ctx, statementID, err.Error(), processedAt); markErr != nil {
			return fmt.Errorf("process statement %s: mark failed: %w (original error: %v)", statementID, markErr, err)
		}
		return fmt.Errorf("process statement %s: %w", statementID, err)
	}

	log.Info().Msg("statement processing completed")
	return nil
}

// run executes the pipeline body after the statement entered PROCESSING.
// Any returned error is recorded on the statement as its failure message.
func (p *Processor) run(ctx context.Context, stmt *domain.Statement) error {
	mimeType := stmt.MIMEType
	if mimeType == "" {
		// Older rows may predate MIME tracking; derive it from the filename
		// and persist so the next run does not have to.
		mimeType = domain.MIMETypeFromFilename(stmt.Filename)
		if mimeType == "" {
			return fmt.Errorf("cannot determine file type for %q", stmt.Filename)
		}
		if err := p.store.UpdateStatementMIMEType(ctx, stmt.ID, mimeType); err != nil {
			return fmt.Errorf("update mime type: %w", err)
		}
	}

	text, err := p.extractor.Extract(ctx, stmt.StorageURI, mimeType)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}

	parsed := p.parser.Parse(text)
	info := parser.ExtractAccountInfo(text)

	accountID := stmt.AccountID
	if accountID == "" {
		accountID, err = p.resolver.Resolve(ctx, stmt.UserID, info, "")
		if err != nil {
			return fmt.Errorf("resolve account: %w", err)
		}
	}

	txns := make([]*domain.Transaction, 0, len(parsed))
	for _, pt := range parsed {
		date := pt.Date
		txns = append(txns, &domain.Transaction{
			ID:          uuid.New().String(),
			StatementID: stmt.ID,
			Description: pt.Description,
			Amount:      pt.Amount,
			Date:        &date,
			RawText:     pt.RawText,
			NeedsReview: pt.NeedsReview,
			CreatedAt:   p.now(),
		})
	}
	if len(txns) > 0 {
		if err := p.store.InsertTransactions(ctx, txns); err != nil {
			return fmt.Errorf("insert %d transactions: %w", len(txns), err)
		}
	}

	processedAt := p.now()
	if err := p.store.MarkStatementCompleted(ctx, stmt.ID, processedAt, accountID, info.PeriodStart, info.PeriodEnd); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	p.log.Info().
		Str("statement_id", stmt.ID).
		Int("transactions", len(txns)).
		Str("account_id", accountID).
		Msg("statement results persisted")

	return nil
}
