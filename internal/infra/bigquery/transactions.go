package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/ivolkov/statement-ingest/internal/domain"
)

// TransactionRow mirrors the transactions table schema.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	StatementID   string `bigquery:"statement_id"`   // REQUIRED

	Description string            `bigquery:"description"`
	Amount      *big.Rat          `bigquery:"amount"` // REQUIRED NUMERIC
	TxDate      bigquery.NullDate `bigquery:"transaction_date"`

	RawText     string `bigquery:"raw_text"`
	NeedsReview bool   `bigquery:"needs_review"`

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

func transactionRowFromDomain(tx *domain.Transaction) *TransactionRow {
	row := &TransactionRow{
		TransactionID: tx.ID,
		StatementID:   tx.StatementID,
		Description:   tx.Description,
		Amount:        tx.Amount.Rat(),
		RawText:       tx.RawText,
		NeedsReview:   tx.NeedsReview,
		CreatedTS:     tx.CreatedAt,
	}
	if tx.Date != nil {
		row.TxDate = bigquery.NullDate{Date: civil.DateOf(*tx.Date), Valid: true}
	}
	return row
}

func (r *TransactionRow) toDomain() *domain.Transaction {
	tx := &domain.Transaction{
		ID:          r.TransactionID,
		StatementID: r.StatementID,
		Description: r.Description,
		RawText:     r.RawText,
		NeedsReview: r.NeedsReview,
		CreatedAt:   r.CreatedTS,
	}
	if r.Amount != nil {
		tx.Amount = decimal.NewFromBigRat(r.Amount, 2)
	}
	if r.TxDate.Valid {
		t := r.TxDate.Date.In(time.UTC)
		tx.Date = &t
	}
	return tx
}

// InsertTransactions inserts a batch of parsed transactions via the
// streaming inserter. Transactions are append only so the streaming buffer
// restriction on DML does not apply.
func (s *Store) InsertTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	rows := make([]*TransactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, transactionRowFromDomain(tx))
	}

	table := s.client.DatasetInProject(s.projectID, s.datasetID).Table(transactionsTable)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting %d rows: %w", len(rows), err)
	}

	return nil
}

// ListTransactionsByStatement returns all transactions for a statement,
// oldest first.
func (s *Store) ListTransactionsByStatement(ctx context.Context, statementID string) ([]*domain.Transaction, error) {
	q := s.client.Query(`
		SELECT
			transaction_id,
			statement_id,
			description,
			amount,
			transaction_date,
			raw_text,
			needs_review,
			created_ts
		FROM ` + s.table(transactionsTable) + `
		WHERE statement_id = @statement_id
		ORDER BY created_ts
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: statementID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactionsByStatement: reading query: %w", err)
	}

	var txs []*domain.Transaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactionsByStatement: iterating: %w", err)
		}
		txs = append(txs, row.toDomain())
	}

	return txs, nil
}
