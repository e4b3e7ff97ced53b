// Package bigquery implements the persistence layer on top of Google BigQuery.
// All queries use query parameters and fully qualified table names.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/ivolkov/statement-ingest/internal/store"
)

const (
	statementsTable   = "statements"
	transactionsTable = "transactions"
	accountsTable     = "bank_accounts"
)

// Store implements store.Store against a BigQuery dataset. A single client
// is shared across all operations and released with Close.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// New creates a BigQuery-backed store for the given project and dataset.
func New(ctx context.Context, projectID, datasetID string, opts ...option.ClientOption) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.New: creating client: %w", err)
	}
	return NewWithClient(client, projectID, datasetID), nil
}

// NewWithClient creates a store using the provided BigQuery client.
// The caller keeps ownership of the client unless Close is used.
func NewWithClient(client *bigquery.Client, projectID, datasetID string) *Store {
	return &Store{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
	}
}

// Close closes the underlying BigQuery client.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// table returns the fully qualified, backtick-quoted table name.
func (s *Store) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.projectID, s.datasetID, name)
}

// runDML runs a DML query and waits for it to complete.
func (s *Store) runDML(ctx context.Context, opName string, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running query: %w", opName, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", opName, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", opName, err)
	}
	return nil
}

// Ensure Store implements the full store interface.
var _ store.Store = (*Store)(nil)
