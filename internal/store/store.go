package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ivolkov/statement-ingest/internal/domain"
)

// ErrNotFound is returned by Get* operations when no row matches, including
// rows that exist but belong to a different user.
var ErrNotFound = errors.New("not found")

// StatementWithAccount pairs a statement with its linked account, if any.
type StatementWithAccount struct {
	Statement *domain.Statement   `json:"statement"`
	Account   *domain.BankAccount `json:"account,omitempty"`
}

// StatementStore provides statement persistence. Status mutations are
// individual operations rather than a generic update so that each write
// stamps exactly the fields its transition owns.
type StatementStore interface {
	// InsertStatement inserts a new statement row.
	InsertStatement(ctx context.Context, st *domain.Statement) error

	// GetStatement retrieves a statement scoped to its owner.
	GetStatement(ctx context.Context, userID, statementID string) (*domain.Statement, error)

	// GetStatementByID retrieves a statement regardless of owner. Only the
	// pipeline uses this; request handlers must use GetStatement.
	GetStatementByID(ctx context.Context, statementID string) (*domain.Statement, error)

	// ListRecentStatements returns the newest statements for a user, newest
	// first, each with its linked account when one is set.
	ListRecentStatements(ctx context.Context, userID string, limit int) ([]*StatementWithAccount, error)

	// MarkStatementProcessing sets status=PROCESSING and clears any previous
	// error message and processed timestamp.
	MarkStatementProcessing(ctx context.Context, statementID string) error

	// MarkStatementCompleted sets status=COMPLETED with the processed
	// timestamp, linked account and statement period when extracted.
	MarkStatementCompleted(ctx context.Context, statementID string, processedAt time.Time, accountID string, periodStart, periodEnd *time.Time) error

	// MarkStatementFailed sets status=FAILED with the error message and
	// processed timestamp.
	MarkStatementFailed(ctx context.Context, statementID, errorMessage string, processedAt time.Time) error

	// LinkStatementAccount sets the statement's account reference.
	LinkStatementAccount(ctx context.Context, statementID, accountID string) error

	// UpdateStatementMIMEType records a MIME type re-derived from the
	// filename extension during reprocessing.
	UpdateStatementMIMEType(ctx context.Context, statementID, mimeType string) error
}

// TransactionStore provides transaction persistence.
type TransactionStore interface {
	// InsertTransactions inserts a batch of parsed transactions.
	InsertTransactions(ctx context.Context, txs []*domain.Transaction) error

	// ListTransactionsByStatement returns all transactions for a statement.
	ListTransactionsByStatement(ctx context.Context, statementID string) ([]*domain.Transaction, error)
}

// AccountStore provides bank-account persistence.
type AccountStore interface {
	// InsertAccount inserts a new bank account row.
	InsertAccount(ctx context.Context, acct *domain.BankAccount) error

	// FindAccountByInstitutionAndLastFour looks up a user's account by exact
	// case-sensitive institution name and last-four digits. Returns nil when
	// no account matches.
	FindAccountByInstitutionAndLastFour(ctx context.Context, userID, institution, lastFour string) (*domain.BankAccount, error)

	// UpdateAccountBalance sets the balance on an existing account.
	UpdateAccountBalance(ctx context.Context, accountID string, balance decimal.Decimal) error

	// GetAccount retrieves an account scoped to its owner.
	GetAccount(ctx context.Context, userID, accountID string) (*domain.BankAccount, error)

	// ListAccounts returns all accounts for a user.
	ListAccounts(ctx context.Context, userID string) ([]*domain.BankAccount, error)
}

// Store is the full persistence surface used by the composition roots.
type Store interface {
	StatementStore
	TransactionStore
	AccountStore

	// Close releases the underlying client, if any.
	Close() error
}
