package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/ivolkov/statement-ingest/internal/domain"
	"github.com/ivolkov/statement-ingest/internal/store"
)

// AccountRow mirrors the bank_accounts table schema. Balance is a nullable
// NUMERIC column, carried as *big.Rat the way the BigQuery client expects.
type AccountRow struct {
	AccountID   string   `bigquery:"account_id"` // REQUIRED
	UserID      string   `bigquery:"user_id"`    // REQUIRED
	AccountName string   `bigquery:"account_name"`
	Institution string   `bigquery:"institution"`
	AccountType string   `bigquery:"account_type"`
	LastFour    string   `bigquery:"last_four"`
	Balance     *big.Rat `bigquery:"balance"`

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
	UpdatedTS time.Time `bigquery:"updated_ts"` // REQUIRED
}

// ratToDecimal converts a nullable NUMERIC value to a decimal pointer,
// keeping two fractional digits.
func ratToDecimal(r *big.Rat) *decimal.Decimal {
	if r == nil {
		return nil
	}
	d := decimal.NewFromBigRat(r, 2)
	return &d
}

// decimalToRat converts an optional decimal to the *big.Rat the BigQuery
// client uses for NUMERIC values. Returns nil for nil input.
func decimalToRat(d *decimal.Decimal) *big.Rat {
	if d == nil {
		return nil
	}
	return d.Rat()
}

func accountRowFromDomain(acct *domain.BankAccount) *AccountRow {
	return &AccountRow{
		AccountID:   acct.ID,
		UserID:      acct.UserID,
		AccountName: acct.Name,
		Institution: acct.Institution,
		AccountType: acct.AccountType,
		LastFour:    acct.LastFour,
		Balance:     decimalToRat(acct.Balance),
		CreatedTS:   acct.CreatedAt,
		UpdatedTS:   acct.UpdatedAt,
	}
}

func (r *AccountRow) toDomain() *domain.BankAccount {
	return &domain.BankAccount{
		ID:          r.AccountID,
		UserID:      r.UserID,
		Name:        r.AccountName,
		Institution: r.Institution,
		AccountType: r.AccountType,
		LastFour:    r.LastFour,
		Balance:     ratToDecimal(r.Balance),
		CreatedAt:   r.CreatedTS,
		UpdatedAt:   r.UpdatedTS,
	}
}

const accountColumns = `
	account_id,
	user_id,
	account_name,
	institution,
	account_type,
	last_four,
	balance,
	created_ts,
	updated_ts`

// InsertAccount inserts a new bank account row.
func (s *Store) InsertAccount(ctx context.Context, acct *domain.BankAccount) error {
	row := accountRowFromDomain(acct)

	q := s.client.Query(`
		INSERT INTO ` + s.table(accountsTable) + ` (` + accountColumns + `
		)
		VALUES (
			@account_id, @user_id, @account_name, @institution,
			@account_type, @last_four, @balance, @created_ts, @updated_ts
		)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: row.AccountID},
		{Name: "user_id", Value: row.UserID},
		{Name: "account_name", Value: row.AccountName},
		{Name: "institution", Value: row.Institution},
		{Name: "account_type", Value: row.AccountType},
		{Name: "last_four", Value: row.LastFour},
		{Name: "balance", Value: row.Balance},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "updated_ts", Value: row.UpdatedTS},
	}

	return s.runDML(ctx, "InsertAccount", q)
}

// FindAccountByInstitutionAndLastFour looks up a user's account by exact
// institution name and last-four digits. The comparison is case sensitive.
// Returns nil when no account matches.
func (s *Store) FindAccountByInstitutionAndLastFour(ctx context.Context, userID, institution, lastFour string) (*domain.BankAccount, error) {
	q := s.client.Query(`
		SELECT ` + accountColumns + `
		FROM ` + s.table(accountsTable) + `
		WHERE user_id = @user_id
		  AND institution = @institution
		  AND last_four = @last_four
		ORDER BY created_ts
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "institution", Value: institution},
		{Name: "last_four", Value: lastFour},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindAccountByInstitutionAndLastFour: reading query: %w", err)
	}

	var row AccountRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindAccountByInstitutionAndLastFour: iterating: %w", err)
	}

	return row.toDomain(), nil
}

// UpdateAccountBalance sets the balance on an existing account.
func (s *Store) UpdateAccountBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	q := s.client.Query(`
		UPDATE ` + s.table(accountsTable) + `
		SET balance = @balance,
		    updated_ts = CURRENT_TIMESTAMP()
		WHERE account_id = @account_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "balance", Value: balance.Rat()},
		{Name: "account_id", Value: accountID},
	}

	return s.runDML(ctx, "UpdateAccountBalance", q)
}

// GetAccount retrieves an account scoped to its owner.
func (s *Store) GetAccount(ctx context.Context, userID, accountID string) (*domain.BankAccount, error) {
	q := s.client.Query(`
		SELECT ` + accountColumns + `
		FROM ` + s.table(accountsTable) + `
		WHERE account_id = @account_id
		  AND user_id = @user_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: reading query: %w", err)
	}

	var row AccountRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccount: iterating: %w", err)
	}

	return row.toDomain(), nil
}

// ListAccounts returns all accounts for a user, oldest first.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]*domain.BankAccount, error) {
	q := s.client.Query(`
		SELECT ` + accountColumns + `
		FROM ` + s.table(accountsTable) + `
		WHERE user_id = @user_id
		ORDER BY created_ts
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: reading query: %w", err)
	}

	var accounts []*domain.BankAccount
	for {
		var row AccountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAccounts: iterating: %w", err)
		}
		accounts = append(accounts, row.toDomain())
	}

	return accounts, nil
}
