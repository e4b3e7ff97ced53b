package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/ivolkov/statement-ingest/internal/domain"
	"github.com/ivolkov/statement-ingest/internal/store"
)

// StatementRow mirrors the statements table schema.
type StatementRow struct {
	StatementID      string `bigquery:"statement_id"` // REQUIRED
	UserID           string `bigquery:"user_id"`      // REQUIRED
	OriginalFilename string `bigquery:"original_filename"`
	FileMimeType     string `bigquery:"file_mime_type"`
	GCSURI           string `bigquery:"gcs_uri"` // REQUIRED

	Status       string              `bigquery:"status"` // REQUIRED
	ErrorMessage bigquery.NullString `bigquery:"error_message"`

	AccountID bigquery.NullString `bigquery:"account_id"`

	PeriodStartDate bigquery.NullDate `bigquery:"period_start_date"`
	PeriodEndDate   bigquery.NullDate `bigquery:"period_end_date"`

	UploadTS    time.Time              `bigquery:"upload_ts"` // REQUIRED
	ProcessedTS bigquery.NullTimestamp `bigquery:"processed_ts"`
}

func statementRowFromDomain(st *domain.Statement) *StatementRow {
	row := &StatementRow{
		StatementID:      st.ID,
		UserID:           st.UserID,
		OriginalFilename: st.Filename,
		FileMimeType:     st.MIMEType,
		GCSURI:           st.StorageURI,
		Status:           string(st.Status),
		UploadTS:         st.UploadedAt,
	}
	if st.ErrorMessage != "" {
		row.ErrorMessage = bigquery.NullString{StringVal: st.ErrorMessage, Valid: true}
	}
	if st.AccountID != "" {
		row.AccountID = bigquery.NullString{StringVal: st.AccountID, Valid: true}
	}
	if st.PeriodStart != nil {
		row.PeriodStartDate = bigquery.NullDate{Date: civil.DateOf(*st.PeriodStart), Valid: true}
	}
	if st.PeriodEnd != nil {
		row.PeriodEndDate = bigquery.NullDate{Date: civil.DateOf(*st.PeriodEnd), Valid: true}
	}
	if st.ProcessedAt != nil {
		row.ProcessedTS = bigquery.NullTimestamp{Timestamp: *st.ProcessedAt, Valid: true}
	}
	return row
}

func (r *StatementRow) toDomain() *domain.Statement {
	st := &domain.Statement{
		ID:         r.StatementID,
		UserID:     r.UserID,
		Filename:   r.OriginalFilename,
		MIMEType:   r.FileMimeType,
		StorageURI: r.GCSURI,
		Status:     domain.Status(r.Status),
		UploadedAt: r.UploadTS,
	}
	if r.ErrorMessage.Valid {
		st.ErrorMessage = r.ErrorMessage.StringVal
	}
	if r.AccountID.Valid {
		st.AccountID = r.AccountID.StringVal
	}
	if r.PeriodStartDate.Valid {
		t := r.PeriodStartDate.Date.In(time.UTC)
		st.PeriodStart = &t
	}
	if r.PeriodEndDate.Valid {
		t := r.PeriodEndDate.Date.In(time.UTC)
		st.PeriodEnd = &t
	}
	if r.ProcessedTS.Valid {
		t := r.ProcessedTS.Timestamp
		st.ProcessedAt = &t
	}
	return st
}

const statementColumns = `
	statement_id,
	user_id,
	original_filename,
	file_mime_type,
	gcs_uri,
	status,
	error_message,
	account_id,
	period_start_date,
	period_end_date,
	upload_ts,
	processed_ts`

// InsertStatement inserts a new statement row. DML is used instead of the
// streaming inserter because status updates follow immediately and rows in
// the streaming buffer cannot be updated.
func (s *Store) InsertStatement(ctx context.Context, st *domain.Statement) error {
	row := statementRowFromDomain(st)

	q := s.client.Query(`
		INSERT INTO ` + s.table(statementsTable) + ` (` + statementColumns + `
		)
		VALUES (
			@statement_id, @user_id, @original_filename, @file_mime_type,
			@gcs_uri, @status, @error_message, @account_id,
			@period_start_date, @period_end_date, @upload_ts, @processed_ts
		)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: row.StatementID},
		{Name: "user_id", Value: row.UserID},
		{Name: "original_filename", Value: row.OriginalFilename},
		{Name: "file_mime_type", Value: row.FileMimeType},
		{Name: "gcs_uri", Value: row.GCSURI},
		{Name: "status", Value: row.Status},
		{Name: "error_message", Value: row.ErrorMessage},
		{Name: "account_id", Value: row.AccountID},
		{Name: "period_start_date", Value: row.PeriodStartDate},
		{Name: "period_end_date", Value: row.PeriodEndDate},
		{Name: "upload_ts", Value: row.UploadTS},
		{Name: "processed_ts", Value: row.ProcessedTS},
	}

	return s.runDML(ctx, "InsertStatement", q)
}

// GetStatement retrieves a statement scoped to its owner.
func (s *Store) GetStatement(ctx context.Context, userID, statementID string) (*domain.Statement, error) {
	q := s.client.Query(`
		SELECT ` + statementColumns + `
		FROM ` + s.table(statementsTable) + `
		WHERE statement_id = @statement_id
		  AND user_id = @user_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: statementID},
		{Name: "user_id", Value: userID},
	}

	return s.readOneStatement(ctx, "GetStatement", q)
}

// GetStatementByID retrieves a statement regardless of owner.
func (s *Store) GetStatementByID(ctx context.Context, statementID string) (*domain.Statement, error) {
	q := s.client.Query(`
		SELECT ` + statementColumns + `
		FROM ` + s.table(statementsTable) + `
		WHERE statement_id = @statement_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: statementID},
	}

	return s.readOneStatement(ctx, "GetStatementByID", q)
}

func (s *Store) readOneStatement(ctx context.Context, opName string, q *bigquery.Query) (*domain.Statement, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: reading query: %w", opName, err)
	}

	var row StatementRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: iterating: %w", opName, err)
	}

	return row.toDomain(), nil
}

// recentStatementRow carries a statement joined with its account, account
// columns aliased to avoid clashing with statement columns.
type recentStatementRow struct {
	StatementRow

	JoinedAccountID bigquery.NullString    `bigquery:"acct_id"`
	AccountUserID   bigquery.NullString    `bigquery:"acct_user_id"`
	AccountName     bigquery.NullString    `bigquery:"acct_name"`
	Institution     bigquery.NullString    `bigquery:"acct_institution"`
	AccountType     bigquery.NullString    `bigquery:"acct_type"`
	LastFour        bigquery.NullString    `bigquery:"acct_last_four"`
	Balance         *big.Rat               `bigquery:"acct_balance"`
	AcctCreatedTS   bigquery.NullTimestamp `bigquery:"acct_created_ts"`
	AcctUpdatedTS   bigquery.NullTimestamp `bigquery:"acct_updated_ts"`
}

// ListRecentStatements returns the newest statements for a user, each with
// its linked account when one is set.
func (s *Store) ListRecentStatements(ctx context.Context, userID string, limit int) ([]*store.StatementWithAccount, error) {
	if limit <= 0 {
		limit = 5
	}

	q := s.client.Query(`
		SELECT
			st.statement_id,
			st.user_id,
			st.original_filename,
			st.file_mime_type,
			st.gcs_uri,
			st.status,
			st.error_message,
			st.account_id,
			st.period_start_date,
			st.period_end_date,
			st.upload_ts,
			st.processed_ts,
			a.account_id AS acct_id,
			a.user_id AS acct_user_id,
			a.account_name AS acct_name,
			a.institution AS acct_institution,
			a.account_type AS acct_type,
			a.last_four AS acct_last_four,
			a.balance AS acct_balance,
			a.created_ts AS acct_created_ts,
			a.updated_ts AS acct_updated_ts
		FROM ` + s.table(statementsTable) + ` st
		LEFT JOIN ` + s.table(accountsTable) + ` a
		  ON st.account_id = a.account_id
		WHERE st.user_id = @user_id
		ORDER BY st.upload_ts DESC
		LIMIT @limit
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentStatements: reading query: %w", err)
	}

	var results []*store.StatementWithAccount
	for {
		var row recentStatementRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentStatements: iterating: %w", err)
		}

		item := &store.StatementWithAccount{Statement: row.StatementRow.toDomain()}
		if row.JoinedAccountID.Valid {
			acct := &domain.BankAccount{
				ID:          row.JoinedAccountID.StringVal,
				UserID:      row.AccountUserID.StringVal,
				Name:        row.AccountName.StringVal,
				Institution: row.Institution.StringVal,
				AccountType: row.AccountType.StringVal,
				LastFour:    row.LastFour.StringVal,
				Balance:     ratToDecimal(row.Balance),
			}
			if row.AcctCreatedTS.Valid {
				acct.CreatedAt = row.AcctCreatedTS.Timestamp
			}
			if row.AcctUpdatedTS.Valid {
				acct.UpdatedAt = row.AcctUpdatedTS.Timestamp
			}
			item.Account = acct
		}
		results = append(results, item)
	}

	return results, nil
}

// MarkStatementProcessing sets status=PROCESSING and clears any previous
// error and processed timestamp.
func (s *Store) MarkStatementProcessing(ctx context.Context, statementID string) error {
	q := s.client.Query(`
		UPDATE ` + s.table(statementsTable) + `
		SET status = @status,
		    error_message = NULL,
		    processed_ts = NULL
		WHERE statement_id = @statement_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(domain.StatusProcessing)},
		{Name: "statement_id", Value: statementID},
	}

	return s.runDML(ctx, "MarkStatementProcessing", q)
}

// MarkStatementCompleted sets status=COMPLETED with the processed timestamp,
// linked account and statement period when extracted.
func (s *Store) MarkStatementCompleted(ctx context.Context, statementID string, processedAt time.Time, accountID string, periodStart, periodEnd *time.Time) error {
	var acct bigquery.NullString
	if accountID != "" {
		acct = bigquery.NullString{StringVal: accountID, Valid: true}
	}
	var start, end bigquery.NullDate
	if periodStart != nil {
		start = bigquery.NullDate{Date: civil.DateOf(*periodStart), Valid: true}
	}
	if periodEnd != nil {
		end = bigquery.NullDate{Date: civil.DateOf(*periodEnd), Valid: true}
	}

	q := s.client.Query(`
		UPDATE ` + s.table(statementsTable) + `
		SET status = @status,
		    processed_ts = @processed_ts,
		    account_id = COALESCE(@account_id, account_id),
		    period_start_date = @period_start_date,
		    period_end_date = @period_end_date
		WHERE statement_id = @statement_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(domain.StatusCompleted)},
		{Name: "processed_ts", Value: processedAt},
		{Name: "account_id", Value: acct},
		{Name: "period_start_date", Value: start},
		{Name: "period_end_date", Value: end},
		{Name: "statement_id", Value: statementID},
	}

	return s.runDML(ctx, "MarkStatementCompleted", q)
}

// MarkStatementFailed sets status=FAILED with the error message and
// processed timestamp.
func (s *Store) MarkStatementFailed(ctx context.Context, statementID, errorMessage string, processedAt time.Time) error {
	q := s.client.Query(`
		UPDATE ` + s.table(statementsTable) + `
		SET status = @status,
		    error_message = @error_message,
		    processed_ts = @processed_ts
		WHERE statement_id = @statement_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(domain.StatusFailed)},
		{Name: "error_message", Value: errorMessage},
		{Name: "processed_ts", Value: processedAt},
		{Name: "statement_id", Value: statementID},
	}

	return s.runDML(ctx, "MarkStatementFailed", q)
}

// LinkStatementAccount sets the statement's account reference.
func (s *Store) LinkStatementAccount(ctx context.Context, statementID, accountID string) error {
	q := s.client.Query(`
		UPDATE ` + s.table(statementsTable) + `
		SET account_id = @account_id
		WHERE statement_id = @statement_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
		{Name: "statement_id", Value: statementID},
	}

	return s.runDML(ctx, "LinkStatementAccount", q)
}

// UpdateStatementMIMEType records a re-derived MIME type.
func (s *Store) UpdateStatementMIMEType(ctx context.Context, statementID, mimeType string) error {
	q := s.client.Query(`
		UPDATE ` + s.table(statementsTable) + `
		SET file_mime_type = @file_mime_type
		WHERE statement_id = @statement_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "file_mime_type", Value: mimeType},
		{Name: "statement_id", Value: statementID},
	}

	return s.runDML(ctx, "UpdateStatementMIMEType", q)
}
