package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivolkov/statement-ingest/internal/domain"
	"github.com/ivolkov/statement-ingest/internal/infra/memory"
	"github.com/ivolkov/statement-ingest/internal/parser"
	"github.com/ivolkov/statement-ingest/internal/resolver"
)

type fakeExtractor struct {
	text    string
	err     error
	gotURI  string
	gotMIME string
}

func (f *fakeExtractor) Extract(ctx context.Context, uri, mimeType string) (string, error) {
	f.gotURI = uri
	f.gotMIME = mimeType
	return f.text, f.err
}

const statementText = `CHASE BANK
Everyday Checking
Account ending in 1234
Statement Period: 03/01/2024 - 03/31/2024
03/02 COFFEE SHOP $4.50
03/05 GROCERY STORE $23.10
New Balance: $2,500.00`

func newTestProcessor(st *memory.Store, ex *fakeExtractor) *Processor {
	clock := func() time.Time { return time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC) }
	p := NewProcessor(st, ex, parser.NewWithClock(clock), resolver.New(st), zerolog.Nop())
	p.now = clock
	return p
}

func uploaded(id string) *domain.Statement {
	return &domain.Statement{
		ID:         id,
		UserID:     "user-1",
		Filename:   "march.pdf",
		MIMEType:   domain.MIMETypePDF,
		StorageURI: "gs://statements/user-1/" + id + ".pdf",
		Status:     domain.StatusUploaded,
		UploadedAt: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestProcessCompletesStatement(t *testing.T) {
	st := memory.New()
	ex := &fakeExtractor{text: statementText}
	p := newTestProcessor(st, ex)
	ctx := context.Background()

	require.NoError(t, st.InsertStatement(ctx, uploaded("st-1")))
	require.NoError(t, p.Process(ctx, "st-1", false))

	got, err := st.GetStatementByID(ctx, "st-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage)
	require.NotNil(t, got.ProcessedAt)
	require.NotNil(t, got.PeriodStart)
	assert.Equal(t, time.March, got.PeriodStart.Month())

	assert.Equal(t, "gs://statements/user-1/st-1.pdf", ex.gotURI)
	assert.Equal(t, domain.MIMETypePDF, ex.gotMIME)

	txs, err := st.ListTransactionsByStatement(ctx, "st-1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "03/02 COFFEE SHOP $4.50", txs[0].Description)

	// Account resolved from the statement text and linked.
	require.NotEmpty(t, got.AccountID)
	acct, err := st.GetAccount(ctx, "user-1", got.AccountID)
	require.NoError(t, err)
	assert.Equal(t, "Chase", acct.Institution)
	assert.Equal(t, "1234", acct.LastFour)
}

func TestProcessFailureMarksFailed(t *testing.T) {
	st := memory.New()
	ex := &fakeExtractor{err: errors.New("no text detected in 3 page(s)")}
	p := newTestProcessor(st, ex)
	ctx := context.Background()

	require.NoError(t, st.InsertStatement(ctx, uploaded("st-1")))

	err := p.Process(ctx, "st-1", false)
	require.Error(t, err)

	got, getErr := st.GetStatementByID(ctx, "st-1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "no text detected")
	require.NotNil(t, got.ProcessedAt)
}

func TestProcessRejectsWrongStatus(t *testing.T) {
	st := memory.New()
	p := newTestProcessor(st, &fakeExtractor{text: statementText})
	ctx := context.Background()

	stmt := uploaded("st-1")
	stmt.Status = domain.StatusProcessing
	require.NoError(t, st.InsertStatement(ctx, stmt))

	err := p.Process(ctx, "st-1", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not allow processing")

	got, getErr := st.GetStatementByID(ctx, "st-1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.StatusProcessing, got.Status)
}

func TestProcessTerminalNeedsReprocessFlag(t *testing.T) {
	st := memory.New()
	p := newTestProcessor(st, &fakeExtractor{text: statementText})
	ctx := context.Background()

	stmt := uploaded("st-1")
	stmt.Status = domain.StatusFailed
	stmt.ErrorMessage = "previous failure"
	require.NoError(t, st.InsertStatement(ctx, stmt))

	require.Error(t, p.Process(ctx, "st-1", false))

	require.NoError(t, p.Process(ctx, "st-1", true))

	got, err := st.GetStatementByID(ctx, "st-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage, "reprocess must clear the previous failure")
}

func TestProcessKeepsExplicitAccount(t *testing.T) {
	st := memory.New()
	p := newTestProcessor(st, &fakeExtractor{text: statementText})
	ctx := context.Background()

	stmt := uploaded("st-1")
	stmt.AccountID = "acct-9"
	require.NoError(t, st.InsertStatement(ctx, stmt))
	require.NoError(t, p.Process(ctx, "st-1", false))

	got, err := st.GetStatementByID(ctx, "st-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-9", got.AccountID)

	accounts, listErr := st.ListAccounts(ctx, "user-1")
	require.NoError(t, listErr)
	assert.Empty(t, accounts, "linked statements must not create accounts")
}

func TestProcessDerivesBlankMIMEType(t *testing.T) {
	st := memory.New()
	ex := &fakeExtractor{text: statementText}
	p := newTestProcessor(st, ex)
	ctx := context.Background()

	stmt := uploaded("st-1")
	stmt.MIMEType = ""
	require.NoError(t, st.InsertStatement(ctx, stmt))
	require.NoError(t, p.Process(ctx, "st-1", false))

	assert.Equal(t, domain.MIMETypePDF, ex.gotMIME)

	got, err := st.GetStatementByID(ctx, "st-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MIMETypePDF, got.MIMEType)
}

func TestProcessUnknownStatement(t *testing.T) {
	st := memory.New()
	p := newTestProcessor(st, &fakeExtractor{text: statementText})

	err := p.Process(context.Background(), "missing", false)
	require.Error(t, err)
}

func TestProcessNoTransactionsStillCompletes(t *testing.T) {
	st := memory.New()
	// Text with account identity but no dollar amounts.
	p := newTestProcessor(st, &fakeExtractor{text: "CHASE BANK\nAccount ending in 1234\nChecking"})
	ctx := context.Background()

	require.NoError(t, st.InsertStatement(ctx, uploaded("st-1")))
	require.NoError(t, p.Process(ctx, "st-1", false))

	got, err := st.GetStatementByID(ctx, "st-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	txs, err := st.ListTransactionsByStatement(ctx, "st-1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}
