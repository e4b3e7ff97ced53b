package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ivolkov/statement-ingest/internal/domain"
	"github.com/ivolkov/statement-ingest/internal/store"
)

// JSON shapes for API responses. Kept separate from the domain types so the
// wire format stays stable when the domain changes.

type statementJSON struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	FileType     string     `json:"fileType"`
	StorageURI   string     `json:"storageUri"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	AccountID    string     `json:"accountId,omitempty"`
	PeriodStart  *time.Time `json:"periodStart,omitempty"`
	PeriodEnd    *time.Time `json:"periodEnd,omitempty"`
	UploadedAt   time.Time  `json:"uploadedAt"`
	ProcessedAt  *time.Time `json:"processedAt,omitempty"`
}

type accountJSON struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Institution string           `json:"institution"`
	AccountType string           `json:"accountType"`
	LastFour    string           `json:"lastFour"`
	Balance     *decimal.Decimal `json:"balance,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

type transactionJSON struct {
	ID          string          `json:"id"`
	StatementID string          `json:"statementId"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        *time.Time      `json:"date,omitempty"`
	RawText     string          `json:"rawText,omitempty"`
	NeedsReview bool            `json:"needsReview"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type statementWithAccountJSON struct {
	Statement statementJSON `json:"statement"`
	Account   *accountJSON  `json:"account,omitempty"`
}

func renderStatement(st *domain.Statement) statementJSON {
	return statementJSON{
		ID:           st.ID,
		Filename:     st.Filename,
		FileType:     st.MIMEType,
		StorageURI:   st.StorageURI,
		Status:       string(st.Status),
		ErrorMessage: st.ErrorMessage,
		AccountID:    st.AccountID,
		PeriodStart:  st.PeriodStart,
		PeriodEnd:    st.PeriodEnd,
		UploadedAt:   st.UploadedAt,
		ProcessedAt:  st.ProcessedAt,
	}
}

func renderAccount(acct *domain.BankAccount) accountJSON {
	return accountJSON{
		ID:          acct.ID,
		Name:        acct.Name,
		Institution: acct.Institution,
		AccountType: acct.AccountType,
		LastFour:    acct.LastFour,
		Balance:     acct.Balance,
		CreatedAt:   acct.CreatedAt,
		UpdatedAt:   acct.UpdatedAt,
	}
}

func renderTransaction(tx *domain.Transaction) transactionJSON {
	return transactionJSON{
		ID:          tx.ID,
		StatementID: tx.StatementID,
		Description: tx.Description,
		Amount:      tx.Amount,
		Date:        tx.Date,
		RawText:     tx.RawText,
		NeedsReview: tx.NeedsReview,
		CreatedAt:   tx.CreatedAt,
	}
}

func renderStatementWithAccount(item *store.StatementWithAccount) statementWithAccountJSON {
	out := statementWithAccountJSON{Statement: renderStatement(item.Statement)}
	if item.Account != nil {
		acct := renderAccount(item.Account)
		out.Account = &acct
	}
	return out
}
