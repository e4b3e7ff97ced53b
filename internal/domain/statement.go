package domain

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MIME types accepted for statement uploads.
const (
	MIMETypePDF  = "application/pdf"
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
)

// MaxUploadBytes is the per-object size limit enforced at upload time.
const MaxUploadBytes = 10 << 20 // 10 MB

// AllowedMIMEType reports whether the given MIME type may be uploaded.
func AllowedMIMEType(mimeType string) bool {
	switch mimeType {
	case MIMETypePDF, MIMETypeJPEG, MIMETypePNG:
		return true
	}
	return false
}

// MIMETypeFromFilename derives a MIME type from the filename extension.
// Used when re-processing statements whose stored MIME type is blank.
func MIMETypeFromFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return MIMETypePDF
	case ".jpg", ".jpeg":
		return MIMETypeJPEG
	case ".png":
		return MIMETypePNG
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return ""
}

// Statement is one uploaded financial document and its processing record.
// Created on upload; only the pipeline mutates it afterwards.
type Statement struct {
	ID     string
	UserID string

	Filename   string
	MIMEType   string
	StorageURI string

	Status       Status
	ErrorMessage string

	AccountID string // optional linked account

	PeriodStart *time.Time
	PeriodEnd   *time.Time

	UploadedAt  time.Time
	ProcessedAt *time.Time
}

// Transaction is one parsed line item extracted from a statement.
// Created in bulk by the parser's output; never mutated afterwards.
type Transaction struct {
	ID          string
	StatementID string

	Description string
	Amount      decimal.Decimal
	Date        *time.Time

	RawText     string
	NeedsReview bool

	CreatedAt time.Time
}

// BankAccount is a user's bank or credit account, matched or created from
// extracted statement metadata.
type BankAccount struct {
	ID     string
	UserID string

	Name        string
	Institution string
	AccountType string
	LastFour    string

	Balance *decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Account types. Extraction defaults to AccountTypeOther when the statement
// text gives no hint.
const (
	AccountTypeChecking   = "CHECKING"
	AccountTypeSavings    = "SAVINGS"
	AccountTypeCreditCard = "CREDIT_CARD"
	AccountTypeOther      = "OTHER"
)

// AccountInfo is the account metadata extracted from statement text. All
// fields are best-effort; Institution and LastFour drive account resolution.
type AccountInfo struct {
	Institution string
	LastFour    string
	AccountName string
	AccountType string
	Balance     *decimal.Decimal

	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// HasAccountIdentity reports whether the info is sufficient to look up or
// create a bank account.
func (i AccountInfo) HasAccountIdentity() bool {
	return i.Institution != "" && i.LastFour != ""
}

// DefaultAccountName returns the display name for a newly created account.
func (i AccountInfo) DefaultAccountName() string {
	if i.AccountName != "" {
		return i.AccountName
	}
	return fmt.Sprintf("%s Account", i.Institution)
}
