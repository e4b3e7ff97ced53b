// Package memory implements the persistence layer in process memory. It backs
// local development and tests; data is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ivolkov/statement-ingest/internal/domain"
	"github.com/ivolkov/statement-ingest/internal/store"
)

// Store is an in-memory implementation of store.Store. It is safe for
// concurrent use.
type Store struct {
	mu         sync.RWMutex
	statements map[string]*domain.Statement
	txns       map[string][]*domain.Transaction // keyed by statement ID
	accounts   map[string]*domain.BankAccount
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		statements: make(map[string]*domain.Statement),
		txns:       make(map[string][]*domain.Transaction),
		accounts:   make(map[string]*domain.BankAccount),
	}
}

// Close implements store.Store. It is a no-op.
func (s *Store) Close() error {
	return nil
}

func copyStatement(st *domain.Statement) *domain.Statement {
	c := *st
	return &c
}

func copyAccount(acct *domain.BankAccount) *domain.BankAccount {
	c := *acct
	return &c
}

// InsertStatement implements store.StatementStore.
func (s *Store) InsertStatement(ctx context.Context, st *domain.Statement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statements[st.ID] = copyStatement(st)
	return nil
}

// GetStatement implements store.StatementStore.
func (s *Store) GetStatement(ctx context.Context, userID, statementID string) (*domain.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.statements[statementID]
	if !ok || st.UserID != userID {
		return nil, store.ErrNotFound
	}
	return copyStatement(st), nil
}

// GetStatementByID implements store.StatementStore.
func (s *Store) GetStatementByID(ctx context.Context, statementID string) (*domain.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.statements[statementID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyStatement(st), nil
}

// ListRecentStatements implements store.StatementStore.
func (s *Store) ListRecentStatements(ctx context.Context, userID string, limit int) ([]*store.StatementWithAccount, error) {
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []*domain.Statement
	for _, st := range s.statements {
		if st.UserID == userID {
			owned = append(owned, st)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].UploadedAt.After(owned[j].UploadedAt)
	})
	if len(owned) > limit {
		owned = owned[:limit]
	}

	results := make([]*store.StatementWithAccount, 0, len(owned))
	for _, st := range owned {
		item := &store.StatementWithAccount{Statement: copyStatement(st)}
		if st.AccountID != "" {
			if acct, ok := s.accounts[st.AccountID]; ok {
				item.Account = copyAccount(acct)
			}
		}
		results = append(results, item)
	}

	return results, nil
}

// MarkStatementProcessing implements store.StatementStore.
func (s *Store) MarkStatementProcessing(ctx context.Context, statementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statements[statementID]
	if !ok {
		return store.ErrNotFound
	}
	st.Status = domain.StatusProcessing
	st.ErrorMessage = ""
	st.ProcessedAt = nil
	return nil
}

// MarkStatementCompleted implements store.StatementStore.
func (s *Store) MarkStatementCompleted(ctx context.Context, statementID string, processedAt time.Time, accountID string, periodStart, periodEnd *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statements[statementID]
	if !ok {
		return store.ErrNotFound
	}
	st.Status = domain.StatusCompleted
	st.ProcessedAt = &processedAt
	if accountID != "" {
		st.AccountID = accountID
	}
	st.PeriodStart = periodStart
	st.PeriodEnd = periodEnd
	return nil
}

// MarkStatementFailed implements store.StatementStore.
func (s *Store) MarkStatementFailed(ctx context.Context, statementID, errorMessage string, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statements[statementID]
	if !ok {
		return store.ErrNotFound
	}
	st.Status = domain.StatusFailed
	st.ErrorMessage = errorMessage
	st.ProcessedAt = &processedAt
	return nil
}

// LinkStatementAccount implements store.StatementStore.
func (s *Store) LinkStatementAccount(ctx context.Context, statementID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statements[statementID]
	if !ok {
		return store.ErrNotFound
	}
	st.AccountID = accountID
	return nil
}

// UpdateStatementMIMEType implements store.StatementStore.
func (s *Store) UpdateStatementMIMEType(ctx context.Context, statementID, mimeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statements[statementID]
	if !ok {
		return store.ErrNotFound
	}
	st.MIMEType = mimeType
	return nil
}

// InsertTransactions implements store.TransactionStore.
func (s *Store) InsertTransactions(ctx context.Context, txs []*domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		c := *tx
		s.txns[tx.StatementID] = append(s.txns[tx.StatementID], &c)
	}
	return nil
}

// ListTransactionsByStatement implements store.TransactionStore.
func (s *Store) ListTransactionsByStatement(ctx context.Context, statementID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.txns[statementID]
	txs := make([]*domain.Transaction, 0, len(src))
	for _, tx := range src {
		c := *tx
		txs = append(txs, &c)
	}
	return txs, nil
}

// InsertAccount implements store.AccountStore.
func (s *Store) InsertAccount(ctx context.Context, acct *domain.BankAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[acct.ID] = copyAccount(acct)
	return nil
}

// FindAccountByInstitutionAndLastFour implements store.AccountStore.
// The match is exact and case sensitive; the oldest account wins when more
// than one matches.
func (s *Store) FindAccountByInstitutionAndLastFour(ctx context.Context, userID, institution, lastFour string) (*domain.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var match *domain.BankAccount
	for _, acct := range s.accounts {
		if acct.UserID != userID || acct.Institution != institution || acct.LastFour != lastFour {
			continue
		}
		if match == nil || acct.CreatedAt.Before(match.CreatedAt) {
			match = acct
		}
	}
	if match == nil {
		return nil, nil
	}
	return copyAccount(match), nil
}

// UpdateAccountBalance implements store.AccountStore.
func (s *Store) UpdateAccountBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	acct.Balance = &balance
	acct.UpdatedAt = time.Now()
	return nil
}

// GetAccount implements store.AccountStore.
func (s *Store) GetAccount(ctx context.Context, userID, accountID string) (*domain.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[accountID]
	if !ok || acct.UserID != userID {
		return nil, store.ErrNotFound
	}
	return copyAccount(acct), nil
}

// ListAccounts implements store.AccountStore.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]*domain.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var accounts []*domain.BankAccount
	for _, acct := range s.accounts {
		if acct.UserID == userID {
			accounts = append(accounts, copyAccount(acct))
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

// Ensure Store implements the full store interface.
var _ store.Store = (*Store)(nil)
