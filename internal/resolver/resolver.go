package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ivolkov/statement-ingest/internal/domain"
	"github.com/ivolkov/statement-ingest/internal/store"
)

// Resolver finds or creates the bank account a statement belongs to.
// Find-or-create is serialized per (user, institution, lastFour) key so two
// statements for the same new account processed concurrently cannot both
// miss the lookup and create duplicate rows.
type Resolver struct {
	accounts store.AccountStore
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a resolver over the given account store.
func New(accounts store.AccountStore) *Resolver {
	return &Resolver{
		accounts: accounts,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Resolve returns the account id for a statement.
//
// An explicit account id is returned unchanged; ownership is re-checked by
// the callers that accept one. Without both an institution and last-four
// digits no account can be identified and "" is returned. Otherwise an
// existing account matching both exactly (case-sensitive) is reused, with
// its balance refreshed when the statement carried one, or a new account is
// created.
func (r *Resolver) Resolve(ctx context.Context, userID string, info domain.AccountInfo, explicitAccountID string) (string, error) {
	if explicitAccountID != "" {
		return explicitAccountID, nil
	}
	if !info.HasAccountIdentity() {
		return "", nil
	}

	lock := r.keyLock(userID, info.Institution, info.LastFour)
	lock.Lock()
	defer lock.Unlock()

	existing, err := r.accounts.FindAccountByInstitutionAndLastFour(ctx, userID, info.Institution, info.LastFour)
	if err != nil {
		return "", fmt.Errorf("resolve account: lookup: %w", err)
	}

	if existing != nil {
		if info.Balance != nil {
			if err := r.accounts.UpdateAccountBalance(ctx, existing.ID, *info.Balance); err != nil {
				return "", fmt.Errorf("resolve account: update balance: %w", err)
			}
		}
		return existing.ID, nil
	}

	accountType := info.AccountType
	if accountType == "" {
		accountType = domain.AccountTypeOther
	}

	acct := &domain.BankAccount{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        info.DefaultAccountName(),
		Institution: info.Institution,
		AccountType: accountType,
		LastFour:    info.LastFour,
		Balance:     info.Balance,
		CreatedAt:   r.now(),
		UpdatedAt:   r.now(),
	}
	if err := r.accounts.InsertAccount(ctx, acct); err != nil {
		return "", fmt.Errorf("resolve account: create: %w", err)
	}
	return acct.ID, nil
}

// keyLock returns the mutex guarding one (user, institution, lastFour) key.
func (r *Resolver) keyLock(userID, institution, lastFour string) *sync.Mutex {
	key := strings.Join([]string{userID, institution, lastFour}, "\x00")

	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}
