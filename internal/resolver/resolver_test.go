package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivolkov/statement-ingest/internal/domain"
	"github.com/ivolkov/statement-ingest/internal/infra/memory"
)

func chaseInfo() domain.AccountInfo {
	return domain.AccountInfo{
		Institution: "Chase",
		LastFour:    "1234",
		AccountType: domain.AccountTypeChecking,
	}
}

func TestResolveCreatesAccount(t *testing.T) {
	st := memory.New()
	r := New(st)

	id, err := r.Resolve(context.Background(), "user-1", chaseInfo(), "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	acct, err := st.GetAccount(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, "Chase", acct.Institution)
	assert.Equal(t, "1234", acct.LastFour)
	assert.Equal(t, "Chase Account", acct.Name)
	assert.Equal(t, domain.AccountTypeChecking, acct.AccountType)
}

func TestResolveReusesExistingAccount(t *testing.T) {
	st := memory.New()
	r := New(st)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "user-1", chaseInfo(), "")
	require.NoError(t, err)

	second, err := r.Resolve(ctx, "user-1", chaseInfo(), "")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	accounts, err := st.ListAccounts(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestResolveIsCaseSensitive(t *testing.T) {
	st := memory.New()
	r := New(st)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "user-1", chaseInfo(), "")
	require.NoError(t, err)

	lower := chaseInfo()
	lower.Institution = "chase"
	second, err := r.Resolve(ctx, "user-1", lower, "")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "differently-cased institutions are distinct accounts")
}

func TestResolveScopedToUser(t *testing.T) {
	st := memory.New()
	r := New(st)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "user-1", chaseInfo(), "")
	require.NoError(t, err)

	second, err := r.Resolve(ctx, "user-2", chaseInfo(), "")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestResolveExplicitAccountPassesThrough(t *testing.T) {
	st := memory.New()
	r := New(st)

	id, err := r.Resolve(context.Background(), "user-1", chaseInfo(), "acct-42")
	require.NoError(t, err)
	assert.Equal(t, "acct-42", id)

	accounts, err := st.ListAccounts(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, accounts, "explicit account must not trigger creation")
}

func TestResolveWithoutIdentity(t *testing.T) {
	st := memory.New()
	r := New(st)

	id, err := r.Resolve(context.Background(), "user-1", domain.AccountInfo{Institution: "Chase"}, "")
	require.NoError(t, err)
	assert.Empty(t, id)

	id, err = r.Resolve(context.Background(), "user-1", domain.AccountInfo{LastFour: "1234"}, "")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestResolveUpdatesBalanceOnMatch(t *testing.T) {
	st := memory.New()
	r := New(st)
	ctx := context.Background()

	id, err := r.Resolve(ctx, "user-1", chaseInfo(), "")
	require.NoError(t, err)

	bal := decimal.RequireFromString("2500.00")
	info := chaseInfo()
	info.Balance = &bal
	_, err = r.Resolve(ctx, "user-1", info, "")
	require.NoError(t, err)

	acct, err := st.GetAccount(ctx, "user-1", id)
	require.NoError(t, err)
	require.NotNil(t, acct.Balance)
	assert.True(t, acct.Balance.Equal(bal), "balance = %s, want %s", acct.Balance, bal)
}

func TestResolveConcurrentSameKeyCreatesOne(t *testing.T) {
	st := memory.New()
	r := New(st)
	ctx := context.Background()

	const workers = 16
	ids := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = r.Resolve(ctx, "user-1", chaseInfo(), "")
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for concurrent resolves")
	}

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	accounts, err := st.ListAccounts(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}
