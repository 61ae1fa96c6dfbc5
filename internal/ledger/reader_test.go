package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/shared"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newFixture() (*MemoryStore, *Reader) {
	store := NewMemoryStore()
	store.PutAccount(Account{ID: 1, CompanyID: 7, Code: "1001", Name: "Operating Cash", Type: AccountTypeAsset, Category: CategoryCash, IsActive: true})
	store.PutAccount(Account{ID: 2, CompanyID: 7, Code: "4000", Name: "Sales", Type: AccountTypeRevenue, IsActive: true})
	return store, NewReader(store)
}

func TestGetBalanceIsSignedSumUpToDate(t *testing.T) {
	store, reader := newFixture()
	ctx := context.Background()
	store.Post(TransactionInput{AccountID: 1, Date: day(2025, 1, 5), Amount: decimal.RequireFromString("500.00")})
	store.Post(TransactionInput{AccountID: 1, Date: day(2025, 1, 10), Amount: decimal.RequireFromString("-120.00")})
	store.Post(TransactionInput{AccountID: 2, Date: day(2025, 1, 5), Amount: decimal.RequireFromString("-500.00")})

	bal, err := reader.GetBalance(ctx, 1, day(2025, 1, 10))
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("380")), bal.String())

	bal, err = reader.GetBalance(ctx, 1, day(2025, 1, 9))
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("500")), bal.String())

	// credit-normal accounts report positive balances for credits
	bal, err = reader.GetBalance(ctx, 2, day(2025, 1, 31))
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("500")), bal.String())
}

func TestGetBalanceIgnoresLaterTransactions(t *testing.T) {
	store, reader := newFixture()
	ctx := context.Background()
	store.Post(TransactionInput{AccountID: 1, Date: day(2025, 1, 5), Amount: decimal.RequireFromString("42.10")})

	before, err := reader.GetBalance(ctx, 1, day(2025, 1, 31))
	require.NoError(t, err)

	store.Post(TransactionInput{AccountID: 1, Date: day(2025, 2, 1), Amount: decimal.RequireFromString("999.99")})
	after, err := reader.GetBalance(ctx, 1, day(2025, 1, 31))
	require.NoError(t, err)
	assert.True(t, before.Equal(after))
}

func TestGetTransactionsOrdersByDateThenInsertion(t *testing.T) {
	store, reader := newFixture()
	ctx := context.Background()
	late := store.Post(TransactionInput{AccountID: 1, Date: day(2025, 1, 9), Amount: decimal.NewFromInt(1)})
	first := store.Post(TransactionInput{AccountID: 1, Date: day(2025, 1, 3), Amount: decimal.NewFromInt(2)})
	second := store.Post(TransactionInput{AccountID: 1, Date: day(2025, 1, 3), Amount: decimal.NewFromInt(3)})
	store.Post(TransactionInput{AccountID: 1, Date: day(2025, 2, 3), Amount: decimal.NewFromInt(4)})

	rng, err := shared.NewDateRange(day(2025, 1, 1), day(2025, 1, 31))
	require.NoError(t, err)
	txns, err := reader.GetTransactions(ctx, 1, rng)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, []int64{first.ID, second.ID, late.ID}, []int64{txns[0].ID, txns[1].ID, txns[2].ID})

	again, err := reader.GetTransactions(ctx, 1, rng)
	require.NoError(t, err)
	assert.Equal(t, txns, again)
}

func TestUnknownAccountIsNotFound(t *testing.T) {
	_, reader := newFixture()
	_, err := reader.GetBalance(context.Background(), 99, day(2025, 1, 1))
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = reader.GetTransactions(context.Background(), 99, shared.DateRange{Start: day(2025, 1, 1), End: day(2025, 1, 2)})
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestBalancesAggregatePerCompany(t *testing.T) {
	store, reader := newFixture()
	store.PutAccount(Account{ID: 3, CompanyID: 8, Code: "1001", Name: "Other tenant", Type: AccountTypeAsset, IsActive: true})
	store.Post(TransactionInput{AccountID: 1, Date: day(2025, 1, 5), Amount: decimal.NewFromInt(10)})
	store.Post(TransactionInput{AccountID: 3, Date: day(2025, 1, 5), Amount: decimal.NewFromInt(10)})

	balances, err := reader.Balances(context.Background(), 7, day(2025, 1, 31))
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "1001", balances[0].Code)
	assert.True(t, balances[0].Balance().Equal(decimal.NewFromInt(10)))
	assert.True(t, balances[1].Balance().IsZero())
}

func TestBankAccountCurrencyValidation(t *testing.T) {
	assert.NoError(t, BankAccount{Currency: "usd"}.ValidateCurrency())
	assert.ErrorIs(t, BankAccount{Currency: "XXQ"}.ValidateCurrency(), shared.ErrValidation)
}
