package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Store is the read surface the Reader needs. *Queries implements it.
type Store interface {
	AccountByID(ctx context.Context, id int64) (Account, error)
	Transactions(ctx context.Context, accountID int64, r shared.DateRange) ([]Transaction, error)
	SignedSum(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error)
	Balances(ctx context.Context, companyID int64, asOf time.Time) ([]AccountBalance, error)
	Movements(ctx context.Context, companyID int64, r shared.DateRange) ([]AccountBalance, error)
}

// Reader exposes read-only snapshots of posted ledger activity.
type Reader struct {
	store Store
}

// NewReader constructs a Reader.
func NewReader(store Store) *Reader {
	return &Reader{store: store}
}

// GetTransactions returns the account's transactions in r, oldest first.
func (r *Reader) GetTransactions(ctx context.Context, accountID int64, rng shared.DateRange) ([]Transaction, error) {
	if _, err := r.store.AccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return r.store.Transactions(ctx, accountID, rng)
}

// GetBalance returns the book balance on the account's normal side as of
// asOf, inclusive.
func (r *Reader) GetBalance(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error) {
	account, err := r.store.AccountByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	sum, err := r.store.SignedSum(ctx, accountID, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Type.BalanceOf(sum), nil
}

// Balances aggregates every company account as of asOf.
func (r *Reader) Balances(ctx context.Context, companyID int64, asOf time.Time) ([]AccountBalance, error) {
	return r.store.Balances(ctx, companyID, asOf)
}

// Movements aggregates every company account's net activity in rng.
func (r *Reader) Movements(ctx context.Context, companyID int64, rng shared.DateRange) ([]AccountBalance, error) {
	return r.store.Movements(ctx, companyID, rng)
}
