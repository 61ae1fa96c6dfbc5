package banking

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/platform/db"
)

// RepositoryPort describes persistence used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListBankAccounts(ctx context.Context, companyID int64) ([]ledger.BankAccount, error)
	BankAccount(ctx context.Context, id int64) (ledger.BankAccount, error)
	Account(ctx context.Context, id int64) (ledger.Account, error)
	SignedSum(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error)
	CountUnmatchedLedger(ctx context.Context, accountID int64, asOf time.Time) (int, error)
	CountUnmatchedBank(ctx context.Context, bankAccountID int64, asOf time.Time) (int, error)
	ActiveSessionID(ctx context.Context, bankAccountID int64) (*int64, error)
}

// TxRepository exposes operations that run inside one database transaction.
type TxRepository interface {
	BankAccountForUpdate(ctx context.Context, id int64) (ledger.BankAccount, error)
	Account(ctx context.Context, id int64) (ledger.Account, error)
	SignedSum(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error)
	InsertAdjustment(ctx context.Context, in ledger.AdjustmentInput) (ledger.Adjustment, error)
	InsertBankTransaction(ctx context.Context, in ledger.BankTransaction) (bool, error)
	TouchBankSync(ctx context.Context, bankAccountID int64, at time.Time, balance *decimal.Decimal) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool    *pgxpool.Pool
	queries *ledger.Queries
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, queries: ledger.NewQueries(pool)}
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, txRepo{queries: ledger.NewQueries(tx)})
	})
}

// ListBankAccounts returns bank accounts for a company, or all when
// companyID is zero.
func (r *Repository) ListBankAccounts(ctx context.Context, companyID int64) ([]ledger.BankAccount, error) {
	return r.queries.ListBankAccounts(ctx, companyID)
}

// BankAccount loads one bank account.
func (r *Repository) BankAccount(ctx context.Context, id int64) (ledger.BankAccount, error) {
	return r.queries.BankAccountByID(ctx, id, false)
}

// Account loads a ledger account.
func (r *Repository) Account(ctx context.Context, id int64) (ledger.Account, error) {
	return r.queries.AccountByID(ctx, id)
}

// SignedSum returns the debit-positive total up to asOf.
func (r *Repository) SignedSum(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error) {
	return r.queries.SignedSum(ctx, accountID, asOf)
}

// CountUnmatchedLedger counts open ledger lines.
func (r *Repository) CountUnmatchedLedger(ctx context.Context, accountID int64, asOf time.Time) (int, error) {
	return r.queries.CountUnmatchedLedger(ctx, accountID, asOf)
}

// CountUnmatchedBank counts open bank lines.
func (r *Repository) CountUnmatchedBank(ctx context.Context, bankAccountID int64, asOf time.Time) (int, error) {
	return r.queries.CountUnmatchedBank(ctx, bankAccountID, asOf)
}

// ActiveSessionID returns the in-progress reconciliation session id, if any.
func (r *Repository) ActiveSessionID(ctx context.Context, bankAccountID int64) (*int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM reconciliation_sessions WHERE bank_account_id=$1 AND status='IN_PROGRESS'`, bankAccountID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

type txRepo struct {
	queries *ledger.Queries
}

func (t txRepo) BankAccountForUpdate(ctx context.Context, id int64) (ledger.BankAccount, error) {
	return t.queries.BankAccountByID(ctx, id, true)
}

func (t txRepo) Account(ctx context.Context, id int64) (ledger.Account, error) {
	return t.queries.AccountByID(ctx, id)
}

func (t txRepo) SignedSum(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error) {
	return t.queries.SignedSum(ctx, accountID, asOf)
}

func (t txRepo) InsertAdjustment(ctx context.Context, in ledger.AdjustmentInput) (ledger.Adjustment, error) {
	return t.queries.InsertAdjustment(ctx, in)
}

func (t txRepo) InsertBankTransaction(ctx context.Context, in ledger.BankTransaction) (bool, error) {
	return t.queries.InsertBankTransaction(ctx, in)
}

func (t txRepo) TouchBankSync(ctx context.Context, bankAccountID int64, at time.Time, balance *decimal.Decimal) error {
	return t.queries.TouchBankSync(ctx, bankAccountID, at, balance)
}
