package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries runs ledger SQL against a pool or an open transaction.
type Queries struct {
	db DBTX
}

// NewQueries binds the query set to db.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const accountColumns = `id, company_id, code, name, type, category, parent_id, balance, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.Category, &a.ParentID, &a.Balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// AccountByID loads a single account.
func (q *Queries) AccountByID(ctx context.Context, id int64) (Account, error) {
	a, err := scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, accountNotFound(id)
		}
		return Account{}, err
	}
	return a, nil
}

// ListAccounts returns the company chart of accounts ordered by code.
func (q *Queries) ListAccounts(ctx context.Context, companyID int64) ([]Account, error) {
	rows, err := q.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

const transactionColumns = `id, account_id, date, amount, description, source, recon_status, bank_txn_id, created_at`

func scanTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Date, &t.Amount, &t.Description, &t.Source, &t.Status, &t.BankTransactionID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Transactions returns the account's transactions inside r ordered by date,
// ties broken by insertion order.
func (q *Queries) Transactions(ctx context.Context, accountID int64, r shared.DateRange) ([]Transaction, error) {
	rows, err := q.db.Query(ctx, `SELECT `+transactionColumns+` FROM ledger_transactions
WHERE account_id=$1 AND date BETWEEN $2 AND $3 ORDER BY date ASC, id ASC`, accountID, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// TransactionsByStatus returns in-range transactions with the given status.
func (q *Queries) TransactionsByStatus(ctx context.Context, accountID int64, r shared.DateRange, status ReconStatus) ([]Transaction, error) {
	rows, err := q.db.Query(ctx, `SELECT `+transactionColumns+` FROM ledger_transactions
WHERE account_id=$1 AND date BETWEEN $2 AND $3 AND recon_status=$4 ORDER BY date ASC, id ASC`, accountID, r.Start, r.End, status)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// TransactionsByIDs loads transactions and locks them for update.
func (q *Queries) TransactionsByIDs(ctx context.Context, ids []int64) ([]Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx, `SELECT `+transactionColumns+` FROM ledger_transactions
WHERE id = ANY($1) ORDER BY date ASC, id ASC FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// CountByStatus counts in-range transactions with status.
func (q *Queries) CountByStatus(ctx context.Context, accountID int64, r shared.DateRange, status ReconStatus) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_transactions
WHERE account_id=$1 AND date BETWEEN $2 AND $3 AND recon_status=$4`, accountID, r.Start, r.End, status).Scan(&n)
	return n, err
}

// SetReconStatus updates the reconciliation status and bank link of ledger
// transactions.
func (q *Queries) SetReconStatus(ctx context.Context, ids []int64, status ReconStatus, bankTxnID *int64) error {
	if len(ids) == 0 {
		return nil
	}
	cmd, err := q.db.Exec(ctx, `UPDATE ledger_transactions SET recon_status=$2, bank_txn_id=$3 WHERE id = ANY($1)`, ids, status, bankTxnID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("ledger: expected %d transactions updated, got %d", len(ids), cmd.RowsAffected())
	}
	return nil
}

// SignedSum returns the debit-positive sum of transactions dated on or
// before asOf.
func (q *Queries) SignedSum(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM ledger_transactions WHERE account_id=$1 AND date <= $2`, accountID, shared.Day(asOf)).Scan(&sum)
	return sum, err
}

func scanBalances(rows pgx.Rows) ([]AccountBalance, error) {
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.Category, &b.ParentID, &b.IsActive, &b.SignedSum); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Balances aggregates every company account as of a date.
func (q *Queries) Balances(ctx context.Context, companyID int64, asOf time.Time) ([]AccountBalance, error) {
	rows, err := q.db.Query(ctx, `SELECT a.id, a.code, a.name, a.type, a.category, a.parent_id, a.is_active, COALESCE(SUM(t.amount), 0)
FROM accounts a
LEFT JOIN ledger_transactions t ON t.account_id = a.id AND t.date <= $2
WHERE a.company_id = $1
GROUP BY a.id
ORDER BY a.code`, companyID, shared.Day(asOf))
	if err != nil {
		return nil, err
	}
	return scanBalances(rows)
}

// Movements aggregates every company account over a date range.
func (q *Queries) Movements(ctx context.Context, companyID int64, r shared.DateRange) ([]AccountBalance, error) {
	rows, err := q.db.Query(ctx, `SELECT a.id, a.code, a.name, a.type, a.category, a.parent_id, a.is_active, COALESCE(SUM(t.amount), 0)
FROM accounts a
LEFT JOIN ledger_transactions t ON t.account_id = a.id AND t.date BETWEEN $2 AND $3
WHERE a.company_id = $1
GROUP BY a.id
ORDER BY a.code`, companyID, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	return scanBalances(rows)
}

// InsertTransaction posts a ledger transaction and recomputes the account
// balance.
func (q *Queries) InsertTransaction(ctx context.Context, in TransactionInput) (Transaction, error) {
	if in.Source == "" {
		in.Source = SourceManual
	}
	if in.Status == "" {
		in.Status = StatusUnmatched
	}
	t := Transaction{
		AccountID:   in.AccountID,
		Date:        shared.Day(in.Date),
		Amount:      in.Amount,
		Description: in.Description,
		Source:      in.Source,
		Status:      in.Status,
	}
	err := q.db.QueryRow(ctx, `INSERT INTO ledger_transactions (account_id, date, amount, description, source, recon_status)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`, t.AccountID, t.Date, t.Amount, t.Description, t.Source, t.Status).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return Transaction{}, err
	}
	if _, err := q.RecomputeBalance(ctx, in.AccountID); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// InsertAdjustment posts the adjustment's ledger transaction, records the
// adjustment entry and recomputes the account balance.
func (q *Queries) InsertAdjustment(ctx context.Context, in AdjustmentInput) (Adjustment, error) {
	txn, err := q.InsertTransaction(ctx, TransactionInput{
		AccountID:   in.AccountID,
		Date:        in.Date,
		Amount:      in.Amount,
		Description: in.Description,
		Source:      SourceAdjustment,
		Status:      StatusMatched,
	})
	if err != nil {
		return Adjustment{}, err
	}
	adj := Adjustment{
		AccountID:     in.AccountID,
		Amount:        in.Amount,
		Date:          txn.Date,
		Description:   in.Description,
		SessionID:     in.SessionID,
		TransactionID: txn.ID,
	}
	err = q.db.QueryRow(ctx, `INSERT INTO adjustment_entries (account_id, amount, date, description, session_id, ledger_txn_id)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`, adj.AccountID, adj.Amount, adj.Date, adj.Description, adj.SessionID, adj.TransactionID).
		Scan(&adj.ID, &adj.CreatedAt)
	if err != nil {
		return Adjustment{}, err
	}
	return adj, nil
}

// RecomputeBalance rewrites accounts.balance from posted transactions.
func (q *Queries) RecomputeBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.db.QueryRow(ctx, `UPDATE accounts a SET balance = s.total * CASE WHEN a.type IN ('ASSET','EXPENSE') THEN 1 ELSE -1 END, updated_at = NOW()
FROM (SELECT COALESCE(SUM(amount), 0) AS total FROM ledger_transactions WHERE account_id = $1) s
WHERE a.id = $1
RETURNING a.balance`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, accountNotFound(accountID)
		}
		return decimal.Zero, err
	}
	return balance, nil
}

const bankAccountColumns = `id, company_id, ledger_account_id, name, bank_name, balance, currency, last_synced_at, status`

func scanBankAccount(row pgx.Row) (BankAccount, error) {
	var b BankAccount
	err := row.Scan(&b.ID, &b.CompanyID, &b.LedgerAccountID, &b.Name, &b.BankName, &b.Balance, &b.Currency, &b.LastSyncedAt, &b.Status)
	return b, err
}

// BankAccountByID loads a bank account, locking the row when forUpdate is
// set.
func (q *Queries) BankAccountByID(ctx context.Context, id int64, forUpdate bool) (BankAccount, error) {
	sql := `SELECT ` + bankAccountColumns + ` FROM bank_accounts WHERE id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	b, err := scanBankAccount(q.db.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankAccount{}, bankAccountNotFound(id)
		}
		return BankAccount{}, err
	}
	return b, nil
}

// ListBankAccounts returns bank accounts for a company; zero lists all.
func (q *Queries) ListBankAccounts(ctx context.Context, companyID int64) ([]BankAccount, error) {
	rows, err := q.db.Query(ctx, `SELECT `+bankAccountColumns+` FROM bank_accounts
WHERE ($1 = 0 OR company_id = $1) ORDER BY company_id, name, id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BankAccount
	for rows.Next() {
		b, err := scanBankAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// TouchBankSync records a successful statement sync.
func (q *Queries) TouchBankSync(ctx context.Context, bankAccountID int64, at time.Time, balance *decimal.Decimal) error {
	_, err := q.db.Exec(ctx, `UPDATE bank_accounts SET last_synced_at=$2, status='connected', balance=COALESCE($3, balance) WHERE id=$1`, bankAccountID, at, balance)
	return err
}

const bankTxnColumns = `id, bank_account_id, date, amount, description, reference, matched, created_at`

func scanBankTransactions(rows pgx.Rows) ([]BankTransaction, error) {
	defer rows.Close()
	var out []BankTransaction
	for rows.Next() {
		var b BankTransaction
		if err := rows.Scan(&b.ID, &b.BankAccountID, &b.Date, &b.Amount, &b.Description, &b.Reference, &b.Matched, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BankTransactions lists bank lines in r, optionally only unmatched ones.
func (q *Queries) BankTransactions(ctx context.Context, bankAccountID int64, r shared.DateRange, onlyUnmatched bool) ([]BankTransaction, error) {
	rows, err := q.db.Query(ctx, `SELECT `+bankTxnColumns+` FROM bank_transactions
WHERE bank_account_id=$1 AND date BETWEEN $2 AND $3 AND (NOT $4 OR matched = false)
ORDER BY date ASC, id ASC`, bankAccountID, r.Start, r.End, onlyUnmatched)
	if err != nil {
		return nil, err
	}
	return scanBankTransactions(rows)
}

// BankTransactionsByIDs loads bank lines and locks them for update.
func (q *Queries) BankTransactionsByIDs(ctx context.Context, ids []int64) ([]BankTransaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx, `SELECT `+bankTxnColumns+` FROM bank_transactions
WHERE id = ANY($1) ORDER BY date ASC, id ASC FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	return scanBankTransactions(rows)
}

// SetBankMatched flips the matched flag on bank lines.
func (q *Queries) SetBankMatched(ctx context.Context, ids []int64, matched bool) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.db.Exec(ctx, `UPDATE bank_transactions SET matched=$2 WHERE id = ANY($1)`, ids, matched)
	return err
}

// CountUnmatchedBank counts unmatched bank lines dated on or before asOf.
func (q *Queries) CountUnmatchedBank(ctx context.Context, bankAccountID int64, asOf time.Time) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM bank_transactions WHERE bank_account_id=$1 AND matched=false AND date <= $2`, bankAccountID, shared.Day(asOf)).Scan(&n)
	return n, err
}

// CountUnmatchedLedger counts unmatched ledger lines dated on or before asOf.
func (q *Queries) CountUnmatchedLedger(ctx context.Context, accountID int64, asOf time.Time) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_transactions WHERE account_id=$1 AND recon_status='unmatched' AND date <= $2`, accountID, shared.Day(asOf)).Scan(&n)
	return n, err
}

// InsertBankTransaction stores a bank line, reporting false when the
// reference was already imported.
func (q *Queries) InsertBankTransaction(ctx context.Context, in BankTransaction) (bool, error) {
	cmd, err := q.db.Exec(ctx, `INSERT INTO bank_transactions (bank_account_id, date, amount, description, reference)
VALUES ($1,$2,$3,$4,$5) ON CONFLICT (bank_account_id, reference) DO NOTHING`, in.BankAccountID, shared.Day(in.Date), in.Amount, in.Description, in.Reference)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}
