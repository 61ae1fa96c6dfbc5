package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/shared"
)

const activeSessionIndex = "reconciliation_sessions_one_active_idx"

// RepositoryPort describes persistence used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListBankAccounts(ctx context.Context, companyID int64) ([]ledger.BankAccount, error)
	BankAccount(ctx context.Context, id int64) (ledger.BankAccount, error)
	ActiveSession(ctx context.Context, bankAccountID int64) (Session, bool, error)
	ActiveSessions(ctx context.Context) ([]Session, error)
	ListMatches(ctx context.Context, sessionID int64) ([]Match, error)
	LedgerTransactions(ctx context.Context, accountID int64, rng shared.DateRange) ([]ledger.Transaction, error)
	OpenLedgerTransactions(ctx context.Context, accountID int64) ([]ledger.Transaction, error)
	BankTransactions(ctx context.Context, bankAccountID int64, rng shared.DateRange, onlyUnmatched bool) ([]ledger.BankTransaction, error)
	PendingBankIDs(ctx context.Context, sessionID int64) ([]int64, error)
}

// TxRepository exposes operations that run inside one database transaction.
type TxRepository interface {
	BankAccountForUpdate(ctx context.Context, id int64) (ledger.BankAccount, error)
	Account(ctx context.Context, id int64) (ledger.Account, error)
	ActiveSessionForUpdate(ctx context.Context, bankAccountID int64) (Session, bool, error)
	InsertSession(ctx context.Context, s Session) (Session, error)
	CompleteSession(ctx context.Context, id int64, completedAt time.Time, adjustmentID *int64) error
	UnmatchedLedger(ctx context.Context, accountID int64, rng shared.DateRange) ([]ledger.Transaction, error)
	CountUnmatchedLedger(ctx context.Context, accountID int64, rng shared.DateRange) (int, error)
	LedgerByIDs(ctx context.Context, ids []int64) ([]ledger.Transaction, error)
	UnmatchedBank(ctx context.Context, bankAccountID int64, rng shared.DateRange) ([]ledger.BankTransaction, error)
	BankByIDs(ctx context.Context, ids []int64) ([]ledger.BankTransaction, error)
	PendingBankIDs(ctx context.Context, sessionID int64) ([]int64, error)
	InsertMatch(ctx context.Context, m Match) (Match, error)
	MatchByID(ctx context.Context, id int64) (Match, error)
	PendingMatchesFor(ctx context.Context, sessionID int64, ledgerIDs, bankIDs []int64) ([]Match, error)
	PendingMatches(ctx context.Context, sessionID int64) ([]Match, error)
	DeleteMatch(ctx context.Context, id int64) error
	SetLedgerStatus(ctx context.Context, ids []int64, status ledger.ReconStatus, bankTxnID *int64) error
	SetBankMatched(ctx context.Context, ids []int64, matched bool) error
	SignedSum(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error)
	InsertAdjustment(ctx context.Context, in ledger.AdjustmentInput) (ledger.Adjustment, error)
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

type txRepo struct {
	tx      pgx.Tx
	queries *ledger.Queries
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, queries: ledger.NewQueries(tx)})
	})
}

// ListBankAccounts returns the company's bank accounts.
func (r *Repository) ListBankAccounts(ctx context.Context, companyID int64) ([]ledger.BankAccount, error) {
	return r.queries.ListBankAccounts(ctx, companyID)
}

// BankAccount loads one bank account.
func (r *Repository) BankAccount(ctx context.Context, id int64) (ledger.BankAccount, error) {
	return r.queries.BankAccountByID(ctx, id, false)
}

const sessionColumns = `id, bank_account_id, start_date, end_date, statement_balance, status, opened_at, completed_at, adjustment_id`

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.BankAccountID, &s.StartDate, &s.EndDate, &s.StatementBalance, &s.Status, &s.OpenedAt, &s.CompletedAt, &s.AdjustmentID)
	return s, err
}

func activeSession(ctx context.Context, q ledger.DBTX, bankAccountID int64, forUpdate bool) (Session, bool, error) {
	sql := `SELECT ` + sessionColumns + ` FROM reconciliation_sessions WHERE bank_account_id=$1 AND status='IN_PROGRESS'`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	s, err := scanSession(q.QueryRow(ctx, sql, bankAccountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}
	return s, true, nil
}

// ActiveSession returns the in-progress session, if any.
func (r *Repository) ActiveSession(ctx context.Context, bankAccountID int64) (Session, bool, error) {
	return activeSession(ctx, r.pool, bankAccountID, false)
}

// ActiveSessions lists every in-progress session.
func (r *Repository) ActiveSessions(ctx context.Context) ([]Session, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM reconciliation_sessions WHERE status='IN_PROGRESS' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListMatches returns a session's matches with their items.
func (r *Repository) ListMatches(ctx context.Context, sessionID int64) ([]Match, error) {
	return listMatches(ctx, r.pool, `WHERE m.session_id=$1`, sessionID)
}

// LedgerTransactions returns ledger lines in rng.
func (r *Repository) LedgerTransactions(ctx context.Context, accountID int64, rng shared.DateRange) ([]ledger.Transaction, error) {
	return r.queries.Transactions(ctx, accountID, rng)
}

// OpenLedgerTransactions returns every unmatched or pending ledger line.
func (r *Repository) OpenLedgerTransactions(ctx context.Context, accountID int64) ([]ledger.Transaction, error) {
	unmatched, err := r.queries.TransactionsByStatus(ctx, accountID, allTime, ledger.StatusUnmatched)
	if err != nil {
		return nil, err
	}
	pending, err := r.queries.TransactionsByStatus(ctx, accountID, allTime, ledger.StatusPending)
	if err != nil {
		return nil, err
	}
	out := append(unmatched, pending...)
	ledger.SortTransactions(out)
	return out, nil
}

// BankTransactions returns bank lines in rng.
func (r *Repository) BankTransactions(ctx context.Context, bankAccountID int64, rng shared.DateRange, onlyUnmatched bool) ([]ledger.BankTransaction, error) {
	return r.queries.BankTransactions(ctx, bankAccountID, rng, onlyUnmatched)
}

// PendingBankIDs lists bank lines parked in pending matches.
func (r *Repository) PendingBankIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	return pendingBankIDs(ctx, r.pool, sessionID)
}

func pendingBankIDs(ctx context.Context, q ledger.DBTX, sessionID int64) ([]int64, error) {
	rows, err := q.Query(ctx, `SELECT i.bank_txn_id FROM reconciliation_match_items i
JOIN reconciliation_matches m ON m.id = i.match_id
WHERE m.session_id=$1 AND m.classification='pending' AND i.bank_txn_id IS NOT NULL`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// selectMatchesSQL aggregates match items in insertion order. The WHERE
// clause is spliced in between the join and the grouping.
const selectMatchesSQL = `SELECT m.id, m.session_id, m.group_id, m.no_counterpart, m.classification, m.discrepancy, m.score, m.created_at,
COALESCE(array_agg(i.ledger_txn_id ORDER BY i.id) FILTER (WHERE i.ledger_txn_id IS NOT NULL), '{}'),
COALESCE(array_agg(i.bank_txn_id ORDER BY i.id) FILTER (WHERE i.bank_txn_id IS NOT NULL), '{}')
FROM reconciliation_matches m
LEFT JOIN reconciliation_match_items i ON i.match_id = m.id
`

func listMatches(ctx context.Context, q ledger.DBTX, where string, args ...any) ([]Match, error) {
	rows, err := q.Query(ctx, selectMatchesSQL+where+`
GROUP BY m.id
ORDER BY m.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.SessionID, &m.GroupID, &m.NoCounterpart, &m.Classification, &m.Discrepancy, &m.Score, &m.CreatedAt,
			&m.LedgerTransactionIDs, &m.BankTransactionIDs); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *txRepo) BankAccountForUpdate(ctx context.Context, id int64) (ledger.BankAccount, error) {
	return t.queries.BankAccountByID(ctx, id, true)
}

func (t *txRepo) Account(ctx context.Context, id int64) (ledger.Account, error) {
	return t.queries.AccountByID(ctx, id)
}

func (t *txRepo) ActiveSessionForUpdate(ctx context.Context, bankAccountID int64) (Session, bool, error) {
	return activeSession(ctx, t.tx, bankAccountID, true)
}

func (t *txRepo) InsertSession(ctx context.Context, s Session) (Session, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO reconciliation_sessions (bank_account_id, start_date, end_date, statement_balance, status, opened_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, s.BankAccountID, s.StartDate, s.EndDate, s.StatementBalance, s.Status, s.OpenedAt).Scan(&s.ID)
	if err != nil {
		if db.IsUniqueViolation(err, activeSessionIndex) {
			return Session{}, sessionAlreadyActive(s.BankAccountID)
		}
		return Session{}, err
	}
	return s, nil
}

func (t *txRepo) CompleteSession(ctx context.Context, id int64, completedAt time.Time, adjustmentID *int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE reconciliation_sessions SET status='COMPLETED', completed_at=$2, adjustment_id=$3 WHERE id=$1`, id, completedAt, adjustmentID)
	return err
}

func (t *txRepo) UnmatchedLedger(ctx context.Context, accountID int64, rng shared.DateRange) ([]ledger.Transaction, error) {
	return t.queries.TransactionsByStatus(ctx, accountID, rng, ledger.StatusUnmatched)
}

func (t *txRepo) CountUnmatchedLedger(ctx context.Context, accountID int64, rng shared.DateRange) (int, error) {
	return t.queries.CountByStatus(ctx, accountID, rng, ledger.StatusUnmatched)
}

func (t *txRepo) LedgerByIDs(ctx context.Context, ids []int64) ([]ledger.Transaction, error) {
	return t.queries.TransactionsByIDs(ctx, ids)
}

func (t *txRepo) UnmatchedBank(ctx context.Context, bankAccountID int64, rng shared.DateRange) ([]ledger.BankTransaction, error) {
	return t.queries.BankTransactions(ctx, bankAccountID, rng, true)
}

func (t *txRepo) BankByIDs(ctx context.Context, ids []int64) ([]ledger.BankTransaction, error) {
	return t.queries.BankTransactionsByIDs(ctx, ids)
}

func (t *txRepo) PendingBankIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	return pendingBankIDs(ctx, t.tx, sessionID)
}

func (t *txRepo) InsertMatch(ctx context.Context, m Match) (Match, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO reconciliation_matches (session_id, group_id, no_counterpart, classification, discrepancy, score)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`, m.SessionID, m.GroupID, m.NoCounterpart, m.Classification, m.Discrepancy, m.Score).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return Match{}, err
	}
	batch := &pgx.Batch{}
	for _, id := range m.LedgerTransactionIDs {
		batch.Queue(`INSERT INTO reconciliation_match_items (match_id, ledger_txn_id) VALUES ($1,$2)`, m.ID, id)
	}
	for _, id := range m.BankTransactionIDs {
		batch.Queue(`INSERT INTO reconciliation_match_items (match_id, bank_txn_id) VALUES ($1,$2)`, m.ID, id)
	}
	if batch.Len() > 0 {
		if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
			return Match{}, err
		}
	}
	return m, nil
}

func (t *txRepo) MatchByID(ctx context.Context, id int64) (Match, error) {
	matches, err := listMatches(ctx, t.tx, `WHERE m.id=$1`, id)
	if err != nil {
		return Match{}, err
	}
	if len(matches) == 0 {
		return Match{}, shared.NotFound("MatchNotFound", "match %d not found", id)
	}
	return matches[0], nil
}

func (t *txRepo) PendingMatchesFor(ctx context.Context, sessionID int64, ledgerIDs, bankIDs []int64) ([]Match, error) {
	return listMatches(ctx, t.tx, `WHERE m.session_id=$1 AND m.classification='pending' AND m.id IN (
SELECT match_id FROM reconciliation_match_items WHERE ledger_txn_id = ANY($2) OR bank_txn_id = ANY($3))`, sessionID, ledgerIDs, bankIDs)
}

func (t *txRepo) PendingMatches(ctx context.Context, sessionID int64) ([]Match, error) {
	return listMatches(ctx, t.tx, `WHERE m.session_id=$1 AND m.classification='pending'`, sessionID)
}

func (t *txRepo) DeleteMatch(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM reconciliation_matches WHERE id=$1`, id)
	return err
}

func (t *txRepo) SetLedgerStatus(ctx context.Context, ids []int64, status ledger.ReconStatus, bankTxnID *int64) error {
	return t.queries.SetReconStatus(ctx, ids, status, bankTxnID)
}

func (t *txRepo) SetBankMatched(ctx context.Context, ids []int64, matched bool) error {
	return t.queries.SetBankMatched(ctx, ids, matched)
}

func (t *txRepo) SignedSum(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error) {
	return t.queries.SignedSum(ctx, accountID, asOf)
}

func (t *txRepo) InsertAdjustment(ctx context.Context, in ledger.AdjustmentInput) (ledger.Adjustment, error) {
	return t.queries.InsertAdjustment(ctx, in)
}

var allTime = shared.DateRange{
	Start: time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
}
