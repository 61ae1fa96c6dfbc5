package reconciliation

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type memoryState struct {
	accounts    map[int64]ledger.Account
	banks       map[int64]ledger.BankAccount
	ledger      map[int64]ledger.Transaction
	bank        map[int64]ledger.BankTransaction
	sessions    map[int64]Session
	matches     map[int64]Match
	adjustments []ledger.Adjustment
	nextID      int64
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		accounts:    make(map[int64]ledger.Account, len(s.accounts)),
		banks:       make(map[int64]ledger.BankAccount, len(s.banks)),
		ledger:      make(map[int64]ledger.Transaction, len(s.ledger)),
		bank:        make(map[int64]ledger.BankTransaction, len(s.bank)),
		sessions:    make(map[int64]Session, len(s.sessions)),
		matches:     make(map[int64]Match, len(s.matches)),
		adjustments: append([]ledger.Adjustment(nil), s.adjustments...),
		nextID:      s.nextID,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.banks {
		c.banks[k] = v
	}
	for k, v := range s.ledger {
		c.ledger[k] = v
	}
	for k, v := range s.bank {
		c.bank[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.matches {
		c.matches[k] = v
	}
	return c
}

// memoryRepo keeps state in maps and restores a snapshot when a transaction
// callback fails.
type memoryRepo struct {
	state memoryState
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		accounts: map[int64]ledger.Account{},
		banks:    map[int64]ledger.BankAccount{},
		ledger:   map[int64]ledger.Transaction{},
		bank:     map[int64]ledger.BankTransaction{},
		sessions: map[int64]Session{},
		matches:  map[int64]Match{},
		nextID:   100,
	}}
}

func (r *memoryRepo) id() int64 {
	r.state.nextID++
	return r.state.nextID
}

func (r *memoryRepo) addLedger(accountID int64, date time.Time, amount, desc string) ledger.Transaction {
	t := ledger.Transaction{ID: r.id(), AccountID: accountID, Date: date, Amount: decimal.RequireFromString(amount), Description: desc, Source: ledger.SourceManual, Status: ledger.StatusUnmatched}
	r.state.ledger[t.ID] = t
	return t
}

func (r *memoryRepo) addBank(bankAccountID int64, date time.Time, amount, desc string) ledger.BankTransaction {
	b := ledger.BankTransaction{ID: r.id(), BankAccountID: bankAccountID, Date: date, Amount: decimal.RequireFromString(amount), Description: desc}
	r.state.bank[b.ID] = b
	return b
}

func (r *memoryRepo) sessionRows(bankAccountID int64) []Session {
	var out []Session
	for _, s := range r.state.sessions {
		if s.BankAccountID == bankAccountID {
			out = append(out, s)
		}
	}
	return out
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) ListBankAccounts(_ context.Context, companyID int64) ([]ledger.BankAccount, error) {
	var out []ledger.BankAccount
	for _, b := range r.state.banks {
		if companyID == 0 || b.CompanyID == companyID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) BankAccount(_ context.Context, id int64) (ledger.BankAccount, error) {
	b, ok := r.state.banks[id]
	if !ok {
		return ledger.BankAccount{}, shared.NotFound("BankAccountNotFound", "bank account %d not found", id)
	}
	return b, nil
}

func (r *memoryRepo) ActiveSession(_ context.Context, bankAccountID int64) (Session, bool, error) {
	for _, s := range r.state.sessions {
		if s.BankAccountID == bankAccountID && s.Status == SessionInProgress {
			return s, true, nil
		}
	}
	return Session{}, false, nil
}

func (r *memoryRepo) ActiveSessions(_ context.Context) ([]Session, error) {
	var out []Session
	for _, s := range r.state.sessions {
		if s.Status == SessionInProgress {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) ListMatches(_ context.Context, sessionID int64) ([]Match, error) {
	var out []Match
	for _, m := range r.state.matches {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) ledgerWhere(keep func(ledger.Transaction) bool) []ledger.Transaction {
	var out []ledger.Transaction
	for _, t := range r.state.ledger {
		if keep(t) {
			out = append(out, t)
		}
	}
	ledger.SortTransactions(out)
	return out
}

func (r *memoryRepo) bankWhere(keep func(ledger.BankTransaction) bool) []ledger.BankTransaction {
	var out []ledger.BankTransaction
	for _, b := range r.state.bank {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *memoryRepo) LedgerTransactions(_ context.Context, accountID int64, rng shared.DateRange) ([]ledger.Transaction, error) {
	return r.ledgerWhere(func(t ledger.Transaction) bool { return t.AccountID == accountID && rng.Contains(t.Date) }), nil
}

func (r *memoryRepo) OpenLedgerTransactions(_ context.Context, accountID int64) ([]ledger.Transaction, error) {
	return r.ledgerWhere(func(t ledger.Transaction) bool {
		return t.AccountID == accountID && t.Status != ledger.StatusMatched
	}), nil
}

func (r *memoryRepo) BankTransactions(_ context.Context, bankAccountID int64, rng shared.DateRange, onlyUnmatched bool) ([]ledger.BankTransaction, error) {
	return r.bankWhere(func(b ledger.BankTransaction) bool {
		return b.BankAccountID == bankAccountID && rng.Contains(b.Date) && (!onlyUnmatched || !b.Matched)
	}), nil
}

func (r *memoryRepo) PendingBankIDs(_ context.Context, sessionID int64) ([]int64, error) {
	var ids []int64
	for _, m := range r.state.matches {
		if m.SessionID == sessionID && m.Classification == ClassPending {
			ids = append(ids, m.BankTransactionIDs...)
		}
	}
	return ids, nil
}

func (t *memoryTx) BankAccountForUpdate(ctx context.Context, id int64) (ledger.BankAccount, error) {
	return t.repo.BankAccount(ctx, id)
}

func (t *memoryTx) Account(_ context.Context, id int64) (ledger.Account, error) {
	a, ok := t.repo.state.accounts[id]
	if !ok {
		return ledger.Account{}, shared.NotFound("AccountNotFound", "account %d not found", id)
	}
	return a, nil
}

func (t *memoryTx) ActiveSessionForUpdate(ctx context.Context, bankAccountID int64) (Session, bool, error) {
	return t.repo.ActiveSession(ctx, bankAccountID)
}

func (t *memoryTx) InsertSession(_ context.Context, s Session) (Session, error) {
	s.ID = t.repo.id()
	t.repo.state.sessions[s.ID] = s
	return s, nil
}

func (t *memoryTx) CompleteSession(_ context.Context, id int64, completedAt time.Time, adjustmentID *int64) error {
	s := t.repo.state.sessions[id]
	s.Status = SessionCompleted
	s.CompletedAt = &completedAt
	s.AdjustmentID = adjustmentID
	t.repo.state.sessions[id] = s
	return nil
}

func (t *memoryTx) UnmatchedLedger(_ context.Context, accountID int64, rng shared.DateRange) ([]ledger.Transaction, error) {
	return t.repo.ledgerWhere(func(tx ledger.Transaction) bool {
		return tx.AccountID == accountID && rng.Contains(tx.Date) && tx.Status == ledger.StatusUnmatched
	}), nil
}

func (t *memoryTx) CountUnmatchedLedger(ctx context.Context, accountID int64, rng shared.DateRange) (int, error) {
	txns, _ := t.UnmatchedLedger(ctx, accountID, rng)
	return len(txns), nil
}

func (t *memoryTx) LedgerByIDs(_ context.Context, ids []int64) ([]ledger.Transaction, error) {
	return t.repo.ledgerWhere(func(tx ledger.Transaction) bool { return slices.Contains(ids, tx.ID) }), nil
}

func (t *memoryTx) UnmatchedBank(ctx context.Context, bankAccountID int64, rng shared.DateRange) ([]ledger.BankTransaction, error) {
	return t.repo.BankTransactions(ctx, bankAccountID, rng, true)
}

func (t *memoryTx) BankByIDs(_ context.Context, ids []int64) ([]ledger.BankTransaction, error) {
	return t.repo.bankWhere(func(b ledger.BankTransaction) bool { return slices.Contains(ids, b.ID) }), nil
}

func (t *memoryTx) PendingBankIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	return t.repo.PendingBankIDs(ctx, sessionID)
}

func (t *memoryTx) InsertMatch(_ context.Context, m Match) (Match, error) {
	m.ID = t.repo.id()
	m.LedgerTransactionIDs = append([]int64(nil), m.LedgerTransactionIDs...)
	m.BankTransactionIDs = append([]int64(nil), m.BankTransactionIDs...)
	t.repo.state.matches[m.ID] = m
	return m, nil
}

func (t *memoryTx) MatchByID(_ context.Context, id int64) (Match, error) {
	m, ok := t.repo.state.matches[id]
	if !ok {
		return Match{}, shared.NotFound("MatchNotFound", "match %d not found", id)
	}
	return m, nil
}

func (t *memoryTx) PendingMatchesFor(_ context.Context, sessionID int64, ledgerIDs, bankIDs []int64) ([]Match, error) {
	var out []Match
	for _, m := range t.repo.state.matches {
		if m.SessionID != sessionID || m.Classification != ClassPending {
			continue
		}
		hit := false
		for _, id := range m.LedgerTransactionIDs {
			hit = hit || slices.Contains(ledgerIDs, id)
		}
		for _, id := range m.BankTransactionIDs {
			hit = hit || slices.Contains(bankIDs, id)
		}
		if hit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (t *memoryTx) PendingMatches(_ context.Context, sessionID int64) ([]Match, error) {
	var out []Match
	for _, m := range t.repo.state.matches {
		if m.SessionID == sessionID && m.Classification == ClassPending {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) DeleteMatch(_ context.Context, id int64) error {
	delete(t.repo.state.matches, id)
	return nil
}

func (t *memoryTx) SetLedgerStatus(_ context.Context, ids []int64, status ledger.ReconStatus, bankTxnID *int64) error {
	for _, id := range ids {
		tx := t.repo.state.ledger[id]
		tx.Status = status
		tx.BankTransactionID = bankTxnID
		t.repo.state.ledger[id] = tx
	}
	return nil
}

func (t *memoryTx) SetBankMatched(_ context.Context, ids []int64, matched bool) error {
	for _, id := range ids {
		b := t.repo.state.bank[id]
		b.Matched = matched
		t.repo.state.bank[id] = b
	}
	return nil
}

func (t *memoryTx) SignedSum(_ context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, tx := range t.repo.state.ledger {
		if tx.AccountID == accountID && !tx.Date.After(asOf) {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum, nil
}

func (t *memoryTx) InsertAdjustment(_ context.Context, in ledger.AdjustmentInput) (ledger.Adjustment, error) {
	txn := ledger.Transaction{
		ID: t.repo.id(), AccountID: in.AccountID, Date: in.Date, Amount: in.Amount,
		Description: in.Description, Source: ledger.SourceAdjustment, Status: ledger.StatusMatched,
	}
	t.repo.state.ledger[txn.ID] = txn
	adj := ledger.Adjustment{
		ID: t.repo.id(), AccountID: in.AccountID, Amount: in.Amount, Date: in.Date,
		Description: in.Description, SessionID: in.SessionID, TransactionID: txn.ID,
	}
	t.repo.state.adjustments = append(t.repo.state.adjustments, adj)
	return adj, nil
}
