package banking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type memoryRepo struct {
	mu          sync.Mutex
	ledger      *ledger.MemoryStore
	banks       map[int64]ledger.BankAccount
	bankTxns    []ledger.BankTransaction
	adjustments []ledger.Adjustment
	sessions    map[int64]int64
	failInsert  bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		ledger:   ledger.NewMemoryStore(),
		banks:    map[int64]ledger.BankAccount{},
		sessions: map[int64]int64{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	banks := make(map[int64]ledger.BankAccount, len(m.banks))
	for k, v := range m.banks {
		banks[k] = v
	}
	bankTxns := append([]ledger.BankTransaction(nil), m.bankTxns...)
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.banks, m.bankTxns = banks, bankTxns
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memoryRepo) ListBankAccounts(_ context.Context, companyID int64) ([]ledger.BankAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.BankAccount
	for _, b := range m.banks {
		if companyID == 0 || b.CompanyID == companyID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) BankAccount(_ context.Context, id int64) (ledger.BankAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.banks[id]
	if !ok {
		return ledger.BankAccount{}, shared.NotFound("BankAccountNotFound", "bank account %d not found", id)
	}
	return b, nil
}

func (m *memoryRepo) BankAccountForUpdate(ctx context.Context, id int64) (ledger.BankAccount, error) {
	return m.BankAccount(ctx, id)
}

func (m *memoryRepo) Account(ctx context.Context, id int64) (ledger.Account, error) {
	return m.ledger.AccountByID(ctx, id)
}

func (m *memoryRepo) SignedSum(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error) {
	return m.ledger.SignedSum(ctx, accountID, asOf)
}

func (m *memoryRepo) CountUnmatchedLedger(ctx context.Context, accountID int64, asOf time.Time) (int, error) {
	txns, err := m.ledger.Transactions(ctx, accountID, shared.DateRange{Start: time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC), End: shared.Day(asOf)})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range txns {
		if t.Status == ledger.StatusUnmatched {
			n++
		}
	}
	return n, nil
}

func (m *memoryRepo) CountUnmatchedBank(_ context.Context, bankAccountID int64, asOf time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.bankTxns {
		if t.BankAccountID == bankAccountID && !t.Matched && !t.Date.After(asOf) {
			n++
		}
	}
	return n, nil
}

func (m *memoryRepo) ActiveSessionID(_ context.Context, bankAccountID int64) (*int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.sessions[bankAccountID]; ok {
		return &id, nil
	}
	return nil, nil
}

func (m *memoryRepo) InsertAdjustment(_ context.Context, in ledger.AdjustmentInput) (ledger.Adjustment, error) {
	if m.failInsert {
		return ledger.Adjustment{}, context.DeadlineExceeded
	}
	txn := m.ledger.Post(ledger.TransactionInput{
		AccountID:   in.AccountID,
		Date:        in.Date,
		Amount:      in.Amount,
		Description: in.Description,
		Source:      ledger.SourceAdjustment,
		Status:      ledger.StatusMatched,
	})
	m.mu.Lock()
	defer m.mu.Unlock()
	adj := ledger.Adjustment{
		ID:            int64(len(m.adjustments) + 1),
		AccountID:     in.AccountID,
		Amount:        in.Amount,
		Date:          in.Date,
		Description:   in.Description,
		SessionID:     in.SessionID,
		TransactionID: txn.ID,
	}
	m.adjustments = append(m.adjustments, adj)
	return adj, nil
}

func (m *memoryRepo) InsertBankTransaction(_ context.Context, in ledger.BankTransaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.bankTxns {
		if t.BankAccountID == in.BankAccountID && t.Reference == in.Reference {
			return false, nil
		}
	}
	in.ID = int64(len(m.bankTxns) + 1)
	m.bankTxns = append(m.bankTxns, in)
	return true, nil
}

func (m *memoryRepo) TouchBankSync(_ context.Context, bankAccountID int64, at time.Time, balance *decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.banks[bankAccountID]
	b.LastSyncedAt = &at
	if balance != nil {
		b.Balance = *balance
	}
	m.banks[bankAccountID] = b
	return nil
}
