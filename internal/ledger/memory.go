package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// MemoryStore is an in-process Store for tests and dry runs.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[int64]Account
	txns     []Transaction
	nextID   int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[int64]Account)}
}

// PutAccount inserts or replaces an account.
func (m *MemoryStore) PutAccount(a Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
}

// Post appends a transaction and returns it with an assigned id.
func (m *MemoryStore) Post(in TransactionInput) Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	if in.Status == "" {
		in.Status = StatusUnmatched
	}
	if in.Source == "" {
		in.Source = SourceManual
	}
	t := Transaction{
		ID:          m.nextID,
		AccountID:   in.AccountID,
		Date:        shared.Day(in.Date),
		Amount:      in.Amount,
		Description: in.Description,
		Source:      in.Source,
		Status:      in.Status,
	}
	m.txns = append(m.txns, t)
	if a, ok := m.accounts[in.AccountID]; ok {
		a.Balance = a.Type.BalanceOf(m.sumLocked(a.ID, time.Time{}))
		m.accounts[a.ID] = a
	}
	return t
}

// Update replaces a stored transaction by id.
func (m *MemoryStore) Update(t Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.txns {
		if m.txns[i].ID == t.ID {
			m.txns[i] = t
			return
		}
	}
}

// AccountByID implements Store.
func (m *MemoryStore) AccountByID(_ context.Context, id int64) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return Account{}, accountNotFound(id)
	}
	return a, nil
}

// Transactions implements Store.
func (m *MemoryStore) Transactions(_ context.Context, accountID int64, r shared.DateRange) ([]Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Transaction
	for _, t := range m.txns {
		if t.AccountID == accountID && r.Contains(t.Date) {
			out = append(out, t)
		}
	}
	SortTransactions(out)
	return out, nil
}

// SignedSum implements Store.
func (m *MemoryStore) SignedSum(_ context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sumLocked(accountID, asOf), nil
}

// zero asOf sums everything.
func (m *MemoryStore) sumLocked(accountID int64, asOf time.Time) decimal.Decimal {
	sum := decimal.Zero
	cutoff := shared.Day(asOf)
	for _, t := range m.txns {
		if t.AccountID != accountID {
			continue
		}
		if !asOf.IsZero() && t.Date.After(cutoff) {
			continue
		}
		sum = sum.Add(t.Amount)
	}
	return sum
}

// Balances implements Store.
func (m *MemoryStore) Balances(_ context.Context, companyID int64, asOf time.Time) ([]AccountBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := shared.Day(asOf)
	return m.aggregateLocked(companyID, func(d time.Time) bool { return !d.After(cutoff) }), nil
}

// Movements implements Store.
func (m *MemoryStore) Movements(_ context.Context, companyID int64, r shared.DateRange) ([]AccountBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.aggregateLocked(companyID, r.Contains), nil
}

func (m *MemoryStore) aggregateLocked(companyID int64, include func(time.Time) bool) []AccountBalance {
	sums := make(map[int64]decimal.Decimal)
	for _, t := range m.txns {
		if include(t.Date) {
			sums[t.AccountID] = sums[t.AccountID].Add(t.Amount)
		}
	}
	var out []AccountBalance
	for _, a := range m.accounts {
		if a.CompanyID != companyID {
			continue
		}
		out = append(out, AccountBalance{
			AccountID: a.ID,
			Code:      a.Code,
			Name:      a.Name,
			Type:      a.Type,
			Category:  a.Category,
			ParentID:  a.ParentID,
			IsActive:  a.IsActive,
			SignedSum: sums[a.ID],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// SortTransactions orders by date, then insertion order.
func SortTransactions(txns []Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.Before(txns[j].Date)
		}
		return txns[i].ID < txns[j].ID
	})
}
