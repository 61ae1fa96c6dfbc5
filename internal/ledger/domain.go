// Package ledger reads posted ledger activity and owns the write helpers that
// keep account balances derived from transactions.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

var (
	plusOne  = decimal.NewFromInt(1)
	minusOne = decimal.NewFromInt(-1)
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether the account grows on the debit side.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// NormalSign converts debit-positive sums into the account's natural balance.
func (t AccountType) NormalSign() decimal.Decimal {
	if t.DebitNormal() {
		return plusOne
	}
	return minusOne
}

// BalanceOf converts a debit-positive signed sum into a balance.
func (t AccountType) BalanceOf(signedSum decimal.Decimal) decimal.Decimal {
	return signedSum.Mul(t.NormalSign())
}

// AmountFor converts a balance delta back into a debit-positive amount.
func (t AccountType) AmountFor(balanceDelta decimal.Decimal) decimal.Decimal {
	return balanceDelta.Mul(t.NormalSign())
}

// Category tags accounts for statement classification.
type Category string

const (
	CategoryNone     Category = ""
	CategoryCash     Category = "cash"
	CategoryCurrent  Category = "current"
	CategoryFixed    Category = "fixed"
	CategoryLongTerm Category = "long_term"
)

// Account models a chart of accounts node.
type Account struct {
	ID        int64           `json:"id"`
	CompanyID int64           `json:"companyId"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      AccountType     `json:"type"`
	Category  Category        `json:"category,omitempty"`
	ParentID  *int64          `json:"parentId,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
	IsActive  bool            `json:"isActive"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Source records where a ledger transaction originated.
type Source string

const (
	SourceManual     Source = "manual"
	SourceBankSync   Source = "bank-sync"
	SourceAdjustment Source = "adjustment"
)

// ReconStatus is the reconciliation state of a ledger transaction.
type ReconStatus string

const (
	StatusUnmatched ReconStatus = "unmatched"
	StatusMatched   ReconStatus = "matched"
	StatusPending   ReconStatus = "pending"
)

// Transaction is a posted ledger line. Amount is debit-positive.
type Transaction struct {
	ID                int64           `json:"id"`
	AccountID         int64           `json:"accountId"`
	Date              time.Time       `json:"date"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
	Source            Source          `json:"source"`
	Status            ReconStatus     `json:"reconciliationStatus"`
	BankTransactionID *int64          `json:"bankTransactionId,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// TransactionInput describes a ledger posting.
type TransactionInput struct {
	AccountID   int64
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	Source      Source
	Status      ReconStatus
}

// BankAccountStatus captures bank feed connectivity.
type BankAccountStatus string

const (
	BankStatusConnected    BankAccountStatus = "connected"
	BankStatusDisconnected BankAccountStatus = "disconnected"
	BankStatusError        BankAccountStatus = "error"
)

// BankAccount links an external bank feed to a ledger account.
type BankAccount struct {
	ID              int64             `json:"id"`
	CompanyID       int64             `json:"companyId"`
	LedgerAccountID int64             `json:"ledgerAccountId"`
	Name            string            `json:"name"`
	BankName        string            `json:"bankName"`
	Balance         decimal.Decimal   `json:"balance"`
	Currency        string            `json:"currency"`
	LastSyncedAt    *time.Time        `json:"lastSyncedAt,omitempty"`
	Status          BankAccountStatus `json:"status"`
}

// ValidateCurrency checks the ISO 4217 currency code.
func (b BankAccount) ValidateCurrency() error {
	if _, err := currency.ParseISO(strings.ToUpper(b.Currency)); err != nil {
		return shared.Validation("bank account %d has invalid currency %q", b.ID, b.Currency)
	}
	return nil
}

// BankTransaction is a line reported by the bank. Amount is positive for
// deposits.
type BankTransaction struct {
	ID            int64           `json:"id"`
	BankAccountID int64           `json:"bankAccountId"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Reference     string          `json:"reference"`
	Matched       bool            `json:"matched"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Adjustment forces a book balance to agree with an external statement.
type Adjustment struct {
	ID            int64           `json:"id"`
	AccountID     int64           `json:"accountId"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	SessionID     *int64          `json:"sessionId,omitempty"`
	TransactionID int64           `json:"ledgerTransactionId"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// AdjustmentInput describes an adjustment posting. Amount is debit-positive.
type AdjustmentInput struct {
	AccountID   int64
	Amount      decimal.Decimal
	Date        time.Time
	Description string
	SessionID   *int64
}

// AccountBalance pairs an account with an aggregated debit-positive sum.
type AccountBalance struct {
	AccountID int64
	Code      string
	Name      string
	Type      AccountType
	Category  Category
	ParentID  *int64
	IsActive  bool
	SignedSum decimal.Decimal
}

// Balance returns the natural-side balance.
func (a AccountBalance) Balance() decimal.Decimal {
	return a.Type.BalanceOf(a.SignedSum)
}

// ErrAccountNotFound matches any missing-account error.
var ErrAccountNotFound = &shared.Error{Kind: shared.KindNotFound, Code: "AccountNotFound"}

// ErrBankAccountNotFound matches any missing-bank-account error.
var ErrBankAccountNotFound = &shared.Error{Kind: shared.KindNotFound, Code: "BankAccountNotFound"}

func accountNotFound(id int64) error {
	return &shared.Error{Kind: shared.KindNotFound, Code: "AccountNotFound", Message: fmt.Sprintf("account %d not found", id)}
}

func bankAccountNotFound(id int64) error {
	return &shared.Error{Kind: shared.KindNotFound, Code: "BankAccountNotFound", Message: fmt.Sprintf("bank account %d not found", id)}
}
