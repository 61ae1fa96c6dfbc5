// Package banking compares bank feeds against the book and posts manual
// balance corrections.
package banking

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
)

// Summary is the discrepancy view for one bank account.
type Summary struct {
	CompanyID       int64                    `json:"companyId"`
	BankAccountID   int64                    `json:"bankAccountId"`
	LedgerAccountID int64                    `json:"ledgerAccountId"`
	Name            string                   `json:"name"`
	BankName        string                   `json:"bankName"`
	Currency        string                   `json:"currency"`
	Status          ledger.BankAccountStatus `json:"status"`
	BankBalance     decimal.Decimal          `json:"bankBalance"`
	BookBalance     decimal.Decimal          `json:"bookBalance"`
	Difference      decimal.Decimal          `json:"difference"`
	Reconciled      bool                     `json:"reconciled"`
	UnmatchedLedger int                      `json:"unmatchedLedgerCount"`
	UnmatchedBank   int                      `json:"unmatchedBankCount"`
	LastSyncedAt    *time.Time               `json:"lastSyncedAt,omitempty"`
	ActiveSessionID *int64                   `json:"activeSessionId,omitempty"`
}

// AdjustInput requests a book correction towards targetBalance.
type AdjustInput struct {
	BankAccountID int64
	TargetBalance decimal.Decimal
	Description   string
	Date          time.Time
	Preview       bool
	Actor         string
}

// AdjustResult describes the proposed or posted correction. Amount is the
// debit-positive posting that moves the book to the target.
type AdjustResult struct {
	BankAccountID   int64              `json:"bankAccountId"`
	LedgerAccountID int64              `json:"ledgerAccountId"`
	Date            time.Time          `json:"date"`
	BookBalance     decimal.Decimal    `json:"bookBalance"`
	TargetBalance   decimal.Decimal    `json:"targetBalance"`
	Difference      decimal.Decimal    `json:"difference"`
	Amount          decimal.Decimal    `json:"amount"`
	Preview         bool               `json:"preview"`
	Required        bool               `json:"required"`
	Adjustment      *ledger.Adjustment `json:"adjustment,omitempty"`
}

// ImportResult reports a statement import.
type ImportResult struct {
	BankAccountID int64     `json:"bankAccountId"`
	Inserted      int       `json:"inserted"`
	Skipped       int       `json:"skipped"`
	SyncedAt      time.Time `json:"syncedAt"`
}

// DefaultAdjustmentDescription is used when the caller gives none.
const DefaultAdjustmentDescription = "Manual balance adjustment"
