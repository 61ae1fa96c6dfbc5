// Package reconciliation pairs bank statement lines with ledger postings and
// manages the session lifecycle that ends in a reconciled book balance.
package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// SessionStatus enumerates reconciliation session states.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
)

// Session is a bounded matching period for one bank account.
type Session struct {
	ID               int64           `json:"id"`
	BankAccountID    int64           `json:"bankAccountId"`
	StartDate        time.Time       `json:"startDate"`
	EndDate          time.Time       `json:"endDate"`
	StatementBalance decimal.Decimal `json:"statementBalance"`
	Status           SessionStatus   `json:"status"`
	OpenedAt         time.Time       `json:"openedAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	AdjustmentID     *int64          `json:"adjustmentId,omitempty"`
}

// Range returns the session's inclusive date range.
func (s Session) Range() shared.DateRange {
	return shared.DateRange{Start: s.StartDate, End: s.EndDate}
}

// Classification of a persisted match.
type Classification string

const (
	ClassMatched Classification = "matched"
	ClassPending Classification = "pending"
)

// Match groups ledger lines with their bank counterparts.
type Match struct {
	ID                   int64           `json:"id"`
	SessionID            int64           `json:"sessionId"`
	GroupID              string          `json:"groupId"`
	LedgerTransactionIDs []int64         `json:"ledgerTransactionIds"`
	BankTransactionIDs   []int64         `json:"bankTransactionIds"`
	NoCounterpart        bool            `json:"noCounterpart"`
	Classification       Classification  `json:"classification"`
	Discrepancy          decimal.Decimal `json:"discrepancy"`
	Score                float64         `json:"score"`
	CreatedAt            time.Time       `json:"createdAt"`
}

// AutoMatchResult summarises one auto-match run.
type AutoMatchResult struct {
	MatchedCount   int `json:"matchedCount"`
	PendingCount   int `json:"pendingCount"`
	UnmatchedCount int `json:"unmatchedCount"`
}

// StartInput opens a session.
type StartInput struct {
	BankAccountID    int64
	Range            shared.DateRange
	StatementBalance decimal.Decimal
	Actor            string
}

// ManualMatchInput confirms a user-selected pairing.
type ManualMatchInput struct {
	BankAccountID int64
	LedgerTxnIDs  []int64
	BankTxnIDs    []int64
	Override      bool
	NoCounterpart bool
	Actor         string
}

// CompleteResult reports how a session was closed. ReleasedPending counts
// pending matches dissolved on completion.
type CompleteResult struct {
	Session         Session            `json:"session"`
	BookBalance     decimal.Decimal    `json:"bookBalance"`
	Difference      decimal.Decimal    `json:"difference"`
	Adjustment      *ledger.Adjustment `json:"adjustment,omitempty"`
	ReleasedPending int                `json:"releasedPending"`
}

// ItemKind distinguishes the two sides of an overview item.
type ItemKind string

const (
	ItemLedger ItemKind = "ledger"
	ItemBank   ItemKind = "bank"
)

// Item is one row in the reconciliation worklist.
type Item struct {
	Kind        ItemKind        `json:"kind"`
	ID          int64           `json:"id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	Status      string          `json:"status"`
}

// Overview is the GET payload of the reconciliation endpoint.
type Overview struct {
	BankAccounts        []ledger.BankAccount `json:"bankAccounts"`
	Session             *Session             `json:"session,omitempty"`
	Matches             []Match              `json:"matches,omitempty"`
	ReconciliationItems []Item               `json:"reconciliationItems"`
}

var (
	ErrSessionAlreadyActive = &shared.Error{Kind: shared.KindConflict, Code: "SessionAlreadyActive"}
	ErrSessionNotActive     = &shared.Error{Kind: shared.KindConflict, Code: "SessionNotActive"}
	ErrAlreadyMatched       = &shared.Error{Kind: shared.KindConflict, Code: "AlreadyMatched"}
	ErrReconciliationBusy   = &shared.Error{Kind: shared.KindConflict, Code: "ReconciliationBusy"}
	ErrAmountMismatch       = &shared.Error{Kind: shared.KindToleranceExceeded, Code: "AmountMismatch"}
	ErrUnreconciledItems    = &shared.Error{Kind: shared.KindPrecondition, Code: "UnreconciledItemsRemain"}
	ErrMatchNotFound        = &shared.Error{Kind: shared.KindNotFound, Code: "MatchNotFound"}
	ErrTransactionNotFound  = &shared.Error{Kind: shared.KindNotFound, Code: "TransactionNotFound"}
)

func sessionAlreadyActive(bankAccountID int64) error {
	return shared.Conflict("SessionAlreadyActive", "bank account %d already has a reconciliation session in progress", bankAccountID)
}

func sessionNotActive(bankAccountID int64) error {
	return shared.Conflict("SessionNotActive", "bank account %d has no reconciliation session in progress", bankAccountID)
}

func unreconciledItemsRemain(count int) error {
	err := shared.Precondition("UnreconciledItemsRemain", "%d unmatched ledger transactions remain", count)
	err.Count = count
	return err
}
