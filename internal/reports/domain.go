// Package reports rolls chart-of-accounts balances up into balance sheet and
// cash flow statements.
package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
)

// Line is one account's contribution to a statement section.
type Line struct {
	AccountID int64           `json:"accountId"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
}

// Section groups lines under a heading with a running total.
type Section struct {
	Name  string          `json:"name"`
	Lines []Line          `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

func (s *Section) add(l Line) {
	s.Lines = append(s.Lines, l)
	s.Total = s.Total.Add(l.Amount)
}

// BalanceSheetData is the statement of financial position as of a date.
type BalanceSheetData struct {
	CompanyID           int64           `json:"companyId"`
	AsOf                time.Time       `json:"asOf"`
	CurrentAssets       Section         `json:"currentAssets"`
	FixedAssets         Section         `json:"fixedAssets"`
	CurrentLiabilities  Section         `json:"currentLiabilities"`
	LongTermLiabilities Section         `json:"longTermLiabilities"`
	Equity              Section         `json:"equity"`
	TotalAssets         decimal.Decimal `json:"totalAssets"`
	TotalLiabilities    decimal.Decimal `json:"totalLiabilities"`
	TotalEquity         decimal.Decimal `json:"totalEquity"`
	Imbalance           decimal.Decimal `json:"imbalance"`
	Balanced            bool            `json:"balanced"`
}

// Activity buckets cash flow lines.
type Activity string

const (
	ActivityOperating Activity = "operating"
	ActivityInvesting Activity = "investing"
	ActivityFinancing Activity = "financing"
)

// CashFlowSection reports inflow and outflow separately for one activity.
type CashFlowSection struct {
	Activity Activity        `json:"activity"`
	Lines    []Line          `json:"lines"`
	Inflow   decimal.Decimal `json:"inflow"`
	Outflow  decimal.Decimal `json:"outflow"`
	Net      decimal.Decimal `json:"net"`
}

func (s *CashFlowSection) add(l Line) {
	s.Lines = append(s.Lines, l)
	if l.Amount.IsPositive() {
		s.Inflow = s.Inflow.Add(l.Amount)
	} else {
		s.Outflow = s.Outflow.Add(l.Amount.Neg())
	}
	s.Net = s.Inflow.Sub(s.Outflow)
}

// CashFlowData is the indirect cash flow statement for a period.
type CashFlowData struct {
	CompanyID        int64           `json:"companyId"`
	StartDate        time.Time       `json:"startDate"`
	EndDate          time.Time       `json:"endDate"`
	BeginningBalance decimal.Decimal `json:"beginningBalance"`
	Operating        CashFlowSection `json:"operating"`
	Investing        CashFlowSection `json:"investing"`
	Financing        CashFlowSection `json:"financing"`
	NetCashFlow      decimal.Decimal `json:"netCashFlow"`
	EndingBalance    decimal.Decimal `json:"endingBalance"`
	// ActualEndingBalance is the cash account balance at EndDate. It may
	// differ from EndingBalance when postings are single-sided.
	ActualEndingBalance decimal.Decimal `json:"actualEndingBalance"`
	Reconciles          bool            `json:"reconciles"`
}

// Sections returns the three activity sections in display order.
func (c CashFlowData) Sections() []CashFlowSection {
	return []CashFlowSection{c.Operating, c.Investing, c.Financing}
}

func lineFor(b ledger.AccountBalance, amount decimal.Decimal) Line {
	return Line{AccountID: b.AccountID, Code: b.Code, Name: b.Name, Amount: amount}
}
