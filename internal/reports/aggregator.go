package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// EarningsLineName labels the synthetic equity line carrying revenue less
// expenses.
const EarningsLineName = "Current period earnings"

// BuildBalanceSheet partitions active account balances into statement
// sections. An imbalance beyond one cent is flagged, never corrected.
func BuildBalanceSheet(companyID int64, asOf time.Time, balances []ledger.AccountBalance) BalanceSheetData {
	out := BalanceSheetData{
		CompanyID:           companyID,
		AsOf:                shared.Day(asOf),
		CurrentAssets:       Section{Name: "Current assets"},
		FixedAssets:         Section{Name: "Fixed assets"},
		CurrentLiabilities:  Section{Name: "Current liabilities"},
		LongTermLiabilities: Section{Name: "Long-term liabilities"},
		Equity:              Section{Name: "Equity"},
	}
	earnings := decimal.Zero
	for _, b := range balances {
		if !b.IsActive {
			continue
		}
		bal := b.Balance()
		switch b.Type {
		case ledger.AccountTypeAsset:
			if nonCurrent(b.Category) {
				out.FixedAssets.add(lineFor(b, bal))
			} else {
				out.CurrentAssets.add(lineFor(b, bal))
			}
		case ledger.AccountTypeLiability:
			if b.Category == ledger.CategoryLongTerm {
				out.LongTermLiabilities.add(lineFor(b, bal))
			} else {
				out.CurrentLiabilities.add(lineFor(b, bal))
			}
		case ledger.AccountTypeEquity:
			out.Equity.add(lineFor(b, bal))
		case ledger.AccountTypeRevenue:
			earnings = earnings.Add(bal)
		case ledger.AccountTypeExpense:
			earnings = earnings.Sub(bal)
		}
	}
	if !earnings.IsZero() {
		out.Equity.add(Line{Name: EarningsLineName, Amount: earnings})
	}

	out.TotalAssets = out.CurrentAssets.Total.Add(out.FixedAssets.Total)
	out.TotalLiabilities = out.CurrentLiabilities.Total.Add(out.LongTermLiabilities.Total)
	out.TotalEquity = out.Equity.Total
	out.Imbalance = out.TotalAssets.Sub(out.TotalLiabilities.Add(out.TotalEquity))
	out.Balanced = out.Imbalance.Abs().LessThanOrEqual(shared.Cent)
	return out
}

// BuildCashFlow derives cash movement from non-cash account activity.
// opening holds balances the day before the range starts, closing holds
// balances at its end and movements holds per-account activity within it.
func BuildCashFlow(companyID int64, rng shared.DateRange, opening, closing, movements []ledger.AccountBalance) CashFlowData {
	out := CashFlowData{
		CompanyID: companyID,
		StartDate: rng.Start,
		EndDate:   rng.End,
		Operating: CashFlowSection{Activity: ActivityOperating},
		Investing: CashFlowSection{Activity: ActivityInvesting},
		Financing: CashFlowSection{Activity: ActivityFinancing},
	}
	out.BeginningBalance = cashTotal(opening)
	out.ActualEndingBalance = cashTotal(closing)

	for _, m := range movements {
		if isCash(m) || m.SignedSum.IsZero() {
			continue
		}
		// A debit to a non-cash account is funded by a credit to cash.
		line := lineFor(m, m.SignedSum.Neg())
		switch classify(m) {
		case ActivityInvesting:
			out.Investing.add(line)
		case ActivityFinancing:
			out.Financing.add(line)
		default:
			out.Operating.add(line)
		}
	}

	out.NetCashFlow = out.Operating.Net.Add(out.Investing.Net).Add(out.Financing.Net)
	out.EndingBalance = out.BeginningBalance.Add(out.NetCashFlow)
	out.Reconciles = shared.WithinTolerance(out.EndingBalance, out.ActualEndingBalance, shared.Cent)
	return out
}

func classify(b ledger.AccountBalance) Activity {
	switch b.Type {
	case ledger.AccountTypeAsset:
		if nonCurrent(b.Category) {
			return ActivityInvesting
		}
	case ledger.AccountTypeLiability:
		if b.Category == ledger.CategoryLongTerm {
			return ActivityFinancing
		}
	case ledger.AccountTypeEquity:
		return ActivityFinancing
	}
	return ActivityOperating
}

func nonCurrent(c ledger.Category) bool {
	return c == ledger.CategoryFixed || c == ledger.CategoryLongTerm
}

func isCash(b ledger.AccountBalance) bool {
	return b.Type == ledger.AccountTypeAsset && b.Category == ledger.CategoryCash
}

func cashTotal(balances []ledger.AccountBalance) decimal.Decimal {
	total := decimal.Zero
	for _, b := range balances {
		if isCash(b) {
			total = total.Add(b.Balance())
		}
	}
	return total
}
