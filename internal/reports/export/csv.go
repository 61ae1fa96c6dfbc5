// Package export formats statements as CSV or PDF.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/ledgerline/ledgerline/internal/reports"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// WriteBalanceSheetCSV serialises the balance sheet one line per account.
func WriteBalanceSheetCSV(w io.Writer, data reports.BalanceSheetData) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Section", "Code", "Account", "Amount"}); err != nil {
		return err
	}
	sections := []reports.Section{data.CurrentAssets, data.FixedAssets, data.CurrentLiabilities, data.LongTermLiabilities, data.Equity}
	for _, section := range sections {
		if err := writeSection(writer, section); err != nil {
			return err
		}
	}
	records := [][]string{
		{"Summary", "", "Total assets", data.TotalAssets.StringFixed(2)},
		{"Summary", "", "Total liabilities", data.TotalLiabilities.StringFixed(2)},
		{"Summary", "", "Total equity", data.TotalEquity.StringFixed(2)},
		{"Summary", "", "Imbalance", data.Imbalance.StringFixed(2)},
		{"Summary", "", "Balanced", strconv.FormatBool(data.Balanced)},
	}
	if err := writer.WriteAll(records); err != nil {
		return err
	}
	return writer.Error()
}

func writeSection(writer *csv.Writer, section reports.Section) error {
	for _, line := range section.Lines {
		if err := writer.Write([]string{section.Name, line.Code, line.Name, line.Amount.StringFixed(2)}); err != nil {
			return err
		}
	}
	return writer.Write([]string{section.Name, "", "Total " + section.Name, section.Total.StringFixed(2)})
}

// WriteCashFlowCSV emits the cash flow statement as CSV.
func WriteCashFlowCSV(w io.Writer, data reports.CashFlowData) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Activity", "Code", "Account", "Amount"}); err != nil {
		return err
	}
	period := data.StartDate.Format(shared.DateLayout) + " to " + data.EndDate.Format(shared.DateLayout)
	if err := writer.Write([]string{"Period", "", period, ""}); err != nil {
		return err
	}
	if err := writer.Write([]string{"Beginning balance", "", "", data.BeginningBalance.StringFixed(2)}); err != nil {
		return err
	}
	for _, section := range data.Sections() {
		name := string(section.Activity)
		for _, line := range section.Lines {
			if err := writer.Write([]string{name, line.Code, line.Name, line.Amount.StringFixed(2)}); err != nil {
				return err
			}
		}
		for _, rec := range [][]string{
			{name, "", "Inflow", section.Inflow.StringFixed(2)},
			{name, "", "Outflow", section.Outflow.StringFixed(2)},
			{name, "", "Net", section.Net.StringFixed(2)},
		} {
			if err := writer.Write(rec); err != nil {
				return err
			}
		}
	}
	for _, rec := range [][]string{
		{"Net cash flow", "", "", data.NetCashFlow.StringFixed(2)},
		{"Ending balance", "", "", data.EndingBalance.StringFixed(2)},
		{"Actual ending balance", "", "", data.ActualEndingBalance.StringFixed(2)},
		{"Reconciles", "", "", strconv.FormatBool(data.Reconciles)},
	} {
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
