package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// GenericParser reads headered CSV with date, description, amount and an
// optional reference column in any order. Dates are YYYY-MM-DD.
type GenericParser struct{}

// Format returns the parser name.
func (p *GenericParser) Format() string { return "generic" }

var requiredColumns = []string{"date", "description", "amount"}

// Parse reads a generic CSV and returns BankTransactions.
func (p *GenericParser) Parse(r io.Reader) ([]ledger.BankTransaction, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading generic CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("generic CSV: missing %q column", name)
		}
	}
	refCol, hasRef := cols["reference"]

	var txns []ledger.BankTransaction
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		date, err := time.Parse(shared.DateLayout, strings.TrimSpace(rec[cols["date"]]))
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing date %q: %w", row, rec[cols["date"]], err)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(rec[cols["amount"]]))
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing amount %q: %w", row, rec[cols["amount"]], err)
		}
		txn := ledger.BankTransaction{
			Date:        date,
			Description: strings.TrimSpace(rec[cols["description"]]),
			Amount:      amount,
		}
		if hasRef {
			txn.Reference = strings.TrimSpace(rec[refCol])
		}
		txns = append(txns, txn)
	}
	dedupeReferences(txns)
	return txns, nil
}
