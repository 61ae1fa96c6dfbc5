// Package importer turns bank statement exports into bank transactions.
package importer

import (
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ledgerline/ledgerline/internal/ledger"
)

// Parser converts a bank CSV file into BankTransactions. Amounts are
// positive for deposits.
type Parser interface {
	Parse(r io.Reader) ([]ledger.BankTransaction, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(strings.TrimSpace(format))]
}

// Formats lists registered format names.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.parsers))
	for k := range r.parsers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&ChaseParser{})
	r.Register(&GenericParser{})
	return r
}

// dedupeReferences suffixes repeated references within one file so distinct
// same-day lines survive the unique (bank_account_id, reference) index.
func dedupeReferences(txns []ledger.BankTransaction) {
	seen := make(map[string]int, len(txns))
	for i := range txns {
		ref := txns[i].Reference
		if ref == "" {
			continue
		}
		seen[ref]++
		if n := seen[ref]; n > 1 {
			txns[i].Reference = ref + "_" + strconv.Itoa(n)
		}
	}
}

