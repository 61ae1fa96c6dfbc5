package reconciliation

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// MatchConfig tunes candidate selection and scoring. The date weight decays
// linearly from full on the same day to zero at DateWindowDays.
type MatchConfig struct {
	AmountTolerance   decimal.Decimal
	DateWindowDays    int
	AcceptThreshold   float64
	AmountWeight      float64
	DateWeight        float64
	DescriptionWeight float64
	FuzzyMinRunes     int
}

// DefaultMatchConfig returns the stock tolerances: one cent, three days and a
// 0.5 acceptance threshold.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		AmountTolerance:   shared.Cent,
		DateWindowDays:    3,
		AcceptThreshold:   0.5,
		AmountWeight:      0.6,
		DateWeight:        0.3,
		DescriptionWeight: 0.1,
		FuzzyMinRunes:     5,
	}
}

// Validate rejects configurations that cannot produce meaningful scores.
func (c MatchConfig) Validate() error {
	switch {
	case c.AmountTolerance.IsNegative():
		return shared.Validation("amount tolerance must not be negative")
	case c.DateWindowDays < 0:
		return shared.Validation("date window must not be negative")
	case c.AcceptThreshold < 0 || c.AcceptThreshold > 1:
		return shared.Validation("accept threshold must be within [0,1]")
	case c.AmountWeight < 0 || c.DateWeight < 0 || c.DescriptionWeight < 0:
		return shared.Validation("weights must not be negative")
	case c.AmountWeight+c.DateWeight+c.DescriptionWeight <= 0:
		return shared.Validation("at least one weight must be positive")
	}
	return nil
}

// Pair is a scored ledger/bank candidate.
type Pair struct {
	Ledger     ledger.Transaction     `json:"ledger"`
	Bank       ledger.BankTransaction `json:"bank"`
	Score      float64                `json:"score"`
	DateGap    int                    `json:"dateGap"`
	AmountDiff decimal.Decimal        `json:"amountDiff"`

	ledgerIdx int
	bankIdx   int
}

// Proposal is the outcome of one matching pass. Nothing is persisted.
type Proposal struct {
	Matched         []Pair                   `json:"matched"`
	Pending         []Pair                   `json:"pending"`
	UnmatchedLedger []ledger.Transaction     `json:"unmatchedLedger"`
	UnmatchedBank   []ledger.BankTransaction `json:"unmatchedBank"`
}

// Counts summarises the proposal. Unpaired items on either side count as
// unmatched.
func (p Proposal) Counts() AutoMatchResult {
	return AutoMatchResult{
		MatchedCount:   len(p.Matched),
		PendingCount:   len(p.Pending),
		UnmatchedCount: len(p.UnmatchedLedger) + len(p.UnmatchedBank),
	}
}

// Matcher pairs ledger and bank transactions greedily by score.
type Matcher struct {
	cfg MatchConfig
}

// NewMatcher constructs a Matcher.
func NewMatcher(cfg MatchConfig) *Matcher {
	return &Matcher{cfg: cfg}
}

// Config returns the active configuration.
func (m *Matcher) Config() MatchConfig {
	return m.cfg
}

// Propose scores every candidate pair and assigns them greedily, each
// transaction at most once. The result is not globally optimal.
func (m *Matcher) Propose(ledgerTxns []ledger.Transaction, bankTxns []ledger.BankTransaction) Proposal {
	bankTokens := make([][]string, len(bankTxns))
	for j, b := range bankTxns {
		bankTokens[j] = tokenize(b.Description)
	}

	var candidates []Pair
	for i, l := range ledgerTxns {
		lt := tokenize(l.Description)
		for j, b := range bankTxns {
			pair, ok := m.score(l, b, lt, bankTokens[j])
			if !ok {
				continue
			}
			pair.ledgerIdx, pair.bankIdx = i, j
			candidates = append(candidates, pair)
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.Score != cb.Score {
			return ca.Score > cb.Score
		}
		if ca.DateGap != cb.DateGap {
			return ca.DateGap < cb.DateGap
		}
		if ca.ledgerIdx != cb.ledgerIdx {
			return ca.ledgerIdx < cb.ledgerIdx
		}
		return ca.bankIdx < cb.bankIdx
	})

	usedLedger := make([]bool, len(ledgerTxns))
	usedBank := make([]bool, len(bankTxns))
	var proposal Proposal
	for _, c := range candidates {
		if usedLedger[c.ledgerIdx] || usedBank[c.bankIdx] {
			continue
		}
		usedLedger[c.ledgerIdx] = true
		usedBank[c.bankIdx] = true
		if c.Score >= m.cfg.AcceptThreshold {
			proposal.Matched = append(proposal.Matched, c)
		} else {
			proposal.Pending = append(proposal.Pending, c)
		}
	}
	for i, l := range ledgerTxns {
		if !usedLedger[i] {
			proposal.UnmatchedLedger = append(proposal.UnmatchedLedger, l)
		}
	}
	for j, b := range bankTxns {
		if !usedBank[j] {
			proposal.UnmatchedBank = append(proposal.UnmatchedBank, b)
		}
	}
	return proposal
}

// Score rates a single pair, reporting false when it is not a candidate.
func (m *Matcher) Score(l ledger.Transaction, b ledger.BankTransaction) (float64, bool) {
	pair, ok := m.score(l, b, tokenize(l.Description), tokenize(b.Description))
	return pair.Score, ok
}

func (m *Matcher) score(l ledger.Transaction, b ledger.BankTransaction, lt, bt []string) (Pair, bool) {
	diff := l.Amount.Sub(b.Amount).Abs()
	if diff.GreaterThan(m.cfg.AmountTolerance) {
		return Pair{}, false
	}
	gap := shared.DaysBetween(l.Date, b.Date)
	if gap > m.cfg.DateWindowDays {
		return Pair{}, false
	}

	amountPart := m.cfg.AmountWeight
	if !diff.IsZero() {
		// decays to half weight at the tolerance edge
		ratio, _ := diff.Div(m.cfg.AmountTolerance).Float64()
		amountPart = m.cfg.AmountWeight * (1 - 0.5*ratio)
	}

	datePart := m.cfg.DateWeight
	if m.cfg.DateWindowDays > 0 {
		datePart = m.cfg.DateWeight * (1 - float64(gap)/float64(m.cfg.DateWindowDays))
	}

	descPart := m.cfg.DescriptionWeight * m.tokenOverlap(lt, bt)

	return Pair{
		Ledger:     l,
		Bank:       b,
		Score:      roundScore(amountPart + datePart + descPart),
		DateGap:    gap,
		AmountDiff: l.Amount.Sub(b.Amount),
	}, true
}

// tokenOverlap is the Jaccard index of two token sets where near-identical
// long tokens count as equal.
func (m *Matcher) tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	used := make([]bool, len(b))
	common := 0
	for _, ta := range a {
		for j, tb := range b {
			if used[j] || !m.tokensEqual(ta, tb) {
				continue
			}
			used[j] = true
			common++
			break
		}
	}
	union := len(a) + len(b) - common
	return float64(common) / float64(union)
}

func (m *Matcher) tokensEqual(a, b string) bool {
	if a == b {
		return true
	}
	minRunes := m.cfg.FuzzyMinRunes
	if minRunes <= 0 || utf8.RuneCountInString(a) < minRunes || utf8.RuneCountInString(b) < minRunes {
		return false
	}
	return levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptionsWithSub) <= 1
}

// tokenize lowercases and splits on anything that is not a letter or digit,
// dropping single-rune fragments and duplicates.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func roundScore(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(4).Float64()
	return f
}
