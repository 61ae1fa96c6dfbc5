package banking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/platform/cache"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// LockPort serialises writes per bank account across processes.
type LockPort interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// AuditPort records banking actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// InvalidatorPort drops cached financial statements for a company.
type InvalidatorPort interface {
	Invalidate(ctx context.Context, companyID int64) error
}

// Options carries optional collaborators.
type Options struct {
	Lock      LockPort
	Audit     AuditPort
	Reports   InvalidatorPort
	Logger    *slog.Logger
	Tolerance decimal.Decimal
	// Concurrency bounds parallel summary queries. Zero means 4.
	Concurrency int
}

// Service exposes balance checks, manual adjustments and statement imports.
type Service struct {
	repo   RepositoryPort
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tolerance.IsZero() {
		opts.Tolerance = shared.Cent
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Service{repo: repo, opts: opts, logger: opts.Logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Summary reports the discrepancy for one bank account, or for every bank
// account of the company when bankAccountID is zero. Both zero scans all
// accounts.
func (s *Service) Summary(ctx context.Context, companyID, bankAccountID int64) ([]Summary, error) {
	var accounts []ledger.BankAccount
	if bankAccountID != 0 {
		bank, err := s.repo.BankAccount(ctx, bankAccountID)
		if err != nil {
			return nil, err
		}
		if companyID != 0 && bank.CompanyID != companyID {
			return nil, shared.NotFound("BankAccountNotFound", "bank account %d not found", bankAccountID)
		}
		accounts = []ledger.BankAccount{bank}
	} else {
		var err error
		if accounts, err = s.repo.ListBankAccounts(ctx, companyID); err != nil {
			return nil, err
		}
	}

	today := shared.Day(s.now())
	out := make([]Summary, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, bank := range accounts {
		g.Go(func() error {
			sum, err := s.summarise(gctx, bank, today)
			if err != nil {
				return fmt.Errorf("summarise bank account %d: %w", bank.ID, err)
			}
			out[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) summarise(ctx context.Context, bank ledger.BankAccount, today time.Time) (Summary, error) {
	account, err := s.repo.Account(ctx, bank.LedgerAccountID)
	if err != nil {
		return Summary{}, err
	}
	signed, err := s.repo.SignedSum(ctx, account.ID, today)
	if err != nil {
		return Summary{}, err
	}
	unmatchedLedger, err := s.repo.CountUnmatchedLedger(ctx, account.ID, today)
	if err != nil {
		return Summary{}, err
	}
	unmatchedBank, err := s.repo.CountUnmatchedBank(ctx, bank.ID, today)
	if err != nil {
		return Summary{}, err
	}
	sessionID, err := s.repo.ActiveSessionID(ctx, bank.ID)
	if err != nil {
		return Summary{}, err
	}
	book := account.Type.BalanceOf(signed)
	diff := bank.Balance.Sub(book)
	return Summary{
		CompanyID:       bank.CompanyID,
		BankAccountID:   bank.ID,
		LedgerAccountID: account.ID,
		Name:            bank.Name,
		BankName:        bank.BankName,
		Currency:        bank.Currency,
		Status:          bank.Status,
		BankBalance:     bank.Balance,
		BookBalance:     book,
		Difference:      diff,
		Reconciled:      diff.Abs().LessThanOrEqual(s.opts.Tolerance),
		UnmatchedLedger: unmatchedLedger,
		UnmatchedBank:   unmatchedBank,
		LastSyncedAt:    bank.LastSyncedAt,
		ActiveSessionID: sessionID,
	}, nil
}

// Discrepancies returns summaries outside tolerance across all companies.
func (s *Service) Discrepancies(ctx context.Context) ([]Summary, error) {
	all, err := s.Summary(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, sum := range all {
		if !sum.Reconciled {
			out = append(out, sum)
		}
	}
	return out, nil
}

// CompanyIDs lists companies owning at least one bank account, ascending.
func (s *Service) CompanyIDs(ctx context.Context) ([]int64, error) {
	banks, err := s.repo.ListBankAccounts(ctx, 0)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{}, len(banks))
	var out []int64
	for _, b := range banks {
		if _, ok := seen[b.CompanyID]; ok {
			continue
		}
		seen[b.CompanyID] = struct{}{}
		out = append(out, b.CompanyID)
	}
	slices.Sort(out)
	return out, nil
}

type bookReader interface {
	Account(ctx context.Context, id int64) (ledger.Account, error)
	SignedSum(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error)
}

func (s *Service) propose(ctx context.Context, r bookReader, bank ledger.BankAccount, in AdjustInput) (AdjustResult, ledger.Account, error) {
	account, err := r.Account(ctx, bank.LedgerAccountID)
	if err != nil {
		return AdjustResult{}, ledger.Account{}, err
	}
	signed, err := r.SignedSum(ctx, account.ID, in.Date)
	if err != nil {
		return AdjustResult{}, ledger.Account{}, err
	}
	book := account.Type.BalanceOf(signed)
	diff := in.TargetBalance.Sub(book)
	return AdjustResult{
		BankAccountID:   bank.ID,
		LedgerAccountID: account.ID,
		Date:            in.Date,
		BookBalance:     book,
		TargetBalance:   in.TargetBalance,
		Difference:      diff,
		Amount:          account.Type.AmountFor(diff),
		Preview:         in.Preview,
		Required:        diff.Abs().GreaterThan(s.opts.Tolerance),
	}, account, nil
}

// Adjust moves the book balance of the bank's ledger account to the target
// as of the given date. Preview computes the proposal without posting.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (AdjustResult, error) {
	if in.BankAccountID == 0 {
		return AdjustResult{}, shared.Validation("accountId is required")
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}
	in.Date = shared.Day(in.Date)
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		in.Description = DefaultAdjustmentDescription
	}

	if in.Preview {
		bank, err := s.repo.BankAccount(ctx, in.BankAccountID)
		if err != nil {
			return AdjustResult{}, err
		}
		res, _, err := s.propose(ctx, s.repo, bank, in)
		return res, err
	}

	var (
		result    AdjustResult
		companyID int64
	)
	err := s.locked(ctx, in.BankAccountID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			bank, err := tx.BankAccountForUpdate(ctx, in.BankAccountID)
			if err != nil {
				return err
			}
			companyID = bank.CompanyID
			res, account, err := s.propose(ctx, tx, bank, in)
			if err != nil {
				return err
			}
			result = res
			if !res.Required {
				return nil
			}
			adj, err := tx.InsertAdjustment(ctx, ledger.AdjustmentInput{
				AccountID:   account.ID,
				Amount:      res.Amount,
				Date:        in.Date,
				Description: in.Description,
			})
			if err != nil {
				return err
			}
			result.Adjustment = &adj
			return nil
		})
	})
	if err != nil {
		return AdjustResult{}, err
	}
	if result.Adjustment != nil {
		s.recordAudit(ctx, companyID, in.Actor, "BANK_BALANCE_ADJUST", in.BankAccountID, map[string]any{
			"adjustment_id": result.Adjustment.ID,
			"amount":        result.Amount.StringFixed(2),
			"target":        in.TargetBalance.StringFixed(2),
			"date":          in.Date.Format(shared.DateLayout),
		})
		s.invalidateReports(ctx, companyID)
	}
	return result, nil
}

// ImportStatement stores bank lines, skipping references already imported,
// and stamps the account's sync time. A non-nil closing balance replaces the
// bank balance.
func (s *Service) ImportStatement(ctx context.Context, bankAccountID int64, lines []ledger.BankTransaction, closing *decimal.Decimal, actor string) (ImportResult, error) {
	if bankAccountID == 0 {
		return ImportResult{}, shared.Validation("bankAccountId is required")
	}
	lines = append([]ledger.BankTransaction(nil), lines...)
	for i := range lines {
		if lines[i].Date.IsZero() {
			return ImportResult{}, shared.Validation("line %d: date is required", i+1)
		}
		lines[i].BankAccountID = bankAccountID
		lines[i].Date = shared.Day(lines[i].Date)
		lines[i].Reference = strings.TrimSpace(lines[i].Reference)
		if lines[i].Reference == "" {
			lines[i].Reference = SyntheticReference(lines[i])
		}
	}

	result := ImportResult{BankAccountID: bankAccountID, SyncedAt: s.now().UTC()}
	var companyID int64
	err := s.locked(ctx, bankAccountID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			bank, err := tx.BankAccountForUpdate(ctx, bankAccountID)
			if err != nil {
				return err
			}
			companyID = bank.CompanyID
			result.Inserted, result.Skipped = 0, 0
			for _, line := range lines {
				inserted, err := tx.InsertBankTransaction(ctx, line)
				if err != nil {
					return fmt.Errorf("insert bank line %s: %w", line.Reference, err)
				}
				if inserted {
					result.Inserted++
				} else {
					result.Skipped++
				}
			}
			return tx.TouchBankSync(ctx, bankAccountID, result.SyncedAt, closing)
		})
	})
	if err != nil {
		return ImportResult{}, err
	}
	s.recordAudit(ctx, companyID, actor, "BANK_STATEMENT_IMPORT", bankAccountID, map[string]any{
		"inserted": result.Inserted,
		"skipped":  result.Skipped,
	})
	return result, nil
}

// SyntheticReference derives a stable reference for lines the bank sent
// without one, so re-importing the same file stays idempotent.
func SyntheticReference(t ledger.BankTransaction) string {
	name := strings.Join([]string{
		t.Date.Format(shared.DateLayout),
		t.Amount.String(),
		strings.ToLower(strings.TrimSpace(t.Description)),
	}, "|")
	return "gen-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func (s *Service) locked(ctx context.Context, bankAccountID int64, fn func(context.Context) error) error {
	if s.opts.Lock == nil {
		return fn(ctx)
	}
	release, err := s.opts.Lock.Acquire(ctx, shared.BalanceCheckLockKey(bankAccountID))
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return shared.Conflict("BalanceCheckBusy", "another balance update is running for bank account %d", bankAccountID)
		}
		return err
	}
	defer release()
	return fn(ctx)
}

func (s *Service) recordAudit(ctx context.Context, companyID int64, actor, action string, entityID int64, meta map[string]any) {
	if s.opts.Audit == nil {
		return
	}
	err := s.opts.Audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		Actor:     actor,
		Action:    action,
		Entity:    "bank_account",
		EntityID:  strconv.FormatInt(entityID, 10),
		Meta:      meta,
		At:        s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) invalidateReports(ctx context.Context, companyID int64) {
	if s.opts.Reports == nil || companyID == 0 {
		return
	}
	if err := s.opts.Reports.Invalidate(ctx, companyID); err != nil {
		s.logger.Warn("report cache invalidation failed", slog.Int64("company_id", companyID), slog.Any("error", err))
	}
}
