package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/platform/cache"
	"github.com/ledgerline/ledgerline/internal/shared"
)

const idempotencyModule = "reconciliation.complete"

// LockPort serialises actions per bank account.
type LockPort interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards non-idempotent actions.
type IdempotencyPort interface {
	Claim(ctx context.Context, module, key string) error
	Release(ctx context.Context, module, key string) error
}

// MetricsPort receives reconciliation outcomes.
type MetricsPort interface {
	ObserveReconAction(action, outcome string)
	ObserveAutoMatch(matched, pending, unmatched int)
}

// InvalidatorPort drops cached financial statements for a company.
type InvalidatorPort interface {
	Invalidate(ctx context.Context, companyID int64) error
}

// Options carries optional collaborators.
type Options struct {
	Lock                 LockPort
	Audit                AuditPort
	Idempotency          IdempotencyPort
	Metrics              MetricsPort
	Reports              InvalidatorPort
	Logger               *slog.Logger
	DiscrepancyAccountID int64
}

// Service owns reconciliation sessions and their matches.
type Service struct {
	repo    RepositoryPort
	matcher *Matcher
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort, matcher *Matcher, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, matcher: matcher, opts: opts, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Matcher exposes the configured matcher.
func (s *Service) Matcher() *Matcher {
	return s.matcher
}

// Start opens a reconciliation session for a bank account.
func (s *Service) Start(ctx context.Context, in StartInput) (Session, error) {
	if in.BankAccountID == 0 {
		return Session{}, shared.Validation("bankAccountId is required")
	}
	var session Session
	err := s.guarded(ctx, "start", in.BankAccountID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if _, err := tx.BankAccountForUpdate(ctx, in.BankAccountID); err != nil {
				return err
			}
			_, active, err := tx.ActiveSessionForUpdate(ctx, in.BankAccountID)
			if err != nil {
				return err
			}
			if active {
				return sessionAlreadyActive(in.BankAccountID)
			}
			session, err = tx.InsertSession(ctx, Session{
				BankAccountID:    in.BankAccountID,
				StartDate:        in.Range.Start,
				EndDate:          in.Range.End,
				StatementBalance: in.StatementBalance,
				Status:           SessionInProgress,
				OpenedAt:         s.now().UTC(),
			})
			return err
		})
	})
	if err != nil {
		return Session{}, err
	}
	s.recordAudit(ctx, in.Actor, "RECON_START", session.ID, map[string]any{
		"bank_account_id":   in.BankAccountID,
		"start":             session.StartDate.Format(shared.DateLayout),
		"end":               session.EndDate.Format(shared.DateLayout),
		"statement_balance": session.StatementBalance.StringFixed(2),
	})
	return session, nil
}

// Propose previews an auto-match without persisting anything. A zero range
// uses the active session's range.
func (s *Service) Propose(ctx context.Context, bankAccountID int64, rng shared.DateRange) (Proposal, error) {
	bank, err := s.repo.BankAccount(ctx, bankAccountID)
	if err != nil {
		return Proposal{}, err
	}
	session, active, err := s.repo.ActiveSession(ctx, bankAccountID)
	if err != nil {
		return Proposal{}, err
	}
	if rng.Start.IsZero() {
		if !active {
			return Proposal{}, sessionNotActive(bankAccountID)
		}
		rng = session.Range()
	}
	ledgerTxns, err := s.repo.LedgerTransactions(ctx, bank.LedgerAccountID, rng)
	if err != nil {
		return Proposal{}, err
	}
	ledgerTxns = onlyStatus(ledgerTxns, ledger.StatusUnmatched)
	bankTxns, err := s.repo.BankTransactions(ctx, bankAccountID, rng.Widen(s.matcher.cfg.DateWindowDays), true)
	if err != nil {
		return Proposal{}, err
	}
	if active {
		parked, err := s.repo.PendingBankIDs(ctx, session.ID)
		if err != nil {
			return Proposal{}, err
		}
		bankTxns = withoutBank(bankTxns, parked)
	}
	return s.matcher.Propose(ledgerTxns, bankTxns), nil
}

// AutoMatch scores unmatched ledger and bank lines and persists the greedy
// assignment. Re-running it only considers lines still open, so retries are
// safe.
func (s *Service) AutoMatch(ctx context.Context, bankAccountID int64, rng shared.DateRange) (AutoMatchResult, error) {
	var result AutoMatchResult
	var sessionID int64
	err := s.guarded(ctx, "auto-match", bankAccountID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			bank, err := tx.BankAccountForUpdate(ctx, bankAccountID)
			if err != nil {
				return err
			}
			session, active, err := tx.ActiveSessionForUpdate(ctx, bankAccountID)
			if err != nil {
				return err
			}
			if !active {
				return sessionNotActive(bankAccountID)
			}
			sessionID = session.ID
			if rng.Start.IsZero() {
				rng = session.Range()
			}
			ledgerTxns, err := tx.UnmatchedLedger(ctx, bank.LedgerAccountID, rng)
			if err != nil {
				return err
			}
			bankTxns, err := tx.UnmatchedBank(ctx, bankAccountID, rng.Widen(s.matcher.cfg.DateWindowDays))
			if err != nil {
				return err
			}
			parked, err := tx.PendingBankIDs(ctx, session.ID)
			if err != nil {
				return err
			}
			proposal := s.matcher.Propose(ledgerTxns, withoutBank(bankTxns, parked))
			for _, pair := range proposal.Matched {
				if err := s.persistPair(ctx, tx, session.ID, pair, ClassMatched); err != nil {
					return err
				}
			}
			for _, pair := range proposal.Pending {
				if err := s.persistPair(ctx, tx, session.ID, pair, ClassPending); err != nil {
					return err
				}
			}
			result = proposal.Counts()
			return nil
		})
	})
	if err != nil {
		return AutoMatchResult{}, err
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveAutoMatch(result.MatchedCount, result.PendingCount, result.UnmatchedCount)
	}
	s.recordAudit(ctx, "", "RECON_AUTO_MATCH", sessionID, map[string]any{
		"bank_account_id": bankAccountID,
		"matched":         result.MatchedCount,
		"pending":         result.PendingCount,
		"unmatched":       result.UnmatchedCount,
	})
	return result, nil
}

func (s *Service) persistPair(ctx context.Context, tx TxRepository, sessionID int64, pair Pair, class Classification) error {
	_, err := tx.InsertMatch(ctx, Match{
		SessionID:            sessionID,
		GroupID:              uuid.NewString(),
		LedgerTransactionIDs: []int64{pair.Ledger.ID},
		BankTransactionIDs:   []int64{pair.Bank.ID},
		Classification:       class,
		Discrepancy:          pair.AmountDiff,
		Score:                pair.Score,
	})
	if err != nil {
		return err
	}
	if class == ClassPending {
		return tx.SetLedgerStatus(ctx, []int64{pair.Ledger.ID}, ledger.StatusPending, nil)
	}
	bankID := pair.Bank.ID
	if err := tx.SetLedgerStatus(ctx, []int64{pair.Ledger.ID}, ledger.StatusMatched, &bankID); err != nil {
		return err
	}
	return tx.SetBankMatched(ctx, []int64{bankID}, true)
}

// ManualMatch confirms a user-selected pairing. It bypasses scoring and is
// always classified matched. Pending lines are released from their pending
// match first.
func (s *Service) ManualMatch(ctx context.Context, in ManualMatchInput) (Match, error) {
	if err := validateManual(in); err != nil {
		return Match{}, err
	}
	tolerance := s.matcher.cfg.AmountTolerance
	var match Match
	err := s.guarded(ctx, "match", in.BankAccountID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			bank, err := tx.BankAccountForUpdate(ctx, in.BankAccountID)
			if err != nil {
				return err
			}
			session, active, err := tx.ActiveSessionForUpdate(ctx, in.BankAccountID)
			if err != nil {
				return err
			}
			if !active {
				return sessionNotActive(in.BankAccountID)
			}
			ledgerTxns, err := tx.LedgerByIDs(ctx, in.LedgerTxnIDs)
			if err != nil {
				return err
			}
			if err := checkLedger(ledgerTxns, in.LedgerTxnIDs, bank.LedgerAccountID); err != nil {
				return err
			}
			bankTxns, err := tx.BankByIDs(ctx, in.BankTxnIDs)
			if err != nil {
				return err
			}
			if err := checkBank(bankTxns, in.BankTxnIDs, bank.ID); err != nil {
				return err
			}

			if err := s.releasePending(ctx, tx, session.ID, in.LedgerTxnIDs, in.BankTxnIDs); err != nil {
				return err
			}

			ledgerSum := decimal.Zero
			for _, t := range ledgerTxns {
				ledgerSum = ledgerSum.Add(t.Amount)
			}
			bankSum := decimal.Zero
			for _, b := range bankTxns {
				bankSum = bankSum.Add(b.Amount)
			}
			discrepancy := decimal.Zero
			if !in.NoCounterpart {
				discrepancy = ledgerSum.Sub(bankSum)
				if discrepancy.Abs().GreaterThan(tolerance) && !in.Override {
					return shared.ToleranceExceeded("AmountMismatch", "ledger total %s differs from bank total %s by more than %s",
						ledgerSum.StringFixed(2), bankSum.StringFixed(2), tolerance.String())
				}
			}

			match, err = tx.InsertMatch(ctx, Match{
				SessionID:            session.ID,
				GroupID:              uuid.NewString(),
				LedgerTransactionIDs: in.LedgerTxnIDs,
				BankTransactionIDs:   in.BankTxnIDs,
				NoCounterpart:        in.NoCounterpart,
				Classification:       ClassMatched,
				Discrepancy:          discrepancy,
				Score:                1,
			})
			if err != nil {
				return err
			}
			var link *int64
			if len(in.BankTxnIDs) == 1 {
				id := in.BankTxnIDs[0]
				link = &id
			}
			if err := tx.SetLedgerStatus(ctx, in.LedgerTxnIDs, ledger.StatusMatched, link); err != nil {
				return err
			}
			return tx.SetBankMatched(ctx, in.BankTxnIDs, true)
		})
	})
	if err != nil {
		return Match{}, err
	}
	s.recordAudit(ctx, in.Actor, "RECON_MATCH", match.SessionID, map[string]any{
		"match_id":       match.ID,
		"ledger_ids":     in.LedgerTxnIDs,
		"bank_ids":       in.BankTxnIDs,
		"override":       in.Override,
		"no_counterpart": in.NoCounterpart,
		"discrepancy":    match.Discrepancy.StringFixed(2),
	})
	return match, nil
}

func validateManual(in ManualMatchInput) error {
	switch {
	case in.BankAccountID == 0:
		return shared.Validation("bankAccountId is required")
	case len(in.LedgerTxnIDs) == 0:
		return shared.Validation("at least one ledger transaction is required")
	case in.NoCounterpart && len(in.BankTxnIDs) > 0:
		return shared.Validation("noCounterpart cannot be combined with bank transactions")
	case !in.NoCounterpart && len(in.BankTxnIDs) == 0:
		return shared.Validation("bank transactions are required unless noCounterpart is set")
	}
	if dup := firstDuplicate(in.LedgerTxnIDs); dup != 0 {
		return shared.Validation("ledger transaction %d listed twice", dup)
	}
	if dup := firstDuplicate(in.BankTxnIDs); dup != 0 {
		return shared.Validation("bank transaction %d listed twice", dup)
	}
	return nil
}

func checkLedger(txns []ledger.Transaction, ids []int64, accountID int64) error {
	found := make(map[int64]ledger.Transaction, len(txns))
	for _, t := range txns {
		found[t.ID] = t
	}
	for _, id := range ids {
		t, ok := found[id]
		if !ok {
			return shared.NotFound("TransactionNotFound", "ledger transaction %d not found", id)
		}
		if t.AccountID != accountID {
			return shared.Validation("ledger transaction %d does not belong to the bank's ledger account", id)
		}
		if t.Status == ledger.StatusMatched {
			return shared.Conflict("AlreadyMatched", "ledger transaction %d is already matched", id)
		}
	}
	return nil
}

func checkBank(txns []ledger.BankTransaction, ids []int64, bankAccountID int64) error {
	found := make(map[int64]ledger.BankTransaction, len(txns))
	for _, b := range txns {
		found[b.ID] = b
	}
	for _, id := range ids {
		b, ok := found[id]
		if !ok {
			return shared.NotFound("TransactionNotFound", "bank transaction %d not found", id)
		}
		if b.BankAccountID != bankAccountID {
			return shared.Validation("bank transaction %d belongs to another bank account", id)
		}
		if b.Matched {
			return shared.Conflict("AlreadyMatched", "bank transaction %d is already matched", id)
		}
	}
	return nil
}

// releasePending drops pending matches touching the given lines and returns
// their ledger lines to unmatched.
func (s *Service) releasePending(ctx context.Context, tx TxRepository, sessionID int64, ledgerIDs, bankIDs []int64) error {
	pending, err := tx.PendingMatchesFor(ctx, sessionID, ledgerIDs, bankIDs)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if err := tx.SetLedgerStatus(ctx, m.LedgerTransactionIDs, ledger.StatusUnmatched, nil); err != nil {
			return err
		}
		if err := tx.DeleteMatch(ctx, m.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) releaseSessionPending(ctx context.Context, tx TxRepository, sessionID int64) (int, error) {
	pending, err := tx.PendingMatches(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	for _, m := range pending {
		if err := tx.SetLedgerStatus(ctx, m.LedgerTransactionIDs, ledger.StatusUnmatched, nil); err != nil {
			return 0, err
		}
		if err := tx.DeleteMatch(ctx, m.ID); err != nil {
			return 0, err
		}
	}
	return len(pending), nil
}

// Unmatch reverses a match in the active session.
func (s *Service) Unmatch(ctx context.Context, bankAccountID, matchID int64, actor string) error {
	if matchID == 0 {
		return shared.Validation("matchId is required")
	}
	err := s.guarded(ctx, "unmatch", bankAccountID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			session, active, err := tx.ActiveSessionForUpdate(ctx, bankAccountID)
			if err != nil {
				return err
			}
			if !active {
				return sessionNotActive(bankAccountID)
			}
			m, err := tx.MatchByID(ctx, matchID)
			if err != nil {
				return err
			}
			if m.SessionID != session.ID {
				return shared.NotFound("MatchNotFound", "match %d does not belong to the active session", matchID)
			}
			if err := tx.SetLedgerStatus(ctx, m.LedgerTransactionIDs, ledger.StatusUnmatched, nil); err != nil {
				return err
			}
			if err := tx.SetBankMatched(ctx, m.BankTransactionIDs, false); err != nil {
				return err
			}
			return tx.DeleteMatch(ctx, m.ID)
		})
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "RECON_UNMATCH", matchID, map[string]any{"bank_account_id": bankAccountID})
	return nil
}

// Complete closes the active session. It refuses while unmatched ledger lines
// remain and posts an adjustment when the statement and book balances differ
// by more than the tolerance. An idempotency key, when given, is claimed
// before any work and released again on failure.
func (s *Service) Complete(ctx context.Context, bankAccountID int64, idempotencyKey, actor string) (CompleteResult, error) {
	if bankAccountID == 0 {
		return CompleteResult{}, shared.Validation("bankAccountId is required")
	}
	claimed := false
	if idempotencyKey != "" && s.opts.Idempotency != nil {
		if err := s.opts.Idempotency.Claim(ctx, idempotencyModule, fmt.Sprintf("%d:%s", bankAccountID, idempotencyKey)); err != nil {
			return CompleteResult{}, err
		}
		claimed = true
	}

	tolerance := s.matcher.cfg.AmountTolerance
	var result CompleteResult
	var companyID int64
	err := s.guarded(ctx, "complete", bankAccountID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			bank, err := tx.BankAccountForUpdate(ctx, bankAccountID)
			if err != nil {
				return err
			}
			companyID = bank.CompanyID
			session, active, err := tx.ActiveSessionForUpdate(ctx, bankAccountID)
			if err != nil {
				return err
			}
			if !active {
				return sessionNotActive(bankAccountID)
			}
			remaining, err := tx.CountUnmatchedLedger(ctx, bank.LedgerAccountID, session.Range())
			if err != nil {
				return err
			}
			if remaining > 0 {
				return unreconciledItemsRemain(remaining)
			}
			// Pending pairs do not survive the session; their lines return
			// to the open pool for the next one.
			released, err := s.releaseSessionPending(ctx, tx, session.ID)
			if err != nil {
				return err
			}
			result.ReleasedPending = released

			account, err := tx.Account(ctx, bank.LedgerAccountID)
			if err != nil {
				return err
			}
			sum, err := tx.SignedSum(ctx, account.ID, session.EndDate)
			if err != nil {
				return err
			}
			book := account.Type.BalanceOf(sum)
			difference := session.StatementBalance.Sub(book)
			result.BookBalance = book
			result.Difference = difference

			var adjustmentID *int64
			if difference.Abs().GreaterThan(tolerance) {
				target := account.ID
				if s.opts.DiscrepancyAccountID != 0 {
					target = s.opts.DiscrepancyAccountID
				}
				sessionID := session.ID
				adj, err := tx.InsertAdjustment(ctx, ledger.AdjustmentInput{
					AccountID:   target,
					Amount:      account.Type.AmountFor(difference),
					Date:        session.EndDate,
					Description: fmt.Sprintf("Reconciliation adjustment — session %d", session.ID),
					SessionID:   &sessionID,
				})
				if err != nil {
					return err
				}
				result.Adjustment = &adj
				adjustmentID = &adj.ID
			}

			completedAt := s.now().UTC()
			if err := tx.CompleteSession(ctx, session.ID, completedAt, adjustmentID); err != nil {
				return err
			}
			session.Status = SessionCompleted
			session.CompletedAt = &completedAt
			session.AdjustmentID = adjustmentID
			result.Session = session
			return nil
		})
	})
	if err != nil {
		if claimed {
			_ = s.opts.Idempotency.Release(ctx, idempotencyModule, fmt.Sprintf("%d:%s", bankAccountID, idempotencyKey))
		}
		return CompleteResult{}, err
	}

	meta := map[string]any{
		"bank_account_id": bankAccountID,
		"book_balance":    result.BookBalance.StringFixed(2),
		"difference":      result.Difference.StringFixed(2),
	}
	if result.Adjustment != nil {
		meta["adjustment_id"] = result.Adjustment.ID
	}
	s.recordAudit(ctx, actor, "RECON_COMPLETE", result.Session.ID, meta)
	s.invalidateReports(ctx, companyID)
	return result, nil
}

// Overview lists the company's bank accounts and, for the selected bank
// account, the worklist of its active session or all open items.
func (s *Service) Overview(ctx context.Context, companyID, bankAccountID int64) (Overview, error) {
	accounts, err := s.repo.ListBankAccounts(ctx, companyID)
	if err != nil {
		return Overview{}, err
	}
	out := Overview{BankAccounts: accounts, ReconciliationItems: []Item{}}
	if bankAccountID == 0 {
		return out, nil
	}
	bank, err := s.repo.BankAccount(ctx, bankAccountID)
	if err != nil {
		return Overview{}, err
	}
	if companyID != 0 && bank.CompanyID != companyID {
		return Overview{}, shared.NotFound("BankAccountNotFound", "bank account %d not found", bankAccountID)
	}
	session, active, err := s.repo.ActiveSession(ctx, bankAccountID)
	if err != nil {
		return Overview{}, err
	}

	var ledgerTxns []ledger.Transaction
	var bankTxns []ledger.BankTransaction
	if active {
		out.Session = &session
		if ledgerTxns, err = s.repo.LedgerTransactions(ctx, bank.LedgerAccountID, session.Range()); err != nil {
			return Overview{}, err
		}
		if bankTxns, err = s.repo.BankTransactions(ctx, bankAccountID, session.Range().Widen(s.matcher.cfg.DateWindowDays), false); err != nil {
			return Overview{}, err
		}
		if out.Matches, err = s.repo.ListMatches(ctx, session.ID); err != nil {
			return Overview{}, err
		}
	} else {
		if ledgerTxns, err = s.repo.OpenLedgerTransactions(ctx, bank.LedgerAccountID); err != nil {
			return Overview{}, err
		}
		if bankTxns, err = s.repo.BankTransactions(ctx, bankAccountID, allTime, true); err != nil {
			return Overview{}, err
		}
	}

	pendingBank := make(map[int64]bool)
	for _, m := range out.Matches {
		if m.Classification != ClassPending {
			continue
		}
		for _, id := range m.BankTransactionIDs {
			pendingBank[id] = true
		}
	}
	for _, t := range ledgerTxns {
		out.ReconciliationItems = append(out.ReconciliationItems, Item{
			Kind: ItemLedger, ID: t.ID, Date: t.Date, Amount: t.Amount, Description: t.Description, Status: string(t.Status),
		})
	}
	for _, b := range bankTxns {
		status := string(ledger.StatusUnmatched)
		switch {
		case b.Matched:
			status = string(ledger.StatusMatched)
		case pendingBank[b.ID]:
			status = string(ledger.StatusPending)
		}
		out.ReconciliationItems = append(out.ReconciliationItems, Item{
			Kind: ItemBank, ID: b.ID, Date: b.Date, Amount: b.Amount, Description: b.Description, Reference: b.Reference, Status: status,
		})
	}
	return out, nil
}

// AutoMatchOpenSessions retries auto-match for every in-progress session.
// Busy bank accounts are skipped.
func (s *Service) AutoMatchOpenSessions(ctx context.Context) (AutoMatchResult, error) {
	sessions, err := s.repo.ActiveSessions(ctx)
	if err != nil {
		return AutoMatchResult{}, err
	}
	var total AutoMatchResult
	for _, session := range sessions {
		res, err := s.AutoMatch(ctx, session.BankAccountID, shared.DateRange{})
		if err != nil {
			if errors.Is(err, ErrReconciliationBusy) || errors.Is(err, ErrSessionNotActive) {
				s.logger.Info("auto-match skipped", slog.Int64("bank_account_id", session.BankAccountID), slog.Any("error", err))
				continue
			}
			return total, fmt.Errorf("auto-match bank account %d: %w", session.BankAccountID, err)
		}
		total.MatchedCount += res.MatchedCount
		total.PendingCount += res.PendingCount
		total.UnmatchedCount += res.UnmatchedCount
	}
	return total, nil
}

// guarded runs fn under the per-bank-account lock and records the outcome.
func (s *Service) guarded(ctx context.Context, action string, bankAccountID int64, fn func(context.Context) error) error {
	err := s.lockAndRun(ctx, bankAccountID, fn)
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveReconAction(action, outcomeOf(err))
	}
	return err
}

func (s *Service) lockAndRun(ctx context.Context, bankAccountID int64, fn func(context.Context) error) error {
	if s.opts.Lock == nil {
		return fn(ctx)
	}
	release, err := s.opts.Lock.Acquire(ctx, shared.ReconciliationLockKey(bankAccountID))
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return shared.Conflict("ReconciliationBusy", "another reconciliation action is running for bank account %d", bankAccountID)
		}
		return err
	}
	defer release()
	return fn(ctx)
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if de, ok := shared.KindOf(err); ok {
		return de.Code
	}
	return "error"
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, entityID int64, meta map[string]any) {
	if s.opts.Audit == nil {
		return
	}
	err := s.opts.Audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "reconciliation",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.now().UTC(),
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

func onlyStatus(txns []ledger.Transaction, status ledger.ReconStatus) []ledger.Transaction {
	out := txns[:0:0]
	for _, t := range txns {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

func withoutBank(txns []ledger.BankTransaction, exclude []int64) []ledger.BankTransaction {
	if len(exclude) == 0 {
		return txns
	}
	skip := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	out := txns[:0:0]
	for _, b := range txns {
		if _, ok := skip[b.ID]; !ok {
			out = append(out, b)
		}
	}
	return out
}

func firstDuplicate(ids []int64) int64 {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id
		}
		seen[id] = struct{}{}
	}
	return 0
}
