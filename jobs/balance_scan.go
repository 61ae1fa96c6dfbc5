package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ledgerline/ledgerline/internal/banking"
	jobmetrics "github.com/ledgerline/ledgerline/internal/jobs"
)

// DiscrepancyFinder lists bank accounts out of balance beyond tolerance.
type DiscrepancyFinder interface {
	Discrepancies(ctx context.Context) ([]banking.Summary, error)
}

// CompanyLister enumerates companies with bank accounts so clean companies
// reset their gauge.
type CompanyLister interface {
	CompanyIDs(ctx context.Context) ([]int64, error)
}

// BalanceScanJob logs and exports every book/bank discrepancy.
type BalanceScanJob struct {
	Finder    DiscrepancyFinder
	Companies CompanyLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewBalanceScanJob initialises the balance scan handler. companies may be nil.
func NewBalanceScanJob(finder DiscrepancyFinder, companies CompanyLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *BalanceScanJob {
	return &BalanceScanJob{Finder: finder, Companies: companies, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *BalanceScanJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Finder == nil {
		return errors.New("balance scan: handler not configured")
	}
	tracker := j.metrics().Track(TaskBankingBalanceScan)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	logger := j.logger()
	found, err := j.Finder.Discrepancies(ctx)
	if err != nil {
		logger.Error("balance scan failed", slog.Any("error", err))
		return err
	}

	perCompany := make(map[int64]int)
	if j.Companies != nil {
		ids, err := j.Companies.CompanyIDs(ctx)
		if err != nil {
			logger.Warn("list companies", slog.Any("error", err))
		}
		for _, id := range ids {
			perCompany[id] = 0
		}
	}
	for _, d := range found {
		perCompany[d.CompanyID]++
		logger.Warn("bank balance discrepancy",
			slog.Int64("company_id", d.CompanyID),
			slog.Int64("bank_account_id", d.BankAccountID),
			slog.String("bank_balance", d.BankBalance.StringFixed(2)),
			slog.String("book_balance", d.BookBalance.StringFixed(2)),
			slog.String("difference", d.Difference.StringFixed(2)),
			slog.Int("unmatched_ledger", d.UnmatchedLedger),
			slog.Int("unmatched_bank", d.UnmatchedBank),
		)
	}
	for companyID, count := range perCompany {
		j.metrics().SetDiscrepancies(companyID, count)
	}
	logger.Info("completed balance scan",
		slog.Int("discrepancies", len(found)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *BalanceScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBankingBalanceScan))
	}
	return slog.Default().With(slog.String("job", TaskBankingBalanceScan))
}

func (j *BalanceScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
