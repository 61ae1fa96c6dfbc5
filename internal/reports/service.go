package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// LedgerPort is the subset of ledger.Reader used to build statements.
type LedgerPort interface {
	Balances(ctx context.Context, companyID int64, asOf time.Time) ([]ledger.AccountBalance, error)
	Movements(ctx context.Context, companyID int64, rng shared.DateRange) ([]ledger.AccountBalance, error)
}

// Service builds statements, deduplicating concurrent builds and caching
// results per company.
type Service struct {
	ledger LedgerPort
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService wires the report service. cache may be nil.
func NewService(ledger LedgerPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, cache: cache, logger: logger}
}

// BalanceSheet returns the balance sheet as of asOf.
func (s *Service) BalanceSheet(ctx context.Context, companyID int64, asOf time.Time) (BalanceSheetData, error) {
	if companyID <= 0 {
		return BalanceSheetData{}, shared.Validation("companyId is required")
	}
	asOf = shared.Day(asOf)
	var out BalanceSheetData
	err := s.cached(ctx, companyID, &out, func(ctx context.Context) (any, error) {
		balances, err := s.ledger.Balances(ctx, companyID, asOf)
		if err != nil {
			return nil, fmt.Errorf("load balances: %w", err)
		}
		return BuildBalanceSheet(companyID, asOf, balances), nil
	}, "balance-sheet", asOf.Format(shared.DateLayout))
	return out, err
}

// CashFlow returns the cash flow statement for rng.
func (s *Service) CashFlow(ctx context.Context, companyID int64, rng shared.DateRange) (CashFlowData, error) {
	if companyID <= 0 {
		return CashFlowData{}, shared.Validation("companyId is required")
	}
	var out CashFlowData
	err := s.cached(ctx, companyID, &out, func(ctx context.Context) (any, error) {
		var opening, closing, movements []ledger.AccountBalance
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			opening, err = s.ledger.Balances(gctx, companyID, rng.Start.AddDate(0, 0, -1))
			return err
		})
		g.Go(func() error {
			var err error
			closing, err = s.ledger.Balances(gctx, companyID, rng.End)
			return err
		})
		g.Go(func() error {
			var err error
			movements, err = s.ledger.Movements(gctx, companyID, rng)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("load cash flow inputs: %w", err)
		}
		return BuildCashFlow(companyID, rng, opening, closing, movements), nil
	}, "cash-flow", rng.Start.Format(shared.DateLayout), rng.End.Format(shared.DateLayout))
	return out, err
}

// Invalidate drops cached statements for the company.
func (s *Service) Invalidate(ctx context.Context, companyID int64) error {
	return s.cache.Invalidate(ctx, companyID)
}

func (s *Service) cached(ctx context.Context, companyID int64, dest any, build func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.BuildKey(ctx, companyID, parts...)
	if err != nil {
		// A cache outage degrades to a direct build.
		s.logger.Warn("report cache unavailable", slog.Int64("company_id", companyID), slog.Any("error", err))
		value, buildErr := build(ctx)
		if buildErr != nil {
			return buildErr
		}
		return roundTrip(value, dest)
	}
	res := s.group.DoChan(key, func() (any, error) {
		var raw any
		err := s.cache.FetchJSON(ctx, key, &raw, build)
		if err != nil {
			return nil, err
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return r.Err
		}
		return roundTrip(r.Val, dest)
	}
}
