package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ledgerline/ledgerline/internal/banking"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/observability"
	"github.com/ledgerline/ledgerline/internal/platform/cache"
	"github.com/ledgerline/ledgerline/internal/reconciliation"
	"github.com/ledgerline/ledgerline/internal/reports"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Services holds the domain services shared by the API, the worker and the
// CLI.
type Services struct {
	Ledger         *ledger.Reader
	Reconciliation *reconciliation.Service
	Reports        *reports.Service
	ReportCache    *reports.Cache
	Banking        *banking.Service
	Idempotency    *shared.IdempotencyStore
}

// BuildServices wires repositories and services against Postgres and Redis.
// redisClient may be nil, which disables caching and cross-process locks.
func BuildServices(cfg *Config, logger *slog.Logger, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics) (*Services, error) {
	matchCfg, err := cfg.MatchConfig()
	if err != nil {
		return nil, err
	}

	reader := ledger.NewReader(ledger.NewQueries(pool))
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportService := reports.NewService(reader, reportCache, logger)

	audit := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	var locker *cache.Locker
	if redisClient != nil {
		locker = cache.NewLocker(redisClient, cfg.ReconLockTTL)
	}

	reconOpts := reconciliation.Options{
		Audit:                audit,
		Idempotency:          idempotency,
		Reports:              reportService,
		Logger:               logger,
		DiscrepancyAccountID: cfg.ReconDiscrepancyAccountID,
	}
	bankingOpts := banking.Options{
		Audit:     audit,
		Reports:   reportService,
		Logger:    logger,
		Tolerance: matchCfg.AmountTolerance,
	}
	// Typed nils must not leak into the interface fields.
	if locker != nil {
		reconOpts.Lock = locker
		bankingOpts.Lock = locker
	}
	if metrics != nil {
		reconOpts.Metrics = metrics
	}

	return &Services{
		Ledger:         reader,
		Reconciliation: reconciliation.NewService(reconciliation.NewRepository(pool), reconciliation.NewMatcher(matchCfg), reconOpts),
		Reports:        reportService,
		ReportCache:    reportCache,
		Banking:        banking.NewService(banking.NewRepository(pool), bankingOpts),
		Idempotency:    idempotency,
	}, nil
}
