package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ledgerline/ledgerline/internal/jobs"
	"github.com/ledgerline/ledgerline/internal/reconciliation"
)

// AutoMatcher runs auto-match across every open session.
type AutoMatcher interface {
	AutoMatchOpenSessions(ctx context.Context) (reconciliation.AutoMatchResult, error)
}

// ReconAutoMatchJob is the scheduled counterpart of the auto-match action.
type ReconAutoMatchJob struct {
	Matcher AutoMatcher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconAutoMatchJob initialises the auto-match handler.
func NewReconAutoMatchJob(matcher AutoMatcher, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconAutoMatchJob {
	return &ReconAutoMatchJob{Matcher: matcher, Logger: logger, Metrics: metrics}
}

// Handle executes one auto-match sweep.
func (j *ReconAutoMatchJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Matcher == nil {
		return errors.New("recon auto-match: handler not configured")
	}
	tracker := j.metrics().Track(TaskReconAutoMatch)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	logger := j.logger()
	logger.Info("starting auto-match sweep")
	res, err := j.Matcher.AutoMatchOpenSessions(ctx)
	if err != nil {
		logger.Error("auto-match sweep failed", slog.Any("error", err))
		return err
	}
	j.metrics().AddAutoMatched("matched", res.MatchedCount)
	j.metrics().AddAutoMatched("pending", res.PendingCount)
	j.metrics().AddAutoMatched("unmatched", res.UnmatchedCount)
	logger.Info("completed auto-match sweep",
		slog.Int("matched", res.MatchedCount),
		slog.Int("pending", res.PendingCount),
		slog.Int("unmatched", res.UnmatchedCount),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ReconAutoMatchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReconAutoMatch))
	}
	return slog.Default().With(slog.String("job", TaskReconAutoMatch))
}

func (j *ReconAutoMatchJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
