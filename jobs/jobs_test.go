package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/banking"
	jobmetrics "github.com/ledgerline/ledgerline/internal/jobs"
	"github.com/ledgerline/ledgerline/internal/reconciliation"
)

type matcherFunc func(ctx context.Context) (reconciliation.AutoMatchResult, error)

func (f matcherFunc) AutoMatchOpenSessions(ctx context.Context) (reconciliation.AutoMatchResult, error) {
	return f(ctx)
}

type finderFunc func(ctx context.Context) ([]banking.Summary, error)

func (f finderFunc) Discrepancies(ctx context.Context) ([]banking.Summary, error) { return f(ctx) }

type companies []int64

func (c companies) CompanyIDs(context.Context) ([]int64, error) { return c, nil }

func TestReconAutoMatchJob(t *testing.T) {
	calls := 0
	job := NewReconAutoMatchJob(matcherFunc(func(context.Context) (reconciliation.AutoMatchResult, error) {
		calls++
		return reconciliation.AutoMatchResult{MatchedCount: 3, PendingCount: 1}, nil
	}), nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskReconAutoMatch, nil)))
	assert.Equal(t, 1, calls)
}

func TestReconAutoMatchJobPropagatesFailure(t *testing.T) {
	boom := errors.New("pg down")
	job := NewReconAutoMatchJob(matcherFunc(func(context.Context) (reconciliation.AutoMatchResult, error) {
		return reconciliation.AutoMatchResult{}, boom
	}), nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	assert.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskReconAutoMatch, nil)), boom)

	var unset *ReconAutoMatchJob
	assert.Error(t, unset.Handle(context.Background(), nil))
}

func TestBalanceScanJob(t *testing.T) {
	found := []banking.Summary{
		{CompanyID: 7, BankAccountID: 1, Difference: decimal.NewFromInt(20)},
		{CompanyID: 7, BankAccountID: 2, Difference: decimal.NewFromInt(-5)},
	}
	job := NewBalanceScanJob(finderFunc(func(context.Context) ([]banking.Summary, error) {
		return found, nil
	}), companies{7, 8}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskBankingBalanceScan, nil)))
}

func TestNewTaskRejectsUnknownType(t *testing.T) {
	task, err := NewTask(TaskBankingBalanceScan)
	require.NoError(t, err)
	assert.Equal(t, TaskBankingBalanceScan, task.Type())

	_, err = NewTask("mail:send")
	var unknown *UnknownTaskError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "mail:send", unknown.Type)
}

func TestDefaultCronCoversEveryTask(t *testing.T) {
	seen := map[string]string{}
	for _, c := range DefaultCron() {
		seen[c.Task.Type()] = c.Spec
	}
	assert.Equal(t, map[string]string{
		TaskReconAutoMatch:     ReconAutoMatchCron,
		TaskBankingBalanceScan: BankingBalanceScanCron,
		TaskIdempotencyCleanup: IdempotencyCleanupCron,
	}, seen)
}

type cleanerFunc func(ctx context.Context, olderThan time.Duration) error

func (f cleanerFunc) Cleanup(ctx context.Context, olderThan time.Duration) error {
	return f(ctx, olderThan)
}

func TestIdempotencyCleanupJob(t *testing.T) {
	var got time.Duration
	job := NewIdempotencyCleanupJob(cleanerFunc(func(_ context.Context, olderThan time.Duration) error {
		got = olderThan
		return nil
	}), nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, IdempotencyRetention, got)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func serveHealth(h *Handler) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	rr := serveHealth(NewHandler(nil, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0,"failed":0,"scheduled":0}`, rr.Body.String())

	rr = serveHealth(NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 4, Archived: 1}}, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":4,"active":0,"retry":0,"failed":1,"scheduled":0}`, rr.Body.String())

	rr = serveHealth(NewHandler(stubInspector{err: errors.New("redis down")}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
