package reconhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/reconciliation"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type stubService struct {
	overviewFn  func(ctx context.Context, companyID, bankAccountID int64) (reconciliation.Overview, error)
	startFn     func(ctx context.Context, in reconciliation.StartInput) (reconciliation.Session, error)
	matchFn     func(ctx context.Context, in reconciliation.ManualMatchInput) (reconciliation.Match, error)
	autoMatchFn func(ctx context.Context, bankAccountID int64, rng shared.DateRange) (reconciliation.AutoMatchResult, error)
	proposeFn   func(ctx context.Context, bankAccountID int64, rng shared.DateRange) (reconciliation.Proposal, error)
	unmatchFn   func(ctx context.Context, bankAccountID, matchID int64, actor string) error
	completeFn  func(ctx context.Context, bankAccountID int64, key, actor string) (reconciliation.CompleteResult, error)
}

func (s *stubService) Overview(ctx context.Context, companyID, bankAccountID int64) (reconciliation.Overview, error) {
	return s.overviewFn(ctx, companyID, bankAccountID)
}

func (s *stubService) Start(ctx context.Context, in reconciliation.StartInput) (reconciliation.Session, error) {
	return s.startFn(ctx, in)
}

func (s *stubService) ManualMatch(ctx context.Context, in reconciliation.ManualMatchInput) (reconciliation.Match, error) {
	return s.matchFn(ctx, in)
}

func (s *stubService) AutoMatch(ctx context.Context, bankAccountID int64, rng shared.DateRange) (reconciliation.AutoMatchResult, error) {
	return s.autoMatchFn(ctx, bankAccountID, rng)
}

func (s *stubService) Propose(ctx context.Context, bankAccountID int64, rng shared.DateRange) (reconciliation.Proposal, error) {
	return s.proposeFn(ctx, bankAccountID, rng)
}

func (s *stubService) Unmatch(ctx context.Context, bankAccountID, matchID int64, actor string) error {
	return s.unmatchFn(ctx, bankAccountID, matchID, actor)
}

func (s *stubService) Complete(ctx context.Context, bankAccountID int64, key, actor string) (reconciliation.CompleteResult, error) {
	return s.completeFn(ctx, bankAccountID, key, actor)
}

func newRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", NewHandler(nil, svc).MountRoutes)
	return r
}

func post(t *testing.T, h http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/accounting/reconciliation", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) httpx.ErrorBody {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestStartCreatesSession(t *testing.T) {
	var captured reconciliation.StartInput
	svc := &stubService{startFn: func(_ context.Context, in reconciliation.StartInput) (reconciliation.Session, error) {
		captured = in
		return reconciliation.Session{ID: 9, BankAccountID: in.BankAccountID, Status: reconciliation.SessionInProgress}, nil
	}}
	rr := post(t, newRouter(svc), `{"action":"start","bankAccountId":3,"startDate":"2025-01-01","endDate":"2025-01-31","statementBalance":"1234.56"}`,
		map[string]string{"X-Actor": "alice"})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, int64(3), captured.BankAccountID)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), captured.Range.End)
	assert.True(t, captured.StatementBalance.Equal(decimal.RequireFromString("1234.56")))
	assert.Equal(t, "alice", captured.Actor)
	assert.Contains(t, rr.Body.String(), `"status":"IN_PROGRESS"`)
}

func TestActionRejectsMalformedPayloads(t *testing.T) {
	h := newRouter(&stubService{})
	cases := map[string]string{
		"unknown field":     `{"action":"start","bankAccountId":1,"bogus":true}`,
		"unknown action":    `{"action":"approve","bankAccountId":1}`,
		"missing bank":      `{"action":"complete"}`,
		"bad date":          `{"action":"start","bankAccountId":1,"startDate":"01/01/2025","endDate":"2025-01-31","statementBalance":"1"}`,
		"missing statement": `{"action":"start","bankAccountId":1,"startDate":"2025-01-01","endDate":"2025-01-31"}`,
		"float garbage":     `{"action":"start","bankAccountId":1,"startDate":"2025-01-01","endDate":"2025-01-31","statementBalance":"1,5"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := post(t, h, body, nil)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Equal(t, shared.KindValidation, decodeError(t, rr).Kind)
		})
	}
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	svc := &stubService{
		startFn: func(context.Context, reconciliation.StartInput) (reconciliation.Session, error) {
			return reconciliation.Session{}, shared.Conflict("SessionAlreadyActive", "bank account 1 already has a reconciliation session in progress")
		},
		completeFn: func(_ context.Context, _ int64, key, _ string) (reconciliation.CompleteResult, error) {
			assert.Equal(t, "abc-123", key)
			e := shared.Precondition("UnreconciledItemsRemain", "2 unmatched ledger transactions remain")
			e.Count = 2
			return reconciliation.CompleteResult{}, e
		},
		matchFn: func(context.Context, reconciliation.ManualMatchInput) (reconciliation.Match, error) {
			return reconciliation.Match{}, shared.ToleranceExceeded("AmountMismatch", "ledger total differs")
		},
		autoMatchFn: func(context.Context, int64, shared.DateRange) (reconciliation.AutoMatchResult, error) {
			return reconciliation.AutoMatchResult{}, ledger.ErrBankAccountNotFound
		},
	}
	h := newRouter(svc)

	rr := post(t, h, `{"action":"start","bankAccountId":1,"startDate":"2025-01-01","endDate":"2025-01-31","statementBalance":0}`, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, shared.KindConflict, body.Kind)
	assert.Equal(t, "SessionAlreadyActive", body.Code)

	rr = post(t, h, `{"action":"complete","bankAccountId":1}`, map[string]string{shared.IdempotencyHeader: "abc-123"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body = decodeError(t, rr)
	assert.Equal(t, shared.KindPrecondition, body.Kind)
	assert.Equal(t, 2, body.Count)

	rr = post(t, h, `{"action":"match","bankAccountId":1,"ledgerTransactionIds":[1],"bankTransactionIds":[2]}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, shared.KindToleranceExceeded, decodeError(t, rr).Kind)

	rr = post(t, h, `{"action":"auto-match","bankAccountId":1}`, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, shared.KindNotFound, decodeError(t, rr).Kind)
}

func TestAutoMatchReturnsCounts(t *testing.T) {
	svc := &stubService{autoMatchFn: func(_ context.Context, id int64, rng shared.DateRange) (reconciliation.AutoMatchResult, error) {
		assert.Equal(t, int64(4), id)
		assert.True(t, rng.Start.IsZero())
		return reconciliation.AutoMatchResult{MatchedCount: 2}, nil
	}}
	rr := post(t, newRouter(svc), `{"action":"auto-match","bankAccountId":4}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"matchedCount":2,"pendingCount":0,"unmatchedCount":0}`, rr.Body.String())
}

func TestOverviewReadsCompanyHeader(t *testing.T) {
	svc := &stubService{overviewFn: func(_ context.Context, companyID, bankAccountID int64) (reconciliation.Overview, error) {
		assert.Equal(t, int64(7), companyID)
		assert.Equal(t, int64(2), bankAccountID)
		return reconciliation.Overview{BankAccounts: []ledger.BankAccount{{ID: 2, Name: "Checking"}}, ReconciliationItems: []reconciliation.Item{}}, nil
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/accounting/reconciliation?bankAccountId=2", nil)
	req.Header.Set("X-Company-ID", "7")
	rr := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"bankAccounts"`)
	assert.Contains(t, rr.Body.String(), `"reconciliationItems":[]`)

	req = httptest.NewRequest(http.MethodGet, "/api/accounting/reconciliation", nil)
	rr = httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
