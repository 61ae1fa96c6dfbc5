package bankinghttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/banking"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type stubService struct {
	summaryFn func(ctx context.Context, companyID, bankAccountID int64) ([]banking.Summary, error)
	adjustFn  func(ctx context.Context, in banking.AdjustInput) (banking.AdjustResult, error)
	importFn  func(ctx context.Context, bankAccountID int64, lines []ledger.BankTransaction, closing *decimal.Decimal, actor string) (banking.ImportResult, error)
}

func (s *stubService) Summary(ctx context.Context, companyID, bankAccountID int64) ([]banking.Summary, error) {
	return s.summaryFn(ctx, companyID, bankAccountID)
}

func (s *stubService) Adjust(ctx context.Context, in banking.AdjustInput) (banking.AdjustResult, error) {
	return s.adjustFn(ctx, in)
}

func (s *stubService) ImportStatement(ctx context.Context, bankAccountID int64, lines []ledger.BankTransaction, closing *decimal.Decimal, actor string) (banking.ImportResult, error) {
	return s.importFn(ctx, bankAccountID, lines, closing, actor)
}

func serve(svc Service, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/api", NewHandler(nil, svc, nil).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestBalanceCheckSummary(t *testing.T) {
	svc := &stubService{summaryFn: func(_ context.Context, companyID, bankAccountID int64) ([]banking.Summary, error) {
		assert.Equal(t, int64(0), companyID)
		assert.Equal(t, int64(4), bankAccountID)
		return []banking.Summary{{BankAccountID: 4, Difference: decimal.RequireFromString("12.5")}}, nil
	}}
	rr := serve(svc, httptest.NewRequest(http.MethodGet, "/api/banking/balance-check?accountId=4", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"difference":"12.5"`)

	rr = serve(svc, httptest.NewRequest(http.MethodGet, "/api/banking/balance-check", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdjustPreviewAndPost(t *testing.T) {
	svc := &stubService{adjustFn: func(_ context.Context, in banking.AdjustInput) (banking.AdjustResult, error) {
		assert.Equal(t, int64(2), in.BankAccountID)
		assert.Equal(t, "2025-01-31", in.Date.Format(shared.DateLayout))
		assert.Equal(t, "ops", in.Actor)
		res := banking.AdjustResult{Preview: in.Preview, Required: true}
		if !in.Preview {
			res.Adjustment = &ledger.Adjustment{ID: 3}
		}
		return res, nil
	}}
	body := `{"accountId":2,"targetBalance":"1500.00","description":"bank fee","date":"2025-01-31","preview":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/banking/balance-check", strings.NewReader(body))
	req.Header.Set("X-Actor", "ops")
	rr := serve(svc, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"preview":true`)

	body = strings.Replace(body, `"preview":true`, `"preview":false`, 1)
	req = httptest.NewRequest(http.MethodPost, "/api/banking/balance-check", strings.NewReader(body))
	req.Header.Set("X-Actor", "ops")
	rr = serve(svc, req)
	require.Equal(t, http.StatusCreated, rr.Code)
}

func TestAdjustValidation(t *testing.T) {
	cases := map[string]string{
		"missing target": `{"accountId":2}`,
		"missing id":     `{"targetBalance":"1"}`,
		"bad date":       `{"accountId":2,"targetBalance":"1","date":"31/01/2025"}`,
		"unknown field":  `{"accountId":2,"targetBalance":"1","force":true}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := serve(&stubService{}, httptest.NewRequest(http.MethodPost, "/api/banking/balance-check", strings.NewReader(body)))
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			var e httpx.ErrorBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e))
			assert.Equal(t, shared.KindValidation, e.Kind)
		})
	}
}

func TestImportStatement(t *testing.T) {
	svc := &stubService{importFn: func(_ context.Context, id int64, lines []ledger.BankTransaction, closing *decimal.Decimal, _ string) (banking.ImportResult, error) {
		assert.Equal(t, int64(1), id)
		require.Len(t, lines, 2)
		require.NotNil(t, closing)
		assert.Equal(t, "380", closing.String())
		return banking.ImportResult{BankAccountID: id, Inserted: 2}, nil
	}}
	csv := "date,description,amount,reference\n2025-01-05,Deposit,500.00,D1\n2025-01-11,Fee,-120.00,F1\n"
	rr := serve(svc, httptest.NewRequest(http.MethodPost, "/api/banking/statements?accountId=1&closingBalance=380", strings.NewReader(csv)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"inserted":2`)

	rr = serve(svc, httptest.NewRequest(http.MethodPost, "/api/banking/statements?accountId=1&format=ofx", strings.NewReader(csv)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "chase, generic")

	rr = serve(svc, httptest.NewRequest(http.MethodPost, "/api/banking/statements?accountId=1", strings.NewReader("date,amount\n")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
