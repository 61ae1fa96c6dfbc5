package reportshttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/reports"
	"github.com/ledgerline/ledgerline/internal/reports/export"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type stubService struct {
	balanceSheetFn func(ctx context.Context, companyID int64, asOf time.Time) (reports.BalanceSheetData, error)
	cashFlowFn     func(ctx context.Context, companyID int64, rng shared.DateRange) (reports.CashFlowData, error)
}

func (s *stubService) BalanceSheet(ctx context.Context, companyID int64, asOf time.Time) (reports.BalanceSheetData, error) {
	return s.balanceSheetFn(ctx, companyID, asOf)
}

func (s *stubService) CashFlow(ctx context.Context, companyID int64, rng shared.DateRange) (reports.CashFlowData, error) {
	return s.cashFlowFn(ctx, companyID, rng)
}

type fakePDF struct{}

func (fakePDF) RenderHTML(context.Context, string) ([]byte, error) { return []byte("%PDF-fake"), nil }

func get(t *testing.T, h *Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api", h.MountRoutes)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func sheetService(t *testing.T) *stubService {
	return &stubService{balanceSheetFn: func(_ context.Context, companyID int64, asOf time.Time) (reports.BalanceSheetData, error) {
		assert.Equal(t, int64(5), companyID)
		assert.Equal(t, "2025-01-31", asOf.Format(shared.DateLayout))
		return reports.BalanceSheetData{
			CompanyID:   companyID,
			AsOf:        asOf,
			TotalAssets: decimal.RequireFromString("100000"),
			Imbalance:   decimal.RequireFromString("5"),
		}, nil
	}}
}

func TestBalanceSheetJSON(t *testing.T) {
	rr := get(t, NewHandler(nil, sheetService(t), nil), "/api/accounting/reports/balance-sheet?companyId=5&startDate=2025-01-01&endDate=2025-01-31", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "100000", body["totalAssets"], "amounts travel as strings")
	assert.Equal(t, false, body["balanced"])
}

func TestBalanceSheetCSVUsesHeaderCompany(t *testing.T) {
	rr := get(t, NewHandler(nil, sheetService(t), nil), "/api/accounting/reports/balance-sheet?endDate=2025-01-31&format=csv",
		map[string]string{"X-Company-ID": "5"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "balance-sheet-5-2025-01-31.csv")
	assert.Contains(t, rr.Body.String(), "Imbalance,5.00")
}

func TestBalanceSheetPDF(t *testing.T) {
	renderer, err := export.NewRenderer(fakePDF{})
	require.NoError(t, err)
	rr := get(t, NewHandler(nil, sheetService(t), renderer), "/api/accounting/reports/balance-sheet?companyId=5&endDate=2025-01-31&format=pdf", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-fake", rr.Body.String())

	rr = get(t, NewHandler(nil, sheetService(t), nil), "/api/accounting/reports/balance-sheet?companyId=5&endDate=2025-01-31&format=pdf", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestReportValidation(t *testing.T) {
	h := NewHandler(nil, &stubService{}, nil)
	cases := map[string]string{
		"missing company":  "/api/accounting/reports/balance-sheet?endDate=2025-01-31",
		"missing end":      "/api/accounting/reports/balance-sheet?companyId=1",
		"inverted range":   "/api/accounting/reports/cash-flow?companyId=1&startDate=2025-02-01&endDate=2025-01-01",
		"bad format":       "/api/accounting/reports/cash-flow?companyId=1&startDate=2025-01-01&endDate=2025-01-31&format=xlsx",
		"malformed header": "/api/accounting/reports/cash-flow?startDate=2025-01-01&endDate=2025-01-31",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			headers := map[string]string{}
			if name == "malformed header" {
				headers["X-Company-ID"] = "acme"
			}
			rr := get(t, h, target, headers)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			var body httpx.ErrorBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, shared.KindValidation, body.Kind)
		})
	}
}

func TestCashFlowPassesRange(t *testing.T) {
	svc := &stubService{cashFlowFn: func(_ context.Context, companyID int64, rng shared.DateRange) (reports.CashFlowData, error) {
		assert.Equal(t, "2025-01-01", rng.Start.Format(shared.DateLayout))
		assert.Equal(t, "2025-03-31", rng.End.Format(shared.DateLayout))
		return reports.CashFlowData{CompanyID: companyID, Reconciles: true}, nil
	}}
	rr := get(t, NewHandler(nil, svc, nil), "/api/accounting/reports/cash-flow?companyId=2&startDate=2025-01-01&endDate=2025-03-31", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"reconciles":true`)
}
