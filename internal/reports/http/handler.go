package reportshttp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/reports"
	"github.com/ledgerline/ledgerline/internal/reports/export"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Service builds financial statements.
type Service interface {
	BalanceSheet(ctx context.Context, companyID int64, asOf time.Time) (reports.BalanceSheetData, error)
	CashFlow(ctx context.Context, companyID int64, rng shared.DateRange) (reports.CashFlowData, error)
}

// Handler serves /api/accounting/reports.
type Handler struct {
	logger   *slog.Logger
	service  Service
	renderer *export.Renderer
}

// NewHandler constructs the reports handler. renderer may be nil when PDF
// export is not configured.
func NewHandler(logger *slog.Logger, service Service, renderer *export.Renderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, renderer: renderer}
}

// MountRoutes registers report endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounting/reports", func(r chi.Router) {
		r.Get("/balance-sheet", h.balanceSheet)
		r.Get("/cash-flow", h.cashFlow)
	})
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	companyID, format, err := h.common(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	asOf, err := shared.ParseDate(q.Get("endDate"))
	if err != nil {
		httpx.RespondError(w, h.logger, shared.Validation("endDate: %v", err))
		return
	}
	if start := strings.TrimSpace(q.Get("startDate")); start != "" {
		if _, err := shared.ParseDateRange(start, q.Get("endDate")); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	data, err := h.service.BalanceSheet(r.Context(), companyID, asOf)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	name := fmt.Sprintf("balance-sheet-%d-%s", companyID, asOf.Format(shared.DateLayout))
	switch format {
	case "csv":
		buf := &bytes.Buffer{}
		if err := export.WriteBalanceSheetCSV(buf, data); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		attachment(w, "text/csv", name+".csv", buf.Bytes())
	case "pdf":
		h.pdf(w, r, name, func(ctx context.Context) ([]byte, error) { return h.renderer.BalanceSheetPDF(ctx, data) })
	default:
		httpx.JSON(w, http.StatusOK, data)
	}
}

func (h *Handler) cashFlow(w http.ResponseWriter, r *http.Request) {
	companyID, format, err := h.common(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	rng, err := shared.ParseDateRange(r.URL.Query().Get("startDate"), r.URL.Query().Get("endDate"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	data, err := h.service.CashFlow(r.Context(), companyID, rng)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	name := fmt.Sprintf("cash-flow-%d-%s-%s", companyID, rng.Start.Format(shared.DateLayout), rng.End.Format(shared.DateLayout))
	switch format {
	case "csv":
		buf := &bytes.Buffer{}
		if err := export.WriteCashFlowCSV(buf, data); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		attachment(w, "text/csv", name+".csv", buf.Bytes())
	case "pdf":
		h.pdf(w, r, name, func(ctx context.Context) ([]byte, error) { return h.renderer.CashFlowPDF(ctx, data) })
	default:
		httpx.JSON(w, http.StatusOK, data)
	}
}

func (h *Handler) common(r *http.Request) (int64, string, error) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		return 0, "", err
	}
	if companyID == 0 {
		return 0, "", shared.Validation("companyId is required")
	}
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	switch format {
	case "", "json", "csv", "pdf":
	default:
		return 0, "", shared.Validation("format must be one of json, csv, pdf")
	}
	return companyID, format, nil
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request, name string, render func(context.Context) ([]byte, error)) {
	if !h.renderer.Ready() {
		httpx.JSON(w, http.StatusServiceUnavailable, httpx.ErrorBody{Error: "pdf export is not configured"})
		return
	}
	pdf, err := render(r.Context())
	if err != nil {
		h.logger.Error("render statement pdf", slog.String("name", name), slog.Any("error", err))
		httpx.JSON(w, http.StatusBadGateway, httpx.ErrorBody{Error: "failed to render pdf"})
		return
	}
	attachment(w, "application/pdf", name+".pdf", pdf)
}

func attachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
