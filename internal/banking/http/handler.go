package bankinghttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/banking"
	"github.com/ledgerline/ledgerline/internal/importer"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// maxStatementBytes caps uploaded statement files.
const maxStatementBytes = 5 << 20

// Service is the banking contract used by the handler.
type Service interface {
	Summary(ctx context.Context, companyID, bankAccountID int64) ([]banking.Summary, error)
	Adjust(ctx context.Context, in banking.AdjustInput) (banking.AdjustResult, error)
	ImportStatement(ctx context.Context, bankAccountID int64, lines []ledger.BankTransaction, closing *decimal.Decimal, actor string) (banking.ImportResult, error)
}

// Handler serves /api/banking.
type Handler struct {
	logger   *slog.Logger
	service  Service
	registry *importer.Registry
}

// NewHandler constructs the banking handler.
func NewHandler(logger *slog.Logger, service Service, registry *importer.Registry) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = importer.DefaultRegistry()
	}
	return &Handler{logger: logger, service: service, registry: registry}
}

// MountRoutes registers banking endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/banking", func(r chi.Router) {
		r.Get("/balance-check", h.balanceCheck)
		r.With(httpx.Limiter(30, time.Minute)).Post("/balance-check", h.adjust)
		r.With(httpx.Limiter(10, time.Minute)).Post("/statements", h.importStatement)
	})
}

func (h *Handler) balanceCheck(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	accountID, err := httpx.QueryInt64(r, "accountId")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if companyID == 0 && accountID == 0 {
		httpx.RespondError(w, h.logger, shared.Validation("companyId or accountId is required"))
		return
	}
	out, err := h.service.Summary(r.Context(), companyID, accountID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if out == nil {
		out = []banking.Summary{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": out})
}

type adjustRequest struct {
	AccountID     int64            `json:"accountId" validate:"required,gt=0"`
	TargetBalance *decimal.Decimal `json:"targetBalance" validate:"required"`
	Description   string           `json:"description" validate:"max=255"`
	Date          string           `json:"date,omitempty"`
	Preview       bool             `json:"preview,omitempty"`
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var date time.Time
	if strings.TrimSpace(req.Date) != "" {
		var err error
		if date, err = shared.ParseDate(req.Date); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	res, err := h.service.Adjust(r.Context(), banking.AdjustInput{
		BankAccountID: req.AccountID,
		TargetBalance: *req.TargetBalance,
		Description:   req.Description,
		Date:          date,
		Preview:       req.Preview,
		Actor:         httpx.Actor(r),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	status := http.StatusOK
	if res.Adjustment != nil {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, res)
}

// importStatement accepts a raw CSV body: ?accountId=&format=chase|generic
// with an optional closingBalance.
func (h *Handler) importStatement(w http.ResponseWriter, r *http.Request) {
	accountID, err := httpx.QueryInt64(r, "accountId")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if accountID == 0 {
		httpx.RespondError(w, h.logger, shared.Validation("accountId is required"))
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "generic"
	}
	parser := h.registry.Get(format)
	if parser == nil {
		httpx.RespondError(w, h.logger, shared.Validation("unknown statement format %q (supported: %s)", format, strings.Join(h.registry.Formats(), ", ")))
		return
	}
	var closing *decimal.Decimal
	if raw := strings.TrimSpace(r.URL.Query().Get("closingBalance")); raw != "" {
		v, err := shared.ParseAmount(raw)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		closing = &v
	}
	lines, err := parser.Parse(http.MaxBytesReader(w, r.Body, maxStatementBytes))
	if err != nil {
		httpx.RespondError(w, h.logger, shared.Validation("%v", err))
		return
	}
	res, err := h.service.ImportStatement(r.Context(), accountID, lines, closing, httpx.Actor(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
