package reconhttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/reconciliation"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Service is the reconciliation contract used by the handler.
type Service interface {
	Overview(ctx context.Context, companyID, bankAccountID int64) (reconciliation.Overview, error)
	Start(ctx context.Context, in reconciliation.StartInput) (reconciliation.Session, error)
	ManualMatch(ctx context.Context, in reconciliation.ManualMatchInput) (reconciliation.Match, error)
	AutoMatch(ctx context.Context, bankAccountID int64, rng shared.DateRange) (reconciliation.AutoMatchResult, error)
	Propose(ctx context.Context, bankAccountID int64, rng shared.DateRange) (reconciliation.Proposal, error)
	Unmatch(ctx context.Context, bankAccountID, matchID int64, actor string) error
	Complete(ctx context.Context, bankAccountID int64, idempotencyKey, actor string) (reconciliation.CompleteResult, error)
}

// Handler serves /api/accounting/reconciliation.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler constructs the reconciliation HTTP handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reconciliation endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounting/reconciliation", h.overview)
	r.With(httpx.Limiter(60, time.Minute)).Post("/accounting/reconciliation", h.action)
}

type actionRequest struct {
	Action               string           `json:"action" validate:"required,oneof=start match auto-match complete propose unmatch"`
	BankAccountID        int64            `json:"bankAccountId" validate:"required,gt=0"`
	StartDate            string           `json:"startDate,omitempty"`
	EndDate              string           `json:"endDate,omitempty"`
	StatementBalance     *decimal.Decimal `json:"statementBalance,omitempty"`
	LedgerTransactionIDs []int64          `json:"ledgerTransactionIds,omitempty" validate:"omitempty,dive,gt=0"`
	BankTransactionIDs   []int64          `json:"bankTransactionIds,omitempty" validate:"omitempty,dive,gt=0"`
	Override             bool             `json:"override,omitempty"`
	NoCounterpart        bool             `json:"noCounterpart,omitempty"`
	MatchID              int64            `json:"matchId,omitempty"`
}

type proposeResponse struct {
	Proposal reconciliation.Proposal        `json:"proposal"`
	Counts   reconciliation.AutoMatchResult `json:"counts"`
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.CompanyID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	bankAccountID, err := httpx.QueryInt64(r, "bankAccountId")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if companyID == 0 && bankAccountID == 0 {
		httpx.RespondError(w, h.logger, shared.Validation("companyId or bankAccountId is required"))
		return
	}
	out, err := h.service.Overview(r.Context(), companyID, bankAccountID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	rng, err := httpx.OptionalRange(req.StartDate, req.EndDate)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	ctx := r.Context()
	actor := httpx.Actor(r)

	switch req.Action {
	case "start":
		if rng.Start.IsZero() {
			httpx.RespondError(w, h.logger, shared.Validation("startDate and endDate are required"))
			return
		}
		if req.StatementBalance == nil {
			httpx.RespondError(w, h.logger, shared.Validation("statementBalance is required"))
			return
		}
		session, err := h.service.Start(ctx, reconciliation.StartInput{
			BankAccountID:    req.BankAccountID,
			Range:            rng,
			StatementBalance: *req.StatementBalance,
			Actor:            actor,
		})
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, map[string]any{"session": session})
	case "match":
		match, err := h.service.ManualMatch(ctx, reconciliation.ManualMatchInput{
			BankAccountID: req.BankAccountID,
			LedgerTxnIDs:  req.LedgerTransactionIDs,
			BankTxnIDs:    req.BankTransactionIDs,
			Override:      req.Override,
			NoCounterpart: req.NoCounterpart,
			Actor:         actor,
		})
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"match": match})
	case "auto-match":
		res, err := h.service.AutoMatch(ctx, req.BankAccountID, rng)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, res)
	case "propose":
		proposal, err := h.service.Propose(ctx, req.BankAccountID, rng)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, proposeResponse{Proposal: proposal, Counts: proposal.Counts()})
	case "unmatch":
		if err := h.service.Unmatch(ctx, req.BankAccountID, req.MatchID, actor); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"unmatched": req.MatchID})
	case "complete":
		res, err := h.service.Complete(ctx, req.BankAccountID, r.Header.Get(shared.IdempotencyHeader), actor)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, res)
	}
}
