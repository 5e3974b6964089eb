package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/tenancy"
)

// Handler exposes report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   tenancy.Middleware
}

// NewHandler builds the report handler.
func NewHandler(logger *slog.Logger, service *Service, guard tenancy.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(tenancy.CapReports))
		r.Get("/reports/trial-balance", h.trialBalance)
		r.Get("/reports/income-statement", h.incomeStatement)
		r.Get("/reports/balance-sheet", h.balanceSheet)
		r.Get("/reports/cash-flow", h.cashFlow)
		r.Get("/reports/stock-balances", h.stockBalances)
	})
}

func (h *Handler) dateRange(r *http.Request) (from, to *time.Time, err error) {
	q := r.URL.Query()
	if from, err = httpx.ParseDate(q.Get("from"), false); err != nil {
		return nil, nil, err
	}
	if to, err = httpx.ParseDate(q.Get("to"), true); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	from, to, err := h.dateRange(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), scope.TenantID, from, to)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) incomeStatement(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	from, to, err := h.dateRange(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	is, err := h.service.IncomeStatement(r.Context(), scope.TenantID, from, to)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, is)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	asOf, err := httpx.ParseDate(r.URL.Query().Get("as_of"), true)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var at time.Time
	if asOf != nil {
		at = *asOf
	}
	bs, err := h.service.BalanceSheet(r.Context(), scope.TenantID, at)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bs)
}

func (h *Handler) cashFlow(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	from, to, err := h.dateRange(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	cf, err := h.service.CashFlow(r.Context(), scope.TenantID, from, to)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cf)
}

func parseCost(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, shared.Validation(shared.CodeInvalidCostBounds, "reports: invalid cost bound")
	}
	return &d, nil
}

func (h *Handler) stockBalances(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	filter := StockFilter{IncludeZero: q.Get("include_zero") == "true"}
	if filter.From, filter.To, err = h.dateRange(r); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if filter.MinCost, err = parseCost(q.Get("min_cost")); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if filter.MaxCost, err = parseCost(q.Get("max_cost")); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if raw := q.Get("category_id"); raw != "" {
		if filter.CategoryID, err = httpx.ParseID(raw); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	report, err := h.service.StockBalances(r.Context(), scope.TenantID, filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
