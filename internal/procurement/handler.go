package procurement

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/tenancy"
)

// Handler exposes procurement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   tenancy.Middleware
}

// NewHandler builds procurement handler.
func NewHandler(logger *slog.Logger, service *Service, guard tenancy.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(tenancy.CapProcurement))
		r.Get("/suppliers", h.listSuppliers)
		r.Post("/suppliers", h.createSupplier)
		r.Get("/suppliers/{id}", h.getSupplier)
		r.Get("/purchase-orders", h.listPOs)
		r.Post("/purchase-orders", h.createPO)
		r.Get("/purchase-orders/{id}", h.getPO)
		r.Post("/purchase-orders/{id}/submit", h.submitPO)
		r.Post("/purchase-orders/{id}/cancel", h.cancelPO)
		r.Get("/grns", h.listGRNs)
		r.Post("/grns", h.createGRN)
		r.Get("/grns/{id}", h.getGRN)
	})
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	suppliers, err := h.service.ListSuppliers(r.Context(), scope.TenantID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, suppliers)
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var input SupplierInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input.ActorID = scope.Actor.UserID
	sup, err := h.service.CreateSupplier(r.Context(), scope.TenantID, input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sup)
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	sup, err := h.service.GetSupplier(r.Context(), scope.TenantID, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sup)
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	filter := POFilter{Status: approval.Status(strings.ToUpper(r.URL.Query().Get("status")))}
	if raw := r.URL.Query().Get("supplier_id"); raw != "" {
		if filter.SupplierID, err = httpx.ParseID(raw); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	pos, err := h.service.ListPurchaseOrders(r.Context(), scope.TenantID, filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pos)
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var input POInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input.ActorID = scope.Actor.UserID
	po, err := h.service.CreatePurchaseOrder(r.Context(), scope.TenantID, input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), scope.TenantID, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) submitPO(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.SubmitPurchaseOrder)
}

func (h *Handler) cancelPO(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CancelPurchaseOrder)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, tenantID, id, actorID int64) (PurchaseOrder, error)) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	po, err := apply(r.Context(), scope.TenantID, id, scope.Actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) listGRNs(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	var filter GRNFilter
	if raw := q.Get("po_id"); raw != "" {
		if filter.POID, err = httpx.ParseID(raw); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	if filter.From, err = httpx.ParseDate(q.Get("from"), false); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if filter.To, err = httpx.ParseDate(q.Get("to"), true); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	grns, err := h.service.ListGRNs(r.Context(), scope.TenantID, filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grns)
}

func (h *Handler) createGRN(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var input GRNInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input.ActorID = scope.Actor.UserID
	input.IdempotencyKey = r.Header.Get("Idempotency-Key")
	grn, err := h.service.CreateGRN(r.Context(), scope.TenantID, input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grn)
}

func (h *Handler) getGRN(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	grn, err := h.service.GetGRN(r.Context(), scope.TenantID, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}
