package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/tenancy"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   tenancy.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, guard tenancy.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(tenancy.CapCategories))
		r.Get("/categories", h.listCategories)
		r.Post("/categories", h.createCategory)
		r.Delete("/categories/{id}", h.deleteCategory)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(tenancy.CapInventory))
		r.Get("/items", h.listItems)
		r.Post("/items", h.createItem)
		r.Get("/items/reorder", h.listReorder)
		r.Get("/items/{id}", h.getItem)
		r.Patch("/items/{id}", h.updateItem)
		r.Delete("/items/{id}", h.deleteItem)
		r.Get("/items/{id}/ledger", h.itemLedger)
		r.Get("/stock-ledger", h.listLedger)
		r.Post("/stock-adjustments", h.postAdjustment)
	})
}

type categoryRequest struct {
	Name     string `json:"name" validate:"required"`
	ParentID *int64 `json:"parent_id"`
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	cats, err := h.service.ListCategories(r.Context(), scope.TenantID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cats)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req categoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	cat, err := h.service.CreateCategory(r.Context(), scope.TenantID, req.Name, req.ParentID, scope.Actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, cat)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteCategory(r.Context(), scope.TenantID, id, scope.Actor.UserID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	filter := ItemFilter{ActiveOnly: r.URL.Query().Get("active") == "true"}
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		if filter.CategoryID, err = httpx.ParseID(raw); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	items, err := h.service.ListItems(r.Context(), scope.TenantID, filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) listReorder(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	items, err := h.service.ListReorderCandidates(r.Context(), scope.TenantID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var input ItemInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input.ActorID = scope.Actor.UserID
	item, err := h.service.CreateItem(r.Context(), scope.TenantID, input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
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
	item, err := h.service.GetItem(r.Context(), scope.TenantID, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
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
	var patch ItemPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	patch.ActorID = scope.Actor.UserID
	item, err := h.service.UpdateItem(r.Context(), scope.TenantID, id, patch)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteItem(r.Context(), scope.TenantID, id, scope.Actor.UserID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) itemLedger(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.respondLedger(w, r, id)
}

func (h *Handler) listLedger(w http.ResponseWriter, r *http.Request) {
	var itemID int64
	if raw := r.URL.Query().Get("item_id"); raw != "" {
		id, err := httpx.ParseID(raw)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		itemID = id
	}
	h.respondLedger(w, r, itemID)
}

func (h *Handler) respondLedger(w http.ResponseWriter, r *http.Request, itemID int64) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	filter := LedgerFilter{ItemID: itemID, DocType: DocType(q.Get("doc_type"))}
	if filter.From, err = httpx.ParseDate(q.Get("from"), false); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if filter.To, err = httpx.ParseDate(q.Get("to"), true); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	rows, err := h.service.ListLedger(r.Context(), scope.TenantID, filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var input AdjustmentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input.ActorID = scope.Actor.UserID
	row, err := h.service.PostAdjustment(r.Context(), scope.TenantID, input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, row)
}
