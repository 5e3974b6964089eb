package stores

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/tenancy"
)

// Handler exposes stores endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   tenancy.Middleware
}

// NewHandler builds stores handler.
func NewHandler(logger *slog.Logger, service *Service, guard tenancy.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers stores routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(tenancy.CapStores))
		r.Get("/departments", h.listDepartments)
		r.Post("/departments", h.createDepartment)
		r.Get("/departments/costs", h.departmentCosts)
		r.Get("/requisitions", h.listRequisitions)
		r.Post("/requisitions", h.createRequisition)
		r.Get("/requisitions/{id}", h.getRequisition)
		r.Post("/requisitions/{id}/submit", h.submitRequisition)
		r.Get("/issues", h.listIssues)
		r.Post("/issues", h.createIssue)
		r.Get("/issues/{id}", h.getIssue)
		r.Post("/issues/{id}/submit", h.submitIssue)
		r.Get("/allocations", h.listAllocations)
	})
}

func (h *Handler) listDepartments(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	depts, err := h.service.ListDepartments(r.Context(), scope.TenantID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, depts)
}

func (h *Handler) createDepartment(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var input DepartmentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input.ActorID = scope.Actor.UserID
	dept, err := h.service.CreateDepartment(r.Context(), scope.TenantID, input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, dept)
}

func (h *Handler) departmentCosts(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	from, err := httpx.ParseDate(q.Get("from"), false)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	to, err := httpx.ParseDate(q.Get("to"), true)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	costs, err := h.service.DepartmentCosts(r.Context(), scope.TenantID, from, to)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, costs)
}

func parseDocFilter(q url.Values) (DocFilter, error) {
	filter := DocFilter{Status: approval.Status(strings.ToUpper(q.Get("status")))}
	var err error
	if raw := q.Get("department_id"); raw != "" {
		if filter.DepartmentID, err = httpx.ParseID(raw); err != nil {
			return DocFilter{}, err
		}
	}
	if filter.From, err = httpx.ParseDate(q.Get("from"), false); err != nil {
		return DocFilter{}, err
	}
	if filter.To, err = httpx.ParseDate(q.Get("to"), true); err != nil {
		return DocFilter{}, err
	}
	return filter, nil
}

func (h *Handler) listRequisitions(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	filter, err := parseDocFilter(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	reqs, err := h.service.ListRequisitions(r.Context(), scope.TenantID, filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reqs)
}

func (h *Handler) createRequisition(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var input RequisitionInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input.ActorID = scope.Actor.UserID
	req, err := h.service.CreateRequisition(r.Context(), scope.TenantID, input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) getRequisition(w http.ResponseWriter, r *http.Request) {
	h.fetch(w, r, func(ctx context.Context, tenantID, id int64) (any, error) {
		return h.service.GetRequisition(ctx, tenantID, id)
	})
}

func (h *Handler) submitRequisition(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(ctx context.Context, tenantID, id, actorID int64) (any, error) {
		return h.service.SubmitRequisition(ctx, tenantID, id, actorID)
	})
}

func (h *Handler) listIssues(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	filter, err := parseDocFilter(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	issues, err := h.service.ListIssues(r.Context(), scope.TenantID, filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, issues)
}

func (h *Handler) createIssue(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var input IssueInput
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
	issue, err := h.service.CreateIssue(r.Context(), scope.TenantID, input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, issue)
}

func (h *Handler) getIssue(w http.ResponseWriter, r *http.Request) {
	h.fetch(w, r, func(ctx context.Context, tenantID, id int64) (any, error) {
		return h.service.GetIssue(ctx, tenantID, id)
	})
}

func (h *Handler) submitIssue(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(ctx context.Context, tenantID, id, actorID int64) (any, error) {
		return h.service.SubmitIssue(ctx, tenantID, id, actorID)
	})
}

func (h *Handler) listAllocations(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	var filter AllocationFilter
	if raw := q.Get("department_id"); raw != "" {
		if filter.DepartmentID, err = httpx.ParseID(raw); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	if raw := q.Get("item_id"); raw != "" {
		if filter.ItemID, err = httpx.ParseID(raw); err != nil {
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
	allocs, err := h.service.ListAllocations(r.Context(), scope.TenantID, filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, allocs)
}

func (h *Handler) fetch(w http.ResponseWriter, r *http.Request, get func(ctx context.Context, tenantID, id int64) (any, error)) {
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
	doc, err := get(r.Context(), scope.TenantID, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, tenantID, id, actorID int64) (any, error)) {
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
	doc, err := apply(r.Context(), scope.TenantID, id, scope.Actor.UserID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}
