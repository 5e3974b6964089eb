package accounting

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/tenancy"
)

// Handler wires ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	mappings mappings.Repository
	guard    tenancy.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, maps mappings.Repository, guard tenancy.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mappings: maps, guard: guard}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(tenancy.CapTransactions))
		r.Get("/journal-entries", h.listEntries)
		r.Post("/journal-entries", h.createEntry)
		r.Get("/journal-entries/{id}", h.getEntry)
		r.Patch("/journal-entries/{id}", h.updateEntry)
		r.Delete("/journal-entries/{id}", h.deleteEntry)
		r.Post("/journal-entries/{id}/reverse", h.reverseEntry)
		r.Get("/accounts/{id}/balance", h.accountBalance)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(tenancy.CapSettings))
		r.Get("/accounts", h.listAccounts)
		r.Post("/accounts", h.createAccount)
		r.Patch("/accounts/{id}", h.updateAccount)
		r.Delete("/accounts/{id}", h.deleteAccount)
		r.Put("/account-mappings/{module}/{key}", h.upsertMapping)
		r.Get("/account-mappings/{module}/{key}", h.getMapping)
	})
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	filter := EntryFilter{DocumentType: DocumentType(strings.ToUpper(q.Get("document_type")))}
	if raw := q.Get("account_id"); raw != "" {
		if filter.AccountID, err = httpx.ParseID(raw); err != nil {
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
	entries, err := h.service.ListEntries(r.Context(), scope.TenantID, filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var input EntryInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	input.CreatedBy = scope.Actor.UserID
	entry, err := h.service.CreateEntry(r.Context(), scope.TenantID, input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
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
	entry, err := h.service.GetEntry(r.Context(), scope.TenantID, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) updateEntry(w http.ResponseWriter, r *http.Request) {
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
	var patch EntryPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	patch.ActorID = scope.Actor.UserID
	entry, err := h.service.UpdateEntry(r.Context(), scope.TenantID, id, patch)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteEntry(r.Context(), scope.TenantID, id, scope.Actor.UserID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reverseRequest struct {
	Date time.Time `json:"date"`
}

func (h *Handler) reverseEntry(w http.ResponseWriter, r *http.Request) {
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
	var req reverseRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	entry, err := h.service.ReverseEntry(r.Context(), scope.TenantID, id, scope.Actor.UserID, req.Date)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
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
	bal, err := h.service.AccountBalance(r.Context(), scope.TenantID, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bal)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), scope.TenantID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

type accountRequest struct {
	Code           string `json:"code" validate:"omitempty,max=32"`
	Name           string `json:"name" validate:"required,max=120"`
	Type           string `json:"type" validate:"required"`
	Subtype        string `json:"subtype"`
	DepartmentCode string `json:"department_code"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	typ, _ := ParseAccountType(req.Type)
	acc, err := h.service.CreateAccount(r.Context(), scope.TenantID, AccountInput{
		Code:           req.Code,
		Name:           req.Name,
		Type:           typ,
		Subtype:        req.Subtype,
		DepartmentCode: req.DepartmentCode,
		ActorID:        scope.Actor.UserID,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, acc)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
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
	var patch AccountPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	patch.ActorID = scope.Actor.UserID
	acc, err := h.service.UpdateAccount(r.Context(), scope.TenantID, id, patch)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteAccount(r.Context(), scope.TenantID, id, scope.Actor.UserID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mappingRequest struct {
	AccountID int64 `json:"account_id" validate:"required,gt=0"`
}

func (h *Handler) upsertMapping(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req mappingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if _, err := h.service.AccountBalance(r.Context(), scope.TenantID, req.AccountID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	m := mappings.AccountMapping{
		TenantID:  scope.TenantID,
		Module:    chi.URLParam(r, "module"),
		Key:       chi.URLParam(r, "key"),
		AccountID: req.AccountID,
	}
	if err := h.mappings.Upsert(r.Context(), m); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) getMapping(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	m, err := h.mappings.Get(r.Context(), scope.TenantID, chi.URLParam(r, "module"), chi.URLParam(r, "key"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}
