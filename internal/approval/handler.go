package approval

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes approval endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers approval routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/approvals/{kind}/{id}", h.decide)
	r.Get("/approvals/{kind}/{id}", h.history)
}

type decisionRequest struct {
	Status  Decision `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Remarks string   `json:"remarks"`
}

func (h *Handler) target(r *http.Request) (Kind, int64, error) {
	kind, ok := ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		return "", 0, fmt.Errorf("%w: invalid document type %q", httpx.ErrBadRequest, chi.URLParam(r, "kind"))
	}
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	return kind, id, err
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	kind, id, err := h.target(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req decisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, h.logger, ErrInvalidDecision)
		return
	}
	res, err := h.service.Decide(r.Context(), scope.TenantID, kind, id, scope.Actor, req.Status, req.Remarks)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.ScopeFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	kind, id, err := h.target(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	records, err := h.service.History(r.Context(), scope.TenantID, kind, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, records)
}
