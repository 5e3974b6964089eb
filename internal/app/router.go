package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/stores"
	"github.com/odyssey-erp/odyssey-ledger/internal/tenancy"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	Guard   tenancy.Middleware

	AccountingHandler  *accounting.Handler
	InventoryHandler   *inventory.Handler
	ProcurementHandler *procurement.Handler
	StoresHandler      *stores.Handler
	ApprovalHandler    *approval.Handler
	ReportsHandler     *reports.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with the API defaults. Tenant scoped
// endpoints live below /api/tenants/{tenantID}.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/tenants/{tenantID}", func(r chi.Router) {
		r.Use(params.Guard.Tenant)
		if params.AccountingHandler != nil {
			params.AccountingHandler.MountRoutes(r)
		}
		if params.InventoryHandler != nil {
			params.InventoryHandler.MountRoutes(r)
		}
		if params.ProcurementHandler != nil {
			params.ProcurementHandler.MountRoutes(r)
		}
		if params.StoresHandler != nil {
			params.StoresHandler.MountRoutes(r)
		}
		if params.ApprovalHandler != nil {
			params.ApprovalHandler.MountRoutes(r)
		}
		if params.ReportsHandler != nil {
			params.ReportsHandler.MountRoutes(r)
		}
	})

	return r
}

// Handlers builds the route params for every module of the container.
func (c *Container) Handlers() RouterParams {
	guard := c.Guard()
	return RouterParams{
		Logger:             c.Logger,
		Config:             c.Config,
		Metrics:            c.Metrics,
		Guard:              guard,
		AccountingHandler:  accounting.NewHandler(c.Logger, c.Ledger, c.Mappings, guard),
		InventoryHandler:   inventory.NewHandler(c.Logger, c.Inventory, guard),
		ProcurementHandler: procurement.NewHandler(c.Logger, c.Procurement, guard),
		StoresHandler:      stores.NewHandler(c.Logger, c.Stores, guard),
		ApprovalHandler:    approval.NewHandler(c.Logger, c.Approvals),
		ReportsHandler:     reports.NewHandler(c.Logger, c.Reports, guard),
	}
}
