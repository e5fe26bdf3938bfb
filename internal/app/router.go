package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/docledger/internal/audit"
	"github.com/odyssey-erp/docledger/internal/documents"
	"github.com/odyssey-erp/docledger/internal/inventory"
	"github.com/odyssey-erp/docledger/internal/loyalty"
	"github.com/odyssey-erp/docledger/internal/observability"
	"github.com/odyssey-erp/docledger/internal/payments"
	"github.com/odyssey-erp/docledger/internal/platform/httpx"
	"github.com/odyssey-erp/docledger/jobs"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker func(r *http.Request) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	DocumentsHandler *documents.Handler
	PaymentsHandler  *payments.Handler
	InventoryHandler *inventory.Handler
	LoyaltyHandler   *loyalty.Handler
	AuditHandler     *audit.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	Checks           map[string]HealthChecker
}

// NewRouter constructs the chi.Router with the docledger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", healthHandler(params.Logger, params.Checks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/health", params.JobHandler.Health)
			r.With(Tenant).Post("/stock-verify", params.JobHandler.StockVerify)
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(Tenant)
		r.Route("/documents", func(r chi.Router) {
			if params.DocumentsHandler != nil {
				params.DocumentsHandler.MountRoutes(r)
			}
			if params.PaymentsHandler != nil {
				params.PaymentsHandler.MountRoutes(r)
			}
		})
		if params.InventoryHandler != nil {
			r.Route("/stock", params.InventoryHandler.MountRoutes)
		}
		if params.LoyaltyHandler != nil {
			r.Route("/loyalty", params.LoyaltyHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
	})

	return r
}

func healthHandler(logger *slog.Logger, checks map[string]HealthChecker) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		result := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(r); err != nil {
				logger.Warn("health check failed", slog.String("check", name), slog.Any("error", err))
				result[name] = "unavailable"
				result["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			result[name] = "ok"
		}
		httpx.JSON(w, status, result)
	}
}
