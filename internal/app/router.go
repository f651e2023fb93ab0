package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/summitsafety/academy/internal/capacity"
	"github.com/summitsafety/academy/internal/catalog"
	"github.com/summitsafety/academy/internal/codes"
	"github.com/summitsafety/academy/internal/enrollment"
	"github.com/summitsafety/academy/internal/observability"
	"github.com/summitsafety/academy/internal/shared"
	"github.com/summitsafety/academy/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	CatalogHandler    *catalog.Handler
	CapacityHandler   *capacity.Handler
	EnrollmentHandler *enrollment.Handler
	CodesHandler      *codes.Handler
	WebhookHandler    *enrollment.WebhookHandler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Academy defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Public catalog: course list, course detail, aggregated schedule.
	if params.CatalogHandler != nil {
		params.CatalogHandler.MountRoutes(r)
	}
	if params.CapacityHandler != nil {
		r.Route("/sessions", params.CapacityHandler.MountRoutes)
	}

	// Authenticated student surface.
	if params.EnrollmentHandler != nil {
		r.Route("/enrollments", func(r chi.Router) {
			r.Use(shared.RequireUser)
			params.EnrollmentHandler.MountRoutes(r)
		})
	}
	if params.CodesHandler != nil {
		r.Route("/codes", func(r chi.Router) {
			r.Use(shared.RequireUser)
			params.CodesHandler.MountRoutes(r)
		})
	}

	// Payment processor callback: authenticated by signature, not identity.
	if params.WebhookHandler != nil {
		r.Route("/webhooks", params.WebhookHandler.MountRoutes)
	}

	// Back office.
	r.Route("/admin", func(r chi.Router) {
		r.Use(shared.RequireAdmin)
		if params.CapacityHandler != nil {
			params.CapacityHandler.MountAdminRoutes(r)
		}
		if params.EnrollmentHandler != nil {
			params.EnrollmentHandler.MountAdminRoutes(r)
		}
		if params.CodesHandler != nil {
			params.CodesHandler.MountAdminRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
