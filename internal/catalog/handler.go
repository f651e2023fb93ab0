package catalog

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/summitsafety/academy/internal/shared"
)

// Handler manages catalog endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/courses", h.listCourses)
	r.Get("/courses/{slug}", h.getCourse)
	r.Get("/schedule", h.schedule)
}

func (h *Handler) listCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.service.ListCourses(r.Context())
	if err != nil {
		h.logger.Error("list courses", slog.Any("error", err))
		shared.RespondError(w, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	out := make([]map[string]any, 0, len(courses))
	for _, c := range courses {
		out = append(out, map[string]any{
			"id":    c.ID,
			"slug":  c.Slug,
			"title": c.Title,
			"price": c.Price,
		})
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) getCourse(w http.ResponseWriter, r *http.Request) {
	course, err := h.service.GetCourseBySlug(r.Context(), chi.URLParam(r, "slug"))
	if errors.Is(err, ErrCourseNotFound) {
		shared.RespondError(w, http.StatusNotFound, "Course not found")
		return
	}
	if err != nil {
		h.logger.Error("get course", slog.Any("error", err))
		shared.RespondError(w, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]any{
		"id":    course.ID,
		"slug":  course.Slug,
		"title": course.Title,
		"price": course.Price,
	})
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Schedule(r.Context())
	if err != nil {
		h.logger.Error("load schedule", slog.Any("error", err))
		shared.RespondError(w, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	shared.RespondJSON(w, http.StatusOK, entries)
}
