package capacity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/summitsafety/academy/internal/shared"
)

// ScheduleInvalidator drops cached schedule views after a scheduling change.
// The catalog service satisfies it.
type ScheduleInvalidator interface {
	InvalidateSchedule(ctx context.Context) error
}

// Handler manages session scheduling endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	schedule  ScheduleInvalidator
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, schedule ScheduleInvalidator) *Handler {
	return &Handler{logger: logger, service: service, schedule: schedule, validator: validator.New()}
}

// invalidateSchedule bumps the cached schedule version after an admin
// mutation. A failed bump is logged only; the view self-heals on TTL.
func (h *Handler) invalidateSchedule(ctx context.Context) {
	if h.schedule == nil {
		return
	}
	if err := h.schedule.InvalidateSchedule(ctx); err != nil {
		h.logger.Warn("invalidate schedule cache", slog.Any("error", err))
	}
}

// MountRoutes registers session routes. Admin-only mutations live under the
// caller's /admin subtree; the read endpoints are public.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listSessions)
	r.Get("/{id}", h.getSession)
}

// MountAdminRoutes registers scheduling mutations.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/sessions", h.createSession)
	r.Post("/sessions/{id}/cancel", h.cancelSession)
	r.Post("/sessions/{id}/release", h.releaseSeats)
}

type createSessionRequest struct {
	CourseID string    `json:"course_id" validate:"required"`
	StartAt  time.Time `json:"start_at" validate:"required"`
	EndAt    time.Time `json:"end_at" validate:"required"`
	Timezone string    `json:"timezone"`
	Capacity int       `json:"capacity" validate:"required,gte=1"`
}

type sessionResponse struct {
	ID             string    `json:"id"`
	CourseID       string    `json:"course_id"`
	StartAt        time.Time `json:"start_at"`
	EndAt          time.Time `json:"end_at"`
	Timezone       string    `json:"timezone"`
	Capacity       int       `json:"capacity"`
	EnrolledCount  int       `json:"enrolled_count"`
	SeatsRemaining int       `json:"seats_remaining"`
	Status         string    `json:"status"`
}

func toSessionResponse(sess Session, now time.Time) sessionResponse {
	return sessionResponse{
		ID:             sess.ID,
		CourseID:       sess.CourseID,
		StartAt:        sess.StartAt,
		EndAt:          sess.EndAt,
		Timezone:       sess.Timezone,
		Capacity:       sess.Capacity,
		EnrolledCount:  sess.EnrolledCount,
		SeatsRemaining: sess.SeatsRemaining(),
		Status:         string(sess.Status(now)),
	}
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListUpcoming(r.Context())
	if err != nil {
		h.logger.Error("list sessions", slog.Any("error", err))
		shared.RespondError(w, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	now := time.Now()
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionResponse(sess, now))
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.GetSession(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrSessionNotFound) {
		shared.RespondError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		h.logger.Error("get session", slog.Any("error", err))
		shared.RespondError(w, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	shared.RespondJSON(w, http.StatusOK, toSessionResponse(*sess, time.Now()))
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.service.CreateSession(r.Context(), CreateSessionInput{
		CourseID: req.CourseID,
		StartAt:  req.StartAt,
		EndAt:    req.EndAt,
		Timezone: req.Timezone,
		Capacity: req.Capacity,
	})
	if err != nil {
		h.logger.Error("create session", slog.Any("error", err))
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.invalidateSchedule(r.Context())
	shared.RespondJSON(w, http.StatusCreated, toSessionResponse(*sess, time.Now()))
}

func (h *Handler) cancelSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.CancelSession(r.Context(), id); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			shared.RespondError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("cancel session", slog.Any("error", err), slog.String("session_id", id))
		shared.RespondError(w, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	h.invalidateSchedule(r.Context())
	shared.RespondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type releaseSeatsRequest struct {
	Seats int `json:"seats" validate:"required,gte=1"`
}

func (h *Handler) releaseSeats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req releaseSeatsRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	newTotal, err := h.service.ReleaseSeats(r.Context(), id, req.Seats)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			shared.RespondError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("release seats", slog.Any("error", err), slog.String("session_id", id))
		shared.RespondError(w, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	h.invalidateSchedule(r.Context())
	shared.RespondJSON(w, http.StatusOK, map[string]int{"enrolled_count": newTotal})
}
