package enrollment

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/summitsafety/academy/internal/access"
	"github.com/summitsafety/academy/internal/capacity"
	"github.com/summitsafety/academy/internal/shared"
)

// Handler manages enrollment endpoints for students and operations.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers student-facing enrollment routes. The caller wraps
// them in RequireUser.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.register)
	r.Get("/me", h.listMine)
}

// MountAdminRoutes registers the operations view of paid-but-seatless
// enrollments.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/enrollments/seat-pending", h.listSeatPending)
}

type registerRequest struct {
	CourseID  string `json:"course_id" validate:"required"`
	SessionID string `json:"session_id"`
	Seats     int    `json:"seats" validate:"gte=0,lte=10"`
	Email     string `json:"email" validate:"omitempty,email"`
}

type recordResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CourseID    string    `json:"course_id"`
	SessionID   string    `json:"session_id,omitempty"`
	Source      Source    `json:"source"`
	SeatPending bool      `json:"seat_pending"`
	CreatedAt   time.Time `json:"created_at"`
}

func toRecordResponse(rec Record) recordResponse {
	return recordResponse{
		ID:          rec.ID,
		UserID:      rec.UserID,
		CourseID:    rec.CourseID,
		SessionID:   rec.SessionID,
		Source:      rec.Source,
		SeatPending: rec.SeatPending,
		CreatedAt:   rec.CreatedAt,
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		shared.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req registerRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.service.RegisterDirect(r.Context(), DirectInput{
		UserID:    identity.UserID,
		CourseID:  req.CourseID,
		SessionID: req.SessionID,
		Seats:     req.Seats,
		Email:     req.Email,
	})
	if err != nil {
		var capErr *capacity.CapacityError
		if errors.As(err, &capErr) {
			shared.RespondJSON(w, http.StatusConflict, map[string]any{
				"error":           "session is full",
				"seats_remaining": capErr.Remaining,
			})
			return
		}
		if errors.Is(err, capacity.ErrSessionNotFound) {
			shared.RespondError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("register enrollment", slog.Any("error", err), slog.String("user_id", identity.UserID))
		shared.RespondError(w, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	shared.RespondJSON(w, http.StatusCreated, toRecordResponse(*rec))
}

type enrollmentViewResponse struct {
	recordResponse
	Live       bool   `json:"live"`
	NextWindow string `json:"next_window,omitempty"`
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		shared.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	views, err := h.service.ListForUser(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("list enrollments", slog.Any("error", err), slog.String("user_id", identity.UserID))
		shared.RespondError(w, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}

	now := time.Now()
	out := make([]enrollmentViewResponse, 0, len(views))
	for _, view := range views {
		resp := enrollmentViewResponse{recordResponse: toRecordResponse(view.Record)}
		if view.Session != nil {
			decision := access.Evaluate(*view.Session, now)
			resp.Live = decision.Live
			resp.NextWindow = decision.NextWindow
		}
		out = append(out, resp)
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) listSeatPending(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListSeatPending(r.Context())
	if err != nil {
		h.logger.Error("list seat-pending enrollments", slog.Any("error", err))
		shared.RespondError(w, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	shared.RespondJSON(w, http.StatusOK, out)
}
