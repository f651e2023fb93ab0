package codes

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/summitsafety/academy/internal/catalog"
	"github.com/summitsafety/academy/internal/shared"
)

// Handler manages access code endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers the student-facing redemption route. The caller wraps
// it in RequireUser.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/redeem", h.redeem)
}

// MountAdminRoutes registers code pool management.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/companies/{id}/codes", h.generate)
	r.Get("/companies/{id}/codes", h.list)
	r.Post("/codes/{code}/revoke", h.revoke)
}

type codeResponse struct {
	Code       string     `json:"code"`
	CompanyID  string     `json:"company_id"`
	CourseID   string     `json:"course_id"`
	Status     Status     `json:"status"`
	RedeemedBy string     `json:"redeemed_by,omitempty"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toCodeResponse(code AccessCode) codeResponse {
	return codeResponse{
		Code:       code.Code,
		CompanyID:  code.CompanyID,
		CourseID:   code.CourseID,
		Status:     code.Status,
		RedeemedBy: code.RedeemedBy,
		RedeemedAt: code.RedeemedAt,
		CreatedAt:  code.CreatedAt,
	}
}

type redeemRequest struct {
	Code  string `json:"code" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

func (h *Handler) redeem(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		shared.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req redeemRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.RedeemCode(r.Context(), req.Code, identity.UserID, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, ErrCodeNotFound):
			shared.RespondError(w, http.StatusNotFound, "Code not found")
		case errors.Is(err, ErrCodeAlreadyRedeemed):
			shared.RespondError(w, http.StatusConflict, "Code has already been redeemed")
		case errors.Is(err, ErrCodeRevoked):
			shared.RespondError(w, http.StatusGone, "Code has been revoked")
		default:
			h.logger.Error("redeem code", slog.Any("error", err), slog.String("user_id", identity.UserID))
			shared.RespondError(w, http.StatusInternalServerError, shared.UserSafeMessage(err))
		}
		return
	}

	shared.RespondJSON(w, http.StatusOK, map[string]string{
		"company_id": result.CompanyID,
		"course_id":  result.CourseID,
	})
}

type generateRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1,lte=50"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "id")
	var req generateRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	generated, err := h.service.GenerateCodes(r.Context(), companyID, req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidQuantity):
			shared.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, catalog.ErrCompanyNotFound):
			shared.RespondError(w, http.StatusNotFound, "Company not found")
		default:
			h.logger.Error("generate codes", slog.Any("error", err), slog.String("company_id", companyID))
			shared.RespondError(w, http.StatusInternalServerError, shared.UserSafeMessage(err))
		}
		return
	}

	out := make([]codeResponse, 0, len(generated))
	for _, code := range generated {
		out = append(out, toCodeResponse(code))
	}
	shared.RespondJSON(w, http.StatusCreated, out)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "id")
	listed, err := h.service.ListByCompany(r.Context(), companyID)
	if err != nil {
		h.logger.Error("list codes", slog.Any("error", err), slog.String("company_id", companyID))
		shared.RespondError(w, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	out := make([]codeResponse, 0, len(listed))
	for _, code := range listed {
		out = append(out, toCodeResponse(code))
	}
	shared.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.service.RevokeCode(r.Context(), code); err != nil {
		switch {
		case errors.Is(err, ErrCodeNotFound):
			shared.RespondError(w, http.StatusNotFound, "Code not found")
		case errors.Is(err, ErrCodeAlreadyRedeemed):
			shared.RespondError(w, http.StatusConflict, "Code has already been redeemed")
		default:
			h.logger.Error("revoke code", slog.Any("error", err), slog.String("code", code))
			shared.RespondError(w, http.StatusInternalServerError, shared.UserSafeMessage(err))
		}
		return
	}
	shared.RespondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
