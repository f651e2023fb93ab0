package enrollment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/summitsafety/academy/internal/shared"
)

// SignatureHeader carries the processor's HMAC over the raw request body.
const SignatureHeader = "X-Payment-Signature"

// handled event types; everything else is acknowledged and ignored.
const eventCheckoutCompleted = "checkout.completed"

// WebhookVerifier checks payment callback signatures before any field of the
// payload is trusted.
type WebhookVerifier struct {
	secret []byte
}

// NewWebhookVerifier returns a verifier using the shared processor secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// Verify compares the hex-encoded HMAC-SHA256 of body against the supplied
// signature in constant time.
func (v *WebhookVerifier) Verify(body []byte, signature string) error {
	if signature == "" {
		return shared.ErrWebhookSignature
	}
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return shared.ErrWebhookSignature
	}
	return nil
}

// Sign produces the signature for a body; used by tests and the seeder.
func (v *WebhookVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// MetricsRejectPort counts rejected callbacks.
type MetricsRejectPort interface {
	WebhookReject()
}

// WebhookHandler terminates the payment processor callback.
type WebhookHandler struct {
	logger   *slog.Logger
	service  *Service
	verifier *WebhookVerifier
	metrics  MetricsRejectPort
}

// NewWebhookHandler builds WebhookHandler instance.
func NewWebhookHandler(logger *slog.Logger, service *Service, verifier *WebhookVerifier, metrics MetricsRejectPort) *WebhookHandler {
	return &WebhookHandler{logger: logger, service: service, verifier: verifier, metrics: metrics}
}

// MountRoutes registers the webhook endpoint.
func (h *WebhookHandler) MountRoutes(r chi.Router) {
	r.Post("/payment", h.handlePayment)
}

type webhookPayload struct {
	EventType        string `json:"event_type"`
	PaymentReference string `json:"payment_reference"`
	CustomerEmail    string `json:"customer_email"`
	Metadata         struct {
		UserID    string `json:"user_id"`
		CourseID  string `json:"course_id"`
		SessionID string `json:"session_id"`
		SeatCount int    `json:"seat_count"`
	} `json:"metadata"`
}

func (h *WebhookHandler) handlePayment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		shared.RespondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := h.verifier.Verify(body, r.Header.Get(SignatureHeader)); err != nil {
		// Security event: no state was touched and the processor must not
		// retry with the same bad signature.
		h.metrics.WebhookReject()
		h.logger.Warn("payment webhook rejected",
			slog.String("remote", r.RemoteAddr),
			slog.String("reason", "signature mismatch"))
		shared.RespondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		shared.RespondError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	if payload.EventType != eventCheckoutCompleted {
		// Unknown events are acknowledged so the processor stops resending.
		shared.RespondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	_, err = h.service.ConfirmPayment(r.Context(), PaymentEvent{
		EventType:        payload.EventType,
		UserID:           payload.Metadata.UserID,
		CourseID:         payload.Metadata.CourseID,
		SessionID:        payload.Metadata.SessionID,
		Seats:            payload.Metadata.SeatCount,
		PaymentReference: payload.PaymentReference,
		CustomerEmail:    payload.CustomerEmail,
	})
	if errors.Is(err, ErrPaymentInFlight) {
		// A concurrent delivery is applying this reference; redelivering
		// would only race it again.
		shared.RespondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
		return
	}
	if err != nil {
		// Non-2xx makes the processor redeliver; the idempotency key keeps
		// that safe.
		h.logger.Error("confirm payment", slog.Any("error", err), slog.String("payment_reference", payload.PaymentReference))
		shared.RespondError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	shared.RespondJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
