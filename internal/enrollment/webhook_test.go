package enrollment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

const webhookTestSecret = "whsec_test"

func newWebhookServer(t *testing.T) (*httptest.Server, *fixture, *fakeMetrics) {
	t.Helper()
	f := newFixture(t, 25, 0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := NewWebhookVerifier(webhookTestSecret)
	handler := NewWebhookHandler(logger, f.service, verifier, f.metrics)

	r := chi.NewRouter()
	r.Route("/webhooks", handler.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, f, f.metrics
}

func postWebhook(t *testing.T, url string, body []byte, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/webhooks/payment", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func checkoutBody(f *fixture, reference string) []byte {
	return []byte(fmt.Sprintf(`{
		"event_type": "checkout.completed",
		"payment_reference": %q,
		"customer_email": "student@example.com",
		"metadata": {
			"user_id": "user-1",
			"course_id": %q,
			"session_id": %q,
			"seat_count": 1
		}
	}`, reference, f.courseID, f.sessionID))
}

func TestWebhookProcessesSignedPayload(t *testing.T) {
	srv, f, _ := newWebhookServer(t)
	verifier := NewWebhookVerifier(webhookTestSecret)
	body := checkoutBody(f, "pi_http_001")

	resp := postWebhook(t, srv.URL, body, verifier.Sign(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, f.repo.count())
	require.Equal(t, 1, f.ledger.enrolled())
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	srv, f, metrics := newWebhookServer(t)
	body := checkoutBody(f, "pi_http_002")

	resp := postWebhook(t, srv.URL, body, "deadbeef")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 0, f.repo.count())
	require.Equal(t, 0, f.ledger.enrolled())

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	require.Equal(t, 1, metrics.webhookRejects)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	srv, f, _ := newWebhookServer(t)
	body := checkoutBody(f, "pi_http_003")

	resp := postWebhook(t, srv.URL, body, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 0, f.repo.count())
}

func TestWebhookTamperedBody(t *testing.T) {
	srv, f, _ := newWebhookServer(t)
	verifier := NewWebhookVerifier(webhookTestSecret)
	body := checkoutBody(f, "pi_http_004")
	signature := verifier.Sign(body)

	tampered := bytes.Replace(body, []byte(`"seat_count": 1`), []byte(`"seat_count": 5`), 1)
	resp := postWebhook(t, srv.URL, tampered, signature)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 0, f.repo.count())
}

func TestWebhookIgnoresUnknownEventType(t *testing.T) {
	srv, f, _ := newWebhookServer(t)
	verifier := NewWebhookVerifier(webhookTestSecret)
	body := []byte(`{"event_type": "checkout.expired", "payment_reference": "pi_http_005"}`)

	resp := postWebhook(t, srv.URL, body, verifier.Sign(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 0, f.repo.count())
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	srv, f, _ := newWebhookServer(t)
	verifier := NewWebhookVerifier(webhookTestSecret)
	body := checkoutBody(f, "pi_http_006")
	signature := verifier.Sign(body)

	first := postWebhook(t, srv.URL, body, signature)
	require.Equal(t, http.StatusOK, first.StatusCode)
	second := postWebhook(t, srv.URL, body, signature)
	require.Equal(t, http.StatusOK, second.StatusCode)

	require.Equal(t, 1, f.repo.count())
	require.Equal(t, 1, f.ledger.enrolled())
	require.Equal(t, 1, f.notifier.emailCount())
}

func TestWebhookAcksReferenceStillInFlight(t *testing.T) {
	srv, f, _ := newWebhookServer(t)
	verifier := NewWebhookVerifier(webhookTestSecret)
	body := checkoutBody(f, "pi_http_007")
	signature := verifier.Sign(body)

	// The key is held but no record exists yet, as when another delivery of
	// the same reference is mid-apply on a second instance.
	require.NoError(t, f.idempotency.CheckAndInsert(context.Background(), "pi_http_007", idempotencyScope))

	resp := postWebhook(t, srv.URL, body, signature)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 0, f.repo.count())
	require.Equal(t, 0, f.ledger.enrolled())
}
