package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	reservationConflicts prometheus.Counter
	webhookRejects       prometheus.Counter
	paidWithoutSeat      prometheus.Counter
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "academy_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "academy_reservation_conflicts_total",
		Help: "Seat reservations rejected because the session was full.",
	})
	rejects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "academy_webhook_rejects_total",
		Help: "Payment webhooks rejected for a bad signature.",
	})
	paidNoSeat := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "academy_paid_without_seat_total",
		Help: "Paid enrollments that could not reserve a seat and need manual remediation.",
	})
	registry.MustRegister(requests, duration, conflicts, rejects, paidNoSeat)
	return &Metrics{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:        requests,
		requestDuration:      duration,
		reservationConflicts: conflicts,
		webhookRejects:       rejects,
		paidWithoutSeat:      paidNoSeat,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ReservationConflict counts a capacity-exceeded rejection.
func (m *Metrics) ReservationConflict() {
	if m != nil {
		m.reservationConflicts.Inc()
	}
}

// WebhookReject counts a signature-rejected payment callback.
func (m *Metrics) WebhookReject() {
	if m != nil {
		m.webhookRejects.Inc()
	}
}

// PaidWithoutSeat counts a paid enrollment left without a reserved seat.
func (m *Metrics) PaidWithoutSeat() {
	if m != nil {
		m.paidWithoutSeat.Inc()
	}
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
