package enrollment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/summitsafety/academy/internal/capacity"
	"github.com/summitsafety/academy/internal/catalog"
	"github.com/summitsafety/academy/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	byID    map[string]*Record
	failOne bool // next Insert fails once
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byID: make(map[string]*Record)}
}

func (r *memoryRepo) Insert(ctx context.Context, rec Record) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOne {
		r.failOne = false
		return nil, errors.New("insert failed")
	}
	for _, existing := range r.byID {
		if existing.UserID == rec.UserID && existing.CourseID == rec.CourseID {
			return nil, ErrDuplicateEnrollment
		}
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now()
	r.byID[rec.ID] = &rec
	clone := rec
	return &clone, nil
}

func (r *memoryRepo) GetByUserCourse(ctx context.Context, userID, courseID string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.byID {
		if rec.UserID == userID && rec.CourseID == courseID {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (r *memoryRepo) GetByPaymentReference(ctx context.Context, reference string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.byID {
		if rec.PaymentReference == reference {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (r *memoryRepo) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.byID {
		if rec.UserID == userID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListSeatPending(ctx context.Context) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.byID {
		if rec.SeatPending {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type fakeLedger struct {
	mu       sync.Mutex
	session  capacity.Session
	released int
}

func (l *fakeLedger) ReserveSeats(ctx context.Context, sessionID string, seats int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sessionID != l.session.ID {
		return 0, capacity.ErrSessionNotFound
	}
	newTotal := l.session.EnrolledCount + seats
	if newTotal > l.session.Capacity {
		return 0, &capacity.CapacityError{SessionID: sessionID, Requested: seats, Remaining: l.session.Capacity - l.session.EnrolledCount}
	}
	l.session.EnrolledCount = newTotal
	return newTotal, nil
}

func (l *fakeLedger) ReleaseSeats(ctx context.Context, sessionID string, seats int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.session.EnrolledCount -= seats
	if l.session.EnrolledCount < 0 {
		l.session.EnrolledCount = 0
	}
	l.released += seats
	return l.session.EnrolledCount, nil
}

func (l *fakeLedger) GetSession(ctx context.Context, id string) (*capacity.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id != l.session.ID {
		return nil, capacity.ErrSessionNotFound
	}
	clone := l.session
	return &clone, nil
}

func (l *fakeLedger) enrolled() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.EnrolledCount
}

type staticCourses struct {
	course catalog.Course
}

func (c *staticCourses) GetCourse(ctx context.Context, id string) (*catalog.Course, error) {
	if id != c.course.ID {
		return nil, catalog.ErrCourseNotFound
	}
	clone := c.course
	return &clone, nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]struct{})}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	full := scope + ":" + key
	if _, ok := m.keys[full]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[full] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, scope+":"+key)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	emails []WelcomeEmail
	alerts []OpsAlert
}

func (n *fakeNotifier) WelcomeEmail(ctx context.Context, email WelcomeEmail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, email)
	return nil
}

func (n *fakeNotifier) OpsAlert(ctx context.Context, alert OpsAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *fakeNotifier) emailCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.emails)
}

func (n *fakeNotifier) alertCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type fakeMetrics struct {
	mu              sync.Mutex
	conflicts       int
	paidWithoutSeat int
	webhookRejects  int
}

func (m *fakeMetrics) ReservationConflict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts++
}

func (m *fakeMetrics) PaidWithoutSeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paidWithoutSeat++
}

func (m *fakeMetrics) WebhookReject() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhookRejects++
}

type fixture struct {
	service     *Service
	repo        *memoryRepo
	ledger      *fakeLedger
	idempotency *memoryIdempotency
	notifier    *fakeNotifier
	metrics     *fakeMetrics
	sessionID   string
	courseID    string
}

func newFixture(t *testing.T, capacitySeats, enrolled int) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	courseID := uuid.NewString()
	sessionID := uuid.NewString()
	repo := newMemoryRepo()
	ledger := &fakeLedger{session: capacity.Session{
		ID:            sessionID,
		CourseID:      courseID,
		StartAt:       time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC),
		EndAt:         time.Date(2026, 2, 14, 16, 0, 0, 0, time.UTC),
		Timezone:      "UTC",
		Capacity:      capacitySeats,
		EnrolledCount: enrolled,
	}}
	courses := &staticCourses{course: catalog.Course{
		ID:    courseID,
		Slug:  "confined-space-entry",
		Title: "Confined Space Entry",
		Price: decimal.NewFromInt(249),
	}}
	idem := newMemoryIdempotency()
	notifier := &fakeNotifier{}
	metrics := &fakeMetrics{}
	svc := NewService(logger, repo, ledger, courses, idem, notifier, metrics)
	return &fixture{
		service:     svc,
		repo:        repo,
		ledger:      ledger,
		idempotency: idem,
		notifier:    notifier,
		metrics:     metrics,
		sessionID:   sessionID,
		courseID:    courseID,
	}
}

func TestRegisterDirect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 0)

	rec, err := f.service.RegisterDirect(ctx, DirectInput{
		UserID:    "user-1",
		CourseID:  f.courseID,
		SessionID: f.sessionID,
		Email:     "student@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, SourceDirect, rec.Source)
	require.False(t, rec.SeatPending)
	require.Equal(t, 1, f.ledger.enrolled())
	require.Equal(t, 1, f.notifier.emailCount())
}

func TestRegisterDirectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 0)

	first, err := f.service.RegisterDirect(ctx, DirectInput{
		UserID:    "user-1",
		CourseID:  f.courseID,
		SessionID: f.sessionID,
		Email:     "student@example.com",
	})
	require.NoError(t, err)

	second, err := f.service.RegisterDirect(ctx, DirectInput{
		UserID:    "user-1",
		CourseID:  f.courseID,
		SessionID: f.sessionID,
		Email:     "student@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// No second seat, no second email.
	require.Equal(t, 1, f.repo.count())
	require.Equal(t, 1, f.ledger.enrolled())
	require.Equal(t, 1, f.notifier.emailCount())
}

func TestRegisterDirectSoldOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 10)

	_, err := f.service.RegisterDirect(ctx, DirectInput{
		UserID:    "user-1",
		CourseID:  f.courseID,
		SessionID: f.sessionID,
	})
	var capErr *capacity.CapacityError
	require.ErrorAs(t, err, &capErr)
	require.Equal(t, 0, capErr.Remaining)
	require.Equal(t, 0, f.repo.count())
	require.Equal(t, 1, f.metrics.conflicts)
}

func TestConfirmPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 0)

	rec, err := f.service.ConfirmPayment(ctx, PaymentEvent{
		EventType:        "checkout.completed",
		UserID:           "user-1",
		CourseID:         f.courseID,
		SessionID:        f.sessionID,
		PaymentReference: "pi_001",
		CustomerEmail:    "student@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, SourcePayment, rec.Source)
	require.False(t, rec.SeatPending)
	require.Equal(t, 1, f.ledger.enrolled())
	require.Equal(t, 1, f.notifier.emailCount())
}

func TestConfirmPaymentDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 0)
	event := PaymentEvent{
		EventType:        "checkout.completed",
		UserID:           "user-1",
		CourseID:         f.courseID,
		SessionID:        f.sessionID,
		PaymentReference: "pi_dup",
		CustomerEmail:    "student@example.com",
	}

	first, err := f.service.ConfirmPayment(ctx, event)
	require.NoError(t, err)

	second, err := f.service.ConfirmPayment(ctx, event)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	require.Equal(t, 1, f.repo.count())
	require.Equal(t, 1, f.ledger.enrolled())
	require.Equal(t, 1, f.notifier.emailCount())
}

func TestConfirmPaymentInFlightDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 0)
	// Key held but no record yet: the first delivery is mid-apply.
	require.NoError(t, f.idempotency.CheckAndInsert(ctx, "pi_racing", idempotencyScope))

	rec, err := f.service.ConfirmPayment(ctx, PaymentEvent{
		EventType:        "checkout.completed",
		UserID:           "user-1",
		CourseID:         f.courseID,
		SessionID:        f.sessionID,
		PaymentReference: "pi_racing",
		CustomerEmail:    "student@example.com",
	})
	require.ErrorIs(t, err, ErrPaymentInFlight)
	require.Nil(t, rec)
	require.Equal(t, 0, f.repo.count())
	require.Equal(t, 0, f.ledger.enrolled())
	require.Equal(t, 0, f.notifier.emailCount())
}

func TestConfirmPaymentConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 0)
	event := PaymentEvent{
		EventType:        "checkout.completed",
		UserID:           "user-1",
		CourseID:         f.courseID,
		SessionID:        f.sessionID,
		PaymentReference: "pi_race",
		CustomerEmail:    "student@example.com",
	}

	var eg errgroup.Group
	for i := 0; i < 10; i++ {
		eg.Go(func() error {
			_, err := f.service.ConfirmPayment(ctx, event)
			return err
		})
	}
	require.NoError(t, eg.Wait())

	require.Equal(t, 1, f.repo.count())
	require.Equal(t, 1, f.ledger.enrolled())
	require.Equal(t, 1, f.notifier.emailCount())
}

func TestConfirmPaymentSoldOutKeepsEnrollment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10, 10)

	rec, err := f.service.ConfirmPayment(ctx, PaymentEvent{
		EventType:        "checkout.completed",
		UserID:           "user-1",
		CourseID:         f.courseID,
		SessionID:        f.sessionID,
		PaymentReference: "pi_soldout",
		CustomerEmail:    "student@example.com",
	})
	require.NoError(t, err)
	require.True(t, rec.SeatPending)
	require.Equal(t, 10, f.ledger.enrolled())

	// Exactly one ops alert, even across redelivery.
	require.Equal(t, 1, f.notifier.alertCount())
	require.Equal(t, 1, f.metrics.paidWithoutSeat)

	_, err = f.service.ConfirmPayment(ctx, PaymentEvent{
		EventType:        "checkout.completed",
		UserID:           "user-1",
		CourseID:         f.courseID,
		SessionID:        f.sessionID,
		PaymentReference: "pi_soldout",
		CustomerEmail:    "student@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.notifier.alertCount())

	pending, err := f.service.ListSeatPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, rec.ID, pending[0].ID)
}

func TestConfirmPaymentFailureReleasesIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 0)
	f.repo.failOne = true
	event := PaymentEvent{
		EventType:        "checkout.completed",
		UserID:           "user-1",
		CourseID:         f.courseID,
		SessionID:        f.sessionID,
		PaymentReference: "pi_retry",
		CustomerEmail:    "student@example.com",
	}

	_, err := f.service.ConfirmPayment(ctx, event)
	require.Error(t, err)

	// The failed attempt released both the key and the seat it had taken.
	rec, err := f.service.ConfirmPayment(ctx, event)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, 1, f.repo.count())
	require.Equal(t, 1, f.ledger.enrolled())
}

func TestConfirmPaymentRequiresMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 0)

	_, err := f.service.ConfirmPayment(ctx, PaymentEvent{
		EventType:        "checkout.completed",
		PaymentReference: "pi_bad",
	})
	require.Error(t, err)

	_, err = f.service.ConfirmPayment(ctx, PaymentEvent{
		EventType: "checkout.completed",
		UserID:    "user-1",
		CourseID:  f.courseID,
	})
	require.Error(t, err)
}

func TestListForUserAttachesSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 0)

	_, err := f.service.RegisterDirect(ctx, DirectInput{
		UserID:    "user-1",
		CourseID:  f.courseID,
		SessionID: f.sessionID,
	})
	require.NoError(t, err)

	views, err := f.service.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].Session)
	require.Equal(t, f.sessionID, views[0].Session.ID)
}
