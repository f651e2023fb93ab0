package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/summitsafety/academy/internal/capacity"
	"github.com/summitsafety/academy/internal/catalog"
	"github.com/summitsafety/academy/internal/shared"
)

// RepositoryPort defines data access methods for enrollment records.
type RepositoryPort interface {
	Insert(ctx context.Context, rec Record) (*Record, error)
	GetByUserCourse(ctx context.Context, userID, courseID string) (*Record, error)
	GetByPaymentReference(ctx context.Context, reference string) (*Record, error)
	ListByUser(ctx context.Context, userID string) ([]Record, error)
	ListSeatPending(ctx context.Context) ([]Record, error)
}

// SeatLedger is the capacity ledger surface the reconciler is allowed to
// touch. Nothing else in the codebase reserves seats.
type SeatLedger interface {
	ReserveSeats(ctx context.Context, sessionID string, seats int) (int, error)
	ReleaseSeats(ctx context.Context, sessionID string, seats int) (int, error)
	GetSession(ctx context.Context, id string) (*capacity.Session, error)
}

// CourseReader re-derives course display data; processor metadata is never
// trusted for it.
type CourseReader interface {
	GetCourse(ctx context.Context, id string) (*catalog.Course, error)
}

// IdempotencyPort records applied payment references atomically.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key, scope string) error
}

// WelcomeEmail is the single outbound notification per new enrollment.
type WelcomeEmail struct {
	Recipient   string
	UserID      string
	CourseTitle string
	SessionID   string
}

// OpsAlert flags a paid enrollment that could not get a seat.
type OpsAlert struct {
	UserID           string
	CourseID         string
	SessionID        string
	PaymentReference string
	SeatsRequested   int
	SeatsRemaining   int
}

// NotifierPort sends fire-and-forget notifications. Failures are logged,
// never propagated: an email must not roll back an enrollment.
type NotifierPort interface {
	WelcomeEmail(ctx context.Context, email WelcomeEmail) error
	OpsAlert(ctx context.Context, alert OpsAlert) error
}

// MetricsPort counts reconciler outcomes.
type MetricsPort interface {
	ReservationConflict()
	PaidWithoutSeat()
}

const idempotencyScope = "payment"

// Service reconciles the two enrollment paths. Both the synchronous
// registration call and the asynchronous payment callback land here, and
// both funnel seat consumption through the same ledger primitive.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	ledger      SeatLedger
	courses     CourseReader
	idempotency IdempotencyPort
	notifier    NotifierPort
	metrics     MetricsPort
}

// NewService builds Service instance.
func NewService(logger *slog.Logger, repo RepositoryPort, ledger SeatLedger, courses CourseReader, idem IdempotencyPort, notifier NotifierPort, metrics MetricsPort) *Service {
	return &Service{logger: logger, repo: repo, ledger: ledger, courses: courses, idempotency: idem, notifier: notifier, metrics: metrics}
}

// RegisterDirect handles the synchronous registration path. Ledger errors
// pass through unchanged; no partial state is left behind.
func (s *Service) RegisterDirect(ctx context.Context, input DirectInput) (*Record, error) {
	if input.UserID == "" {
		return nil, shared.ErrUnauthenticated
	}
	if input.CourseID == "" {
		return nil, errors.New("course ID required")
	}
	if input.Seats < 1 {
		input.Seats = 1
	}

	course, err := s.courses.GetCourse(ctx, input.CourseID)
	if err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetByUserCourse(ctx, input.UserID, input.CourseID); err == nil {
		// Idempotent re-enrollment: no seat consumed, no second email.
		return existing, nil
	} else if !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}

	if input.SessionID != "" {
		if _, err := s.ledger.ReserveSeats(ctx, input.SessionID, input.Seats); err != nil {
			var capErr *capacity.CapacityError
			if errors.As(err, &capErr) {
				s.metrics.ReservationConflict()
			}
			return nil, err
		}
	}

	rec, err := s.repo.Insert(ctx, Record{
		UserID:    input.UserID,
		CourseID:  input.CourseID,
		SessionID: input.SessionID,
		Source:    SourceDirect,
	})
	if errors.Is(err, ErrDuplicateEnrollment) {
		// Lost a race with ourselves; hand the seats back and return the
		// record that won.
		if input.SessionID != "" {
			if _, relErr := s.ledger.ReleaseSeats(ctx, input.SessionID, input.Seats); relErr != nil {
				s.logger.Error("release seats after duplicate enrollment", slog.Any("error", relErr), slog.String("session_id", input.SessionID))
			}
		}
		return s.repo.GetByUserCourse(ctx, input.UserID, input.CourseID)
	}
	if err != nil {
		if input.SessionID != "" {
			if _, relErr := s.ledger.ReleaseSeats(ctx, input.SessionID, input.Seats); relErr != nil {
				s.logger.Error("release seats after failed insert", slog.Any("error", relErr), slog.String("session_id", input.SessionID))
			}
		}
		return nil, err
	}

	s.sendWelcome(ctx, input.Email, rec, course)
	return rec, nil
}

// ConfirmPayment handles the webhook-driven path. The payment reference is an
// idempotency key checked-and-inserted atomically, so duplicate delivery is a
// successful no-op with no second email.
//
// If the session sold out between checkout start and payment completion the
// enrollment is still recorded (money was captured); the seat stays pending
// and exactly one operational alert goes out for manual remediation.
func (s *Service) ConfirmPayment(ctx context.Context, event PaymentEvent) (*Record, error) {
	if event.PaymentReference == "" {
		return nil, errors.New("payment reference required")
	}
	if event.UserID == "" || event.CourseID == "" {
		return nil, fmt.Errorf("payment %s: missing user or course metadata", event.PaymentReference)
	}
	if event.Seats < 1 {
		event.Seats = 1
	}

	if err := s.idempotency.CheckAndInsert(ctx, event.PaymentReference, idempotencyScope); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			rec, lookupErr := s.repo.GetByPaymentReference(ctx, event.PaymentReference)
			if errors.Is(lookupErr, ErrRecordNotFound) {
				// Key exists but nothing was applied yet; a concurrent
				// delivery holds the key and will finish the work.
				s.logger.Warn("payment reference in flight", slog.String("payment_reference", event.PaymentReference))
				return nil, ErrPaymentInFlight
			}
			return rec, lookupErr
		}
		return nil, err
	}

	rec, err := s.applyPayment(ctx, event)
	if err != nil {
		// Undo the key so the processor's redelivery can try again.
		if delErr := s.idempotency.Delete(ctx, event.PaymentReference, idempotencyScope); delErr != nil {
			s.logger.Error("rollback idempotency key", slog.Any("error", delErr), slog.String("payment_reference", event.PaymentReference))
		}
		return nil, err
	}
	return rec, nil
}

func (s *Service) applyPayment(ctx context.Context, event PaymentEvent) (*Record, error) {
	course, err := s.courses.GetCourse(ctx, event.CourseID)
	if err != nil {
		return nil, err
	}

	seatPending := false
	reserved := false
	if event.SessionID != "" {
		if _, err := s.ledger.ReserveSeats(ctx, event.SessionID, event.Seats); err != nil {
			var capErr *capacity.CapacityError
			if !errors.As(err, &capErr) {
				return nil, err
			}
			// Paid but sold out: the one condition that is neither retry
			// nor silently fine.
			seatPending = true
			s.metrics.ReservationConflict()
			s.metrics.PaidWithoutSeat()
			if alertErr := s.notifier.OpsAlert(ctx, OpsAlert{
				UserID:           event.UserID,
				CourseID:         event.CourseID,
				SessionID:        event.SessionID,
				PaymentReference: event.PaymentReference,
				SeatsRequested:   event.Seats,
				SeatsRemaining:   capErr.Remaining,
			}); alertErr != nil {
				s.logger.Error("enqueue ops alert", slog.Any("error", alertErr), slog.String("payment_reference", event.PaymentReference))
			}
		} else {
			reserved = true
		}
	}

	rec, err := s.repo.Insert(ctx, Record{
		UserID:           event.UserID,
		CourseID:         event.CourseID,
		SessionID:        event.SessionID,
		Source:           SourcePayment,
		PaymentReference: event.PaymentReference,
		SeatPending:      seatPending,
	})
	if errors.Is(err, ErrDuplicateEnrollment) {
		// The user already holds a direct enrollment for this course; keep
		// it and hand any just-reserved seats back.
		if reserved {
			if _, relErr := s.ledger.ReleaseSeats(ctx, event.SessionID, event.Seats); relErr != nil {
				s.logger.Error("release seats after duplicate enrollment", slog.Any("error", relErr), slog.String("session_id", event.SessionID))
			}
		}
		return s.repo.GetByUserCourse(ctx, event.UserID, event.CourseID)
	}
	if err != nil {
		if reserved {
			if _, relErr := s.ledger.ReleaseSeats(ctx, event.SessionID, event.Seats); relErr != nil {
				s.logger.Error("release seats after failed insert", slog.Any("error", relErr), slog.String("session_id", event.SessionID))
			}
		}
		return nil, err
	}

	s.sendWelcome(ctx, event.CustomerEmail, rec, course)
	return rec, nil
}

func (s *Service) sendWelcome(ctx context.Context, recipient string, rec *Record, course *catalog.Course) {
	if recipient == "" {
		return
	}
	err := s.notifier.WelcomeEmail(ctx, WelcomeEmail{
		Recipient:   recipient,
		UserID:      rec.UserID,
		CourseTitle: course.Title,
		SessionID:   rec.SessionID,
	})
	if err != nil {
		s.logger.Error("enqueue welcome email", slog.Any("error", err), slog.String("user_id", rec.UserID))
	}
}

// EnrollmentView joins a record with its session and live-access state for
// the student dashboard.
type EnrollmentView struct {
	Record  Record
	Session *capacity.Session
}

// ListForUser returns the user's enrollments with session data attached.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]EnrollmentView, error) {
	records, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]EnrollmentView, 0, len(records))
	for _, rec := range records {
		view := EnrollmentView{Record: rec}
		if rec.SessionID != "" {
			sess, err := s.ledger.GetSession(ctx, rec.SessionID)
			if err != nil && !errors.Is(err, capacity.ErrSessionNotFound) {
				return nil, err
			}
			view.Session = sess
		}
		views = append(views, view)
	}
	return views, nil
}

// ListSeatPending surfaces paid-but-seatless enrollments for operations.
func (s *Service) ListSeatPending(ctx context.Context) ([]Record, error) {
	return s.repo.ListSeatPending(ctx)
}
