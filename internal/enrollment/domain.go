package enrollment

import (
	"errors"
	"time"
)

// Source records which path granted the enrollment.
type Source string

const (
	SourceDirect  Source = "direct"
	SourcePayment Source = "payment"
)

// Record is the per-user, per-course association. A user holds at most one
// record per course; re-enrollment is idempotent, not additive.
type Record struct {
	ID        string
	UserID    string
	CourseID  string
	SessionID string // empty when the enrollment is not bound to a session
	Source    Source
	// PaymentReference is the processor's reference for payment-sourced
	// enrollments; it doubles as the idempotency key.
	PaymentReference string
	// SeatPending marks a paid enrollment whose seat reservation failed
	// because the session sold out mid-checkout. Remediated manually.
	SeatPending bool
	CreatedAt   time.Time
}

var (
	// ErrDuplicateEnrollment indicates a record already exists for the
	// (user, course) pair.
	ErrDuplicateEnrollment = errors.New("enrollment: user already enrolled in course")
	// ErrRecordNotFound indicates no enrollment record matched.
	ErrRecordNotFound = errors.New("enrollment: record not found")
	// ErrPaymentInFlight reports a duplicate delivery whose first copy is
	// still being applied. Callers acknowledge it; the holder of the
	// idempotency key finishes the work.
	ErrPaymentInFlight = errors.New("enrollment: payment confirmation in flight")
)

// DirectInput describes a synchronous registration request.
type DirectInput struct {
	UserID    string
	CourseID  string
	SessionID string
	Seats     int
	Email     string
}

// PaymentEvent is the normalised payment processor callback after signature
// verification. Delivery is at least once and may be out of order.
type PaymentEvent struct {
	EventType        string
	UserID           string
	CourseID         string
	SessionID        string
	Seats            int
	PaymentReference string
	CustomerEmail    string
}
