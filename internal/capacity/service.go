package capacity

import (
	"context"
	"errors"
	"time"
)

// LedgerPort defines data access methods for the capacity ledger.
type LedgerPort interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ListUpcoming(ctx context.Context, after time.Time) ([]Session, error)
	ReserveSeats(ctx context.Context, sessionID string, seats int) (int, error)
	ReleaseSeats(ctx context.Context, sessionID string, seats int) (int, error)
	CancelSession(ctx context.Context, sessionID string) error
}

// Service owns session scheduling and the seat reservation primitive. It is
// the sole writer of enrolled counts; the enrollment reconciler is its only
// reserving caller.
type Service struct {
	ledger LedgerPort
}

// NewService builds Service instance.
func NewService(ledger LedgerPort) *Service {
	return &Service{ledger: ledger}
}

// CreateSession schedules a new session.
func (s *Service) CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error) {
	if input.CourseID == "" {
		return nil, errors.New("course ID required")
	}
	if input.Capacity < 1 {
		return nil, errors.New("capacity must be positive")
	}
	if !input.EndAt.After(input.StartAt) {
		return nil, errors.New("session must end after it starts")
	}
	if input.Timezone == "" {
		input.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(input.Timezone); err != nil {
		return nil, errors.New("unknown timezone")
	}
	return s.ledger.CreateSession(ctx, input)
}

// GetSession returns a session by id.
func (s *Service) GetSession(ctx context.Context, id string) (*Session, error) {
	return s.ledger.GetSession(ctx, id)
}

// ListUpcoming returns sessions still running or yet to start.
func (s *Service) ListUpcoming(ctx context.Context) ([]Session, error) {
	return s.ledger.ListUpcoming(ctx, time.Now())
}

// ReserveSeats consumes seats atomically. A *CapacityError result is a normal
// outcome surfaced to the end user; ErrSessionNotFound is fatal.
func (s *Service) ReserveSeats(ctx context.Context, sessionID string, seats int) (int, error) {
	if sessionID == "" {
		return 0, ErrSessionNotFound
	}
	if seats < 1 {
		return 0, errors.New("seat count must be at least 1")
	}
	return s.ledger.ReserveSeats(ctx, sessionID, seats)
}

// ReleaseSeats returns seats to the pool after a cancellation or refund.
func (s *Service) ReleaseSeats(ctx context.Context, sessionID string, seats int) (int, error) {
	if seats < 1 {
		return 0, errors.New("seat count must be at least 1")
	}
	return s.ledger.ReleaseSeats(ctx, sessionID, seats)
}

// CancelSession marks a session cancelled. The live-access gate stops
// admitting immediately; reserved seats are released separately.
func (s *Service) CancelSession(ctx context.Context, sessionID string) error {
	return s.ledger.CancelSession(ctx, sessionID)
}
