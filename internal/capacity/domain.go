package capacity

import (
	"errors"
	"fmt"
	"time"
)

// SessionStatus enumerates derived session states. Status is never stored;
// it is computed from the counters and the clock.
type SessionStatus string

const (
	StatusOpen      SessionStatus = "OPEN"
	StatusFull      SessionStatus = "FULL"
	StatusCompleted SessionStatus = "COMPLETED"
	StatusCancelled SessionStatus = "CANCELLED"
)

// Session is a scheduled offering of one course. Capacity is fixed at
// creation; EnrolledCount moves only through the ledger's reserve/release
// operations.
type Session struct {
	ID            string
	CourseID      string
	StartAt       time.Time
	EndAt         time.Time
	Timezone      string
	Capacity      int
	EnrolledCount int
	Cancelled     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SeatsRemaining returns how many seats are still reservable.
func (s Session) SeatsRemaining() int {
	remaining := s.Capacity - s.EnrolledCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Status derives the session state at the given instant.
func (s Session) Status(now time.Time) SessionStatus {
	switch {
	case s.Cancelled:
		return StatusCancelled
	case now.After(s.EndAt):
		return StatusCompleted
	case s.EnrolledCount >= s.Capacity:
		return StatusFull
	default:
		return StatusOpen
	}
}

// ErrSessionNotFound indicates the session id does not exist. Fatal to the
// caller; never retried.
var ErrSessionNotFound = errors.New("capacity: session not found")

// CapacityError reports a reservation that would overcommit the session.
// Remaining carries the seats actually left so callers can show an accurate
// message. This is an expected outcome, not a failure.
type CapacityError struct {
	SessionID string
	Requested int
	Remaining int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity: session %s has %d seat(s) remaining, %d requested", e.SessionID, e.Remaining, e.Requested)
}

// CreateSessionInput describes an administrative scheduling action.
type CreateSessionInput struct {
	CourseID string
	StartAt  time.Time
	EndAt    time.Time
	Timezone string
	Capacity int
}
