package capacity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/summitsafety/academy/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for session capacity.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateSession inserts a new scheduled session with a zero enrolled count.
func (r *Repository) CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO class_sessions (id, course_id, start_at, end_at, timezone, capacity, enrolled_count, cancelled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, FALSE, NOW(), NOW())
		RETURNING created_at, updated_at`

	sess := Session{
		ID:       id,
		CourseID: input.CourseID,
		StartAt:  input.StartAt,
		EndAt:    input.EndAt,
		Timezone: input.Timezone,
		Capacity: input.Capacity,
	}
	err := r.pool.QueryRow(ctx, query, id, input.CourseID, input.StartAt, input.EndAt, input.Timezone, input.Capacity).
		Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSession retrieves a session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, course_id, start_at, end_at, timezone, capacity, enrolled_count, cancelled, created_at, updated_at
		FROM class_sessions
		WHERE id = $1`

	var sess Session
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&sess.ID, &sess.CourseID, &sess.StartAt, &sess.EndAt, &sess.Timezone,
		&sess.Capacity, &sess.EnrolledCount, &sess.Cancelled, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListUpcoming returns non-cancelled sessions ending after the given instant.
func (r *Repository) ListUpcoming(ctx context.Context, after time.Time) ([]Session, error) {
	query := `
		SELECT id, course_id, start_at, end_at, timezone, capacity, enrolled_count, cancelled, created_at, updated_at
		FROM class_sessions
		WHERE cancelled = FALSE AND end_at > $1
		ORDER BY start_at`

	rows, err := r.pool.Query(ctx, query, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(
			&sess.ID, &sess.CourseID, &sess.StartAt, &sess.EndAt, &sess.Timezone,
			&sess.Capacity, &sess.EnrolledCount, &sess.Cancelled, &sess.CreatedAt, &sess.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ReserveSeats atomically consumes seats against the session's capacity.
// The row lock serialises concurrent reservations on the same session; two
// transactions can never both observe the pre-update count and both commit an
// overcommitting total. Returns the new enrolled count.
func (r *Repository) ReserveSeats(ctx context.Context, sessionID string, seats int) (int, error) {
	if seats < 1 {
		return 0, errors.New("capacity: seats must be at least 1")
	}

	var newTotal int
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var enrolled, total int
		err := tx.QueryRow(ctx, `SELECT enrolled_count, capacity FROM class_sessions WHERE id=$1 FOR UPDATE`, sessionID).
			Scan(&enrolled, &total)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		newTotal = enrolled + seats
		if newTotal > total {
			return &CapacityError{SessionID: sessionID, Requested: seats, Remaining: total - enrolled}
		}

		_, err = tx.Exec(ctx, `UPDATE class_sessions SET enrolled_count=$2, updated_at=NOW() WHERE id=$1`, sessionID, newTotal)
		return err
	})
	if err != nil {
		return 0, err
	}
	return newTotal, nil
}

// ReleaseSeats returns seats to the pool under the same row lock, flooring at
// zero. Only the admin cancellation flow calls this.
func (r *Repository) ReleaseSeats(ctx context.Context, sessionID string, seats int) (int, error) {
	if seats < 1 {
		return 0, errors.New("capacity: seats must be at least 1")
	}

	var newTotal int
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var enrolled int
		err := tx.QueryRow(ctx, `SELECT enrolled_count FROM class_sessions WHERE id=$1 FOR UPDATE`, sessionID).Scan(&enrolled)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		newTotal = enrolled - seats
		if newTotal < 0 {
			newTotal = 0
		}

		_, err = tx.Exec(ctx, `UPDATE class_sessions SET enrolled_count=$2, updated_at=NOW() WHERE id=$1`, sessionID, newTotal)
		return err
	})
	if err != nil {
		return 0, err
	}
	return newTotal, nil
}

// CancelSession marks the session cancelled. Seats already reserved stay on
// the enrollment records until released explicitly.
func (r *Repository) CancelSession(ctx context.Context, sessionID string) error {
	result, err := r.pool.Exec(ctx, `UPDATE class_sessions SET cancelled=TRUE, updated_at=NOW() WHERE id=$1 AND cancelled=FALSE`, sessionID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}
