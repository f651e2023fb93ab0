package enrollment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for enrollments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new enrollment record. The unique index on
// (user_id, course_id) turns a lost race into ErrDuplicateEnrollment instead
// of a second row.
func (r *Repository) Insert(ctx context.Context, rec Record) (*Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var sessionID, paymentRef pgtype.Text
	if rec.SessionID != "" {
		sessionID = pgtype.Text{String: rec.SessionID, Valid: true}
	}
	if rec.PaymentReference != "" {
		paymentRef = pgtype.Text{String: rec.PaymentReference, Valid: true}
	}

	query := `
		INSERT INTO enrollments (id, user_id, course_id, session_id, source, payment_reference, seat_pending, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at`

	err := r.pool.QueryRow(ctx, query,
		rec.ID, rec.UserID, rec.CourseID, sessionID, string(rec.Source), paymentRef, rec.SeatPending,
	).Scan(&rec.CreatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return nil, ErrDuplicateEnrollment
		}
		return nil, err
	}
	return &rec, nil
}

const recordColumns = `id, user_id, course_id, session_id, source, payment_reference, seat_pending, created_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var sessionID, paymentRef pgtype.Text
	var source string
	err := row.Scan(&rec.ID, &rec.UserID, &rec.CourseID, &sessionID, &source, &paymentRef, &rec.SeatPending, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.SessionID = sessionID.String
	rec.PaymentReference = paymentRef.String
	rec.Source = Source(source)
	return &rec, nil
}

// GetByUserCourse retrieves the record for a (user, course) pair.
func (r *Repository) GetByUserCourse(ctx context.Context, userID, courseID string) (*Record, error) {
	return scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM enrollments WHERE user_id=$1 AND course_id=$2`, userID, courseID))
}

// GetByPaymentReference retrieves the record applied for a payment reference.
func (r *Repository) GetByPaymentReference(ctx context.Context, reference string) (*Record, error) {
	return scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM enrollments WHERE payment_reference=$1`, reference))
}

// ListByUser returns all of a user's enrollments, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM enrollments WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var sessionID, paymentRef pgtype.Text
		var source string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.CourseID, &sessionID, &source, &paymentRef, &rec.SeatPending, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.SessionID = sessionID.String
		rec.PaymentReference = paymentRef.String
		rec.Source = Source(source)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListSeatPending returns paid enrollments still waiting on a seat, for the
// ops remediation view.
func (r *Repository) ListSeatPending(ctx context.Context) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM enrollments WHERE seat_pending=TRUE ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var sessionID, paymentRef pgtype.Text
		var source string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.CourseID, &sessionID, &source, &paymentRef, &rec.SeatPending, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.SessionID = sessionID.String
		rec.PaymentReference = paymentRef.String
		rec.Source = Source(source)
		records = append(records, rec)
	}
	return records, rows.Err()
}
