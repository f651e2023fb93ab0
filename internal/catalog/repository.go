package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository provides PostgreSQL backed persistence for catalog entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const courseColumns = `id, slug, title, price, active, created_at, updated_at`

func scanCourse(row pgx.Row) (*Course, error) {
	var c Course
	var price pgtype.Numeric
	err := row.Scan(&c.ID, &c.Slug, &c.Title, &price, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Price = numericToDecimal(price)
	return &c, nil
}

// GetCourse retrieves a course by id.
func (r *Repository) GetCourse(ctx context.Context, id string) (*Course, error) {
	return scanCourse(r.pool.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE id=$1`, id))
}

// GetCourseBySlug retrieves a course by its public slug.
func (r *Repository) GetCourseBySlug(ctx context.Context, slug string) (*Course, error) {
	return scanCourse(r.pool.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE slug=$1`, slug))
}

// ListActiveCourses returns the purchasable catalog.
func (r *Repository) ListActiveCourses(ctx context.Context) ([]Course, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+courseColumns+` FROM courses WHERE active=TRUE ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []Course
	for rows.Next() {
		var c Course
		var price pgtype.Numeric
		if err := rows.Scan(&c.ID, &c.Slug, &c.Title, &price, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Price = numericToDecimal(price)
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

const companyColumns = `id, short_code, name, course_id, seats_total, codes_issued, created_at, updated_at`

func scanCompany(row pgx.Row) (*Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.ShortCode, &c.Name, &c.CourseID, &c.SeatsTotal, &c.CodesIssued, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCompanyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCompany retrieves a company by id.
func (r *Repository) GetCompany(ctx context.Context, id string) (*Company, error) {
	return scanCompany(r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id=$1`, id))
}

// IncrementCodesIssued bumps the issued counter after a generation batch.
// Recorded for product visibility only; generation is not capped by the seat
// pool (documented behavior, flagged for clarification).
func (r *Repository) IncrementCodesIssued(ctx context.Context, companyID string, count int) error {
	result, err := r.pool.Exec(ctx, `UPDATE companies SET codes_issued = codes_issued + $2, updated_at=NOW() WHERE id=$1`, companyID, count)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCompanyNotFound
	}
	return nil
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
