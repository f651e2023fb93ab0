package codes

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for access codes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a freshly generated code. The primary key on the code string
// turns a random collision into ErrCodeCollision so the generator can
// re-draw.
func (r *Repository) Insert(ctx context.Context, code AccessCode) error {
	query := `
		INSERT INTO access_codes (code, company_id, course_id, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())`

	_, err := r.pool.Exec(ctx, query, code.Code, code.CompanyID, code.CourseID, string(code.Status))
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return ErrCodeCollision
		}
		return err
	}
	return nil
}

const codeColumns = `code, company_id, course_id, status, redeemed_by, redeemed_at, created_at`

func scanCode(row pgx.Row) (*AccessCode, error) {
	var code AccessCode
	var status string
	var redeemedBy pgtype.Text
	var redeemedAt pgtype.Timestamptz
	err := row.Scan(&code.Code, &code.CompanyID, &code.CourseID, &status, &redeemedBy, &redeemedAt, &code.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	code.Status = Status(status)
	if redeemedBy.Valid {
		code.RedeemedBy = redeemedBy.String
	}
	if redeemedAt.Valid {
		at := redeemedAt.Time
		code.RedeemedAt = &at
	}
	return &code, nil
}

// GetByCode retrieves a code by its string.
func (r *Repository) GetByCode(ctx context.Context, code string) (*AccessCode, error) {
	query := `SELECT ` + codeColumns + ` FROM access_codes WHERE code = $1`
	return scanCode(r.pool.QueryRow(ctx, query, code))
}

// ListByCompany retrieves all codes cut for a company, newest first.
func (r *Repository) ListByCompany(ctx context.Context, companyID string) ([]AccessCode, error) {
	query := `SELECT ` + codeColumns + ` FROM access_codes WHERE company_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccessCode
	for rows.Next() {
		code, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *code)
	}
	return out, rows.Err()
}

// Redeem flips an active code to redeemed in a single guarded update, so
// concurrent attempts on the same code produce exactly one winner. Losers get
// the error matching the code's settled state.
func (r *Repository) Redeem(ctx context.Context, code, userID string) (*AccessCode, error) {
	query := `
		UPDATE access_codes
		SET status = $2, redeemed_by = $3, redeemed_at = NOW()
		WHERE code = $1 AND status = $4`

	tag, err := r.pool.Exec(ctx, query, code, string(StatusRedeemed), userID, string(StatusActive))
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		existing, err := r.GetByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		switch existing.Status {
		case StatusRedeemed:
			return nil, ErrCodeAlreadyRedeemed
		case StatusRevoked:
			return nil, ErrCodeRevoked
		default:
			return nil, ErrCodeNotFound
		}
	}
	return r.GetByCode(ctx, code)
}

// Reactivate returns a redeemed code to the pool. Used only to unwind a
// redemption whose follow-up enrollment failed.
func (r *Repository) Reactivate(ctx context.Context, code string) error {
	query := `
		UPDATE access_codes
		SET status = $2, redeemed_by = NULL, redeemed_at = NULL
		WHERE code = $1 AND status = $3`

	tag, err := r.pool.Exec(ctx, query, code, string(StatusActive), string(StatusRedeemed))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCodeNotFound
	}
	return nil
}

// Revoke withdraws an active code.
func (r *Repository) Revoke(ctx context.Context, code string) error {
	query := `UPDATE access_codes SET status = $2 WHERE code = $1 AND status = $3`

	tag, err := r.pool.Exec(ctx, query, code, string(StatusRevoked), string(StatusActive))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		existing, err := r.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		switch existing.Status {
		case StatusRedeemed:
			return ErrCodeAlreadyRedeemed
		case StatusRevoked:
			return nil
		default:
			return ErrCodeNotFound
		}
	}
	return nil
}
