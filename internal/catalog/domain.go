package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Course is static catalog content owned by the admin back office. The
// enrollment reconciler re-derives title and price from here instead of
// trusting values the payment processor echoes back.
type Course struct {
	ID        string
	Slug      string
	Title     string
	Price     decimal.Decimal
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Company owns a corporate bulk-enrollment pool.
type Company struct {
	ID          string
	ShortCode   string
	Name        string
	CourseID    string
	SeatsTotal  int
	CodesIssued int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

var (
	// ErrCourseNotFound indicates the course id or slug does not exist.
	ErrCourseNotFound = errors.New("catalog: course not found")
	// ErrCompanyNotFound indicates the company id does not exist.
	ErrCompanyNotFound = errors.New("catalog: company not found")
)
