package codes

import (
	"errors"
	"time"
)

// Status tracks the single-use lifecycle of an access code.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusRedeemed Status = "REDEEMED"
	StatusRevoked  Status = "REVOKED"
)

// AccessCode is a corporate bulk-enrollment token. The code string itself is
// the identity; it is globally unique and human-typable.
type AccessCode struct {
	Code       string
	CompanyID  string
	CourseID   string
	Status     Status
	RedeemedBy string
	RedeemedAt *time.Time
	CreatedAt  time.Time
}

var (
	// ErrCodeNotFound indicates no access code matched.
	ErrCodeNotFound = errors.New("codes: code not found")
	// ErrCodeAlreadyRedeemed indicates the code was consumed earlier.
	ErrCodeAlreadyRedeemed = errors.New("codes: code already redeemed")
	// ErrCodeRevoked indicates the code was withdrawn by an administrator.
	ErrCodeRevoked = errors.New("codes: code revoked")
	// ErrInvalidQuantity indicates a generation request outside 1-50.
	ErrInvalidQuantity = errors.New("codes: quantity must be between 1 and 50")
	// ErrCodeCollision indicates the generated code string already exists;
	// the generator re-draws on this.
	ErrCodeCollision = errors.New("codes: code collision")
)
