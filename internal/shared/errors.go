package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated indicates a request without an identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the identity lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrWebhookSignature indicates a payment callback failed verification.
	ErrWebhookSignature = errors.New("webhook signature mismatch")
)
