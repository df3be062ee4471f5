// internal/services/errors.go
package services

import "errors"

// Domain errors surfaced to handlers. Handlers map these onto HTTP statuses;
// anything else is treated as an internal error.
var (
	// ErrNotFound means the target record is absent after all lookups.
	ErrNotFound = errors.New("record not found")

	// ErrPermissionDenied means the actor lacks the required role or ownership.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDuplicateLicense means the holder already has a license of this type.
	ErrDuplicateLicense = errors.New("holder already has a license of this type")

	// ErrDuplicateApplication means the holder already has an open
	// application of this type.
	ErrDuplicateApplication = errors.New("holder already has an open application of this type")

	// ErrPaymentRequired means a renewal approval was attempted before the
	// payment was confirmed.
	ErrPaymentRequired = errors.New("payment not verified for renewal")

	// ErrTokenExpired / ErrTokenInvalid are verification-token failures;
	// both fail closed.
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")

	// ErrInvalidTransition means the application is in a state the requested
	// action cannot leave.
	ErrInvalidTransition = errors.New("invalid application state transition")

	// ErrApprovalRequired gates license download until a decision is made.
	ErrApprovalRequired = errors.New("license has not been approved yet")

	// ErrNumberSpaceExhausted is returned when number generation gives up
	// probing. Indicates storage corruption, not a normal condition.
	ErrNumberSpaceExhausted = errors.New("license number space exhausted")
)
