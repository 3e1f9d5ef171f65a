package authcore

import "errors"

// Sentinel errors returned by Engine operations. These are the only
// expected failure outcomes; anything else reaching a caller is an
// internal error that has already been audited and logged.
//
// Credential-shaped failures (unknown email, missing password hash, wrong
// password, wrong MFA code) deliberately collapse into
// ErrInvalidCredentials so callers cannot tell which check failed.
// Token-shaped failures (expired, malformed, replayed, wrong type) collapse
// into ErrInvalidToken for the same reason.
var (
	// ErrInvalidCredentials covers bad email, bad password, and bad MFA
	// codes alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountExists is returned by Register when the lowercased email
	// is already taken, verified or not.
	ErrAccountExists = errors.New("account already exists")

	// ErrInvalidToken covers expired, malformed, replayed, and
	// type-mismatched tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrEmailNotVerified is distinct from ErrInvalidCredentials because
	// the user must be told to check their inbox.
	ErrEmailNotVerified = errors.New("email not verified")

	// ErrForbidden is returned for authorization failures, such as a
	// non-admin attempting impersonation.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited is returned when the login bucket is exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrMFANotConfigured is returned when MFA enrollment operations
	// target a user in an invalid enrollment state.
	ErrMFANotConfigured = errors.New("mfa not configured")

	// ErrStoreUnavailable is the opaque internal failure surfaced when a
	// storage or counter dependency cannot complete in time. No internal
	// detail is attached for callers.
	ErrStoreUnavailable = errors.New("backing store unavailable")
)
