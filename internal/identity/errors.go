package identity

import "errors"

// Error taxonomy for the identity core. Authentication failures
// ("who are you") and authorization failures ("you may not") are
// distinct sentinels so callers and the HTTP layer never conflate them.
var (
	// ErrValidation indicates a missing or malformed required argument.
	ErrValidation = errors.New("identity: invalid input")

	// ErrAuthenticationRequired indicates no valid session or user.
	ErrAuthenticationRequired = errors.New("identity: authentication required")

	// ErrAuthorizationDenied indicates an authenticated caller without
	// the role, scope or purpose the operation demands.
	ErrAuthorizationDenied = errors.New("identity: not authorized")

	// ErrNotFound indicates an absent session, token or membership.
	ErrNotFound = errors.New("identity: not found")

	// ErrSignatureInvalid indicates a cryptographic verification
	// failure or a jti mismatch against the persisted record.
	ErrSignatureInvalid = errors.New("identity: signature invalid")

	// ErrAlreadyExists indicates a duplicate membership.
	ErrAlreadyExists = errors.New("identity: already exists")
)
