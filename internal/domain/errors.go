package domain

import "errors"

// Sentinel errors for the service layer. Handlers map these to HTTP status
// codes; wrap them with fmt.Errorf("...: %w", err) to add context.
var (
	// ErrUnauthorized means the request carried no valid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden means the credentials are valid but the account may not
	// perform the action.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the resource does not exist, or is owned by another
	// user. Ownership failures deliberately look identical to absence.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput means the request was well-formed HTTP but carried an
	// unusable payload.
	ErrInvalidInput = errors.New("invalid input")
)
