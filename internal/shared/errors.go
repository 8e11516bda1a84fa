package shared

import "errors"

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoSession indicates that no identity is stored in the session.
	ErrNoSession = errors.New("session: not authenticated")
	// ErrMalformedSession indicates stored identity data that could not be decoded.
	ErrMalformedSession = errors.New("session: malformed identity")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
