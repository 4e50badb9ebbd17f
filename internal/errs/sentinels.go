// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated principal lacks the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username or task name taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalid indicates a request that failed validation before reaching the store.
	ErrInvalid = errors.New("invalid argument")

	// ErrNoSession indicates that no principal is signed in.
	ErrNoSession = errors.New("no session")
)
