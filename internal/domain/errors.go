package domain

import "errors"

// Error taxonomy for authorization-sensitive operations. Handlers map these to
// redirects or status codes; services return them wrapped with %w so callers
// can test with errors.Is.
var (
	// ErrUnauthenticated means no valid session accompanied the call.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrNotAuthorized means the session is valid but the caller's role or
	// tenant does not permit the operation. Messages never leak target data.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotFound means the target entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCrossTenant means both entities exist but belong to different
	// businesses. Kept distinct from ErrNotAuthorized; whether callers should
	// be able to observe the difference is an open product question, so the
	// handler layer can collapse it behind a feature flag.
	ErrCrossTenant = errors.New("cannot modify users from other businesses")

	// ErrUpstream means the identity provider or store is unavailable.
	// Callers see only a category-level message; detail is logged server-side.
	ErrUpstream = errors.New("upstream service unavailable")
)
