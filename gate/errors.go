package gate

import "errors"

// Sentinel errors returned by Gate.Authorize.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnknownRole     = errors.New("unknown role")
	ErrUnauthorized    = errors.New("unauthorized")
)
