package registry

import "errors"

// Error kinds surfaced to callers. Every mutation failure wraps exactly one
// of these so the HTTP layer can map it to a user-facing status.
var (
	ErrNotFound          = errors.New("not found")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidInput      = errors.New("invalid input")
	ErrAlreadyDone       = errors.New("already done")
)
