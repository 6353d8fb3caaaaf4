package auth

import "errors"

// Errors returned by the auth state machine. These are surfaced to the tool
// layer as structured results, never swallowed.
var (
	// ErrConflict reports a login attempt while another login's token
	// exchange is in flight.
	ErrConflict = errors.New("another login attempt is currently completing")

	// ErrInvalidState reports a state token that does not match the live
	// pending authorization, including the case where none exists.
	ErrInvalidState = errors.New("state token does not match the pending authorization")

	// ErrExpiredState reports a callback that arrived after the pending
	// authorization window elapsed.
	ErrExpiredState = errors.New("the pending authorization has expired")

	// ErrSessionExpired reports an operation attempted without a live
	// authenticated session.
	ErrSessionExpired = errors.New("session expired or absent: please login again")
)
