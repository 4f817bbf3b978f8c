package timing

import "errors"

// Sentinel kinds for engine errors.
var (
	ErrInvalidEvent    = errors.New("invalid event")
	ErrSessionMismatch = errors.New("event session does not match ledger")
	ErrDuplicateEvent  = errors.New("duplicate event id")
	ErrInvalidSnapshot = errors.New("invalid session snapshot")
)
