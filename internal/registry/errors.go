package registry

import "errors"

// Sentinel kinds for registry errors.
var (
	ErrUnknownSession = errors.New("unknown session")
	ErrUnknownEvent   = errors.New("unknown event")
)
