package rate

import "errors"

var (
	// ErrStoreUnavailable is an exported constant or variable used by the authentication engine.
	ErrStoreUnavailable = errors.New("rate: store unavailable")
	// ErrUnknownPolicy is an exported constant or variable used by the authentication engine.
	ErrUnknownPolicy = errors.New("rate: unknown policy")
)
