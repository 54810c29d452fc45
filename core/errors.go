package core

import "errors"

// Registration and configuration errors. These never close a connection.
// RouteTable's Add* methods return ErrInvalidRoute; Server's fluent
// mutators discard it and skip mutations silently while running, and Start
// reports failure as false rather than returning ErrInvalidStart.
var (
	ErrInvalidRoute            = errors.New("core: invalid route target")
	ErrConfigurationAfterStart = errors.New("core: configuration mutator ignored, server is running")
	ErrInvalidStart            = errors.New("core: invalid thread count or already running")
)

// Connection-local error kinds. A Connection closes on the corresponding
// parse, body-limit, I/O or deadline failure; it acts on the underlying
// httpwire or net error directly and does not return these values.
var (
	ErrParse        = errors.New("core: request parse failure")
	ErrBodyLimit    = errors.New("core: request body exceeds route limit")
	ErrIO           = errors.New("core: read, write, accept, or shutdown failure")
	ErrTimerExpired = errors.New("core: phase timer expired")
)
