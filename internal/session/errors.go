package session

import "errors"

// ErrCancelled is returned by Request/ForwardWithID when the caller's
// context is cancelled, or the session is closed, before a response
// arrives (spec §5, §8 property #2).
var ErrCancelled = errors.New("session: request cancelled")

// ErrTimeout is returned by Request/ForwardWithID when no response arrives
// within the configured RequestTimeout (spec §5).
var ErrTimeout = errors.New("session: request timed out")
