package session

import "errors"

// ErrClosed is returned by the enqueueing methods after Close.
var ErrClosed = errors.New("session closed")
