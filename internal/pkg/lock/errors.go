package lock

import "errors"

// ErrLockTimeout is returned when a key cannot be locked before the deadline.
var ErrLockTimeout = errors.New("lock acquisition timeout")
