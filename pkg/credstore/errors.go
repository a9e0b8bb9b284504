package credstore

import "errors"

var (
	// ErrNotFound reports an absent key. Backends map their own
	// not-found conditions onto this so the Store can treat them all
	// as "no credential".
	ErrNotFound = errors.New("credstore: not found")

	// ErrUnavailable reports a backend that cannot be used on this
	// platform (e.g. no OS keyring service running).
	ErrUnavailable = errors.New("credstore: backend unavailable")
)
