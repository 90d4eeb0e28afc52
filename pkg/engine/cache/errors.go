package cache

import "errors"

var (
	// ErrNotFound indicates that no entry exists for the key in any tier.
	ErrNotFound = errors.New("cache entry not found")
	// ErrStaleWrite indicates a write carrying an older snapshot than the
	// one already stored; late writers from superseded passes are dropped.
	ErrStaleWrite = errors.New("stale cache write rejected")
)
