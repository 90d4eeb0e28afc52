package refresh

import "errors"

var (
	// ErrJobNotFound indicates that no job with the given ID is known.
	ErrJobNotFound = errors.New("refresh job not found")
	// ErrAllSourcesFailed indicates zero coverage: every source failed for
	// the entire asset set.
	ErrAllSourcesFailed = errors.New("all sources failed")
)
