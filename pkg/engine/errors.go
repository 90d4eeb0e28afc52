// Package engine assembles the aggregation and caching components behind the
// request-facing API: freshness-checked ranking reads, refresh triggering and
// job status.
package engine

import "errors"

var (
	// ErrNoData is the cold start failure: zero cache and zero responding
	// sources. It is the only condition surfaced as a hard error.
	ErrNoData = errors.New("no cached data and no responding sources")
	// ErrStopped indicates the engine is shutting down.
	ErrStopped = errors.New("engine stopped")
)
