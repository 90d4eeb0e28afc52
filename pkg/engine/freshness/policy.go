// Package freshness decides when cached data is fresh enough for a period.
package freshness

import (
	"time"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

const (
	// DefaultMultiplier is the staleness threshold as a fraction of the
	// period duration: a 24h period tolerates ~4.3 minutes of staleness,
	// a 7d period ~30 minutes, a 30d period ~2.2 hours.
	DefaultMultiplier = 0.003
	// DefaultHardBoundMultiplier bounds how far past the soft threshold
	// cache may still be served under load.
	DefaultHardBoundMultiplier = 10.0
	// DefaultLoadThreshold is the in-flight refresh job count above which
	// the policy prefers cache over triggering new refreshes.
	DefaultLoadThreshold = 8
)

// Policy computes per-period staleness thresholds. Thresholds scale with the
// period duration, so longer analysis windows tolerate older data.
type Policy struct {
	multiplier          float64
	hardBoundMultiplier float64
	loadThreshold       int
}

// NewPolicy creates a policy. Zero arguments fall back to the defaults.
func NewPolicy(multiplier, hardBoundMultiplier float64, loadThreshold int) *Policy {
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}
	if hardBoundMultiplier <= 1 {
		hardBoundMultiplier = DefaultHardBoundMultiplier
	}
	if loadThreshold <= 0 {
		loadThreshold = DefaultLoadThreshold
	}
	return &Policy{
		multiplier:          multiplier,
		hardBoundMultiplier: hardBoundMultiplier,
		loadThreshold:       loadThreshold,
	}
}

// Threshold returns the maximum tolerated age of cached data for the period.
func (p *Policy) Threshold(period model.Period) time.Duration {
	return time.Duration(float64(period.Duration()) * p.multiplier)
}

// HardBound returns the outer age limit past which cache is never served as
// a substitute for a refresh, regardless of load.
func (p *Policy) HardBound(period model.Period) time.Duration {
	return time.Duration(float64(p.Threshold(period)) * p.hardBoundMultiplier)
}

// IsFresh reports whether data computed at computedAt is still fresh for the
// period as of now.
func (p *Policy) IsFresh(computedAt time.Time, period model.Period, now time.Time) bool {
	if computedAt.IsZero() {
		return false
	}
	return now.Sub(computedAt) < p.Threshold(period)
}

// PreferCacheUnderLoad reports whether a slightly stale entry should be
// served without refreshing because upstream pressure is high. The trade is
// staleness for availability, bounded by HardBound. inflight is the count of
// non-terminal refresh jobs.
func (p *Policy) PreferCacheUnderLoad(computedAt time.Time, period model.Period, now time.Time, inflight int) bool {
	if computedAt.IsZero() || inflight < p.loadThreshold {
		return false
	}
	return now.Sub(computedAt) < p.HardBound(period)
}
