// Package ratelimit throttles outbound provider calls under per-source quotas.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/logging"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/metrics"
)

const (
	// backoffBase is the cooldown after the first failure in a streak.
	backoffBase = 2 * time.Second
	// backoffMax caps the exponential cooldown.
	backoffMax = 5 * time.Minute
	// backoffAfter is the failure streak length that starts the cooldown.
	backoffAfter = 2
)

// Quota describes one source's call budget: Calls per Window.
type Quota struct {
	Calls  int
	Window time.Duration
}

// quotaState holds the token bucket and failure backoff for one source.
// It is owned exclusively by the Governor.
type quotaState struct {
	limiter      *rate.Limiter
	failures     int
	backoffUntil time.Time
}

// Governor grants or rejects outbound calls per source. A rejected acquire
// never blocks; it tells the caller to skip the source for the current pass.
type Governor struct {
	mu     sync.Mutex
	states map[string]*quotaState
	logger *logging.Logger
	now    func() time.Time
}

// NewGovernor creates a governor with the given per-source quotas.
func NewGovernor(quotas map[string]Quota, logger *logging.Logger) *Governor {
	g := &Governor{
		states: make(map[string]*quotaState, len(quotas)),
		logger: logger,
		now:    time.Now,
	}
	for source, quota := range quotas {
		g.states[source] = newQuotaState(quota)
	}
	return g
}

func newQuotaState(q Quota) *quotaState {
	if q.Calls <= 0 {
		q.Calls = 10
	}
	if q.Window <= 0 {
		q.Window = time.Minute
	}
	perSecond := float64(q.Calls) / q.Window.Seconds()
	return &quotaState{
		limiter: rate.NewLimiter(rate.Limit(perSecond), q.Calls),
	}
}

// Acquire requests permission to call the source. It returns (true, 0) when
// a call may proceed, or (false, retryAfter) when the source is over quota
// or in a failure cooldown. Sources with no configured quota are admitted.
func (g *Governor) Acquire(sourceID string) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.states[sourceID]
	if !ok {
		return true, 0
	}

	now := g.now()
	if until := state.backoffUntil; now.Before(until) {
		metrics.RecordGovernorRejection(sourceID, "backoff")
		return false, until.Sub(now)
	}

	reservation := state.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		metrics.RecordGovernorRejection(sourceID, "quota")
		return false, delay
	}
	return true, 0
}

// RecordSuccess resets the source's failure streak and cooldown.
func (g *Governor) RecordSuccess(sourceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.states[sourceID]
	if !ok {
		return
	}
	state.failures = 0
	state.backoffUntil = time.Time{}
}

// RecordFailure notes an upstream failure (timeout, 429, 5xx). Repeated
// failures shrink further calls with an exponential cooldown until a
// success resets the streak.
func (g *Governor) RecordFailure(sourceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.states[sourceID]
	if !ok {
		return
	}
	state.failures++
	if state.failures < backoffAfter {
		return
	}

	cooldown := backoffBase << uint(state.failures-backoffAfter)
	if cooldown > backoffMax || cooldown <= 0 {
		cooldown = backoffMax
	}
	state.backoffUntil = g.now().Add(cooldown)
	g.logger.Warn("Source entering backoff",
		"source", sourceID,
		"failures", state.failures,
		"cooldown", cooldown.String())
}

// InBackoff reports whether the source is currently cooling down.
func (g *Governor) InBackoff(sourceID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.states[sourceID]
	if !ok {
		return false
	}
	return g.now().Before(state.backoffUntil)
}
