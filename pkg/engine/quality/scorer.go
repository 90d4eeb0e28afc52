// Package quality assigns trust weights to source responses for merging.
package quality

import (
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/sources"
)

const (
	// partialDiscount is applied when a response covered only part of the request.
	partialDiscount = 0.5
	// defaultWeight is used for sources with no configured reliability.
	defaultWeight = 1.0
)

// Scorer computes per-response trust weights from static provider
// reliability ranks. Weights are configured, never inferred at runtime,
// so scoring is reproducible across passes.
type Scorer struct {
	reliability map[string]float64
	priority    map[string]int // fixed provider order for deterministic tie-breaks
}

// NewScorer creates a scorer. reliability maps source name to its configured
// base weight; priorityOrder lists sources from most to least preferred and
// is the final tie-breaker.
func NewScorer(reliability map[string]float64, priorityOrder []string) *Scorer {
	priority := make(map[string]int, len(priorityOrder))
	for i, name := range priorityOrder {
		priority[name] = i
	}
	return &Scorer{
		reliability: reliability,
		priority:    priority,
	}
}

// Weight returns the trust weight for a response. Failed, rate-limited and
// timed-out responses score zero; partial responses are discounted.
func (s *Scorer) Weight(resp sources.Response) float64 {
	if !resp.Status.Usable() {
		return 0
	}

	weight := defaultWeight
	if w, ok := s.reliability[resp.Source]; ok {
		weight = w
	}
	if resp.Status == sources.StatusPartial {
		weight *= partialDiscount
	}
	return weight
}

// Better reports whether response a should be preferred over response b.
// Higher weight wins; ties break by most recent response timestamp, then by
// the fixed provider priority order, so merges are reproducible given
// identical inputs.
func (s *Scorer) Better(a, b sources.Response) bool {
	wa, wb := s.Weight(a), s.Weight(b)
	if wa != wb {
		return wa > wb
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	pa, pb := s.priorityIndex(a.Source), s.priorityIndex(b.Source)
	if pa != pb {
		return pa < pb
	}
	return a.Source < b.Source
}

func (s *Scorer) priorityIndex(source string) int {
	if idx, ok := s.priority[source]; ok {
		return idx
	}
	return len(s.priority)
}
