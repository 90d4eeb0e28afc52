// Package cache provides the two-tier store for merged asset records.
package cache

import (
	"fmt"
	"time"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

// Tier marks which cache tier served an entry.
type Tier string

const (
	// TierMemory is the in-process tier: short TTL, lowest latency.
	TierMemory Tier = "memory"
	// TierPersistent survives process restarts.
	TierPersistent Tier = "persistent"
)

// Key identifies a cached ranking snapshot: one asset scope for one period.
type Key struct {
	Scope  string       `json:"scope"`
	Period model.Period `json:"period"`
}

// NewKey builds a key for the scope and period. An empty scope means the
// default full listing.
func NewKey(scope string, period model.Period) Key {
	if scope == "" {
		scope = "all"
	}
	return Key{Scope: scope, Period: period}
}

// String renders the key in storage form, e.g. "ranking:all:24h".
func (k Key) String() string {
	return fmt.Sprintf("ranking:%s:%s", k.Scope, k.Period)
}

// Entry holds one merged snapshot for a key. ComputedAt is monotonically
// non-decreasing per key; the store never replaces an entry with an older
// one. Per-asset staleness lives in each record's LastMergedAt, so a partial
// refresh leaves detectably older slices instead of discarding them.
type Entry struct {
	Key        Key                          `json:"key"`
	Records    map[string]model.AssetRecord `json:"records"`
	ComputedAt time.Time                    `json:"computed_at"`
	Generation uint64                       `json:"generation"`
	Tier       Tier                         `json:"-"`
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	out := &Entry{
		Key:        e.Key,
		ComputedAt: e.ComputedAt,
		Generation: e.Generation,
		Tier:       e.Tier,
		Records:    make(map[string]model.AssetRecord, len(e.Records)),
	}
	for symbol, record := range e.Records {
		out.Records[symbol] = record.Clone()
	}
	return out
}
