package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/logging"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/metrics"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

// Store is the two-tier cache facade. Gets check the memory tier first and
// fall back to the persistent tier, backfilling memory on a hit. Puts write
// both tiers. Writers for a given key are already serialized by the refresh
// coordinator's per-key job uniqueness, so the store only enforces the
// monotonicity guard, not broader locking.
type Store struct {
	memory     *MemoryCache
	persistent Persistent // nil when running memory-only
	mu         sync.Mutex // guards the read-compare-write in Put
	logger     *logging.Logger
}

// NewStore creates a store over the given tiers. persistent may be nil, in
// which case the cache is process-local only.
func NewStore(memory *MemoryCache, persistent Persistent, logger *logging.Logger) *Store {
	return &Store{
		memory:     memory,
		persistent: persistent,
		logger:     logger,
	}
}

// Get returns the newest available entry for the key, tagged with the tier
// that served it. Returns ErrNotFound when neither tier has it.
func (s *Store) Get(ctx context.Context, key Key) (*Entry, error) {
	if entry, ok := s.memory.Get(key); ok {
		metrics.RecordCacheHit(string(TierMemory))
		return entry, nil
	}

	if s.persistent == nil {
		metrics.RecordCacheMiss()
		return nil, ErrNotFound
	}

	entry, err := s.persistent.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		metrics.RecordCacheMiss()
		return nil, ErrNotFound
	}
	if err != nil {
		// A broken persistent tier degrades to a miss; the engine decides
		// whether to refresh.
		s.logger.Error("Persistent cache read failed", "key", key.String(), "error", err.Error())
		metrics.RecordCacheMiss()
		return nil, ErrNotFound
	}

	metrics.RecordCacheHit(string(TierPersistent))
	s.memory.Put(entry)
	return entry, nil
}

// Put commits a refresh result to both tiers. Entries never move backwards:
// a write with an older ComputedAt or Generation than the stored entry
// returns ErrStaleWrite and changes nothing.
//
// When partial is true the incoming entry covered only a subset of assets
// (some sources were down) and is field-merged into the existing entry
// instead of replacing it, so previously-good data for uncovered assets
// survives. Each record keeps its own LastMergedAt, which is how callers
// detect the older slices.
func (s *Store) Put(ctx context.Context, entry *Entry, partial bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.currentLocked(ctx, entry.Key)
	if existing != nil {
		if entry.ComputedAt.Before(existing.ComputedAt) || entry.Generation < existing.Generation {
			return fmt.Errorf("%w: key %s generation %d behind %d",
				ErrStaleWrite, entry.Key, entry.Generation, existing.Generation)
		}
		if partial {
			entry = mergeEntries(existing, entry)
		}
	}

	s.memory.Put(entry)
	if s.persistent != nil {
		if err := s.persistent.Put(ctx, entry); err != nil {
			// Memory tier is already updated; the persistent tier will
			// catch up on the next successful pass.
			s.logger.Error("Persistent cache write failed", "key", entry.Key.String(), "error", err.Error())
		}
	}
	return nil
}

// Invalidate clears both tiers for the key only.
func (s *Store) Invalidate(ctx context.Context, key Key) error {
	s.memory.Invalidate(key)
	if s.persistent != nil {
		if err := s.persistent.Invalidate(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// currentLocked loads the newest stored entry for the monotonicity check.
func (s *Store) currentLocked(ctx context.Context, key Key) *Entry {
	if entry, ok := s.memory.Get(key); ok {
		return entry
	}
	if s.persistent == nil {
		return nil
	}
	entry, err := s.persistent.Get(ctx, key)
	if err != nil {
		return nil
	}
	return entry
}

// mergeEntries overlays a partial pass onto the previous snapshot. Assets
// covered by the new pass take its fields; fields the new pass did not
// supply, and assets it did not cover at all, keep their previous values
// and provenance.
func mergeEntries(old, new *Entry) *Entry {
	merged := &Entry{
		Key:        new.Key,
		ComputedAt: new.ComputedAt,
		Generation: new.Generation,
		Records:    make(map[string]model.AssetRecord, len(old.Records)+len(new.Records)),
	}
	for symbol, record := range old.Records {
		merged.Records[symbol] = record.Clone()
	}
	for symbol, record := range new.Records {
		if existing, ok := merged.Records[symbol]; ok {
			merged.Records[symbol] = mergeRecord(existing, record)
		} else {
			merged.Records[symbol] = record.Clone()
		}
	}
	return merged
}

// mergeRecord keeps the new pass's fields and falls back to the old record
// for anything the new pass left unknown.
func mergeRecord(old, new model.AssetRecord) model.AssetRecord {
	out := new.Clone()

	if !out.HasField(model.FieldName) && old.HasField(model.FieldName) {
		out.Name = old.Name
		setProv(&out, model.FieldName, old)
	}
	if !out.HasField(model.FieldPrice) && old.Price != nil {
		price := *old.Price
		out.Price = &price
		setProv(&out, model.FieldPrice, old)
	}
	if !out.HasField(model.FieldMarketCap) && old.MarketCap != nil {
		mc := *old.MarketCap
		out.MarketCap = &mc
		setProv(&out, model.FieldMarketCap, old)
	}
	if !out.HasField(model.FieldVolume24H) && old.Volume24H != nil {
		vol := *old.Volume24H
		out.Volume24H = &vol
		setProv(&out, model.FieldVolume24H, old)
	}
	if !out.HasField(model.FieldRank) && old.Rank != nil {
		rank := *old.Rank
		out.Rank = &rank
		setProv(&out, model.FieldRank, old)
	}
	for period, change := range old.PercentChange {
		field := model.ChangeField(period)
		if out.HasField(field) {
			continue
		}
		if out.PercentChange == nil {
			out.PercentChange = make(map[model.Period]float64)
		}
		out.PercentChange[period] = change
		setProv(&out, field, old)
	}
	return out
}

// setProv copies a field's provenance from the old record.
func setProv(dst *model.AssetRecord, f model.Field, old model.AssetRecord) {
	p := old.Provenance[f]
	dst.SetProvenance(f, p.Source, p.ObservedAt)
}
