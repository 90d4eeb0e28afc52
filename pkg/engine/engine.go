package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/cache"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/freshness"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/refresh"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/sources"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/logging"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/metrics"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

// DefaultWait bounds how long a caller blocks on a joined refresh before
// falling back to the best available snapshot.
const DefaultWait = 15 * time.Second

// Options tunes one GetRanking call.
type Options struct {
	// Force triggers a refresh even when the cache is fresh.
	Force bool
	// Wait bounds the block on an in-flight refresh. Zero means
	// fire-and-forget: trigger and immediately return the best snapshot.
	Wait time.Duration
}

// FreshnessInfo describes the age and provenance of a served snapshot.
type FreshnessInfo struct {
	ComputedAt  time.Time     `json:"computed_at"`
	Age         time.Duration `json:"age"`
	Threshold   time.Duration `json:"threshold"`
	Fresh       bool          `json:"fresh"`
	StaleServed bool          `json:"stale_served"`
	Tier        cache.Tier    `json:"tier,omitempty"`
	JobID       string        `json:"job_id,omitempty"`
}

// Ranking is the engine's answer to a ranking request.
type Ranking struct {
	Period    model.Period
	Scope     string
	Records   []model.AssetRecord
	Freshness FreshnessInfo
}

// Engine coordinates the cache, freshness policy and refresh jobs. Request
// paths never block on upstream network calls: they serve an available
// snapshot, or register interest in an in-flight job and return once it
// terminates or a bounded wait elapses.
type Engine struct {
	store       *cache.Store
	coordinator *refresh.Coordinator
	policy      *freshness.Policy
	srcs        []sources.Source
	logger      *logging.Logger
}

// New creates an engine over already-wired components.
func New(store *cache.Store, coordinator *refresh.Coordinator, policy *freshness.Policy,
	srcs []sources.Source, logger *logging.Logger) *Engine {
	return &Engine{
		store:       store,
		coordinator: coordinator,
		policy:      policy,
		srcs:        srcs,
		logger:      logger,
	}
}

// GetRanking returns the canonical records for the scope and period together
// with freshness info. Stale data is preferred over errors whenever any
// snapshot exists; only a cold start with nothing cached and nothing
// responding yields a hard error.
func (e *Engine) GetRanking(ctx context.Context, period model.Period, scope string, opts Options) (*Ranking, error) {
	key := cache.NewKey(scope, period)
	now := time.Now().UTC()

	entry, err := e.store.Get(ctx, key)
	if err != nil && !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}

	if entry != nil && !opts.Force {
		if e.policy.IsFresh(entry.ComputedAt, period, now) {
			return e.ranking(entry, period, scope, now, ""), nil
		}
		// Under sustained pressure, shed upstream load: serve a slightly
		// stale tier up to the hard bound instead of piling on refreshes.
		if e.policy.PreferCacheUnderLoad(entry.ComputedAt, period, now, e.coordinator.Inflight()) {
			e.logger.Debug("Serving cache under load",
				"key", key.String(),
				"age", now.Sub(entry.ComputedAt).String())
			return e.ranking(entry, period, scope, now, ""), nil
		}
	}

	job, created := e.coordinator.Trigger(key)
	if job == nil {
		if entry != nil {
			return e.ranking(entry, period, scope, now, ""), nil
		}
		return nil, ErrStopped
	}
	if created {
		e.logger.Debug("Refresh triggered by ranking request",
			"key", key.String(), "job_id", job.ID)
	}

	if opts.Wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, opts.Wait)
		defer cancel()
		e.coordinator.Wait(waitCtx, job)

		if fresh, err := e.store.Get(ctx, key); err == nil {
			entry = fresh
		}
	}

	if entry == nil {
		// Nothing cached before the job and nothing produced by it.
		return nil, ErrNoData
	}
	return e.ranking(entry, period, scope, time.Now().UTC(), job.ID), nil
}

// TriggerRefresh starts (or joins) a background refresh for the scope and
// period, returning the job ID. Without force, a fresh cache entry
// short-circuits: the empty job ID means nothing needed doing.
func (e *Engine) TriggerRefresh(ctx context.Context, period model.Period, scope string, force bool) (string, error) {
	key := cache.NewKey(scope, period)

	if !force {
		if entry, err := e.store.Get(ctx, key); err == nil {
			if e.policy.IsFresh(entry.ComputedAt, period, time.Now().UTC()) {
				return "", nil
			}
		}
	}

	job, _ := e.coordinator.Trigger(key)
	if job == nil {
		return "", ErrStopped
	}
	return job.ID, nil
}

// TriggerAll starts refreshes for every given period of a scope, as one job
// per (scope, period) key. Used by the startup warmup and the refresh API.
func (e *Engine) TriggerAll(ctx context.Context, scope string, periods []model.Period, force bool) []string {
	ids := make([]string, 0, len(periods))
	for _, period := range periods {
		id, err := e.TriggerRefresh(ctx, period, scope, force)
		if err == nil && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// RefreshStatus returns a snapshot of the job with the given ID.
func (e *Engine) RefreshStatus(jobID string) (refresh.View, error) {
	return e.coordinator.Job(jobID)
}

// OnRefresh registers fn to receive the merged snapshot after every
// successful refresh, regardless of what triggered it. Must be called
// before the first refresh is triggered.
func (e *Engine) OnRefresh(fn func(*Ranking)) {
	e.coordinator.OnFinished(func(key cache.Key, status refresh.Status) {
		if status != refresh.StatusSucceeded {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		entry, err := e.store.Get(ctx, key)
		if err != nil {
			return
		}
		fn(e.ranking(entry, key.Period, key.Scope, time.Now().UTC(), ""))
	})
}

// Invalidate clears the cache for the scope and period and cancels any
// in-flight refresh for it.
func (e *Engine) Invalidate(ctx context.Context, period model.Period, scope string) error {
	return e.coordinator.Invalidate(ctx, cache.NewKey(scope, period))
}

// Sources exposes the configured sources for health reporting.
func (e *Engine) Sources() []sources.Source {
	return e.srcs
}

// SourceDistribution counts assets per primary (price-contributing) source
// in a ranking.
func SourceDistribution(records []model.AssetRecord) map[string]int {
	distribution := make(map[string]int)
	for _, record := range records {
		if prov, ok := record.Provenance[model.FieldPrice]; ok {
			distribution[prov.Source]++
		}
	}
	return distribution
}

// ranking assembles the response and tags it stale when past the threshold.
func (e *Engine) ranking(entry *cache.Entry, period model.Period, scope string, now time.Time, jobID string) *Ranking {
	fresh := e.policy.IsFresh(entry.ComputedAt, period, now)
	info := FreshnessInfo{
		ComputedAt:  entry.ComputedAt,
		Age:         now.Sub(entry.ComputedAt),
		Threshold:   e.policy.Threshold(period),
		Fresh:       fresh,
		StaleServed: !fresh,
		Tier:        entry.Tier,
		JobID:       jobID,
	}
	if info.StaleServed {
		metrics.RecordStaleServed()
	}

	return &Ranking{
		Period:    period,
		Scope:     scope,
		Records:   sortRecords(entry.Records),
		Freshness: info,
	}
}

// sortRecords orders assets by provider rank where known, then market cap
// descending, then symbol, so pagination is stable across requests.
func sortRecords(records map[string]model.AssetRecord) []model.AssetRecord {
	out := make([]model.AssetRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.Rank != nil && b.Rank != nil && *a.Rank != *b.Rank:
			return *a.Rank < *b.Rank
		case a.Rank != nil && b.Rank == nil:
			return true
		case a.Rank == nil && b.Rank != nil:
			return false
		}
		if a.MarketCap != nil && b.MarketCap != nil && !a.MarketCap.Equal(*b.MarketCap) {
			return a.MarketCap.GreaterThan(*b.MarketCap)
		}
		if (a.MarketCap != nil) != (b.MarketCap != nil) {
			return a.MarketCap != nil
		}
		return a.Symbol < b.Symbol
	})
	return out
}
