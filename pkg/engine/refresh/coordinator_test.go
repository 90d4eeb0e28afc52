package refresh

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/cache"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/merge"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/quality"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/ratelimit"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/sources"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/logging"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

// stubSource is a controllable Source for coordinator tests.
type stubSource struct {
	name    string
	quotes  map[string]sources.AssetQuote
	fail    bool
	block   bool // fetch blocks until the context ends
	fetches atomic.Int64
}

func (s *stubSource) Name() string          { return s.name }
func (s *stubSource) IsHealthy() bool       { return !s.fail }
func (s *stubSource) LastUpdate() time.Time { return time.Time{} }

func (s *stubSource) Fetch(ctx context.Context, _ sources.FetchRequest) sources.Response {
	s.fetches.Add(1)
	if s.block {
		<-ctx.Done()
		return sources.Response{
			Source:    s.name,
			Timestamp: time.Now().UTC(),
			Status:    sources.StatusTimeout,
			Reason:    ctx.Err().Error(),
		}
	}
	if s.fail {
		return sources.Response{
			Source:    s.name,
			Timestamp: time.Now().UTC(),
			Status:    sources.StatusFailed,
			Reason:    "stub failure",
		}
	}
	return sources.Response{
		Source:    s.name,
		Timestamp: time.Now().UTC(),
		Status:    sources.StatusSuccess,
		Quotes:    s.quotes,
	}
}

func btcQuote(price float64) map[string]sources.AssetQuote {
	p := decimal.NewFromFloat(price)
	return map[string]sources.AssetQuote{
		"BTC": {Symbol: "BTC", Price: &p},
	}
}

func newTestCoordinator(srcs []sources.Source, cfg Config) (*Coordinator, *cache.Store) {
	logger := logging.NewNoopLogger()
	memory := cache.NewMemoryCache(time.Minute, time.Minute, logger)
	store := cache.NewStore(memory, nil, logger)
	governor := ratelimit.NewGovernor(nil, logger)

	names := make([]string, 0, len(srcs))
	for _, src := range srcs {
		names = append(names, src.Name())
	}
	merger := merge.NewMerger(quality.NewScorer(nil, names), logger)

	return NewCoordinator(store, governor, merger, srcs, cfg, logger), store
}

func TestCoordinator_SuccessWritesCache(t *testing.T) {
	src := &stubSource{name: "a", quotes: btcQuote(100)}
	coord, store := newTestCoordinator([]sources.Source{src}, Config{})
	defer coord.Stop()

	key := cache.NewKey("", model.Period24H)
	job, created := coord.Trigger(key)
	require.NotNil(t, job)
	assert.True(t, created)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status := coord.Wait(ctx, job)
	assert.Equal(t, StatusSucceeded, status)

	entry, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, job.Generation, entry.Generation)
	require.Contains(t, entry.Records, "BTC")

	view, err := coord.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, view.Status)
	assert.Equal(t, 1.0, view.Coverage)
	require.NotNil(t, view.FinishedAt)
}

func TestCoordinator_ConcurrentTriggersJoinOneJob(t *testing.T) {
	src := &stubSource{name: "a", quotes: btcQuote(100), block: true}
	coord, _ := newTestCoordinator([]sources.Source{src}, Config{JobTimeout: 500 * time.Millisecond})
	defer coord.Stop()

	key := cache.NewKey("", model.Period24H)

	const callers = 32
	jobs := make([]*Job, callers)
	createdCount := atomic.Int64{}
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, created := coord.Trigger(key)
			jobs[i] = job
			if created {
				createdCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), createdCount.Load(), "exactly one trigger creates the job")
	for i := 1; i < callers; i++ {
		assert.Equal(t, jobs[0].ID, jobs[i].ID, "all callers join the same job")
	}
	assert.Equal(t, 1, coord.Inflight())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	coord.Wait(ctx, jobs[0])
	assert.LessOrEqual(t, src.fetches.Load(), int64(1), "joined triggers never fan out twice")
}

func TestCoordinator_DistinctKeysRunIndependently(t *testing.T) {
	src := &stubSource{name: "a", quotes: btcQuote(100)}
	coord, _ := newTestCoordinator([]sources.Source{src}, Config{})
	defer coord.Stop()

	jobA, createdA := coord.Trigger(cache.NewKey("", model.Period24H))
	jobB, createdB := coord.Trigger(cache.NewKey("", model.Period7D))
	require.NotNil(t, jobA)
	require.NotNil(t, jobB)
	assert.True(t, createdA)
	assert.True(t, createdB)
	assert.NotEqual(t, jobA.ID, jobB.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	coord.Wait(ctx, jobA)
	coord.Wait(ctx, jobB)
}

func TestCoordinator_AllSourcesFailed(t *testing.T) {
	srcs := []sources.Source{
		&stubSource{name: "a", fail: true},
		&stubSource{name: "b", fail: true},
	}
	coord, store := newTestCoordinator(srcs, Config{})
	defer coord.Stop()

	key := cache.NewKey("", model.Period24H)
	job, _ := coord.Trigger(key)
	require.NotNil(t, job)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status := coord.Wait(ctx, job)
	assert.Equal(t, StatusFailed, status)

	_, err := store.Get(context.Background(), key)
	assert.ErrorIs(t, err, cache.ErrNotFound, "failed pass must not touch the cache")

	view, err := coord.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, ErrAllSourcesFailed.Error(), view.Reason)
}

func TestCoordinator_PartialCoveragePreservesOldData(t *testing.T) {
	good := &stubSource{name: "a", quotes: btcQuote(105)}
	bad := &stubSource{name: "b", fail: true}
	coord, store := newTestCoordinator([]sources.Source{good, bad}, Config{})
	defer coord.Stop()

	key := cache.NewKey("", model.Period24H)

	// Seed a previous snapshot containing an asset only the failing source
	// would cover this pass.
	ethPrice := decimal.NewFromFloat(2000)
	seeded := &cache.Entry{
		Key:        key,
		ComputedAt: time.Now().UTC().Add(-time.Hour),
		Generation: 0,
		Records: map[string]model.AssetRecord{
			"ETH": {Symbol: "ETH", Price: &ethPrice, LastMergedAt: time.Now().UTC().Add(-time.Hour)},
		},
	}
	require.NoError(t, store.Put(context.Background(), seeded, false))

	job, _ := coord.Trigger(key)
	require.NotNil(t, job)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status := coord.Wait(ctx, job)
	assert.Equal(t, StatusSucceeded, status)

	view, err := coord.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.5, view.Coverage)

	entry, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Contains(t, entry.Records, "BTC", "new pass data present")
	assert.Contains(t, entry.Records, "ETH", "uncovered asset survives a partial pass")
}

func TestCoordinator_Timeout(t *testing.T) {
	src := &stubSource{name: "a", block: true}
	coord, _ := newTestCoordinator([]sources.Source{src}, Config{JobTimeout: 50 * time.Millisecond})
	defer coord.Stop()

	job, _ := coord.Trigger(cache.NewKey("", model.Period24H))
	require.NotNil(t, job)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status := coord.Wait(ctx, job)
	assert.Equal(t, StatusTimedOut, status)
	assert.Equal(t, 0, coord.Inflight())
}

func TestCoordinator_InvalidateCancelsInflight(t *testing.T) {
	src := &stubSource{name: "a", block: true}
	coord, _ := newTestCoordinator([]sources.Source{src}, Config{JobTimeout: 5 * time.Second})
	defer coord.Stop()

	key := cache.NewKey("", model.Period24H)
	job, _ := coord.Trigger(key)
	require.NotNil(t, job)

	require.NoError(t, coord.Invalidate(context.Background(), key))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status := coord.Wait(ctx, job)
	assert.Equal(t, StatusCancelled, status)
}

func TestCoordinator_RetriggerAfterTerminal(t *testing.T) {
	src := &stubSource{name: "a", quotes: btcQuote(100)}
	coord, _ := newTestCoordinator([]sources.Source{src}, Config{})
	defer coord.Stop()

	key := cache.NewKey("", model.Period24H)
	first, _ := coord.Trigger(key)
	require.NotNil(t, first)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	coord.Wait(ctx, first)

	second, created := coord.Trigger(key)
	require.NotNil(t, second)
	assert.True(t, created, "terminal job releases the key slot")
	assert.NotEqual(t, first.ID, second.ID)
	assert.Greater(t, second.Generation, first.Generation)
	coord.Wait(ctx, second)
}

func TestCoordinator_JobLookup(t *testing.T) {
	src := &stubSource{name: "a", quotes: btcQuote(100)}
	coord, _ := newTestCoordinator([]sources.Source{src}, Config{})
	defer coord.Stop()

	_, err := coord.Job("no-such-id")
	assert.ErrorIs(t, err, ErrJobNotFound)

	job, _ := coord.Trigger(cache.NewKey("", model.Period24H))
	require.NotNil(t, job)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	coord.Wait(ctx, job)

	// Terminal jobs stay queryable within the retention window.
	view, err := coord.Job(job.ID)
	require.NoError(t, err)
	assert.True(t, view.Status.Terminal())
}

func TestCoordinator_StopRejectsTriggers(t *testing.T) {
	src := &stubSource{name: "a", quotes: btcQuote(100)}
	coord, _ := newTestCoordinator([]sources.Source{src}, Config{})
	coord.Stop()

	job, created := coord.Trigger(cache.NewKey("", model.Period24H))
	assert.Nil(t, job)
	assert.False(t, created)
}

func TestCoordinator_PendingWhileRateLimitedThenAdmitted(t *testing.T) {
	logger := logging.NewNoopLogger()
	src := &stubSource{name: "alpha", quotes: btcQuote(100)}

	// Exhaust a 1-call quota up front so the job's first admission attempt
	// is rejected and it has to retry until the window refills.
	governor := ratelimit.NewGovernor(map[string]ratelimit.Quota{
		"alpha": {Calls: 1, Window: 300 * time.Millisecond},
	}, logger)
	ok, _ := governor.Acquire("alpha")
	require.True(t, ok)

	memory := cache.NewMemoryCache(time.Minute, time.Minute, logger)
	store := cache.NewStore(memory, nil, logger)
	merger := merge.NewMerger(quality.NewScorer(nil, []string{"alpha"}), logger)
	coord := NewCoordinator(store, governor, merger, []sources.Source{src}, Config{
		JobTimeout:        5 * time.Second,
		AdmissionInterval: 25 * time.Millisecond,
	}, logger)
	defer coord.Stop()

	key := cache.NewKey("", model.Period24H)
	job, created := coord.Trigger(key)
	require.NotNil(t, job)
	require.True(t, created)

	assert.Equal(t, StatusPending, coord.Status(job))
	assert.Equal(t, int64(0), src.fetches.Load())

	// Still pending mid-window: the admission loop is retrying, not failing.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StatusPending, coord.Status(job))
	assert.Equal(t, int64(0), src.fetches.Load())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status := coord.Wait(ctx, job)
	assert.Equal(t, StatusSucceeded, status)
	assert.Equal(t, int64(1), src.fetches.Load())

	entry, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Contains(t, entry.Records, "BTC")
}
