package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/cache"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/freshness"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/merge"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/quality"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/ratelimit"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/refresh"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/sources"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/logging"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

// stubSource is a controllable Source for engine tests.
type stubSource struct {
	name    string
	quotes  map[string]sources.AssetQuote
	fail    bool
	fetches atomic.Int64
}

func (s *stubSource) Name() string          { return s.name }
func (s *stubSource) IsHealthy() bool       { return !s.fail }
func (s *stubSource) LastUpdate() time.Time { return time.Time{} }

func (s *stubSource) Fetch(_ context.Context, _ sources.FetchRequest) sources.Response {
	s.fetches.Add(1)
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

func quoteSet(prices map[string]float64) map[string]sources.AssetQuote {
	quotes := make(map[string]sources.AssetQuote, len(prices))
	rank := 1
	for symbol, price := range prices {
		p := decimal.NewFromFloat(price)
		r := rank
		quotes[symbol] = sources.AssetQuote{Symbol: symbol, Price: &p, Rank: &r}
		rank++
	}
	return quotes
}

func newTestEngine(srcs []sources.Source) (*Engine, *cache.Store, *refresh.Coordinator) {
	logger := logging.NewNoopLogger()
	memory := cache.NewMemoryCache(time.Minute, time.Minute, logger)
	store := cache.NewStore(memory, nil, logger)
	governor := ratelimit.NewGovernor(nil, logger)

	names := make([]string, 0, len(srcs))
	for _, src := range srcs {
		names = append(names, src.Name())
	}
	merger := merge.NewMerger(quality.NewScorer(nil, names), logger)
	coordinator := refresh.NewCoordinator(store, governor, merger, srcs, refresh.Config{}, logger)
	policy := freshness.NewPolicy(0, 0, 0)

	return New(store, coordinator, policy, srcs, logger), store, coordinator
}

func TestEngine_ColdStartFetchesAndServes(t *testing.T) {
	src := &stubSource{name: "a", quotes: quoteSet(map[string]float64{"BTC": 100})}
	eng, _, coord := newTestEngine([]sources.Source{src})
	defer coord.Stop()

	ranking, err := eng.GetRanking(context.Background(), model.Period24H, "", Options{Wait: 5 * time.Second})
	require.NoError(t, err)
	require.Len(t, ranking.Records, 1)
	assert.Equal(t, "BTC", ranking.Records[0].Symbol)
	assert.True(t, ranking.Freshness.Fresh)
	assert.False(t, ranking.Freshness.StaleServed)
}

func TestEngine_ColdStartAllFailedIsError(t *testing.T) {
	src := &stubSource{name: "a", fail: true}
	eng, _, coord := newTestEngine([]sources.Source{src})
	defer coord.Stop()

	_, err := eng.GetRanking(context.Background(), model.Period24H, "", Options{Wait: 5 * time.Second})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestEngine_FreshCacheSkipsRefresh(t *testing.T) {
	src := &stubSource{name: "a", quotes: quoteSet(map[string]float64{"BTC": 100})}
	eng, _, coord := newTestEngine([]sources.Source{src})
	defer coord.Stop()

	_, err := eng.GetRanking(context.Background(), model.Period24H, "", Options{Wait: 5 * time.Second})
	require.NoError(t, err)
	fetched := src.fetches.Load()

	// The snapshot is fresh: no further upstream calls.
	for i := 0; i < 5; i++ {
		ranking, err := eng.GetRanking(context.Background(), model.Period24H, "", Options{Wait: 5 * time.Second})
		require.NoError(t, err)
		assert.True(t, ranking.Freshness.Fresh)
	}
	assert.Equal(t, fetched, src.fetches.Load())
}

func TestEngine_StaleServedWhenSourcesDown(t *testing.T) {
	src := &stubSource{name: "a", quotes: quoteSet(map[string]float64{"BTC": 100})}
	eng, store, coord := newTestEngine([]sources.Source{src})
	defer coord.Stop()

	// Seed a snapshot well past the 24h freshness threshold.
	key := cache.NewKey("", model.Period24H)
	price := decimal.NewFromFloat(90)
	stale := &cache.Entry{
		Key:        key,
		ComputedAt: time.Now().UTC().Add(-30 * time.Minute),
		Generation: 1,
		Records: map[string]model.AssetRecord{
			"BTC": {Symbol: "BTC", Price: &price},
		},
	}
	require.NoError(t, store.Put(context.Background(), stale, false))

	// Upstream goes down; the refresh fails but the stale snapshot serves.
	src.fail = true
	ranking, err := eng.GetRanking(context.Background(), model.Period24H, "", Options{Wait: 5 * time.Second})
	require.NoError(t, err, "stale data must be preferred over an error")
	require.Len(t, ranking.Records, 1)
	assert.True(t, ranking.Freshness.StaleServed)
	assert.False(t, ranking.Freshness.Fresh)
}

func TestEngine_ForceRefreshesFreshCache(t *testing.T) {
	src := &stubSource{name: "a", quotes: quoteSet(map[string]float64{"BTC": 100})}
	eng, _, coord := newTestEngine([]sources.Source{src})
	defer coord.Stop()

	_, err := eng.GetRanking(context.Background(), model.Period24H, "", Options{Wait: 5 * time.Second})
	require.NoError(t, err)
	fetched := src.fetches.Load()

	_, err = eng.GetRanking(context.Background(), model.Period24H, "", Options{Force: true, Wait: 5 * time.Second})
	require.NoError(t, err)
	assert.Greater(t, src.fetches.Load(), fetched)
}

func TestEngine_TriggerRefreshShortCircuitsWhenFresh(t *testing.T) {
	src := &stubSource{name: "a", quotes: quoteSet(map[string]float64{"BTC": 100})}
	eng, _, coord := newTestEngine([]sources.Source{src})
	defer coord.Stop()

	_, err := eng.GetRanking(context.Background(), model.Period24H, "", Options{Wait: 5 * time.Second})
	require.NoError(t, err)

	id, err := eng.TriggerRefresh(context.Background(), model.Period24H, "", false)
	require.NoError(t, err)
	assert.Empty(t, id, "fresh cache needs no refresh")

	id, err = eng.TriggerRefresh(context.Background(), model.Period24H, "", true)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	view, err := eng.RefreshStatus(id)
	require.NoError(t, err)
	assert.Equal(t, cache.NewKey("", model.Period24H).String(), view.Key)
}

func TestEngine_TriggerAll(t *testing.T) {
	src := &stubSource{name: "a", quotes: quoteSet(map[string]float64{"BTC": 100})}
	eng, _, coord := newTestEngine([]sources.Source{src})
	defer coord.Stop()

	ids := eng.TriggerAll(context.Background(), "", []model.Period{model.Period24H, model.Period7D, model.Period30D}, true)
	assert.Len(t, ids, 3)
}

func TestEngine_RankingOrderStable(t *testing.T) {
	// One source reports ranks, another only prices.
	p1 := decimal.NewFromFloat(100)
	p2 := decimal.NewFromFloat(2000)
	r1, r2 := 2, 1
	src := &stubSource{name: "a", quotes: map[string]sources.AssetQuote{
		"BTC": {Symbol: "BTC", Price: &p1, Rank: &r1},
		"ETH": {Symbol: "ETH", Price: &p2, Rank: &r2},
	}}
	eng, _, coord := newTestEngine([]sources.Source{src})
	defer coord.Stop()

	ranking, err := eng.GetRanking(context.Background(), model.Period24H, "", Options{Wait: 5 * time.Second})
	require.NoError(t, err)
	require.Len(t, ranking.Records, 2)
	assert.Equal(t, "ETH", ranking.Records[0].Symbol, "lower rank number sorts first")
	assert.Equal(t, "BTC", ranking.Records[1].Symbol)
}

func TestEngine_Invalidate(t *testing.T) {
	src := &stubSource{name: "a", quotes: quoteSet(map[string]float64{"BTC": 100})}
	eng, store, coord := newTestEngine([]sources.Source{src})
	defer coord.Stop()

	_, err := eng.GetRanking(context.Background(), model.Period24H, "", Options{Wait: 5 * time.Second})
	require.NoError(t, err)

	require.NoError(t, eng.Invalidate(context.Background(), model.Period24H, ""))
	_, err = store.Get(context.Background(), cache.NewKey("", model.Period24H))
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestSourceDistribution(t *testing.T) {
	records := []model.AssetRecord{
		{Symbol: "BTC", Provenance: map[model.Field]model.Provenance{
			model.FieldPrice: {Source: "coinmarketcap"},
		}},
		{Symbol: "ETH", Provenance: map[model.Field]model.Provenance{
			model.FieldPrice: {Source: "coinmarketcap"},
		}},
		{Symbol: "DOGE", Provenance: map[model.Field]model.Provenance{
			model.FieldPrice: {Source: "binance"},
		}},
		{Symbol: "XRP"}, // no price provenance at all
	}

	dist := SourceDistribution(records)
	assert.Equal(t, map[string]int{"coinmarketcap": 2, "binance": 1}, dist)
}

func TestEngine_OnRefreshDeliversCompletedSnapshots(t *testing.T) {
	src := &stubSource{name: "a", quotes: quoteSet(map[string]float64{"BTC": 100, "ETH": 50})}
	eng, _, coord := newTestEngine([]sources.Source{src})
	defer coord.Stop()

	updates := make(chan *Ranking, 4)
	eng.OnRefresh(func(r *Ranking) { updates <- r })

	// A background trigger, not a ranking request, must reach subscribers.
	id, err := eng.TriggerRefresh(context.Background(), model.Period24H, "", true)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case ranking := <-updates:
		assert.Equal(t, model.Period24H, ranking.Period)
		assert.Len(t, ranking.Records, 2)
		assert.True(t, ranking.Freshness.Fresh)
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot delivered after a successful refresh")
	}
}

func TestEngine_OnRefreshSkipsFailedJobs(t *testing.T) {
	src := &stubSource{name: "a", fail: true}
	eng, _, coord := newTestEngine([]sources.Source{src})
	defer coord.Stop()

	updates := make(chan *Ranking, 4)
	eng.OnRefresh(func(r *Ranking) { updates <- r })

	id, err := eng.TriggerRefresh(context.Background(), model.Period24H, "", true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		view, err := eng.RefreshStatus(id)
		return err == nil && view.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case <-updates:
		t.Fatal("failed refresh must not be streamed")
	case <-time.After(100 * time.Millisecond):
	}
}
