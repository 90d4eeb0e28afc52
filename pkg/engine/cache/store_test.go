package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/logging"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

// fakePersistent is an in-memory stand-in for the Redis tier.
type fakePersistent struct {
	entries map[Key]*Entry
	getErr  error
	putErr  error
}

func newFakePersistent() *fakePersistent {
	return &fakePersistent{entries: make(map[Key]*Entry)}
}

func (f *fakePersistent) Get(_ context.Context, key Key) (*Entry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	entry, ok := f.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := entry.Clone()
	out.Tier = TierPersistent
	return out, nil
}

func (f *fakePersistent) Put(_ context.Context, entry *Entry) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.entries[entry.Key] = entry.Clone()
	return nil
}

func (f *fakePersistent) Invalidate(_ context.Context, key Key) error {
	delete(f.entries, key)
	return nil
}

func newTestStore(persistent Persistent) *Store {
	memory := NewMemoryCache(time.Minute, time.Minute, logging.NewNoopLogger())
	return NewStore(memory, persistent, logging.NewNoopLogger())
}

func TestStore_MissOnEmpty(t *testing.T) {
	store := newTestStore(newFakePersistent())

	_, err := store.Get(context.Background(), NewKey("", model.Period24H))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_PutThenGet(t *testing.T) {
	store := newTestStore(newFakePersistent())
	key := NewKey("", model.Period24H)

	entry := testEntry(key, 1, time.Now().UTC())
	require.NoError(t, store.Put(context.Background(), entry, false))

	got, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, TierMemory, got.Tier)
	assert.Equal(t, uint64(1), got.Generation)
}

func TestStore_PersistentFallbackBackfillsMemory(t *testing.T) {
	persistent := newFakePersistent()
	store := newTestStore(persistent)
	key := NewKey("", model.Period24H)

	// Entry only in the persistent tier, as after a process restart.
	entry := testEntry(key, 3, time.Now().UTC())
	require.NoError(t, persistent.Put(context.Background(), entry))

	got, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, TierPersistent, got.Tier)

	// The hit backfilled memory; the next get is served from there.
	got, err = store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, TierMemory, got.Tier)
}

func TestStore_BrokenPersistentDegradesToMiss(t *testing.T) {
	persistent := newFakePersistent()
	persistent.getErr = errors.New("connection refused")
	store := newTestStore(persistent)

	_, err := store.Get(context.Background(), NewKey("", model.Period24H))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_MemoryOnly(t *testing.T) {
	store := newTestStore(nil)
	key := NewKey("", model.Period24H)

	require.NoError(t, store.Put(context.Background(), testEntry(key, 1, time.Now().UTC()), false))

	got, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, TierMemory, got.Tier)
}

func TestStore_RejectsOlderWrite(t *testing.T) {
	store := newTestStore(newFakePersistent())
	key := NewKey("", model.Period24H)
	now := time.Now().UTC()

	require.NoError(t, store.Put(context.Background(), testEntry(key, 2, now), false))

	// A late writer from an earlier pass must be dropped.
	err := store.Put(context.Background(), testEntry(key, 1, now.Add(-time.Minute)), false)
	assert.ErrorIs(t, err, ErrStaleWrite)

	got, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Generation)
	assert.Equal(t, now, got.ComputedAt)
}

func TestStore_RejectsOlderGeneration(t *testing.T) {
	store := newTestStore(newFakePersistent())
	key := NewKey("", model.Period24H)
	now := time.Now().UTC()

	require.NoError(t, store.Put(context.Background(), testEntry(key, 5, now), false))

	err := store.Put(context.Background(), testEntry(key, 4, now), false)
	assert.ErrorIs(t, err, ErrStaleWrite)
}

func TestStore_PartialPutMergesFields(t *testing.T) {
	store := newTestStore(newFakePersistent())
	key := NewKey("", model.Period24H)
	earlier := time.Now().UTC().Add(-time.Minute)
	later := time.Now().UTC()

	// Full snapshot with price, market cap and a second asset.
	price := decimal.NewFromFloat(100)
	mcap := decimal.NewFromFloat(1e9)
	ethPrice := decimal.NewFromFloat(2000)
	full := &Entry{
		Key: key, ComputedAt: earlier, Generation: 1,
		Records: map[string]model.AssetRecord{
			"BTC": {
				Symbol: "BTC", Price: &price, MarketCap: &mcap,
				Provenance: map[model.Field]model.Provenance{
					model.FieldPrice:     {Source: "coinmarketcap", ObservedAt: earlier},
					model.FieldMarketCap: {Source: "coinmarketcap", ObservedAt: earlier},
				},
				LastMergedAt: earlier,
			},
			"ETH": {
				Symbol: "ETH", Price: &ethPrice,
				Provenance: map[model.Field]model.Provenance{
					model.FieldPrice: {Source: "coinmarketcap", ObservedAt: earlier},
				},
				LastMergedAt: earlier,
			},
		},
	}
	require.NoError(t, store.Put(context.Background(), full, false))

	// Partial pass: only a fresher BTC price, no market cap, no ETH.
	newPrice := decimal.NewFromFloat(105)
	partial := &Entry{
		Key: key, ComputedAt: later, Generation: 2,
		Records: map[string]model.AssetRecord{
			"BTC": {
				Symbol: "BTC", Price: &newPrice,
				Provenance: map[model.Field]model.Provenance{
					model.FieldPrice: {Source: "binance", ObservedAt: later},
				},
				LastMergedAt: later,
			},
		},
	}
	require.NoError(t, store.Put(context.Background(), partial, true))

	got, err := store.Get(context.Background(), key)
	require.NoError(t, err)

	btc := got.Records["BTC"]
	require.NotNil(t, btc.Price)
	assert.True(t, btc.Price.Equal(newPrice), "fresh field wins")
	require.NotNil(t, btc.MarketCap, "field the partial pass did not cover survives")
	assert.True(t, btc.MarketCap.Equal(mcap))
	assert.Equal(t, "binance", btc.Provenance[model.FieldPrice].Source)
	assert.Equal(t, "coinmarketcap", btc.Provenance[model.FieldMarketCap].Source)
	assert.Equal(t, later, btc.LastMergedAt)

	// The uncovered asset keeps its previous snapshot, visibly older.
	eth, ok := got.Records["ETH"]
	require.True(t, ok, "asset missing from the partial pass survives")
	assert.Equal(t, earlier, eth.LastMergedAt)

	// The entry itself advanced.
	assert.Equal(t, uint64(2), got.Generation)
	assert.Equal(t, later, got.ComputedAt)
}

func TestStore_NonPartialPutReplaces(t *testing.T) {
	store := newTestStore(newFakePersistent())
	key := NewKey("", model.Period24H)
	now := time.Now().UTC()

	first := testEntry(key, 1, now.Add(-time.Minute))
	first.Records["ETH"] = model.AssetRecord{Symbol: "ETH"}
	require.NoError(t, store.Put(context.Background(), first, false))

	second := testEntry(key, 2, now)
	require.NoError(t, store.Put(context.Background(), second, false))

	got, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.NotContains(t, got.Records, "ETH", "full snapshot replaces the previous one")
}

func TestStore_Invalidate(t *testing.T) {
	persistent := newFakePersistent()
	store := newTestStore(persistent)
	key := NewKey("", model.Period24H)

	require.NoError(t, store.Put(context.Background(), testEntry(key, 1, time.Now().UTC()), false))
	require.NoError(t, store.Invalidate(context.Background(), key))

	_, err := store.Get(context.Background(), key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, persistent.entries)
}

func TestStore_PersistentWriteFailureKeepsMemory(t *testing.T) {
	persistent := newFakePersistent()
	persistent.putErr = errors.New("connection refused")
	store := newTestStore(persistent)
	key := NewKey("", model.Period24H)

	// Persistent write failure is logged, not fatal.
	require.NoError(t, store.Put(context.Background(), testEntry(key, 1, time.Now().UTC()), false))

	got, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, TierMemory, got.Tier)
}
