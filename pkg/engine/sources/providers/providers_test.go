package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/sources"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

func TestRegistry_AllProvidersRegistered(t *testing.T) {
	registered := sources.List()
	names := make(map[string]bool, len(registered))
	for _, name := range registered {
		names[name] = true
	}

	for _, expected := range []string{
		"coinmarketcap", "cryptocompare", "coinapi", "coinpaprika", "binance", "coingecko",
	} {
		assert.True(t, names[expected], "provider %s must be registered", expected)
	}
}

func TestCreate_UnknownProvider(t *testing.T) {
	_, err := sources.Create("no-such-source", nil)
	assert.ErrorIs(t, err, sources.ErrUnknownSource)
}

func TestCoinMarketCap_RequiresAPIKey(t *testing.T) {
	_, err := sources.Create("coinmarketcap", nil)
	assert.Error(t, err, "coinmarketcap without an api_key must fail at construction")

	source, err := sources.Create("coinmarketcap", map[string]interface{}{
		"api_key": "test-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "coinmarketcap", source.Name())
	assert.True(t, source.IsHealthy())
}

func TestCoinAPI_RequiresAPIKey(t *testing.T) {
	_, err := sources.Create("coinapi", nil)
	assert.Error(t, err)

	source, err := sources.Create("coinapi", map[string]interface{}{
		"api_key": "test-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "coinapi", source.Name())
}

func TestKeylessProviders_Construct(t *testing.T) {
	for _, name := range []string{"cryptocompare", "coinpaprika", "binance", "coingecko"} {
		t.Run(name, func(t *testing.T) {
			source, err := sources.Create(name, nil)
			require.NoError(t, err)
			assert.Equal(t, name, source.Name())
			assert.True(t, source.IsHealthy())
			assert.True(t, source.LastUpdate().IsZero())
		})
	}
}

func TestFilterQuotes(t *testing.T) {
	quotes := map[string]sources.AssetQuote{
		"BTC": {Symbol: "BTC"},
		"ETH": {Symbol: "ETH"},
	}

	// Empty request keeps the full listing.
	assert.Len(t, filterQuotes(quotes, nil), 2)

	// Requested symbols are matched case-insensitively.
	filtered := filterQuotes(quotes, []string{"btc", " ETH ", "XRP"})
	assert.Len(t, filtered, 2)
	assert.Contains(t, filtered, "BTC")
	assert.Contains(t, filtered, "ETH")
}

func TestChangeMap(t *testing.T) {
	v1 := -1.5
	v7 := 3.2
	out := changeMap(map[model.Period]*float64{
		model.Period24H: &v1,
		model.Period7D:  &v7,
		model.Period30D: nil,
	})
	assert.Equal(t, map[model.Period]float64{
		model.Period24H: -1.5,
		model.Period7D:  3.2,
	}, out)

	assert.Nil(t, changeMap(map[model.Period]*float64{model.Period24H: nil}))
}

func TestBinance_FetchIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	source, err := sources.Create("binance", nil)
	require.NoError(t, err)

	resp := source.Fetch(context.Background(), sources.FetchRequest{Symbols: []string{"BTC"}})
	if !resp.Status.Usable() {
		t.Skipf("binance unavailable: %s", resp.Reason)
	}

	quote, ok := resp.Quotes["BTC"]
	require.True(t, ok)
	require.NotNil(t, quote.Price)
	assert.True(t, quote.Price.IsPositive())
}

func TestCoinpaprika_FetchIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	source, err := sources.Create("coinpaprika", nil)
	require.NoError(t, err)

	resp := source.Fetch(context.Background(), sources.FetchRequest{Limit: 10})
	if !resp.Status.Usable() {
		t.Skipf("coinpaprika unavailable: %s", resp.Reason)
	}
	assert.NotEmpty(t, resp.Quotes)
}
