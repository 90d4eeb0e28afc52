package providers

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/sources"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

const (
	binanceBaseURL = "https://api.binance.com"
	binanceTimeout = 10 * time.Second
	binanceQuote   = "USDT"
)

// BinanceSource fetches 24h tickers from the Binance public API.
// Exchange data: reliable prices for majors, no market caps.
type BinanceSource struct {
	*sources.BaseSource
}

// binanceTicker24h mirrors one element of /api/v3/ticker/24hr.
// Binance serializes numbers as strings with full decimal precision.
type binanceTicker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	QuoteVolume        string `json:"quoteVolume"`
}

// NewBinanceSource creates a new Binance source
func NewBinanceSource(config map[string]interface{}) (sources.Source, error) {
	return &BinanceSource{
		BaseSource: sources.NewBaseSource("binance", binanceTimeout, sources.GetLoggerFromConfig(config)),
	}, nil
}

// Fetch retrieves all 24h tickers and keeps USDT-quoted pairs.
func (s *BinanceSource) Fetch(ctx context.Context, req sources.FetchRequest) sources.Response {
	var tickers []binanceTicker24h
	if err := s.GetJSON(ctx, binanceBaseURL+"/api/v3/ticker/24hr", nil, &tickers); err != nil {
		s.Logger().Warn("Binance fetch failed", "error", err.Error())
		return s.FailureResponse(err)
	}

	quotes := make(map[string]sources.AssetQuote, len(tickers))
	for _, ticker := range tickers {
		if !strings.HasSuffix(ticker.Symbol, binanceQuote) {
			continue
		}
		symbol := strings.TrimSuffix(ticker.Symbol, binanceQuote)
		if symbol == "" {
			continue
		}

		price, err := decimal.NewFromString(ticker.LastPrice)
		if err != nil || price.IsZero() {
			continue
		}

		quote := sources.AssetQuote{
			Symbol: symbol,
			Price:  &price,
		}
		if change, err := decimal.NewFromString(ticker.PriceChangePercent); err == nil {
			pct, _ := change.Float64()
			quote.PercentChange = map[model.Period]float64{model.Period24H: pct}
		}
		if vol, err := decimal.NewFromString(ticker.QuoteVolume); err == nil && vol.IsPositive() {
			quote.Volume24H = &vol
		}
		quotes[symbol] = quote
	}

	quotes = filterQuotes(quotes, req.Symbols)
	s.Logger().Debug("Binance fetch complete", "assets", len(quotes))
	return s.SuccessResponse(quotes, len(req.Symbols))
}
