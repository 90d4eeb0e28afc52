package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/sources"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

const (
	coinpaprikaBaseURL      = "https://api.coinpaprika.com/v1"
	coinpaprikaTimeout      = 15 * time.Second
	coinpaprikaDefaultLimit = 1000
)

// CoinpaprikaSource fetches tickers from the Coinpaprika free API. It has the
// widest free coverage of the configured providers.
type CoinpaprikaSource struct {
	*sources.BaseSource
	limit int
}

// coinpaprikaTicker mirrors one element of /v1/tickers.
type coinpaprikaTicker struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Rank   int    `json:"rank"`
	Quotes struct {
		USD struct {
			Price            float64 `json:"price"`
			MarketCap        float64 `json:"market_cap"`
			Volume24H        float64 `json:"volume_24h"`
			PercentChange1H  float64 `json:"percent_change_1h"`
			PercentChange24H float64 `json:"percent_change_24h"`
			PercentChange7D  float64 `json:"percent_change_7d"`
			PercentChange30D float64 `json:"percent_change_30d"`
			PercentChange1Y  float64 `json:"percent_change_1y"`
		} `json:"USD"`
	} `json:"quotes"`
}

// NewCoinpaprikaSource creates a new Coinpaprika source
func NewCoinpaprikaSource(config map[string]interface{}) (sources.Source, error) {
	return &CoinpaprikaSource{
		BaseSource: sources.NewBaseSource("coinpaprika", coinpaprikaTimeout, sources.GetLoggerFromConfig(config)),
		limit:      sources.GetIntConfig(config, "limit", coinpaprikaDefaultLimit),
	}, nil
}

// Fetch retrieves all tickers quoted in USD.
func (s *CoinpaprikaSource) Fetch(ctx context.Context, req sources.FetchRequest) sources.Response {
	limit := s.limit
	if req.Limit > 0 && req.Limit < limit {
		limit = req.Limit
	}
	url := fmt.Sprintf("%s/tickers?quotes=USD&limit=%d", coinpaprikaBaseURL, limit)

	var tickers []coinpaprikaTicker
	if err := s.GetJSON(ctx, url, nil, &tickers); err != nil {
		s.Logger().Warn("Coinpaprika fetch failed", "error", err.Error())
		return s.FailureResponse(err)
	}

	quotes := make(map[string]sources.AssetQuote, len(tickers))
	for _, ticker := range tickers {
		symbol := strings.ToUpper(ticker.Symbol)
		if symbol == "" || ticker.Quotes.USD.Price <= 0 {
			continue
		}
		// Tickers are rank-ordered; keep the first (highest ranked) coin
		// when symbols collide between unrelated listings.
		if _, seen := quotes[symbol]; seen {
			continue
		}

		price := decimal.NewFromFloat(ticker.Quotes.USD.Price)
		quote := sources.AssetQuote{
			Symbol: symbol,
			Name:   ticker.Name,
			Price:  &price,
			PercentChange: map[model.Period]float64{
				model.Period1H:   ticker.Quotes.USD.PercentChange1H,
				model.Period24H:  ticker.Quotes.USD.PercentChange24H,
				model.Period7D:   ticker.Quotes.USD.PercentChange7D,
				model.Period30D:  ticker.Quotes.USD.PercentChange30D,
				model.Period365D: ticker.Quotes.USD.PercentChange1Y,
			},
		}
		if ticker.Quotes.USD.MarketCap > 0 {
			mc := decimal.NewFromFloat(ticker.Quotes.USD.MarketCap)
			quote.MarketCap = &mc
		}
		if ticker.Quotes.USD.Volume24H > 0 {
			vol := decimal.NewFromFloat(ticker.Quotes.USD.Volume24H)
			quote.Volume24H = &vol
		}
		if ticker.Rank > 0 {
			rank := ticker.Rank
			quote.Rank = &rank
		}
		quotes[symbol] = quote
	}

	quotes = filterQuotes(quotes, req.Symbols)
	s.Logger().Debug("Coinpaprika fetch complete", "assets", len(quotes))
	return s.SuccessResponse(quotes, len(req.Symbols))
}
