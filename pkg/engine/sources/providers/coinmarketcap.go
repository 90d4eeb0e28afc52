// Package providers implements the market data provider adapters.
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
	cmcBaseURL      = "https://pro-api.coinmarketcap.com/v1"
	cmcTimeout      = 15 * time.Second
	cmcDefaultLimit = 500
)

// CoinMarketCapSource fetches listings from the CoinMarketCap Pro API.
// It is the highest priority source in the default configuration.
type CoinMarketCapSource struct {
	*sources.BaseSource
	apiKey string
	limit  int
}

// cmcListingsResponse mirrors /v1/cryptocurrency/listings/latest.
type cmcListingsResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data []struct {
		Symbol  string `json:"symbol"`
		Name    string `json:"name"`
		CMCRank int    `json:"cmc_rank"`
		Quote   struct {
			USD struct {
				Price            float64  `json:"price"`
				MarketCap        float64  `json:"market_cap"`
				Volume24H        float64  `json:"volume_24h"`
				PercentChange1H  *float64 `json:"percent_change_1h"`
				PercentChange24H *float64 `json:"percent_change_24h"`
				PercentChange7D  *float64 `json:"percent_change_7d"`
				PercentChange30D *float64 `json:"percent_change_30d"`
				PercentChange60D *float64 `json:"percent_change_60d"`
				PercentChange90D *float64 `json:"percent_change_90d"`
			} `json:"USD"`
		} `json:"quote"`
	} `json:"data"`
}

// NewCoinMarketCapSource creates a new CoinMarketCap source
func NewCoinMarketCapSource(config map[string]interface{}) (sources.Source, error) {
	apiKey := sources.GetStringConfig(config, "api_key", "")
	if apiKey == "" {
		return nil, fmt.Errorf("coinmarketcap: %w", sources.ErrAPIKeyRequired)
	}

	return &CoinMarketCapSource{
		BaseSource: sources.NewBaseSource("coinmarketcap", cmcTimeout, sources.GetLoggerFromConfig(config)),
		apiKey:     apiKey,
		limit:      sources.GetIntConfig(config, "limit", cmcDefaultLimit),
	}, nil
}

// Fetch retrieves the latest listings and maps them to asset quotes.
func (s *CoinMarketCapSource) Fetch(ctx context.Context, req sources.FetchRequest) sources.Response {
	limit := s.limit
	if req.Limit > 0 && req.Limit < limit {
		limit = req.Limit
	}
	url := fmt.Sprintf("%s/cryptocurrency/listings/latest?limit=%d&convert=USD", cmcBaseURL, limit)

	var payload cmcListingsResponse
	headers := map[string]string{"X-CMC_PRO_API_KEY": s.apiKey}
	if err := s.GetJSON(ctx, url, headers, &payload); err != nil {
		s.Logger().Warn("CoinMarketCap fetch failed", "error", err.Error())
		return s.FailureResponse(err)
	}
	if payload.Status.ErrorCode != 0 {
		err := fmt.Errorf("%w: %s", sources.ErrInvalidResponse, payload.Status.ErrorMessage)
		return s.FailureResponse(err)
	}

	quotes := make(map[string]sources.AssetQuote, len(payload.Data))
	for _, item := range payload.Data {
		symbol := strings.ToUpper(item.Symbol)
		if symbol == "" || item.Quote.USD.Price <= 0 {
			continue
		}

		price := decimal.NewFromFloat(item.Quote.USD.Price)
		quote := sources.AssetQuote{
			Symbol: symbol,
			Name:   item.Name,
			Price:  &price,
			PercentChange: changeMap(map[model.Period]*float64{
				model.Period1H:  item.Quote.USD.PercentChange1H,
				model.Period24H: item.Quote.USD.PercentChange24H,
				model.Period7D:  item.Quote.USD.PercentChange7D,
				model.Period30D: item.Quote.USD.PercentChange30D,
				model.Period60D: item.Quote.USD.PercentChange60D,
				model.Period90D: item.Quote.USD.PercentChange90D,
			}),
		}
		if item.Quote.USD.MarketCap > 0 {
			mc := decimal.NewFromFloat(item.Quote.USD.MarketCap)
			quote.MarketCap = &mc
		}
		if item.Quote.USD.Volume24H > 0 {
			vol := decimal.NewFromFloat(item.Quote.USD.Volume24H)
			quote.Volume24H = &vol
		}
		if item.CMCRank > 0 {
			rank := item.CMCRank
			quote.Rank = &rank
		}
		quotes[symbol] = quote
	}

	quotes = filterQuotes(quotes, req.Symbols)
	s.Logger().Debug("CoinMarketCap fetch complete", "assets", len(quotes))
	return s.SuccessResponse(quotes, len(req.Symbols))
}
