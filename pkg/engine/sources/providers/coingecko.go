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
	coingeckoBaseURL     = "https://api.coingecko.com/api/v3"
	coingeckoTimeout     = 15 * time.Second
	coingeckoPerPage     = 250 // API maximum per page
	coingeckoDefaultPage = 1
)

// CoinGeckoSource fetches market listings from the CoinGecko free API.
// Configured last in the priority order; it fills gaps the paid sources miss.
type CoinGeckoSource struct {
	*sources.BaseSource
	apiKey string
	pages  int
}

// coingeckoMarket mirrors one element of /coins/markets.
type coingeckoMarket struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	CurrentPrice  float64  `json:"current_price"`
	MarketCap     float64  `json:"market_cap"`
	MarketCapRank int      `json:"market_cap_rank"`
	TotalVolume   float64  `json:"total_volume"`
	Change1H      *float64 `json:"price_change_percentage_1h_in_currency"`
	Change24H     *float64 `json:"price_change_percentage_24h_in_currency"`
	Change7D      *float64 `json:"price_change_percentage_7d_in_currency"`
	Change30D     *float64 `json:"price_change_percentage_30d_in_currency"`
	Change1Y      *float64 `json:"price_change_percentage_1y_in_currency"`
}

// NewCoinGeckoSource creates a new CoinGecko source
func NewCoinGeckoSource(config map[string]interface{}) (sources.Source, error) {
	return &CoinGeckoSource{
		BaseSource: sources.NewBaseSource("coingecko", coingeckoTimeout, sources.GetLoggerFromConfig(config)),
		apiKey:     sources.GetStringConfig(config, "api_key", ""),
		pages:      sources.GetIntConfig(config, "pages", coingeckoDefaultPage),
	}, nil
}

// Fetch retrieves market listings ordered by market cap.
func (s *CoinGeckoSource) Fetch(ctx context.Context, req sources.FetchRequest) sources.Response {
	quotes := make(map[string]sources.AssetQuote)
	headers := map[string]string{}
	if s.apiKey != "" {
		headers["x-cg-demo-api-key"] = s.apiKey
	}

	for page := 1; page <= s.pages; page++ {
		url := fmt.Sprintf(
			"%s/coins/markets?vs_currency=usd&order=market_cap_desc&per_page=%d&page=%d&price_change_percentage=1h,24h,7d,30d,1y",
			coingeckoBaseURL, coingeckoPerPage, page)

		var markets []coingeckoMarket
		if err := s.GetJSON(ctx, url, headers, &markets); err != nil {
			if page == 1 {
				s.Logger().Warn("CoinGecko fetch failed", "error", err.Error())
				return s.FailureResponse(err)
			}
			// Later pages are best effort; keep what the first pages returned.
			s.Logger().Warn("CoinGecko page fetch failed", "page", page, "error", err.Error())
			break
		}

		for _, market := range markets {
			symbol := strings.ToUpper(market.Symbol)
			if symbol == "" || market.CurrentPrice <= 0 {
				continue
			}
			if _, seen := quotes[symbol]; seen {
				continue
			}

			price := decimal.NewFromFloat(market.CurrentPrice)
			quote := sources.AssetQuote{
				Symbol: symbol,
				Name:   market.Name,
				Price:  &price,
				PercentChange: changeMap(map[model.Period]*float64{
					model.Period1H:   market.Change1H,
					model.Period24H:  market.Change24H,
					model.Period7D:   market.Change7D,
					model.Period30D:  market.Change30D,
					model.Period365D: market.Change1Y,
				}),
			}
			if market.MarketCap > 0 {
				mc := decimal.NewFromFloat(market.MarketCap)
				quote.MarketCap = &mc
			}
			if market.TotalVolume > 0 {
				vol := decimal.NewFromFloat(market.TotalVolume)
				quote.Volume24H = &vol
			}
			if market.MarketCapRank > 0 {
				rank := market.MarketCapRank
				quote.Rank = &rank
			}
			quotes[symbol] = quote
		}

		if len(markets) < coingeckoPerPage {
			break
		}
	}

	quotes = filterQuotes(quotes, req.Symbols)
	s.Logger().Debug("CoinGecko fetch complete", "assets", len(quotes))
	return s.SuccessResponse(quotes, len(req.Symbols))
}
