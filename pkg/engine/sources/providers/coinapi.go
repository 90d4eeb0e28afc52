package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/sources"
)

const (
	coinapiBaseURL = "https://rest.coinapi.io/v1"
	coinapiTimeout = 15 * time.Second
)

// CoinAPISource fetches asset quotes from the CoinAPI REST service.
// CoinAPI reports price and volume only; percent changes come from the
// other providers during the merge.
type CoinAPISource struct {
	*sources.BaseSource
	apiKey string
}

// coinapiAsset mirrors one element of /v1/assets.
type coinapiAsset struct {
	AssetID      string  `json:"asset_id"`
	Name         string  `json:"name"`
	TypeIsCrypto int     `json:"type_is_crypto"`
	PriceUSD     float64 `json:"price_usd"`
	Volume1DUSD  float64 `json:"volume_1day_usd"`
}

// NewCoinAPISource creates a new CoinAPI source
func NewCoinAPISource(config map[string]interface{}) (sources.Source, error) {
	apiKey := sources.GetStringConfig(config, "api_key", "")
	if apiKey == "" {
		return nil, fmt.Errorf("coinapi: %w", sources.ErrAPIKeyRequired)
	}

	return &CoinAPISource{
		BaseSource: sources.NewBaseSource("coinapi", coinapiTimeout, sources.GetLoggerFromConfig(config)),
		apiKey:     apiKey,
	}, nil
}

// Fetch retrieves the crypto asset listing.
func (s *CoinAPISource) Fetch(ctx context.Context, req sources.FetchRequest) sources.Response {
	url := coinapiBaseURL + "/assets"
	if len(req.Symbols) > 0 {
		ids := make([]string, 0, len(req.Symbols))
		for _, sym := range req.Symbols {
			ids = append(ids, strings.ToUpper(strings.TrimSpace(sym)))
		}
		url = fmt.Sprintf("%s?filter_asset_id=%s", url, strings.Join(ids, ","))
	}

	var assets []coinapiAsset
	headers := map[string]string{"X-CoinAPI-Key": s.apiKey}
	if err := s.GetJSON(ctx, url, headers, &assets); err != nil {
		s.Logger().Warn("CoinAPI fetch failed", "error", err.Error())
		return s.FailureResponse(err)
	}

	quotes := make(map[string]sources.AssetQuote, len(assets))
	for _, asset := range assets {
		symbol := strings.ToUpper(asset.AssetID)
		if symbol == "" || asset.TypeIsCrypto != 1 || asset.PriceUSD <= 0 {
			continue
		}

		price := decimal.NewFromFloat(asset.PriceUSD)
		quote := sources.AssetQuote{
			Symbol: symbol,
			Name:   asset.Name,
			Price:  &price,
		}
		if asset.Volume1DUSD > 0 {
			vol := decimal.NewFromFloat(asset.Volume1DUSD)
			quote.Volume24H = &vol
		}
		quotes[symbol] = quote
	}

	quotes = filterQuotes(quotes, req.Symbols)
	s.Logger().Debug("CoinAPI fetch complete", "assets", len(quotes))
	return s.SuccessResponse(quotes, len(req.Symbols))
}
