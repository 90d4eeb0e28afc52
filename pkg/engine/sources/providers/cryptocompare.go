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
	cryptocompareBaseURL      = "https://min-api.cryptocompare.com/data"
	cryptocompareTimeout      = 10 * time.Second
	cryptocompareDefaultLimit = 100
	cryptocomparePageMax      = 100 // API caps top/mktcapfull at 100 per page
)

// CryptoCompareSource fetches top coins by market cap from CryptoCompare.
type CryptoCompareSource struct {
	*sources.BaseSource
	apiKey string
	limit  int
}

// cryptocompareTopResponse mirrors /data/top/mktcapfull.
type cryptocompareTopResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     []struct {
		CoinInfo struct {
			Name     string `json:"Name"`
			FullName string `json:"FullName"`
		} `json:"CoinInfo"`
		Raw struct {
			USD struct {
				Price           float64 `json:"PRICE"`
				MarketCap       float64 `json:"MKTCAP"`
				TotalVolume24H  float64 `json:"TOTALVOLUME24HTO"`
				ChangePctHour   float64 `json:"CHANGEPCTHOUR"`
				ChangePct24Hour float64 `json:"CHANGEPCT24HOUR"`
			} `json:"USD"`
		} `json:"RAW"`
	} `json:"Data"`
}

// NewCryptoCompareSource creates a new CryptoCompare source
func NewCryptoCompareSource(config map[string]interface{}) (sources.Source, error) {
	return &CryptoCompareSource{
		BaseSource: sources.NewBaseSource("cryptocompare", cryptocompareTimeout, sources.GetLoggerFromConfig(config)),
		apiKey:     sources.GetStringConfig(config, "api_key", ""),
		limit:      sources.GetIntConfig(config, "limit", cryptocompareDefaultLimit),
	}, nil
}

// Fetch retrieves the top listing by market cap.
func (s *CryptoCompareSource) Fetch(ctx context.Context, req sources.FetchRequest) sources.Response {
	limit := s.limit
	if req.Limit > 0 && req.Limit < limit {
		limit = req.Limit
	}
	if limit > cryptocomparePageMax {
		limit = cryptocomparePageMax
	}

	url := fmt.Sprintf("%s/top/mktcapfull?limit=%d&tsym=USD", cryptocompareBaseURL, limit)
	headers := map[string]string{}
	if s.apiKey != "" {
		headers["authorization"] = "Apikey " + s.apiKey
	}

	var payload cryptocompareTopResponse
	if err := s.GetJSON(ctx, url, headers, &payload); err != nil {
		s.Logger().Warn("CryptoCompare fetch failed", "error", err.Error())
		return s.FailureResponse(err)
	}
	if payload.Response == "Error" {
		err := fmt.Errorf("%w: %s", sources.ErrInvalidResponse, payload.Message)
		return s.FailureResponse(err)
	}

	quotes := make(map[string]sources.AssetQuote, len(payload.Data))
	for _, item := range payload.Data {
		symbol := strings.ToUpper(item.CoinInfo.Name)
		if symbol == "" || item.Raw.USD.Price <= 0 {
			continue
		}

		price := decimal.NewFromFloat(item.Raw.USD.Price)
		quote := sources.AssetQuote{
			Symbol: symbol,
			Name:   coinFullName(item.CoinInfo.FullName, symbol),
			Price:  &price,
			PercentChange: map[model.Period]float64{
				model.Period1H:  item.Raw.USD.ChangePctHour,
				model.Period24H: item.Raw.USD.ChangePct24Hour,
			},
		}
		if item.Raw.USD.MarketCap > 0 {
			mc := decimal.NewFromFloat(item.Raw.USD.MarketCap)
			quote.MarketCap = &mc
		}
		if item.Raw.USD.TotalVolume24H > 0 {
			vol := decimal.NewFromFloat(item.Raw.USD.TotalVolume24H)
			quote.Volume24H = &vol
		}
		quotes[symbol] = quote
	}

	quotes = filterQuotes(quotes, req.Symbols)
	s.Logger().Debug("CryptoCompare fetch complete", "assets", len(quotes))
	return s.SuccessResponse(quotes, len(req.Symbols))
}

// coinFullName extracts a display name from CryptoCompare's "Name (SYM)" format.
func coinFullName(fullName, fallback string) string {
	name := strings.TrimSpace(fullName)
	if idx := strings.LastIndex(name, " ("); idx > 0 {
		name = name[:idx]
	}
	if name == "" {
		return fallback
	}
	return name
}
