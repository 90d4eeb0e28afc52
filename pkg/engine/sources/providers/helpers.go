package providers

import (
	"strings"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/sources"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

// filterQuotes narrows quotes to the requested symbols. An empty request
// keeps the full listing.
func filterQuotes(quotes map[string]sources.AssetQuote, symbols []string) map[string]sources.AssetQuote {
	if len(symbols) == 0 {
		return quotes
	}
	out := make(map[string]sources.AssetQuote, len(symbols))
	for _, sym := range symbols {
		key := strings.ToUpper(strings.TrimSpace(sym))
		if quote, ok := quotes[key]; ok {
			out[key] = quote
		}
	}
	return out
}

// changeMap builds a percent-change map, skipping fields the provider left null.
func changeMap(values map[model.Period]*float64) map[model.Period]float64 {
	out := make(map[model.Period]float64, len(values))
	for period, v := range values {
		if v != nil {
			out[period] = *v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
