package providers

import (
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/sources"
)

func init() {
	// Register all provider adapters
	sources.Register("coinmarketcap", NewCoinMarketCapSource)
	sources.Register("cryptocompare", NewCryptoCompareSource)
	sources.Register("coinapi", NewCoinAPISource)
	sources.Register("coinpaprika", NewCoinpaprikaSource)
	sources.Register("binance", NewBinanceSource)
	sources.Register("coingecko", NewCoinGeckoSource)
}
