// Package clients builds exchange SDK clients for public market data.
package clients

import (
	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
)

// NewBinanceClient returns a spot client. Klines are public, so empty
// credentials are fine.
func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	client := binance.NewClient(apiKey, apiSecret)
	return client
}

// NewBinanceFuturesClient returns a USD-M futures client.
func NewBinanceFuturesClient(apiKey, apiSecret string) *futures.Client {
	return binance.NewFuturesClient(apiKey, apiSecret)
}
