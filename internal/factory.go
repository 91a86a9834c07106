package internal

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/movements/internal/clients"
	"github.com/vadiminshakov/movements/internal/domain"
	"github.com/vadiminshakov/movements/internal/services/market/collector"
)

// Supported platforms.
const (
	PlatformBinance     = "binance"
	PlatformBybit       = "bybit"
	PlatformHyperliquid = "hyperliquid"
)

// Credentials optional exchange credentials. Klines are public data, so the
// zero value works for every platform.
type Credentials struct {
	APIKey     string
	APISecret  string
	PrivateKey string
	BaseURL    string
}

// DefaultMarket market used when a request leaves it empty. Hyperliquid only
// serves perpetuals.
func DefaultMarket(platform string) string {
	if strings.EqualFold(platform, PlatformHyperliquid) {
		return collector.MarketFutures
	}
	return collector.MarketSpot
}

// NewKlineProvider is the single point of truth for dispatching to
// platform-specific kline providers.
func NewKlineProvider(platform, market string, creds Credentials) (collector.KlineProvider, error) {
	market = strings.ToLower(market)
	if market == "" {
		market = DefaultMarket(platform)
	}
	if !domain.MarketType(market).IsValid() {
		return nil, fmt.Errorf("unsupported market: %s", market)
	}

	switch strings.ToLower(platform) {
	case PlatformBinance:
		if market == collector.MarketFutures {
			return collector.NewBinanceFuturesKlineProvider(clients.NewBinanceFuturesClient(creds.APIKey, creds.APISecret)), nil
		}
		return collector.NewBinanceKlineProvider(clients.NewBinanceClient(creds.APIKey, creds.APISecret)), nil
	case PlatformBybit:
		return collector.NewBybitKlineProvider(clients.NewBybitClient(creds.APIKey, creds.APISecret), market), nil
	case PlatformHyperliquid:
		if market != collector.MarketFutures {
			return nil, fmt.Errorf("hyperliquid supports only the %s market", collector.MarketFutures)
		}
		info, err := clients.NewHyperliquidInfo(creds.PrivateKey, creds.BaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create hyperliquid client")
		}
		return collector.NewHyperliquidKlineProvider(info), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", platform)
	}
}
