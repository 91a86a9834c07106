package collector

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/movements/internal/domain"
)

// binanceMaxKlines page size of the klines endpoint.
const binanceMaxKlines = 1000

// BinanceKlineProvider implements KlineProvider for the Binance spot market.
type BinanceKlineProvider struct {
	client *binance.Client
}

// NewBinanceKlineProvider creates a new Binance kline provider.
func NewBinanceKlineProvider(client *binance.Client) *BinanceKlineProvider {
	return &BinanceKlineProvider{client: client}
}

// GetKlines fetches kline data from Binance, paging forward from start.
func (p *BinanceKlineProvider) GetKlines(ctx context.Context, pair domain.Pair, interval string, start, end time.Time) ([]domain.MarketCandle, error) {
	var result []domain.MarketCandle

	from, to := start.UnixMilli(), end.UnixMilli()
	for from <= to {
		klines, err := p.client.NewKlinesService().
			Symbol(pair.Symbol()).
			Interval(interval).
			StartTime(from).
			EndTime(to).
			Limit(binanceMaxKlines).
			Do(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to fetch klines from Binance for %s", pair.String())
		}
		if len(klines) == 0 {
			break
		}

		for i, k := range klines {
			mc, err := newMarketCandle(time.UnixMilli(k.OpenTime), time.UnixMilli(k.CloseTime),
				k.Open, k.High, k.Low, k.Close, k.Volume)
			if err != nil {
				return nil, errors.Wrapf(err, "binance kline at index %d", len(result)+i)
			}
			result = append(result, mc)
		}

		if len(klines) < binanceMaxKlines {
			break
		}
		from = klines[len(klines)-1].OpenTime + 1
	}

	return result, nil
}

// BinanceFuturesKlineProvider implements KlineProvider for Binance USD-M futures.
type BinanceFuturesKlineProvider struct {
	client *futures.Client
}

// NewBinanceFuturesKlineProvider creates a new Binance futures kline provider.
func NewBinanceFuturesKlineProvider(client *futures.Client) *BinanceFuturesKlineProvider {
	return &BinanceFuturesKlineProvider{client: client}
}

// GetKlines fetches kline data from Binance futures, paging forward from start.
func (p *BinanceFuturesKlineProvider) GetKlines(ctx context.Context, pair domain.Pair, interval string, start, end time.Time) ([]domain.MarketCandle, error) {
	var result []domain.MarketCandle

	from, to := start.UnixMilli(), end.UnixMilli()
	for from <= to {
		klines, err := p.client.NewKlinesService().
			Symbol(pair.Symbol()).
			Interval(interval).
			StartTime(from).
			EndTime(to).
			Limit(binanceMaxKlines).
			Do(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to fetch futures klines from Binance for %s", pair.String())
		}
		if len(klines) == 0 {
			break
		}

		for i, k := range klines {
			mc, err := newMarketCandle(time.UnixMilli(k.OpenTime), time.UnixMilli(k.CloseTime),
				k.Open, k.High, k.Low, k.Close, k.Volume)
			if err != nil {
				return nil, errors.Wrapf(err, "binance futures kline at index %d", len(result)+i)
			}
			result = append(result, mc)
		}

		if len(klines) < binanceMaxKlines {
			break
		}
		from = klines[len(klines)-1].OpenTime + 1
	}

	return result, nil
}
