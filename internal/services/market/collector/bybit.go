package collector

import (
	"context"
	"time"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/movements/internal/domain"
)

const (
	bybitMaxKlines = 1000
	bybitPagePause = 100 * time.Millisecond
)

// BybitKlineProvider implements KlineProvider for Bybit exchange.
type BybitKlineProvider struct {
	client   *bybit.Client
	category bybit.CategoryV5
}

// NewBybitKlineProvider creates a new Bybit kline provider. market is
// MarketSpot or MarketFutures (linear perpetuals).
func NewBybitKlineProvider(client *bybit.Client, market string) *BybitKlineProvider {
	category := bybit.CategoryV5Spot
	if market == MarketFutures {
		category = bybit.CategoryV5Linear
	}
	return &BybitKlineProvider{client: client, category: category}
}

// GetKlines fetches kline data. Bybit pages newest first, so the walk goes
// backwards from end.
func (p *BybitKlineProvider) GetKlines(ctx context.Context, pair domain.Pair, interval string, start, end time.Time) ([]domain.MarketCandle, error) {
	bybitInterval, err := convertIntervalToBybit(interval)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid interval: %s", interval)
	}

	symbol := bybit.SymbolV5(pair.Symbol())
	startMs := start.UnixMilli()
	cursor := end.UnixMilli()
	limit := bybitMaxKlines

	var items []bybit.V5GetKlineItem
	for cursor >= startMs {
		pageEnd := cursor
		param := bybit.V5GetKlineParam{
			Category: p.category,
			Symbol:   symbol,
			Interval: bybitInterval,
			Start:    &startMs,
			End:      &pageEnd,
			Limit:    &limit,
		}

		result, err := p.client.V5().Market().GetKline(param)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to fetch klines from Bybit for %s", pair.String())
		}
		if result == nil {
			return nil, errors.Errorf("empty result from Bybit API for %s", pair.String())
		}

		page := result.Result.List
		if len(page) == 0 {
			break
		}
		items = append(items, page...)

		oldest, err := parseTimestamp(page[len(page)-1].StartTime)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse bybit page start")
		}
		if len(page) < limit {
			break
		}
		cursor = oldest.UnixMilli() - 1

		// avoid rate limiting by small delay between requests
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bybitPagePause):
		}
	}

	candles := make([]domain.MarketCandle, 0, len(items))
	for i, k := range items {
		openTime, err := parseTimestamp(k.StartTime)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse start time at index %d", i)
		}

		mc, err := newMarketCandle(openTime, openTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "bybit kline at index %d", i)
		}
		candles = append(candles, mc)
	}

	return candles, nil
}
