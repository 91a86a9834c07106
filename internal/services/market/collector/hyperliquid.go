package collector

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/vadiminshakov/movements/internal/domain"
)

// hyperliquidMaxCandles most candles one snapshot returns.
const hyperliquidMaxCandles = 5000

// HyperliquidKlineProvider implements KlineProvider for Hyperliquid exchange.
type HyperliquidKlineProvider struct {
	info *hyperliquid.Info
}

// NewHyperliquidKlineProvider creates a new Hyperliquid kline provider.
func NewHyperliquidKlineProvider(info *hyperliquid.Info) *HyperliquidKlineProvider {
	return &HyperliquidKlineProvider{info: info}
}

// GetKlines fetches kline data. Hyperliquid quotes by coin name, so only the
// base of the pair is used.
func (p *HyperliquidKlineProvider) GetKlines(ctx context.Context, pair domain.Pair, interval string, start, end time.Time) ([]domain.MarketCandle, error) {
	if p.info == nil {
		return nil, errors.New("hyperliquid info is nil")
	}
	if _, err := ParseInterval(interval); err != nil {
		return nil, err
	}

	coin := strings.ToUpper(pair.From)

	var out []domain.MarketCandle
	from, to := start.UnixMilli(), end.UnixMilli()
	for from <= to {
		candles, err := p.info.CandlesSnapshot(ctx, coin, interval, from, to)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to fetch candles from Hyperliquid for %s", coin)
		}
		if len(candles) == 0 {
			break
		}

		for i, c := range candles {
			mc, err := newMarketCandle(time.UnixMilli(c.TimeOpen), time.UnixMilli(c.TimeClose),
				c.Open, c.High, c.Low, c.Close, c.Volume)
			if err != nil {
				return nil, errors.Wrapf(err, "hyperliquid candle at index %d", len(out)+i)
			}
			out = append(out, mc)
		}

		if len(candles) < hyperliquidMaxCandles {
			break
		}
		from = candles[len(candles)-1].TimeOpen + 1
	}

	return out, nil
}
