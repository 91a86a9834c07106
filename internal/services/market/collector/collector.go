// Package collector fetches historical klines from exchanges and hands them
// over as the canonical candle sequence for movement detection.
package collector

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/movements/internal/domain"
	"github.com/vadiminshakov/movements/internal/services/market/daterange"
	"github.com/vadiminshakov/movements/internal/services/market/feed"
	"github.com/vadiminshakov/movements/pkg/retrier"
)

const defaultCollectTimeout = 60 * time.Second

// Market kinds accepted by the providers.
const (
	MarketSpot    = string(domain.MarketTypeSpot)
	MarketFutures = string(domain.MarketTypeFutures)
)

// KlineProvider defines the interface for fetching kline (candlestick) data.
type KlineProvider interface {
	// GetKlines fetches every kline of the pair whose open time lies in
	// [start, end]. interval uses the "1m", "5m", "1h", "1d" notation.
	GetKlines(ctx context.Context, pair domain.Pair, interval string, start, end time.Time) ([]domain.MarketCandle, error)
}

// Collector wraps a provider with timeout, retries and feed normalization.
type Collector struct {
	provider KlineProvider
	retrier  *retrier.Retrier
	timeout  time.Duration
	l        *zap.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithTimeout bounds a whole Collect call.
func WithTimeout(d time.Duration) Option {
	return func(c *Collector) {
		c.timeout = d
	}
}

// WithRetrier replaces the default retrier.
func WithRetrier(r *retrier.Retrier) Option {
	return func(c *Collector) {
		c.retrier = r
	}
}

// NewCollector creates a collector over provider.
func NewCollector(provider KlineProvider, l *zap.Logger, opts ...Option) *Collector {
	c := &Collector{
		provider: provider,
		timeout:  defaultCollectTimeout,
		l:        l,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retrier == nil {
		c.retrier = retrier.New(retrier.WithOnRetry(func(attempt int, err error) {
			c.l.Warn("retrying kline fetch", zap.Int("attempt", attempt), zap.Error(err))
		}))
	}
	return c
}

// Collect fetches the pair's candles inside r and returns them validated and
// time-ascending.
func (c *Collector) Collect(ctx context.Context, pair domain.Pair, interval string, r daterange.Range) ([]domain.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) ([]domain.MarketCandle, error) {
		return c.provider.GetKlines(ctx, pair, interval, r.Start, r.End)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to collect %s klines for %s", interval, pair.String())
	}

	inRange := make([]domain.MarketCandle, 0, len(raw))
	for _, k := range raw {
		if r.Contains(k.OpenTime.UnixMilli()) {
			inRange = append(inRange, k)
		}
	}
	if dropped := len(raw) - len(inRange); dropped > 0 {
		c.l.Debug("dropped klines outside range", zap.Int("dropped", dropped))
	}

	candles, err := feed.FromMarketCandles(inRange)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid klines for %s", pair.String())
	}

	c.l.Info("collected klines",
		zap.String("pair", pair.String()),
		zap.String("interval", interval),
		zap.Int("candles", len(candles)),
	)
	return candles, nil
}

// newMarketCandle parses the string prices exchanges report.
func newMarketCandle(openTime, closeTime time.Time, open, high, low, close, volume string) (domain.MarketCandle, error) {
	o, err := decimal.NewFromString(open)
	if err != nil {
		return domain.MarketCandle{}, errors.Wrap(err, "failed to parse open price")
	}
	h, err := decimal.NewFromString(high)
	if err != nil {
		return domain.MarketCandle{}, errors.Wrap(err, "failed to parse high price")
	}
	l, err := decimal.NewFromString(low)
	if err != nil {
		return domain.MarketCandle{}, errors.Wrap(err, "failed to parse low price")
	}
	c, err := decimal.NewFromString(close)
	if err != nil {
		return domain.MarketCandle{}, errors.Wrap(err, "failed to parse close price")
	}
	v := decimal.Zero
	if volume != "" {
		if v, err = decimal.NewFromString(volume); err != nil {
			return domain.MarketCandle{}, errors.Wrap(err, "failed to parse volume")
		}
	}

	return domain.MarketCandle{
		OpenTime:  openTime,
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    v,
		CloseTime: closeTime,
	}, nil
}
