package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle canonical OHLC record consumed by the movement engine.
// Nil prices are absent values.
type Candle struct {
	// Timestamp interval start in epoch milliseconds.
	Timestamp int64    `json:"timestamp"`
	Open      *float64 `json:"open"`
	High      *float64 `json:"high"`
	Low       *float64 `json:"low"`
	Close     *float64 `json:"close"`
}

// Time returns the candle timestamp as UTC time.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// Price returns a pointer to v for building candles.
func Price(v float64) *float64 {
	return &v
}

// NewCandle builds a candle with every price present.
func NewCandle(ts int64, open, high, low, close float64) Candle {
	return Candle{
		Timestamp: ts,
		Open:      Price(open),
		High:      Price(high),
		Low:       Price(low),
		Close:     Price(close),
	}
}

// CandleColumns column-oriented candle batch ({t,o,h,l,c}).
type CandleColumns struct {
	T []int64    `json:"t"`
	O []*float64 `json:"o"`
	H []*float64 `json:"h"`
	L []*float64 `json:"l"`
	C []*float64 `json:"c"`
}

// MarketCandle single OHLCV candlestick as reported by an exchange.
type MarketCandle struct {
	OpenTime  time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	CloseTime time.Time
}
