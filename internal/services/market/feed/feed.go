// Package feed converts exchange candles into the canonical, validated
// sequence the movement engine consumes.
package feed

import (
	"math"
	"slices"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/movements/internal/domain"
)

var (
	ErrNotAscending        = errors.New("candle timestamps are not strictly ascending")
	ErrMissingOpeningClose = errors.New("first candle has no close price")
	ErrNegativePrice       = errors.New("negative price")
	ErrNonFinitePrice      = errors.New("price is not a finite number")
	ErrColumnLength        = errors.New("candle columns have different lengths")
)

// FromMarketCandles orders exchange candles by open time, keeps the last
// candle of duplicated timestamps and converts prices to float64.
func FromMarketCandles(raw []domain.MarketCandle) ([]domain.Candle, error) {
	sorted := slices.Clone(raw)
	slices.SortStableFunc(sorted, func(a, b domain.MarketCandle) int {
		return a.OpenTime.Compare(b.OpenTime)
	})

	out := make([]domain.Candle, 0, len(sorted))
	for i, mc := range sorted {
		if mc.Open.IsNegative() || mc.High.IsNegative() || mc.Low.IsNegative() || mc.Close.IsNegative() {
			return nil, errors.Wrapf(ErrNegativePrice, "candle at %s", mc.OpenTime.UTC().Format("2006-01-02T15:04:05Z"))
		}

		c := domain.NewCandle(
			mc.OpenTime.UnixMilli(),
			mc.Open.InexactFloat64(),
			mc.High.InexactFloat64(),
			mc.Low.InexactFloat64(),
			mc.Close.InexactFloat64(),
		)
		if i > 0 && out[len(out)-1].Timestamp == c.Timestamp {
			out[len(out)-1] = c
			continue
		}
		out = append(out, c)
	}

	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromColumns zips the {t,o,h,l,c} column layout into candles. A nil price
// column marks that price absent for every candle.
func FromColumns(cols domain.CandleColumns) ([]domain.Candle, error) {
	n := len(cols.T)
	for _, c := range []struct {
		name string
		col  []*float64
	}{{"o", cols.O}, {"h", cols.H}, {"l", cols.L}, {"c", cols.C}} {
		if c.col != nil && len(c.col) != n {
			return nil, errors.Wrapf(ErrColumnLength, "column %s has %d values, t has %d", c.name, len(c.col), n)
		}
	}

	at := func(col []*float64, i int) *float64 {
		if col == nil {
			return nil
		}
		return col[i]
	}

	out := make([]domain.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = domain.Candle{
			Timestamp: cols.T[i],
			Open:      at(cols.O, i),
			High:      at(cols.H, i),
			Low:       at(cols.L, i),
			Close:     at(cols.C, i),
		}
	}

	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate rejects sequences the engine must never see: timestamps that do
// not strictly ascend, non-finite or negative prices and a first candle
// without close. An empty sequence is valid.
func Validate(candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	if candles[0].Close == nil {
		return ErrMissingOpeningClose
	}

	for i, c := range candles {
		if i > 0 && c.Timestamp <= candles[i-1].Timestamp {
			return errors.Wrapf(ErrNotAscending, "index %d: %d after %d", i, c.Timestamp, candles[i-1].Timestamp)
		}
		for _, p := range []*float64{c.Open, c.High, c.Low, c.Close} {
			if p == nil {
				continue
			}
			if math.IsNaN(*p) || math.IsInf(*p, 0) {
				return errors.Wrapf(ErrNonFinitePrice, "index %d", i)
			}
			if *p < 0 {
				return errors.Wrapf(ErrNegativePrice, "index %d: %v", i, *p)
			}
		}
	}
	return nil
}
