// Package movement detects threshold-crossing movements of a candle series
// at the FM, LM and SM sensitivity tiers.
package movement

import (
	"cmp"
	"slices"

	"github.com/vadiminshakov/movements/internal/domain"
)

// Detect scans candles once per tier and returns the movement summary.
// Candles must be time-ascending; they are neither sorted nor validated here.
// Returns nil when there is nothing to analyze.
func Detect(candles []domain.Candle, volatilityPercent float64) *domain.MovementSummary {
	if len(candles) == 0 {
		return nil
	}

	opening := openingPrice(candles)
	thresholds := domain.NewThresholdSet(volatilityPercent, opening)

	summary := &domain.MovementSummary{
		OpeningPrice:      opening,
		VolatilityPercent: volatilityPercent,
		Thresholds:        thresholds,
		Events:            make([]domain.MovementEvent, 0),
	}

	for _, tier := range domain.Tiers() {
		events := newTracker(tier, thresholds.For(tier), opening).scan(candles)
		summary.HitCounts.Add(tier, len(events))
		summary.Events = append(summary.Events, events...)
	}

	sortEvents(summary.Events)

	return summary
}

// openingPrice is the close of the first candle. An absent close counts as 0.
func openingPrice(candles []domain.Candle) float64 {
	if c := candles[0].Close; c != nil {
		return *c
	}
	return 0
}

// sortEvents orders by timestamp, then candle index, then tier.
func sortEvents(events []domain.MovementEvent) {
	slices.SortStableFunc(events, func(a, b domain.MovementEvent) int {
		if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Index, b.Index); c != 0 {
			return c
		}
		return cmp.Compare(a.Tier.Rank(), b.Tier.Rank())
	})
}
