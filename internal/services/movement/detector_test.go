package movement

import (
	"encoding/json"
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/movements/internal/domain"
)

const (
	baseTS   = int64(1727740800000) // 2024-10-01T00:00:00Z
	minuteMS = int64(60_000)
)

func flat(i int, price float64) domain.Candle {
	return domain.NewCandle(baseTS+int64(i)*minuteMS, price, price, price, price)
}

func hl(i int, high, low float64) domain.Candle {
	return domain.NewCandle(baseTS+int64(i)*minuteMS, low, high, low, high)
}

func TestDetect_EmptySequence(t *testing.T) {
	require.Nil(t, Detect(nil, 30))
	require.Nil(t, Detect([]domain.Candle{}, 30))
}

func TestDetect_ConcreteScenario(t *testing.T) {
	candles := []domain.Candle{
		flat(0, 100),
		domain.NewCandle(baseTS+minuteMS, 100, 102, 99, 101),
	}

	summary := Detect(candles, 30)
	require.NotNil(t, summary)

	assert.Equal(t, 100.0, summary.OpeningPrice)
	assert.Equal(t, 30.0, summary.VolatilityPercent)
	assert.InDelta(t, 1.578947, summary.Thresholds.FM, 1e-6)
	assert.InDelta(t, 1.105263, summary.Thresholds.LM, 1e-6)
	assert.InDelta(t, 0.394737, summary.Thresholds.SM, 1e-6)
	assert.Equal(t, domain.HitCounts{FM: 1, LM: 1, SM: 1}, summary.HitCounts)

	require.Len(t, summary.Events, 3)
	for i, tier := range domain.Tiers() {
		e := summary.Events[i]
		assert.Equal(t, tier, e.Tier)
		assert.Equal(t, 1, e.Index)
		assert.Equal(t, domain.DirectionUp, e.Direction)
		assert.Equal(t, 102.0, e.ObservedPrice)
		assert.Equal(t, 100.0, e.PreviousReference)
		assert.Equal(t, 102.0, e.NewReference)
		assert.Equal(t, 2.0, e.Delta)
		assert.Equal(t, summary.Thresholds.For(tier), e.ThresholdLevel)
	}
}

func TestDetect_OpeningPriceIsFirstClose(t *testing.T) {
	candles := []domain.Candle{
		domain.NewCandle(baseTS, 90, 120, 80, 100),
	}

	summary := Detect(candles, 19)
	require.NotNil(t, summary)
	assert.Equal(t, 100.0, summary.OpeningPrice)
	assert.Equal(t, 1.0, summary.Thresholds.FM)
}

func TestDetect_ThresholdRatios(t *testing.T) {
	for _, iv := range []float64{0.5, 12, 30, 57.3, 200} {
		summary := Detect([]domain.Candle{flat(0, 63123.45)}, iv)
		require.NotNil(t, summary)

		fm := (iv / 1900) * 63123.45
		assert.Equal(t, fm, summary.Thresholds.FM)
		assert.Equal(t, fm*0.7, summary.Thresholds.LM)
		assert.Equal(t, fm*0.25, summary.Thresholds.SM)
	}
}

func TestDetect_NoMovementBaseline(t *testing.T) {
	candles := make([]domain.Candle, 0, 50)
	for i := 0; i < 50; i++ {
		candles = append(candles, flat(i, 100))
	}

	summary := Detect(candles, 30)
	require.NotNil(t, summary)
	assert.Equal(t, domain.HitCounts{}, summary.HitCounts)
	assert.Empty(t, summary.Events)
}

func TestDetect_UpwardBreachWinsTie(t *testing.T) {
	candles := []domain.Candle{
		flat(0, 100),
		hl(1, 105, 95),
	}

	summary := Detect(candles, 30)
	require.NotNil(t, summary)
	require.Len(t, summary.Events, 3)
	for _, e := range summary.Events {
		assert.Equal(t, domain.DirectionUp, e.Direction)
		assert.Equal(t, 105.0, e.NewReference)
	}
}

func TestDetect_RatchetPerTier(t *testing.T) {
	candles := []domain.Candle{
		flat(0, 100),
		hl(1, 101, 99.5),
		hl(2, 101.2, 98),
	}

	summary := Detect(candles, 30)
	require.NotNil(t, summary)
	assert.Equal(t, domain.HitCounts{FM: 1, LM: 1, SM: 2}, summary.HitCounts)

	require.Len(t, summary.Events, 4)

	sm1 := summary.Events[0]
	assert.Equal(t, 1, sm1.Index)
	assert.Equal(t, domain.TierSM, sm1.Tier)
	assert.Equal(t, domain.DirectionUp, sm1.Direction)
	assert.Equal(t, 101.0, sm1.NewReference)

	fm := summary.Events[1]
	assert.Equal(t, 2, fm.Index)
	assert.Equal(t, domain.TierFM, fm.Tier)
	assert.Equal(t, domain.DirectionDown, fm.Direction)
	assert.Equal(t, 98.0, fm.ObservedPrice)
	assert.Equal(t, -2.0, fm.Delta)

	lm := summary.Events[2]
	assert.Equal(t, domain.TierLM, lm.Tier)
	assert.Equal(t, domain.DirectionUp, lm.Direction)
	assert.Equal(t, 101.2, lm.NewReference)

	sm2 := summary.Events[3]
	assert.Equal(t, domain.TierSM, sm2.Tier)
	assert.Equal(t, domain.DirectionDown, sm2.Direction)
	assert.Equal(t, 101.0, sm2.PreviousReference)
	assert.Equal(t, 98.0, sm2.NewReference)
}

func TestDetect_ExactThresholdTriggers(t *testing.T) {
	// IV 19 on 100 gives FM exactly 1.
	candles := []domain.Candle{
		flat(0, 100),
		hl(1, 101, 100),
		hl(2, 101, 100),
	}

	summary := Detect(candles, 19)
	require.NotNil(t, summary)
	require.Equal(t, 1.0, summary.Thresholds.FM)

	fmEvents := summary.EventsOf(domain.TierFM)
	require.Len(t, fmEvents, 2)
	assert.Equal(t, domain.DirectionUp, fmEvents[0].Direction)
	// Reference moved to 101, so a low of 100 is now exactly one threshold below.
	assert.Equal(t, domain.DirectionDown, fmEvents[1].Direction)
	assert.Equal(t, 100.0, fmEvents[1].NewReference)
}

func TestDetect_MissingHighOrLow(t *testing.T) {
	candles := []domain.Candle{
		flat(0, 100),
		{Timestamp: baseTS + minuteMS, Low: domain.Price(95)},
		{Timestamp: baseTS + 2*minuteMS, High: domain.Price(110)},
		{Timestamp: baseTS + 3*minuteMS},
	}

	summary := Detect(candles, 30)
	require.NotNil(t, summary)
	assert.Equal(t, domain.HitCounts{FM: 2, LM: 2, SM: 2}, summary.HitCounts)

	for _, e := range summary.EventsOf(domain.TierFM) {
		switch e.Index {
		case 1:
			assert.Equal(t, domain.DirectionDown, e.Direction)
			assert.Equal(t, 95.0, e.NewReference)
		case 2:
			assert.Equal(t, domain.DirectionUp, e.Direction)
			assert.Equal(t, 95.0, e.PreviousReference)
			assert.Equal(t, 110.0, e.NewReference)
		default:
			t.Fatalf("unexpected event at index %d", e.Index)
		}
	}
}

func TestDetect_MissingFirstClose(t *testing.T) {
	candles := []domain.Candle{
		{Timestamp: baseTS, High: domain.Price(1), Low: domain.Price(1)},
	}

	summary := Detect(candles, 30)
	require.NotNil(t, summary)
	assert.Equal(t, 0.0, summary.OpeningPrice)
	assert.Equal(t, domain.ThresholdSet{}, summary.Thresholds)
	// Zero thresholds: 1 - 0 >= 0 fires upward on every tier.
	assert.Equal(t, domain.HitCounts{FM: 1, LM: 1, SM: 1}, summary.HitCounts)
}

func TestDetect_DegenerateThresholds(t *testing.T) {
	t.Run("zero volatility fires every candle upward", func(t *testing.T) {
		candles := []domain.Candle{flat(0, 100), flat(1, 100), flat(2, 100)}

		summary := Detect(candles, 0)
		require.NotNil(t, summary)
		assert.Equal(t, domain.ThresholdSet{}, summary.Thresholds)
		assert.Equal(t, domain.HitCounts{FM: 3, LM: 3, SM: 3}, summary.HitCounts)
		for _, e := range summary.Events {
			assert.Equal(t, domain.DirectionUp, e.Direction)
			assert.Equal(t, 0.0, e.Delta)
		}
	})

	t.Run("negative volatility inverts thresholds", func(t *testing.T) {
		candles := []domain.Candle{flat(0, 100), hl(1, 98, 97)}

		summary := Detect(candles, -30)
		require.NotNil(t, summary)
		assert.Less(t, summary.Thresholds.FM, 0.0)

		// index 0: 100-100 >= negative threshold, upward with zero delta.
		// index 1: 98-100 = -2 is below every negative threshold, so the
		// downward check runs and 97-100 <= +threshold holds.
		require.Len(t, summary.Events, 6)
		for _, e := range summary.Events[3:] {
			assert.Equal(t, 1, e.Index)
			assert.Equal(t, domain.DirectionDown, e.Direction)
			assert.Equal(t, 97.0, e.NewReference)
		}
	})

	t.Run("zero opening price", func(t *testing.T) {
		candles := []domain.Candle{flat(0, 0), hl(1, 0, -1)}

		summary := Detect(candles, 30)
		require.NotNil(t, summary)
		assert.Equal(t, 0.0, summary.Thresholds.FM)
		assert.Equal(t, 2, summary.HitCounts.FM)
	})
}

func randomWalk(seed int64, n int) []domain.Candle {
	rnd := rand.New(rand.NewSource(seed))
	candles := make([]domain.Candle, 0, n)
	price := 60000.0
	for i := 0; i < n; i++ {
		open := price
		price += (rnd.Float64() - 0.5) * 400
		high := max(open, price) + rnd.Float64()*150
		low := min(open, price) - rnd.Float64()*150
		// every fifth candle shares the previous timestamp
		ts := baseTS + int64(i)*minuteMS
		if i%5 == 4 {
			ts -= minuteMS
		}
		candles = append(candles, domain.NewCandle(ts, open, high, low, price))
	}
	return candles
}

func TestDetect_Properties(t *testing.T) {
	candles := randomWalk(42, 1000)

	summary := Detect(candles, 45)
	require.NotNil(t, summary)
	require.NotEmpty(t, summary.Events)

	t.Run("deterministic", func(t *testing.T) {
		first, err := json.Marshal(summary)
		require.NoError(t, err)
		second, err := json.Marshal(Detect(candles, 45))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("events ordered", func(t *testing.T) {
		for i := 1; i < len(summary.Events); i++ {
			prev, cur := summary.Events[i-1], summary.Events[i]
			require.LessOrEqual(t, prev.Timestamp, cur.Timestamp)
			if prev.Timestamp == cur.Timestamp && prev.Index == cur.Index {
				require.Less(t, prev.Tier.Rank(), cur.Tier.Rank())
			}
		}
	})

	t.Run("hit counts match events", func(t *testing.T) {
		total := 0
		for _, tier := range domain.Tiers() {
			n := len(summary.EventsOf(tier))
			assert.Equal(t, summary.HitCounts.For(tier), n)
			total += n
		}
		assert.Equal(t, total, len(summary.Events))
		assert.Equal(t, total, summary.HitCounts.Total())
	})

	t.Run("references chain per tier", func(t *testing.T) {
		for _, tier := range domain.Tiers() {
			byIndex := summary.EventsOf(tier)
			ref := summary.OpeningPrice
			lastIdx := -1
			slices.SortFunc(byIndex, func(a, b domain.MovementEvent) int {
				return a.Index - b.Index
			})
			for _, e := range byIndex {
				require.Greater(t, e.Index, lastIdx)
				require.Equal(t, ref, e.PreviousReference)
				require.Equal(t, e.ObservedPrice-e.PreviousReference, e.Delta)
				require.Equal(t, e.ObservedPrice, e.NewReference)
				ref = e.NewReference
				lastIdx = e.Index
			}
		}
	})
}

func TestDetect_ConcurrentCalls(t *testing.T) {
	candles := randomWalk(7, 300)
	want := Detect(candles, 30)

	var wg sync.WaitGroup
	results := make([]*domain.MovementSummary, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Detect(candles, 30)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}
