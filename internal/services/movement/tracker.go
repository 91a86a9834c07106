package movement

import "github.com/vadiminshakov/movements/internal/domain"

// tracker ratchets the reference price of a single tier.
type tracker struct {
	tier      domain.Tier
	threshold float64
	reference float64
}

func newTracker(tier domain.Tier, threshold, opening float64) *tracker {
	return &tracker{
		tier:      tier,
		threshold: threshold,
		reference: opening,
	}
}

// scan runs the tracker over the whole sequence.
func (t *tracker) scan(candles []domain.Candle) []domain.MovementEvent {
	var events []domain.MovementEvent
	for i, c := range candles {
		if e, ok := t.step(i, c); ok {
			events = append(events, e)
		}
	}
	return events
}

// step evaluates one candle. The upward check wins; the downward check
// runs only when the upward one did not fire.
func (t *tracker) step(i int, c domain.Candle) (domain.MovementEvent, bool) {
	if c.High != nil && *c.High-t.reference >= t.threshold {
		return t.ratchet(i, c.Timestamp, *c.High, domain.DirectionUp), true
	}
	if c.Low != nil && *c.Low-t.reference <= -t.threshold {
		return t.ratchet(i, c.Timestamp, *c.Low, domain.DirectionDown), true
	}
	return domain.MovementEvent{}, false
}

func (t *tracker) ratchet(i int, ts int64, price float64, dir domain.Direction) domain.MovementEvent {
	e := domain.MovementEvent{
		Index:             i,
		Timestamp:         ts,
		Tier:              t.tier,
		Direction:         dir,
		ObservedPrice:     price,
		ThresholdLevel:    t.threshold,
		PreviousReference: t.reference,
		NewReference:      price,
		Delta:             price - t.reference,
	}
	t.reference = price
	return e
}
