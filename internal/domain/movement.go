package domain

import "fmt"

// Tier sensitivity level of movement detection.
type Tier string

const (
	TierFM Tier = "FM"
	TierLM Tier = "LM"
	TierSM Tier = "SM"
)

// Tiers returns all tiers in evaluation order.
func Tiers() []Tier {
	return []Tier{TierFM, TierLM, TierSM}
}

// Scale returns the fraction of the FM threshold used by the tier.
func (t Tier) Scale() float64 {
	switch t {
	case TierFM:
		return 1
	case TierLM:
		return 0.7
	case TierSM:
		return 0.25
	default:
		return 0
	}
}

// Rank returns the evaluation position of the tier, FM first.
func (t Tier) Rank() int {
	switch t {
	case TierFM:
		return 0
	case TierLM:
		return 1
	case TierSM:
		return 2
	default:
		return 3
	}
}

// ParseTier parses "FM", "LM" or "SM".
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFM, TierLM, TierSM:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

// Direction side of the reference price that was breached.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// thresholdDivisor calibration constant of the spreadsheet methodology.
const thresholdDivisor = 1900

// ThresholdSet price-delta magnitudes per tier.
type ThresholdSet struct {
	FM float64 `json:"FM"`
	LM float64 `json:"LM"`
	SM float64 `json:"SM"`
}

// NewThresholdSet derives all tier thresholds from the volatility percentage
// and the opening price. LM and SM are always fixed fractions of FM.
func NewThresholdSet(volatilityPercent, openingPrice float64) ThresholdSet {
	fm := (volatilityPercent / thresholdDivisor) * openingPrice

	return ThresholdSet{
		FM: fm,
		LM: fm * TierLM.Scale(),
		SM: fm * TierSM.Scale(),
	}
}

// For returns the threshold of the tier.
func (s ThresholdSet) For(t Tier) float64 {
	switch t {
	case TierFM:
		return s.FM
	case TierLM:
		return s.LM
	case TierSM:
		return s.SM
	default:
		return 0
	}
}

// HitCounts number of events per tier.
type HitCounts struct {
	FM int `json:"FM"`
	LM int `json:"LM"`
	SM int `json:"SM"`
}

// For returns the count of the tier.
func (h HitCounts) For(t Tier) int {
	switch t {
	case TierFM:
		return h.FM
	case TierLM:
		return h.LM
	case TierSM:
		return h.SM
	default:
		return 0
	}
}

// Add increments the count of the tier by n.
func (h *HitCounts) Add(t Tier, n int) {
	switch t {
	case TierFM:
		h.FM += n
	case TierLM:
		h.LM += n
	case TierSM:
		h.SM += n
	}
}

// Total returns the sum over all tiers.
func (h HitCounts) Total() int {
	return h.FM + h.LM + h.SM
}

// MovementEvent single threshold breach of one tier.
type MovementEvent struct {
	// Index position of the candle in the scanned sequence.
	Index             int       `json:"idx"`
	Timestamp         int64     `json:"timestamp"`
	Tier              Tier      `json:"type"`
	Direction         Direction `json:"direction"`
	ObservedPrice     float64   `json:"price_observed"`
	ThresholdLevel    float64   `json:"threshold_level"`
	PreviousReference float64   `json:"prev_neutral"`
	NewReference      float64   `json:"new_neutral"`
	// Delta is ObservedPrice - PreviousReference.
	Delta float64 `json:"diff_from_prev"`
}

// MovementSummary result of one detection run.
type MovementSummary struct {
	OpeningPrice      float64         `json:"opening_price"`
	VolatilityPercent float64         `json:"iv_percent"`
	Thresholds        ThresholdSet    `json:"thresholds"`
	HitCounts         HitCounts       `json:"totals"`
	Events            []MovementEvent `json:"events"`
}

// EventsOf returns the events of a single tier in log order.
func (s *MovementSummary) EventsOf(t Tier) []MovementEvent {
	if s == nil {
		return nil
	}

	out := make([]MovementEvent, 0, s.HitCounts.For(t))
	for _, e := range s.Events {
		if e.Tier == t {
			out = append(out, e)
		}
	}
	return out
}
