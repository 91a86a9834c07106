package domain

import "time"

// AnalysisReport movement summary enriched with the request it answers.
type AnalysisReport struct {
	RunID       string           `json:"run_id"`
	Platform    string           `json:"platform"`
	Pair        string           `json:"instrument"`
	Interval    string           `json:"resolution"`
	StartDate   string           `json:"start_date"`
	EndDate     string           `json:"end_date"`
	Timezone    string           `json:"timezone"`
	From        time.Time        `json:"from"`
	To          time.Time        `json:"to"`
	CandleCount int              `json:"candle_count"`
	Movements   *MovementSummary `json:"movements"`

	location *time.Location
}

// SetLocation sets the zone used to render event times.
func (r *AnalysisReport) SetLocation(loc *time.Location) {
	r.location = loc
}

// Location returns the zone used to render event times, UTC when unset.
func (r *AnalysisReport) Location() *time.Location {
	if r == nil || r.location == nil {
		return time.UTC
	}
	return r.location
}
