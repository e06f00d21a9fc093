package models

import "time"

// Signal is the purchase recommendation derived from a prediction.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalWait Signal = "WAIT"
	SignalHold Signal = "HOLD"
)

// Recommendation is the deriver output for one route/date/cabin.
// Prices are nil when no prediction backs the signal.
type Recommendation struct {
	RouteID        int64      `json:"route_id"`
	Route          string     `json:"route,omitempty"`
	DepartureDate  time.Time  `json:"departure_date"`
	CabinClass     CabinClass `json:"cabin_class"`
	Signal         Signal     `json:"signal"`
	Confidence     float64    `json:"confidence"`
	Direction      Direction  `json:"price_direction,omitempty"`
	BestAirline    string     `json:"best_airline,omitempty"`
	CurrentPrice   *float64   `json:"current_price,omitempty"`
	PredictedPrice *float64   `json:"predicted_price,omitempty"`
	PredictedLow   *float64   `json:"predicted_low,omitempty"`
	ModelVersion   string     `json:"model_version,omitempty"`
	Reasoning      string     `json:"reasoning"`
	GeneratedAt    time.Time  `json:"generated_at"`
	// ValidUntil is the source prediction's expiry; nil for a data-less HOLD.
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// Expired reports whether the recommendation outlived its prediction.
func (r *Recommendation) Expired(now time.Time) bool {
	return r.ValidUntil != nil && !now.Before(*r.ValidUntil)
}
