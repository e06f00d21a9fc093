package models

import "time"

// Direction is the expected price movement over the forecast horizon.
type Direction string

const (
	DirectionUp     Direction = "UP"
	DirectionDown   Direction = "DOWN"
	DirectionStable Direction = "STABLE"
)

// ForecastPoint is one day of a forecast series.
type ForecastPoint struct {
	Date      time.Time `json:"date"`
	Predicted float64   `json:"predicted"`
	Low       float64   `json:"low"`
	High      float64   `json:"high"`
}

// Forecast is the output of a forecaster for one series. A nil *Forecast
// means the history was too short to forecast.
type Forecast struct {
	PredictedPrice float64         `json:"predicted_price"`
	ConfidenceLow  float64         `json:"confidence_low"`
	ConfidenceHigh float64         `json:"confidence_high"`
	Direction      Direction       `json:"direction"`
	Confidence     float64         `json:"confidence"`
	CurrentPrice   float64         `json:"current_price"`
	Volatility     float64         `json:"volatility"`
	Trend          float64         `json:"trend"`
	ModelVersion   string          `json:"model_version"`
	Series         []ForecastPoint `json:"series"`
}

// Prediction is a persisted forecast. It is unique on
// (RouteID, Airline, DepartureDate, CabinClass, ModelVersion); Airline is
// empty for route-wide predictions.
type Prediction struct {
	ID             int64           `json:"id"`
	RouteID        int64           `json:"route_id"`
	Airline        string          `json:"airline"`
	DepartureDate  time.Time       `json:"departure_date"`
	CabinClass     CabinClass      `json:"cabin_class"`
	ModelVersion   string          `json:"model_version"`
	PredictedPrice float64         `json:"predicted_price"`
	ConfidenceLow  float64         `json:"confidence_low"`
	ConfidenceHigh float64         `json:"confidence_high"`
	Direction      Direction       `json:"price_direction"`
	Confidence     float64         `json:"confidence_score"`
	CurrentPrice   float64         `json:"current_price"`
	BestAirline    string          `json:"best_airline,omitempty"`
	Series         []ForecastPoint `json:"forecast_series,omitempty"`
	PredictedAt    time.Time       `json:"predicted_at"`
	ValidUntil     time.Time       `json:"valid_until"`
}

// PredictionKey is the natural key of a prediction.
type PredictionKey struct {
	RouteID       int64
	Airline       string
	DepartureDate time.Time
	CabinClass    CabinClass
	ModelVersion  string
}

// Key returns the natural key of p.
func (p Prediction) Key() PredictionKey {
	return PredictionKey{
		RouteID:       p.RouteID,
		Airline:       p.Airline,
		DepartureDate: DateOnly(p.DepartureDate),
		CabinClass:    p.CabinClass,
		ModelVersion:  p.ModelVersion,
	}
}

// IsStale reports whether the prediction is past its validity window.
func (p Prediction) IsStale(now time.Time) bool {
	return !p.ValidUntil.IsZero() && now.After(p.ValidUntil)
}

// DateOnly truncates t to a UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
