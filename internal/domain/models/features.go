package models

import "time"

// FeatureRow is the feature vector for one observation. Every field depends
// only on history up to and including the observation.
type FeatureRow struct {
	ObservedAt          time.Time `json:"observed_at"`
	Price               float64   `json:"price"`
	DaysUntilDeparture  int       `json:"days_until_departure"`
	DayOfWeek           int       `json:"day_of_week"`
	IsWeekend           bool      `json:"is_weekend"`
	DepartureDayOfWeek  int       `json:"departure_day_of_week"`
	DepartureMonth      int       `json:"departure_month"`
	IsHolidaySeason     bool      `json:"is_holiday_season"`
	RollingMean7        float64   `json:"rolling_mean_7"`
	RollingStd7         float64   `json:"rolling_std_7"`
	RollingMean14       float64   `json:"rolling_mean_14"`
	RollingStd14        float64   `json:"rolling_std_14"`
	RollingMean30       float64   `json:"rolling_mean_30"`
	RollingStd30        float64   `json:"rolling_std_30"`
	PriceChange1d       float64   `json:"price_change_1d"`
	PriceChange7d       float64   `json:"price_change_7d"`
	PricePctChange      float64   `json:"price_pct_change"`
	PricePosition       float64   `json:"price_position"`
}

// FeatureNames is the column order of Vector.
var FeatureNames = []string{
	"days_until_departure", "day_of_week", "is_weekend",
	"departure_day_of_week", "departure_month", "is_holiday_season",
	"rolling_mean_7", "rolling_std_7",
	"rolling_mean_14", "rolling_std_14",
	"rolling_mean_30", "rolling_std_30",
	"price_change_1d", "price_change_7d", "price_pct_change",
	"price_position",
}

// Vector returns the row as floats in FeatureNames order.
func (r FeatureRow) Vector() []float64 {
	return []float64{
		float64(r.DaysUntilDeparture), float64(r.DayOfWeek), boolFloat(r.IsWeekend),
		float64(r.DepartureDayOfWeek), float64(r.DepartureMonth), boolFloat(r.IsHolidaySeason),
		r.RollingMean7, r.RollingStd7,
		r.RollingMean14, r.RollingStd14,
		r.RollingMean30, r.RollingStd30,
		r.PriceChange1d, r.PriceChange7d, r.PricePctChange,
		r.PricePosition,
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
