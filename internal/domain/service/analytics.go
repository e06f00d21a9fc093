package service

import (
	"context"

	"Farenheit/internal/domain/models"
)

// ForecastInput is everything a forecaster needs for one series.
type ForecastInput struct {
	Route      models.Route
	CabinClass models.CabinClass
	// History is ordered by time ascending.
	History  []models.PricePoint
	Features []models.FeatureRow
	Horizon  int
}

// Forecaster produces a forecast for one series. A nil forecast with a nil
// error means the history is too short.
type Forecaster interface {
	Forecast(ctx context.Context, in ForecastInput) (*models.Forecast, error)
	ModelVersion() string
}

// SeasonalForecast is the output of the seasonal model.
type SeasonalForecast struct {
	Series []models.ForecastPoint
	// Direction is empty when the model does not report one.
	Direction models.Direction
}

// SeasonalModel forecasts a daily series with trend and seasonality.
type SeasonalModel interface {
	Available(ctx context.Context, route models.Route) bool
	Forecast(ctx context.Context, route models.Route, history []models.PricePoint, horizon int) (*SeasonalForecast, error)
}

// DirectionPrediction is the classifier output.
type DirectionPrediction struct {
	WillDrop   bool
	Confidence float64
}

// DirectionClassifier predicts whether the price will drop.
type DirectionClassifier interface {
	Available(ctx context.Context, route models.Route) bool
	Predict(ctx context.Context, route models.Route, features []models.FeatureRow) (*DirectionPrediction, error)
}
