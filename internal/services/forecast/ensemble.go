package forecast

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"Farenheit/internal/domain/models"
	domsvc "Farenheit/internal/domain/service"
	svcmetrics "Farenheit/internal/service/metrics"
	applogger "Farenheit/pkg/logger"
)

const (
	EnsembleVersion = "ensemble-v1"

	DefaultSeasonalReliability = 0.6
	DefaultMinObservations     = 7
	classifierOverride         = 0.75
	seasonalDirectionBand      = 0.02
)

// EnsembleConfig tunes the combiner.
type EnsembleConfig struct {
	Horizon int
	// SeasonalReliability is the fixed weight given to the seasonal model in
	// the combined confidence.
	SeasonalReliability float64
	MinObservations     int
	Timeout             time.Duration
}

// EnsembleWithModels combines a seasonal model and a direction classifier,
// falling back to the statistical forecast when either is missing or fails.
type EnsembleWithModels struct {
	cfg        EnsembleConfig
	seasonal   domsvc.SeasonalModel
	classifier domsvc.DirectionClassifier
	l          *applogger.Logger
}

func NewEnsembleWithModels(cfg EnsembleConfig, seasonal domsvc.SeasonalModel, classifier domsvc.DirectionClassifier, l *applogger.Logger) *EnsembleWithModels {
	if cfg.SeasonalReliability <= 0 {
		cfg.SeasonalReliability = DefaultSeasonalReliability
	}
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = DefaultMinObservations
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultHorizon
	}
	return &EnsembleWithModels{
		cfg:        cfg,
		seasonal:   seasonal,
		classifier: classifier,
		l:          l,
	}
}

func (e *EnsembleWithModels) ModelVersion() string { return EnsembleVersion }

// Forecast returns an ensemble forecast, or the statistical forecast (tagged
// with its own model version) when the models cannot be used.
func (e *EnsembleWithModels) Forecast(ctx context.Context, in domsvc.ForecastInput) (*models.Forecast, error) {
	base := Statistical(in.History, e.horizon(in))
	if len(in.History) < e.cfg.MinObservations {
		return base, nil
	}
	if !e.seasonal.Available(ctx, in.Route) || !e.classifier.Available(ctx, in.Route) {
		svcmetrics.ModelFallbacks.WithLabelValues("unavailable").Inc()
		return base, nil
	}

	sf, dp, err := e.consult(ctx, in)
	if err != nil {
		svcmetrics.ModelFallbacks.WithLabelValues("error").Inc()
		if e.l != nil {
			e.l.Warn("ensemble models failed, using statistical forecast",
				applogger.String("route", in.Route.Code()),
				applogger.String("cabin", string(in.CabinClass)),
				applogger.Error(err),
			)
		}
		return base, nil
	}
	if len(sf.Series) == 0 {
		svcmetrics.ModelFallbacks.WithLabelValues("empty").Inc()
		return base, nil
	}
	return e.combine(sf, dp, base, in.History), nil
}

func (e *EnsembleWithModels) horizon(in domsvc.ForecastInput) int {
	if in.Horizon > 0 {
		return in.Horizon
	}
	return e.cfg.Horizon
}

// consult calls both models concurrently under one timeout.
func (e *EnsembleWithModels) consult(ctx context.Context, in domsvc.ForecastInput) (*domsvc.SeasonalForecast, *domsvc.DirectionPrediction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	horizon := e.horizon(in)
	var (
		wg     sync.WaitGroup
		sf     *domsvc.SeasonalForecast
		dp     *domsvc.DirectionPrediction
		sfErr  error
		clfErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		sf, sfErr = e.seasonal.Forecast(ctx, in.Route, in.History, horizon)
	}()
	go func() {
		defer wg.Done()
		dp, clfErr = e.classifier.Predict(ctx, in.Route, in.Features)
	}()
	wg.Wait()

	if sfErr != nil {
		return nil, nil, fmt.Errorf("seasonal: %w", sfErr)
	}
	if clfErr != nil {
		return nil, nil, fmt.Errorf("classifier: %w", clfErr)
	}
	if sf == nil || dp == nil {
		return nil, nil, models.ErrModelUnavailable
	}
	return sf, dp, nil
}

func (e *EnsembleWithModels) combine(sf *domsvc.SeasonalForecast, dp *domsvc.DirectionPrediction, base *models.Forecast, history []models.PricePoint) *models.Forecast {
	seasonalDir := sf.Direction
	if seasonalDir == "" {
		seasonalDir = SeasonalDirection(sf.Series)
	}
	clfDir := models.DirectionUp
	if dp.WillDrop {
		clfDir = models.DirectionDown
	}

	mid := sf.Series[len(sf.Series)/2]
	low := math.Min(mid.Low, mid.Predicted)
	high := math.Max(mid.High, mid.Predicted)

	out := &models.Forecast{
		PredictedPrice: mid.Predicted,
		ConfidenceLow:  low,
		ConfidenceHigh: high,
		Direction:      CombineDirections(seasonalDir, clfDir, dp.Confidence),
		Confidence:     clamp(e.cfg.SeasonalReliability*0.5+dp.Confidence*0.5, 0, 1),
		ModelVersion:   EnsembleVersion,
		Series:         sf.Series,
	}
	if base != nil {
		out.CurrentPrice = base.CurrentPrice
		out.Volatility = base.Volatility
		out.Trend = base.Trend
	} else if len(history) > 0 {
		out.CurrentPrice = history[len(history)-1].Price
	}
	return out
}

// CombineDirections agrees when both models agree; on disagreement the
// classifier wins only above 0.75 confidence.
func CombineDirections(seasonal, classifier models.Direction, classifierConfidence float64) models.Direction {
	if seasonal == classifier {
		return seasonal
	}
	if classifierConfidence > classifierOverride {
		return classifier
	}
	return seasonal
}

// SeasonalDirection classifies the change from the first to the last
// forecast value with a 2% band.
func SeasonalDirection(series []models.ForecastPoint) models.Direction {
	if len(series) < 2 || series[0].Predicted == 0 {
		return models.DirectionStable
	}
	first := series[0].Predicted
	change := (series[len(series)-1].Predicted - first) / first
	switch {
	case change > seasonalDirectionBand:
		return models.DirectionUp
	case change < -seasonalDirectionBand:
		return models.DirectionDown
	default:
		return models.DirectionStable
	}
}

var _ domsvc.Forecaster = (*EnsembleWithModels)(nil)
