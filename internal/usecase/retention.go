package usecase

import (
	"context"
	"fmt"
	"time"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"
	applogger "Farenheit/pkg/logger"
)

// Retention prunes old observations and predictions. Routes and alerts are never touched.
type Retention struct {
	prices       domrepo.PriceStore
	predictions  domrepo.PredictionStore
	observations time.Duration
	forecasts    time.Duration
	o            StageOptions
}

func NewRetention(prices domrepo.PriceStore, predictions domrepo.PredictionStore, observationAge, predictionAge time.Duration, o StageOptions) *Retention {
	if observationAge <= 0 {
		observationAge = 180 * 24 * time.Hour
	}
	if predictionAge <= 0 {
		predictionAge = 30 * 24 * time.Hour
	}
	return &Retention{prices: prices, predictions: predictions, observations: observationAge, forecasts: predictionAge, o: o.normalize()}
}

func (r *Retention) Run(ctx context.Context) (*models.StageSummary, error) {
	now := r.o.Now()
	sum := models.NewStageSummary(models.StageRetain, now)

	obs, err := r.prices.DeleteOlderThan(ctx, now.Add(-r.observations))
	if err != nil {
		return nil, fmt.Errorf("prune observations: %w", err)
	}
	sum.Inc("observations_deleted", obs)

	preds, err := r.predictions.DeleteOlderThan(ctx, now.Add(-r.forecasts))
	if err != nil {
		return nil, fmt.Errorf("prune predictions: %w", err)
	}
	sum.Inc("predictions_deleted", preds)

	if r.o.Logger != nil {
		r.o.Logger.Info("retention applied",
			applogger.Int("observations_deleted", obs),
			applogger.Int("predictions_deleted", preds),
		)
	}
	sum.Done(r.o.Now(), obs+preds)
	return sum, nil
}
