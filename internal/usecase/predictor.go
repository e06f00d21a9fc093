package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"
	domsvc "Farenheit/internal/domain/service"
	"Farenheit/internal/services/features"
	applogger "Farenheit/pkg/logger"
)

// PredictionOffsets returns weekly target dates from 7 to 56 days out.
func PredictionOffsets() []int {
	out := make([]int, 0, 8)
	for d := 7; d <= 56; d += 7 {
		out = append(out, d)
	}
	return out
}

// PredictorConfig tunes the prediction stage.
type PredictorConfig struct {
	Cabins          []models.CabinClass
	HistoryLookback time.Duration
	Horizon         int
	ValidFor        time.Duration
}

// Predictor forecasts every active route/cabin/target date and upserts
// a route-wide prediction per forecaster model version.
type Predictor struct {
	routes      domrepo.RouteStore
	prices      domrepo.PriceHistoryReader
	predictions domrepo.PredictionStore
	forecaster  domsvc.Forecaster
	cfg         PredictorConfig
	offsets     []int
	o           StageOptions
}

func NewPredictor(routes domrepo.RouteStore, prices domrepo.PriceHistoryReader, predictions domrepo.PredictionStore, forecaster domsvc.Forecaster, cfg PredictorConfig, o StageOptions) *Predictor {
	if len(cfg.Cabins) == 0 {
		cfg.Cabins = []models.CabinClass{models.DefaultCabinClass()}
	}
	if cfg.HistoryLookback <= 0 {
		cfg.HistoryLookback = 90 * 24 * time.Hour
	}
	if cfg.ValidFor <= 0 {
		cfg.ValidFor = 6 * time.Hour
	}
	return &Predictor{
		routes:      routes,
		prices:      prices,
		predictions: predictions,
		forecaster:  forecaster,
		cfg:         cfg,
		offsets:     PredictionOffsets(),
		o:           o.normalize(),
	}
}

func (p *Predictor) Run(ctx context.Context) (*models.StageSummary, error) {
	sum := models.NewStageSummary(models.StagePredict, p.o.Now())

	routes, err := p.routes.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active routes: %w", err)
	}
	units := expandUnits(routes, p.cfg.Cabins, models.DateOnly(p.o.Now()), p.offsets)

	var upserted, inserted atomic.Int64
	results, runErr := runUnits(ctx, p.o, models.StagePredict, units, func(ctx context.Context, u seriesUnit) models.UnitResult {
		pred, err := p.predict(ctx, u)
		if err != nil {
			return models.UnitFailed(u.String(), err)
		}
		if pred == nil {
			return models.UnitSkipped(u.String(), "insufficient history")
		}
		isNew, err := p.predictions.Upsert(ctx, pred)
		if err != nil {
			p.o.Metrics.RecordError("prediction_store")
			return models.UnitFailed(u.String(), err)
		}
		upserted.Add(1)
		if isNew {
			inserted.Add(1)
		}
		p.o.Metrics.RecordPredictionUpserted(pred.ModelVersion, isNew)
		return models.UnitOK(u.String())
	})

	n := int(upserted.Load())
	sum.Inc("routes_processed", len(routes))
	sum.Inc("predictions_upserted", n)
	sum.Inc("predictions_inserted", int(inserted.Load()))
	skipped := 0
	for _, r := range results {
		if r.Outcome == models.OutcomeSkipped {
			skipped++
		}
	}
	sum.Inc("skipped", skipped)
	if p.o.Logger != nil {
		p.o.Logger.Info("prediction complete",
			applogger.Int("routes", len(routes)),
			applogger.Int("upserted", n),
			applogger.Int("skipped", skipped),
			applogger.String("model_version", p.forecaster.ModelVersion()),
		)
	}
	return finish(sum, results, runErr, p.o.Now(), n)
}

// predict returns nil when the series is too short to forecast.
func (p *Predictor) predict(ctx context.Context, u seriesUnit) (*models.Prediction, error) {
	now := p.o.Now()
	hist, err := p.prices.History(ctx, domrepo.HistoryFilter{
		RouteID:       u.route.ID,
		DepartureDate: u.departure,
		CabinClass:    u.cabin,
		Since:         now.Add(-p.cfg.HistoryLookback),
	})
	if err != nil {
		p.o.Metrics.RecordError("price_store")
		return nil, fmt.Errorf("load history: %w", err)
	}
	points := models.PricePoints(hist)

	start := time.Now()
	f, err := p.forecaster.Forecast(ctx, domsvc.ForecastInput{
		Route:      u.route,
		CabinClass: u.cabin,
		History:    points,
		Features:   features.Extract(points, u.departure),
		Horizon:    p.cfg.Horizon,
	})
	p.o.Metrics.RecordLatency("forecast", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}
	if f == nil {
		return nil, nil
	}

	return &models.Prediction{
		RouteID:        u.route.ID,
		DepartureDate:  u.departure,
		CabinClass:     u.cabin,
		ModelVersion:   f.ModelVersion,
		PredictedPrice: f.PredictedPrice,
		ConfidenceLow:  f.ConfidenceLow,
		ConfidenceHigh: f.ConfidenceHigh,
		Direction:      f.Direction,
		Confidence:     f.Confidence,
		CurrentPrice:   f.CurrentPrice,
		BestAirline:    BestAirline(hist),
		Series:         f.Series,
		PredictedAt:    now,
		ValidUntil:     now.Add(p.cfg.ValidFor),
	}, nil
}

// BestAirline returns the carrier with the cheapest most recent fare.
func BestAirline(obs []models.PriceObservation) string {
	latest := map[string]models.PriceObservation{}
	for _, o := range obs {
		if cur, ok := latest[o.Airline]; !ok || !o.ObservedAt.Before(cur.ObservedAt) {
			latest[o.Airline] = o
		}
	}
	best := ""
	var bestObs models.PriceObservation
	for airline, o := range latest {
		if best == "" || o.Price.LessThan(bestObs.Price) || (o.Price.Equal(bestObs.Price) && airline < best) {
			best, bestObs = airline, o
		}
	}
	return best
}
