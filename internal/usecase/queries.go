package usecase

import (
	"context"
	"fmt"
	"time"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"
	domsvc "Farenheit/internal/domain/service"
	"Farenheit/internal/services/features"
	"Farenheit/internal/services/recommend"
	xutil "Farenheit/pkg/util"
)

// FlightQueries serves the read API from the stores and the recommendation cache.
type FlightQueries struct {
	routes      domrepo.RouteStore
	prices      domrepo.PriceHistoryReader
	predictions domrepo.PredictionStore
	cache       domrepo.RecommendationCache
	forecaster  domsvc.Forecaster
	now         func() time.Time
}

func NewFlightQueries(routes domrepo.RouteStore, prices domrepo.PriceHistoryReader, predictions domrepo.PredictionStore, cache domrepo.RecommendationCache, forecaster domsvc.Forecaster) *FlightQueries {
	return &FlightQueries{routes: routes, prices: prices, predictions: predictions, cache: cache, forecaster: forecaster, now: time.Now}
}

// ResolveRoute returns the id of the selected route. Routes named by codes
// are created on first use.
func (q *FlightQueries) ResolveRoute(ctx context.Context, sel models.RouteSelector) (int64, error) {
	route, err := resolveRoute(ctx, q.routes, sel)
	if err != nil {
		return 0, err
	}
	return route.ID, nil
}

// Recommendation returns the cached signal or derives one from the latest prediction.
func (q *FlightQueries) Recommendation(ctx context.Context, routeID int64, departure time.Time, cabin models.CabinClass) (*models.Recommendation, error) {
	route, err := q.routes.Get(ctx, routeID)
	if err != nil {
		return nil, err
	}
	now := q.now()
	if q.cache != nil {
		if rec, ok, err := q.cache.Get(ctx, routeID, departure, cabin); err == nil && ok && !rec.Expired(now) {
			return rec, nil
		}
	}
	pred, err := q.predictions.Latest(ctx, routeID, departure, cabin, now)
	if err != nil {
		return nil, fmt.Errorf("latest prediction: %w", err)
	}
	rec := recommend.Derive(route, departure, cabin, pred, now)
	return &rec, nil
}

// Predictions lists the valid predictions of a route, ordered by departure date.
func (q *FlightQueries) Predictions(ctx context.Context, routeID int64, cabin models.CabinClass) ([]models.Prediction, error) {
	if _, err := q.routes.Get(ctx, routeID); err != nil {
		return nil, err
	}
	return q.predictions.ListByRoute(ctx, routeID, cabin, q.now())
}

type ForecastParams struct {
	RouteID   int64
	Departure time.Time
	Cabin     models.CabinClass
	Horizon   int
	Lookback  time.Duration
}

// Forecast runs the forecaster over stored history without persisting.
func (q *FlightQueries) Forecast(ctx context.Context, p ForecastParams) (*models.Forecast, error) {
	route, err := q.routes.Get(ctx, p.RouteID)
	if err != nil {
		return nil, err
	}
	if p.Lookback <= 0 {
		p.Lookback = 90 * 24 * time.Hour
	}
	hist, err := q.prices.History(ctx, domrepo.HistoryFilter{
		RouteID:       p.RouteID,
		DepartureDate: p.Departure,
		CabinClass:    p.Cabin,
		Since:         q.now().Add(-p.Lookback),
	})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	points := models.PricePoints(hist)
	f, err := q.forecaster.Forecast(ctx, domsvc.ForecastInput{
		Route:      *route,
		CabinClass: p.Cabin,
		History:    points,
		Features:   features.Extract(points, p.Departure),
		Horizon:    p.Horizon,
	})
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}
	if f == nil {
		return nil, fmt.Errorf("route %s: %w", route.Code(), models.ErrInsufficientData)
	}
	return f, nil
}

type HistoryParams struct {
	RouteID   int64
	Departure time.Time
	Cabin     models.CabinClass
	Airline   string
	Days      int
}

type HistoryResult struct {
	Route         string                    `json:"route"`
	DepartureDate string                    `json:"departure_date"`
	CabinClass    models.CabinClass         `json:"cabin_class"`
	Airline       string                    `json:"airline,omitempty"`
	From          time.Time                 `json:"from"`
	Count         int                       `json:"count"`
	Stats         models.PriceStats         `json:"stats"`
	Observations  []models.PriceObservation `json:"observations"`
}

// History returns one observation series over the last p.Days days with summary stats.
func (q *FlightQueries) History(ctx context.Context, p HistoryParams) (*HistoryResult, error) {
	p.Days = xutil.ClampDays(p.Days, 30, 1, 180)
	route, err := q.routes.Get(ctx, p.RouteID)
	if err != nil {
		return nil, err
	}
	from := q.now().AddDate(0, 0, -p.Days)
	obs, err := q.prices.History(ctx, domrepo.HistoryFilter{
		RouteID:       p.RouteID,
		DepartureDate: p.Departure,
		CabinClass:    p.Cabin,
		Airline:       p.Airline,
		Since:         from,
	})
	if err != nil {
		return nil, fmt.Errorf("price history: %w", err)
	}
	return &HistoryResult{
		Route:         route.Code(),
		DepartureDate: models.DateOnly(p.Departure).Format("2006-01-02"),
		CabinClass:    p.Cabin,
		Airline:       p.Airline,
		From:          from,
		Count:         len(obs),
		Stats:         models.SummarizePrices(obs),
		Observations:  obs,
	}, nil
}
