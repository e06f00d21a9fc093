package analytics

import (
	"context"
	"fmt"
	"time"

	"Farenheit/internal/domain/models"
	domsvc "Farenheit/internal/domain/service"
	svcmetrics "Farenheit/internal/service/metrics"
)

const seasonalModelName = "seasonal"

// HTTPSeasonalModel calls the model service's seasonal forecaster.
type HTTPSeasonalModel struct{ base *HTTPServiceBase }

func NewHTTPSeasonalModel(base *HTTPServiceBase) *HTTPSeasonalModel {
	return &HTTPSeasonalModel{base: base}
}

type seasonalPoint struct {
	Date  string  `json:"ds"`
	Value float64 `json:"y"`
}

type seasonalReq struct {
	Route   string          `json:"route"`
	History []seasonalPoint `json:"history"`
	Horizon int             `json:"horizon"`
}

type seasonalResp struct {
	Forecast []struct {
		Date  string  `json:"ds"`
		Yhat  float64 `json:"yhat"`
		Lower float64 `json:"yhat_lower"`
		Upper float64 `json:"yhat_upper"`
	} `json:"forecast"`
	Direction string `json:"direction"`
}

func (m *HTTPSeasonalModel) Available(ctx context.Context, route models.Route) bool {
	return m.base.availability(ctx, route).Seasonal
}

func (m *HTTPSeasonalModel) Forecast(ctx context.Context, route models.Route, history []models.PricePoint, horizon int) (result *domsvc.SeasonalForecast, err error) {
	start := time.Now()
	defer func() { svcmetrics.ObserveModelCall(seasonalModelName, start, err) }()

	req := seasonalReq{Route: route.Code(), Horizon: horizon, History: make([]seasonalPoint, 0, len(history))}
	for _, p := range history {
		req.History = append(req.History, seasonalPoint{Date: p.At.UTC().Format(time.RFC3339), Value: p.Price})
	}

	var resp seasonalResp
	if err = m.base.PostJSONWithRetry(ctx, "/seasonal/forecast", req, &resp); err != nil {
		return nil, fmt.Errorf("seasonal forecast %s: %w", route.Code(), err)
	}

	out := &domsvc.SeasonalForecast{Series: make([]models.ForecastPoint, 0, len(resp.Forecast))}
	for _, f := range resp.Forecast {
		d, perr := time.Parse("2006-01-02", f.Date)
		if perr != nil {
			err = fmt.Errorf("seasonal forecast %s: bad date %q: %w", route.Code(), f.Date, perr)
			return nil, err
		}
		out.Series = append(out.Series, models.ForecastPoint{Date: d, Predicted: f.Yhat, Low: f.Lower, High: f.Upper})
	}
	switch dir := models.Direction(resp.Direction); dir {
	case models.DirectionUp, models.DirectionDown, models.DirectionStable:
		out.Direction = dir
	}
	return out, nil
}

var _ domsvc.SeasonalModel = (*HTTPSeasonalModel)(nil)
