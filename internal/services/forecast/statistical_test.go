package forecast

import (
	"context"
	"math"
	"testing"
	"time"

	"Farenheit/internal/domain/models"
	domsvc "Farenheit/internal/domain/service"
)

var day0 = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func daily(prices ...float64) []models.PricePoint {
	out := make([]models.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = models.PricePoint{At: day0.AddDate(0, 0, i), Price: p}
	}
	return out
}

func ramp(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestStatisticalInsufficientDays(t *testing.T) {
	if f := Statistical(nil, 14); f != nil {
		t.Fatalf("expected nil for empty history")
	}
	// Many observations but only two calendar days.
	var pts []models.PricePoint
	for i := 0; i < 10; i++ {
		pts = append(pts, models.PricePoint{At: day0.Add(time.Duration(i) * time.Hour), Price: 100})
		pts = append(pts, models.PricePoint{At: day0.AddDate(0, 0, 1).Add(time.Duration(i) * time.Hour), Price: 110})
	}
	if f := Statistical(pts, 14); f != nil {
		t.Fatalf("expected nil for two daily points, got %+v", f)
	}
}

func TestStatisticalIncreasingIsUp(t *testing.T) {
	f := Statistical(daily(ramp(100, 2, 11)...), 14)
	if f == nil {
		t.Fatalf("expected forecast")
	}
	if f.Direction != models.DirectionUp {
		t.Fatalf("direction = %s", f.Direction)
	}
	if f.Confidence <= 0.1 {
		t.Fatalf("confidence = %v", f.Confidence)
	}
	if math.Abs(f.Trend-2) > 1e-9 {
		t.Fatalf("trend = %v", f.Trend)
	}
}

func TestStatisticalDecreasingIsDown(t *testing.T) {
	f := Statistical(daily(ramp(120, -2, 11)...), 14)
	if f == nil || f.Direction != models.DirectionDown {
		t.Fatalf("expected DOWN, got %+v", f)
	}
}

func TestStatisticalFlatSeries(t *testing.T) {
	prices := make([]float64, 10)
	for i := range prices {
		prices[i] = 150
	}
	f := Statistical(daily(prices...), 14)
	if f == nil {
		t.Fatalf("expected forecast")
	}
	if f.Volatility != minVolatility {
		t.Fatalf("volatility = %v", f.Volatility)
	}
	if f.Direction != models.DirectionStable {
		t.Fatalf("direction = %s", f.Direction)
	}
}

func TestStatisticalBandsAndConfidence(t *testing.T) {
	cases := map[string][]float64{
		"up":       ramp(100, 2, 11),
		"down":     ramp(120, -2, 11),
		"crash":    ramp(1000, -60, 15),
		"volatile": {100, 180, 90, 200, 70, 160, 110, 190},
		"short":    {300, 310, 305},
	}
	for name, prices := range cases {
		f := Statistical(daily(prices...), 14)
		if f == nil {
			t.Fatalf("%s: expected forecast", name)
		}
		if f.Confidence < 0.1 || f.Confidence > 0.95 {
			t.Fatalf("%s: confidence %v out of range", name, f.Confidence)
		}
		if f.Volatility < minVolatility || f.Volatility > maxVolatility {
			t.Fatalf("%s: volatility %v out of range", name, f.Volatility)
		}
		if len(f.Series) != 14 {
			t.Fatalf("%s: series len %d", name, len(f.Series))
		}
		for i, p := range f.Series {
			if p.Low > p.Predicted || p.Predicted > p.High {
				t.Fatalf("%s: point %d band violated: %+v", name, i, p)
			}
		}
		if f.PredictedPrice != f.Series[7].Predicted {
			t.Fatalf("%s: point output is not the midpoint", name)
		}
	}
}

func TestStatisticalSeriesDates(t *testing.T) {
	f := Statistical(daily(100, 101, 102), 5)
	last := models.DateOnly(day0.AddDate(0, 0, 2))
	for i, p := range f.Series {
		if !p.Date.Equal(last.AddDate(0, 0, i+1)) {
			t.Fatalf("point %d date %v", i, p.Date)
		}
	}
	if f.PredictedPrice != f.Series[2].Predicted {
		t.Fatalf("midpoint for horizon 5 should be index 2")
	}
}

func TestStatisticalDailyAggregationUsesMean(t *testing.T) {
	pts := []models.PricePoint{
		{At: day0, Price: 100},
		{At: day0.Add(2 * time.Hour), Price: 200},
		{At: day0.AddDate(0, 0, 1), Price: 150},
		{At: day0.AddDate(0, 0, 2), Price: 150},
	}
	f := Statistical(pts, 14)
	if f == nil {
		t.Fatalf("expected forecast")
	}
	if f.CurrentPrice != 150 {
		t.Fatalf("current = %v", f.CurrentPrice)
	}
	// The low floor uses the raw daily minimum (100), not the mean.
	for _, p := range f.Series {
		if p.Low < 85-1e-9 {
			t.Fatalf("low %v below floor", p.Low)
		}
	}
}

func TestStatisticalRouteScenario(t *testing.T) {
	// ICN->NRT, five daily observations, departure 14 days out.
	prices := []float64{120000, 118000, 115000, 112000, 110000}
	fc := NewStatisticalOnly(DefaultHorizon)
	f, err := fc.Forecast(context.Background(), domsvc.ForecastInput{
		Route:      models.Route{ID: 1, Origin: "ICN", Destination: "NRT", IsActive: true},
		CabinClass: models.CabinEconomy,
		History:    daily(prices...),
	})
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if f == nil {
		t.Fatalf("expected forecast")
	}
	if f.Direction != models.DirectionDown {
		t.Fatalf("direction = %s", f.Direction)
	}
	if f.PredictedPrice >= 120000 {
		t.Fatalf("predicted = %v", f.PredictedPrice)
	}
	if f.ModelVersion != StatisticalVersion {
		t.Fatalf("model version = %s", f.ModelVersion)
	}
}

func TestEMAWeightsRecent(t *testing.T) {
	got := ema([]float64{0, 0, 100}, 3)
	if got <= 100.0/3 {
		t.Fatalf("ema should favour the latest point, got %v", got)
	}
	if v := ema([]float64{5, 5, 5, 5}, 14); math.Abs(v-5) > 1e-9 {
		t.Fatalf("ema of constant = %v", v)
	}
}
