package forecast

import (
	"context"
	"math"
	"sort"
	"time"

	"Farenheit/internal/domain/models"
	domsvc "Farenheit/internal/domain/service"
	"Farenheit/internal/services/features"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	StatisticalVersion = "statistical-v2"
	DefaultHorizon     = 14

	minDailyPoints    = 3
	shortSpan         = 3
	longSpanMax       = 14
	trendWindowMax    = 30
	directionWindow   = 10
	directionBand     = 0.015
	minVolatility     = 0.01
	maxVolatility     = 0.3
	defaultVolatility = 0.05
	pctChangeMinBase  = 0.01
	bandWidth         = 1.2
	lowFloorRatio     = 0.85
)

// Day-of-week price factors, Monday first.
var dowFactors = [7]float64{0.98, 0.97, 0.98, 1.00, 1.03, 1.04, 1.02}

type dailyPoint struct {
	Date time.Time
	Mean float64
	Min  float64
	Max  float64
}

// StatisticalOnly is the dependency-free forecaster: EMA, trend, volatility
// and a fixed weekly seasonality.
type StatisticalOnly struct {
	horizon int
}

func NewStatisticalOnly(horizon int) *StatisticalOnly {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &StatisticalOnly{horizon: horizon}
}

func (s *StatisticalOnly) ModelVersion() string { return StatisticalVersion }

func (s *StatisticalOnly) Forecast(_ context.Context, in domsvc.ForecastInput) (*models.Forecast, error) {
	h := in.Horizon
	if h <= 0 {
		h = s.horizon
	}
	return Statistical(in.History, h), nil
}

var _ domsvc.Forecaster = (*StatisticalOnly)(nil)

// Statistical forecasts horizon days past the last observed day. It returns
// nil when fewer than three calendar days of history exist.
func Statistical(points []models.PricePoint, horizon int) *models.Forecast {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	daily := aggregateDaily(points)
	n := len(daily)
	if n < minDailyPoints {
		return nil
	}

	prices := make([]float64, n)
	minObserved := daily[0].Min
	for i, d := range daily {
		prices[i] = d.Mean
		if d.Min < minObserved {
			minObserved = d.Min
		}
	}
	current := prices[n-1]

	emaShort := ema(prices, shortSpan)
	emaLong := ema(prices, min(n, longSpanMax))
	trend := olsSlope(prices[n-min(n, trendWindowMax):])
	vol := volatility(prices)
	dir := direction(prices[n-min(n, directionWindow):])
	conf := confidence(n, vol, trend, current)

	series := make([]models.ForecastPoint, 0, horizon)
	last := daily[n-1].Date
	for d := 1; d <= horizon; d++ {
		fd := float64(d)
		date := last.AddDate(0, 0, d)

		emaComp := emaShort + (emaLong-emaShort)*(fd/float64(horizon))*0.3
		trendComp := current + trend*fd/(1+0.05*fd)
		pred := (0.6*emaComp + 0.4*trendComp) * dowFactors[features.MondayIndex(date.Weekday())]
		pred = math.Max(pred, 0)

		hw := current * vol * math.Sqrt(fd) * bandWidth
		low := math.Max(pred-hw, lowFloorRatio*minObserved)
		if low > pred {
			low = pred
		}
		series = append(series, models.ForecastPoint{
			Date:      date,
			Predicted: pred,
			Low:       low,
			High:      pred + hw,
		})
	}

	mid := series[horizon/2]
	return &models.Forecast{
		PredictedPrice: mid.Predicted,
		ConfidenceLow:  mid.Low,
		ConfidenceHigh: mid.High,
		Direction:      dir,
		Confidence:     conf,
		CurrentPrice:   current,
		Volatility:     vol,
		Trend:          trend,
		ModelVersion:   StatisticalVersion,
		Series:         series,
	}
}

func aggregateDaily(points []models.PricePoint) []dailyPoint {
	type acc struct {
		sum, min, max float64
		n             int
	}
	byDay := make(map[time.Time]*acc)
	for _, p := range points {
		day := models.DateOnly(p.At)
		a, ok := byDay[day]
		if !ok {
			byDay[day] = &acc{sum: p.Price, min: p.Price, max: p.Price, n: 1}
			continue
		}
		a.sum += p.Price
		a.n++
		a.min = math.Min(a.min, p.Price)
		a.max = math.Max(a.max, p.Price)
	}

	out := make([]dailyPoint, 0, len(byDay))
	for day, a := range byDay {
		out = append(out, dailyPoint{Date: day, Mean: a.sum / float64(a.n), Min: a.min, Max: a.max})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// ema weights the last span points by exp(linspace(-1, 0, span)), normalised,
// so the most recent point weighs most.
func ema(data []float64, span int) float64 {
	span = min(span, len(data))
	if span < 2 {
		return data[len(data)-1]
	}
	w := make([]float64, span)
	floats.Span(w, -1, 0)
	for i := range w {
		w[i] = math.Exp(w[i])
	}
	floats.Scale(1/floats.Sum(w), w)
	return floats.Dot(w, data[len(data)-span:])
}

func olsSlope(ys []float64) float64 {
	if len(ys) < 2 {
		return 0
	}
	_, beta := stat.LinearRegression(index(len(ys)), ys, nil, false)
	return beta
}

// volatility is the population std of day-over-day fractional changes.
func volatility(prices []float64) float64 {
	changes := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if math.Abs(prev) < pctChangeMinBase {
			continue
		}
		changes = append(changes, (prices[i]-prev)/prev)
	}
	if len(changes) < 2 {
		return defaultVolatility
	}
	_, std := stat.PopMeanStdDev(changes, nil)
	return clamp(std, minVolatility, maxVolatility)
}

// direction fits a line weighted 0.5 -> 1.0 toward recent points and
// classifies the implied fractional change over the window.
func direction(window []float64) models.Direction {
	k := len(window)
	if k < 2 {
		return models.DirectionStable
	}
	w := make([]float64, k)
	floats.Span(w, 0.5, 1.0)
	_, slope := stat.LinearRegression(index(k), window, w, false)
	mean := stat.Mean(window, nil)
	if mean == 0 {
		return models.DirectionStable
	}
	frac := slope * float64(k) / mean
	switch {
	case frac > directionBand:
		return models.DirectionUp
	case frac < -directionBand:
		return models.DirectionDown
	default:
		return models.DirectionStable
	}
}

func confidence(n int, vol, trend, current float64) float64 {
	data := math.Min(float64(n)/20, 1)
	stability := math.Max(0, 1-3*vol)
	strength := math.Min(math.Abs(trend)/(current+1)*100, 1)
	return clamp(0.4*data+0.3*stability+0.3*strength, 0.1, 0.95)
}

func index(n int) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	return xs
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
