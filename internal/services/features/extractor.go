package features

import (
	"sort"
	"time"

	"Farenheit/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// Rolling window sizes, in observations.
var rollingWindows = [3]int{7, 14, 30}

// Extract derives one feature row per observation. Points are sorted by time
// first; empty input yields an empty (non-nil) slice.
func Extract(points []models.PricePoint, departure time.Time) []models.FeatureRow {
	out := make([]models.FeatureRow, 0, len(points))
	if len(points) == 0 {
		return out
	}

	pts := make([]models.PricePoint, len(points))
	copy(pts, points)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].At.Before(pts[j].At) })

	prices := make([]float64, len(pts))
	for i, p := range pts {
		prices[i] = p.Price
	}
	lo, hi := minMax(prices)

	dep := models.DateOnly(departure)
	depDOW := MondayIndex(dep.Weekday())
	depMonth := int(dep.Month())
	holiday := IsHolidayMonth(dep.Month())

	for i, p := range pts {
		dow := MondayIndex(p.At.UTC().Weekday())
		row := models.FeatureRow{
			ObservedAt:         p.At,
			Price:              p.Price,
			DaysUntilDeparture: DaysBetween(p.At, dep),
			DayOfWeek:          dow,
			IsWeekend:          dow >= 5,
			DepartureDayOfWeek: depDOW,
			DepartureMonth:     depMonth,
			IsHolidaySeason:    holiday,
			PricePosition:      0.5,
		}
		row.RollingMean7, row.RollingStd7 = rolling(prices, i, rollingWindows[0])
		row.RollingMean14, row.RollingStd14 = rolling(prices, i, rollingWindows[1])
		row.RollingMean30, row.RollingStd30 = rolling(prices, i, rollingWindows[2])

		if i >= 1 {
			row.PriceChange1d = prices[i] - prices[i-1]
			if prices[i-1] != 0 {
				row.PricePctChange = (prices[i] - prices[i-1]) / prices[i-1]
			}
		}
		if i >= 7 {
			row.PriceChange7d = prices[i] - prices[i-7]
		}
		if hi > lo {
			row.PricePosition = (p.Price - lo) / (hi - lo)
		}
		out = append(out, row)
	}
	return out
}

// rolling returns the mean and sample std of the trailing window ending at i.
// Partial windows use what is available; std is 0 below two points.
func rolling(prices []float64, i, window int) (mean, std float64) {
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	w := prices[start : i+1]
	mean = stat.Mean(w, nil)
	if len(w) >= 2 {
		std = stat.StdDev(w, nil)
	}
	return mean, std
}

func minMax(xs []float64) (float64, float64) {
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}

// MondayIndex maps a weekday to Monday=0 .. Sunday=6.
func MondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// IsHolidayMonth reports peak travel months.
func IsHolidayMonth(m time.Month) bool {
	switch m {
	case time.June, time.July, time.August, time.December:
		return true
	default:
		return false
	}
}

// DaysBetween returns whole calendar days from the date of t to departure.
// Negative when t is after departure.
func DaysBetween(t, departure time.Time) int {
	return int(models.DateOnly(departure).Sub(models.DateOnly(t)).Hours() / 24)
}
