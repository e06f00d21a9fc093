// Package recommend turns stored predictions into BUY/WAIT/HOLD signals.
package recommend

import (
	"fmt"
	"strings"
	"time"

	"Farenheit/internal/domain/models"
)

// MinSignalConfidence is the confidence a prediction must exceed before it
// produces anything other than HOLD.
const MinSignalConfidence = 0.6

const insufficientData = "insufficient data, still collecting."

// Derive computes the recommendation for one route, departure date and cabin
// from its latest prediction. A nil route, a nil prediction or a stale
// prediction yields HOLD. pred is never modified.
func Derive(route *models.Route, departure time.Time, cabin models.CabinClass, pred *models.Prediction, now time.Time) models.Recommendation {
	rec := models.Recommendation{
		DepartureDate: models.DateOnly(departure),
		CabinClass:    cabin,
		Signal:        models.SignalHold,
		GeneratedAt:   now,
	}
	if route != nil {
		rec.RouteID = route.ID
		rec.Route = route.Code()
	}
	if route == nil || pred == nil || pred.IsStale(now) {
		rec.Reasoning = insufficientData
		return rec
	}

	rec.Signal = SignalFor(pred.Direction, pred.Confidence)
	rec.Confidence = pred.Confidence
	rec.Direction = pred.Direction
	rec.ModelVersion = pred.ModelVersion
	rec.BestAirline = pred.BestAirline
	if rec.BestAirline == "" {
		rec.BestAirline = pred.Airline
	}
	current, predicted, low := pred.CurrentPrice, pred.PredictedPrice, pred.ConfidenceLow
	rec.CurrentPrice = &current
	rec.PredictedPrice = &predicted
	rec.PredictedLow = &low
	validUntil := pred.ValidUntil
	rec.ValidUntil = &validUntil
	rec.Reasoning = Reasoning(rec.Signal, pred.Direction, pred.Confidence)
	return rec
}

// SignalFor maps a direction and confidence to a signal.
func SignalFor(dir models.Direction, confidence float64) models.Signal {
	if confidence <= MinSignalConfidence {
		return models.SignalHold
	}
	switch dir {
	case models.DirectionUp:
		return models.SignalBuy
	case models.DirectionDown:
		return models.SignalWait
	default:
		return models.SignalHold
	}
}

// Reasoning renders the human readable rationale for a signal.
func Reasoning(signal models.Signal, dir models.Direction, confidence float64) string {
	pct := int(confidence * 100)
	trend := strings.ToLower(string(dir))
	switch signal {
	case models.SignalBuy:
		return fmt.Sprintf("Prices are trending %s (%d%% confidence). Buying now is favorable; waiting will likely cost more.", trend, pct)
	case models.SignalWait:
		return fmt.Sprintf("Prices are trending %s (%d%% confidence). Waiting a little longer should get a lower fare.", trend, pct)
	default:
		return fmt.Sprintf("Prices look %s with no clear trend (%d%% confidence). We are still collecting data; keep monitoring if you are not in a hurry.", trend, pct)
	}
}
