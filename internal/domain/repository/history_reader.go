package repository

import (
	"context"

	"Farenheit/internal/domain/models"
)

// PriceHistoryReader provides read-only access to observation series for
// feature extraction and forecasting. Results are ordered by ObservedAt ASC.
type PriceHistoryReader interface {
	History(ctx context.Context, f HistoryFilter) ([]models.PriceObservation, error)
}
