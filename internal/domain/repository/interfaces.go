package repository

import (
	"context"
	"time"

	"Farenheit/internal/domain/models"

	"github.com/shopspring/decimal"
)

// RouteStore reads and registers tracked routes.
type RouteStore interface {
	ListActive(ctx context.Context) ([]models.Route, error)
	Get(ctx context.Context, id int64) (*models.Route, error)
	// Ensure returns the route for the codes, creating an active one when
	// none exists. Existing routes are returned as stored.
	Ensure(ctx context.Context, origin, destination string) (*models.Route, error)
}

// PriceStore persists immutable price observations.
type PriceStore interface {
	PriceHistoryReader
	StoreBatch(ctx context.Context, obs []models.PriceObservation) (int, error)
	// MinPrice returns the lowest price for the filter observed at or after
	// since. ok is false when nothing matched.
	MinPrice(ctx context.Context, f MinPriceFilter) (min decimal.Decimal, ok bool, err error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// HistoryFilter selects one observation series.
type HistoryFilter struct {
	RouteID       int64
	DepartureDate time.Time
	CabinClass    models.CabinClass
	// Airline restricts to one carrier when non-empty.
	Airline string
	Since   time.Time
}

// MinPriceFilter selects the observations an alert is checked against.
type MinPriceFilter struct {
	RouteID       int64
	CabinClass    models.CabinClass
	DepartureDate *time.Time
	Since         time.Time
}

// PredictionStore persists predictions keyed by their natural key.
type PredictionStore interface {
	// Upsert inserts or updates in place; inserted is true when a new row was created.
	Upsert(ctx context.Context, p *models.Prediction) (inserted bool, err error)
	// Latest returns the most recent non-stale prediction for the route/date/cabin.
	Latest(ctx context.Context, routeID int64, departure time.Time, cabin models.CabinClass, now time.Time) (*models.Prediction, error)
	ListSince(ctx context.Context, since time.Time) ([]models.Prediction, error)
	ListByRoute(ctx context.Context, routeID int64, cabin models.CabinClass, now time.Time) ([]models.Prediction, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// AlertStore tracks user price alerts.
type AlertStore interface {
	// CreateAlert inserts an untriggered alert and sets its id.
	CreateAlert(ctx context.Context, a *models.PriceAlert) error
	DeleteAlert(ctx context.Context, id int64) error
	ListUntriggered(ctx context.Context) ([]models.PriceAlert, error)
	// MarkTriggered flips an untriggered alert. It returns false when the
	// alert was already triggered.
	MarkTriggered(ctx context.Context, id int64, at time.Time) (bool, error)
}

// JobRunStore records stage runs for observability.
type JobRunStore interface {
	Create(ctx context.Context, run *models.JobRun) error
	Finish(ctx context.Context, run *models.JobRun) error
}

// PriceSource fetches offers for one collection unit.
type PriceSource interface {
	Name() string
	Fetch(ctx context.Context, q models.OfferQuery) ([]models.RawOffer, error)
}

// EventPublisher emits pipeline events.
type EventPublisher interface {
	PublishAlertTriggered(ctx context.Context, ev models.AlertTriggeredEvent) error
}

// RecommendationCache stores derived recommendations for readers.
type RecommendationCache interface {
	Put(ctx context.Context, rec models.Recommendation, ttl time.Duration) error
	Get(ctx context.Context, routeID int64, departure time.Time, cabin models.CabinClass) (*models.Recommendation, bool, error)
}

// Locker guards against the same stage running concurrently across instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Metrics records pipeline activity.
type Metrics interface {
	RecordStageRun(stage, status string, seconds float64)
	RecordUnit(stage, outcome string)
	RecordObservationsStored(source string, n int)
	RecordPredictionUpserted(modelVersion string, inserted bool)
	RecordAlertTriggered()
	RecordSignal(signal string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
