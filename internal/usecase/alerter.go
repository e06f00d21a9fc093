package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"
	applogger "Farenheit/pkg/logger"
)

// Alerter triggers price alerts whose target was reached within the lookback window.
type Alerter struct {
	routes   domrepo.RouteStore
	prices   domrepo.PriceStore
	alerts   domrepo.AlertStore
	events   domrepo.EventPublisher
	lookback time.Duration
	o        StageOptions
}

func NewAlerter(routes domrepo.RouteStore, prices domrepo.PriceStore, alerts domrepo.AlertStore, events domrepo.EventPublisher, lookback time.Duration, o StageOptions) *Alerter {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &Alerter{routes: routes, prices: prices, alerts: alerts, events: events, lookback: lookback, o: o.normalize()}
}

type alertUnit struct{ alert models.PriceAlert }

func (u alertUnit) String() string { return fmt.Sprintf("alert:%d", u.alert.ID) }

func (a *Alerter) Run(ctx context.Context) (*models.StageSummary, error) {
	sum := models.NewStageSummary(models.StageAlert, a.o.Now())

	alerts, err := a.alerts.ListUntriggered(ctx)
	if err != nil {
		return nil, fmt.Errorf("list untriggered alerts: %w", err)
	}
	units := make([]alertUnit, 0, len(alerts))
	for _, al := range alerts {
		units = append(units, alertUnit{alert: al})
	}

	var triggered atomic.Int64
	results, runErr := runUnits(ctx, a.o, models.StageAlert, units, func(ctx context.Context, u alertUnit) models.UnitResult {
		ok, err := a.check(ctx, u.alert)
		if err != nil {
			return models.UnitFailed(u.String(), err)
		}
		if ok {
			triggered.Add(1)
		}
		return models.UnitOK(u.String())
	})

	n := int(triggered.Load())
	sum.Inc("alerts_checked", len(results))
	sum.Inc("alerts_triggered", n)
	if a.o.Logger != nil {
		a.o.Logger.Info("alert check complete",
			applogger.Int("checked", len(results)),
			applogger.Int("triggered", n),
		)
	}
	return finish(sum, results, runErr, a.o.Now(), n)
}

// check reports whether this call flipped the alert.
func (a *Alerter) check(ctx context.Context, al models.PriceAlert) (bool, error) {
	now := a.o.Now()
	lowest, found, err := a.prices.MinPrice(ctx, domrepo.MinPriceFilter{
		RouteID:       al.RouteID,
		CabinClass:    al.CabinClass,
		DepartureDate: al.DepartureDate,
		Since:         now.Add(-a.lookback),
	})
	if err != nil {
		a.o.Metrics.RecordError("price_store")
		return false, fmt.Errorf("min price: %w", err)
	}
	if !found || lowest.GreaterThan(al.TargetPrice) {
		return false, nil
	}

	flipped, err := a.alerts.MarkTriggered(ctx, al.ID, now)
	if err != nil {
		return false, fmt.Errorf("mark triggered: %w", err)
	}
	if !flipped {
		return false, nil
	}
	a.o.Metrics.RecordAlertTriggered()

	ev := models.AlertTriggeredEvent{
		AlertID:       al.ID,
		UserID:        al.UserID,
		RouteID:       al.RouteID,
		CabinClass:    al.CabinClass,
		DepartureDate: al.DepartureDate,
		TargetPrice:   al.TargetPrice.StringFixed(2),
		ObservedMin:   lowest.StringFixed(2),
		TriggeredAt:   now,
	}
	if rt, err := a.routes.Get(ctx, al.RouteID); err == nil {
		ev.Route = rt.Code()
	}
	// The transition is committed; a lost event is logged, not retried.
	if a.events != nil {
		if err := a.events.PublishAlertTriggered(ctx, ev); err != nil {
			a.o.Metrics.RecordError("publish")
			if a.o.Logger != nil {
				a.o.Logger.Error("publish alert event failed",
					applogger.Int64("alert_id", al.ID),
					applogger.Error(err),
				)
			}
		}
	}
	return true, nil
}
