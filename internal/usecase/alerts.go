package usecase

import (
	"context"
	"fmt"
	"time"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"

	"github.com/shopspring/decimal"
)

// AlertService registers the price alerts that the alert stage checks.
type AlertService struct {
	routes domrepo.RouteStore
	alerts domrepo.AlertStore
}

func NewAlertService(routes domrepo.RouteStore, alerts domrepo.AlertStore) *AlertService {
	return &AlertService{routes: routes, alerts: alerts}
}

type AlertParams struct {
	Route       models.RouteSelector
	UserID      string
	TargetPrice decimal.Decimal
	Cabin       models.CabinClass
	Departure   *time.Time
}

// AlertView is a stored alert with its route code.
type AlertView struct {
	models.PriceAlert
	Route string `json:"route"`
}

// Create stores an untriggered alert, ensuring the route when it is named by codes.
func (s *AlertService) Create(ctx context.Context, p AlertParams) (*AlertView, error) {
	route, err := resolveRoute(ctx, s.routes, p.Route)
	if err != nil {
		return nil, err
	}
	a := &models.PriceAlert{
		UserID:      p.UserID,
		RouteID:     route.ID,
		TargetPrice: p.TargetPrice,
		CabinClass:  p.Cabin,
	}
	if p.Departure != nil {
		d := models.DateOnly(*p.Departure)
		a.DepartureDate = &d
	}
	if err := s.alerts.CreateAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("route %s: %w", route.Code(), err)
	}
	return &AlertView{PriceAlert: *a, Route: route.Code()}, nil
}

func (s *AlertService) Delete(ctx context.Context, id int64) error {
	return s.alerts.DeleteAlert(ctx, id)
}
