package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceAlert fires once when the observed price drops to or below TargetPrice.
// The untriggered -> triggered transition happens at most once.
type PriceAlert struct {
	ID            int64           `json:"id"`
	UserID        string          `json:"user_id"`
	RouteID       int64           `json:"route_id"`
	TargetPrice   decimal.Decimal `json:"target_price"`
	CabinClass    CabinClass      `json:"cabin_class"`
	DepartureDate *time.Time      `json:"departure_date,omitempty"`
	IsTriggered   bool            `json:"is_triggered"`
	TriggeredAt   *time.Time      `json:"triggered_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// EventAlertTriggered is the event_type header of AlertTriggeredEvent messages.
const EventAlertTriggered = "alert.triggered"

// AlertTriggeredEvent is published once per alert transition.
type AlertTriggeredEvent struct {
	AlertID       int64      `json:"alert_id"`
	UserID        string     `json:"user_id"`
	RouteID       int64      `json:"route_id"`
	Route         string     `json:"route"`
	CabinClass    CabinClass `json:"cabin_class"`
	DepartureDate *time.Time `json:"departure_date,omitempty"`
	TargetPrice   string     `json:"target_price"`
	ObservedMin   string     `json:"observed_min"`
	TriggeredAt   time.Time  `json:"triggered_at"`
}
