package models

import "github.com/shopspring/decimal"

// Requests for the API. Defined in domain for consistency and reuse.

// RouteSelector names a route by id or by IATA codes. Codes register the
// route on first use so the pipeline starts tracking it.
type RouteSelector struct {
	RouteID     int64  `query:"route_id" json:"route_id" validate:"required_without=Origin,omitempty,gte=1"`
	Origin      string `query:"origin" json:"origin" validate:"required_with=Destination,omitempty,len=3,alpha"`
	Destination string `query:"destination" json:"destination" validate:"required_with=Origin,omitempty,len=3,alpha"`
}

type RecommendationRequest struct {
	RouteSelector
	DepartureDate string `query:"departure_date" json:"departure_date" validate:"required,datetime=2006-01-02"`
	Cabin         string `query:"cabin" json:"cabin" default:"ECONOMY" validate:"oneof=ECONOMY PREMIUM_ECONOMY BUSINESS FIRST"`
}

type PredictionListRequest struct {
	RouteSelector
	Cabin string `query:"cabin" json:"cabin" default:"ECONOMY" validate:"oneof=ECONOMY PREMIUM_ECONOMY BUSINESS FIRST"`
}

type ForecastRequest struct {
	RouteSelector
	DepartureDate string `query:"departure_date" json:"departure_date" validate:"required,datetime=2006-01-02"`
	Cabin         string `query:"cabin" json:"cabin" default:"ECONOMY" validate:"oneof=ECONOMY PREMIUM_ECONOMY BUSINESS FIRST"`
	Horizon       int    `query:"horizon" json:"horizon" default:"14" validate:"gte=1,lte=60"`
}

type PriceHistoryRequest struct {
	RouteSelector
	DepartureDate string `query:"departure_date" json:"departure_date" validate:"required,datetime=2006-01-02"`
	Cabin         string `query:"cabin" json:"cabin" default:"ECONOMY" validate:"oneof=ECONOMY PREMIUM_ECONOMY BUSINESS FIRST"`
	Airline       string `query:"airline" json:"airline" validate:"omitempty,len=2"`
	Days          int    `query:"days" json:"days" default:"30" validate:"gte=1,lte=180"`
}

// CreateAlertRequest is the body of POST /api/alerts. The handler rejects a
// non-positive TargetPrice.
type CreateAlertRequest struct {
	RouteSelector
	UserID        string          `json:"user_id" validate:"omitempty,max=64"`
	TargetPrice   decimal.Decimal `json:"target_price"`
	Cabin         string          `json:"cabin_class" default:"ECONOMY" validate:"oneof=ECONOMY PREMIUM_ECONOMY BUSINESS FIRST"`
	DepartureDate string          `json:"departure_date" validate:"omitempty,datetime=2006-01-02"`
}

type AlertPathRequest struct {
	ID int64 `param:"id" validate:"required,gte=1"`
}
