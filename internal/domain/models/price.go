package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceObservation is one fare seen at one moment. Observations are never
// updated; they only disappear through retention.
type PriceObservation struct {
	ObservedAt      time.Time       `json:"observed_at"`
	RouteID         int64           `json:"route_id"`
	Airline         string          `json:"airline"`
	DepartureDate   time.Time       `json:"departure_date"`
	ReturnDate      *time.Time      `json:"return_date,omitempty"`
	CabinClass      CabinClass      `json:"cabin_class"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	Stops           int             `json:"stops"`
	DurationMinutes *int            `json:"duration_minutes,omitempty"`
	Source          string          `json:"source"`
	RawOfferID      string          `json:"raw_offer_id,omitempty"`
}

// PricePoint is the (timestamp, price) pair the feature engine and the
// forecasters work on.
type PricePoint struct {
	At    time.Time
	Price float64
}

// OfferQuery selects offers from a price source for one collection unit.
type OfferQuery struct {
	Origin        string
	Destination   string
	DepartureDate time.Time
	ReturnDate    *time.Time
	CabinClass    CabinClass
	Adults        int
	MaxResults    int
	Currency      string
}

// RawOffer is a normalised offer returned by a price source.
type RawOffer struct {
	Airline         string
	Price           decimal.Decimal
	Currency        string
	Stops           int
	DurationMinutes *int
	OfferID         string
	Source          string
}

// ToObservation stamps an offer with the collection unit it belongs to.
func (o RawOffer) ToObservation(at time.Time, routeID int64, q OfferQuery) PriceObservation {
	return PriceObservation{
		ObservedAt:      at,
		RouteID:         routeID,
		Airline:         o.Airline,
		DepartureDate:   q.DepartureDate,
		ReturnDate:      q.ReturnDate,
		CabinClass:      q.CabinClass,
		Price:           o.Price,
		Currency:        o.Currency,
		Stops:           o.Stops,
		DurationMinutes: o.DurationMinutes,
		Source:          o.Source,
		RawOfferID:      o.OfferID,
	}
}

// PricePoints converts observations to float points in the order given.
func PricePoints(obs []PriceObservation) []PricePoint {
	out := make([]PricePoint, 0, len(obs))
	for _, o := range obs {
		out = append(out, PricePoint{At: o.ObservedAt, Price: o.Price.InexactFloat64()})
	}
	return out
}

// PriceStats summarises a slice of observations.
type PriceStats struct {
	Count int             `json:"count"`
	Min   decimal.Decimal `json:"min"`
	Max   decimal.Decimal `json:"max"`
	Avg   decimal.Decimal `json:"avg"`
}

// SummarizePrices returns min/max/avg over observations. Zero value for empty input.
func SummarizePrices(obs []PriceObservation) PriceStats {
	var s PriceStats
	if len(obs) == 0 {
		return s
	}
	sum := decimal.Zero
	s.Min = obs[0].Price
	s.Max = obs[0].Price
	for _, o := range obs {
		if o.Price.LessThan(s.Min) {
			s.Min = o.Price
		}
		if o.Price.GreaterThan(s.Max) {
			s.Max = o.Price
		}
		sum = sum.Add(o.Price)
	}
	s.Count = len(obs)
	s.Avg = sum.Div(decimal.NewFromInt(int64(len(obs)))).Round(2)
	return s
}
