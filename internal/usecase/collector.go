package usecase

import (
	"context"
	"fmt"
	"sync/atomic"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"
	applogger "Farenheit/pkg/logger"
)

// CollectionOffsets returns departure offsets in days: every 3 days up to
// 30 days out, every 5 days to 60, weekly to 90.
func CollectionOffsets() []int {
	seen := map[int]bool{}
	out := make([]int, 0, 24)
	add := func(from, to, step int) {
		for d := from; d <= to; d += step {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	add(7, 30, 3)
	add(30, 60, 5)
	add(63, 90, 7)
	return out
}

// Collector fetches offers for every active route and stores them as observations.
type Collector struct {
	routes  domrepo.RouteStore
	prices  domrepo.PriceStore
	source  domrepo.PriceSource
	cabins  []models.CabinClass
	offsets []int
	o       StageOptions
}

func NewCollector(routes domrepo.RouteStore, prices domrepo.PriceStore, source domrepo.PriceSource, cabins []models.CabinClass, o StageOptions) *Collector {
	if len(cabins) == 0 {
		cabins = []models.CabinClass{models.DefaultCabinClass()}
	}
	return &Collector{
		routes:  routes,
		prices:  prices,
		source:  source,
		cabins:  cabins,
		offsets: CollectionOffsets(),
		o:       o.normalize(),
	}
}

// Run collects one round. A failing unit counts as zero offers.
func (c *Collector) Run(ctx context.Context) (*models.StageSummary, error) {
	sum := models.NewStageSummary(models.StageCollect, c.o.Now())

	routes, err := c.routes.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active routes: %w", err)
	}
	today := models.DateOnly(c.o.Now())
	units := expandUnits(routes, c.cabins, today, c.offsets)

	var stored atomic.Int64
	results, runErr := runUnits(ctx, c.o, models.StageCollect, units, func(ctx context.Context, u seriesUnit) models.UnitResult {
		q := models.OfferQuery{
			Origin:        u.route.Origin,
			Destination:   u.route.Destination,
			DepartureDate: u.departure,
			CabinClass:    u.cabin,
			Adults:        1,
		}
		offers, err := c.source.Fetch(ctx, q)
		if err != nil {
			c.o.Metrics.RecordError("price_source")
			return models.UnitFailed(u.String(), fmt.Errorf("fetch offers: %w", err))
		}
		if len(offers) == 0 {
			return models.UnitSkipped(u.String(), "no offers")
		}

		at := c.o.Now()
		obs := make([]models.PriceObservation, 0, len(offers))
		for _, off := range offers {
			obs = append(obs, off.ToObservation(at, u.route.ID, q))
		}
		n, err := c.prices.StoreBatch(ctx, obs)
		if err != nil {
			c.o.Metrics.RecordError("price_store")
			return models.UnitFailed(u.String(), err)
		}
		stored.Add(int64(n))
		c.o.Metrics.RecordObservationsStored(c.source.Name(), n)
		return models.UnitOK(u.String())
	})

	n := int(stored.Load())
	sum.Inc("routes_processed", len(routes))
	sum.Inc("observations_stored", n)
	if c.o.Logger != nil {
		c.o.Logger.Info("collection complete",
			applogger.Int("routes", len(routes)),
			applogger.Int("units", len(results)),
			applogger.Int("observations", n),
		)
	}
	return finish(sum, results, runErr, c.o.Now(), n)
}
