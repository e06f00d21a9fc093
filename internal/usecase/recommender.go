package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"
	"Farenheit/internal/services/recommend"
	applogger "Farenheit/pkg/logger"
)

// Recommender re-derives signals for recently predicted series and caches them.
type Recommender struct {
	routes      domrepo.RouteStore
	predictions domrepo.PredictionStore
	cache       domrepo.RecommendationCache
	freshness   time.Duration
	ttl         time.Duration
	o           StageOptions
}

func NewRecommender(routes domrepo.RouteStore, predictions domrepo.PredictionStore, cache domrepo.RecommendationCache, freshness, ttl time.Duration, o StageOptions) *Recommender {
	if freshness <= 0 {
		freshness = 3 * time.Hour
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Recommender{routes: routes, predictions: predictions, cache: cache, freshness: freshness, ttl: ttl, o: o.normalize()}
}

type recUnit struct {
	pred models.Prediction
}

func (u recUnit) String() string {
	return fmt.Sprintf("%d/%s/%s", u.pred.RouteID, u.pred.DepartureDate.Format("2006-01-02"), u.pred.CabinClass)
}

func (r *Recommender) Run(ctx context.Context) (*models.StageSummary, error) {
	now := r.o.Now()
	sum := models.NewStageSummary(models.StageRecommend, now)

	preds, err := r.predictions.ListSince(ctx, now.Add(-r.freshness))
	if err != nil {
		return nil, fmt.Errorf("list fresh predictions: %w", err)
	}
	units := latestPerSeries(preds)

	var (
		mu      sync.Mutex
		signals = map[models.Signal]int{}
		routes  = map[int64]*models.Route{}
	)
	route := func(ctx context.Context, id int64) (*models.Route, error) {
		mu.Lock()
		rt, ok := routes[id]
		mu.Unlock()
		if ok {
			return rt, nil
		}
		rt, err := r.routes.Get(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			rt, err = nil, nil
		}
		if err != nil {
			return nil, err
		}
		mu.Lock()
		routes[id] = rt
		mu.Unlock()
		return rt, nil
	}

	results, runErr := runUnits(ctx, r.o, models.StageRecommend, units, func(ctx context.Context, u recUnit) models.UnitResult {
		rt, err := route(ctx, u.pred.RouteID)
		if err != nil {
			return models.UnitFailed(u.String(), fmt.Errorf("load route: %w", err))
		}
		rec := recommend.Derive(rt, u.pred.DepartureDate, u.pred.CabinClass, &u.pred, r.o.Now())
		if rt == nil {
			rec.RouteID = u.pred.RouteID
		}
		if r.cache != nil {
			if err := r.cache.Put(ctx, rec, r.ttl); err != nil {
				r.o.Metrics.RecordError("recommendation_cache")
				return models.UnitFailed(u.String(), err)
			}
		}
		mu.Lock()
		signals[rec.Signal]++
		mu.Unlock()
		r.o.Metrics.RecordSignal(string(rec.Signal))
		return models.UnitOK(u.String())
	})

	total := signals[models.SignalBuy] + signals[models.SignalWait] + signals[models.SignalHold]
	sum.Inc("recommendations", total)
	sum.Inc("buy", signals[models.SignalBuy])
	sum.Inc("wait", signals[models.SignalWait])
	sum.Inc("hold", signals[models.SignalHold])
	if r.o.Logger != nil {
		r.o.Logger.Info("recommendations refreshed",
			applogger.Int("total", total),
			applogger.Int("buy", signals[models.SignalBuy]),
			applogger.Int("wait", signals[models.SignalWait]),
			applogger.Int("hold", signals[models.SignalHold]),
		)
	}
	return finish(sum, results, runErr, r.o.Now(), total)
}

// latestPerSeries keeps the newest prediction per route/date/cabin across
// model versions and airlines.
func latestPerSeries(preds []models.Prediction) []recUnit {
	type key struct {
		route int64
		date  time.Time
		cabin models.CabinClass
	}
	best := map[key]models.Prediction{}
	for _, p := range preds {
		k := key{p.RouteID, models.DateOnly(p.DepartureDate), p.CabinClass}
		cur, ok := best[k]
		if !ok || p.PredictedAt.After(cur.PredictedAt) || (p.PredictedAt.Equal(cur.PredictedAt) && p.ID > cur.ID) {
			best[k] = p
		}
	}
	out := make([]recUnit, 0, len(best))
	for _, p := range best {
		out = append(out, recUnit{pred: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
