package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"
	"Farenheit/internal/repository"
	svccache "Farenheit/internal/service/cache"
	"Farenheit/internal/services/forecast"
	pkgcache "Farenheit/pkg/cache"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clockAt(t *time.Time) StageOptions {
	return StageOptions{Concurrency: 4, UnitTimeout: time.Second, Now: func() time.Time { return *t }}
}

func seedRoute(s *repository.MemoryRouteStore) models.Route {
	return s.Add(models.Route{Origin: "ICN", Destination: "NRT", IsActive: true})
}

type fakeSource struct {
	failOn time.Time
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(_ context.Context, q models.OfferQuery) ([]models.RawOffer, error) {
	if q.DepartureDate.Equal(f.failOn) {
		return nil, errors.New("upstream 500")
	}
	return []models.RawOffer{
		{Airline: "KE", Price: decimal.NewFromInt(320000), Currency: "KRW", Source: "fake"},
		{Airline: "OZ", Price: decimal.NewFromInt(305000), Currency: "KRW", Source: "fake"},
	}, nil
}

func TestCollectionOffsets(t *testing.T) {
	offs := CollectionOffsets()
	if len(offs) != 19 {
		t.Fatalf("expected 19 offsets, got %d: %v", len(offs), offs)
	}
	seen := map[int]bool{}
	for _, d := range offs {
		if seen[d] {
			t.Fatalf("duplicate offset %d", d)
		}
		seen[d] = true
	}
	for _, d := range []int{7, 28, 30, 60, 63, 84} {
		if !seen[d] {
			t.Fatalf("missing offset %d", d)
		}
	}
	if seen[90] || seen[31] {
		t.Fatalf("unexpected offsets %v", offs)
	}
}

func TestCollectorIsolatesUnitFailures(t *testing.T) {
	now := t0
	routes := repository.NewMemoryRouteStore()
	seedRoute(routes)
	prices := repository.NewMemoryPriceStore()
	src := &fakeSource{failOn: models.DateOnly(t0).AddDate(0, 0, 10)}

	c := NewCollector(routes, prices, src, []models.CabinClass{models.CabinEconomy}, clockAt(&now))
	sum, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Status != models.JobSuccess {
		t.Fatalf("status = %s", sum.Status)
	}
	if sum.Units.Failed != 1 || sum.Units.OK != 18 {
		t.Fatalf("units = %+v", sum.Units)
	}
	if sum.Counts["observations_stored"] != 36 || prices.Len() != 36 {
		t.Fatalf("stored = %d, store has %d", sum.Counts["observations_stored"], prices.Len())
	}
	if sum.Counts["routes_processed"] != 1 {
		t.Fatalf("routes_processed = %d", sum.Counts["routes_processed"])
	}
}

func TestCollectorStopsOnCancel(t *testing.T) {
	now := t0
	routes := repository.NewMemoryRouteStore()
	seedRoute(routes)
	c := NewCollector(routes, repository.NewMemoryPriceStore(), &fakeSource{}, nil, clockAt(&now))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := c.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sum.Status != models.JobFailed || sum.Units.Total() != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}

func seedHistory(t *testing.T, prices *repository.MemoryPriceStore, routeID int64, departure time.Time, start int64, step int64, days int) {
	t.Helper()
	obs := make([]models.PriceObservation, 0, days)
	for i := 0; i < days; i++ {
		obs = append(obs, models.PriceObservation{
			ObservedAt:    t0.AddDate(0, 0, -days+i),
			RouteID:       routeID,
			Airline:       "KE",
			DepartureDate: departure,
			CabinClass:    models.CabinEconomy,
			Price:         decimal.NewFromInt(start + step*int64(i)),
			Currency:      "KRW",
			Source:        "test",
		})
	}
	if _, err := prices.StoreBatch(context.Background(), obs); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestPredictorUpsertsIdempotently(t *testing.T) {
	now := t0
	routes := repository.NewMemoryRouteStore()
	rt := seedRoute(routes)
	prices := repository.NewMemoryPriceStore()
	preds := repository.NewMemoryPredictionStore()
	target := models.DateOnly(t0).AddDate(0, 0, 7)
	seedHistory(t, prices, rt.ID, target, 300000, -3000, 10)

	p := NewPredictor(routes, prices, preds, forecast.NewStatisticalOnly(14),
		PredictorConfig{Cabins: []models.CabinClass{models.CabinEconomy}, Horizon: 14, ValidFor: 6 * time.Hour},
		clockAt(&now))

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Counts["predictions_inserted"] != 1 || sum.Counts["predictions_upserted"] != 1 || sum.Counts["skipped"] != 7 {
		t.Fatalf("first run counts = %v", sum.Counts)
	}

	now = t0.Add(time.Hour)
	sum, err = p.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Counts["predictions_inserted"] != 0 || sum.Counts["predictions_upserted"] != 1 {
		t.Fatalf("second run counts = %v", sum.Counts)
	}

	all, _ := preds.ListSince(context.Background(), time.Time{})
	if len(all) != 1 {
		t.Fatalf("expected one stored prediction, got %d", len(all))
	}
	got := all[0]
	if !got.PredictedAt.Equal(now) || !got.ValidUntil.Equal(now.Add(6*time.Hour)) {
		t.Fatalf("timestamps not refreshed: %+v", got)
	}
	if got.Airline != "" || got.ModelVersion != forecast.StatisticalVersion || got.BestAirline != "KE" {
		t.Fatalf("unexpected prediction %+v", got)
	}
	if got.Direction != models.DirectionDown {
		t.Fatalf("direction = %s", got.Direction)
	}
}

func TestBestAirlineUsesLatestFare(t *testing.T) {
	obs := []models.PriceObservation{
		{Airline: "KE", ObservedAt: t0, Price: decimal.NewFromInt(100)},
		{Airline: "KE", ObservedAt: t0.Add(time.Hour), Price: decimal.NewFromInt(300)},
		{Airline: "OZ", ObservedAt: t0, Price: decimal.NewFromInt(200)},
	}
	if got := BestAirline(obs); got != "OZ" {
		t.Fatalf("best airline = %q", got)
	}
	if got := BestAirline(nil); got != "" {
		t.Fatalf("empty input should give empty airline, got %q", got)
	}
}

func TestRecommenderDerivesAndCaches(t *testing.T) {
	now := t0
	ctx := context.Background()
	routes := repository.NewMemoryRouteStore()
	rt := seedRoute(routes)
	preds := repository.NewMemoryPredictionStore()
	day := func(n int) time.Time { return models.DateOnly(t0).AddDate(0, 0, n) }
	put := func(dep time.Time, version string, dir models.Direction, conf float64, age time.Duration) {
		_, _ = preds.Upsert(ctx, &models.Prediction{
			RouteID: rt.ID, DepartureDate: dep, CabinClass: models.CabinEconomy, ModelVersion: version,
			Direction: dir, Confidence: conf, PredictedPrice: 300000,
			PredictedAt: t0.Add(-age), ValidUntil: t0.Add(5 * time.Hour),
		})
	}
	put(day(7), "statistical-v2", models.DirectionUp, 0.8, time.Hour)
	put(day(7), "ensemble-v1", models.DirectionDown, 0.9, 2*time.Hour)
	put(day(14), "statistical-v2", models.DirectionDown, 0.7, time.Hour)
	put(day(21), "statistical-v2", models.DirectionStable, 0.9, time.Hour)
	put(day(28), "statistical-v2", models.DirectionUp, 0.9, 5*time.Hour)

	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	cache := svccache.NewRecommendationCache(mem)

	r := NewRecommender(routes, preds, cache, 3*time.Hour, 2*time.Hour, clockAt(&now))
	sum, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := map[string]int{"recommendations": 3, "buy": 1, "wait": 1, "hold": 1}
	for k, v := range want {
		if sum.Counts[k] != v {
			t.Fatalf("%s = %d, want %d (counts %v)", k, sum.Counts[k], v, sum.Counts)
		}
	}

	rec, ok, err := cache.Get(ctx, rt.ID, day(7), models.CabinEconomy)
	if err != nil || !ok {
		t.Fatalf("cached recommendation missing: ok=%v err=%v", ok, err)
	}
	if rec.Signal != models.SignalBuy || rec.Route != "ICN-NRT" {
		t.Fatalf("cached recommendation = %+v", rec)
	}
	if _, ok, _ := cache.Get(ctx, rt.ID, day(28), models.CabinEconomy); ok {
		t.Fatalf("prediction outside freshness window should not be cached")
	}
}

type recordingEvents struct {
	mu     sync.Mutex
	events []models.AlertTriggeredEvent
}

func (r *recordingEvents) PublishAlertTriggered(_ context.Context, ev models.AlertTriggeredEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func TestAlerterTriggersOnce(t *testing.T) {
	now := t0
	ctx := context.Background()
	routes := repository.NewMemoryRouteStore()
	rt := seedRoute(routes)
	prices := repository.NewMemoryPriceStore()
	d1 := models.DateOnly(t0).AddDate(0, 0, 14)
	d2 := models.DateOnly(t0).AddDate(0, 0, 21)
	_, _ = prices.StoreBatch(ctx, []models.PriceObservation{
		{ObservedAt: t0.Add(-2 * time.Hour), RouteID: rt.ID, Airline: "KE", DepartureDate: d1, CabinClass: models.CabinEconomy, Price: decimal.NewFromInt(280000)},
		{ObservedAt: t0.Add(-48 * time.Hour), RouteID: rt.ID, Airline: "OZ", DepartureDate: d1, CabinClass: models.CabinEconomy, Price: decimal.NewFromInt(100000)},
	})

	alerts := repository.NewMemoryAlertStore()
	hit := &models.PriceAlert{UserID: "u1", RouteID: rt.ID, TargetPrice: decimal.NewFromInt(300000), CabinClass: models.CabinEconomy}
	stale := &models.PriceAlert{UserID: "u2", RouteID: rt.ID, TargetPrice: decimal.NewFromInt(250000), CabinClass: models.CabinEconomy}
	otherDate := &models.PriceAlert{UserID: "u3", RouteID: rt.ID, TargetPrice: decimal.NewFromInt(290000), CabinClass: models.CabinEconomy, DepartureDate: &d2}
	for _, a := range []*models.PriceAlert{hit, stale, otherDate} {
		_ = alerts.CreateAlert(ctx, a)
	}

	events := &recordingEvents{}
	a := NewAlerter(routes, prices, alerts, events, 24*time.Hour, clockAt(&now))

	sum, err := a.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Counts["alerts_checked"] != 3 || sum.Counts["alerts_triggered"] != 1 {
		t.Fatalf("counts = %v", sum.Counts)
	}
	if len(events.events) != 1 {
		t.Fatalf("expected one event, got %d", len(events.events))
	}
	ev := events.events[0]
	if ev.AlertID != hit.ID || ev.ObservedMin != "280000.00" || ev.Route != "ICN-NRT" {
		t.Fatalf("event = %+v", ev)
	}

	now = t0.Add(time.Hour)
	sum, _ = a.Run(ctx)
	if sum.Counts["alerts_checked"] != 2 || sum.Counts["alerts_triggered"] != 0 {
		t.Fatalf("re-run counts = %v", sum.Counts)
	}
	if len(events.events) != 1 {
		t.Fatalf("re-run published again")
	}
	stored, _ := alerts.Alert(hit.ID)
	if !stored.IsTriggered || !stored.TriggeredAt.Equal(t0) {
		t.Fatalf("stored alert = %+v", stored)
	}
}

func TestRetentionBoundaries(t *testing.T) {
	now := t0
	ctx := context.Background()
	prices := repository.NewMemoryPriceStore()
	preds := repository.NewMemoryPredictionStore()
	obsAge := 180 * 24 * time.Hour
	dep := models.DateOnly(t0)
	mk := func(at time.Time) models.PriceObservation {
		return models.PriceObservation{ObservedAt: at, RouteID: 1, Airline: "KE", DepartureDate: dep, CabinClass: models.CabinEconomy, Price: decimal.NewFromInt(1)}
	}
	_, _ = prices.StoreBatch(ctx, []models.PriceObservation{
		mk(t0.Add(-obsAge - time.Second)),
		mk(t0.Add(-obsAge)),
		mk(t0.Add(-24 * time.Hour)),
	})
	for i, age := range []time.Duration{31 * 24 * time.Hour, 29 * 24 * time.Hour} {
		_, _ = preds.Upsert(ctx, &models.Prediction{
			RouteID: 1, DepartureDate: dep.AddDate(0, 0, i), CabinClass: models.CabinEconomy,
			ModelVersion: "statistical-v2", PredictedAt: t0.Add(-age), ValidUntil: t0.Add(-age + time.Hour),
		})
	}

	r := NewRetention(prices, preds, obsAge, 30*24*time.Hour, clockAt(&now))
	sum, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Counts["observations_deleted"] != 1 || sum.Counts["predictions_deleted"] != 1 {
		t.Fatalf("counts = %v", sum.Counts)
	}
	if prices.Len() != 2 {
		t.Fatalf("observation at the cutoff must survive, have %d", prices.Len())
	}
	if sum.Records != 2 || sum.Status != models.JobSuccess {
		t.Fatalf("summary = %+v", sum)
	}
}

var errStoreDown = errors.New("dial tcp 127.0.0.1:9000: connection refused")

// downPriceStore fails every call, like an unreachable ClickHouse.
type downPriceStore struct{}

func (downPriceStore) History(context.Context, domrepo.HistoryFilter) ([]models.PriceObservation, error) {
	return nil, errStoreDown
}

func (downPriceStore) StoreBatch(context.Context, []models.PriceObservation) (int, error) {
	return 0, errStoreDown
}

func (downPriceStore) MinPrice(context.Context, domrepo.MinPriceFilter) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, errStoreDown
}

func (downPriceStore) DeleteOlderThan(context.Context, time.Time) (int, error) {
	return 0, errStoreDown
}

func TestStagesFailWhenPriceStoreIsDown(t *testing.T) {
	now := t0
	ctx := context.Background()
	routes := repository.NewMemoryRouteStore()
	rt := seedRoute(routes)
	cabins := []models.CabinClass{models.CabinEconomy}

	alerts := repository.NewMemoryAlertStore()
	_ = alerts.CreateAlert(ctx, &models.PriceAlert{UserID: "u1", RouteID: rt.ID, TargetPrice: decimal.NewFromInt(300000), CabinClass: models.CabinEconomy})

	stages := map[string]func(context.Context) (*models.StageSummary, error){
		models.StageCollect: NewCollector(routes, downPriceStore{}, &fakeSource{}, cabins, clockAt(&now)).Run,
		models.StagePredict: NewPredictor(routes, downPriceStore{}, repository.NewMemoryPredictionStore(), forecast.NewStatisticalOnly(14),
			PredictorConfig{Cabins: cabins, Horizon: 14}, clockAt(&now)).Run,
		models.StageAlert: NewAlerter(routes, downPriceStore{}, alerts, &recordingEvents{}, 24*time.Hour, clockAt(&now)).Run,
	}
	for name, run := range stages {
		t.Run(name, func(t *testing.T) {
			sum, err := run(ctx)
			if !errors.Is(err, ErrAllUnitsFailed) || !errors.Is(err, errStoreDown) {
				t.Fatalf("expected all-units-failed wrapping the store error, got %v", err)
			}
			if sum.Status != models.JobFailed || sum.Units.OK != 0 || sum.Units.Failed == 0 {
				t.Fatalf("summary = %+v", sum)
			}
		})
	}
}

func TestPartialFailureStillSucceeds(t *testing.T) {
	sum := models.NewStageSummary(models.StageCollect, t0)
	results := []models.UnitResult{
		models.UnitOK("a"),
		models.UnitFailed("b", errStoreDown),
		models.UnitSkipped("c", "no offers"),
	}
	if _, err := finish(sum, results, nil, t0, 1); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if sum.Status != models.JobSuccess {
		t.Fatalf("status = %s", sum.Status)
	}

	sum = models.NewStageSummary(models.StageCollect, t0)
	if _, err := finish(sum, []models.UnitResult{models.UnitSkipped("c", "no offers")}, nil, t0, 0); err != nil {
		t.Fatalf("skipped-only run should succeed, got %v", err)
	}
}

func TestRecommendationSkipsExpiredCacheEntry(t *testing.T) {
	ctx := context.Background()
	routes := repository.NewMemoryRouteStore()
	rt := seedRoute(routes)
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	cache := svccache.NewRecommendationCache(mem)
	dep := models.DateOnly(t0).AddDate(0, 0, 14)

	validUntil := t0.Add(-time.Minute)
	_ = cache.Put(ctx, models.Recommendation{
		RouteID: rt.ID, DepartureDate: dep, CabinClass: models.CabinEconomy,
		Signal: models.SignalBuy, Confidence: 0.9, ValidUntil: &validUntil,
	}, 24*time.Hour)

	q := NewFlightQueries(routes, repository.NewMemoryPriceStore(), repository.NewMemoryPredictionStore(), cache, forecast.NewStatisticalOnly(14))
	q.now = func() time.Time { return t0 }
	rec, err := q.Recommendation(ctx, rt.ID, dep, models.CabinEconomy)
	if err != nil {
		t.Fatalf("recommendation: %v", err)
	}
	if rec.Signal != models.SignalHold {
		t.Fatalf("expired cache entry served: %+v", rec)
	}

	q.now = func() time.Time { return t0.Add(-time.Hour) }
	if rec, _ = q.Recommendation(ctx, rt.ID, dep, models.CabinEconomy); rec.Signal != models.SignalBuy {
		t.Fatalf("live cache entry should be served, got %+v", rec)
	}
}
