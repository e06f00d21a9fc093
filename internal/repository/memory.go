package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"

	"github.com/shopspring/decimal"
)

// In-memory stores back storage.backend=memory and the usecase tests.

type MemoryRouteStore struct {
	mu     sync.RWMutex
	nextID int64
	routes map[int64]models.Route
}

func NewMemoryRouteStore() *MemoryRouteStore {
	return &MemoryRouteStore{routes: map[int64]models.Route{}}
}

// Add stores r, assigning an id when r.ID is zero.
func (s *MemoryRouteStore) Add(r models.Route) models.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		s.nextID++
		r.ID = s.nextID
	} else if r.ID > s.nextID {
		s.nextID = r.ID
	}
	s.routes[r.ID] = r
	return r
}

func (s *MemoryRouteStore) Ensure(ctx context.Context, origin, destination string) (*models.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.routes {
		if r.Origin == origin && r.Destination == destination {
			return &r, nil
		}
	}
	s.nextID++
	r := models.Route{ID: s.nextID, Origin: origin, Destination: destination, IsActive: true, CreatedAt: time.Now()}
	s.routes[r.ID] = r
	return &r, nil
}

func (s *MemoryRouteStore) ListActive(ctx context.Context) ([]models.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Route, 0, len(s.routes))
	for _, r := range s.routes {
		if r.IsActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryRouteStore) Get(ctx context.Context, id int64) (*models.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[id]
	if !ok {
		return nil, fmt.Errorf("route %d: %w", id, models.ErrNotFound)
	}
	return &r, nil
}

type MemoryPriceStore struct {
	mu  sync.RWMutex
	obs []models.PriceObservation
}

func NewMemoryPriceStore() *MemoryPriceStore { return &MemoryPriceStore{} }

func (s *MemoryPriceStore) StoreBatch(ctx context.Context, obs []models.PriceObservation) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range obs {
		if o.Airline == "" || o.RouteID == 0 {
			continue
		}
		o.DepartureDate = models.DateOnly(o.DepartureDate)
		s.obs = append(s.obs, o)
		n++
	}
	return n, nil
}

func (s *MemoryPriceStore) History(ctx context.Context, f domrepo.HistoryFilter) ([]models.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dep := models.DateOnly(f.DepartureDate)
	out := make([]models.PriceObservation, 0)
	for _, o := range s.obs {
		if o.RouteID != f.RouteID || !o.DepartureDate.Equal(dep) || o.CabinClass != f.CabinClass {
			continue
		}
		if f.Airline != "" && o.Airline != f.Airline {
			continue
		}
		if o.ObservedAt.Before(f.Since) {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}

func (s *MemoryPriceStore) MinPrice(ctx context.Context, f domrepo.MinPriceFilter) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		lowest decimal.Decimal
		found  bool
	)
	for _, o := range s.obs {
		if o.RouteID != f.RouteID || o.CabinClass != f.CabinClass || o.ObservedAt.Before(f.Since) {
			continue
		}
		if f.DepartureDate != nil && !o.DepartureDate.Equal(models.DateOnly(*f.DepartureDate)) {
			continue
		}
		if !found || o.Price.LessThan(lowest) {
			lowest = o.Price
			found = true
		}
	}
	return lowest, found, nil
}

func (s *MemoryPriceStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.obs[:0]
	removed := 0
	for _, o := range s.obs {
		if o.ObservedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, o)
	}
	s.obs = kept
	return removed, nil
}

// Len returns the number of stored observations.
func (s *MemoryPriceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.obs)
}

type MemoryPredictionStore struct {
	mu     sync.RWMutex
	nextID int64
	byKey  map[models.PredictionKey]*models.Prediction
}

func NewMemoryPredictionStore() *MemoryPredictionStore {
	return &MemoryPredictionStore{byKey: map[models.PredictionKey]*models.Prediction{}}
}

func (s *MemoryPredictionStore) Upsert(ctx context.Context, p *models.Prediction) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("nil prediction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.DepartureDate = models.DateOnly(p.DepartureDate)
	key := p.Key()
	if cur, ok := s.byKey[key]; ok {
		p.ID = cur.ID
		cp := clonePrediction(*p)
		s.byKey[key] = &cp
		return false, nil
	}
	s.nextID++
	p.ID = s.nextID
	cp := clonePrediction(*p)
	s.byKey[key] = &cp
	return true, nil
}

func (s *MemoryPredictionStore) Latest(ctx context.Context, routeID int64, departure time.Time, cabin models.CabinClass, now time.Time) (*models.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dep := models.DateOnly(departure)
	var best *models.Prediction
	for _, p := range s.byKey {
		if p.RouteID != routeID || !p.DepartureDate.Equal(dep) || p.CabinClass != cabin || p.IsStale(now) {
			continue
		}
		if best == nil || p.PredictedAt.After(best.PredictedAt) || (p.PredictedAt.Equal(best.PredictedAt) && p.ID > best.ID) {
			best = p
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := clonePrediction(*best)
	return &cp, nil
}

func (s *MemoryPredictionStore) ListSince(ctx context.Context, since time.Time) ([]models.Prediction, error) {
	return s.filter(func(p *models.Prediction) bool { return !p.PredictedAt.Before(since) }), nil
}

func (s *MemoryPredictionStore) ListByRoute(ctx context.Context, routeID int64, cabin models.CabinClass, now time.Time) ([]models.Prediction, error) {
	return s.filter(func(p *models.Prediction) bool {
		return p.RouteID == routeID && p.CabinClass == cabin && !p.IsStale(now)
	}), nil
}

func (s *MemoryPredictionStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, p := range s.byKey {
		if p.PredictedAt.Before(cutoff) {
			delete(s.byKey, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryPredictionStore) filter(keep func(*models.Prediction) bool) []models.Prediction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Prediction, 0)
	for _, p := range s.byKey {
		if keep(p) {
			out = append(out, clonePrediction(*p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RouteID != b.RouteID {
			return a.RouteID < b.RouteID
		}
		if !a.DepartureDate.Equal(b.DepartureDate) {
			return a.DepartureDate.Before(b.DepartureDate)
		}
		if a.CabinClass != b.CabinClass {
			return a.CabinClass < b.CabinClass
		}
		return a.ID < b.ID
	})
	return out
}

func clonePrediction(p models.Prediction) models.Prediction {
	if p.Series != nil {
		p.Series = append([]models.ForecastPoint(nil), p.Series...)
	}
	return p
}

type MemoryAlertStore struct {
	mu     sync.Mutex
	nextID int64
	alerts map[int64]*models.PriceAlert
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{alerts: map[int64]*models.PriceAlert{}}
}

// CreateAlert stores a, assigning an id.
func (s *MemoryAlertStore) CreateAlert(ctx context.Context, a *models.PriceAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a.ID = s.nextID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	cp := *a
	s.alerts[a.ID] = &cp
	return nil
}

func (s *MemoryAlertStore) DeleteAlert(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[id]; !ok {
		return fmt.Errorf("alert %d: %w", id, models.ErrNotFound)
	}
	delete(s.alerts, id)
	return nil
}

func (s *MemoryAlertStore) ListUntriggered(ctx context.Context) ([]models.PriceAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PriceAlert, 0)
	for _, a := range s.alerts {
		if !a.IsTriggered {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryAlertStore) MarkTriggered(ctx context.Context, id int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return false, fmt.Errorf("alert %d: %w", id, models.ErrNotFound)
	}
	if a.IsTriggered {
		return false, nil
	}
	a.IsTriggered = true
	a.TriggeredAt = &at
	return true, nil
}

// Alert returns a copy of the stored alert.
func (s *MemoryAlertStore) Alert(id int64) (models.PriceAlert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return models.PriceAlert{}, false
	}
	return *a, true
}

type MemoryJobRunStore struct {
	mu   sync.Mutex
	runs []models.JobRun
}

func NewMemoryJobRunStore() *MemoryJobRunStore { return &MemoryJobRunStore{} }

func (s *MemoryJobRunStore) Create(ctx context.Context, run *models.JobRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *run)
	return nil
}

func (s *MemoryJobRunStore) Finish(ctx context.Context, run *models.JobRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i] = *run
			return nil
		}
	}
	return fmt.Errorf("job run %s: %w", run.ID, models.ErrNotFound)
}

// Runs returns a copy of all recorded runs in creation order.
func (s *MemoryJobRunStore) Runs() []models.JobRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.JobRun(nil), s.runs...)
}

var (
	_ domrepo.RouteStore      = (*MemoryRouteStore)(nil)
	_ domrepo.PriceStore      = (*MemoryPriceStore)(nil)
	_ domrepo.PredictionStore = (*MemoryPredictionStore)(nil)
	_ domrepo.AlertStore      = (*MemoryAlertStore)(nil)
	_ domrepo.JobRunStore     = (*MemoryJobRunStore)(nil)
)
