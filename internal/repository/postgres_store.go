package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"
	applogger "Farenheit/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PGStore keeps routes, predictions, alerts and job runs in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
	l    *applogger.Logger
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// SetLogger injects a structured logger.
func (s *PGStore) SetLogger(l *applogger.Logger) { s.l = l }

// Routes

func (s *PGStore) ListActive(ctx context.Context) ([]models.Route, error) {
	rows, err := s.pool.Query(ctx, `
		select id, origin_code, dest_code, is_active, created_at
		from routes
		where is_active
		order by id`)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

	out := make([]models.Route, 0)
	for rows.Next() {
		var r models.Route
		if err := rows.Scan(&r.ID, &r.Origin, &r.Destination, &r.IsActive, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) Get(ctx context.Context, id int64) (*models.Route, error) {
	var r models.Route
	err := s.pool.QueryRow(ctx, `
		select id, origin_code, dest_code, is_active, created_at
		from routes where id = $1`, id).
		Scan(&r.ID, &r.Origin, &r.Destination, &r.IsActive, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("route %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get route: %w", err)
	}
	return &r, nil
}

// Ensure inserts origin/destination if missing. The no-op update makes
// returning yield the existing row on conflict.
func (s *PGStore) Ensure(ctx context.Context, origin, destination string) (*models.Route, error) {
	var r models.Route
	err := s.pool.QueryRow(ctx, `
		insert into routes(origin_code, dest_code) values ($1, $2)
		on conflict (origin_code, dest_code) do update set origin_code = excluded.origin_code
		returning id, origin_code, dest_code, is_active, created_at`, origin, destination).
		Scan(&r.ID, &r.Origin, &r.Destination, &r.IsActive, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure route %s-%s: %w", origin, destination, err)
	}
	return &r, nil
}

// Predictions

const predictionColumns = `id, route_id, airline_code, departure_date, cabin_class, model_version,
		predicted_price::float8, confidence_low::float8, confidence_high::float8,
		price_direction, confidence_score, current_price::float8, best_airline,
		forecast_series, predicted_at, valid_until`

// Upsert writes p on its natural key. xmax is zero only for freshly inserted rows.
func (s *PGStore) Upsert(ctx context.Context, p *models.Prediction) (bool, error) {
	if p == nil {
		return false, errors.New("nil prediction")
	}
	series, err := json.Marshal(seriesOrEmpty(p.Series))
	if err != nil {
		return false, fmt.Errorf("encode forecast series: %w", err)
	}

	var inserted bool
	err = s.pool.QueryRow(ctx, `
		insert into predictions(
			route_id, airline_code, departure_date, cabin_class, model_version,
			predicted_price, confidence_low, confidence_high, price_direction,
			confidence_score, current_price, best_airline, forecast_series,
			predicted_at, valid_until
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		on conflict (route_id, airline_code, departure_date, cabin_class, model_version) do update set
			predicted_price = excluded.predicted_price,
			confidence_low = excluded.confidence_low,
			confidence_high = excluded.confidence_high,
			price_direction = excluded.price_direction,
			confidence_score = excluded.confidence_score,
			current_price = excluded.current_price,
			best_airline = excluded.best_airline,
			forecast_series = excluded.forecast_series,
			predicted_at = excluded.predicted_at,
			valid_until = excluded.valid_until
		returning id, (xmax = 0)`,
		p.RouteID,
		p.Airline,
		models.DateOnly(p.DepartureDate),
		string(p.CabinClass),
		p.ModelVersion,
		p.PredictedPrice,
		p.ConfidenceLow,
		p.ConfidenceHigh,
		string(p.Direction),
		p.Confidence,
		p.CurrentPrice,
		p.BestAirline,
		series,
		p.PredictedAt,
		p.ValidUntil,
	).Scan(&p.ID, &inserted)
	if err != nil {
		if s.l != nil {
			s.l.Error("postgres upsert prediction error",
				applogger.Int64("route_id", p.RouteID),
				applogger.String("model_version", p.ModelVersion),
				applogger.Error(err),
			)
		}
		return false, fmt.Errorf("upsert prediction: %w", err)
	}
	return inserted, nil
}

// Latest returns nil when no valid prediction exists.
func (s *PGStore) Latest(ctx context.Context, routeID int64, departure time.Time, cabin models.CabinClass, now time.Time) (*models.Prediction, error) {
	row := s.pool.QueryRow(ctx, `
		select `+predictionColumns+`
		from predictions
		where route_id = $1 and departure_date = $2 and cabin_class = $3 and valid_until >= $4
		order by predicted_at desc, id desc
		limit 1`, routeID, models.DateOnly(departure), string(cabin), now)
	p, err := scanPrediction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest prediction: %w", err)
	}
	return p, nil
}

func (s *PGStore) ListSince(ctx context.Context, since time.Time) ([]models.Prediction, error) {
	return s.queryPredictions(ctx, `
		select `+predictionColumns+`
		from predictions
		where predicted_at >= $1
		order by route_id, departure_date, cabin_class, predicted_at`, since)
}

func (s *PGStore) ListByRoute(ctx context.Context, routeID int64, cabin models.CabinClass, now time.Time) ([]models.Prediction, error) {
	return s.queryPredictions(ctx, `
		select `+predictionColumns+`
		from predictions
		where route_id = $1 and cabin_class = $2 and valid_until >= $3
		order by departure_date, predicted_at desc`, routeID, string(cabin), now)
}

// DeleteOlderThan removes predictions made before cutoff.
func (s *PGStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `delete from predictions where predicted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete predictions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) queryPredictions(ctx context.Context, q string, args ...any) ([]models.Prediction, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	out := make([]models.Prediction, 0)
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPrediction(row pgx.Row) (*models.Prediction, error) {
	var (
		p      models.Prediction
		cabin  string
		dir    string
		series []byte
	)
	if err := row.Scan(&p.ID, &p.RouteID, &p.Airline, &p.DepartureDate, &cabin, &p.ModelVersion,
		&p.PredictedPrice, &p.ConfidenceLow, &p.ConfidenceHigh,
		&dir, &p.Confidence, &p.CurrentPrice, &p.BestAirline,
		&series, &p.PredictedAt, &p.ValidUntil); err != nil {
		return nil, err
	}
	p.CabinClass = models.CabinClass(cabin)
	p.Direction = models.Direction(dir)
	if len(series) > 0 {
		if err := json.Unmarshal(series, &p.Series); err != nil {
			return nil, fmt.Errorf("decode forecast series: %w", err)
		}
	}
	return &p, nil
}

func seriesOrEmpty(s []models.ForecastPoint) []models.ForecastPoint {
	if s == nil {
		return []models.ForecastPoint{}
	}
	return s
}

// Alerts

func (s *PGStore) ListUntriggered(ctx context.Context) ([]models.PriceAlert, error) {
	rows, err := s.pool.Query(ctx, `
		select id, user_id, route_id, target_price::text, cabin_class, departure_date, created_at
		from price_alerts
		where not is_triggered
		order by id`)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	out := make([]models.PriceAlert, 0)
	for rows.Next() {
		var (
			a      models.PriceAlert
			target string
			cabin  string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.RouteID, &target, &cabin, &a.DepartureDate, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if a.TargetPrice, err = decimal.NewFromString(target); err != nil {
			return nil, fmt.Errorf("alert %d target price: %w", a.ID, err)
		}
		a.CabinClass = models.CabinClass(cabin)
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkTriggered flips the flag only while it is still false, so concurrent
// runs trigger an alert at most once.
func (s *PGStore) MarkTriggered(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		update price_alerts set is_triggered = true, triggered_at = $2
		where id = $1 and not is_triggered`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark alert %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CreateAlert inserts an untriggered alert and sets its id.
func (s *PGStore) CreateAlert(ctx context.Context, a *models.PriceAlert) error {
	err := s.pool.QueryRow(ctx, `
		insert into price_alerts(user_id, route_id, target_price, cabin_class, departure_date)
		values ($1, $2, $3::numeric, $4, $5)
		returning id, created_at`,
		a.UserID, a.RouteID, a.TargetPrice.StringFixed(2), string(a.CabinClass), nullableDay(a.DepartureDate),
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteAlert(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `delete from price_alerts where id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete alert %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// Job runs

func (s *PGStore) Create(ctx context.Context, run *models.JobRun) error {
	_, err := s.pool.Exec(ctx, `
		insert into job_runs(id, job_type, status, attempt, started_at)
		values ($1, $2, $3, $4, $5)`,
		run.ID, run.JobType, string(run.Status), run.Attempt, run.StartedAt)
	if err != nil {
		return fmt.Errorf("create job run: %w", err)
	}
	return nil
}

func (s *PGStore) Finish(ctx context.Context, run *models.JobRun) error {
	_, err := s.pool.Exec(ctx, `
		update job_runs set status = $2, finished_at = $3, records_collected = $4, error_msg = $5
		where id = $1`,
		run.ID, string(run.Status), run.FinishedAt, run.RecordsCollected, run.ErrorMsg)
	if err != nil {
		return fmt.Errorf("finish job run: %w", err)
	}
	return nil
}

func nullableDay(t *time.Time) any {
	if t == nil {
		return nil
	}
	return models.DateOnly(*t)
}

var (
	_ domrepo.RouteStore      = (*PGStore)(nil)
	_ domrepo.PredictionStore = (*PGStore)(nil)
	_ domrepo.AlertStore      = (*PGStore)(nil)
	_ domrepo.JobRunStore     = (*PGStore)(nil)
)
