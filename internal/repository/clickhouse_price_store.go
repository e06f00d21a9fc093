package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"
	pkgch "Farenheit/pkg/clickhouse"
	applogger "Farenheit/pkg/logger"

	"github.com/shopspring/decimal"
)

const insertChunkSize = 2000

// PriceSchema creates the observation table. Observations are append-only,
// so a plain MergeTree ordered by series and time fits.
func PriceSchema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.flight_prices (
            observed_at      DateTime64(3, 'UTC'),
            route_id         Int64,
            airline_code     LowCardinality(String),
            departure_date   Date,
            return_date      Nullable(Date),
            cabin_class      LowCardinality(String),
            price            Decimal(14, 2),
            currency         LowCardinality(String),
            stops            UInt8,
            duration_minutes Nullable(Int32),
            source           LowCardinality(String),
            raw_offer_id     String
        )
        ENGINE = MergeTree
        PARTITION BY toYYYYMM(observed_at)
        ORDER BY (route_id, departure_date, cabin_class, observed_at, airline_code)`, database),
	}
}

// CHPriceStore implements PriceStore backed by ClickHouse.
type CHPriceStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHPriceStore(ch *pkgch.Client, database string) *CHPriceStore {
	return &CHPriceStore{db: ch.DB(), table: database + ".flight_prices"}
}

// SetLogger injects a structured logger.
func (s *CHPriceStore) SetLogger(l *applogger.Logger) { s.l = l }

const priceColumns = `observed_at, route_id, airline_code, departure_date, return_date, cabin_class,
            price, currency, stops, duration_minutes, source, raw_offer_id`

// StoreBatch inserts observations in multi-row chunks.
func (s *CHPriceStore) StoreBatch(ctx context.Context, obs []models.PriceObservation) (int, error) {
	stored := 0
	for start := 0; start < len(obs); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(obs) {
			end = len(obs)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*12)
		for _, o := range obs[start:end] {
			if o.Airline == "" || o.RouteID == 0 {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				o.ObservedAt.UTC(),
				o.RouteID,
				o.Airline,
				models.DateOnly(o.DepartureDate),
				nullableDate(o.ReturnDate),
				string(o.CabinClass),
				o.Price,
				o.Currency,
				uint8(o.Stops),
				nullableInt32(o.DurationMinutes),
				o.Source,
				o.RawOfferID,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, priceColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse store_batch error",
					applogger.String("table", s.table),
					applogger.Int("rows", len(values)),
					applogger.Error(err),
				)
			}
			return stored, fmt.Errorf("store observations: %w", err)
		}
		stored += len(values)
	}
	return stored, nil
}

// History returns one series ordered by observed_at ascending.
func (s *CHPriceStore) History(ctx context.Context, f domrepo.HistoryFilter) ([]models.PriceObservation, error) {
	start := time.Now()
	where := []string{"route_id = ?", "departure_date = ?", "cabin_class = ?", "observed_at >= ?"}
	args := []interface{}{f.RouteID, models.DateOnly(f.DepartureDate), string(f.CabinClass), f.Since.UTC()}
	if f.Airline != "" {
		where = append(where, "airline_code = ?")
		args = append(args, f.Airline)
	}
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE %s
        ORDER BY observed_at ASC`, priceColumns, s.table, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse history query error",
				applogger.Int64("route_id", f.RouteID),
				applogger.String("cabin", string(f.CabinClass)),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("price history: %w", err)
	}
	defer rows.Close()

	out := make([]models.PriceObservation, 0, 256)
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse history ok",
			applogger.Int64("route_id", f.RouteID),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func scanObservation(rows *sql.Rows) (models.PriceObservation, error) {
	var (
		o        models.PriceObservation
		cabin    string
		stops    uint8
		ret      sql.NullTime
		duration sql.NullInt32
	)
	if err := rows.Scan(&o.ObservedAt, &o.RouteID, &o.Airline, &o.DepartureDate, &ret, &cabin,
		&o.Price, &o.Currency, &stops, &duration, &o.Source, &o.RawOfferID); err != nil {
		return o, err
	}
	o.CabinClass = models.CabinClass(cabin)
	o.Stops = int(stops)
	if ret.Valid {
		t := ret.Time
		o.ReturnDate = &t
	}
	if duration.Valid {
		d := int(duration.Int32)
		o.DurationMinutes = &d
	}
	return o, nil
}

// MinPrice returns the lowest observed price for an alert's route and cabin.
func (s *CHPriceStore) MinPrice(ctx context.Context, f domrepo.MinPriceFilter) (decimal.Decimal, bool, error) {
	where := []string{"route_id = ?", "cabin_class = ?", "observed_at >= ?"}
	args := []interface{}{f.RouteID, string(f.CabinClass), f.Since.UTC()}
	if f.DepartureDate != nil {
		where = append(where, "departure_date = ?")
		args = append(args, models.DateOnly(*f.DepartureDate))
	}
	q := fmt.Sprintf(`SELECT count(), min(price) FROM %s WHERE %s`, s.table, strings.Join(where, " AND "))

	var (
		n      uint64
		lowest decimal.Decimal
	)
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n, &lowest); err != nil {
		return decimal.Zero, false, fmt.Errorf("min price: %w", err)
	}
	if n == 0 {
		return decimal.Zero, false, nil
	}
	return lowest, true, nil
}

// DeleteOlderThan counts then deletes observations older than cutoff.
// ClickHouse mutations report no affected-row count.
func (s *CHPriceStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var n uint64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count() FROM %s WHERE observed_at < ?`, s.table), cutoff.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count expired observations: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	q := fmt.Sprintf(`ALTER TABLE %s DELETE WHERE observed_at < ? SETTINGS mutations_sync = 1`, s.table)
	if _, err := s.db.ExecContext(ctx, q, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("delete expired observations: %w", err)
	}
	return int(n), nil
}

func nullableDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return models.DateOnly(*t)
}

func nullableInt32(v *int) interface{} {
	if v == nil {
		return nil
	}
	return int32(*v)
}

var _ domrepo.PriceStore = (*CHPriceStore)(nil)
