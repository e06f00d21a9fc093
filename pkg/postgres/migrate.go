package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the relational schema: routes, predictions, price alerts and
// job runs. Observations live in ClickHouse.
var Schema = []string{
	`create table if not exists routes (
		id bigserial primary key,
		origin_code char(3) not null,
		dest_code char(3) not null,
		is_active boolean not null default true,
		created_at timestamptz not null default now(),
		unique (origin_code, dest_code)
	);`,
	`create table if not exists predictions (
		id bigserial primary key,
		route_id bigint not null references routes(id),
		airline_code text not null default '',
		departure_date date not null,
		cabin_class text not null default 'ECONOMY',
		model_version text not null,
		predicted_price numeric(14,2) not null,
		confidence_low numeric(14,2) not null,
		confidence_high numeric(14,2) not null,
		price_direction text not null,
		confidence_score double precision not null,
		current_price numeric(14,2) not null default 0,
		best_airline text not null default '',
		forecast_series jsonb not null default '[]'::jsonb,
		predicted_at timestamptz not null,
		valid_until timestamptz not null,
		unique (route_id, airline_code, departure_date, cabin_class, model_version)
	);`,
	`create index if not exists predictions_predicted_at_idx on predictions(predicted_at);`,
	`create table if not exists price_alerts (
		id bigserial primary key,
		user_id text not null,
		route_id bigint not null references routes(id),
		target_price numeric(14,2) not null,
		cabin_class text not null default 'ECONOMY',
		departure_date date null,
		is_triggered boolean not null default false,
		triggered_at timestamptz null,
		created_at timestamptz not null default now()
	);`,
	`create index if not exists price_alerts_untriggered_idx on price_alerts(route_id) where not is_triggered;`,
	`create table if not exists job_runs (
		id uuid primary key,
		job_type text not null,
		status text not null,
		attempt int not null default 1,
		started_at timestamptz not null,
		finished_at timestamptz null,
		records_collected int not null default 0,
		error_msg text not null default ''
	);`,
	`create index if not exists job_runs_type_started_idx on job_runs(job_type, started_at desc);`,
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range Schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
