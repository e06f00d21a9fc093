package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"
	domsvc "Farenheit/internal/domain/service"
	"Farenheit/internal/handler/api"
	internalrepo "Farenheit/internal/repository"
	"Farenheit/internal/scheduler"
	"Farenheit/internal/service/amadeus"
	svccache "Farenheit/internal/service/cache"
	svcmetrics "Farenheit/internal/service/metrics"
	"Farenheit/internal/services/analytics"
	"Farenheit/internal/services/forecast"
	"Farenheit/internal/usecase"
	pkgcache "Farenheit/pkg/cache"
	pkgch "Farenheit/pkg/clickhouse"
	"Farenheit/pkg/config"
	xhttp "Farenheit/pkg/http"
	pkgkafka "Farenheit/pkg/kafka"
	applogger "Farenheit/pkg/logger"
	"Farenheit/pkg/metrics"
	"Farenheit/pkg/postgres"
	"Farenheit/pkg/server"
)

// Stores groups the persistence ports of the selected storage backend.
type Stores struct {
	Routes      domrepo.RouteStore
	Prices      domrepo.PriceStore
	Predictions domrepo.PredictionStore
	Alerts      domrepo.AlertStore
	Runs        domrepo.JobRunStore

	health map[string]xhttp.HealthCheck
}

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates the Prometheus recorder and registers model call metrics.
func ProvideMetrics() domrepo.Metrics {
	svcmetrics.Register()
	return metrics.New()
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideEventPublisher publishes alert events to Kafka when enabled and to
// the log otherwise. It also attaches the log collector to the producer.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer, l *applogger.Logger) domrepo.EventPublisher {
	if producer == nil {
		return internalrepo.NewLogEventPublisher(l)
	}
	if cfg.Log.Collector.Enabled {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Log.Collector.Topic,
			Publisher:      producer,
		})
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topics.Alerts)
}

// ProvideStores opens the configured backend, applies schemas and seeds the
// configured routes.
func ProvideStores(cfg *config.Config, l *applogger.Logger) (*Stores, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	routes, err := parseRoutes(cfg.Pipeline.Routes)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Storage.Backend == config.BackendMemory {
		rs := internalrepo.NewMemoryRouteStore()
		for _, r := range routes {
			rs.Add(r)
		}
		l.Warn("using in-memory storage; data is lost on exit")
		return &Stores{
			Routes:      rs,
			Prices:      internalrepo.NewMemoryPriceStore(),
			Predictions: internalrepo.NewMemoryPredictionStore(),
			Alerts:      internalrepo.NewMemoryAlertStore(),
			Runs:        internalrepo.NewMemoryJobRunStore(),
		}, func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres.URL, poolConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	ch, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := ch.InitSchema(ctx, internalrepo.PriceSchema(cfg.ClickHouse.Database)); err != nil {
		_ = ch.Close()
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	pg := internalrepo.NewPGStore(pool)
	pg.SetLogger(l)
	for _, r := range routes {
		if _, err := pg.Ensure(ctx, r.Origin, r.Destination); err != nil {
			_ = ch.Close()
			pool.Close()
			return nil, nil, fmt.Errorf("seed route %s: %w", r.Code(), err)
		}
	}
	prices := internalrepo.NewCHPriceStore(ch, cfg.ClickHouse.Database)
	prices.SetLogger(l)

	cleanup := func() {
		if err := ch.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
		pool.Close()
	}
	return &Stores{
		Routes:      pg,
		Prices:      prices,
		Predictions: pg,
		Alerts:      pg,
		Runs:        pg,
		health: map[string]xhttp.HealthCheck{
			"postgres":   pool.Ping,
			"clickhouse": ch.Health,
		},
	}, cleanup, nil
}

// poolConfig layers the postgres section over the pool defaults.
func poolConfig(cfg *config.Config) postgres.PoolConfig {
	return postgres.DefaultPoolConfig().Override(postgres.PoolConfig{
		MaxConns:          cfg.Postgres.MaxConns,
		MinConns:          cfg.Postgres.MinConns,
		MaxConnLifetime:   cfg.Postgres.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Postgres.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Postgres.HealthCheckPeriod,
	})
}

// parseRoutes reads "ICN-NRT" style codes.
func parseRoutes(codes []string) ([]models.Route, error) {
	out := make([]models.Route, 0, len(codes))
	for _, code := range codes {
		origin, dest, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(code)), "-")
		if !ok || len(origin) != 3 || len(dest) != 3 {
			return nil, fmt.Errorf("pipeline.routes: invalid route %q", code)
		}
		out = append(out, models.Route{Origin: origin, Destination: dest, IsActive: true})
	}
	return out, nil
}

// ProvideCacheService returns Redis behind a local layer when Redis is
// enabled, a process-local cache otherwise.
func ProvideCacheService(cfg *config.Config, l *applogger.Logger) (pkgcache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mem := pkgcache.NewMemoryCache()
		return mem, func() { _ = mem.Close() }, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, err
	}
	layered := pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredLocalTTL(cfg.Redis.LocalTTL))
	return layered, func() {
		if err := layered.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}, nil
}

func ProvideRecommendationCache(svc pkgcache.Service) domrepo.RecommendationCache {
	return svccache.NewRecommendationCache(svc)
}

func ProvideLocker(svc pkgcache.Service) domrepo.Locker {
	return svccache.NewLocker(svc)
}

// ProvidePriceSource creates the Amadeus offers client.
func ProvidePriceSource(cfg *config.Config, l *applogger.Logger) domrepo.PriceSource {
	return amadeus.New(cfg.Amadeus.BaseURL, cfg.Amadeus.ClientID, cfg.Amadeus.ClientSecret,
		amadeus.WithTimeout(cfg.Amadeus.Timeout),
		amadeus.WithRateLimit(cfg.Amadeus.RateLimit.Capacity, cfg.Amadeus.RateLimit.RefillPerSec),
		amadeus.WithCurrency(cfg.Amadeus.Currency),
		amadeus.WithMaxResults(cfg.Amadeus.MaxResults),
		amadeus.WithLogger(l),
	)
}

// ProvideForecaster picks the ensemble or the statistical forecaster.
func ProvideForecaster(cfg *config.Config, l *applogger.Logger) domsvc.Forecaster {
	base := analytics.NewHTTPServiceBase(cfg)
	if !base.Configured() {
		return forecast.Select(cfg, nil, nil, l)
	}
	return forecast.Select(cfg, analytics.NewHTTPSeasonalModel(base), analytics.NewHTTPDirectionClassifier(base), l)
}

func ProvideStageOptions(cfg *config.Config, l *applogger.Logger, m domrepo.Metrics) usecase.StageOptions {
	return usecase.StageOptions{
		Concurrency: cfg.Pipeline.Concurrency,
		UnitTimeout: cfg.Pipeline.UnitTimeout,
		Logger:      l,
		Metrics:     m,
	}
}

func cabins(cfg *config.Config) []models.CabinClass {
	out := make([]models.CabinClass, 0, len(cfg.Pipeline.CabinClasses))
	for _, c := range cfg.Pipeline.CabinClasses {
		out = append(out, models.NormalizeCabinClass(c))
	}
	return out
}

func ProvideCollector(cfg *config.Config, s *Stores, source domrepo.PriceSource, o usecase.StageOptions) *usecase.Collector {
	return usecase.NewCollector(s.Routes, s.Prices, source, cabins(cfg), o)
}

func ProvidePredictor(cfg *config.Config, s *Stores, f domsvc.Forecaster, o usecase.StageOptions) *usecase.Predictor {
	return usecase.NewPredictor(s.Routes, s.Prices, s.Predictions, f, usecase.PredictorConfig{
		Cabins:          cabins(cfg),
		HistoryLookback: cfg.Pipeline.HistoryLookback,
		Horizon:         cfg.Pipeline.ForecastHorizon,
		ValidFor:        cfg.Pipeline.PredictionValidFor,
	}, o)
}

func ProvideRecommender(cfg *config.Config, s *Stores, cache domrepo.RecommendationCache, o usecase.StageOptions) *usecase.Recommender {
	return usecase.NewRecommender(s.Routes, s.Predictions, cache, cfg.Pipeline.FreshnessWindow, cfg.Pipeline.RecommendationTTL, o)
}

func ProvideAlerter(cfg *config.Config, s *Stores, events domrepo.EventPublisher, o usecase.StageOptions) *usecase.Alerter {
	return usecase.NewAlerter(s.Routes, s.Prices, s.Alerts, events, cfg.Pipeline.AlertLookback, o)
}

func ProvideRetention(cfg *config.Config, s *Stores, o usecase.StageOptions) *usecase.Retention {
	return usecase.NewRetention(s.Prices, s.Predictions, cfg.Pipeline.ObservationRetention, cfg.Pipeline.PredictionRetention, o)
}

// ProvideStages lists the enabled stages in pipeline order.
func ProvideStages(
	cfg *config.Config,
	collector *usecase.Collector,
	predictor *usecase.Predictor,
	recommender *usecase.Recommender,
	alerter *usecase.Alerter,
	retention *usecase.Retention,
) []scheduler.Stage {
	all := []struct {
		name string
		run  scheduler.StageFunc
	}{
		{models.StageCollect, collector.Run},
		{models.StagePredict, predictor.Run},
		{models.StageRecommend, recommender.Run},
		{models.StageAlert, alerter.Run},
		{models.StageRetain, retention.Run},
	}
	stages := make([]scheduler.Stage, 0, len(all))
	for _, s := range all {
		sc, ok := cfg.StageByName(s.name)
		if !ok || !sc.Enabled {
			continue
		}
		stages = append(stages, scheduler.Stage{Name: s.name, Interval: sc.Interval, Timeout: sc.Timeout, Run: s.run})
	}
	return stages
}

func ProvideScheduler(
	cfg *config.Config,
	s *Stores,
	stages []scheduler.Stage,
	locker domrepo.Locker,
	m domrepo.Metrics,
	l *applogger.Logger,
) *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{
		LockTTL:     cfg.Scheduler.LockTTL,
		MaxAttempts: cfg.Scheduler.MaxAttempts,
		BackoffBase: cfg.Scheduler.BackoffBase,
		BackoffMax:  cfg.Scheduler.BackoffMax,
		RunOnStart:  cfg.Scheduler.RunOnStart,
	}, s.Runs, stages,
		scheduler.WithLocker(locker),
		scheduler.WithMetrics(m),
		scheduler.WithLogger(l),
	)
}

// ProvideFlightQueries serves reads. Ad-hoc forecasts always use the
// statistical model so the read path never waits on the model service.
func ProvideFlightQueries(cfg *config.Config, s *Stores, cache domrepo.RecommendationCache) *usecase.FlightQueries {
	return usecase.NewFlightQueries(s.Routes, s.Prices, s.Predictions, cache, forecast.NewStatisticalOnly(cfg.Pipeline.ForecastHorizon))
}

func ProvideAlertService(s *Stores) *usecase.AlertService {
	return usecase.NewAlertService(s.Routes, s.Alerts)
}

func ProvideHTTPHandler(l *applogger.Logger, q *usecase.FlightQueries, a *usecase.AlertService) xhttp.Handler {
	return api.NewFlightsEchoHandler(l, q, a)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	sched *scheduler.Scheduler,
	handler xhttp.Handler,
	s *Stores,
	svc pkgcache.Service,
) *server.App {
	app := server.New(cfg, l, sched, handler)
	for name, check := range s.health {
		app.AddHealthCheck(name, check)
	}
	if rc, ok := svc.(interface{ Ping(context.Context) error }); ok {
		app.AddHealthCheck("redis", rc.Ping)
	}
	return app
}
