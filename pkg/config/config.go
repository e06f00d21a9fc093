package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	xutil "Farenheit/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQL    = "sql"
	BackendMemory = "memory"
)

// StageConfig schedules one pipeline stage.
type StageConfig struct {
	Enabled  bool          `yaml:"enabled" default:"true"`
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
	Timeout  time.Duration `yaml:"timeout" validate:"gt=0"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level     string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format    string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
			Topic     string        `yaml:"topic" default:"farenheit.logs"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Storage struct {
		Backend string `yaml:"backend" default:"sql" validate:"oneof=sql memory"`
	} `yaml:"storage"`
	Postgres struct {
		URL               string        `yaml:"url"`
		MaxConns          int32         `yaml:"max_conns" default:"10"`
		MinConns          int32         `yaml:"min_conns" default:"2"`
		MaxConnLifetime   time.Duration `yaml:"max_conn_lifetime" default:"30m"`
		MaxConnIdleTime   time.Duration `yaml:"max_conn_idle_time" default:"5m"`
		HealthCheckPeriod time.Duration `yaml:"health_check_period" default:"30s"`
	} `yaml:"postgres"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"farenheit"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Topics       struct {
			Alerts string `yaml:"alerts" default:"farenheit.alerts.triggered"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		PoolSize int           `yaml:"pool_size" default:"10"`
		Prefix   string        `yaml:"prefix" default:"farenheit"`
		LocalTTL time.Duration `yaml:"local_ttl" default:"30s"`
	} `yaml:"redis"`
	Amadeus struct {
		BaseURL      string        `yaml:"base_url" default:"https://test.api.amadeus.com" validate:"url"`
		ClientID     string        `yaml:"client_id"`
		ClientSecret string        `yaml:"client_secret"`
		Timeout      time.Duration `yaml:"timeout" default:"30s"`
		Currency     string        `yaml:"currency" default:"KRW" validate:"len=3"`
		MaxResults   int           `yaml:"max_results" default:"50" validate:"gte=1,lte=250"`
		RateLimit    struct {
			Capacity     float64 `yaml:"capacity" default:"10"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"5"`
		} `yaml:"rate_limit"`
	} `yaml:"amadeus"`
	Analytics struct {
		ModelServiceURL     string        `yaml:"model_service_url"`
		Timeout             time.Duration `yaml:"timeout" default:"10s"`
		Retries             int           `yaml:"retries" default:"2"`
		SeasonalReliability float64       `yaml:"seasonal_reliability" default:"0.6" validate:"gt=0,lte=1"`
		MinObservations     int           `yaml:"min_observations" default:"7" validate:"gte=1"`
		AvailabilityTTL     time.Duration `yaml:"availability_ttl" default:"10m"`
	} `yaml:"analytics"`
	Pipeline struct {
		Routes               []string      `yaml:"routes" validate:"dive,len=7"`
		Concurrency          int           `yaml:"concurrency" default:"4" validate:"gte=1,lte=64"`
		UnitTimeout          time.Duration `yaml:"unit_timeout" default:"45s"`
		CabinClasses         []string      `yaml:"cabin_classes" default:"[\"ECONOMY\"]" validate:"min=1,dive,oneof=ECONOMY PREMIUM_ECONOMY BUSINESS FIRST"`
		ForecastHorizon      int           `yaml:"forecast_horizon" default:"14" validate:"gte=1,lte=60"`
		HistoryLookback      time.Duration `yaml:"history_lookback" default:"2160h"`
		PredictionValidFor   time.Duration `yaml:"prediction_valid_for" default:"6h"`
		FreshnessWindow      time.Duration `yaml:"freshness_window" default:"3h"`
		RecommendationTTL    time.Duration `yaml:"recommendation_ttl" default:"2h"`
		AlertLookback        time.Duration `yaml:"alert_lookback" default:"24h"`
		ObservationRetention time.Duration `yaml:"observation_retention" default:"4320h"`
		PredictionRetention  time.Duration `yaml:"prediction_retention" default:"720h"`
	} `yaml:"pipeline"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// SchedulerConfig drives stage execution.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
	// LockTTL bounds the cross-instance stage lock. It must outlast every
	// attempt of a run plus the backoff between them.
	LockTTL     time.Duration `yaml:"lock_ttl" default:"3h"`
	MaxAttempts int           `yaml:"max_attempts" default:"3" validate:"gte=1,lte=10"`
	BackoffBase time.Duration `yaml:"backoff_base" default:"2s"`
	BackoffMax  time.Duration `yaml:"backoff_max" default:"1m"`
	RunOnStart  bool          `yaml:"run_on_start"`
	Stages      struct {
		Collect   StageConfig `yaml:"collect"`
		Predict   StageConfig `yaml:"predict"`
		Recommend StageConfig `yaml:"recommend"`
		Alert     StageConfig `yaml:"alert"`
		Retain    StageConfig `yaml:"retain"`
	} `yaml:"stages"`
}

// WorstCaseRun is how long one scheduled run of st may hold its lock: every
// attempt timing out, with the maximum backoff between attempts.
func (s SchedulerConfig) WorstCaseRun(st StageConfig) time.Duration {
	attempts := time.Duration(s.MaxAttempts)
	if attempts < 1 {
		attempts = 1
	}
	return st.Timeout*attempts + s.BackoffMax*(attempts-1)
}

var validate = validator.New()

// Load reads and parses a YAML configuration file, filling defaults.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML, overrides with environment variables
// and validates the result.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.stageDefaults()
	return &c, nil
}

// stageDefaults fills unset stage cadences: collection every 30 minutes,
// prediction and recommendation hourly, alerts every 15 minutes, retention weekly.
func (c *Config) stageDefaults() {
	fill := func(s *StageConfig, interval, timeout time.Duration) {
		if s.Interval <= 0 {
			s.Interval = interval
		}
		if s.Timeout <= 0 {
			s.Timeout = timeout
		}
	}
	st := &c.Scheduler.Stages
	fill(&st.Collect, 30*time.Minute, 25*time.Minute)
	fill(&st.Predict, time.Hour, 50*time.Minute)
	fill(&st.Recommend, time.Hour, 10*time.Minute)
	fill(&st.Alert, 15*time.Minute, 10*time.Minute)
	fill(&st.Retain, 7*24*time.Hour, 30*time.Minute)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("AMADEUS_CLIENT_ID"); v != "" {
		c.Amadeus.ClientID = v
	}
	if v := os.Getenv("AMADEUS_CLIENT_SECRET"); v != "" {
		c.Amadeus.ClientSecret = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("MODEL_SERVICE_URL"); v != "" {
		c.Analytics.ModelServiceURL = v
	}
	if v := xutil.SplitList(os.Getenv("PIPELINE_CABIN_CLASSES")); len(v) > 0 {
		c.Pipeline.CabinClasses = v
	}
}

// Validate checks field rules and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Storage.Backend == BackendSQL {
		if c.Postgres.URL == "" {
			return fmt.Errorf("postgres.url is required for storage.backend=%s", BackendSQL)
		}
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for storage.backend=%s", BackendSQL)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Log.Collector.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("log.collector requires kafka")
	}
	if c.Scheduler.Stages.Collect.Enabled && (c.Amadeus.ClientID == "" || c.Amadeus.ClientSecret == "") {
		return fmt.Errorf("amadeus.client_id and amadeus.client_secret are required when collection is enabled")
	}
	if c.Pipeline.FreshnessWindow > c.Pipeline.PredictionValidFor {
		return fmt.Errorf("pipeline.freshness_window must not exceed pipeline.prediction_valid_for")
	}
	if c.Pipeline.RecommendationTTL > c.Pipeline.PredictionValidFor-c.Pipeline.FreshnessWindow {
		return fmt.Errorf("pipeline.recommendation_ttl (%s) must not exceed prediction_valid_for - freshness_window (%s)",
			c.Pipeline.RecommendationTTL, c.Pipeline.PredictionValidFor-c.Pipeline.FreshnessWindow)
	}
	for _, name := range []string{"collect", "predict", "recommend", "alert", "retain"} {
		st, _ := c.StageByName(name)
		if !st.Enabled {
			continue
		}
		if worst := c.Scheduler.WorstCaseRun(st); c.Scheduler.LockTTL < worst {
			return fmt.Errorf("scheduler.lock_ttl (%s) is shorter than the %s stage's worst-case run (%s)", c.Scheduler.LockTTL, name, worst)
		}
	}
	return nil
}

// StageByName returns the schedule for a pipeline stage.
func (c *Config) StageByName(name string) (StageConfig, bool) {
	s := c.Scheduler.Stages
	switch name {
	case "collect":
		return s.Collect, true
	case "predict":
		return s.Predict, true
	case "recommend":
		return s.Recommend, true
	case "alert":
		return s.Alert, true
	case "retain":
		return s.Retain, true
	default:
		return StageConfig{}, false
	}
}
