package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const memoryConfig = `
environment: test
storage:
  backend: memory
scheduler:
  stages:
    collect:
      enabled: false
    retain:
      interval: 24h
`

func TestLoadFillsDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, memoryConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 8080 {
		t.Fatalf("port = %d", c.Server.Port)
	}
	if c.Pipeline.FreshnessWindow != 3*time.Hour {
		t.Fatalf("freshness = %v", c.Pipeline.FreshnessWindow)
	}
	if c.Pipeline.ObservationRetention != 180*24*time.Hour {
		t.Fatalf("observation retention = %v", c.Pipeline.ObservationRetention)
	}
	if len(c.Pipeline.CabinClasses) != 1 || c.Pipeline.CabinClasses[0] != "ECONOMY" {
		t.Fatalf("cabins = %v", c.Pipeline.CabinClasses)
	}
	if c.Analytics.SeasonalReliability != 0.6 {
		t.Fatalf("reliability = %v", c.Analytics.SeasonalReliability)
	}
	if c.Scheduler.Stages.Collect.Enabled {
		t.Fatalf("collect should be disabled")
	}
	if !c.Scheduler.Stages.Predict.Enabled || c.Scheduler.Stages.Predict.Interval != time.Hour {
		t.Fatalf("predict stage = %+v", c.Scheduler.Stages.Predict)
	}
	if c.Scheduler.Stages.Retain.Interval != 24*time.Hour {
		t.Fatalf("retain interval = %v", c.Scheduler.Stages.Retain.Interval)
	}
}

func TestLoadRequiresSQLSettings(t *testing.T) {
	body := `
environment: test
storage:
  backend: sql
scheduler:
  stages:
    collect:
      enabled: false
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error without postgres.url")
	}
}

func TestLoadRequiresAmadeusForCollection(t *testing.T) {
	body := `
environment: test
storage:
  backend: memory
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error without amadeus credentials")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	body := `
environment: test
storage:
  backend: memory
`
	t.Setenv("AMADEUS_CLIENT_ID", "id")
	t.Setenv("AMADEUS_CLIENT_SECRET", "secret")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PIPELINE_CABIN_CLASSES", "economy,business")
	c, err := LoadWithEnv(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Amadeus.ClientID != "id" || !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("env overrides not applied: %+v %+v", c.Amadeus, c.Kafka)
	}
	if len(c.Pipeline.CabinClasses) != 2 || c.Pipeline.CabinClasses[1] != "BUSINESS" {
		t.Fatalf("cabin override not applied: %v", c.Pipeline.CabinClasses)
	}
}

func TestLoadRejectsUnknownCabin(t *testing.T) {
	body := memoryConfig + `
pipeline:
  cabin_classes: [ECONOMY, SLEEPER]
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected cabin validation error")
	}
}

func TestStageByName(t *testing.T) {
	c, err := Load(writeConfig(t, memoryConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := c.StageByName("alert"); !ok {
		t.Fatalf("alert stage missing")
	}
	if _, ok := c.StageByName("bogus"); ok {
		t.Fatalf("unexpected stage")
	}
}

func TestLoadRejectsShortLockTTL(t *testing.T) {
	body := memoryConfig + `  lock_ttl: 2h
`
	// predict: 3 x 50m + 2 x 1m = 2h32m
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected lock_ttl shorter than the predict worst case to be rejected")
	}

	c, err := Load(writeConfig(t, memoryConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := c.Scheduler.WorstCaseRun(c.Scheduler.Stages.Predict); got != 152*time.Minute {
		t.Fatalf("predict worst case = %v", got)
	}
	if c.Scheduler.LockTTL < 152*time.Minute {
		t.Fatalf("default lock_ttl %v does not cover predict", c.Scheduler.LockTTL)
	}
}

func TestLoadRejectsRecommendationOutlivingPrediction(t *testing.T) {
	body := memoryConfig + `pipeline:
  prediction_valid_for: 6h
  freshness_window: 3h
  recommendation_ttl: 4h
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected recommendation_ttl > valid_for - freshness to be rejected")
	}
}
