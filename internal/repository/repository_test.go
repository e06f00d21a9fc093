package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"
	"Farenheit/pkg/kafka"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func obsAt(at time.Time, airline string, price int64) models.PriceObservation {
	return models.PriceObservation{
		ObservedAt:    at,
		RouteID:       1,
		Airline:       airline,
		DepartureDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		CabinClass:    models.CabinEconomy,
		Price:         decimal.NewFromInt(price),
		Currency:      "KRW",
		Source:        "amadeus",
	}
}

func TestMemoryPriceStoreHistoryOrderAndFilter(t *testing.T) {
	s := NewMemoryPriceStore()
	ctx := context.Background()
	n, err := s.StoreBatch(ctx, []models.PriceObservation{
		obsAt(t0.Add(2*time.Hour), "KE", 310000),
		obsAt(t0, "KE", 300000),
		obsAt(t0.Add(time.Hour), "OZ", 290000),
		obsAt(t0, "", 1),
	})
	if err != nil || n != 3 {
		t.Fatalf("store batch n=%d err=%v", n, err)
	}

	f := domrepo.HistoryFilter{RouteID: 1, DepartureDate: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC), CabinClass: models.CabinEconomy}
	all, _ := s.History(ctx, f)
	if len(all) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ObservedAt.Before(all[i-1].ObservedAt) {
			t.Fatalf("history not ascending at %d", i)
		}
	}
	f.Airline = "KE"
	ke, _ := s.History(ctx, f)
	if len(ke) != 2 {
		t.Fatalf("expected 2 KE observations, got %d", len(ke))
	}
}

func TestMemoryPriceStoreMinPriceAndRetention(t *testing.T) {
	s := NewMemoryPriceStore()
	ctx := context.Background()
	_, _ = s.StoreBatch(ctx, []models.PriceObservation{
		obsAt(t0.Add(-48*time.Hour), "KE", 100000),
		obsAt(t0, "KE", 300000),
		obsAt(t0.Add(time.Hour), "OZ", 280000),
	})

	min, ok, _ := s.MinPrice(ctx, domrepo.MinPriceFilter{RouteID: 1, CabinClass: models.CabinEconomy, Since: t0.Add(-24 * time.Hour)})
	if !ok || !min.Equal(decimal.NewFromInt(280000)) {
		t.Fatalf("min = %s ok=%v", min, ok)
	}
	if _, ok, _ := s.MinPrice(ctx, domrepo.MinPriceFilter{RouteID: 2, CabinClass: models.CabinEconomy}); ok {
		t.Fatalf("expected no match for unknown route")
	}

	removed, _ := s.DeleteOlderThan(ctx, t0)
	if removed != 1 || s.Len() != 2 {
		t.Fatalf("removed=%d remaining=%d", removed, s.Len())
	}
	// boundary: an observation exactly at cutoff is kept
	removed, _ = s.DeleteOlderThan(ctx, t0)
	if removed != 0 {
		t.Fatalf("observation at cutoff should be kept")
	}
}

func TestMemoryPredictionUpsertIsIdempotent(t *testing.T) {
	s := NewMemoryPredictionStore()
	ctx := context.Background()
	p := &models.Prediction{
		RouteID: 1, DepartureDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), CabinClass: models.CabinEconomy,
		ModelVersion: "statistical-v1", PredictedPrice: 300000, PredictedAt: t0, ValidUntil: t0.Add(6 * time.Hour),
	}
	inserted, _ := s.Upsert(ctx, p)
	if !inserted {
		t.Fatalf("first upsert should insert")
	}
	id := p.ID

	again := *p
	again.ID = 0
	again.PredictedPrice = 310000
	again.PredictedAt = t0.Add(time.Hour)
	again.ValidUntil = t0.Add(7 * time.Hour)
	inserted, _ = s.Upsert(ctx, &again)
	if inserted || again.ID != id {
		t.Fatalf("second upsert should update row %d, got inserted=%v id=%d", id, inserted, again.ID)
	}

	got, _ := s.Latest(ctx, 1, p.DepartureDate, models.CabinEconomy, t0.Add(2*time.Hour))
	if got == nil || got.PredictedPrice != 310000 || !got.PredictedAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("latest = %+v", got)
	}
	if stale, _ := s.Latest(ctx, 1, p.DepartureDate, models.CabinEconomy, t0.Add(8*time.Hour)); stale != nil {
		t.Fatalf("stale prediction returned")
	}
	since, _ := s.ListSince(ctx, t0)
	if len(since) != 1 {
		t.Fatalf("expected one row, got %d", len(since))
	}
	n, _ := s.DeleteOlderThan(ctx, t0.Add(time.Hour))
	if n != 0 {
		t.Fatalf("prediction made at cutoff should be kept")
	}
}

func TestMemoryAlertTriggersOnce(t *testing.T) {
	s := NewMemoryAlertStore()
	ctx := context.Background()
	a := &models.PriceAlert{UserID: "u1", RouteID: 1, TargetPrice: decimal.NewFromInt(250000), CabinClass: models.CabinEconomy}
	_ = s.CreateAlert(ctx, a)

	ok, err := s.MarkTriggered(ctx, a.ID, t0)
	if err != nil || !ok {
		t.Fatalf("first trigger ok=%v err=%v", ok, err)
	}
	ok, _ = s.MarkTriggered(ctx, a.ID, t0.Add(time.Hour))
	if ok {
		t.Fatalf("alert triggered twice")
	}
	stored, _ := s.Alert(a.ID)
	if !stored.TriggeredAt.Equal(t0) {
		t.Fatalf("triggered_at changed: %v", stored.TriggeredAt)
	}
	if list, _ := s.ListUntriggered(ctx); len(list) != 0 {
		t.Fatalf("triggered alert still listed")
	}
	if _, err := s.MarkTriggered(ctx, 99, t0); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryJobRuns(t *testing.T) {
	s := NewMemoryJobRunStore()
	ctx := context.Background()
	run := models.NewJobRun(models.StageCollect, 1, t0)
	_ = s.Create(ctx, run)
	run.Finish(t0.Add(time.Minute), 42, nil)
	if err := s.Finish(ctx, run); err != nil {
		t.Fatalf("finish: %v", err)
	}
	runs := s.Runs()
	if len(runs) != 1 || runs[0].Status != models.JobSuccess || runs[0].RecordsCollected != 42 {
		t.Fatalf("runs = %+v", runs)
	}
}

type recordingPublisher struct {
	topic string
	msgs  []kafka.Message
}

func (r *recordingPublisher) PublishBatch(_ context.Context, topic string, msgs []kafka.Message) error {
	r.topic, r.msgs = topic, msgs
	return nil
}

func TestKafkaEventPublisherKeysByAlert(t *testing.T) {
	rec := &recordingPublisher{}
	p := NewKafkaEventPublisher(rec, "farenheit.alerts.triggered")
	if err := p.PublishAlertTriggered(context.Background(), models.AlertTriggeredEvent{AlertID: 7}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if rec.topic != "farenheit.alerts.triggered" || len(rec.msgs) != 1 {
		t.Fatalf("topic=%s msgs=%d", rec.topic, len(rec.msgs))
	}
	m := rec.msgs[0]
	if string(m.Key) != "7" || m.Headers["event_type"] != models.EventAlertTriggered {
		t.Fatalf("key=%s headers=%v", m.Key, m.Headers)
	}
}

func TestMemoryRouteEnsureIsIdempotent(t *testing.T) {
	s := NewMemoryRouteStore()
	ctx := context.Background()
	seeded := s.Add(models.Route{Origin: "ICN", Destination: "NRT", IsActive: true})

	r, err := s.Ensure(ctx, "ICN", "NRT")
	if err != nil || r.ID != seeded.ID {
		t.Fatalf("ensure existing: %+v %v", r, err)
	}
	created, err := s.Ensure(ctx, "GMP", "HND")
	if err != nil || created.ID == seeded.ID || !created.IsActive {
		t.Fatalf("ensure new: %+v %v", created, err)
	}
	again, _ := s.Ensure(ctx, "GMP", "HND")
	if again.ID != created.ID {
		t.Fatalf("second ensure created %d, want %d", again.ID, created.ID)
	}
	if active, _ := s.ListActive(ctx); len(active) != 2 {
		t.Fatalf("active routes = %d, want 2", len(active))
	}
}

func TestMemoryAlertDelete(t *testing.T) {
	s := NewMemoryAlertStore()
	ctx := context.Background()
	a := &models.PriceAlert{RouteID: 1, TargetPrice: decimal.NewFromInt(1000), CabinClass: models.CabinEconomy}
	_ = s.CreateAlert(ctx, a)
	if err := s.DeleteAlert(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteAlert(ctx, a.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
