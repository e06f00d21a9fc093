package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublishEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "gzip")

	err := p.Publish(context.Background(), "alerts", []byte("42"), map[string]any{"alert_id": 42})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 || w.msgs[0].Topic != "alerts" || string(w.msgs[0].Key) != "42" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	var body map[string]int
	if err := json.Unmarshal(w.msgs[0].Value, &body); err != nil || body["alert_id"] != 42 {
		t.Fatalf("unexpected body %s (%v)", w.msgs[0].Value, err)
	}
}

func TestPublishBatchPassesBytesThrough(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "gzip")
	err := p.PublishBatch(context.Background(), "logs", []Message{{Value: []byte("raw")}, {Value: "text"}})
	if err != nil {
		t.Fatalf("publish batch: %v", err)
	}
	if string(w.msgs[0].Value) != "raw" || string(w.msgs[1].Value) != "text" {
		t.Fatalf("unexpected values %q %q", w.msgs[0].Value, w.msgs[1].Value)
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := newProducer(&fakeWriter{err: boom}, "gzip")
	if err := p.PublishMessage(context.Background(), "logs", "x"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestPublishBatchSetsHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "gzip")
	err := p.PublishBatch(context.Background(), "alerts", []Message{{
		Key:     []byte("7"),
		Value:   map[string]int{"alert_id": 7},
		Headers: map[string]string{"event_type": "alert.triggered"},
	}})
	if err != nil {
		t.Fatalf("publish batch: %v", err)
	}
	h := w.msgs[0].Headers
	if len(h) != 1 || h[0].Key != "event_type" || string(h[0].Value) != "alert.triggered" {
		t.Fatalf("unexpected headers %+v", h)
	}
}
